package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/tripdesk/commbus"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/testutil"
	"github.com/jeeves-cluster-organization/tripdesk/travel/reasoning"
	"github.com/jeeves-cluster-organization/tripdesk/travel/rules"
	"github.com/jeeves-cluster-organization/tripdesk/travel/session"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
	"github.com/jeeves-cluster-organization/tripdesk/travel/workflow"
)

const (
	kashmirID = "kashmir_zo_trip_TR-4Q7QMQQJ"
	spitiID   = "spiti_zo_trip_TR-JQ5FH8GW"
	andamanID = "andaman_zo_trip_TR-63528G7X"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type recorder struct {
	mu     sync.Mutex
	events []commbus.Message
}

func (r *recorder) handle(_ context.Context, msg commbus.Message) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, msg)
	return nil, nil
}

func (r *recorder) escalations() []*commbus.EscalationRequested {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*commbus.EscalationRequested
	for _, e := range r.events {
		if ev, ok := e.(*commbus.EscalationRequested); ok {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	service *Service
	store   *session.MemoryStore
	bus     *commbus.InMemoryCommBus
	events  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testutil.NewMockLogger()

	catalog, err := trips.Default()
	require.NoError(t, err)
	capability, err := reasoning.New(nil, nil, reasoning.Config{Timeout: time.Second}, logger)
	require.NoError(t, err)
	runner, err := workflow.Build(catalog, capability, workflow.Options{}, logger)
	require.NoError(t, err)

	return newFixtureWithRunner(t, runner)
}

func newFixtureWithRunner(t *testing.T, runner Runner) *fixture {
	t.Helper()
	return newFixtureWithOptions(t, runner, Options{})
}

func newFixtureWithOptions(t *testing.T, runner Runner, opts Options) *fixture {
	t.Helper()
	logger := testutil.NewMockLogger()
	store := session.NewMemoryStore()
	bus := commbus.NewInMemoryCommBus(time.Second, logger)
	events := &recorder{}
	bus.Subscribe("TurnCompleted", events.handle)
	bus.Subscribe("EscalationRequested", events.handle)

	service := NewService(runner, session.NewMemory(store), bus, opts, logger)
	require.NoError(t, service.RegisterQueries())
	return &fixture{service: service, store: store, bus: bus, events: events}
}

type failingRunner struct{}

func (failingRunner) Run(_ context.Context, state *envelope.TurnState) (*envelope.TurnState, error) {
	return state, errors.New("stage exploded")
}

// =============================================================================
// TURN TESTS
// =============================================================================

// TestHandleTurnPersists tests the reply, the saved history and the saved state.
func TestHandleTurnPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.HandleTurn(ctx, TurnRequest{
		SessionID: "s1",
		RawText:   "Is pickup included in the Kashmir trip, or do I need to reach Srinagar on my own?",
	})
	require.NoError(t, err)

	assert.Contains(t, resp.FinalText, "Srinagar")
	assert.Equal(t, kashmirID, resp.TripID)
	assert.Equal(t, envelope.ConfidenceLow, resp.Confidence)
	assert.Equal(t, envelope.StageAnswered, resp.DecisionStage)
	assert.False(t, resp.EscalationFlag)
	assert.Equal(t, envelope.ActionEnd, resp.NextAction)
	assert.NotEmpty(t, resp.EnvelopeID)

	history, err := f.store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, envelope.RoleUser, history[0].Role)
	assert.Equal(t, envelope.RoleAssistant, history[1].Role)
	assert.Equal(t, resp.FinalText, history[1].Content)
	assert.NotEmpty(t, history[0].Timestamp)

	stored, err := f.store.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, "kashmir", stored.Focus.PrimaryTopic)
	assert.Equal(t, envelope.IntentEvaluating, stored.IntentLevel)
	assert.Equal(t, stored, resp.ConversationState)
}

// TestHandleTurnRequiresSession tests the missing session id error.
func TestHandleTurnRequiresSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.HandleTurn(context.Background(), TurnRequest{SessionID: "  ", RawText: "hello there"})
	assert.ErrorIs(t, err, ErrMissingSession)

	_, err = f.service.State(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingSession)
}

// TestTopicDemotion tests that a new trip demotes the previous one.
func TestTopicDemotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.HandleTurn(ctx, TurnRequest{
		SessionID: "s1",
		RawText:   "Is pickup included in Experience Kashmir?",
		History:   []envelope.Message{},
	})
	require.NoError(t, err)

	resp, err := f.service.HandleTurn(ctx, TurnRequest{
		SessionID: "s1",
		RawText:   "Is pickup included in Experience Andaman?",
		History:   []envelope.Message{},
	})
	require.NoError(t, err)

	state := resp.ConversationState
	require.NotNil(t, state)
	assert.Equal(t, 2, state.Version)
	assert.Equal(t, "andaman", state.Focus.PrimaryTopic)
	assert.Contains(t, state.Focus.Secondary, "kashmir")
	assert.Less(t, state.TopicDecay["kashmir"], state.TopicDecay["andaman"])
}

// TestTopicDemotionWithStoredHistory tests that a trip named in the current
// turn wins over trips named in earlier stored turns.
func TestTopicDemotionWithStoredHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.HandleTurn(ctx, TurnRequest{
		SessionID: "s1",
		RawText:   "Is pickup included in Experience Kashmir?",
	})
	require.NoError(t, err)
	require.Equal(t, kashmirID, first.TripID)

	second, err := f.service.HandleTurn(ctx, TurnRequest{SessionID: "s1", RawText: "What does the Spiti trip cost?"})
	require.NoError(t, err)
	assert.Equal(t, spitiID, second.TripID)

	state := second.ConversationState
	require.NotNil(t, state)
	assert.Equal(t, "spiti", state.Focus.PrimaryTopic)
	assert.Contains(t, state.Focus.Secondary, "kashmir")
	assert.Less(t, state.TopicDecay["kashmir"], state.TopicDecay["spiti"])

	third, err := f.service.HandleTurn(ctx, TurnRequest{SessionID: "s1", RawText: "Tell me about Experience Andaman"})
	require.NoError(t, err)
	assert.Equal(t, andamanID, third.TripID)

	state = third.ConversationState
	require.NotNil(t, state)
	assert.Equal(t, "andaman", state.Focus.PrimaryTopic)
	assert.ElementsMatch(t, []string{"spiti", "kashmir"}, state.Focus.Secondary)
	assert.Less(t, state.TopicDecay["kashmir"], state.TopicDecay["spiti"])
	assert.Less(t, state.TopicDecay["spiti"], state.TopicDecay["andaman"])

	history, err := f.store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, 6)
}

// TestCallerStateOverride tests that a supplied state replaces the stored one.
func TestCallerStateOverride(t *testing.T) {
	f := newFixture(t)
	prior := envelope.NewConversationState("conv-external")
	prior.Version = 7

	resp, err := f.service.HandleTurn(context.Background(), TurnRequest{
		SessionID: "s1",
		RawText:   "Is pickup included in Experience Kashmir?",
		State:     prior,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, resp.ConversationState.Version)
	assert.Equal(t, "conv-external", resp.ConversationState.ConversationID)
	assert.Equal(t, 7, prior.Version)
}

// TestBookingConfirmation tests the celebration reply through the service.
func TestBookingConfirmation(t *testing.T) {
	f := newFixture(t)
	resp, err := f.service.HandleTurn(context.Background(), TurnRequest{SessionID: "s1", RawText: "I've just booked the trip!"})
	require.NoError(t, err)
	assert.Equal(t, rules.BookingCelebrate, resp.FinalText)
}

// =============================================================================
// EVENT TESTS
// =============================================================================

// TestBoundaryEscalation tests the events of a turn with a forbidden question.
func TestBoundaryEscalation(t *testing.T) {
	f := newFixture(t)
	resp, err := f.service.HandleTurn(context.Background(), TurnRequest{
		SessionID: "s1",
		RawText:   "Is pickup included and what about refunds?",
	})
	require.NoError(t, err)

	assert.Contains(t, resp.FinalText, rules.RefundBoundary)
	assert.True(t, resp.EscalationFlag)
	assert.Equal(t, envelope.RiskHigh, resp.ConversationState.RiskLevel)
	assert.Equal(t, envelope.HandoffPrepared, resp.ConversationState.HandoffStatus)

	escalations := f.events.escalations()
	require.Len(t, escalations, 1)
	assert.Equal(t, commbus.EscalationBoundary, escalations[0].Reason)
	assert.Len(t, f.events.events, 2)
}

// TestCallRequestEscalation tests that the stored history drives the call flow.
func TestCallRequestEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.HandleTurn(ctx, TurnRequest{SessionID: "s1", RawText: "Can we get on a call?"})
	require.NoError(t, err)
	assert.Equal(t, rules.CallFollowUp, first.FinalText)
	assert.Empty(t, f.events.escalations())

	second, err := f.service.HandleTurn(ctx, TurnRequest{
		SessionID: "s1",
		RawText:   "Please call me tomorrow at 5 pm, I want to discuss the itinerary",
	})
	require.NoError(t, err)
	assert.Equal(t, rules.CallEscalated, second.FinalText)
	assert.Equal(t, envelope.StageEscalated, second.DecisionStage)
	assert.Equal(t, envelope.ActionHandoff, second.NextAction)
	assert.Contains(t, second.CallSummary, "CALL REQUEST SUMMARY")

	escalations := f.events.escalations()
	require.Len(t, escalations, 1)
	assert.Equal(t, commbus.EscalationCallRequest, escalations[0].Reason)
	assert.Equal(t, second.CallSummary, escalations[0].CallSummary)
}

// TestStateQuery tests the GetConversationState bus query.
func TestStateQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bus.QuerySync(ctx, &commbus.GetConversationState{SessionID: "s1"})
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = f.service.HandleTurn(ctx, TurnRequest{SessionID: "s1", RawText: "Is pickup included in Experience Kashmir?"})
	require.NoError(t, err)

	result, err := f.bus.QuerySync(ctx, &commbus.GetConversationState{SessionID: "s1"})
	require.NoError(t, err)
	state, ok := result.(*envelope.ConversationState)
	require.True(t, ok)
	assert.Equal(t, 1, state.Version)
}

// =============================================================================
// FAILURE AND CONCURRENCY TESTS
// =============================================================================

// TestPipelineFailure tests the fallback reply when the pipeline fails.
func TestPipelineFailure(t *testing.T) {
	f := newFixtureWithRunner(t, failingRunner{})
	ctx := context.Background()

	resp, err := f.service.HandleTurn(ctx, TurnRequest{SessionID: "s1", RawText: "Is pickup included?"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage exploded")
	require.NotNil(t, resp)
	assert.Equal(t, rules.MergeNothing, resp.FinalText)
	assert.Equal(t, session.UnresolvedTrip, resp.TripID)

	history, err := f.store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.events.events)
}

// TestConcurrentTurnsSerialized tests that versions never interleave.
func TestConcurrentTurnsSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const turns = 8

	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.HandleTurn(ctx, TurnRequest{SessionID: "s1", RawText: "Is pickup included in Experience Kashmir?"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := f.store.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, turns, state.Version)

	history, err := f.store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, 2*turns)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, envelope.RoleUser, history[i].Role)
		assert.Equal(t, envelope.RoleAssistant, history[i+1].Role)
	}
}

// TestRateLimitedTurn tests that turns beyond the session limit are refused
// before the pipeline runs.
func TestRateLimitedTurn(t *testing.T) {
	catalog, err := trips.Default()
	require.NoError(t, err)
	logger := testutil.NewMockLogger()
	capability, err := reasoning.New(nil, nil, reasoning.Config{Timeout: time.Second}, logger)
	require.NoError(t, err)
	runner, err := workflow.Build(catalog, capability, workflow.Options{}, logger)
	require.NoError(t, err)

	f := newFixtureWithOptions(t, runner, Options{RateLimit: session.RateLimitConfig{TurnsPerMinute: 2}})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.service.HandleTurn(ctx, TurnRequest{SessionID: "s1", RawText: "Is pickup included in Experience Kashmir?"})
		require.NoError(t, err)
	}

	resp, err := f.service.HandleTurn(ctx, TurnRequest{SessionID: "s1", RawText: "Is pickup included in Experience Kashmir?"})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, session.ErrRateLimited)

	var limited *session.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, "minute", limited.LimitType)

	_, err = f.service.HandleTurn(ctx, TurnRequest{SessionID: "s2", RawText: "Is pickup included in Experience Kashmir?"})
	assert.NoError(t, err)

	stored, err := f.store.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}
