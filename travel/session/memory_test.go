package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/testutil"
)

const (
	kashmirTrip = "kashmir_zo_trip_TR-4Q7QMQQJ"
	spitiTrip   = "spiti_zo_trip_TR-JQ5FH8GW"
	andamanTrip = "andaman_zo_trip_TR-63528G7X"
)

var testNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestMemory() *Memory {
	m := NewMemory(NewMemoryStore())
	m.now = func() time.Time { return testNow }
	return m
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

// TestAddMessageStampsTime tests RFC 3339 UTC stamping.
func TestAddMessageStampsTime(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	require.NoError(t, m.AddMessage(ctx, "s", envelope.RoleUser, "hello"))

	history, err := m.Store().History(ctx, "s")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2026-01-10T12:00:00Z", history[0].Timestamp)
	assert.Equal(t, envelope.RoleUser, history[0].Role)
}

// TestFilterRecent tests the recent-history window rules.
func TestFilterRecent(t *testing.T) {
	msg := func(content, ts string) envelope.Message {
		return envelope.Message{Role: envelope.RoleUser, Content: content, Timestamp: ts}
	}

	tests := []struct {
		name     string
		history  []envelope.Message
		max      int
		expected []string
	}{
		{
			name:     "empty",
			expected: []string{},
		},
		{
			name:     "keeps last n in order",
			history:  testutil.NewTestHistory(testNow, "a", "b", "c", "d", "e", "f", "g", "h"),
			max:      6,
			expected: []string{"c", "d", "e", "f", "g", "h"},
		},
		{
			name: "gap stops the walk",
			history: []envelope.Message{
				msg("old", "2026-01-08T11:00:00Z"),
				msg("recent", "2026-01-10T11:00:00Z"),
			},
			max:      6,
			expected: []string{"recent"},
		},
		{
			name: "missing timestamp stops the walk",
			history: []envelope.Message{
				msg("before", "2026-01-10T10:00:00Z"),
				msg("legacy", ""),
				msg("recent", "2026-01-10T11:00:00Z"),
			},
			max:      6,
			expected: []string{"recent"},
		},
		{
			name: "invalid timestamp is skipped",
			history: []envelope.Message{
				msg("before", "2026-01-10T10:00:00Z"),
				msg("garbled", "yesterday"),
				msg("recent", "2026-01-10T11:00:00.123456Z"),
			},
			max:      6,
			expected: []string{"before", "recent"},
		},
		{
			name: "naive iso timestamp",
			history: []envelope.Message{
				msg("naive", "2026-01-10T11:30:00.000123"),
			},
			max:      6,
			expected: []string{"naive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterRecent(tt.history, tt.max, 36*time.Hour, testNow)
			contents := make([]string, 0, len(got))
			for _, m := range got {
				contents = append(contents, m.Content)
			}
			assert.Equal(t, tt.expected, contents)
		})
	}
}

// TestRecentHistory tests the store-backed window.
func TestRecentHistory(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	for _, c := range []string{"one", "two", "three"} {
		require.NoError(t, m.AddMessage(ctx, "s", envelope.RoleUser, c))
	}

	recent, err := m.RecentHistory(ctx, "s", 2, 36*time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Content)
	assert.Equal(t, "three", recent[1].Content)
}

// =============================================================================
// STATE TESTS
// =============================================================================

// TestGetOrCreateState tests first-use creation.
func TestGetOrCreateState(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	first, err := m.GetOrCreateState(ctx, "s")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ConversationID)
	assert.Equal(t, 0, first.Version)
	assert.Equal(t, envelope.IntentBrowsing, first.IntentLevel)

	second, err := m.GetOrCreateState(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
}

// TestUpdateStateTopicChange tests demotion and decay across two trips.
func TestUpdateStateTopicChange(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	answered := &envelope.InteractionState{DecisionStage: envelope.StageAnswered}
	advance := func(tc *envelope.TripContext) (*envelope.ConversationState, error) {
		prev, err := m.GetOrCreateState(ctx, "s")
		require.NoError(t, err)
		return m.AdvanceState(ctx, "s", prev, tc, answered)
	}

	s1, err := advance(&envelope.TripContext{TripID: kashmirTrip, Confidence: envelope.ConfidenceHigh})
	require.NoError(t, err)
	assert.Equal(t, 1, s1.Version)
	assert.Equal(t, "kashmir", s1.Focus.PrimaryTopic)
	assert.InDelta(t, 0.9, s1.Focus.Confidence, 1e-9)
	assert.Equal(t, envelope.Anchor{Topic: "kashmir", SinceVersion: 1}, s1.Anchor)
	assert.InDelta(t, 0.3, s1.TopicDecay["kashmir"], 1e-9)
	assert.Equal(t, envelope.IntentEvaluating, s1.IntentLevel)
	assert.Equal(t, envelope.RiskLow, s1.RiskLevel)

	s2, err := advance(&envelope.TripContext{TripID: spitiTrip, Confidence: envelope.ConfidenceMedium})
	require.NoError(t, err)
	assert.Equal(t, 2, s2.Version)
	assert.Equal(t, "spiti", s2.Focus.PrimaryTopic)
	assert.Equal(t, []string{"kashmir"}, s2.Focus.Secondary)
	assert.Equal(t, envelope.Anchor{Topic: "spiti", SinceVersion: 2}, s2.Anchor)
	assert.InDelta(t, 0.27, s2.TopicDecay["kashmir"], 1e-9)
	assert.InDelta(t, 0.3, s2.TopicDecay["spiti"], 1e-9)
	assert.Less(t, s2.TopicDecay["kashmir"], s2.TopicDecay["spiti"])

	stored, err := m.Store().GetState(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

// TestUpdateStateSameTopic tests that confidence takes the max.
func TestUpdateStateSameTopic(t *testing.T) {
	state := envelope.NewConversationState("c")
	state = UpdateState(state, &envelope.TripContext{TripID: kashmirTrip, Confidence: envelope.ConfidenceHigh}, nil, testNow)
	state = UpdateState(state, &envelope.TripContext{TripID: kashmirTrip, Confidence: envelope.ConfidenceLow}, nil, testNow)

	assert.InDelta(t, 0.9, state.Focus.Confidence, 1e-9)
	assert.InDelta(t, 0.27+0.73*0.3, state.TopicDecay["kashmir"], 1e-9)
	assert.Equal(t, 1, state.Anchor.SinceVersion)
}

// TestUpdateStateSecondaryCap tests the two-topic cap and primary exclusion.
func TestUpdateStateSecondaryCap(t *testing.T) {
	state := envelope.NewConversationState("c")
	for _, trip := range []string{kashmirTrip, spitiTrip, andamanTrip, kashmirTrip} {
		state = UpdateState(state, &envelope.TripContext{TripID: trip, Confidence: envelope.ConfidenceHigh}, nil, testNow)
	}

	assert.Equal(t, "kashmir", state.Focus.PrimaryTopic)
	assert.Equal(t, []string{"andaman", "spiti"}, state.Focus.Secondary)
	assert.NotContains(t, state.Focus.Secondary, state.Focus.PrimaryTopic)
}

// TestUpdateStateSkipsUnresolved tests that placeholders never move focus.
func TestUpdateStateSkipsUnresolved(t *testing.T) {
	prev := envelope.NewConversationState("c")
	for _, tc := range []*envelope.TripContext{nil, {TripID: UnresolvedTrip}, {TripID: "custom-trip"}} {
		next := UpdateState(prev, tc, nil, testNow)
		assert.Equal(t, 1, next.Version)
		assert.Empty(t, next.Focus.PrimaryTopic)
		assert.Empty(t, next.TopicDecay)
	}
	assert.Equal(t, 0, prev.Version)
}

// TestUpdateStateInteraction tests the derived intent, risk and handoff.
func TestUpdateStateInteraction(t *testing.T) {
	tests := []struct {
		name        string
		confidence  envelope.Confidence
		interaction envelope.InteractionState
		intent      string
		risk        string
		handoff     string
	}{
		{"answered", envelope.ConfidenceHigh, envelope.InteractionState{DecisionStage: envelope.StageAnswered}, envelope.IntentEvaluating, envelope.RiskLow, envelope.HandoffNone},
		{"low confidence", envelope.ConfidenceLow, envelope.InteractionState{DecisionStage: envelope.StageEvaluating}, envelope.IntentBrowsing, envelope.RiskMedium, envelope.HandoffNone},
		{"escalated", envelope.ConfidenceHigh, envelope.InteractionState{DecisionStage: envelope.StageEscalated, EscalationFlag: true}, envelope.IntentBrowsing, envelope.RiskHigh, envelope.HandoffPrepared},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interaction := tt.interaction
			state := UpdateState(envelope.NewConversationState("c"), &envelope.TripContext{TripID: kashmirTrip, Confidence: tt.confidence}, &interaction, testNow)
			assert.Equal(t, tt.intent, state.IntentLevel)
			assert.Equal(t, tt.risk, state.RiskLevel)
			assert.Equal(t, tt.handoff, state.HandoffStatus)
		})
	}
}

// TestMomentum tests building, stalled and looping.
func TestMomentum(t *testing.T) {
	state := envelope.NewConversationState("c")
	tc := &envelope.TripContext{TripID: kashmirTrip, Confidence: envelope.ConfidenceHigh}

	state = UpdateState(state, tc, nil, testNow)
	assert.Equal(t, envelope.MomentumBuilding, state.MomentumState)

	for i := 0; i < 6; i++ {
		state = UpdateState(state, tc, nil, testNow)
	}
	assert.Equal(t, 7, state.Version)
	assert.Equal(t, envelope.MomentumStalled, state.MomentumState)

	looping := envelope.NewConversationState("c")
	for _, trip := range []string{kashmirTrip, spitiTrip, andamanTrip, "rajasthan_zo_trip_TR-8JQHF7PM"} {
		looping = UpdateState(looping, &envelope.TripContext{TripID: trip, Confidence: envelope.ConfidenceHigh}, nil, testNow)
	}
	assert.Len(t, looping.TopicDecay, 4)
	assert.Equal(t, envelope.MomentumLooping, looping.MomentumState)
}

// TestTopicDecayBounded tests the renormalization bound over many turns.
func TestTopicDecayBounded(t *testing.T) {
	state := envelope.NewConversationState("c")
	rotation := []string{kashmirTrip, spitiTrip, andamanTrip, kashmirTrip, kashmirTrip, "south_india_zo_trip_TR-JFPQ8QQH", spitiTrip}
	for i := 0; i < 200; i++ {
		state = UpdateState(state, &envelope.TripContext{TripID: rotation[i%len(rotation)], Confidence: envelope.ConfidenceMedium}, nil, testNow)
		for topic, v := range state.TopicDecay {
			assert.GreaterOrEqual(t, v, 0.0, topic)
			assert.LessOrEqual(t, v, 1.25, topic)
		}
		assert.Equal(t, i+1, state.Version)
	}
}

// =============================================================================
// LOCK TESTS
// =============================================================================

// TestKeyedLockSerializes tests that one key never runs concurrently.
func TestKeyedLockSerializes(t *testing.T) {
	lock := NewKeyedLock()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := lock.Lock("s")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Equal(t, 0, lock.Len())
}

// TestKeyedLockIndependentKeys tests that different keys do not block.
func TestKeyedLockIndependentKeys(t *testing.T) {
	lock := NewKeyedLock()
	unlockA := lock.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := lock.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}
