package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
	"github.com/jeeves-cluster-organization/tripdesk/travel/rules"
	"github.com/jeeves-cluster-organization/tripdesk/travel/turn"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// runCLI executes the root command in process with the given stdin.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("TRIPDESK_LLM_API_KEY", "")
	t.Setenv("TRIPDESK_SESSION_BACKEND", "memory")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

// TestAsk tests a single question with a plain reply.
func TestAsk(t *testing.T) {
	stdout, _, err := runCLI(t, "", "ask", "Is pickup included in the Kashmir trip, or do I need to reach Srinagar on my own?")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Srinagar")
}

// TestAskJSON tests the full turn response output.
func TestAskJSON(t *testing.T) {
	stdout, _, err := runCLI(t, "", "ask", "--json", "--session", "s1", "Is pickup included in Experience Kashmir?")
	require.NoError(t, err)

	var resp turn.TurnResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "kashmir_zo_trip_TR-4Q7QMQQJ", resp.TripID)
	assert.Equal(t, envelope.StageAnswered, resp.DecisionStage)
	require.NotNil(t, resp.ConversationState)
	assert.Equal(t, 1, resp.ConversationState.Version)
}

// TestAskRequiresQuestion tests the argument check.
func TestAskRequiresQuestion(t *testing.T) {
	_, _, err := runCLI(t, "", "ask")
	assert.Error(t, err)
}

// TestChat tests a two-turn call request within one session.
func TestChat(t *testing.T) {
	input := strings.Join([]string{
		"Can we get on a call?",
		"",
		"Please call me tomorrow at 5 pm, I want to discuss the itinerary",
		"exit",
		"this line is never read",
	}, "\n")

	stdout, _, err := runCLI(t, input, "chat", "--session", "chat-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "session chat-1")
	assert.Contains(t, stdout, rules.CallFollowUp)
	assert.Contains(t, stdout, rules.CallEscalated)
	assert.Contains(t, stdout, "[handed off to a travel expert]")
}

// TestChatEndsAtEOF tests that a closed stdin ends the session.
func TestChatEndsAtEOF(t *testing.T) {
	stdout, _, err := runCLI(t, "I've just booked the trip!", "chat")
	require.NoError(t, err)
	assert.Contains(t, stdout, rules.BookingCelebrate)
}

// TestTrips tests the catalog listing.
func TestTrips(t *testing.T) {
	stdout, _, err := runCLI(t, "", "trips")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "TRIP ID"))
	assert.Contains(t, stdout, "kashmir_zo_trip_TR-4Q7QMQQJ")
	assert.Contains(t, stdout, "Experience Andaman")
}

// TestVersion tests the version output.
func TestVersion(t *testing.T) {
	stdout, _, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, observability.ServiceVersion)
}

// TestUnknownCommand tests that an unknown command fails.
func TestUnknownCommand(t *testing.T) {
	_, _, err := runCLI(t, "", "book")
	assert.Error(t, err)
}
