package intents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

// =============================================================================
// BOOKING CONFIRMATION TESTS
// =============================================================================

func TestIsBookingConfirmation(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"just booked", "I've just booked the trip!", true},
		{"payment done", "payment is done for spiti", true},
		{"paid", "I paid yesterday", true},
		{"question", "How do I know I booked it?", false},
		{"trailing question mark", "booked the trip?", false},
		{"hypothetical", "if I book now do I get a seat", false},
		{"concern", "I booked the trip but there is no update", false},
		{"unrelated", "Is pickup included", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBookingConfirmation(tt.text))
		})
	}
}

// =============================================================================
// CALL REQUEST TESTS
// =============================================================================

func TestIsCallRequest(t *testing.T) {
	assert.True(t, IsCallRequest("Can we get on a call?"))
	assert.True(t, IsCallRequest("please CALL me"))
	assert.False(t, IsCallRequest("What is the price"))
}

func TestIsCallFollowUp(t *testing.T) {
	followUp := "I can help with that 🙂\nBefore I arrange a call, could you briefly share:"

	tests := []struct {
		name    string
		history []envelope.Message
		want    bool
	}{
		{
			name: "assistant asked follow up",
			history: []envelope.Message{
				{Role: envelope.RoleUser, Content: "can we call"},
				{Role: envelope.RoleAssistant, Content: followUp},
			},
			want: true,
		},
		{
			name: "user message ends scan",
			history: []envelope.Message{
				{Role: envelope.RoleAssistant, Content: followUp},
				{Role: envelope.RoleUser, Content: "never mind"},
			},
			want: false,
		},
		{
			name: "older assistant message is still scanned",
			history: []envelope.Message{
				{Role: envelope.RoleAssistant, Content: followUp},
				{Role: envelope.RoleAssistant, Content: "Anything else?"},
			},
			want: true,
		},
		{
			name: "empty history",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCallFollowUp(tt.history))
		})
	}
}

func TestExtractCallDetails(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		wantTime       string
		wantDiscussion string
	}{
		{
			name:           "clock time",
			text:           "Call me about the Spiti pickup at 6 pm.",
			wantTime:       "6 pm",
			wantDiscussion: "Call me about the Spiti pickup at",
		},
		{
			name:           "part of day",
			text:           "I want to discuss pricing, evening works",
			wantTime:       "evening",
			wantDiscussion: "I want to discuss pricing, works",
		},
		{
			name:           "sentence level",
			text:           "Group discounts. I am free on weekdays",
			wantTime:       "I am free on weekdays",
			wantDiscussion: "Group discounts",
		},
		{
			name:           "no availability keyword",
			text:           "refund rules",
			wantTime:       "",
			wantDiscussion: "refund rules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCallDetails(tt.text)
			assert.Equal(t, tt.wantTime, got.PreferredTime)
			assert.Equal(t, tt.wantDiscussion, got.Discussion)
		})
	}
}

func TestBuildCallSummary(t *testing.T) {
	history := []envelope.Message{
		{Role: envelope.RoleUser, Content: "Tell me about Kashmir"},
		{Role: envelope.RoleAssistant, Content: "Kashmir is lovely"},
		{Role: envelope.RoleUser, Content: "can we call"},
	}

	summary := BuildCallSummary(history, "pricing, evening", CallDetails{PreferredTime: "evening", Discussion: "pricing"}, 10)
	assert.Contains(t, summary, "User: Tell me about Kashmir\nUser: can we call\nUser (Current): pricing")
	assert.Contains(t, summary, "Preferred Call Time: evening")
	assert.NotContains(t, summary, "Kashmir is lovely")

	noTime := BuildCallSummary(nil, "hello", CallDetails{}, 10)
	assert.Contains(t, noTime, "User (Current): hello")
	assert.Contains(t, noTime, "Preferred Call Time: Not specified")
}

func TestBuildCallSummaryWindow(t *testing.T) {
	history := []envelope.Message{
		{Role: envelope.RoleUser, Content: "oldest"},
		{Role: envelope.RoleUser, Content: "middle"},
		{Role: envelope.RoleUser, Content: "newest"},
	}

	summary := BuildCallSummary(history, "x", CallDetails{Discussion: "x"}, 2)
	assert.NotContains(t, summary, "oldest")
	assert.Contains(t, summary, "User: middle\nUser: newest")
}

// =============================================================================
// PRIORITY TESTS
// =============================================================================

func TestDetectOrder(t *testing.T) {
	found := Detect(Input{Text: "I will confirm after a call"})
	assert.Equal(t, []Intent{CallRequest, DecisionDeferral}, found)
	assert.True(t, Has(found, CallRequest))
	assert.False(t, Has(found, BookingConfirmed))

	assert.Empty(t, Detect(Input{Text: "Is pickup included"}))
}

func TestIsDecisionDeferral(t *testing.T) {
	assert.True(t, IsDecisionDeferral("Let me think about it"))
	assert.False(t, IsDecisionDeferral("Book me in"))
}

// =============================================================================
// DATE TESTS
// =============================================================================

func TestExtractDate(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"seats on 24th January 2026?", "2026-01-24", true},
		{"seats on 3 March 2026", "2026-03-03", true},
		{"what about 2026/2/7", "2026-02-07", true},
		{"2026-01-18 batch", "2026-01-18", true},
		{"next month", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ExtractDate(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDateQuestion(t *testing.T) {
	assert.True(t, IsDateQuestion("What dates are available?"))
	assert.True(t, IsDateQuestion("When does the trip start"))
	assert.False(t, IsDateQuestion("Are there seats left"))
}
