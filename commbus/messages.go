package commbus

import "reflect"

// =============================================================================
// TURN EVENTS
// =============================================================================

// TurnCompleted is published after a turn's reply and state are saved.
// Subscribers: metrics, structured logging.
type TurnCompleted struct {
	SessionID      string `json:"session_id"`
	EnvelopeID     string `json:"envelope_id"`
	TripID         string `json:"trip_id"`
	Confidence     string `json:"confidence"`
	DecisionStage  string `json:"decision_stage"`
	EscalationFlag bool   `json:"escalation_flag"`
	NextAction     string `json:"next_action"`
	DurationMS     int    `json:"duration_ms"`
}

// Category implements Message.
func (m *TurnCompleted) Category() string { return string(MessageCategoryEvent) }

// Escalation reasons.
const (
	EscalationCallRequest = "call_request"
	EscalationBoundary    = "boundary"
)

// EscalationRequested is published when a turn needs the team: a scheduled
// call, or a boundary message the customer should hear about from a person.
type EscalationRequested struct {
	SessionID   string `json:"session_id"`
	EnvelopeID  string `json:"envelope_id"`
	Reason      string `json:"reason"`
	CallSummary string `json:"call_summary,omitempty"`
}

// Category implements Message.
func (m *EscalationRequested) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// QUERIES
// =============================================================================

// GetConversationState asks for the saved state of a session. The handler
// answers with *envelope.ConversationState.
type GetConversationState struct {
	SessionID string `json:"session_id"`
}

// Category implements Message.
func (m *GetConversationState) Category() string { return string(MessageCategoryQuery) }

// IsQuery implements Query.
func (m *GetConversationState) IsQuery() {}

// =============================================================================
// ROUTING
// =============================================================================

// GetMessageType returns the routing key of a message: its own MessageType
// when it has one, else the name of its struct type.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}
	switch msg.(type) {
	case *TurnCompleted:
		return "TurnCompleted"
	case *EscalationRequested:
		return "EscalationRequested"
	case *GetConversationState:
		return "GetConversationState"
	}
	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
