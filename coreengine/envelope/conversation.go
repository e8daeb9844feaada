package envelope

import "time"

// Intent, risk, momentum and handoff labels stored in ConversationState.
const (
	IntentBrowsing   = "browsing"
	IntentEvaluating = "evaluating"

	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"

	MomentumBuilding = "building"
	MomentumStalled  = "stalled"
	MomentumLooping  = "looping"

	HandoffNone     = "none"
	HandoffPrepared = "prepared"
)

// Focus is the topic the conversation is centred on.
type Focus struct {
	PrimaryTopic string   `json:"primary_topic,omitempty"`
	Confidence   float64  `json:"confidence"`
	Secondary    []string `json:"secondary"`
}

// Anchor marks when the primary topic last changed.
type Anchor struct {
	Topic        string `json:"topic,omitempty"`
	SinceVersion int    `json:"since_version"`
}

// ConversationState is the authoritative cross-turn state of a session.
type ConversationState struct {
	ConversationID string             `json:"conversation_id"`
	Version        int                `json:"version"`
	IntentLevel    string             `json:"intent_level"`
	RiskLevel      string             `json:"risk_level"`
	MomentumState  string             `json:"momentum_state"`
	Focus          Focus              `json:"focus"`
	Anchor         Anchor             `json:"anchor"`
	TopicDecay     map[string]float64 `json:"topic_decay"`
	HandoffStatus  string             `json:"handoff_status"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewConversationState creates the version-zero state of a session.
func NewConversationState(conversationID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		IntentLevel:    IntentBrowsing,
		RiskLevel:      RiskLow,
		MomentumState:  MomentumBuilding,
		Focus:          Focus{Secondary: []string{}},
		TopicDecay:     make(map[string]float64),
		HandoffStatus:  HandoffNone,
		UpdatedAt:      time.Now().UTC(),
	}
}

// Clone returns a deep copy.
func (c *ConversationState) Clone() *ConversationState {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Focus.Secondary = append([]string{}, c.Focus.Secondary...)
	clone.TopicDecay = make(map[string]float64, len(c.TopicDecay))
	for k, v := range c.TopicDecay {
		clone.TopicDecay[k] = v
	}
	return &clone
}
