package typeutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

// ErrInvalidPayload is returned when a payload field has the wrong shape.
var ErrInvalidPayload = errors.New("invalid payload")

func invalid(field, want string) error {
	return fmt.Errorf("%w: %s must be %s", ErrInvalidPayload, field, want)
}

// =============================================================================
// HISTORY
// =============================================================================

// DecodeMessages reads a conversation history list. Timestamps are optional
// and kept verbatim.
func DecodeMessages(value any) ([]envelope.Message, error) {
	items, ok := SafeSlice(value)
	if !ok {
		return nil, invalid("conversation_history", "a list")
	}
	out := make([]envelope.Message, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("conversation_history[%d]", i)
		m, ok := SafeMap(item)
		if !ok {
			return nil, invalid(field, "an object")
		}
		role := envelope.Role(SafeStringDefault(m["role"], ""))
		if role != envelope.RoleUser && role != envelope.RoleAssistant {
			return nil, invalid(field+".role", "user or assistant")
		}
		content, ok := SafeString(m["content"])
		if !ok {
			return nil, invalid(field+".content", "a string")
		}
		out = append(out, envelope.Message{
			Role:      role,
			Content:   content,
			Timestamp: SafeStringDefault(m["timestamp"], ""),
		})
	}
	return out, nil
}

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// DecodeConversationState reads a conversation state object. Absent fields
// keep the version-zero defaults.
func DecodeConversationState(value any) (*envelope.ConversationState, error) {
	m, ok := SafeMap(value)
	if !ok {
		return nil, invalid("conversation_state", "an object")
	}
	state := envelope.NewConversationState(SafeStringDefault(m["conversation_id"], ""))

	if v, present := m["version"]; present {
		version, ok := SafeInt(v)
		if !ok || version < 0 {
			return nil, invalid("conversation_state.version", "a non-negative integer")
		}
		state.Version = version
	}
	setString := func(key string, dst *string) {
		if s, ok := SafeString(m[key]); ok && s != "" {
			*dst = s
		}
	}
	setString("intent_level", &state.IntentLevel)
	setString("risk_level", &state.RiskLevel)
	setString("momentum_state", &state.MomentumState)
	setString("handoff_status", &state.HandoffStatus)

	if focus, ok := SafeMap(m["focus"]); ok {
		state.Focus.PrimaryTopic = SafeStringDefault(focus["primary_topic"], "")
		if c, ok := SafeFloat64(focus["confidence"]); ok {
			state.Focus.Confidence = c
		}
		if v, present := focus["secondary"]; present && v != nil {
			secondary, ok := SafeStringSlice(v)
			if !ok {
				return nil, invalid("conversation_state.focus.secondary", "a list of strings")
			}
			state.Focus.Secondary = secondary
		}
	}
	if anchor, ok := SafeMap(m["anchor"]); ok {
		state.Anchor.Topic = SafeStringDefault(anchor["topic"], "")
		if since, ok := SafeInt(anchor["since_version"]); ok {
			state.Anchor.SinceVersion = since
		}
	}
	if decay, ok := SafeMap(m["topic_decay"]); ok {
		for topic, raw := range decay {
			score, ok := SafeFloat64(raw)
			if !ok {
				return nil, invalid("conversation_state.topic_decay."+topic, "a number")
			}
			state.TopicDecay[topic] = score
		}
	}
	if raw, ok := SafeString(m["updated_at"]); ok && raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, invalid("conversation_state.updated_at", "an RFC 3339 timestamp")
		}
		state.UpdatedAt = ts.UTC()
	}
	return state, nil
}

// EncodeConversationState renders a state with payload-safe value types.
func EncodeConversationState(state *envelope.ConversationState) map[string]any {
	if state == nil {
		return nil
	}
	secondary := make([]any, 0, len(state.Focus.Secondary))
	for _, t := range state.Focus.Secondary {
		secondary = append(secondary, t)
	}
	decay := make(map[string]any, len(state.TopicDecay))
	for t, score := range state.TopicDecay {
		decay[t] = score
	}

	return map[string]any{
		"conversation_id": state.ConversationID,
		"version":         float64(state.Version),
		"intent_level":    state.IntentLevel,
		"risk_level":      state.RiskLevel,
		"momentum_state":  state.MomentumState,
		"focus": map[string]any{
			"primary_topic": state.Focus.PrimaryTopic,
			"confidence":    state.Focus.Confidence,
			"secondary":     secondary,
		},
		"anchor": map[string]any{
			"topic":         state.Anchor.Topic,
			"since_version": float64(state.Anchor.SinceVersion),
		},
		"topic_decay":    decay,
		"handoff_status": state.HandoffStatus,
		"updated_at":     state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
