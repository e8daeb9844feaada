package session

import (
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
)

// UnresolvedTrip is the trip id placeholder that never updates focus.
const UnresolvedTrip = "Not resolved"

const (
	decayFactor     = 0.9
	decayFloor      = 0.05
	decayBoost      = 0.3
	decayCeiling    = 1.5
	decayRescale    = 1.2
	maxSecondary    = 2
	riskConfidence  = 0.4
	momentumWarmup  = 3
	stalledVersions = 5
	loopingTopics   = 3
)

// UpdateState returns the next conversation state after one turn. The input
// state is not modified.
func UpdateState(prev *envelope.ConversationState, tripCtx *envelope.TripContext, interaction *envelope.InteractionState, now time.Time) *envelope.ConversationState {
	state := prev.Clone()
	if state == nil {
		state = envelope.NewConversationState("")
	}
	state.Version++

	if tripCtx != nil && tripCtx.TripID != "" && tripCtx.TripID != UnresolvedTrip {
		if topic := trips.TopicForTrip(tripCtx.TripID); topic != "" {
			updateFocus(state, topic, tripCtx.Confidence.Score())
			updateDecay(state, topic)
		}
	}

	if interaction != nil {
		switch interaction.DecisionStage {
		case envelope.StageAnswered:
			state.IntentLevel = envelope.IntentEvaluating
		default:
			state.IntentLevel = envelope.IntentBrowsing
		}

		switch {
		case interaction.EscalationFlag:
			state.RiskLevel = envelope.RiskHigh
		case state.Focus.Confidence < riskConfidence:
			state.RiskLevel = envelope.RiskMedium
		default:
			state.RiskLevel = envelope.RiskLow
		}

		if interaction.EscalationFlag && state.HandoffStatus == envelope.HandoffNone {
			state.HandoffStatus = envelope.HandoffPrepared
		}
	}

	state.MomentumState = momentum(state)
	state.UpdatedAt = now.UTC()
	return state
}

func updateFocus(state *envelope.ConversationState, topic string, confidence float64) {
	if state.Focus.PrimaryTopic == topic {
		if confidence > state.Focus.Confidence {
			state.Focus.Confidence = confidence
		}
		return
	}

	secondary := state.Focus.Secondary
	if old := state.Focus.PrimaryTopic; old != "" && !contains(secondary, old) {
		secondary = append([]string{old}, secondary...)
	}
	filtered := make([]string, 0, maxSecondary)
	for _, t := range secondary {
		if t == topic {
			continue
		}
		if len(filtered) == maxSecondary {
			break
		}
		filtered = append(filtered, t)
	}

	state.Focus = envelope.Focus{PrimaryTopic: topic, Confidence: confidence, Secondary: filtered}
	if state.Anchor.Topic != topic {
		state.Anchor = envelope.Anchor{Topic: topic, SinceVersion: state.Version}
	}
}

func updateDecay(state *envelope.ConversationState, topic string) {
	decay := state.TopicDecay
	if decay == nil {
		decay = make(map[string]float64)
	}
	for t, v := range decay {
		v *= decayFactor
		if v < decayFloor {
			delete(decay, t)
			continue
		}
		decay[t] = v
	}

	current := decay[topic]
	decay[topic] = current + (1-current)*decayBoost

	var total float64
	for _, v := range decay {
		total += v
	}
	if total > decayCeiling {
		for t, v := range decay {
			decay[t] = v / total * decayRescale
		}
	}
	state.TopicDecay = decay
}

func momentum(state *envelope.ConversationState) string {
	switch {
	case state.Version < momentumWarmup:
		return envelope.MomentumBuilding
	case state.Version-state.Anchor.SinceVersion > stalledVersions && state.Anchor.Topic == state.Focus.PrimaryTopic:
		return envelope.MomentumStalled
	case len(state.TopicDecay) > loopingTopics:
		return envelope.MomentumLooping
	default:
		return envelope.MomentumBuilding
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
