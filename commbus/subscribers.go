package commbus

import (
	"context"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
)

// RegisterTurnSubscribers attaches the metrics and logging subscribers of the
// turn events. The returned function detaches them.
func RegisterTurnSubscribers(bus CommBus, logger agents.Logger) func() {
	logger = logger.Bind("component", "turn_events")
	unsubscribers := []func(){
		bus.Subscribe("TurnCompleted", turnMetrics),
		bus.Subscribe("EscalationRequested", escalationMetrics),
		bus.Subscribe("TurnCompleted", turnLogger(logger)),
		bus.Subscribe("EscalationRequested", escalationLogger(logger)),
	}
	return func() {
		for _, u := range unsubscribers {
			u()
		}
	}
}

func turnMetrics(_ context.Context, msg Message) (any, error) {
	if ev, ok := msg.(*TurnCompleted); ok {
		observability.RecordTurn(ev.DecisionStage)
	}
	return nil, nil
}

func escalationMetrics(_ context.Context, msg Message) (any, error) {
	if ev, ok := msg.(*EscalationRequested); ok {
		observability.RecordEscalation(ev.Reason)
	}
	return nil, nil
}

func turnLogger(logger agents.Logger) HandlerFunc {
	return func(_ context.Context, msg Message) (any, error) {
		ev, ok := msg.(*TurnCompleted)
		if !ok {
			return nil, nil
		}
		logger.Info("turn_completed",
			"session_id", ev.SessionID,
			"envelope_id", ev.EnvelopeID,
			"trip_id", ev.TripID,
			"confidence", ev.Confidence,
			"decision_stage", ev.DecisionStage,
			"next_action", ev.NextAction,
			"duration_ms", ev.DurationMS,
		)
		return nil, nil
	}
}

func escalationLogger(logger agents.Logger) HandlerFunc {
	return func(_ context.Context, msg Message) (any, error) {
		ev, ok := msg.(*EscalationRequested)
		if !ok {
			return nil, nil
		}
		logger.Warn("escalation_requested",
			"session_id", ev.SessionID,
			"envelope_id", ev.EnvelopeID,
			"reason", ev.Reason,
		)
		return nil, nil
	}
}
