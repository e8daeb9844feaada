package workflow

import (
	"context"
	"strings"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/travel/intents"
	"github.com/jeeves-cluster-organization/tripdesk/travel/rules"
)

// =============================================================================
// SKIPPABLE BRANCH
// =============================================================================

// Malformed asks for a rephrase when any question was malformed.
func (s *Stages) Malformed(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	if state.Partition == nil || len(state.Partition.Skippable.Malformed) == 0 {
		return envelope.Update{}, nil
	}
	return envelope.Update{Skippable: envelope.SkippableActions{
		Clarifications: []string{rules.MalformedPrompt},
	}}, nil
}

// Forbidden adds the refund and guarantee boundary.
func (s *Stages) Forbidden(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	if state.Partition == nil || len(state.Partition.Skippable.Forbidden) == 0 {
		return envelope.Update{}, nil
	}
	return envelope.Update{Skippable: envelope.SkippableActions{
		Boundaries: []string{rules.RefundBoundary},
	}}, nil
}

// Hostile adds the tone redirect.
func (s *Stages) Hostile(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	if state.Partition == nil || len(state.Partition.Skippable.Hostile) == 0 {
		return envelope.Update{}, nil
	}
	return envelope.Update{Skippable: envelope.SkippableActions{
		ToneSafeMessages: []string{rules.HostileRedirect},
	}}, nil
}

// Converge joins the answerable and skippable branches.
func (s *Stages) Converge(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	s.logger.Debug("branches_converged",
		"envelope_id", state.EnvelopeID,
		"answered", state.Answerable.AnswerText != nil,
		"clarifications", len(state.Skippable.Clarifications),
		"boundaries", len(state.Skippable.Boundaries),
		"tone_safe", len(state.Skippable.ToneSafeMessages),
	)
	return envelope.Update{}, nil
}

// =============================================================================
// MERGE
// =============================================================================

// MergeOutputs builds the final reply. Priority intents on the raw message
// override branch text; otherwise the answer is joined with the boundary
// messages of forbidden questions. Clarifications and tone redirects stay in
// state only.
func (s *Stages) MergeOutputs(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	raw := state.RawText
	found := intents.Detect(intents.Input{Text: raw, History: state.History})

	if intents.Has(found, intents.BookingConfirmed) {
		s.logger.Info("booking_confirmed", "envelope_id", state.EnvelopeID)
		return envelope.Update{Merged: &envelope.MergedOutput{FinalText: rules.BookingCelebrate}}, nil
	}

	if intents.Has(found, intents.CallRequest) {
		if !intents.IsCallFollowUp(state.History) {
			return envelope.Update{Merged: &envelope.MergedOutput{FinalText: rules.CallFollowUp}}, nil
		}
		details := intents.ExtractCallDetails(raw)
		summary := intents.BuildCallSummary(state.History, raw, details, s.opts.CallSummaryWindow)
		s.logger.Info("call_escalated",
			"envelope_id", state.EnvelopeID,
			"preferred_time", details.PreferredTime,
		)
		return envelope.Update{
			Merged:      &envelope.MergedOutput{FinalText: rules.CallEscalated},
			Interaction: &envelope.InteractionState{DecisionStage: envelope.StageEscalated, EscalationFlag: true},
			CallSummary: envelope.StringPtr(summary),
		}, nil
	}

	var parts []string
	if answer := state.Answerable.AnswerText; answer != nil && strings.TrimSpace(*answer) != "" {
		parts = append(parts, strings.TrimSpace(*answer))
	}
	if state.Partition != nil && len(state.Partition.Skippable.Forbidden) > 0 {
		parts = append(parts, state.Skippable.Boundaries...)
	}
	final := strings.Join(parts, " ")

	if final == "" && intents.Has(found, intents.DecisionDeferral) {
		final = rules.DecisionDeferred
	}
	if final == "" {
		final = rules.MergeNothing
	}
	return envelope.Update{Merged: &envelope.MergedOutput{FinalText: final}}, nil
}

// =============================================================================
// POST-MERGE
// =============================================================================

// UpdateInteractionState records the decision stage of the turn. An
// escalation made by the merge is kept.
func (s *Stages) UpdateInteractionState(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	if state.Interaction != nil && state.Interaction.EscalationFlag {
		return envelope.Update{Interaction: &envelope.InteractionState{
			DecisionStage:  envelope.StageEscalated,
			EscalationFlag: true,
		}}, nil
	}

	stage := envelope.StageEvaluating
	if state.FinalText() != "" {
		stage = envelope.StageAnswered
	}
	return envelope.Update{Interaction: &envelope.InteractionState{
		DecisionStage:  stage,
		EscalationFlag: len(state.Skippable.Boundaries) > 0,
	}}, nil
}

// PostAnswerAction decides what the conversation does next.
func (s *Stages) PostAnswerAction(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	action := envelope.ActionFollowUp
	switch {
	case state.Interaction != nil && state.Interaction.DecisionStage == envelope.StageEscalated && state.CallSummary != "":
		action = envelope.ActionHandoff
	case state.Merged != nil:
		action = envelope.ActionEnd
	}
	return envelope.Update{NextAction: action}, nil
}
