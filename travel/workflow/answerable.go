package workflow

import (
	"context"
	"strings"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/travel/text"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
)

// Structure categorizes the answerable questions and normalizes the turn text.
func (s *Stages) Structure(ctx context.Context, state *envelope.TurnState) (envelope.Update, error) {
	structured := []envelope.StructuredQuestion{}
	if state.Partition != nil {
		for _, id := range state.Partition.NonSkippable {
			q, ok := state.QuestionText(id)
			if !ok {
				continue
			}
			structured = append(structured, envelope.StructuredQuestion{
				ID:       id,
				Category: s.reasoning.Categorize(ctx, q),
				Text:     q,
			})
		}
	}
	return envelope.Update{
		StructuredQuestions: structured,
		NormalizedText:      envelope.StringPtr(text.Normalize(state.RawText)),
	}, nil
}

// Confidence tiers for keyword scores and carried-over focus.
const (
	highScore   = 5
	mediumScore = 3

	highFocus   = 0.7
	mediumFocus = 0.4
)

// ResolveTripContext picks the trip the turn is about: the best keyword match
// in this turn, then in prior user turns, then the session's primary topic one
// tier lower, then the default trip.
func (s *Stages) ResolveTripContext(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	tc := s.resolveTrip(state)
	s.logger.Debug("trip_context_resolved",
		"envelope_id", state.EnvelopeID,
		"trip_id", tc.TripID,
		"confidence", string(tc.Confidence),
	)
	return envelope.Update{TripContext: &tc}, nil
}

func (s *Stages) resolveTrip(state *envelope.TurnState) envelope.TripContext {
	for _, candidate := range []string{turnText(state), historyText(state.History)} {
		if match, ok := s.catalog.BestMatch(candidate); ok {
			return envelope.TripContext{TripID: match.TripID, Confidence: scoreTier(match.Score)}
		}
	}

	if conv := state.Conversation; conv != nil {
		if id, ok := s.catalog.TripForTopic(conv.Focus.PrimaryTopic); ok {
			return envelope.TripContext{TripID: id, Confidence: focusTier(conv.Focus.Confidence).Downgrade()}
		}
	}

	return envelope.TripContext{TripID: s.opts.DefaultTripID, Confidence: envelope.ConfidenceLow}
}

// turnText joins the normalized text and the structured question texts.
func turnText(state *envelope.TurnState) string {
	parts := []string{state.Answerable.NormalizedText}
	for _, q := range state.Answerable.StructuredQuestions {
		parts = append(parts, q.Text)
	}
	return strings.Join(parts, " ")
}

// historyText joins prior user turns. It is scored only when the current turn
// names no trip.
func historyText(history []envelope.Message) string {
	var parts []string
	for _, m := range history {
		if m.Role == envelope.RoleUser && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, " ")
}

func scoreTier(score int) envelope.Confidence {
	switch {
	case score >= highScore:
		return envelope.ConfidenceHigh
	case score >= mediumScore:
		return envelope.ConfidenceMedium
	default:
		return envelope.ConfidenceLow
	}
}

func focusTier(confidence float64) envelope.Confidence {
	switch {
	case confidence >= highFocus:
		return envelope.ConfidenceHigh
	case confidence >= mediumFocus:
		return envelope.ConfidenceMedium
	default:
		return envelope.ConfidenceLow
	}
}

// Plan groups the structured questions into handler blocks.
func (s *Stages) Plan(ctx context.Context, state *envelope.TurnState) (envelope.Update, error) {
	plan := s.reasoning.Plan(ctx, state.Answerable.StructuredQuestions, state.Answerable.TripContext)
	s.logger.Debug("answer_planned",
		"envelope_id", state.EnvelopeID,
		"blocks", len(plan.AnswerBlocks),
	)
	return envelope.Update{AnswerPlan: &plan}, nil
}

// MergeHandlerOutputs is the barrier after the handler fan-out. The fan-out
// has already folded member outputs into the state by block id.
func (s *Stages) MergeHandlerOutputs(_ context.Context, state *envelope.TurnState) (envelope.Update, error) {
	facts := 0
	for _, o := range state.Answerable.HandlerOutputs {
		facts += len(o.Facts)
	}
	s.logger.Debug("handler_outputs_merged",
		"envelope_id", state.EnvelopeID,
		"outputs", len(state.Answerable.HandlerOutputs),
		"facts", facts,
	)
	return envelope.Update{}, nil
}

// Compose turns the handler facts into the answer text.
func (s *Stages) Compose(ctx context.Context, state *envelope.TurnState) (envelope.Update, error) {
	answer := s.reasoning.Compose(ctx, state.Answerable.HandlerOutputs, state.Answerable.NormalizedText)
	return envelope.Update{AnswerText: envelope.StringPtr(answer)}, nil
}

// tripFor returns the resolved trip record, or nil.
func (s *Stages) tripFor(state *envelope.TurnState) *trips.Trip {
	if state.Answerable.TripContext == nil {
		return nil
	}
	return s.catalog.Lookup(state.Answerable.TripContext.TripID)
}
