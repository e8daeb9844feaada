package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/travel/rules"
	"github.com/jeeves-cluster-organization/tripdesk/travel/text"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
)

// topicHandler describes how one topic handler differs from the others.
type topicHandler struct {
	name envelope.HandlerName

	// policies runs the pricing policy table first.
	policies bool
	// rewriteGeneral turns broad trip questions into a full overview request.
	rewriteGeneral bool

	withTrip    string
	withoutTrip string
}

var (
	logisticsHandler = topicHandler{
		name:        envelope.HandlerLogistics,
		withTrip:    rules.LogisticsFallback,
		withoutTrip: rules.UnknownTripFallback,
	}
	pricingHandler = topicHandler{
		name:        envelope.HandlerPricing,
		policies:    true,
		withTrip:    rules.PricingFallback,
		withoutTrip: rules.UnknownTripFallback,
	}
	itineraryHandler = topicHandler{
		name:           envelope.HandlerItinerary,
		rewriteGeneral: true,
		withTrip:       rules.ItineraryFallback,
		withoutTrip:    rules.UnknownDestinationFallback,
	}
)

var generalTripPhrases = []string{"tell me about", "what is", "describe", "tell about", "about the"}

// fallback returns the clarify prompt used when a block yields no facts.
func (h topicHandler) fallback(trip *trips.Trip) string {
	if trip == nil {
		return h.withoutTrip
	}
	return h.withTrip
}

// handler builds the stage function of one topic handler. A handler without
// blocks returns an empty update at once so the barrier never waits on it.
func (s *Stages) handler(h topicHandler) agents.StageFunc {
	return func(ctx context.Context, state *envelope.TurnState) (envelope.Update, error) {
		blocks := state.Answerable.AnswerPlan.BlocksFor(h.name)
		if len(blocks) == 0 {
			return envelope.Update{}, nil
		}

		trip := s.tripFor(state)
		byID := make(map[string]envelope.StructuredQuestion, len(state.Answerable.StructuredQuestions))
		for _, q := range state.Answerable.StructuredQuestions {
			byID[q.ID] = q
		}

		outputs := make([]envelope.HandlerOutput, 0, len(blocks))
		for _, block := range blocks {
			facts := s.answerBlock(ctx, h, block, byID, trip)
			if len(facts) == 0 {
				facts = []string{h.fallback(trip)}
			}
			outputs = append(outputs, envelope.HandlerOutput{
				BlockID: block.BlockID,
				Facts:   facts,
			})
		}

		s.logger.Debug(fmt.Sprintf("%s_handler_completed", h.name),
			"envelope_id", state.EnvelopeID,
			"blocks", len(blocks),
		)
		return envelope.Update{HandlerOutputs: outputs}, nil
	}
}

// answerBlock answers every question of a block in question order. Rule
// tables answer first; what remains goes to the model in one batch, with
// per-question extraction for ids the batch left out.
func (s *Stages) answerBlock(
	ctx context.Context,
	h topicHandler,
	block envelope.AnswerBlock,
	byID map[string]envelope.StructuredQuestion,
	trip *trips.Trip,
) []string {
	answers := make(map[string][]string, len(block.QuestionIDs))
	var pending []envelope.StructuredQuestion

	for _, id := range block.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			continue
		}
		if answer, ok := s.ruleAnswer(ctx, h, q.Text, trip); ok {
			answers[id] = []string{answer}
			continue
		}
		if h.rewriteGeneral && trip != nil && text.ContainsAny(strings.ToLower(q.Text), generalTripPhrases...) {
			q.Text = rules.GeneralTripPrompt
		}
		pending = append(pending, q)
	}

	if len(pending) > 0 && trip != nil {
		var batch map[string][]string
		if len(pending) > 1 {
			batch = s.reasoning.ExtractFactsBatch(ctx, pending, trip)
		}
		for _, q := range pending {
			if facts, ok := batch[q.ID]; ok && len(facts) > 0 {
				answers[q.ID] = facts
				continue
			}
			answers[q.ID] = s.reasoning.ExtractFacts(ctx, q.Text, trip)
		}
	}

	var facts []string
	for _, id := range block.QuestionIDs {
		facts = append(facts, answers[id]...)
	}
	return facts
}

// ruleAnswer runs the deterministic tables in priority order: pricing
// policy, seat availability, then the empathetic table.
func (s *Stages) ruleAnswer(ctx context.Context, h topicHandler, question string, trip *trips.Trip) (string, bool) {
	if h.policies {
		if answer, ok := rules.ApplyPolicy(question); ok {
			return answer, true
		}
	}
	if answer, ok := rules.CheckSeats(ctx, trip, question, s.reasoning.DetectIntent); ok {
		return answer, true
	}
	return rules.Empathetic.Respond(question)
}
