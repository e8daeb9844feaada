package reasoning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/travel/rules"
	"github.com/jeeves-cluster-organization/tripdesk/travel/text"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
)

// Intent labels returned by DetectIntent.
const (
	IntentSeatAvailability = rules.SeatIntent
	IntentDates            = "DATES"
	IntentOther            = "OTHER"
)

var intentLabels = []string{IntentSeatAvailability, IntentDates, IntentOther}

// FallbackClass is the local classification rule set.
func FallbackClass(question string) envelope.QuestionClass {
	lowered := strings.ToLower(question)
	switch {
	case text.ContainsAny(lowered, "refund", "guarantee"):
		return envelope.ClassForbidden
	case len(strings.TrimSpace(question)) < 5:
		return envelope.ClassMalformed
	case text.ContainsAny(lowered, "stupid", "hate", "terrible"):
		return envelope.ClassHostile
	default:
		return envelope.ClassAnswerable
	}
}

// FallbackCategory is the local keyword categorizer.
func FallbackCategory(question string) envelope.Category {
	lowered := strings.ToLower(question)
	switch {
	case text.ContainsAny(lowered, "pickup", "transport", "accommodation", "hotel", "meeting point"):
		return envelope.CategoryLogistics
	case text.ContainsAny(lowered, "cost", "price", "pricing", "payment", "budget"):
		return envelope.CategoryCost
	case text.ContainsAny(lowered, "itinerary", "day", "schedule", "activities", "places to visit"):
		return envelope.CategoryItinerary
	case text.ContainsAny(lowered, "policy", "refund", "cancellation"):
		return envelope.CategoryPolicy
	default:
		return envelope.CategoryLogistics
	}
}

// FallbackPlan groups questions by category, one block per non-empty group
// in first-seen order.
func FallbackPlan(questions []envelope.StructuredQuestion) envelope.AnswerPlan {
	var order []envelope.Category
	groups := make(map[envelope.Category][]string)
	for _, q := range questions {
		if q.ID == "" {
			continue
		}
		if _, seen := groups[q.Category]; !seen {
			order = append(order, q.Category)
		}
		groups[q.Category] = append(groups[q.Category], q.ID)
	}

	plan := envelope.AnswerPlan{AnswerBlocks: make([]envelope.AnswerBlock, 0, len(order))}
	var blockIDs text.IDs
	for _, category := range order {
		ids := groups[category]
		plan.AnswerBlocks = append(plan.AnswerBlocks, envelope.AnswerBlock{
			BlockID:     blockIDs.Block(),
			QuestionIDs: ids,
			Handler:     envelope.HandlerForCategory(category),
			AnswerStyle: styleFor(len(ids)),
		})
	}
	return plan
}

func styleFor(n int) envelope.AnswerStyle {
	if n == 1 {
		return envelope.StyleHighLevel
	}
	return envelope.StyleDetailed
}

// FallbackCompose joins every fact with spaces.
func FallbackCompose(outputs []envelope.HandlerOutput) string {
	var facts []string
	for _, o := range outputs {
		facts = append(facts, o.Facts...)
	}
	if len(facts) == 0 {
		return rules.ComposeNoFacts
	}
	return strings.Join(facts, " ")
}

// FallbackIntent is used when detect_intent cannot reach the model.
func FallbackIntent(string) string {
	return IntentOther
}

// =============================================================================
// LOCAL FACTS
// =============================================================================

type factSection struct {
	keywords []string
	facts    func(t *trips.Trip) []string
}

var factSections = []factSection{
	{
		keywords: []string{"pickup", "pick up", "pick-up", "reach", "meeting", "transport", "airport", "drop"},
		facts: func(t *trips.Trip) []string {
			var out []string
			if t.PickupIncluded() {
				out = append(out, "Pickup is included in the trip.")
			} else {
				out = append(out, "Pickup is not included in the trip.")
			}
			if t.Logistics.Pickup.Notes != "" {
				out = append(out, t.Logistics.Pickup.Notes)
			}
			if t.Logistics.MeetingPoint != "" {
				out = append(out, fmt.Sprintf("The meeting point is %s.", t.Logistics.MeetingPoint))
			}
			if t.Logistics.Dropoff != "" {
				out = append(out, fmt.Sprintf("The trip drops off at %s.", t.Logistics.Dropoff))
			}
			return out
		},
	},
	{
		keywords: []string{"price", "cost", "fee", "pay", "budget", "how much"},
		facts: func(t *trips.Trip) []string {
			if t.Pricing.BasePrice == "" {
				return nil
			}
			out := []string{fmt.Sprintf("The trip price starts at %s (%s).", t.Pricing.BasePrice, t.Pricing.Currency)}
			if t.Pricing.Notes != "" {
				out = append(out, t.Pricing.Notes)
			}
			return out
		},
	},
	{
		keywords: []string{"how long", "duration", "how many days", "nights"},
		facts: func(t *trips.Trip) []string {
			if t.Duration.Days == 0 {
				return nil
			}
			return []string{fmt.Sprintf("The trip runs %d days and %d nights.", t.Duration.Days, t.Duration.Nights)}
		},
	},
	{
		keywords: []string{"itinerary", "day", "schedule", "activities", "places", "visit", "description", "about", "highlights", "features"},
		facts: func(t *trips.Trip) []string {
			var out []string
			if t.Summary.Description != "" {
				out = append(out, t.Summary.Description)
			}
			for _, d := range t.Itinerary {
				out = append(out, fmt.Sprintf("Day %d: %s.", d.Day, d.Title))
			}
			return out
		},
	},
	{
		keywords: []string{"stay", "hotel", "accommodation", "room", "sharing"},
		facts: func(t *trips.Trip) []string {
			var out []string
			for _, s := range t.Accommodation.Stays {
				out = append(out, fmt.Sprintf("In %s you stay at %s (%s).", s.Location, s.Type, s.RoomSharing))
			}
			return out
		},
	},
	{
		keywords: []string{"inclusion", "what is included", "what's included", "included in the price"},
		facts: func(t *trips.Trip) []string {
			if len(t.Inclusions) == 0 {
				return nil
			}
			return []string{"The trip includes: " + strings.Join(t.Inclusions, ", ") + "."}
		},
	},
	{
		keywords: []string{"exclusion", "not included", "excluded"},
		facts: func(t *trips.Trip) []string {
			if len(t.Exclusions) == 0 {
				return nil
			}
			return []string{"The trip does not include: " + strings.Join(t.Exclusions, ", ") + "."}
		},
	},
	{
		keywords: []string{"carry", "pack", "bring"},
		facts: func(t *trips.Trip) []string {
			groups := make([]string, 0, len(t.ThingsToCarry))
			for g := range t.ThingsToCarry {
				groups = append(groups, g)
			}
			sort.Strings(groups)
			var out []string
			for _, g := range groups {
				if items := t.ThingsToCarry[g]; len(items) > 0 {
					out = append(out, fmt.Sprintf("Things to carry (%s): %s.", strings.ReplaceAll(g, "_", " "), strings.Join(items, ", ")))
				}
			}
			return out
		},
	},
	{
		keywords: []string{"weather", "climate", "cold", "snow", "temperature", "season"},
		facts: func(t *trips.Trip) []string {
			if climate := t.Weather["climate"]; climate != "" {
				return []string{"Weather: " + climate}
			}
			return nil
		},
	},
	{
		keywords: []string{"safe", "safety", "risk"},
		facts: func(t *trips.Trip) []string {
			return append([]string(nil), t.Safety.Notes...)
		},
	},
}

// LocalFacts answers a question from the trip document without the model,
// picking sections by keyword. It returns nil when no section applies.
func LocalFacts(question string, trip *trips.Trip) []string {
	if trip == nil {
		return nil
	}
	lowered := strings.ToLower(question)
	var out []string
	seen := make(map[string]bool)
	for _, section := range factSections {
		if !text.ContainsAny(lowered, section.keywords...) {
			continue
		}
		for _, fact := range section.facts(trip) {
			if !seen[fact] {
				seen[fact] = true
				out = append(out, fact)
			}
		}
	}
	return out
}
