// Package envelope provides the typed per-turn state and the enums shared by
// every stage of the turn pipeline.
package envelope

import "strings"

// QuestionClass labels an atomic question for routing.
type QuestionClass string

const (
	// ClassAnswerable questions get a substantive answer.
	ClassAnswerable QuestionClass = "ANSWERABLE"
	// ClassForbidden questions get a boundary message (refunds, guarantees).
	ClassForbidden QuestionClass = "FORBIDDEN"
	// ClassMalformed questions get a clarification request.
	ClassMalformed QuestionClass = "MALFORMED"
	// ClassHostile questions get a tone-redirect message.
	ClassHostile QuestionClass = "HOSTILE"
)

// QuestionClasses lists every class in label-matching order.
var QuestionClasses = []QuestionClass{ClassAnswerable, ClassForbidden, ClassMalformed, ClassHostile}

// Category is the topical category of a structured question.
type Category string

const (
	CategoryLogistics Category = "LOGISTICS"
	CategoryCost      Category = "COST"
	CategoryItinerary Category = "ITINERARY"
	CategoryPolicy    Category = "POLICY"
)

// Categories lists every category in label-matching order.
var Categories = []Category{CategoryLogistics, CategoryCost, CategoryItinerary, CategoryPolicy}

// Confidence is the tier attached to a resolved trip context.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Score maps a confidence tier to the float stored in conversation focus.
// Unknown tiers map to 0.5.
func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceLow:
		return 0.3
	case ConfidenceMedium:
		return 0.6
	case ConfidenceHigh:
		return 0.9
	default:
		return 0.5
	}
}

// Downgrade returns the next lower tier. LOW stays LOW.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// HandlerName identifies a topic handler.
type HandlerName string

const (
	HandlerLogistics HandlerName = "logistics"
	HandlerPricing   HandlerName = "pricing"
	HandlerItinerary HandlerName = "itinerary"
)

// Handlers lists the topic handlers in registration order.
var Handlers = []HandlerName{HandlerLogistics, HandlerPricing, HandlerItinerary}

// Known reports whether h names a registered topic handler.
func (h HandlerName) Known() bool {
	for _, known := range Handlers {
		if h == known {
			return true
		}
	}
	return false
}

// HandlerForCategory maps a question category to the handler that owns it.
func HandlerForCategory(c Category) HandlerName {
	switch c {
	case CategoryCost, CategoryPolicy:
		return HandlerPricing
	case CategoryItinerary:
		return HandlerItinerary
	default:
		return HandlerLogistics
	}
}

// AnswerStyle controls how much detail a handler block gets.
type AnswerStyle string

const (
	StyleHighLevel AnswerStyle = "HIGH_LEVEL"
	StyleDetailed  AnswerStyle = "DETAILED"
)

// DecisionStage tracks where the customer is in their decision.
type DecisionStage string

const (
	StageEvaluating DecisionStage = "EVALUATING"
	StageAnswered   DecisionStage = "ANSWERED"
	StageEscalated  DecisionStage = "ESCALATED"
)

// NextAction is the workflow decision recorded after a turn.
type NextAction string

const (
	ActionFollowUp NextAction = "FOLLOW_UP"
	ActionConverge NextAction = "CONVERGE"
	ActionHandoff  NextAction = "HANDOFF"
	ActionEnd      NextAction = "END"
)

// Role is the author of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseQuestionClass matches a model label against the known classes. An
// exact match wins, then the first class contained in the label.
func ParseQuestionClass(label string) (QuestionClass, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, c := range QuestionClasses {
		if label == string(c) {
			return c, true
		}
	}
	for _, c := range QuestionClasses {
		if strings.Contains(label, string(c)) {
			return c, true
		}
	}
	return "", false
}

// ParseCategory matches a model label against the known categories.
func ParseCategory(label string) (Category, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, c := range Categories {
		if label == string(c) {
			return c, true
		}
	}
	for _, c := range Categories {
		if strings.Contains(label, string(c)) {
			return c, true
		}
	}
	return "", false
}
