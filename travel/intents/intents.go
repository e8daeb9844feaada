// Package intents holds the regex and keyword matchers that override normal
// answering: booking confirmations, call requests and decision deferrals.
// Matchers are evaluated in a fixed priority order.
package intents

import (
	"regexp"
	"strings"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

// Intent names a priority intent.
type Intent string

const (
	BookingConfirmed Intent = "booking_confirmed"
	CallRequest      Intent = "call_request"
	DecisionDeferral Intent = "decision_deferral"
)

// Input is what a matcher sees: the raw message and the prior history.
type Input struct {
	Text    string
	History []envelope.Message
}

// Matcher is one named intent check.
type Matcher struct {
	Name    Intent
	Matches func(Input) bool
}

// Priority lists the matchers in evaluation order.
var Priority = []Matcher{
	{Name: BookingConfirmed, Matches: func(in Input) bool { return IsBookingConfirmation(in.Text) }},
	{Name: CallRequest, Matches: func(in Input) bool { return IsCallRequest(in.Text) }},
	{Name: DecisionDeferral, Matches: func(in Input) bool { return IsDecisionDeferral(in.Text) }},
}

// Detect returns every matching intent in priority order.
func Detect(in Input) []Intent {
	var out []Intent
	for _, m := range Priority {
		if m.Matches(in) {
			out = append(out, m.Name)
		}
	}
	return out
}

// Has reports whether intent is in found.
func Has(found []Intent, intent Intent) bool {
	for _, f := range found {
		if f == intent {
			return true
		}
	}
	return false
}

func anyPattern(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// =============================================================================
// DECISION DEFERRAL
// =============================================================================

// DeferralKeywords mark "I'll decide later" statements.
var DeferralKeywords = []string{
	"will confirm", "confirm after", "let me think", "need time",
	"will decide", "decide later", "get back", "think about it",
	"consider", "will let you know", "confirm later", "after some time",
	"i'll confirm", "i will confirm", "confirm in", "after days",
}

// IsDecisionDeferral reports whether the customer is postponing a decision.
func IsDecisionDeferral(text string) bool {
	return text != "" && containsAny(strings.ToLower(text), DeferralKeywords)
}
