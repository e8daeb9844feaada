package rules

import "strings"

// Rule maps keywords to a canned response.
type Rule struct {
	Name     string
	Keywords []string
	Response string
}

// Matches reports whether any keyword occurs in the lowercased text.
func (r Rule) Matches(lowered string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// Table is an ordered rule list. The first matching rule wins.
type Table []Rule

// Match returns the first rule matching text.
func (t Table) Match(text string) (Rule, bool) {
	if text == "" {
		return Rule{}, false
	}
	lowered := strings.ToLower(text)
	for _, r := range t {
		if r.Matches(lowered) {
			return r, true
		}
	}
	return Rule{}, false
}

// Respond returns the response of the first matching rule.
func (t Table) Respond(text string) (string, bool) {
	r, ok := t.Match(text)
	return r.Response, ok
}

// =============================================================================
// EMPATHETIC TABLE
// =============================================================================

// Empathetic answers reassurance-seeking questions.
var Empathetic = Table{
	{
		Name: "group_size",
		Keywords: []string{
			"how many people", "how many registered", "how many participants",
			"how many travelers", "how many booked", "group size",
			"number of people", "number of participants", "people registered",
			"share how many", "can you share how many",
		},
		Response: GroupSizeReply,
	},
	{
		Name: "gender_ratio",
		Keywords: []string{
			"how many female", "how many women", "how many girls",
			"female travelers", "women travelers", "gender ratio",
			"number of female", "number of women", "female participants",
			"share how many female", "can you share how many female",
			"female count", "women count", "ratio of female",
		},
		Response: GenderRatioReply,
	},
	{
		Name: "decision_confirmation",
		Keywords: []string{
			"will confirm", "confirm after", "let me think", "need time",
			"will decide", "decide later", "get back", "think about it",
			"consider", "will let you know", "confirm later", "after some time",
			"i'll confirm", "i will confirm", "confirm in", "after days",
		},
		Response: DecisionDeferred,
	},
}

// =============================================================================
// PRICING POLICY TABLE
// =============================================================================

// PolicyRule is a pricing rule that never reaches the model. Informational
// phrasing switches a rule to its InfoResponse when one is set.
type PolicyRule struct {
	Rule
	Informational []string
	InfoResponse  string
}

// Policies is evaluated before anything else by the pricing handler.
var Policies = []PolicyRule{
	{
		Rule: Rule{
			Name:     "refund",
			Keywords: []string{"refund", "cancellation"},
			Response: RefundBoundary,
		},
		Informational: []string{"what is", "tell me", "explain", "policy", "cancellation policy"},
		InfoResponse:  RefundFullPolicy,
	},
	{
		Rule: Rule{
			Name: "discount",
			Keywords: []string{
				"discount", "offer", "deal", "promo", "coupon",
				"cheaper", "lower price", "best price", "first time",
			},
			Response: DiscountBoundary,
		},
	},
}

// ApplyPolicy returns the fixed pricing answer for a question, if any.
func ApplyPolicy(question string) (string, bool) {
	if question == "" {
		return "", false
	}
	lowered := strings.ToLower(question)
	for _, p := range Policies {
		if !p.Matches(lowered) {
			continue
		}
		if p.InfoResponse != "" && (Rule{Keywords: p.Informational}).Matches(lowered) {
			return p.InfoResponse, true
		}
		return p.Response, true
	}
	return "", false
}
