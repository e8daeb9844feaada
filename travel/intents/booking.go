package intents

import "strings"

var (
	questionPatterns = compileAll(
		`\b(what|how|when|where|why|which|who)\s+`,
		`\b(can\s+you|could\s+you|will\s+you|would\s+you|should\s+i|can\s+i|will\s+i|would\s+i)\s+`,
		`\b(tell\s+me|explain|describe|share|show)\s+`,
		`\bis\s+there|are\s+there|do\s+you|does\s+it`,
		`\?\s*$`,
	)

	hypotheticalPatterns = compileAll(
		`\bwhat\s+if\b`,
		`\bif\s+i\b`,
		`\bwill\s+i\s+get\b`,
		`\bwould\s+i\s+get\b`,
		`\bcan\s+i\s+get\b`,
		`\bshould\s+i\s+get\b`,
		`\bif\s+i\s+book\b`,
		`\bwhen\s+i\s+book\b`,
		`\bafter\s+i\s+book\b`,
	)

	bookedPatterns = compileAll(
		`\b(i|i've|i have)\s+(just\s+)?booked\b`,
		`\bjust\s+booked\b`,
		`\bbooked\s+(it|the\s+trip|the\s+package)\b`,
		`\bdone\s+booking\b`,
		`\bcompleted\s+booking\b`,
		`\bbooking\s+is\s+confirmed\b`,
		`\bpayment\s+is\s+done\b`,
		`\bpayment\s+completed\b`,
		`\bi\s+paid\b`,
		`\bpayment\s+made\b`,
	)
)

// ConcernKeywords turn a booking statement into a support request.
var ConcernKeywords = []string{
	"no update", "no response", "no reply", "no information",
	"issue", "problem", "concern", "complaint", "not received",
	"haven't received", "didn't get", "missing", "wrong", "error",
}

// IsQuestion reports whether the text is phrased as a question.
func IsQuestion(text string) bool {
	return anyPattern(questionPatterns, strings.ToLower(text))
}

// IsHypothetical reports "what if I book" style phrasing.
func IsHypothetical(text string) bool {
	return anyPattern(hypotheticalPatterns, strings.ToLower(text))
}

// HasConcern reports whether the text raises a problem.
func HasConcern(text string) bool {
	return containsAny(strings.ToLower(text), ConcernKeywords)
}

// IsBookingConfirmation reports a completed booking or payment stated as a
// fact. Questions and hypotheticals never match, nor do messages that
// also raise a concern.
func IsBookingConfirmation(text string) bool {
	if text == "" || IsQuestion(text) || IsHypothetical(text) {
		return false
	}
	return anyPattern(bookedPatterns, strings.ToLower(text)) && !HasConcern(text)
}
