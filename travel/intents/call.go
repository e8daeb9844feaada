package intents

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

// CallKeywords mark a request to talk to a person.
var CallKeywords = []string{
	"call", "quick call", "get on a call", "can we call", "schedule a call",
	"arrange a call", "phone call", "video call", "want to call",
}

// followUpMarkers identify the assistant's call-scheduling question.
var followUpMarkers = []string{
	"arrange a call", "what you'd like to discuss on the call", "preferred time",
}

var availabilityKeywords = []string{
	"available", "free", "time", "when", "call me", "reach me",
	"morning", "afternoon", "evening", "night", "am", "pm",
	"today", "tomorrow", "week", "weekend", "between", "after", "before", "now",
}

var sentenceAvailabilityKeywords = []string{"call me", "reach me", "available", "free", "time"}

var (
	timePatterns = compileAll(
		`(?i)call\s+me\s+now`,
		`(?i)\d{1,2}\s*(am|pm)`,
		`(?i)(morning|afternoon|evening|night)`,
		`(?i)(today|tomorrow)`,
		`(?i)between\s+\d{1,2}\s*(and|to|-)\s*\d{1,2}`,
		`(?i)after\s+\d{1,2}`,
		`(?i)before\s+\d{1,2}`,
		`(?i)\bnow\b`,
	)
	sentenceBreak      = regexp.MustCompile(`[.!?]`)
	trailingPunct      = regexp.MustCompile(`[.!?]+$`)
	collapseWhitespace = regexp.MustCompile(`\s+`)
)

// IsCallRequest reports whether the text asks for a call.
func IsCallRequest(text string) bool {
	return text != "" && containsAny(strings.ToLower(text), CallKeywords)
}

// IsCallFollowUp reports whether the assistant just asked the call-scheduling
// question. History is scanned newest first and a user message ends the scan.
func IsCallFollowUp(history []envelope.Message) bool {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		switch msg.Role {
		case envelope.RoleAssistant:
			if containsAny(strings.ToLower(msg.Content), followUpMarkers) {
				return true
			}
		case envelope.RoleUser:
			return false
		}
	}
	return false
}

// CallDetails is what a follow-up reply says about the call.
type CallDetails struct {
	PreferredTime string
	Discussion    string
}

// ExtractCallDetails pulls a preferred time out of the reply. Time patterns
// are tried first; when none match, sentences mentioning availability are
// split from the rest.
func ExtractCallDetails(text string) CallDetails {
	details := CallDetails{Discussion: strings.TrimSpace(text)}
	if !containsAny(strings.ToLower(text), availabilityKeywords) {
		return details
	}

	for _, p := range timePatterns {
		loc := p.FindStringIndex(text)
		if loc == nil {
			continue
		}
		details.PreferredTime = strings.TrimSpace(text[loc[0]:loc[1]])
		rest := collapseWhitespace.ReplaceAllString(text[:loc[0]]+text[loc[1]:], " ")
		details.Discussion = strings.TrimSpace(trailingPunct.ReplaceAllString(strings.TrimSpace(rest), ""))
		return details
	}

	var discussion []string
	for _, sentence := range sentenceBreak.Split(text, -1) {
		trimmed := strings.TrimSpace(sentence)
		if containsAny(strings.ToLower(trimmed), sentenceAvailabilityKeywords) {
			if details.PreferredTime == "" {
				details.PreferredTime = trimmed
			}
			continue
		}
		if trimmed != "" {
			discussion = append(discussion, trimmed)
		}
	}
	switch {
	case len(discussion) > 0:
		details.Discussion = strings.Join(discussion, ". ")
	case details.PreferredTime == "":
		details.PreferredTime = strings.TrimSpace(text)
		details.Discussion = ""
	}
	return details
}

// BuildCallSummary renders the escalation summary: the user turns among the
// last window history messages, the current discussion points, then the
// preferred time.
func BuildCallSummary(history []envelope.Message, text string, details CallDetails, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	var parts []string
	for _, msg := range history {
		if msg.Role == envelope.RoleUser && msg.Content != "" {
			parts = append(parts, "User: "+msg.Content)
		}
	}
	switch {
	case details.Discussion != "":
		parts = append(parts, "User (Current): "+details.Discussion)
	case len(parts) == 0:
		parts = append(parts, "User (Current): "+text)
	}

	summary := strings.Join(parts, "\n")
	if details.PreferredTime == "" {
		return fmt.Sprintf("📞 CALL REQUEST SUMMARY\n\n💬 Discussion Points:\n%s\n\n⏰ Preferred Call Time: Not specified", summary)
	}
	return fmt.Sprintf("📞 CALL REQUEST SUMMARY\n\n💬 Discussion Points:\n%s\n\n⏰ Preferred Call Time: %s\n\nOur team will reach out to you at your preferred time.", summary, details.PreferredTime)
}
