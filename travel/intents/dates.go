package intents

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var months = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

var (
	longDate    = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})`)
	numericDate = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)

	dateQuestionPatterns = compileAll(
		`\b(available\s+)?dates?\b`,
		`\bwhat\s+dates?\b`,
		`\bwhen\s+(is|does|will)\s+(the\s+)?(trip|journey|tour)\b`,
		`\bwhen\s+does\s+it\s+(start|begin)\b`,
		`\bschedule\b`,
		`\btiming\b`,
		`\bdeparture\s+date\b`,
		`\bstart\s+date\b`,
		`\bwhich\s+dates?\b`,
	)
)

// ExtractDate finds the first date written as "24th January 2026" or
// "2026-01-24" / "2026/1/24" and returns it as YYYY-MM-DD.
func ExtractDate(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if m := longDate.FindStringSubmatch(strings.ToLower(text)); m != nil {
		day, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%s-%02d-%02d", m[3], months[m[2]], day), true
	}
	if m := numericDate.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%s-%02d-%02d", m[1], month, day), true
	}
	return "", false
}

// IsDateQuestion reports whether the text asks about trip dates rather
// than seats.
func IsDateQuestion(text string) bool {
	return anyPattern(dateQuestionPatterns, strings.ToLower(text))
}
