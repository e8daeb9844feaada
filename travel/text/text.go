// Package text normalizes customer messages and splits them into atomic
// questions.
package text

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	splitPoint = regexp.MustCompile(`(?i)\?| and | what about | how about `)
)

// Normalize trims the text and collapses every whitespace run to one space.
func Normalize(s string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Split breaks normalized text on question marks and the conjunctions
// "and", "what about" and "how about". Empty fragments are dropped. When no
// fragment survives, the whole text is one question.
func Split(normalized string) []string {
	parts := splitPoint.Split(normalized, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{normalized}
	}
	return out
}

// IDs hands out short question and block ids that never repeat within one
// set. The zero value is ready to use; keep one set per turn.
type IDs struct {
	seen map[string]bool
}

// Question returns a fresh "q_" id.
func (s *IDs) Question() string { return s.next("q_") }

// Block returns a fresh "block_" id.
func (s *IDs) Block() string { return s.next("block_") }

func (s *IDs) next(prefix string) string {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for {
		id := prefix + newHex()
		if !s.seen[id] {
			s.seen[id] = true
			return id
		}
	}
}

var newHex = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SplitQuestions normalizes raw input and returns one AtomicQuestion per
// fragment, each with an id unique within the call.
func SplitQuestions(raw string) []envelope.AtomicQuestion {
	fragments := Split(Normalize(raw))
	questions := make([]envelope.AtomicQuestion, len(fragments))
	var ids IDs
	for i, f := range fragments {
		questions[i] = envelope.AtomicQuestion{ID: ids.Question(), Text: f}
	}
	return questions
}

// ContainsAny reports whether s contains any of the needles.
func ContainsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
