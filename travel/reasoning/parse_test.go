package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseFacts tests lenient fact parsing.
func TestParseFacts(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
		ok       bool
	}{
		{"bare array", `["a", "b"]`, []string{"a", "b"}, true},
		{"object", `{"facts": ["a"]}`, []string{"a"}, true},
		{"fenced", "```json\n[\"a\", \" \", \"b\"]\n```", []string{"a", "b"}, true},
		{"prose around array", `Sure! ["a"] hope this helps`, []string{"a"}, true},
		{"empty array", `[]`, nil, true},
		{"no json", `I don't know`, nil, false},
		{"object without facts", `{"answer": "a"}`, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, ok := parseFacts(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, facts)
		})
	}
}

// TestParseFactsBatch tests both batch shapes.
func TestParseFactsBatch(t *testing.T) {
	ids := []string{"q_1", "q_2"}

	assert.Equal(t,
		map[string][]string{"q_1": {"a"}, "q_2": nil},
		parseFactsBatch(`{"facts": {"q_1": ["a"], "q_2": []}}`, ids))
	assert.Equal(t,
		map[string][]string{"q_2": {"b"}},
		parseFactsBatch(`{"q_2": ["b"], "q_9": ["c"]}`, ids))
	assert.Nil(t, parseFactsBatch(`nope`, ids))
}

// TestParseLabels tests id to label maps.
func TestParseLabels(t *testing.T) {
	assert.Equal(t, map[string]string{"q_1": "ANSWERABLE"}, parseLabels(`{"q_1": "ANSWERABLE"}`))
	assert.Nil(t, parseLabels(`["ANSWERABLE"]`))
	assert.Nil(t, parseLabels(``))
}
