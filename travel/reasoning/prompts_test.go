package reasoning

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultPrompts tests that every operation has a template.
func TestDefaultPrompts(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)

	keys := []string{
		PromptClassify, PromptClassifyBatch, PromptCategorize, PromptPlan,
		PromptExtractFacts, PromptExtractFactsBatch, PromptCompose, PromptDetectIntent,
	}
	data := map[string]any{
		"question":     "  Is pickup included  ",
		"questions":    []map[string]string{{"id": "q_1", "text": "x"}},
		"trip_context": nil,
		"trip":         "{}",
		"facts":        []string{"a"},
	}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			out, err := prompts.Get(key, data)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "TASK: "+key+"\n"))
		})
	}
}

// TestPromptsTrimQuestion tests that sprig trim runs inside templates.
func TestPromptsTrimQuestion(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)

	out, err := prompts.Get(PromptClassify, map[string]any{"question": "  Is pickup included  "})
	require.NoError(t, err)
	assert.Contains(t, out, "Question: Is pickup included\n")
}

// TestPromptsErrors tests unknown keys and missing data.
func TestPromptsErrors(t *testing.T) {
	prompts, err := LoadPrompts(fstest.MapFS{
		"p/hello.tmpl":  {Data: []byte("Hello {{ .name | upper }}")},
		"p/ignored.txt": {Data: []byte("x")},
	}, "p")
	require.NoError(t, err)

	out, err := prompts.Get("hello", map[string]any{"name": "zo"})
	require.NoError(t, err)
	assert.Equal(t, "Hello ZO", out)

	_, err = prompts.Get("hello", map[string]any{})
	assert.Error(t, err)

	_, err = prompts.Get("ignored", nil)
	assert.ErrorContains(t, err, "template not found")
}

// TestLoadPromptsParseError tests that a broken template fails loading.
func TestLoadPromptsParseError(t *testing.T) {
	_, err := LoadPrompts(fstest.MapFS{"p/bad.tmpl": {Data: []byte("{{ .x ")}}, "p")
	assert.Error(t, err)
}
