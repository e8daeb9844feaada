package reasoning

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// Prompt keys.
const (
	PromptClassify          = "classify"
	PromptClassifyBatch     = "classify_batch"
	PromptCategorize        = "categorize"
	PromptPlan              = "plan"
	PromptExtractFacts      = "extract_facts"
	PromptExtractFactsBatch = "extract_facts_batch"
	PromptCompose           = "compose"
	PromptDetectIntent      = "detect_intent"
)

// Prompts renders the embedded prompt templates. It implements
// agents.PromptRegistry.
type Prompts struct {
	templates map[string]*template.Template
}

// LoadPrompts parses every *.tmpl under dir. Templates run with sprig
// functions and fail on missing keys.
func LoadPrompts(fsys fs.FS, dir string) (*Prompts, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read prompt dir: %w", err)
	}
	p := &Prompts{templates: make(map[string]*template.Template)}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".tmpl" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		key := strings.TrimSuffix(entry.Name(), ".tmpl")
		tmpl, err := template.New(key).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", key, err)
		}
		p.templates[key] = tmpl
	}
	return p, nil
}

// DefaultPrompts returns the prompts embedded in the binary.
func DefaultPrompts() (*Prompts, error) {
	return LoadPrompts(promptFS, "prompts")
}

// Get renders the prompt named key.
func (p *Prompts) Get(key string, data map[string]any) (string, error) {
	tmpl, ok := p.templates[key]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", key, err)
	}
	return buf.String(), nil
}

var _ agents.PromptRegistry = (*Prompts)(nil)
