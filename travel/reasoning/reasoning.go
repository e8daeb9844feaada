// Package reasoning wraps the external language model behind the operations
// the turn pipeline needs. Every operation degrades to a local rule when the
// model is unavailable, slow, or returns something unusable.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/slok/goresilience"
	resilerrors "github.com/slok/goresilience/errors"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
	"github.com/jeeves-cluster-organization/tripdesk/travel/text"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
)

// Capability is the reasoning contract consumed by the pipeline stages.
// No method returns an error: failures are absorbed by local fallbacks.
type Capability interface {
	Classify(ctx context.Context, question string) envelope.QuestionClass
	ClassifyBatch(ctx context.Context, questions []envelope.AtomicQuestion) map[string]envelope.QuestionClass
	Categorize(ctx context.Context, question string) envelope.Category
	Plan(ctx context.Context, questions []envelope.StructuredQuestion, tripCtx *envelope.TripContext) envelope.AnswerPlan
	ExtractFacts(ctx context.Context, question string, trip *trips.Trip) []string
	ExtractFactsBatch(ctx context.Context, questions []envelope.StructuredQuestion, trip *trips.Trip) map[string][]string
	Compose(ctx context.Context, outputs []envelope.HandlerOutput, original string) string
	DetectIntent(ctx context.Context, question string) string
}

var (
	errOffline     = errors.New("no language model configured")
	errUnparseable = errors.New("unparseable model output")
)

// Config tunes the Service.
type Config struct {
	Provider         string
	Model            string
	Timeout          time.Duration
	CacheSize        int
	BreakerThreshold int
	BreakerReset     time.Duration
}

// ConfigFromCore reads the reasoning tunables from the core config.
func ConfigFromCore(cfg *config.CoreConfig) Config {
	return Config{
		Provider:         "openai",
		Model:            cfg.LLMModel,
		Timeout:          cfg.LLMTimeout(),
		CacheSize:        cfg.ReasoningCacheSize,
		BreakerThreshold: cfg.BreakerFailureThreshold,
		BreakerReset:     cfg.BreakerReset(),
	}
}

// Service implements Capability on top of an agents.LLMProvider.
type Service struct {
	provider agents.LLMProvider
	prompts  agents.PromptRegistry
	cfg      Config
	runner   goresilience.Runner
	cache    *lru.Cache[string, string]
	logger   agents.Logger
}

// New creates a Service. A nil provider runs every operation on its local
// fallback.
func New(provider agents.LLMProvider, prompts agents.PromptRegistry, cfg Config, logger agents.Logger) (*Service, error) {
	if prompts == nil {
		defaults, err := DefaultPrompts()
		if err != nil {
			return nil, err
		}
		prompts = defaults
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	s := &Service{
		provider: provider,
		prompts:  prompts,
		cfg:      cfg,
		runner:   newRunner(cfg),
		logger:   logger.Bind("component", "reasoning"),
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, string](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create reasoning cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// generate renders the prompt and calls the provider through the resilience
// runner. Calls rejected by an open breaker never reach the provider.
func (s *Service) generate(ctx context.Context, key string, data map[string]any) (string, error) {
	if s.provider == nil {
		return "", errOffline
	}
	prompt, err := s.prompts.Get(key, data)
	if err != nil {
		return "", fmt.Errorf("render prompt %s: %w", key, err)
	}
	start := time.Now()
	var out string
	err = s.runner.Run(ctx, func(ctx context.Context) error {
		generated, err := s.provider.Generate(ctx, s.cfg.Model, prompt, map[string]any{"temperature": 0.0})
		if err != nil {
			return err
		}
		out = generated
		return nil
	})
	if errors.Is(err, resilerrors.ErrCircuitOpen) {
		return "", err
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordLLMCall(s.cfg.Provider, s.cfg.Model, status, int(time.Since(start).Milliseconds()))
	if err != nil {
		return "", err
	}
	return out, nil
}

// label returns a cached or freshly generated single-word answer.
func (s *Service) label(ctx context.Context, key, question string) (string, error) {
	cacheKey := key + "\x00" + question
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			return v, nil
		}
	}
	out, err := s.generate(ctx, key, map[string]any{"question": question})
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		s.cache.Add(cacheKey, out)
	}
	return out, nil
}

func (s *Service) fallback(operation string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, errOffline):
		reason = "offline"
	case errors.Is(err, resilerrors.ErrCircuitOpen):
		reason = "breaker_open"
	case errors.Is(err, resilerrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, errUnparseable):
		reason = "unparseable"
	}
	observability.RecordReasoningFallback(operation, reason)
	if reason == "offline" {
		s.logger.Debug("reasoning_fallback", "operation", operation, "reason", reason)
		return
	}
	s.logger.Warn("reasoning_fallback", "operation", operation, "reason", reason, "error", err.Error())
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify labels one atomic question.
func (s *Service) Classify(ctx context.Context, question string) envelope.QuestionClass {
	out, err := s.label(ctx, PromptClassify, question)
	if err == nil {
		if class, ok := envelope.ParseQuestionClass(out); ok {
			return class
		}
		err = errUnparseable
	}
	s.fallback(PromptClassify, err)
	return FallbackClass(question)
}

// ClassifyBatch labels every question in one model call. Items the model
// leaves out or mislabels fall back individually.
func (s *Service) ClassifyBatch(ctx context.Context, questions []envelope.AtomicQuestion) map[string]envelope.QuestionClass {
	result := make(map[string]envelope.QuestionClass, len(questions))
	if len(questions) == 0 {
		return result
	}

	var labels map[string]string
	out, err := s.generate(ctx, PromptClassifyBatch, map[string]any{"questions": questions})
	if err == nil {
		if labels = parseLabels(out); labels == nil {
			err = errUnparseable
		}
	}
	if err != nil {
		s.fallback(PromptClassifyBatch, err)
	}

	for _, q := range questions {
		if class, ok := envelope.ParseQuestionClass(labels[q.ID]); ok {
			result[q.ID] = class
			continue
		}
		result[q.ID] = FallbackClass(q.Text)
	}
	return result
}

// Categorize assigns a topical category to an answerable question.
func (s *Service) Categorize(ctx context.Context, question string) envelope.Category {
	out, err := s.label(ctx, PromptCategorize, question)
	if err == nil {
		if category, ok := envelope.ParseCategory(out); ok {
			return category
		}
		err = errUnparseable
	}
	s.fallback(PromptCategorize, err)
	return FallbackCategory(question)
}

// DetectIntent returns SEAT_AVAILABILITY, DATES or OTHER.
func (s *Service) DetectIntent(ctx context.Context, question string) string {
	out, err := s.label(ctx, PromptDetectIntent, question)
	if err == nil {
		upper := strings.ToUpper(strings.TrimSpace(out))
		for _, intent := range intentLabels {
			if strings.Contains(upper, intent) {
				return intent
			}
		}
		err = errUnparseable
	}
	s.fallback(PromptDetectIntent, err)
	return FallbackIntent(question)
}

// =============================================================================
// PLANNING
// =============================================================================

// Plan groups structured questions into answer blocks. A model plan is kept
// only when it partitions the question ids over known handlers.
func (s *Service) Plan(ctx context.Context, questions []envelope.StructuredQuestion, tripCtx *envelope.TripContext) envelope.AnswerPlan {
	if len(questions) == 0 {
		return envelope.AnswerPlan{AnswerBlocks: []envelope.AnswerBlock{}}
	}
	out, err := s.generate(ctx, PromptPlan, map[string]any{"questions": questions, "trip_context": tripCtx})
	if err == nil {
		if plan, ok := parsePlan(out, questions); ok {
			return plan
		}
		err = errUnparseable
	}
	s.fallback(PromptPlan, err)
	return FallbackPlan(questions)
}

func parsePlan(raw string, questions []envelope.StructuredQuestion) (envelope.AnswerPlan, bool) {
	doc, ok := extractJSON(raw)
	if !ok {
		return envelope.AnswerPlan{}, false
	}
	blocks := doc.Get("answer_blocks")
	if doc.IsArray() {
		blocks = doc
	}
	if !blocks.IsArray() {
		return envelope.AnswerPlan{}, false
	}

	pending := make(map[string]bool, len(questions))
	for _, q := range questions {
		pending[q.ID] = true
	}

	plan := envelope.AnswerPlan{}
	var blockIDs text.IDs
	for _, b := range blocks.Array() {
		ids, _ := stringList(b.Get("question_ids"))
		if len(ids) == 0 {
			return envelope.AnswerPlan{}, false
		}
		for _, id := range ids {
			if !pending[id] {
				return envelope.AnswerPlan{}, false
			}
			delete(pending, id)
		}
		handler := envelope.HandlerName(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(b.Get("handler").String())), "_handler"))
		if !handler.Known() {
			return envelope.AnswerPlan{}, false
		}
		style := envelope.AnswerStyle(strings.ToUpper(b.Get("answer_style").String()))
		if style != envelope.StyleHighLevel && style != envelope.StyleDetailed {
			style = styleFor(len(ids))
		}
		plan.AnswerBlocks = append(plan.AnswerBlocks, envelope.AnswerBlock{
			BlockID:     blockIDs.Block(),
			QuestionIDs: ids,
			Handler:     handler,
			AnswerStyle: style,
		})
	}
	if len(pending) > 0 {
		return envelope.AnswerPlan{}, false
	}
	return plan, true
}

// =============================================================================
// FACTS
// =============================================================================

// ExtractFacts pulls the facts answering question out of the trip record.
// Without the model it answers from the matching record sections.
func (s *Service) ExtractFacts(ctx context.Context, question string, trip *trips.Trip) []string {
	if trip == nil {
		return nil
	}
	out, err := s.generate(ctx, PromptExtractFacts, map[string]any{"question": question, "trip": trip.JSON()})
	if err == nil {
		if facts, ok := parseFacts(out); ok {
			return facts
		}
		err = errUnparseable
	}
	s.fallback(PromptExtractFacts, err)
	return LocalFacts(question, trip)
}

// ExtractFactsBatch extracts facts for several questions in one call. The
// result holds only the ids the model answered; callers extract the rest
// one at a time.
func (s *Service) ExtractFactsBatch(ctx context.Context, questions []envelope.StructuredQuestion, trip *trips.Trip) map[string][]string {
	if trip == nil || len(questions) == 0 {
		return nil
	}
	out, err := s.generate(ctx, PromptExtractFactsBatch, map[string]any{"questions": questions, "trip": trip.JSON()})
	if err == nil {
		ids := make([]string, len(questions))
		for i, q := range questions {
			ids[i] = q.ID
		}
		if facts := parseFactsBatch(out, ids); facts != nil {
			return facts
		}
		err = errUnparseable
	}
	s.fallback(PromptExtractFactsBatch, err)
	return nil
}

// =============================================================================
// COMPOSITION
// =============================================================================

// Compose turns handler facts into one answer grounded only in those facts.
func (s *Service) Compose(ctx context.Context, outputs []envelope.HandlerOutput, original string) string {
	var facts []string
	for _, o := range outputs {
		facts = append(facts, o.Facts...)
	}
	if len(facts) == 0 {
		return FallbackCompose(outputs)
	}
	out, err := s.generate(ctx, PromptCompose, map[string]any{"facts": facts, "question": original})
	if err == nil {
		if answer := strings.TrimSpace(out); answer != "" {
			return answer
		}
		err = errUnparseable
	}
	s.fallback(PromptCompose, err)
	return FallbackCompose(outputs)
}

var _ Capability = (*Service)(nil)
