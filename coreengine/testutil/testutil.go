// Package testutil provides shared test utilities and mocks.
//
// All mocks in this package are designed for testing the pipeline components
// in isolation without requiring external dependencies.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

// =============================================================================
// MOCK LLM PROVIDER
// =============================================================================

// MockLLMProvider implements agents.LLMProvider for testing.
// Configure responses by prompt substring, prompt prefix, or DefaultResponse.
type MockLLMProvider struct {
	// Matchers are checked in order; the first whose Contains appears in
	// the prompt wins.
	Matchers []ResponseMatcher

	// Responses maps prompt prefixes to responses. Longest prefix wins.
	Responses map[string]string

	// DefaultResponse is returned when nothing matches.
	DefaultResponse string

	// Delay simulates LLM latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// CallCount tracks the number of Generate calls.
	CallCount int

	// Calls records all calls for assertion.
	Calls []LLMCall

	// GenerateFunc allows custom generation logic.
	// If set, this is called instead of using Responses.
	GenerateFunc func(context.Context, string, string, map[string]any) (string, error)

	mu sync.Mutex
}

// ResponseMatcher maps a prompt substring to a response.
type ResponseMatcher struct {
	Contains string
	Response string
}

// LLMCall records a single LLM call for assertion.
type LLMCall struct {
	Model   string
	Prompt  string
	Options map[string]any
}

// NewMockLLMProvider creates a MockLLMProvider with an empty default.
func NewMockLLMProvider() *MockLLMProvider {
	return &MockLLMProvider{
		Responses: make(map[string]string),
	}
}

// Generate implements agents.LLMProvider.
func (m *MockLLMProvider) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.Calls = append(m.Calls, LLMCall{Model: model, Prompt: prompt, Options: options})
	customFunc := m.GenerateFunc
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, model, prompt, options)
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Error != nil {
		return "", m.Error
	}

	return m.match(prompt), nil
}

func (m *MockLLMProvider) match(prompt string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, matcher := range m.Matchers {
		if strings.Contains(prompt, matcher.Contains) {
			return matcher.Response
		}
	}

	prefixes := make([]string, 0, len(m.Responses))
	for prefix := range m.Responses {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, prefix := range prefixes {
		if strings.HasPrefix(prompt, prefix) {
			return m.Responses[prefix]
		}
	}

	return m.DefaultResponse
}

// WithResponse adds a prefix-based response.
func (m *MockLLMProvider) WithResponse(prefix, response string) *MockLLMProvider {
	m.Responses[prefix] = response
	return m
}

// WhenContains adds a substring-based response, checked before prefixes.
func (m *MockLLMProvider) WhenContains(substr, response string) *MockLLMProvider {
	m.Matchers = append(m.Matchers, ResponseMatcher{Contains: substr, Response: response})
	return m
}

// WithDefault sets the fallback response.
func (m *MockLLMProvider) WithDefault(response string) *MockLLMProvider {
	m.DefaultResponse = response
	return m
}

// WithError configures the mock to return an error.
func (m *MockLLMProvider) WithError(err error) *MockLLMProvider {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockLLMProvider) WithDelay(d time.Duration) *MockLLMProvider {
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockLLMProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetCalls returns a copy of recorded calls (thread-safe).
func (m *MockLLMProvider) GetCalls() []LLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]LLMCall, len(m.Calls))
	copy(copied, m.Calls)
	return copied
}

// Reset clears call history.
func (m *MockLLMProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.Calls = nil
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements agents.Logger for testing.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logs: make([]LogEntry, 0),
	}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("debug", msg, keysAndValues...)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("info", msg, keysAndValues...)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("warn", msg, keysAndValues...)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("error", msg, keysAndValues...)
}

func (m *MockLogger) Bind(fields ...any) agents.Logger {
	return m
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}

	m.Logs = append(m.Logs, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]LogEntry, len(m.Logs))
	copy(copied, m.Logs)
	return copied
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range m.Logs {
		if log.Level == level && log.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
}

// =============================================================================
// PIPELINE CONFIG HELPERS
// =============================================================================

// NewTestPipelineConfig creates a pipeline config for testing.
// Stages are created in order with linear routing (A → B → C → end).
func NewTestPipelineConfig(name string, stages ...string) *config.PipelineConfig {
	if len(stages) == 0 {
		stages = []string{"stageA", "stageB", "stageC"}
	}

	cfg := config.NewPipelineConfig(name)
	cfg.Entry = stages[0]
	for i, stage := range stages {
		next := config.EndStage
		if i < len(stages)-1 {
			next = stages[i+1]
		}
		cfg.Stages = append(cfg.Stages, &config.StageConfig{Name: stage, DefaultNext: next})
	}
	return cfg
}

// NewFanOutPipelineConfig creates entry → fan-out(members) → barrier → end.
func NewFanOutPipelineConfig(name string, mode config.RunMode, members ...string) *config.PipelineConfig {
	cfg := config.NewPipelineConfig(name)
	cfg.Entry = "entry"
	cfg.RunMode = mode
	cfg.Stages = append(cfg.Stages,
		&config.StageConfig{Name: "entry", DefaultNext: "fan_out"},
		&config.StageConfig{Name: "fan_out", Kind: config.StageKindFanOut, Members: members, DefaultNext: "barrier"},
	)
	for _, m := range members {
		cfg.Stages = append(cfg.Stages, &config.StageConfig{Name: m})
	}
	cfg.Stages = append(cfg.Stages, &config.StageConfig{Name: "barrier", DefaultNext: config.EndStage})
	return cfg
}

// NoopStage returns a stage function producing no update.
func NoopStage() agents.StageFunc {
	return func(ctx context.Context, state *envelope.TurnState) (envelope.Update, error) {
		return envelope.Update{}, nil
	}
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// NewTestTurnState creates a TurnState with a fixed session id.
func NewTestTurnState(rawText string) *envelope.TurnState {
	return envelope.NewTurnState("test-session", rawText)
}

// NewTestHistory builds alternating user/assistant messages stamped one
// minute apart, ending at end.
func NewTestHistory(end time.Time, contents ...string) []envelope.Message {
	out := make([]envelope.Message, len(contents))
	for i, content := range contents {
		role := envelope.RoleUser
		if i%2 == 1 {
			role = envelope.RoleAssistant
		}
		ts := end.Add(-time.Duration(len(contents)-1-i) * time.Minute)
		out[i] = envelope.Message{Role: role, Content: content, Timestamp: ts.UTC().Format(time.RFC3339)}
	}
	return out
}
