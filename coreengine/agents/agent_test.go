// Package agents tests for the stage Agent.
package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// MockLogger implements Logger for testing.
type MockLogger struct {
	infoCalls  []string
	debugCalls []string
	errorCalls []string
}

func (m *MockLogger) Info(msg string, fields ...any)  { m.infoCalls = append(m.infoCalls, msg) }
func (m *MockLogger) Debug(msg string, fields ...any) { m.debugCalls = append(m.debugCalls, msg) }
func (m *MockLogger) Warn(msg string, fields ...any)  {}
func (m *MockLogger) Error(msg string, fields ...any) { m.errorCalls = append(m.errorCalls, msg) }
func (m *MockLogger) Bind(fields ...any) Logger       { return m }

func partitionStage(nonSkippable ...string) StageFunc {
	return func(ctx context.Context, state *envelope.TurnState) (envelope.Update, error) {
		return envelope.Update{Partition: &envelope.PartitionedQuestions{NonSkippable: nonSkippable}}, nil
	}
}

func partitionConfig() *config.StageConfig {
	return &config.StageConfig{
		Name: "partition",
		RoutingRules: []config.RoutingRule{
			{Condition: envelope.SignalHasNonSkippable, Value: true, Target: "structure"},
		},
		DefaultNext: "skippable",
	}
}

// =============================================================================
// CONSTRUCTION TESTS
// =============================================================================

func TestNewAgent(t *testing.T) {
	logger := &MockLogger{}

	t.Run("valid stage", func(t *testing.T) {
		agent, err := NewAgent(partitionConfig(), logger, partitionStage())
		require.NoError(t, err)
		assert.Equal(t, "partition", agent.Name)
	})

	t.Run("fan-out has no work", func(t *testing.T) {
		cfg := &config.StageConfig{Name: "handlers", Kind: config.StageKindFanOut, Members: []string{"a"}, DefaultNext: "end"}
		_, err := NewAgent(cfg, logger, partitionStage())
		require.Error(t, err)
	})

	t.Run("missing stage function", func(t *testing.T) {
		_, err := NewAgent(partitionConfig(), logger, nil)
		require.Error(t, err)
	})
}

// =============================================================================
// PROCESS TESTS
// =============================================================================

func TestAgentProcessRouting(t *testing.T) {
	tests := []struct {
		name         string
		nonSkippable []string
		wantNext     string
	}{
		{"answerable questions go to structure", []string{"q1"}, "structure"},
		{"nothing answerable goes to skippable", nil, "skippable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &MockLogger{}
			agent, err := NewAgent(partitionConfig(), logger, partitionStage(tt.nonSkippable...))
			require.NoError(t, err)

			state := envelope.NewTurnState("s", "text")
			update, err := agent.Process(context.Background(), state)
			require.NoError(t, err)

			assert.NotNil(t, update.Partition)
			assert.Equal(t, tt.wantNext, state.CurrentStage)
			require.Len(t, state.ProcessingHistory, 1)
			assert.Equal(t, "success", state.ProcessingHistory[0].Status)
			assert.Contains(t, logger.infoCalls, "partition_completed")
		})
	}
}

func TestAgentProcessDefaultsToEnd(t *testing.T) {
	agent, err := NewAgent(&config.StageConfig{Name: "post"}, &MockLogger{}, func(ctx context.Context, s *envelope.TurnState) (envelope.Update, error) {
		return envelope.Update{NextAction: envelope.ActionEnd}, nil
	})
	require.NoError(t, err)

	state := envelope.NewTurnState("s", "t")
	_, err = agent.Process(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, config.EndStage, state.CurrentStage)
	assert.Equal(t, envelope.ActionEnd, state.NextAction)
}

func TestAgentProcessError(t *testing.T) {
	failing := func(ctx context.Context, s *envelope.TurnState) (envelope.Update, error) {
		return envelope.Update{NextAction: envelope.ActionEnd}, errors.New("boom")
	}

	t.Run("without error route", func(t *testing.T) {
		logger := &MockLogger{}
		agent, err := NewAgent(&config.StageConfig{Name: "compose"}, logger, failing)
		require.NoError(t, err)

		state := envelope.NewTurnState("s", "t")
		_, err = agent.Process(context.Background(), state)
		require.Error(t, err)
		assert.Empty(t, state.NextAction, "failed update must not be applied")
		require.Len(t, state.Errors, 1)
		assert.Equal(t, "compose", state.Errors[0].Stage)
		assert.Equal(t, "error", state.ProcessingHistory[0].Status)
		assert.Contains(t, logger.errorCalls, "compose_error")
	})

	t.Run("with error route", func(t *testing.T) {
		agent, err := NewAgent(&config.StageConfig{Name: "compose", ErrorNext: "merge_outputs"}, &MockLogger{}, failing)
		require.NoError(t, err)

		state := envelope.NewTurnState("s", "t")
		_, err = agent.Process(context.Background(), state)
		require.NoError(t, err)
		assert.Equal(t, "merge_outputs", state.CurrentStage)
		assert.Len(t, state.Errors, 1)
	})
}

func TestAgentProcessTimeout(t *testing.T) {
	// Test that a stage sees its configured deadline.
	var deadline time.Time
	var hasDeadline bool
	agent, err := NewAgent(&config.StageConfig{Name: "plan", TimeoutSeconds: 2}, &MockLogger{}, func(ctx context.Context, s *envelope.TurnState) (envelope.Update, error) {
		deadline, hasDeadline = ctx.Deadline()
		return envelope.Update{}, nil
	})
	require.NoError(t, err)

	_, err = agent.Process(context.Background(), envelope.NewTurnState("s", "t"))
	require.NoError(t, err)
	assert.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
}
