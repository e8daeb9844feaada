package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordPipelineExecution(t *testing.T) {
	tests := []struct {
		name       string
		pipeline   string
		status     string
		durationMS int
	}{
		{"success pipeline", "turn", "success", 1000},
		{"error pipeline", "turn", "error", 500},
		{"terminated pipeline", "turn", "terminated", 2000},
		{"zero duration", "fast-pipeline", "success", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordPipelineExecution(tt.pipeline, tt.status, tt.durationMS)

			count := testutil.ToFloat64(pipelineExecutionsTotal.WithLabelValues(tt.pipeline, tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordStageExecution(t *testing.T) {
	tests := []struct {
		name   string
		stage  string
		status string
	}{
		{"split", "split", "success"},
		{"classify failure", "classify", "error"},
		{"handler", "pricing", "success"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(stageExecutionsTotal.WithLabelValues(tt.stage, tt.status))
			RecordStageExecution(tt.stage, tt.status, 12)
			after := testutil.ToFloat64(stageExecutionsTotal.WithLabelValues(tt.stage, tt.status))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestRecordReasoningMetrics(t *testing.T) {
	RecordLLMCall("openai", "gpt-4o-mini", "success", 800)
	RecordReasoningFallback("classify", "breaker_open")
	RecordReasoningFallback("classify", "breaker_open")

	assert.Greater(t, testutil.ToFloat64(llmCallsTotal.WithLabelValues("openai", "gpt-4o-mini", "success")), 0.0)
	assert.Equal(t, 2.0, testutil.ToFloat64(reasoningFallbacksTotal.WithLabelValues("classify", "breaker_open")))
}

func TestRecordTurnAndSessionOps(t *testing.T) {
	RecordTurn("ANSWERED")
	RecordEscalation("call_request")
	RecordSessionStoreOp("memory", "append", "success")

	assert.Greater(t, testutil.ToFloat64(turnsTotal.WithLabelValues("ANSWERED")), 0.0)
	assert.Greater(t, testutil.ToFloat64(escalationsTotal.WithLabelValues("call_request")), 0.0)
	assert.Greater(t, testutil.ToFloat64(sessionStoreOpsTotal.WithLabelValues("memory", "append", "success")), 0.0)
}

func TestRecordTransportMetrics(t *testing.T) {
	RecordGRPCRequest("/tripdesk.v1.TurnService/HandleTurn", "OK", 10)
	RecordHTTPRequest("/v1/turns", "200")

	assert.Greater(t, testutil.ToFloat64(grpcRequestsTotal.WithLabelValues("/tripdesk.v1.TurnService/HandleTurn", "OK")), 0.0)
	assert.Greater(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/v1/turns", "200")), 0.0)
}

func TestMetrics_Concurrent(t *testing.T) {
	// Test that metrics recording is thread-safe
	const goroutines = 10
	const iterations = 100

	done := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				RecordPipelineExecution("concurrent-test", "success", 100)
				RecordStageExecution("concurrent-stage", "success", 50)
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines; i++ {
		<-done
	}

	count := testutil.ToFloat64(pipelineExecutionsTotal.WithLabelValues("concurrent-test", "success"))
	assert.Equal(t, float64(goroutines*iterations), count)
}
