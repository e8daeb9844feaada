// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// PIPELINE METRICS
// =============================================================================

var (
	pipelineExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_pipeline_executions_total",
			Help: "Total number of pipeline executions",
		},
		[]string{"pipeline", "status"}, // status: success, error, terminated
	)

	pipelineDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripdesk_pipeline_duration_seconds",
			Help:    "Pipeline execution duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"pipeline"},
	)
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_stage_executions_total",
			Help: "Total number of stage executions",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripdesk_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)
)

// =============================================================================
// REASONING METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_llm_calls_total",
			Help: "Total number of language model calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripdesk_llm_duration_seconds",
			Help:    "Language model call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "model"},
	)

	reasoningFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_reasoning_fallbacks_total",
			Help: "Reasoning operations answered by the local fallback",
		},
		[]string{"operation", "reason"}, // reason: error, unparseable, breaker_open
	)
)

// =============================================================================
// TURN AND SESSION METRICS
// =============================================================================

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_turns_total",
			Help: "Completed turns by decision stage",
		},
		[]string{"decision_stage"},
	)

	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_escalations_total",
			Help: "Turns handed off to the team",
		},
		[]string{"reason"},
	)

	sessionStoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_session_store_ops_total",
			Help: "Session store operations",
		},
		[]string{"backend", "op", "status"},
	)
)

// =============================================================================
// TRANSPORT METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripdesk_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripdesk_http_requests_total",
			Help: "Total HTTP gateway requests",
		},
		[]string{"route", "code"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordPipelineExecution records pipeline execution metrics.
func RecordPipelineExecution(pipeline string, status string, durationMS int) {
	pipelineExecutionsTotal.WithLabelValues(pipeline, status).Inc()
	pipelineDurationSeconds.WithLabelValues(pipeline).Observe(float64(durationMS) / 1000.0)
}

// RecordStageExecution records stage execution metrics.
func RecordStageExecution(stage string, status string, durationMS int) {
	stageExecutionsTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordLLMCall records language model call metrics.
func RecordLLMCall(provider string, model string, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(provider, model, status).Inc()
	llmDurationSeconds.WithLabelValues(provider, model).Observe(float64(durationMS) / 1000.0)
}

// RecordReasoningFallback counts an operation answered locally.
func RecordReasoningFallback(operation string, reason string) {
	reasoningFallbacksTotal.WithLabelValues(operation, reason).Inc()
}

// RecordTurn counts a completed turn.
func RecordTurn(decisionStage string) {
	turnsTotal.WithLabelValues(decisionStage).Inc()
}

// RecordEscalation counts a turn handed off to the team.
func RecordEscalation(reason string) {
	escalationsTotal.WithLabelValues(reason).Inc()
}

// RecordSessionStoreOp counts a session store operation.
func RecordSessionStoreOp(backend, op, status string) {
	sessionStoreOpsTotal.WithLabelValues(backend, op, status).Inc()
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}

// RecordHTTPRequest counts an HTTP gateway request.
func RecordHTTPRequest(route string, code string) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}
