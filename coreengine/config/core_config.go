package config

import (
	"fmt"
	"strings"
	"time"
)

// CoreConfig holds every runtime tunable of the service.
type CoreConfig struct {
	// Reasoning
	LLMModel          string `json:"llm_model" koanf:"llm_model"`
	LLMAPIKey         string `json:"-" koanf:"llm_api_key"`
	LLMBaseURL        string `json:"llm_base_url" koanf:"llm_base_url"`
	LLMTimeoutSeconds int    `json:"llm_timeout_seconds" koanf:"llm_timeout_seconds"`
	LLMMaxRetries     int    `json:"llm_max_retries" koanf:"llm_max_retries"`
	LLMRetryBaseMS    int    `json:"llm_retry_base_ms" koanf:"llm_retry_base_ms"`

	// Reasoning resilience
	BreakerFailureThreshold int `json:"breaker_failure_threshold" koanf:"breaker_failure_threshold"`
	BreakerResetSeconds     int `json:"breaker_reset_seconds" koanf:"breaker_reset_seconds"`
	ReasoningCacheSize      int `json:"reasoning_cache_size" koanf:"reasoning_cache_size"`

	// Session memory
	HistoryMaxMessages  int `json:"history_max_messages" koanf:"history_max_messages"`
	HistoryMaxGapHours  int `json:"history_max_gap_hours" koanf:"history_max_gap_hours"`
	CallSummaryMessages int `json:"call_summary_messages" koanf:"call_summary_messages"`

	// Turn rate limits per session (0 disables)
	TurnsPerMinute int `json:"turns_per_minute" koanf:"turns_per_minute"`
	TurnsPerHour   int `json:"turns_per_hour" koanf:"turns_per_hour"`

	// Workflow
	HandlerRunMode string `json:"handler_run_mode" koanf:"handler_run_mode"`
	DefaultTripID  string `json:"default_trip_id" koanf:"default_trip_id"`

	// Session store
	SessionBackend string `json:"session_backend" koanf:"session_backend"` // memory | redis | sql
	RedisAddr      string `json:"redis_addr" koanf:"redis_addr"`
	RedisPassword  string `json:"-" koanf:"redis_password"`
	RedisDB        int    `json:"redis_db" koanf:"redis_db"`
	SQLDriver      string `json:"sql_driver" koanf:"sql_driver"` // sqlite | postgres
	SQLDSN         string `json:"-" koanf:"sql_dsn"`

	// Serving
	GRPCAddr        string `json:"grpc_addr" koanf:"grpc_addr"`
	HTTPAddr        string `json:"http_addr" koanf:"http_addr"`
	TracingEndpoint string `json:"tracing_endpoint" koanf:"tracing_endpoint"`
	ServiceName     string `json:"service_name" koanf:"service_name"`
	Environment     string `json:"environment" koanf:"environment"`

	// Logging
	LogLevel  string `json:"log_level" koanf:"log_level"`
	LogFormat string `json:"log_format" koanf:"log_format"` // text | json
}

// DefaultCoreConfig returns a CoreConfig with default values.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		LLMModel:          "gpt-4o-mini",
		LLMTimeoutSeconds: 20,
		LLMMaxRetries:     2,
		LLMRetryBaseMS:    500,

		BreakerFailureThreshold: 5,
		BreakerResetSeconds:     30,
		ReasoningCacheSize:      512,

		HistoryMaxMessages:  6,
		HistoryMaxGapHours:  36,
		CallSummaryMessages: 10,

		TurnsPerMinute: 20,
		TurnsPerHour:   300,

		HandlerRunMode: string(RunModeParallel),
		DefaultTripID:  "kashmir_zo_trip_TR-4Q7QMQQJ",

		SessionBackend: "memory",
		RedisAddr:      "localhost:6379",
		SQLDriver:      "sqlite",
		SQLDSN:         "file:tripdesk.db?cache=shared",

		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		ServiceName: "tripdesk",
		Environment: "development",

		LogLevel:  "INFO",
		LogFormat: "text",
	}
}

// Validate checks enumerated and positive fields.
func (c *CoreConfig) Validate() error {
	switch RunMode(c.HandlerRunMode) {
	case RunModeParallel, RunModeSequential:
	default:
		return fmt.Errorf("%w: handler_run_mode '%s'", ErrInvalidConfig, c.HandlerRunMode)
	}
	switch c.SessionBackend {
	case "memory", "redis", "sql":
	default:
		return fmt.Errorf("%w: session_backend '%s'", ErrInvalidConfig, c.SessionBackend)
	}
	if c.SessionBackend == "sql" && c.SQLDriver != "sqlite" && c.SQLDriver != "postgres" {
		return fmt.Errorf("%w: sql_driver '%s'", ErrInvalidConfig, c.SQLDriver)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format '%s'", ErrInvalidConfig, c.LogFormat)
	}
	if c.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: llm_timeout_seconds must be positive", ErrInvalidConfig)
	}
	if c.HistoryMaxMessages <= 0 || c.HistoryMaxGapHours <= 0 {
		return fmt.Errorf("%w: history window must be positive", ErrInvalidConfig)
	}
	if c.TurnsPerMinute < 0 || c.TurnsPerHour < 0 {
		return fmt.Errorf("%w: turn rate limits must not be negative", ErrInvalidConfig)
	}
	if c.DefaultTripID == "" {
		return fmt.Errorf("%w: default_trip_id is required", ErrInvalidConfig)
	}
	return nil
}

// LLMTimeout returns the per-call reasoning timeout.
func (c *CoreConfig) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// BreakerReset returns the circuit breaker reset timeout.
func (c *CoreConfig) BreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSeconds) * time.Second
}

// HistoryMaxGap returns the recent-history gap window.
func (c *CoreConfig) HistoryMaxGap() time.Duration {
	return time.Duration(c.HistoryMaxGapHours) * time.Hour
}

// ToMap converts config to a map for startup logging. Secrets are omitted.
func (c *CoreConfig) ToMap() map[string]any {
	return map[string]any{
		"llm_model":                 c.LLMModel,
		"llm_base_url":              c.LLMBaseURL,
		"llm_timeout_seconds":       c.LLMTimeoutSeconds,
		"llm_max_retries":           c.LLMMaxRetries,
		"llm_retry_base_ms":         c.LLMRetryBaseMS,
		"breaker_failure_threshold": c.BreakerFailureThreshold,
		"breaker_reset_seconds":     c.BreakerResetSeconds,
		"reasoning_cache_size":      c.ReasoningCacheSize,
		"history_max_messages":      c.HistoryMaxMessages,
		"history_max_gap_hours":     c.HistoryMaxGapHours,
		"call_summary_messages":     c.CallSummaryMessages,
		"turns_per_minute":          c.TurnsPerMinute,
		"turns_per_hour":            c.TurnsPerHour,
		"handler_run_mode":          c.HandlerRunMode,
		"default_trip_id":           c.DefaultTripID,
		"session_backend":           c.SessionBackend,
		"redis_addr":                c.RedisAddr,
		"redis_db":                  c.RedisDB,
		"sql_driver":                c.SQLDriver,
		"grpc_addr":                 c.GRPCAddr,
		"http_addr":                 c.HTTPAddr,
		"tracing_endpoint":          c.TracingEndpoint,
		"service_name":              c.ServiceName,
		"environment":               c.Environment,
		"log_level":                 c.LogLevel,
		"log_format":                c.LogFormat,
	}
}
