// Package agents provides the Agent - a configured stage of the turn pipeline.
package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LLMProvider is the interface for LLM providers.
type LLMProvider interface {
	Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error)
}

// Logger is the interface for logging.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// PromptRegistry is the interface for prompt lookup.
type PromptRegistry interface {
	Get(key string, data map[string]any) (string, error)
}

// StageFunc does the work of one stage. It reads the state and returns the
// partial update to apply; it must not mutate the state itself.
type StageFunc func(ctx context.Context, state *envelope.TurnState) (envelope.Update, error)

var tracer = otel.Tracer("tripdesk/agents")

// Agent wraps a StageFunc with tracing, metrics, audit history and routing.
type Agent struct {
	Config *config.StageConfig
	Name   string
	Logger Logger
	Run    StageFunc
}

// NewAgent creates a new Agent.
func NewAgent(cfg *config.StageConfig, logger Logger, run StageFunc) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsFanOut() {
		return nil, fmt.Errorf("stage '%s' is a fan-out and has no work of its own", cfg.Name)
	}
	if run == nil {
		return nil, fmt.Errorf("stage '%s' has no stage function", cfg.Name)
	}

	return &Agent{
		Config: cfg,
		Name:   cfg.Name,
		Logger: logger.Bind("stage", cfg.Name),
		Run:    run,
	}, nil
}

// Process runs the stage against the state, applies its update, and sets
// CurrentStage to the routed next stage. The applied update is returned so
// fan-out callers can merge it into another state.
func (a *Agent) Process(ctx context.Context, state *envelope.TurnState) (update envelope.Update, err error) {
	ctx, span := tracer.Start(ctx, "stage.process",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tripdesk.stage.name", a.Name),
			attribute.String("tripdesk.envelope.id", state.EnvelopeID),
			attribute.String("tripdesk.session.id", state.SessionID),
		),
	)
	defer span.End()

	startTime := time.Now()
	state.RecordStageStart(a.Name)
	a.Logger.Debug(fmt.Sprintf("%s_started", a.Name))

	defer func() {
		durationMS := int(time.Since(startTime).Milliseconds())
		span.SetAttributes(attribute.Int("duration_ms", durationMS))

		if err != nil {
			observability.RecordStageExecution(a.Name, "error", durationMS)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.Logger.Error(fmt.Sprintf("%s_error", a.Name), "error", err.Error(), "duration_ms", durationMS)
			errStr := err.Error()
			state.RecordStageComplete(a.Name, "error", &errStr)
		} else {
			observability.RecordStageExecution(a.Name, "success", durationMS)
			span.SetStatus(codes.Ok, "success")
			a.Logger.Info(fmt.Sprintf("%s_completed", a.Name), "duration_ms", durationMS, "next_stage", state.CurrentStage)
			state.RecordStageComplete(a.Name, "success", nil)
		}
	}()

	if a.Config.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.Config.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	update, err = a.Run(ctx, state)
	if err != nil {
		return envelope.Update{}, a.handleError(state, err)
	}

	if !update.IsEmpty() {
		state.Apply(update)
	}
	state.CurrentStage = a.evaluateRouting(state)
	return update, nil
}

func (a *Agent) evaluateRouting(state *envelope.TurnState) string {
	// Evaluate rules in order
	for _, rule := range a.Config.RoutingRules {
		value := state.Signal(rule.Condition)
		if value != nil && value == rule.Value {
			a.Logger.Debug(fmt.Sprintf("%s_routing", a.Name),
				"condition", rule.Condition,
				"value", value,
				"target", rule.Target,
			)
			return rule.Target
		}
	}

	if a.Config.DefaultNext != "" {
		return a.Config.DefaultNext
	}
	return config.EndStage
}

// handleError records the failure and routes to ErrorNext when configured.
func (a *Agent) handleError(state *envelope.TurnState, err error) error {
	state.RecordError(a.Name, err)

	if a.Config.ErrorNext != "" {
		state.CurrentStage = a.Config.ErrorNext
		return nil
	}
	return err
}
