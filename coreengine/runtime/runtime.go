// Package runtime provides the PipelineRunner - the routed stage graph executor.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
)

// RunMode from config package.
type RunMode = config.RunMode

const (
	RunModeSequential = config.RunModeSequential
	RunModeParallel   = config.RunModeParallel
)

// EndMarker is the stage name of the last streamed output.
const EndMarker = "__end__"

// RunOptions configures how the pipeline runs.
type RunOptions struct {
	// Mode: how fan-out members execute. Default: the pipeline's RunMode.
	Mode RunMode

	// Stream: send stage updates to a channel as they complete.
	Stream bool
}

// StageOutput is one streamed stage result.
type StageOutput struct {
	Stage  string
	Update envelope.Update
	Error  error
}

// PipelineRunner executes a validated stage graph against a TurnState.
type PipelineRunner struct {
	Config *config.PipelineConfig
	Logger agents.Logger

	agents map[string]*agents.Agent
}

// NewPipelineRunner creates a new PipelineRunner. Every task stage in the
// config needs a function in stages.
func NewPipelineRunner(
	cfg *config.PipelineConfig,
	stages map[string]agents.StageFunc,
	logger agents.Logger,
) (*PipelineRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runner := &PipelineRunner{
		Config: cfg,
		Logger: logger.Bind("pipeline", cfg.Name),
		agents: make(map[string]*agents.Agent),
	}

	if err := runner.buildAgents(stages); err != nil {
		return nil, err
	}

	return runner, nil
}

func (r *PipelineRunner) buildAgents(stages map[string]agents.StageFunc) error {
	for _, stageConfig := range r.Config.Stages {
		if stageConfig.IsFanOut() {
			continue
		}
		if stageConfig.TimeoutSeconds == 0 {
			stageConfig.TimeoutSeconds = r.Config.DefaultTimeoutSeconds
		}
		logger := r.Logger
		if group := r.Config.FanOutOf(stageConfig.Name); group != "" {
			logger = logger.Bind("fan_out", group)
		}
		agent, err := agents.NewAgent(stageConfig, logger, stages[stageConfig.Name])
		if err != nil {
			return fmt.Errorf("failed to create stage '%s': %w", stageConfig.Name, err)
		}
		r.agents[stageConfig.Name] = agent
	}

	for name := range stages {
		if r.Config.GetStage(name) == nil {
			return fmt.Errorf("stage function '%s' has no stage config", name)
		}
	}

	r.Logger.Debug("runtime_stages_built",
		"stage_count", len(r.agents),
		"stages", r.Config.GetTopologicalOrder(),
	)

	return nil
}

// =============================================================================
// EXECUTION
// =============================================================================

// Execute walks the graph from the entry stage until "end" or termination.
func (r *PipelineRunner) Execute(ctx context.Context, state *envelope.TurnState, opts RunOptions) (*envelope.TurnState, <-chan StageOutput, error) {
	if opts.Mode == "" {
		opts.Mode = r.Config.RunMode
	}
	state.CurrentStage = r.Config.Entry

	startTime := time.Now()
	r.Logger.Info("pipeline_started",
		"envelope_id", state.EnvelopeID,
		"session_id", state.SessionID,
		"mode", string(opts.Mode),
		"stream", opts.Stream,
	)

	// Each stage runs at most once in an acyclic graph.
	var outputChan chan StageOutput
	if opts.Stream {
		outputChan = make(chan StageOutput, len(r.Config.Stages)+1)
	}

	err := r.run(ctx, state, opts, outputChan)

	if outputChan != nil {
		outputChan <- StageOutput{Stage: EndMarker, Error: err}
		close(outputChan)
	}

	durationMS := int(time.Since(startTime).Milliseconds())
	status := "success"
	if err != nil {
		status = "error"
	} else if state.Terminated {
		status = "terminated"
	}
	observability.RecordPipelineExecution(r.Config.Name, status, durationMS)

	r.Logger.Info("pipeline_completed",
		"envelope_id", state.EnvelopeID,
		"final_stage", state.CurrentStage,
		"terminated", state.Terminated,
		"duration_ms", durationMS,
	)

	return state, outputChan, err
}

// Run executes the pipeline in its configured mode without streaming.
func (r *PipelineRunner) Run(ctx context.Context, state *envelope.TurnState) (*envelope.TurnState, error) {
	result, _, err := r.Execute(ctx, state, RunOptions{})
	return result, err
}

func (r *PipelineRunner) run(ctx context.Context, state *envelope.TurnState, opts RunOptions, outputChan chan StageOutput) error {
	for state.CurrentStage != config.EndStage && !state.Terminated {
		select {
		case <-ctx.Done():
			r.Logger.Info("pipeline_cancelled",
				"envelope_id", state.EnvelopeID,
				"stage", state.CurrentStage,
				"reason", ctx.Err().Error(),
			)
			state.Terminate("cancelled")
			return ctx.Err()
		default:
		}

		if r.Config.MaxStageHops > 0 && state.StageHopCount >= r.Config.MaxStageHops {
			r.Logger.Warn("pipeline_bounds_exceeded",
				"envelope_id", state.EnvelopeID,
				"hops", state.StageHopCount,
			)
			state.Terminate("max_stage_hops_exceeded")
			break
		}

		stageName := state.CurrentStage
		stage := r.Config.GetStage(stageName)
		if stage == nil {
			r.Logger.Error("pipeline_unknown_stage",
				"envelope_id", state.EnvelopeID,
				"stage", stageName,
			)
			state.Terminate(fmt.Sprintf("Unknown stage: %s", stageName))
			break
		}

		var update envelope.Update
		var err error
		if stage.IsFanOut() {
			update, err = r.runFanOut(ctx, state, stage, opts.Mode, outputChan)
		} else {
			update, err = r.agents[stageName].Process(ctx, state)
		}

		if err != nil {
			if ctx.Err() != nil {
				state.Terminate("cancelled")
				return ctx.Err()
			}
			r.Logger.Error("pipeline_stage_error",
				"envelope_id", state.EnvelopeID,
				"stage", stageName,
				"error", err.Error(),
			)
			state.Terminate(err.Error())
			return err
		}

		if outputChan != nil {
			outputChan <- StageOutput{Stage: stageName, Update: update}
		}
	}

	return nil
}
