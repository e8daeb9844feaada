// Package workflow assembles the turn pipeline: the stage functions and the
// routed graph they run in.
package workflow

import (
	_ "embed"
	"fmt"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/runtime"
	"github.com/jeeves-cluster-organization/tripdesk/travel/reasoning"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
)

//go:embed pipeline.yaml
var pipelineYAML []byte

// Stage names.
const (
	StageSplit              = "split"
	StageClassify           = "classify"
	StagePartition          = "partition"
	StageStructure          = "structure"
	StageResolveTripContext = "resolve_trip_context"
	StagePlan               = "plan"
	StageLogisticsHandler   = "logistics_handler"
	StagePricingHandler     = "pricing_handler"
	StageItineraryHandler   = "itinerary_handler"
	StageMergeHandlers      = "merge_handler_outputs"
	StageCompose            = "compose"
	StageMalformed          = "malformed"
	StageForbidden          = "forbidden"
	StageHostile            = "hostile"
	StageConverge           = "converge"
	StageMergeOutputs       = "merge_outputs"
	StageInteraction        = "update_interaction_state"
	StagePostAnswer         = "post_answer_action"
)

// DefaultTripID is the trip assumed when nothing else resolves one.
const DefaultTripID = "kashmir_zo_trip_TR-4Q7QMQQJ"

// Options tunes the pipeline.
type Options struct {
	DefaultTripID     string
	RunMode           config.RunMode
	CallSummaryWindow int
}

// OptionsFromCore reads the workflow tunables from the core config.
func OptionsFromCore(cfg *config.CoreConfig) Options {
	return Options{
		DefaultTripID:     cfg.DefaultTripID,
		RunMode:           config.RunMode(cfg.HandlerRunMode),
		CallSummaryWindow: cfg.CallSummaryMessages,
	}
}

func (o Options) withDefaults() Options {
	if o.DefaultTripID == "" {
		o.DefaultTripID = DefaultTripID
	}
	if o.CallSummaryWindow <= 0 {
		o.CallSummaryWindow = 10
	}
	return o
}

// PipelineConfig returns a fresh, validated copy of the turn graph.
func PipelineConfig(mode config.RunMode) (*config.PipelineConfig, error) {
	cfg, err := config.ParsePipelineYAML(pipelineYAML)
	if err != nil {
		return nil, fmt.Errorf("load turn pipeline: %w", err)
	}
	if mode != "" {
		cfg.RunMode = mode
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Stages holds what every stage function needs.
type Stages struct {
	catalog   *trips.Catalog
	reasoning reasoning.Capability
	opts      Options
	logger    agents.Logger
}

// NewStages creates the stage set.
func NewStages(catalog *trips.Catalog, capability reasoning.Capability, opts Options, logger agents.Logger) *Stages {
	return &Stages{
		catalog:   catalog,
		reasoning: capability,
		opts:      opts.withDefaults(),
		logger:    logger.Bind("component", "workflow"),
	}
}

// Funcs maps every task stage of the graph to its function.
func (s *Stages) Funcs() map[string]agents.StageFunc {
	return map[string]agents.StageFunc{
		StageSplit:              s.Split,
		StageClassify:           s.Classify,
		StagePartition:          s.Partition,
		StageStructure:          s.Structure,
		StageResolveTripContext: s.ResolveTripContext,
		StagePlan:               s.Plan,
		StageLogisticsHandler:   s.handler(logisticsHandler),
		StagePricingHandler:     s.handler(pricingHandler),
		StageItineraryHandler:   s.handler(itineraryHandler),
		StageMergeHandlers:      s.MergeHandlerOutputs,
		StageCompose:            s.Compose,
		StageMalformed:          s.Malformed,
		StageForbidden:          s.Forbidden,
		StageHostile:            s.Hostile,
		StageConverge:           s.Converge,
		StageMergeOutputs:       s.MergeOutputs,
		StageInteraction:        s.UpdateInteractionState,
		StagePostAnswer:         s.PostAnswerAction,
	}
}

// Build assembles the runnable turn pipeline.
func Build(catalog *trips.Catalog, capability reasoning.Capability, opts Options, logger agents.Logger) (*runtime.PipelineRunner, error) {
	cfg, err := PipelineConfig(opts.RunMode)
	if err != nil {
		return nil, err
	}
	stages := NewStages(catalog, capability, opts, logger)
	return runtime.NewPipelineRunner(cfg, stages.Funcs(), logger)
}
