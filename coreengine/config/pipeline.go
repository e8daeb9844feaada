// Package config provides pipeline graph configuration and the process-wide
// runtime configuration.
package config

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// EndStage is the implicit terminal target.
const EndStage = "end"

// RunMode selects how fan-out members execute.
type RunMode string

const (
	RunModeSequential RunMode = "sequential"
	RunModeParallel   RunMode = "parallel"
)

// RoutingRule defines a conditional transition between stages.
type RoutingRule struct {
	Condition string `json:"condition" yaml:"condition"` // Named state signal to check
	Value     any    `json:"value" yaml:"value"`         // Expected value
	Target    string `json:"target" yaml:"target"`       // Next stage to route to
}

// StageKind distinguishes ordinary stages from fan-out groups.
type StageKind string

const (
	StageKindTask   StageKind = "task"
	StageKindFanOut StageKind = "fan_out"
)

// StageConfig is the declarative configuration of one stage.
//
// A fan-out stage has no work of its own. It runs its Members against the
// same snapshot, merges their updates in member order, then continues at
// DefaultNext. Members are only reachable through their fan-out.
type StageConfig struct {
	Name    string    `json:"name" yaml:"name"`
	Kind    StageKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Members []string  `json:"members,omitempty" yaml:"members,omitempty"`

	// Routing Configuration
	RoutingRules []RoutingRule `json:"routing_rules,omitempty" yaml:"routing_rules,omitempty"`
	DefaultNext  string        `json:"default_next,omitempty" yaml:"default_next,omitempty"`
	ErrorNext    string        `json:"error_next,omitempty" yaml:"error_next,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Validate validates the stage configuration on its own.
func (c *StageConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: StageConfig.Name is required", ErrInvalidConfig)
	}
	if c.Kind == "" {
		c.Kind = StageKindTask
	}
	switch c.Kind {
	case StageKindTask:
		if len(c.Members) > 0 {
			return fmt.Errorf("%w: task stage '%s' cannot declare members", ErrInvalidConfig, c.Name)
		}
	case StageKindFanOut:
		if len(c.Members) == 0 {
			return fmt.Errorf("%w: fan-out stage '%s' has no members", ErrInvalidConfig, c.Name)
		}
		if c.DefaultNext == "" {
			return fmt.Errorf("%w: fan-out stage '%s' needs default_next", ErrInvalidConfig, c.Name)
		}
	default:
		return fmt.Errorf("%w: stage '%s' has unknown kind '%s'", ErrInvalidConfig, c.Name, c.Kind)
	}
	return nil
}

// IsFanOut reports whether the stage is a fan-out group.
func (c *StageConfig) IsFanOut() bool {
	return c.Kind == StageKindFanOut
}

// targets returns every stage this one can hand control to.
func (c *StageConfig) targets() []string {
	out := make([]string, 0, len(c.RoutingRules)+2)
	for _, rule := range c.RoutingRules {
		out = append(out, rule.Target)
	}
	if c.DefaultNext != "" {
		out = append(out, c.DefaultNext)
	}
	if c.ErrorNext != "" {
		out = append(out, c.ErrorNext)
	}
	return out
}

// PipelineConfig is a routed stage graph.
type PipelineConfig struct {
	Name   string         `json:"name" yaml:"name"`
	Entry  string         `json:"entry" yaml:"entry"`
	Stages []*StageConfig `json:"stages" yaml:"stages"`

	RunMode               RunMode `json:"run_mode" yaml:"run_mode"`
	MaxStageHops          int     `json:"max_stage_hops" yaml:"max_stage_hops"`
	DefaultTimeoutSeconds int     `json:"default_timeout_seconds" yaml:"default_timeout_seconds"`

	// Computed at validation time (internal)
	topologicalOrder []string
	members          map[string]string // member -> fan-out
}

// NewPipelineConfig creates a new pipeline config with defaults.
func NewPipelineConfig(name string) *PipelineConfig {
	return &PipelineConfig{
		Name:                  name,
		Stages:                make([]*StageConfig, 0),
		RunMode:               RunModeParallel,
		MaxStageHops:          32,
		DefaultTimeoutSeconds: 60,
	}
}

// ParsePipelineYAML decodes and validates a pipeline definition.
func ParsePipelineYAML(data []byte) (*PipelineConfig, error) {
	cfg := NewPipelineConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the pipeline configuration and computes its order.
func (p *PipelineConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: PipelineConfig.Name is required", ErrInvalidConfig)
	}
	if p.RunMode == "" {
		p.RunMode = RunModeParallel
	}
	if p.RunMode != RunModeParallel && p.RunMode != RunModeSequential {
		return fmt.Errorf("%w: unknown run_mode '%s'", ErrInvalidConfig, p.RunMode)
	}

	names := make(map[string]bool)
	for _, stage := range p.Stages {
		if err := stage.Validate(); err != nil {
			return err
		}
		if names[stage.Name] {
			return fmt.Errorf("%w: duplicate stage name: %s", ErrInvalidConfig, stage.Name)
		}
		names[stage.Name] = true
	}
	if !names[p.Entry] {
		return fmt.Errorf("%w: entry stage '%s' not found", ErrInvalidConfig, p.Entry)
	}

	p.members = make(map[string]string)
	for _, stage := range p.Stages {
		if !stage.IsFanOut() {
			continue
		}
		for _, m := range stage.Members {
			member := p.GetStage(m)
			if member == nil {
				return fmt.Errorf("%w: fan-out '%s' has unknown member '%s'", ErrInvalidConfig, stage.Name, m)
			}
			if member.IsFanOut() {
				return fmt.Errorf("%w: fan-out '%s' cannot nest fan-out '%s'", ErrInvalidConfig, stage.Name, m)
			}
			if owner, ok := p.members[m]; ok {
				return fmt.Errorf("%w: stage '%s' belongs to both '%s' and '%s'", ErrInvalidConfig, m, owner, stage.Name)
			}
			p.members[m] = stage.Name
		}
	}
	if _, ok := p.members[p.Entry]; ok {
		return fmt.Errorf("%w: entry stage '%s' is a fan-out member", ErrInvalidConfig, p.Entry)
	}

	validTargets := make(map[string]bool, len(names)+1)
	for name := range names {
		validTargets[name] = true
	}
	validTargets[EndStage] = true

	for _, stage := range p.Stages {
		for _, target := range stage.targets() {
			if !validTargets[target] {
				return fmt.Errorf("%w: stage '%s' routes to unknown target '%s'", ErrInvalidConfig, stage.Name, target)
			}
			if owner, ok := p.members[target]; ok {
				return fmt.Errorf("%w: stage '%s' routes to '%s', which only runs inside '%s'", ErrInvalidConfig, stage.Name, target, owner)
			}
		}
	}

	return p.validateDAG()
}

// validateDAG computes a topological order over routing edges and rejects
// cycles.
func (p *PipelineConfig) validateDAG() error {
	adjacency := make(map[string][]string)
	inDegree := make(map[string]int)

	for _, stage := range p.Stages {
		adjacency[stage.Name] = []string{}
		inDegree[stage.Name] = 0
	}

	addEdge := func(from, to string) {
		if to == EndStage {
			return
		}
		for _, existing := range adjacency[from] {
			if existing == to {
				return
			}
		}
		adjacency[from] = append(adjacency[from], to)
		inDegree[to]++
	}

	for _, stage := range p.Stages {
		for _, target := range stage.targets() {
			addEdge(stage.Name, target)
		}
		for _, m := range stage.Members {
			addEdge(stage.Name, m)
		}
	}

	// Kahn's algorithm, seeded in declaration order for a stable result
	queue := make([]string, 0)
	for _, stage := range p.Stages {
		if inDegree[stage.Name] == 0 {
			queue = append(queue, stage.Name)
		}
	}

	p.topologicalOrder = make([]string, 0, len(p.Stages))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		p.topologicalOrder = append(p.topologicalOrder, current)

		for _, dependent := range adjacency[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(p.topologicalOrder) != len(p.Stages) {
		cycleNodes := []string{}
		for name, degree := range inDegree {
			if degree > 0 {
				cycleNodes = append(cycleNodes, name)
			}
		}
		sort.Strings(cycleNodes)
		return fmt.Errorf("%w: dependency cycle detected involving stages: %v", ErrInvalidConfig, cycleNodes)
	}

	return nil
}

// GetTopologicalOrder returns the computed topological order.
// Returns nil if validation hasn't run.
func (p *PipelineConfig) GetTopologicalOrder() []string {
	return p.topologicalOrder
}

// FanOutOf returns the fan-out stage owning a member, or "".
func (p *PipelineConfig) FanOutOf(member string) string {
	return p.members[member]
}

// GetStage gets a stage config by name.
func (p *PipelineConfig) GetStage(name string) *StageConfig {
	for _, stage := range p.Stages {
		if stage.Name == name {
			return stage
		}
	}
	return nil
}
