package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/commbus"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/travel/reasoning"
	"github.com/jeeves-cluster-organization/tripdesk/travel/session"
	"github.com/jeeves-cluster-organization/tripdesk/travel/trips"
	"github.com/jeeves-cluster-organization/tripdesk/travel/workflow"
)

const busQueryTimeout = 5 * time.Second

// Stack is a wired Service together with the collaborators it owns.
type Stack struct {
	Service *Service
	Bus     *commbus.InMemoryCommBus
	Catalog *trips.Catalog

	store  session.Store
	detach func()
}

// Assemble wires the catalog, reasoning capability, pipeline, session store
// and event bus described by cfg. Without an API key the reasoning
// capability runs every operation on its local fallback.
func Assemble(ctx context.Context, cfg *config.CoreConfig, logger agents.Logger) (*Stack, error) {
	catalog, err := trips.Default()
	if err != nil {
		return nil, fmt.Errorf("load trip catalog: %w", err)
	}

	var provider agents.LLMProvider
	if cfg.LLMAPIKey != "" {
		p, err := reasoning.NewOpenAIProvider(reasoning.OpenAIConfigFromCore(cfg))
		if err != nil {
			return nil, fmt.Errorf("create reasoning provider: %w", err)
		}
		provider = p
	} else {
		logger.Warn("reasoning_offline", "reason", "llm_api_key not set")
	}
	capability, err := reasoning.New(provider, nil, reasoning.ConfigFromCore(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("create reasoning capability: %w", err)
	}

	runner, err := workflow.Build(catalog, capability, workflow.OptionsFromCore(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	store, err := session.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	bus := commbus.NewInMemoryCommBus(busQueryTimeout, logger)
	bus.AddMiddleware(commbus.NewLoggingMiddleware(logger))
	detach := commbus.RegisterTurnSubscribers(bus, logger)

	service := NewService(runner, session.NewMemory(store), bus, OptionsFromCore(cfg), logger)
	if err := service.RegisterQueries(); err != nil {
		detach()
		return nil, errors.Join(err, store.Close())
	}

	logger.Info("turn_stack_assembled",
		"session_backend", cfg.SessionBackend,
		"run_mode", cfg.HandlerRunMode,
		"trips", catalog.Len(),
		"online", provider != nil,
	)
	stopCleanup := service.StartCleanupLoop(DefaultCleanupConfig())
	return &Stack{
		Service: service,
		Bus:     bus,
		Catalog: catalog,
		store:   store,
		detach: func() {
			stopCleanup()
			detach()
		},
	}, nil
}

// Close stops background cleanup, detaches the event subscribers and closes
// the session store.
func (s *Stack) Close() error {
	s.detach()
	return s.store.Close()
}
