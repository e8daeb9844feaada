// Package turn is the invocation boundary of the assistant: one inbound
// message in, one reply out, with session memory read before and written
// after the pipeline runs.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/commbus"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/travel/rules"
	"github.com/jeeves-cluster-organization/tripdesk/travel/session"
)

// ErrMissingSession is returned when a request carries no session id.
var ErrMissingSession = errors.New("session_id is required")

// Runner executes the turn pipeline.
type Runner interface {
	Run(ctx context.Context, state *envelope.TurnState) (*envelope.TurnState, error)
}

// TurnRequest is one inbound message. A non-nil History or State replaces
// the stored one for this turn.
type TurnRequest struct {
	SessionID string                      `json:"session_id"`
	RawText   string                      `json:"raw_text"`
	History   []envelope.Message          `json:"conversation_history,omitempty"`
	State     *envelope.ConversationState `json:"conversation_state,omitempty"`
}

// TurnResponse is the reply to one inbound message.
type TurnResponse struct {
	SessionID         string                      `json:"session_id"`
	EnvelopeID        string                      `json:"envelope_id"`
	FinalText         string                      `json:"final_text"`
	TripID            string                      `json:"trip_id"`
	Confidence        envelope.Confidence         `json:"confidence"`
	DecisionStage     envelope.DecisionStage      `json:"decision_stage"`
	EscalationFlag    bool                        `json:"escalation_flag"`
	NextAction        envelope.NextAction         `json:"next_action"`
	CallSummary       string                      `json:"call_summary,omitempty"`
	ConversationState *envelope.ConversationState `json:"conversation_state,omitempty"`
}

// Options tunes the history window read at the start of a turn and the
// per-session turn rate. A zero RateLimit admits every turn.
type Options struct {
	HistoryMaxMessages int
	HistoryMaxGap      time.Duration
	RateLimit          session.RateLimitConfig
}

// OptionsFromCore reads the turn tunables from the core config.
func OptionsFromCore(cfg *config.CoreConfig) Options {
	return Options{
		HistoryMaxMessages: cfg.HistoryMaxMessages,
		HistoryMaxGap:      cfg.HistoryMaxGap(),
		RateLimit: session.RateLimitConfig{
			TurnsPerMinute: cfg.TurnsPerMinute,
			TurnsPerHour:   cfg.TurnsPerHour,
		},
	}
}

// Service runs turns. Turns of one session are serialized; turns of
// different sessions run concurrently.
type Service struct {
	runner  Runner
	memory  *session.Memory
	bus     commbus.CommBus
	locks   *session.KeyedLock
	limiter *session.RateLimiter
	opts    Options
	logger  agents.Logger
}

// NewService creates a Service. bus may be nil.
func NewService(runner Runner, memory *session.Memory, bus commbus.CommBus, opts Options, logger agents.Logger) *Service {
	if opts.HistoryMaxMessages <= 0 {
		opts.HistoryMaxMessages = 6
	}
	if opts.HistoryMaxGap <= 0 {
		opts.HistoryMaxGap = 36 * time.Hour
	}
	s := &Service{
		runner: runner,
		memory: memory,
		bus:    bus,
		locks:  session.NewKeyedLock(),
		opts:   opts,
		logger: logger.Bind("component", "turn_service"),
	}
	if opts.RateLimit.Enabled() {
		s.limiter = session.NewRateLimiter(opts.RateLimit)
	}
	return s
}

// RegisterQueries answers GetConversationState on the bus.
func (s *Service) RegisterQueries() error {
	if s.bus == nil {
		return nil
	}
	return s.bus.RegisterHandler("GetConversationState", func(ctx context.Context, msg commbus.Message) (any, error) {
		q, ok := msg.(*commbus.GetConversationState)
		if !ok {
			return nil, fmt.Errorf("unexpected query %T", msg)
		}
		return s.State(ctx, q.SessionID)
	})
}

// State returns the stored conversation state of a session.
func (s *Service) State(ctx context.Context, sessionID string) (*envelope.ConversationState, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrMissingSession
	}
	return s.memory.Store().GetState(ctx, sessionID)
}

// History returns the full stored history of a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]envelope.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrMissingSession
	}
	return s.memory.Store().History(ctx, sessionID)
}

// =============================================================================
// TURNS
// =============================================================================

// admit applies the per-session turn rate limit.
func (s *Service) admit(sessionID string) error {
	if s.limiter == nil {
		return nil
	}
	result := s.limiter.Allow(sessionID)
	if result.Allowed {
		return nil
	}
	s.logger.Warn("turn_rate_limited",
		"session_id", sessionID,
		"limit_type", result.LimitType,
		"limit", result.Limit,
		"retry_after_ms", result.RetryAfter.Milliseconds(),
	)
	return &session.RateLimitedError{
		SessionID:  sessionID,
		LimitType:  result.LimitType,
		Limit:      result.Limit,
		RetryAfter: result.RetryAfter,
	}
}

// HandleTurn runs one message through the pipeline and persists the result.
//
// A pipeline failure still produces a reply: the response carries the
// generic rephrase message and the error is returned alongside it.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, ErrMissingSession
	}
	if err := s.admit(req.SessionID); err != nil {
		return nil, err
	}
	start := time.Now()

	unlock := s.locks.Lock(req.SessionID)
	defer unlock()

	history := req.History
	if history == nil {
		recent, err := s.memory.RecentHistory(ctx, req.SessionID, s.opts.HistoryMaxMessages, s.opts.HistoryMaxGap)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		history = recent
	}

	prior := req.State
	if prior == nil {
		stored, err := s.memory.GetOrCreateState(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load conversation state: %w", err)
		}
		prior = stored
	}

	state := envelope.NewTurnState(req.SessionID, req.RawText)
	state.History = history
	state.Conversation = prior.Clone()

	result, runErr := s.runner.Run(ctx, state)
	if result == nil {
		result = state
	}
	if runErr != nil {
		s.logger.Error("turn_failed",
			"session_id", req.SessionID,
			"envelope_id", state.EnvelopeID,
			"error", runErr.Error(),
		)
		resp := fallbackResponse(req.SessionID, state.EnvelopeID)
		resp.ConversationState = prior
		return resp, fmt.Errorf("run turn pipeline: %w", runErr)
	}

	resp := s.respond(req.SessionID, result)

	if err := s.memory.AddMessage(ctx, req.SessionID, envelope.RoleUser, req.RawText); err != nil {
		return resp, fmt.Errorf("save user message: %w", err)
	}
	if err := s.memory.AddMessage(ctx, req.SessionID, envelope.RoleAssistant, resp.FinalText); err != nil {
		return resp, fmt.Errorf("save assistant message: %w", err)
	}

	next, err := s.memory.AdvanceState(ctx, req.SessionID, prior, result.Answerable.TripContext, result.Interaction)
	if err != nil {
		return resp, fmt.Errorf("save conversation state: %w", err)
	}
	resp.ConversationState = next

	s.logger.Debug("session_state_updated",
		"session_id", req.SessionID,
		"version", next.Version,
		"primary_topic", next.Focus.PrimaryTopic,
		"momentum", next.MomentumState,
	)

	s.publish(ctx, result, resp, time.Since(start))
	return resp, nil
}

func (s *Service) respond(sessionID string, result *envelope.TurnState) *TurnResponse {
	resp := fallbackResponse(sessionID, result.EnvelopeID)
	if text := result.FinalText(); text != "" {
		resp.FinalText = text
	}
	if tc := result.Answerable.TripContext; tc != nil {
		resp.TripID = tc.TripID
		resp.Confidence = tc.Confidence
	}
	if result.Interaction != nil {
		resp.DecisionStage = result.Interaction.DecisionStage
		resp.EscalationFlag = result.Interaction.EscalationFlag
	}
	if result.NextAction != "" {
		resp.NextAction = result.NextAction
	}
	resp.CallSummary = result.CallSummary
	return resp
}

// fallbackResponse is the reply used when the pipeline produced nothing.
func fallbackResponse(sessionID, envelopeID string) *TurnResponse {
	return &TurnResponse{
		SessionID:     sessionID,
		EnvelopeID:    envelopeID,
		FinalText:     rules.MergeNothing,
		TripID:        session.UnresolvedTrip,
		Confidence:    envelope.ConfidenceLow,
		DecisionStage: envelope.StageEvaluating,
		NextAction:    envelope.ActionFollowUp,
	}
}

func (s *Service) publish(ctx context.Context, result *envelope.TurnState, resp *TurnResponse, elapsed time.Duration) {
	if s.bus == nil {
		return
	}
	completed := &commbus.TurnCompleted{
		SessionID:      resp.SessionID,
		EnvelopeID:     resp.EnvelopeID,
		TripID:         resp.TripID,
		Confidence:     string(resp.Confidence),
		DecisionStage:  string(resp.DecisionStage),
		EscalationFlag: resp.EscalationFlag,
		NextAction:     string(resp.NextAction),
		DurationMS:     int(elapsed.Milliseconds()),
	}
	if err := s.bus.Publish(ctx, completed); err != nil {
		s.logger.Warn("turn_event_failed", "event", "TurnCompleted", "error", err.Error())
	}

	if !resp.EscalationFlag {
		return
	}
	reason := commbus.EscalationBoundary
	if result.CallSummary != "" {
		reason = commbus.EscalationCallRequest
	}
	escalation := &commbus.EscalationRequested{
		SessionID:   resp.SessionID,
		EnvelopeID:  resp.EnvelopeID,
		Reason:      reason,
		CallSummary: result.CallSummary,
	}
	if err := s.bus.Publish(ctx, escalation); err != nil {
		s.logger.Warn("turn_event_failed", "event", "EscalationRequested", "error", err.Error())
	}
}
