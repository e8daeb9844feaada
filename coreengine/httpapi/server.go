// Package httpapi is the JSON webhook gateway in front of the turn service.
package httpapi

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeeves-cluster-organization/tripdesk/commbus"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/typeutil"
	"github.com/jeeves-cluster-organization/tripdesk/travel/session"
	"github.com/jeeves-cluster-organization/tripdesk/travel/turn"
)

// Turns is the turn service behind the gateway.
type Turns interface {
	HandleTurn(ctx context.Context, req turn.TurnRequest) (*turn.TurnResponse, error)
	History(ctx context.Context, sessionID string) ([]envelope.Message, error)
}

// Server routes webhook requests to the turn service. Conversation state is
// read through the bus query so the gateway never touches the store.
type Server struct {
	turns  Turns
	bus    commbus.CommBus
	logger agents.Logger
}

// NewServer creates a new Server.
func NewServer(turns Turns, bus commbus.CommBus, logger agents.Logger) *Server {
	return &Server{turns: turns, bus: bus, logger: logger.Bind("component", "httpapi")}
}

// Routes builds the gin engine.
func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.observe())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	v1.POST("/turns", s.handleTurn)
	v1.GET("/sessions/:id/state", s.handleState)
	v1.GET("/sessions/:id/history", s.handleHistory)
	return engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_started", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http_server_stopping")
	return srv.Shutdown(shutdownCtx)
}

// observe records the request counter and a debug access log.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		observability.RecordHTTPRequest(route, strconv.Itoa(code))
		s.logger.Debug("http_request_completed",
			"method", c.Request.Method,
			"route", route,
			"status", code,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTurn(c *gin.Context) {
	var req turn.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	if err := validateHistory(req.History); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.turns.HandleTurn(c.Request.Context(), req)
	if err != nil {
		if resp == nil {
			s.writeError(c, err)
			return
		}
		s.logger.Warn("turn_completed_with_error",
			"session_id", req.SessionID,
			"error", err.Error(),
		)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleState(c *gin.Context) {
	result, err := s.bus.QuerySync(c.Request.Context(), &commbus.GetConversationState{SessionID: c.Param("id")})
	if err != nil {
		s.writeError(c, err)
		return
	}
	state, ok := result.(*envelope.ConversationState)
	if !ok {
		s.logger.Error("unexpected_state_result", "session_id", c.Param("id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleHistory(c *gin.Context) {
	history, err := s.turns.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "messages": history})
}

// validateHistory rejects entries the pipeline cannot attribute to a speaker.
func validateHistory(history []envelope.Message) error {
	for _, msg := range history {
		if msg.Role != envelope.RoleUser && msg.Role != envelope.RoleAssistant {
			return typeutil.ErrInvalidPayload
		}
	}
	return nil
}

func (s *Server) writeError(c *gin.Context, err error) {
	var timeout *commbus.QueryTimeoutError
	var limited *session.RateLimitedError
	switch {
	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, turn.ErrMissingSession), errors.Is(err, typeutil.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, session.ErrUnavailable), errors.As(err, &timeout):
		s.logger.Warn("http_dependency_unavailable", "path", c.Request.URL.Path, "error", err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
	default:
		s.logger.Error("http_request_failed", "path", c.Request.URL.Path, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
