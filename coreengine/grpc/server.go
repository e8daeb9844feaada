// Package grpc exposes the turn service over gRPC.
//
// Messages are google.protobuf.Struct on both sides so the service needs no
// generated code: the service descriptor and client below are written the
// way protoc-gen-go-grpc would emit them.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/typeutil"
	"github.com/jeeves-cluster-organization/tripdesk/travel/session"
	"github.com/jeeves-cluster-organization/tripdesk/travel/turn"
)

// TurnServiceName is the fully qualified gRPC service name.
const TurnServiceName = "tripdesk.v1.TurnService"

// Full method names.
const (
	HandleTurnMethod           = "/" + TurnServiceName + "/HandleTurn"
	GetConversationStateMethod = "/" + TurnServiceName + "/GetConversationState"
)

// TurnHandler is the turn service behind the gRPC boundary.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req turn.TurnRequest) (*turn.TurnResponse, error)
	State(ctx context.Context, sessionID string) (*envelope.ConversationState, error)
}

// TurnServiceServer is the server API of TurnService.
type TurnServiceServer interface {
	HandleTurn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetConversationState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// TurnServer implements TurnServiceServer over a TurnHandler.
type TurnServer struct {
	turns  TurnHandler
	logger agents.Logger
}

// NewTurnServer creates a new TurnServer.
func NewTurnServer(turns TurnHandler, logger agents.Logger) *TurnServer {
	return &TurnServer{turns: turns, logger: logger.Bind("component", "grpc")}
}

// =============================================================================
// Turn Operations
// =============================================================================

// HandleTurn runs one message. Request fields: session_id, raw_text and the
// optional conversation_history and conversation_state.
func (s *TurnServer) HandleTurn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	turnReq, err := decodeTurnRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := s.turns.HandleTurn(ctx, turnReq)
	if err != nil {
		if resp == nil {
			return nil, toStatus("handle_turn", err)
		}
		// The reply is still the generic fallback; the caller gets it.
		s.logger.Warn("turn_completed_with_error",
			"session_id", turnReq.SessionID,
			"error", err.Error(),
		)
	}

	out, err := structpb.NewStruct(encodeTurnResponse(resp))
	if err != nil {
		return nil, Internal("encode_turn_response", err)
	}
	return out, nil
}

// GetConversationState returns the saved state of session_id.
func (s *TurnServer) GetConversationState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID := typeutil.SafeStringDefault(req.AsMap()["session_id"], "")
	if err := validateRequired(sessionID, "session_id"); err != nil {
		return nil, err
	}

	state, err := s.turns.State(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, NotFound("session", sessionID)
		}
		return nil, toStatus("get_conversation_state", err)
	}

	out, err := structpb.NewStruct(typeutil.EncodeConversationState(state))
	if err != nil {
		return nil, Internal("encode_conversation_state", err)
	}
	return out, nil
}

// =============================================================================
// Conversion Functions
// =============================================================================

func decodeTurnRequest(req *structpb.Struct) (turn.TurnRequest, error) {
	if req == nil {
		return turn.TurnRequest{}, InvalidArgument("request")
	}
	fields := req.AsMap()

	out := turn.TurnRequest{
		SessionID: typeutil.SafeStringDefault(fields["session_id"], ""),
	}
	if err := validateRequired(out.SessionID, "session_id"); err != nil {
		return out, err
	}
	raw, ok := typeutil.SafeString(fields["raw_text"])
	if !ok {
		return out, InvalidArgument("raw_text")
	}
	out.RawText = raw

	if v, present := fields["conversation_history"]; present && v != nil {
		history, err := typeutil.DecodeMessages(v)
		if err != nil {
			return out, invalidPayload(err)
		}
		out.History = history
	}
	if v, present := fields["conversation_state"]; present && v != nil {
		state, err := typeutil.DecodeConversationState(v)
		if err != nil {
			return out, invalidPayload(err)
		}
		out.State = state
	}
	return out, nil
}

func encodeTurnResponse(resp *turn.TurnResponse) map[string]any {
	out := map[string]any{
		"session_id":      resp.SessionID,
		"envelope_id":     resp.EnvelopeID,
		"final_text":      resp.FinalText,
		"trip_id":         resp.TripID,
		"confidence":      string(resp.Confidence),
		"decision_stage":  string(resp.DecisionStage),
		"escalation_flag": resp.EscalationFlag,
		"next_action":     string(resp.NextAction),
	}
	if resp.CallSummary != "" {
		out["call_summary"] = resp.CallSummary
	}
	if resp.ConversationState != nil {
		out["conversation_state"] = typeutil.EncodeConversationState(resp.ConversationState)
	}
	return out
}

// =============================================================================
// Service Descriptor
// =============================================================================

// TurnServiceDesc is the grpc.ServiceDesc of TurnService.
var TurnServiceDesc = grpc.ServiceDesc{
	ServiceName: TurnServiceName,
	HandlerType: (*TurnServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HandleTurn", Handler: handleTurnHandler},
		{MethodName: "GetConversationState", Handler: getConversationStateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tripdesk/v1/turn.proto",
}

// RegisterTurnServiceServer registers srv on s.
func RegisterTurnServiceServer(s grpc.ServiceRegistrar, srv TurnServiceServer) {
	s.RegisterService(&TurnServiceDesc, srv)
}

func handleTurnHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TurnServiceServer).HandleTurn(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HandleTurnMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TurnServiceServer).HandleTurn(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getConversationStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TurnServiceServer).GetConversationState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetConversationStateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TurnServiceServer).GetConversationState(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// =============================================================================
// Graceful Server
// =============================================================================

// GracefulServer wraps a gRPC server with graceful shutdown support.
// It listens for context cancellation and shuts down cleanly.
type GracefulServer struct {
	grpcServer      *grpc.Server
	health          *health.Server
	logger          agents.Logger
	address         string
	shutdownTimeout time.Duration
	shutdownMu      sync.Mutex
	isShutdown      bool
}

// NewGracefulServer registers TurnService and the health service. Without
// opts the standard interceptors and the otel stats handler are installed.
func NewGracefulServer(turnServer *TurnServer, address string, opts ...grpc.ServerOption) *GracefulServer {
	if len(opts) == 0 {
		opts = ServerOptions(turnServer.logger)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterTurnServiceServer(grpcServer, turnServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(TurnServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return &GracefulServer{
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     turnServer.logger,
		address:    address,
	}
}

// WithShutdownTimeout bounds how long Serve waits for in-flight turns after
// ctx is cancelled. Zero waits indefinitely.
func (s *GracefulServer) WithShutdownTimeout(d time.Duration) *GracefulServer {
	s.shutdownTimeout = d
	return s
}

// ServerOptions creates the production server options: the standard
// interceptor chain plus the OpenTelemetry stats handler.
func ServerOptions(logger agents.Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger, nil),
			MetricsInterceptor(),
			LoggingInterceptor(logger),
		)),
	}
}

// Start starts the server and blocks until ctx is cancelled.
// When ctx is cancelled, it performs graceful shutdown.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled.
func (s *GracefulServer) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("grpc_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated",
			"reason", ctx.Err().Error(),
		)
		if s.shutdownTimeout > 0 {
			s.ShutdownWithTimeout(s.shutdownTimeout)
		} else {
			s.GracefulStop()
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// GracefulStop marks the service not serving, stops accepting new
// connections and waits for in-flight turns.
func (s *GracefulServer) GracefulStop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.health.Shutdown()
	s.logger.Info("grpc_graceful_stop_started")
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_graceful_stop_completed")
}

// ShutdownWithTimeout performs graceful shutdown with a timeout.
// If shutdown doesn't complete within timeout, it forces an immediate stop.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("grpc_graceful_shutdown_timeout",
			"timeout_ms", timeout.Milliseconds(),
		)
		s.grpcServer.Stop()
	}
}
