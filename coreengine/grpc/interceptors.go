package grpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
)

// =============================================================================
// LOGGING INTERCEPTOR
// =============================================================================

// LoggingInterceptor logs the start, duration and result of each call.
func LoggingInterceptor(logger agents.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		logger.Debug("grpc_request_started",
			"method", info.FullMethod,
		)

		resp, err := handler(ctx, req)
		duration := time.Since(start)

		if err != nil {
			st, _ := status.FromError(err)
			logger.Error("grpc_request_failed",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
				"code", st.Code().String(),
				"error", err.Error(),
			)
		} else {
			logger.Debug("grpc_request_completed",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
			)
		}

		return resp, err
	}
}

// =============================================================================
// METRICS INTERCEPTOR
// =============================================================================

// MetricsInterceptor records request counts and durations by status code.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observability.RecordGRPCRequest(
			info.FullMethod,
			status.Code(err).String(),
			int(time.Since(start).Milliseconds()),
		)
		return resp, err
	}
}

// =============================================================================
// RECOVERY INTERCEPTOR
// =============================================================================

// RecoveryHandler is called when a panic is recovered.
// It receives the panic value and should return an appropriate error.
type RecoveryHandler func(p any) error

// DefaultRecoveryHandler returns an Internal error with panic details.
func DefaultRecoveryHandler(p any) error {
	return status.Errorf(codes.Internal, "panic recovered: %v", p)
}

// RecoveryInterceptor recovers from panics, logs the stack trace and returns
// the error built by handler.
func RecoveryInterceptor(logger agents.Logger, handler RecoveryHandler) grpc.UnaryServerInterceptor {
	if handler == nil {
		handler = DefaultRecoveryHandler
	}

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		grpcHandler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("grpc_panic_recovered",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", p),
					"stack", string(debug.Stack()),
				)
				err = handler(p)
			}
		}()

		return grpcHandler(ctx, req)
	}
}

// =============================================================================
// CHAIN INTERCEPTORS
// =============================================================================

// ChainUnaryInterceptors chains multiple unary interceptors together.
// Interceptors are executed in order: first interceptor wraps second, etc.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			next := chain
			chain = func(ctx context.Context, req any) (any, error) {
				return interceptor(ctx, req, info, next)
			}
		}
		return chain(ctx, req)
	}
}
