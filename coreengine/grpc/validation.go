package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/typeutil"
	"github.com/jeeves-cluster-organization/tripdesk/travel/session"
	"github.com/jeeves-cluster-organization/tripdesk/travel/turn"
)

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

// validateRequired returns InvalidArgument when field is blank.
func validateRequired(field, fieldName string) error {
	if strings.TrimSpace(field) == "" {
		return InvalidArgument(fieldName)
	}
	return nil
}

func invalidPayload(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// =============================================================================
// ERROR CODES
// =============================================================================

// InvalidArgument is returned for malformed or missing required fields.
func InvalidArgument(fieldName string) error {
	return status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
}

// NotFound is returned when a requested resource doesn't exist.
func NotFound(resourceType, id string) error {
	return status.Errorf(codes.NotFound, "%s not found: %s", resourceType, id)
}

// Internal wraps an unexpected failure.
func Internal(operation string, cause error) error {
	return status.Errorf(codes.Internal, "%s failed: %v", operation, cause)
}

// Unavailable is returned when a dependency such as the session store
// cannot be reached.
func Unavailable(operation string, cause error) error {
	return status.Errorf(codes.Unavailable, "%s unavailable: %v", operation, cause)
}

// toStatus maps a turn service error to a gRPC status.
func toStatus(operation string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, turn.ErrMissingSession), errors.Is(err, typeutil.ErrInvalidPayload):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, session.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, session.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, session.ErrUnavailable):
		return Unavailable(operation, err)
	default:
		return Internal(operation, err)
	}
}
