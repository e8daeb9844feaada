package commbus

import "fmt"

// NoHandlerError is returned when a query has no registered handler.
type NoHandlerError struct {
	MessageType string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for %s", e.MessageType)
}

// NewNoHandlerError creates a new NoHandlerError.
func NewNoHandlerError(messageType string) *NoHandlerError {
	return &NoHandlerError{MessageType: messageType}
}

// HandlerAlreadyRegisteredError is returned when a second handler is
// registered for the same query.
type HandlerAlreadyRegisteredError struct {
	MessageType string
}

func (e *HandlerAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("handler already registered for %s", e.MessageType)
}

// NewHandlerAlreadyRegisteredError creates a new HandlerAlreadyRegisteredError.
func NewHandlerAlreadyRegisteredError(messageType string) *HandlerAlreadyRegisteredError {
	return &HandlerAlreadyRegisteredError{MessageType: messageType}
}

// QueryTimeoutError is returned when a query handler outlives the bus timeout.
type QueryTimeoutError struct {
	MessageType string
	Timeout     float64
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("query %s timed out after %.2fs", e.MessageType, e.Timeout)
}

// NewQueryTimeoutError creates a new QueryTimeoutError.
func NewQueryTimeoutError(messageType string, timeout float64) *QueryTimeoutError {
	return &QueryTimeoutError{MessageType: messageType, Timeout: timeout}
}
