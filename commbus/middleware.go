package commbus

import (
	"context"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
)

// LoggingMiddleware logs every message at debug level and failures at warn.
type LoggingMiddleware struct {
	logger agents.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger agents.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger.Bind("component", "commbus")}
}

// Before logs message receipt.
func (m *LoggingMiddleware) Before(_ context.Context, message Message) (Message, error) {
	m.logger.Debug("message_received",
		"type", GetMessageType(message),
		"category", message.Category(),
	)
	return message, nil
}

// After logs message completion.
func (m *LoggingMiddleware) After(_ context.Context, message Message, result any, err error) (any, error) {
	if err != nil {
		m.logger.Warn("message_failed", "type", GetMessageType(message), "error", err.Error())
	} else {
		m.logger.Debug("message_completed", "type", GetMessageType(message))
	}
	return result, nil
}

var _ Middleware = (*LoggingMiddleware)(nil)
