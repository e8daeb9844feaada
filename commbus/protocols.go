// Package commbus is the in-process message bus. Turn outcomes are published
// as events; read-only lookups go through queries with a single handler.
package commbus

import "context"

// MessageCategory routes a message.
type MessageCategory string

const (
	// MessageCategoryEvent fans out to every subscriber.
	MessageCategoryEvent MessageCategory = "event"
	// MessageCategoryQuery goes to one handler and returns its result.
	MessageCategoryQuery MessageCategory = "query"
)

// Message is anything carried by the bus.
type Message interface {
	Category() string
}

// TypedMessage names its own routing key.
type TypedMessage interface {
	Message
	MessageType() string
}

// Query is a message that expects a response.
type Query interface {
	Message
	IsQuery()
}

// HandlerFunc handles one message. Subscribers return a nil result.
type HandlerFunc func(ctx context.Context, message Message) (any, error)

// Middleware intercepts every message. Before may return nil to drop the
// message; After may replace the result.
type Middleware interface {
	Before(ctx context.Context, message Message) (Message, error)
	After(ctx context.Context, message Message, result any, err error) (any, error)
}

// CommBus is the bus contract the turn service and servers depend on.
type CommBus interface {
	Publish(ctx context.Context, event Message) error
	QuerySync(ctx context.Context, query Query) (any, error)

	Subscribe(eventType string, handler HandlerFunc) func()
	RegisterHandler(messageType string, handler HandlerFunc) error
	AddMiddleware(middleware Middleware)

	HasHandler(messageType string) bool
	SubscriberCount(eventType string) int
	Clear()
}
