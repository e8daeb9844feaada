package commbus

import (
	"context"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/agents"
)

// InMemoryCommBus is the single-process CommBus.
//
// Events fan out to every subscriber concurrently and Publish waits for all
// of them. Subscriber errors are logged and never returned. Queries run their
// one handler under the bus query timeout.
type InMemoryCommBus struct {
	handlers     map[string]HandlerFunc
	subscribers  map[string][]subscription
	middleware   []Middleware
	queryTimeout time.Duration
	logger       agents.Logger
	nextID       uint64
	mu           sync.RWMutex
}

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// NewInMemoryCommBus creates a new InMemoryCommBus.
func NewInMemoryCommBus(queryTimeout time.Duration, logger agents.Logger) *InMemoryCommBus {
	return &InMemoryCommBus{
		handlers:     make(map[string]HandlerFunc),
		subscribers:  make(map[string][]subscription),
		queryTimeout: queryTimeout,
		logger:       logger.Bind("component", "commbus"),
	}
}

// =============================================================================
// MESSAGING
// =============================================================================

// Publish delivers an event to every subscriber and waits for them.
func (b *InMemoryCommBus) Publish(ctx context.Context, event Message) error {
	eventType := GetMessageType(event)

	processed, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return err
	}
	if processed == nil {
		b.logger.Debug("event_dropped", "type", eventType)
		return nil
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[eventType]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("event_unobserved", "type", eventType)
		_, _ = b.runMiddlewareAfter(ctx, event, nil, nil)
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(subs))
	for i, sub := range subs {
		wg.Add(1)
		go func(idx int, h HandlerFunc) {
			defer wg.Done()
			if _, err := h(ctx, processed); err != nil {
				errs[idx] = err
				b.logger.Warn("subscriber_failed", "type", eventType, "subscriber", idx, "error", err.Error())
			}
		}(i, sub.handler)
	}
	wg.Wait()

	var firstErr error
	for _, e := range errs {
		if e != nil {
			firstErr = e
			break
		}
	}
	_, _ = b.runMiddlewareAfter(ctx, event, nil, firstErr)
	return nil
}

// QuerySync sends a query to its handler and waits for the answer.
func (b *InMemoryCommBus) QuerySync(ctx context.Context, query Query) (any, error) {
	messageType := GetMessageType(query)

	processed, err := b.runMiddlewareBefore(ctx, query)
	if err != nil {
		return nil, err
	}
	if processed == nil {
		return nil, NewNoHandlerError(messageType)
	}

	b.mu.RLock()
	handler, exists := b.handlers[messageType]
	b.mu.RUnlock()
	if !exists {
		return nil, NewNoHandlerError(messageType)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.queryTimeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		v, e := handler(timeoutCtx, processed)
		resultCh <- result{value: v, err: e}
	}()

	select {
	case <-timeoutCtx.Done():
		err := NewQueryTimeoutError(messageType, b.queryTimeout.Seconds())
		_, _ = b.runMiddlewareAfter(ctx, query, nil, err)
		return nil, err
	case res := <-resultCh:
		finalResult, middlewareErr := b.runMiddlewareAfter(ctx, query, res.value, res.err)
		if middlewareErr != nil {
			return finalResult, middlewareErr
		}
		return finalResult, res.err
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Subscribe adds an event subscriber and returns its unsubscribe function.
func (b *InMemoryCommBus) Subscribe(eventType string, handler HandlerFunc) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// RegisterHandler registers the single handler of a query type.
func (b *InMemoryCommBus) RegisterHandler(messageType string, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[messageType]; exists {
		return NewHandlerAlreadyRegisteredError(messageType)
	}
	b.handlers[messageType] = handler
	return nil
}

// AddMiddleware appends middleware. Before hooks run in registration order,
// After hooks in reverse.
func (b *InMemoryCommBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// HasHandler reports whether a query type has a handler.
func (b *InMemoryCommBus) HasHandler(messageType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.handlers[messageType]
	return exists
}

// SubscriberCount returns the number of subscribers of an event type.
func (b *InMemoryCommBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Clear removes every handler, subscriber and middleware.
func (b *InMemoryCommBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string]HandlerFunc)
	b.subscribers = make(map[string][]subscription)
	b.middleware = nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (b *InMemoryCommBus) middlewareSnapshot() []Middleware {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Middleware(nil), b.middleware...)
}

func (b *InMemoryCommBus) runMiddlewareBefore(ctx context.Context, message Message) (Message, error) {
	current := message
	for _, mw := range b.middlewareSnapshot() {
		result, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		current = result
	}
	return current, nil
}

func (b *InMemoryCommBus) runMiddlewareAfter(ctx context.Context, message Message, result any, err error) (any, error) {
	mws := b.middlewareSnapshot()
	current := result
	for i := len(mws) - 1; i >= 0; i-- {
		afterResult, afterErr := mws[i].After(ctx, message, current, err)
		if afterErr != nil {
			err = afterErr
		}
		if afterResult != nil {
			current = afterResult
		}
	}
	return current, err
}

var _ CommBus = (*InMemoryCommBus)(nil)
