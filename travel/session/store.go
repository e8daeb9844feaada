// Package session persists message history and the authoritative
// conversation state of each session.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
)

var (
	// ErrNotFound is returned when a session has no stored state.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps backend transport and database failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Store is the key-value contract behind session memory. History is an
// append-only list; state is read-modify-write.
type Store interface {
	AppendMessage(ctx context.Context, sessionID string, msg envelope.Message) error
	History(ctx context.Context, sessionID string) ([]envelope.Message, error)
	GetState(ctx context.Context, sessionID string) (*envelope.ConversationState, error)
	SaveState(ctx context.Context, sessionID string, state *envelope.ConversationState) error
	Close() error
}

// HistoryKey is the storage key of a session's message history.
func HistoryKey(sessionID string) string {
	return "history:" + sessionID
}

// StateKey is the storage key of a session's conversation state.
func StateKey(sessionID string) string {
	return "state:" + sessionID
}

func recordOp(backend, op string, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	observability.RecordSessionStoreOp(backend, op, status)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	history map[string][]envelope.Message
	states  map[string]*envelope.ConversationState
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history: make(map[string][]envelope.Message),
		states:  make(map[string]*envelope.ConversationState),
	}
}

// AppendMessage appends msg to the session history.
func (s *MemoryStore) AppendMessage(_ context.Context, sessionID string, msg envelope.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := HistoryKey(sessionID)
	s.history[key] = append(s.history[key], msg)
	recordOp("memory", "append_message", nil)
	return nil
}

// History returns a copy of the session history.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]envelope.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.history[HistoryKey(sessionID)]
	out := make([]envelope.Message, len(stored))
	copy(out, stored)
	recordOp("memory", "history", nil)
	return out, nil
}

// GetState returns a copy of the session state.
func (s *MemoryStore) GetState(_ context.Context, sessionID string) (*envelope.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[StateKey(sessionID)]
	if !ok {
		recordOp("memory", "get_state", ErrNotFound)
		return nil, ErrNotFound
	}
	recordOp("memory", "get_state", nil)
	return state.Clone(), nil
}

// SaveState stores a copy of state.
func (s *MemoryStore) SaveState(_ context.Context, sessionID string, state *envelope.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[StateKey(sessionID)] = state.Clone()
	recordOp("memory", "save_state", nil)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
