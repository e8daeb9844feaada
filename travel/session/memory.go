package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

// Memory layers the conversation helpers over a Store.
type Memory struct {
	store Store
	now   func() time.Time
}

// NewMemory creates a Memory over store.
func NewMemory(store Store) *Memory {
	return &Memory{store: store, now: time.Now}
}

// Store returns the underlying store.
func (m *Memory) Store() Store {
	return m.store
}

// AddMessage appends a message stamped with the current UTC time.
func (m *Memory) AddMessage(ctx context.Context, sessionID string, role envelope.Role, content string) error {
	msg := envelope.Message{
		Role:      role,
		Content:   content,
		Timestamp: m.now().UTC().Format(time.RFC3339),
	}
	return m.store.AppendMessage(ctx, sessionID, msg)
}

// RecentHistory returns up to maxMessages of the newest messages, walking
// back from the newest. The walk stops at a message with no timestamp or one
// older than maxGap; unparseable timestamps are skipped.
func (m *Memory) RecentHistory(ctx context.Context, sessionID string, maxMessages int, maxGap time.Duration) ([]envelope.Message, error) {
	history, err := m.store.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return FilterRecent(history, maxMessages, maxGap, m.now()), nil
}

// FilterRecent applies the recent-history window to history.
func FilterRecent(history []envelope.Message, maxMessages int, maxGap time.Duration, now time.Time) []envelope.Message {
	if len(history) == 0 {
		return []envelope.Message{}
	}
	if maxMessages > 0 && len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}

	kept := make([]envelope.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Timestamp == "" {
			break
		}
		ts, err := parseTimestamp(msg.Timestamp)
		if err != nil {
			continue
		}
		if now.Sub(ts) > maxGap {
			break
		}
		kept = append(kept, msg)
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// GetOrCreateState loads the session state, creating and saving a fresh
// version-zero state on first use.
func (m *Memory) GetOrCreateState(ctx context.Context, sessionID string) (*envelope.ConversationState, error) {
	state, err := m.store.GetState(ctx, sessionID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	state = envelope.NewConversationState(uuid.New().String())
	state.UpdatedAt = m.now().UTC()
	if err := m.store.SaveState(ctx, sessionID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// AdvanceState applies one turn to prev and saves the result. prev is either
// the stored state or one supplied by the caller.
func (m *Memory) AdvanceState(ctx context.Context, sessionID string, prev *envelope.ConversationState, tripCtx *envelope.TripContext, interaction *envelope.InteractionState) (*envelope.ConversationState, error) {
	next := UpdateState(prev, tripCtx, interaction, m.now())
	if err := m.store.SaveState(ctx, sessionID, next); err != nil {
		return nil, err
	}
	return next, nil
}
