package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 0), mr
}

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:session_%s?mode=memory&cache=shared", uuid.NewString())
	store, err := NewSQLStore("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStores runs the Store contract against every backend.
func TestStores(t *testing.T) {
	backends := []struct {
		name  string
		store func(t *testing.T) Store
	}{
		{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
		{"redis", func(t *testing.T) Store { s, _ := newRedisStore(t); return s }},
		{"sql", func(t *testing.T) Store { return newSQLStore(t) }},
	}

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			store := backend.store(t)

			history, err := store.History(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, history)

			_, err = store.GetState(ctx, "s1")
			assert.ErrorIs(t, err, ErrNotFound)

			msgs := []envelope.Message{
				{Role: envelope.RoleUser, Content: "Is pickup included?", Timestamp: "2026-01-10T10:00:00Z"},
				{Role: envelope.RoleAssistant, Content: "No, meet in Srinagar.", Timestamp: "2026-01-10T10:00:05Z"},
			}
			for _, m := range msgs {
				require.NoError(t, store.AppendMessage(ctx, "s1", m))
			}
			require.NoError(t, store.AppendMessage(ctx, "s2", envelope.Message{Role: envelope.RoleUser, Content: "other"}))

			history, err = store.History(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, msgs, history)

			state := envelope.NewConversationState("conv-1")
			state.Version = 3
			state.Focus = envelope.Focus{PrimaryTopic: "kashmir", Confidence: 0.9, Secondary: []string{"spiti"}}
			state.TopicDecay["kashmir"] = 0.3
			state.UpdatedAt = time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
			require.NoError(t, store.SaveState(ctx, "s1", state))

			state.Version = 4
			require.NoError(t, store.SaveState(ctx, "s1", state))

			loaded, err := store.GetState(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 4, loaded.Version)
			assert.Equal(t, "conv-1", loaded.ConversationID)
			assert.Equal(t, state.Focus, loaded.Focus)
			assert.Equal(t, map[string]float64{"kashmir": 0.3}, loaded.TopicDecay)
			assert.True(t, state.UpdatedAt.Equal(loaded.UpdatedAt))

			assert.NoError(t, store.Close())
		})
	}
}

// TestMemoryStoreCopies tests that callers cannot mutate stored state.
func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := envelope.NewConversationState("c")
	require.NoError(t, store.SaveState(ctx, "s", state))
	state.TopicDecay["x"] = 1

	loaded, err := store.GetState(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, loaded.TopicDecay)
}

// TestRedisStoreKeys tests the key layout and corrupt entries.
func TestRedisStoreKeys(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.AppendMessage(ctx, "abc", envelope.Message{Role: envelope.RoleUser, Content: "hi"}))
	require.NoError(t, store.SaveState(ctx, "abc", envelope.NewConversationState("c")))

	assert.True(t, mr.Exists("history:abc"))
	assert.True(t, mr.Exists("state:abc"))

	_, err := mr.Push("history:abc", "not json")
	require.NoError(t, err)
	history, err := store.History(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	mr.Set("state:abc", "{broken")
	_, err = store.GetState(ctx, "abc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

// TestRedisStoreUnavailable tests error propagation when redis is down.
func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.History(context.Background(), "s")
	assert.ErrorIs(t, err, ErrUnavailable)

	err = store.SaveState(context.Background(), "s", envelope.NewConversationState("c"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

// TestOpenGormRejectsUnknownDriver tests driver validation.
func TestOpenGormRejectsUnknownDriver(t *testing.T) {
	_, err := OpenGorm("mysql", "dsn")
	assert.Error(t, err)

	_, err = OpenGorm("postgres", "")
	assert.Error(t, err)
}
