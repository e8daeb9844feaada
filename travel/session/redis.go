package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/envelope"
)

// RedisClient is the subset of the go-redis client the store needs. Both
// *redis.Client and test doubles satisfy it.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Close() error
}

// RedisStore keeps history as a Redis list and state as a JSON string.
type RedisStore struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisStore wraps client. A zero ttl keeps keys forever.
func NewRedisStore(client RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w: %w", addr, ErrUnavailable, err)
	}
	return NewRedisStore(client, 0), nil
}

// AppendMessage pushes msg onto the history list.
func (s *RedisStore) AppendMessage(ctx context.Context, sessionID string, msg envelope.Message) (err error) {
	defer func() { recordOp("redis", "append_message", err) }()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.client.RPush(ctx, HistoryKey(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("append history: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// History reads the full history list. Entries that fail to decode are
// skipped.
func (s *RedisStore) History(ctx context.Context, sessionID string) (_ []envelope.Message, err error) {
	defer func() { recordOp("redis", "history", err) }()

	raw, err := s.client.LRange(ctx, HistoryKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w: %w", ErrUnavailable, err)
	}
	out := make([]envelope.Message, 0, len(raw))
	for _, item := range raw {
		var msg envelope.Message
		if json.Unmarshal([]byte(item), &msg) != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// GetState reads the state, or ErrNotFound.
func (s *RedisStore) GetState(ctx context.Context, sessionID string) (_ *envelope.ConversationState, err error) {
	defer func() { recordOp("redis", "get_state", err) }()

	raw, err := s.client.Get(ctx, StateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w: %w", ErrUnavailable, err)
	}
	return decodeState(raw)
}

// SaveState writes the state.
func (s *RedisStore) SaveState(ctx context.Context, sessionID string, state *envelope.ConversationState) (err error) {
	defer func() { recordOp("redis", "save_state", err) }()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, StateKey(sessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("write state: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeState(raw []byte) (*envelope.ConversationState, error) {
	var state envelope.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if state.TopicDecay == nil {
		state.TopicDecay = make(map[string]float64)
	}
	if state.Focus.Secondary == nil {
		state.Focus.Secondary = []string{}
	}
	return &state, nil
}

var _ Store = (*RedisStore)(nil)
