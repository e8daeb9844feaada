package session

import (
	"context"
	"fmt"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
)

// Open creates the store selected by cfg.SessionBackend.
func Open(ctx context.Context, cfg *config.CoreConfig) (Store, error) {
	switch cfg.SessionBackend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "sql":
		return NewSQLStore(cfg.SQLDriver, cfg.SQLDSN)
	default:
		return nil, fmt.Errorf("%w: session_backend '%s'", config.ErrInvalidConfig, cfg.SessionBackend)
	}
}
