package session

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/z-council/backend/internal/config"
)

// Open builds the archive selected by configuration. The returned close
// function is never nil.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case "", "memory":
		return NewMemoryStore(), noop, nil
	case "redis":
		store, err := NewRedisStore(cfg.RedisURL, WithTTL(cfg.TTL))
		if err != nil {
			return nil, noop, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			return nil, noop, fmt.Errorf("redis connection failed: %w", err)
		}
		return store, store.Close, nil
	case "sqlite":
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown session store %q", cfg.Kind)
	}
}
