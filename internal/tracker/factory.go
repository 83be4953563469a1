package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockalert-go/internal/config"
)

const breakerCoolDown = 30 * time.Second

// New builds the tracker selected by cfg.Backend. The returned func releases any store connection.
func New(ctx context.Context, cfg config.Tracker, log zerolog.Logger) (Tracker, func() error, error) {
	timeout := time.Duration(cfg.QueryTimeoutMs) * time.Millisecond
	var store Store
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemory(), func() error { return nil }, nil
	case "file":
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("tracker.path is required for the file backend")
		}
		store = NewFileStore(cfg.Path)
	case "postgres":
		if cfg.DSN == "" {
			return nil, nil, fmt.Errorf("tracker.dsn is required for the postgres backend")
		}
		pg, err := OpenPostgres(ctx, cfg.DSN, timeout)
		if err != nil {
			return nil, nil, err
		}
		store = NewBreaker("postgres", pg, 3, breakerCoolDown, log)
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("tracker.redis_addr is required for the redis backend")
		}
		rs, err := OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.KeyPrefix, timeout)
		if err != nil {
			return nil, nil, err
		}
		store = NewBreaker("redis", rs, 3, breakerCoolDown, log)
	default:
		return nil, nil, fmt.Errorf("unknown tracker backend %q", cfg.Backend)
	}
	p, err := NewPersistent(ctx, store, log)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	log.Info().Str("backend", cfg.Backend).Msg("tracker ready")
	return p, p.Shutdown, nil
}
