package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/config"
)

// NewRedisClient creates and validates the Redis client backing the session
// store, the auth context and the archive queue.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if opt.ClientName == "" {
		opt.ClientName = "intervue-agent"
	}
	// The archive worker holds one connection in BLPOP.
	if opt.PoolSize != 0 && opt.PoolSize < 4 {
		opt.PoolSize = 4
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Str("namespace", cfg.StoreNamespace).
		Msg("Redis connected")

	return rdb, nil
}
