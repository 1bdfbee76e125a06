package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/veriloglab/judge-backend/internal/config"
)

// minReadTimeout keeps blocking queue reads from tripping the client's read deadline.
const minReadTimeout = 5 * time.Second

// NewRedisClient creates and validates a Redis client connection.
// Redis carries the cross-instance live channel and the scoring reconcile queue.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opt.ReadTimeout >= 0 && opt.ReadTimeout < minReadTimeout {
		opt.ReadTimeout = minReadTimeout
	}

	rdb := redis.NewClient(opt)

	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	if err := retry(ctx, log.With().Str("store", "redis").Logger(), ping); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis connected")

	return rdb, nil
}
