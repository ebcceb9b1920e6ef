package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"wequack/pkg/logger"
)

type RateLimitRepository interface {
	// Increment counts one hit for key in the current window and returns the
	// number of hits so far.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err)
		return 0, err
	}

	return incr.Val(), nil
}

type noopRateLimitRepository struct{}

// NewNoopRateLimitRepository never limits; used when Redis is not configured.
func NewNoopRateLimitRepository() RateLimitRepository {
	return noopRateLimitRepository{}
}

func (noopRateLimitRepository) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}
