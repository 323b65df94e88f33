package redis

import (
	"context"
	"fmt"
	"time"

	"orafinite-billing/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter shared by every instance using the same Redis.
type RateLimiter struct {
	client RedisClient
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(client RedisClient, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := RateLimitKey(r.prefix, key)
	count, err := r.client.Incr(ctx, k)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, k, r.window); err != nil {
			return false, err
		}
	} else if ttl, err := r.client.TTL(ctx, k); err == nil && ttl < 0 {
		// a crash between INCR and EXPIRE would otherwise leave the window open forever
		_ = r.client.Expire(ctx, k, r.window)
	}

	if count > int64(r.limit) {
		return false, nil
	}

	return true, nil
}

func RateLimitKey(prefix, key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", prefix, key)
}
