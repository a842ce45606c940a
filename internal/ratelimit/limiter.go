package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a sliding-window counter keyed by caller identity. The API
// layer uses it per tenant; it is a separate concern from the resend
// cool-down, which lives on challenge rows.
type Limiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
}

type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: "vrl",
	}
}

// Allow counts the identity into the current fixed window and reports
// whether it is still under the limit.
func (l *RedisLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	key := l.key(identity)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limiter unavailable: %w", err)
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limiter unavailable: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}

func (l *RedisLimiter) key(identity string) string {
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	return fmt.Sprintf("%s:%s:%d", l.prefix, identity, bucket)
}
