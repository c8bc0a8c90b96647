package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts requests in Redis so horizontally scaled instances
// share one ceiling. Semantics match MemoryLimiter: INCR per request, with
// the key expiring one window after its first hit.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	max    int
	prefix string
}

// NewRedisLimiter creates a limiter backed by the given Redis address
func NewRedisLimiter(addr string, window time.Duration, max int) *RedisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	return &RedisLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "ratelimit:",
	}
}

// Allow implements Limiter
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}

	// First hit in a window starts it; expiry implements the reset
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, err
		}
	}

	return count <= int64(l.max), nil
}

// Close releases the underlying Redis connection
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
