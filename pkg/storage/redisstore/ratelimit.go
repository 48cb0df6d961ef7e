package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// WindowLimiter counts requests per key in fixed windows shared by every instance
type WindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewWindowLimiter allows limit requests per key in each window
func NewWindowLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *WindowLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &WindowLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *WindowLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

// Allow counts one request. On a Redis error it reports true together with the error,
// so callers can fail open.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.key(key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	// first hit of a window, or a key that lost its expiry
	if ttl.Val() < 0 {
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return true, fmt.Errorf("redis error: %w", err)
		}
	}
	return incr.Val() <= int64(l.limit), nil
}

// Remaining is the number of requests left in the current window
func (l *WindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := l.client.Get(ctx, l.key(key)).Int()
	if err == redis.Nil {
		return l.limit, nil
	} else if err != nil {
		return 0, err
	}
	return max(l.limit-count, 0), nil
}

// ResetIn is the time until the key's window closes
func (l *WindowLimiter) ResetIn(ctx context.Context, key string) (time.Duration, error) {
	return l.client.TTL(ctx, l.key(key)).Result()
}

// Limit is the per-window allowance
func (l *WindowLimiter) Limit() int {
	return l.limit
}

func (l *WindowLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}
