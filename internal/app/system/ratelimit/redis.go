package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window Checker backed by Redis so that several
// formguard instances share one set of counters.
type RedisLimiter struct {
	rdb      *redis.Client
	prefix   string
	limit    int64
	duration time.Duration
}

// NewRedis creates a Redis-backed limiter. Keys are namespaced by prefix.
func NewRedis(rdb *redis.Client, prefix string, limit int, duration time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:      rdb,
		prefix:   prefix,
		limit:    int64(limit),
		duration: duration,
	}
}

// Allow implements Checker. The window starts at the first attempt.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// NX keeps the original window when the key already has a TTL.
	pipe.ExpireNX(ctx, k, l.duration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}

// Reset implements Checker.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.prefix+key).Err()
}
