package cursorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a sliding-window call budget (e.g. for upstream RPC
// pacing) using a Redis sorted set: each call adds a member scored by its
// timestamp, expired members are trimmed, and the remaining cardinality is
// compared against the limit.
type RateLimiter struct {
	client *redis.Client
	window time.Duration
	limit  int64
}

// NewRateLimiter builds a sliding-window limiter allowing at most limit
// calls per window, tracked under key.
func NewRateLimiter(client *redis.Client, window time.Duration, limit int64) *RateLimiter {
	return &RateLimiter{client: client, window: window, limit: limit}
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", normalizeID(key))
}

// Allow records a call attempt under key and reports whether it falls
// within the configured sliding window budget. now is supplied by the
// caller rather than read from the clock, keeping the limiter
// deterministically testable.
func (r *RateLimiter) Allow(ctx context.Context, key string, now time.Time) (bool, error) {
	redisKey := rateLimitKey(key)
	windowStart := now.Add(-r.window).UnixNano()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%d", windowStart))
	count := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter trim: %w", err)
	}
	if count.Val() >= r.limit {
		return false, nil
	}

	member := fmt.Sprintf("%d", now.UnixNano())
	addPipe := r.client.TxPipeline()
	addPipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	addPipe.PExpire(ctx, redisKey, r.window)
	if _, err := addPipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter record: %w", err)
	}
	return true, nil
}
