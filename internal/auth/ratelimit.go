package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter limits attempts per key using Redis INCR + EXPIRE. The
// credential vault uses it for its per-source lockout.
type RateLimiter struct {
	redis      *redis.Client
	prefix     string
	maxAttempt int
	window     time.Duration
}

// NewRateLimiter creates a rate limiter. maxAttempt is the max failed attempts
// allowed per key within the given window. keyPrefix namespaces the Redis
// keys so independent rate limiters sharing one Redis instance don't collide.
func NewRateLimiter(rdb *redis.Client, keyPrefix string, maxAttempt int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:      rdb,
		prefix:     keyPrefix,
		maxAttempt: maxAttempt,
		window:     window,
	}
}

// RateLimitResult holds the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Check returns whether the given key is allowed to attempt an operation.
func (rl *RateLimiter) Check(ctx context.Context, key string) (*RateLimitResult, error) {
	key = rl.prefix + key

	count, err := rl.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if count >= rl.maxAttempt {
		ttl, err := rl.redis.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("getting TTL: %w", err)
		}
		return &RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			RetryAt:   time.Now().Add(ttl),
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: rl.maxAttempt - count,
	}, nil
}

// Record records a failed attempt for the given key.
func (rl *RateLimiter) Record(ctx context.Context, key string) error {
	key = rl.prefix + key

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording rate limit: %w", err)
	}

	// The pipeline above refreshes the expiry on every failure, so a key
	// lives for one window after its latest failure; the first increment
	// sets it once more here.
	if incr.Val() == 1 {
		rl.redis.Expire(ctx, key, rl.window)
	}

	return nil
}

// Reset clears the rate limit counter for a given key (on success).
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	key = rl.prefix + key
	return rl.redis.Del(ctx, key).Err()
}
