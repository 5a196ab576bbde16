package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRateLimit  = 100
	DefaultRateWindow = 15 * time.Minute
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// RateLimiter is a fixed-window request counter per client, shared by every
// instance pointed at the same Redis.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow counts one request for client. The window starts with the client's
// first request.
func (l *RateLimiter) Allow(ctx context.Context, client string) (Decision, error) {
	key := RateLimitPrefix + client

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit increment failed: %w", err)
	}

	ttl, err := l.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit ttl failed: %w", err)
	}
	// A counter without expiry would block the client forever.
	if count == 1 || ttl < 0 {
		if err := l.rdb.PExpire(ctx, key, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire failed: %w", err)
		}
		ttl = l.window
	}

	return Decision{
		Allowed:    count <= int64(l.limit),
		Limit:      l.limit,
		Remaining:  max(l.limit-int(count), 0),
		ResetAfter: ttl,
	}, nil
}
