// Package cache keeps analysis results and rate-limit counters in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
)

const (
	ResultPrefix    = "speech-analysis:"
	RateLimitPrefix = "speech-analysis-ratelimit:"

	DefaultTTL = time.Hour
)

// ErrMiss is returned when no cached result exists for a key.
var ErrMiss = errors.New("cache miss")

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// ResultCache stores finished analyses keyed by the audio URL they were
// computed from. Entries expire; nothing here is durable.
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewResultCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "cache").Logger(),
	}
}

func resultKey(audioURL string) string {
	return ResultPrefix + audioURL
}

// Get returns the cached result for audioURL or ErrMiss.
func (c *ResultCache) Get(ctx context.Context, audioURL string) (analysis.Result, error) {
	data, err := c.rdb.Get(ctx, resultKey(audioURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return analysis.Result{}, ErrMiss
	}
	if err != nil {
		return analysis.Result{}, fmt.Errorf("failed to read cached result: %w", err)
	}

	var res analysis.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.log.Warn().Err(err).Str("audio_url", audioURL).Msg("dropping unreadable cache entry")
		_ = c.rdb.Del(ctx, resultKey(audioURL)).Err()
		return analysis.Result{}, ErrMiss
	}
	if res.Disfluencies == nil {
		res.Disfluencies = []analysis.Disfluency{}
	}
	return res, nil
}

// Set stores res for audioURL with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, audioURL string, res analysis.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := c.rdb.Set(ctx, resultKey(audioURL), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}
