package ai

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"switchboard/pkg/errors"
)

// RateLimiter defines the interface for rate limiting provider requests.
type RateLimiter interface {
	// Wait blocks until request can proceed or context is cancelled.
	Wait(ctx context.Context) error

	// Allow checks if request can proceed without blocking.
	Allow() bool

	// Limit returns current rate limit (requests per minute).
	Limit() float64
}

// LocalRateLimiter is an in-process token bucket. Suitable for a single replica.
type LocalRateLimiter struct {
	limiter      *rate.Limiter
	provider     string
	reqPerMinute float64
}

// NewLocalRateLimiter creates a token bucket allowing reqPerMinute with the given burst.
// A non-positive burst defaults to 10% of the per-minute rate.
func NewLocalRateLimiter(provider string, reqPerMinute float64, burst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(reqPerMinute/60.0), normalizeBurst(reqPerMinute, burst)),
		provider:     provider,
		reqPerMinute: reqPerMinute,
	}
}

func normalizeBurst(reqPerMinute float64, burst int) int {
	if burst > 0 {
		return burst
	}
	burst = int(reqPerMinute / 10)
	if burst < 1 {
		burst = 1
	}
	return burst
}

// Wait blocks until a token is available or context is cancelled.
func (l *LocalRateLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return &errors.RateLimitError{Provider: l.provider, Limit: l.reqPerMinute, Err: err}
	}
	return nil
}

// Allow checks if a request can proceed and consumes a token if available.
func (l *LocalRateLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Limit returns the rate limit in requests per minute.
func (l *LocalRateLimiter) Limit() float64 {
	return l.reqPerMinute
}

// NoOpLimiter is a rate limiter that never blocks (for testing or disabled rate limiting).
type NoOpLimiter struct{}

// NewNoOpLimiter creates a no-op rate limiter.
func NewNoOpLimiter() *NoOpLimiter {
	return &NoOpLimiter{}
}

// Wait always returns immediately without error.
func (l *NoOpLimiter) Wait(ctx context.Context) error {
	return nil
}

// Allow always returns true.
func (l *NoOpLimiter) Allow() bool {
	return true
}

// Limit returns -1 to indicate unlimited.
func (l *NoOpLimiter) Limit() float64 {
	return -1
}

// RateLimitConfig contains rate limit configuration for a provider.
type RateLimitConfig struct {
	Enabled      bool
	ReqPerMinute float64
	Burst        int
}

// DefaultRateLimits returns conservative per-provider limits based on entry tiers.
// Providers not listed are unlimited unless configured.
func DefaultRateLimits() map[string]RateLimitConfig {
	return map[string]RateLimitConfig{
		"anthropic": {Enabled: true, ReqPerMinute: 50, Burst: 10},
		"openai":    {Enabled: true, ReqPerMinute: 500, Burst: 50},
		"google":    {Enabled: true, ReqPerMinute: 60, Burst: 10},
		"groq":      {Enabled: true, ReqPerMinute: 30, Burst: 5},
		"deepseek":  {Enabled: false},
	}
}

// RateLimiterFactory hands out one limiter per provider. With a Redis client the
// limiters are shared across replicas; without one they are local.
type RateLimiterFactory struct {
	redisClient *redis.Client
	configs     map[string]RateLimitConfig

	mu       sync.Mutex
	limiters map[string]RateLimiter
}

// NewRateLimiterFactory creates a factory. redisClient may be nil.
func NewRateLimiterFactory(redisClient *redis.Client, configs map[string]RateLimitConfig) *RateLimiterFactory {
	merged := DefaultRateLimits()
	for provider, cfg := range configs {
		merged[provider] = cfg
	}
	return &RateLimiterFactory{
		redisClient: redisClient,
		configs:     merged,
		limiters:    make(map[string]RateLimiter),
	}
}

// For returns the limiter of a provider, creating it on first use.
func (f *RateLimiterFactory) For(provider string) RateLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.limiters[provider]; ok {
		return l
	}
	l := f.create(provider, f.configs[provider])
	f.limiters[provider] = l
	return l
}

func (f *RateLimiterFactory) create(provider string, cfg RateLimitConfig) RateLimiter {
	if !cfg.Enabled || cfg.ReqPerMinute <= 0 {
		return NewNoOpLimiter()
	}
	if f.redisClient != nil {
		return NewRedisRateLimiter(f.redisClient, provider, cfg.ReqPerMinute, cfg.Burst)
	}
	return NewLocalRateLimiter(provider, cfg.ReqPerMinute, cfg.Burst)
}
