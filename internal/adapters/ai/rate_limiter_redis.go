package ai

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"switchboard/pkg/errors"
)

// RedisRateLimiter is a token bucket kept in Redis so every replica draws
// from one bucket per provider.
type RedisRateLimiter struct {
	client   *redis.Client
	provider string
	rate     float64 // tokens per second
	burst    int
	key      string
	script   *redis.Script
}

// KEYS[1] = bucket key; ARGV = rate (tokens/s), burst, now (unix seconds).
// Returns {1, 0} when a token was taken, otherwise {0, ms until one is due}.
const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if not tokens then
    tokens = burst
    last = now
end

tokens = math.min(burst, tokens + math.max(0, now - last) * rate)

local allowed = 0
local wait_ms = 0
if tokens >= 1.0 then
    tokens = tokens - 1.0
    allowed = 1
else
    wait_ms = math.ceil((1.0 - tokens) / rate * 1000)
end

redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
redis.call('EXPIRE', key, math.ceil(burst / rate) + 60)

return {allowed, wait_ms}
`

// NewRedisRateLimiter creates a limiter for provider.
func NewRedisRateLimiter(client *redis.Client, provider string, reqPerMinute float64, burst int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:   client,
		provider: provider,
		rate:     reqPerMinute / 60.0,
		burst:    normalizeBurst(reqPerMinute, burst),
		key:      "rate_limit:llm:" + provider,
		script:   redis.NewScript(tokenBucketScript),
	}
}

// Wait blocks until a token is taken. A cancelled wait returns a
// RateLimitError carrying how long the caller should back off.
func (l *RedisRateLimiter) Wait(ctx context.Context) error {
	for {
		allowed, wait, err := l.take(ctx)
		if err != nil {
			return &errors.RateLimitError{Provider: l.provider, Limit: l.Limit(), Err: err}
		}
		if allowed {
			return nil
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return &errors.RateLimitError{
				Provider:   l.provider,
				Limit:      l.Limit(),
				RetryAfter: wait,
				Err:        errors.Wrap(errors.ErrRateLimitExceeded, ctx.Err().Error()),
			}
		case <-t.C:
		}
	}
}

// Allow takes a token if one is available. Redis errors deny.
func (l *RedisRateLimiter) Allow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	allowed, _, err := l.take(ctx)
	return err == nil && allowed
}

// Limit returns the rate in requests per minute.
func (l *RedisRateLimiter) Limit() float64 {
	return l.rate * 60.0
}

func (l *RedisRateLimiter) take(ctx context.Context) (bool, time.Duration, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	res, err := l.script.Run(ctx, l.client, []string{l.key}, l.rate, l.burst, now).Int64Slice()
	if err != nil {
		return false, 0, errors.Wrap(err, "token bucket script")
	}
	if len(res) != 2 {
		return false, 0, errors.Newf("token bucket script returned %d values", len(res))
	}

	wait := time.Duration(res[1]) * time.Millisecond
	if wait <= 0 {
		wait = time.Millisecond
	}
	return res[0] == 1, wait, nil
}

// Reset empties the bucket state so the next call starts at full burst.
func (l *RedisRateLimiter) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}

// Tokens reports the tokens left as of the last take, or the burst if the
// bucket was never used.
func (l *RedisRateLimiter) Tokens(ctx context.Context) (float64, error) {
	raw, err := l.client.HGet(ctx, l.key, "tokens").Result()
	if errors.Is(err, redis.Nil) {
		return float64(l.burst), nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read bucket")
	}
	return strconv.ParseFloat(raw, 64)
}
