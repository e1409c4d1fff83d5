package ai

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/testsupport"
	"switchboard/pkg/errors"
)

func TestRedisRateLimiter_WaitsForRefill(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	rdb := testsupport.NewRedisClient(t, testsupport.LoadRedisConfigFromEnv(t))
	ctx := context.Background()

	// 60 req/min is one token per second.
	limiter := NewRedisRateLimiter(rdb, "openai", 60, 2)

	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRedisRateLimiter_AllowDrainsBucket(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	rdb := testsupport.NewRedisClient(t, testsupport.LoadRedisConfigFromEnv(t))
	limiter := NewRedisRateLimiter(rdb, "openai", 60, 2)

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	tokens, err := limiter.Tokens(context.Background())
	require.NoError(t, err)
	assert.Less(t, tokens, 1.0)
}

// Two limiters on one provider share a bucket, as two replicas would.
func TestRedisRateLimiter_SharedAcrossInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	rdb := testsupport.NewRedisClient(t, testsupport.LoadRedisConfigFromEnv(t))
	a := NewRedisRateLimiter(rdb, "anthropic", 60, 5)
	b := NewRedisRateLimiter(rdb, "anthropic", 60, 5)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter := a
			if i%2 == 1 {
				limiter = b
			}
			if limiter.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed.Load())
}

func TestRedisRateLimiter_Reset(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	rdb := testsupport.NewRedisClient(t, testsupport.LoadRedisConfigFromEnv(t))
	limiter := NewRedisRateLimiter(rdb, "google", 60, 1)

	require.True(t, limiter.Allow())
	require.NoError(t, limiter.Reset(context.Background()))
	assert.True(t, limiter.Allow())

	tokens, err := limiter.Tokens(context.Background())
	require.NoError(t, err)
	assert.Less(t, tokens, 1.0)
}

func TestRedisRateLimiter_CancelledWaitReportsRetryAfter(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	rdb := testsupport.NewRedisClient(t, testsupport.LoadRedisConfigFromEnv(t))
	// 6 req/min is one token every ten seconds.
	limiter := NewRedisRateLimiter(rdb, "openai", 6, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)

	var rl *errors.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
	assert.Equal(t, "openai", rl.Provider)
	assert.Greater(t, rl.RetryAfter, 5*time.Second)
	assert.LessOrEqual(t, rl.RetryAfter, 10*time.Second)
}
