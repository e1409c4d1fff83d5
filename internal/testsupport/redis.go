package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"switchboard/internal/adapters/config"
)

// NewRedisClient connects to the integration Redis and empties the selected
// database before and after the test. Point REDIS_DB at a scratch database.
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err(), "redis at %s unreachable", cfg.Addr())
	require.NoError(t, client.FlushDB(ctx).Err(), "flush redis before test")

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}
