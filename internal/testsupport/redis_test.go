package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClientStartsEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	client := NewRedisClient(t, LoadRedisConfigFromEnv(t))
	ctx := context.Background()

	size, err := client.DBSize(ctx).Result()
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, client.Set(ctx, "catalog:snapshot", "{}", 0).Err())
	val, err := client.Get(ctx, "catalog:snapshot").Result()
	require.NoError(t, err)
	assert.Equal(t, "{}", val)
}
