package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickHouseTempTableLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	helper := NewClickHouseTestHelper(t, LoadClickHouseConfigFromEnv(t))
	table := helper.CreateTempTable(t, "provider String, tokens UInt32")
	ctx := context.Background()
	conn := helper.Client().Conn()

	require.NoError(t, helper.Client().Exec(ctx, "INSERT INTO "+table+" VALUES ('openai', 12)"))

	var count uint64
	require.NoError(t, conn.QueryRow(ctx, "SELECT count() FROM "+table).Scan(&count))
	assert.Equal(t, uint64(1), count)

	require.NoError(t, helper.CleanupTable(ctx, table))

	var exists uint8
	require.NoError(t, conn.QueryRow(ctx, "EXISTS TABLE "+table).Scan(&exists))
	assert.Zero(t, exists)
}
