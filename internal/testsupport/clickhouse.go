package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"switchboard/internal/adapters/clickhouse"
	"switchboard/internal/adapters/config"
)

// ClickHouseTestHelper hands out throwaway tables on the integration server.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper connects and closes the client when the test ends.
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := clickhouse.NewClient(ctx, cfg)
	require.NoError(t, err, "clickhouse at %s:%d unreachable", cfg.Host, cfg.Port)
	t.Cleanup(func() { _ = client.Close() })

	return &ClickHouseTestHelper{client: client}
}

// Client returns the underlying client.
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// TempTableName returns a unique table name that is dropped when the test ends.
func (h *ClickHouseTestHelper) TempTableName(t *testing.T, prefix string) string {
	t.Helper()

	table := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	t.Cleanup(func() { _ = h.CleanupTable(context.Background(), table) })
	return table
}

// CreateTempTable creates a MergeTree table with the given columns.
func (h *ClickHouseTestHelper) CreateTempTable(t *testing.T, columns string) string {
	t.Helper()

	table := h.TempTableName(t, "tmp_test")
	ddl := fmt.Sprintf("CREATE TABLE %s (%s) ENGINE = MergeTree() ORDER BY tuple()", table, columns)
	require.NoError(t, h.client.Exec(context.Background(), ddl))
	return table
}

// CleanupTable drops table now.
func (h *ClickHouseTestHelper) CleanupTable(ctx context.Context, table string) error {
	return h.client.Exec(ctx, "DROP TABLE IF EXISTS "+table)
}
