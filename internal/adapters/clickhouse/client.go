package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"switchboard/internal/adapters/config"
	"switchboard/internal/metrics"
	"switchboard/pkg/errors"
)

// Client owns the native ClickHouse connection used for usage analytics.
type Client struct {
	conn driver.Conn
}

// NewClient opens a connection pool and pings it before returning.
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxOpenConns,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "switchboard", Version: "1"}},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open clickhouse %s:%d", cfg.Host, cfg.Port)
	}

	c := &Client{conn: conn}
	if err := c.Health(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "ping clickhouse %s:%d", cfg.Host, cfg.Port)
	}

	return c, nil
}

// Conn returns the underlying driver connection.
func (c *Client) Conn() driver.Conn {
	return c.conn
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.conn.Ping(ctx)
	metrics.RecordDBQuery("clickhouse", "ping", time.Since(start), err)
	return err
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	start := time.Now()
	err := c.conn.Exec(ctx, query, args...)
	metrics.RecordDBQuery("clickhouse", "exec", time.Since(start), err)
	return err
}
