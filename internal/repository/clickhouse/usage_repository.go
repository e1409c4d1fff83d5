package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"switchboard/internal/domain/usage"
	"switchboard/internal/metrics"
	"switchboard/pkg/clickhouse"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// DefaultUsageTable is the table usage records are written to.
const DefaultUsageTable = "usage_records"

// UsageTableDDL returns the CREATE statement for a usage table.
func UsageTableDDL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp DateTime64(3),
			event_id String,
			request_id String,
			user String,
			provider LowCardinality(String),
			vendor LowCardinality(String),
			model_id LowCardinality(String),
			mode LowCardinality(String),
			prompt_tokens UInt32,
			completion_tokens UInt32,
			reasoning_tokens UInt32,
			total_tokens UInt32,
			input_cost_usd Decimal(18, 9),
			output_cost_usd Decimal(18, 9),
			total_cost_usd Decimal(18, 9),
			tool_calls_count UInt16,
			finish_reason LowCardinality(String),
			latency_ms UInt32
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (provider, model_id, timestamp)
	`, table)
}

// UsageRepositoryConfig tunes batching.
type UsageRepositoryConfig struct {
	Table        string
	MaxBatchSize int
	MaxAge       time.Duration
}

// UsageRepository implements usage.Repository for ClickHouse.
// Rows are buffered and inserted in batches.
type UsageRepository struct {
	conn    driver.Conn
	table   string
	batcher *clickhouse.Batcher[*usage.Record]
	log     *logger.Logger
}

var _ usage.Repository = (*UsageRepository)(nil)

// NewUsageRepository creates a new usage repository
func NewUsageRepository(conn driver.Conn, cfg UsageRepositoryConfig) *UsageRepository {
	if cfg.Table == "" {
		cfg.Table = DefaultUsageTable
	}

	repo := &UsageRepository{
		conn:  conn,
		table: cfg.Table,
		log:   logger.Component("usage_batch").With("table", cfg.Table),
	}

	repo.batcher = clickhouse.NewBatcher(clickhouse.Config[*usage.Record]{
		Name:         cfg.Table,
		Flush:        repo.flushBatch,
		MaxBatchSize: cfg.MaxBatchSize,
		MaxAge:       cfg.MaxAge,
	})

	return repo
}

// EnsureSchema creates the usage table when missing.
func (r *UsageRepository) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, UsageTableDDL(r.table)); err != nil {
		return errors.Wrapf(err, "failed to create table %s", r.table)
	}
	return nil
}

// Start begins the background flush loop
func (r *UsageRepository) Start(ctx context.Context) {
	r.batcher.Start(ctx)
}

// Stop flushes what is buffered and ends the flush loop
func (r *UsageRepository) Stop(ctx context.Context) error {
	err := r.batcher.Stop(ctx)
	if dropped := r.batcher.Dropped(); dropped > 0 {
		r.log.Warnw("Usage rows dropped while ClickHouse was failing", "dropped", dropped)
	}
	return err
}

// Flush writes buffered records immediately.
func (r *UsageRepository) Flush(ctx context.Context) error {
	return r.batcher.Flush(ctx)
}

// Store saves a usage record (buffered, not immediate)
func (r *UsageRepository) Store(ctx context.Context, rec *usage.Record) error {
	return r.batcher.Add(ctx, rec)
}

// flushBatch performs one native batch INSERT for all buffered rows.
func (r *UsageRepository) flushBatch(ctx context.Context, batch []*usage.Record) error {
	if len(batch) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			timestamp, event_id, request_id, user,
			provider, vendor, model_id, mode,
			prompt_tokens, completion_tokens, reasoning_tokens, total_tokens,
			input_cost_usd, output_cost_usd, total_cost_usd,
			tool_calls_count, finish_reason, latency_ms
		)
	`, r.table)

	start := time.Now()
	err := r.sendBatch(ctx, query, batch)
	metrics.RecordDBQuery("clickhouse", "insert_usage", time.Since(start), err)
	if err != nil {
		return err
	}

	r.log.Debugf("Batch inserted %d usage records in %v", len(batch), time.Since(start))
	return nil
}

func (r *UsageRepository) sendBatch(ctx context.Context, query string, batch []*usage.Record) error {
	stmt, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	for _, rec := range batch {
		err := stmt.Append(
			rec.Timestamp, rec.EventID, rec.RequestID, rec.User,
			rec.Provider, rec.Vendor, rec.ModelID, rec.Mode,
			rec.PromptTokens, rec.CompletionTokens, rec.ReasoningTokens, rec.TotalTokens,
			rec.InputCostUSD, rec.OutputCostUSD, rec.TotalCostUSD,
			rec.ToolCallsCount, rec.FinishReason, rec.LatencyMs,
		)
		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}
	return nil
}

// GetProviderCosts returns costs grouped by provider for a time range
func (r *UsageRepository) GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error) {
	query := fmt.Sprintf(`
		SELECT provider, sum(total_cost_usd) AS total_cost
		FROM %s
		WHERE timestamp BETWEEN ? AND ?
		GROUP BY provider
		ORDER BY total_cost DESC
	`, r.table)

	return r.groupedCosts(ctx, "provider_costs", query, from, to)
}

// GetModelCosts returns costs grouped by model for a provider in a time range
func (r *UsageRepository) GetModelCosts(ctx context.Context, provider string, from, to time.Time) (map[string]decimal.Decimal, error) {
	query := fmt.Sprintf(`
		SELECT model_id, sum(total_cost_usd) AS total_cost
		FROM %s
		WHERE provider = ? AND timestamp BETWEEN ? AND ?
		GROUP BY model_id
		ORDER BY total_cost DESC
	`, r.table)

	return r.groupedCosts(ctx, "model_costs", query, provider, from, to)
}

func (r *UsageRepository) groupedCosts(ctx context.Context, op, query string, args ...interface{}) (map[string]decimal.Decimal, error) {
	start := time.Now()
	rows, err := r.conn.Query(ctx, query, args...)
	metrics.RecordDBQuery("clickhouse", op, time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s", op)
	}
	defer rows.Close()

	costs := make(map[string]decimal.Decimal)
	for rows.Next() {
		var key string
		var cost decimal.Decimal
		if err := rows.Scan(&key, &cost); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s", op)
		}
		costs[key] = cost
	}

	return costs, rows.Err()
}
