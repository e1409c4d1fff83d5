package consumers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain/model"
	"switchboard/internal/domain/usage"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// chanReader replays queued messages then blocks until ctx is cancelled.
type chanReader struct {
	msgs   chan kafka.Message
	closed bool
}

func (r *chanReader) ReadMessageWithShutdownCheck(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) Close() error {
	r.closed = true
	return nil
}

type memStore struct {
	mu      sync.Mutex
	records []*usage.Record
	started bool
	stopped bool
	err     error
}

func (s *memStore) Store(ctx context.Context, rec *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) Start(ctx context.Context) { s.started = true }

func (s *memStore) Stop(ctx context.Context) error {
	s.stopped = true
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func usageMessage(t *testing.T) kafka.Message {
	t.Helper()
	m := model.Model{Name: "gpt-4o", Vendor: "openai", Provider: "openai", Cost: model.CostFromPerMillion(2, 8)}
	rec := usage.NewRecord(m, usage.ModeInvoke, model.TokenUsage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000}, time.Second)
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return kafka.Message{Topic: "usage.recorded", Key: []byte(rec.Path()), Value: data}
}

func TestUsageConsumer_StoresDecodedRecords(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message, 4)}
	reader.msgs <- usageMessage(t)
	reader.msgs <- kafka.Message{Topic: "usage.recorded", Value: []byte("not json")}
	reader.msgs <- kafka.Message{Topic: "usage.recorded", Value: []byte(`{"provider":"x"}`)}
	reader.msgs <- usageMessage(t)

	store := &memStore{}
	c := NewUsageConsumer(reader, store, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return store.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.True(t, store.started)
	assert.True(t, store.stopped)
	assert.True(t, reader.closed)

	rec := store.records[0]
	assert.Equal(t, "openai/openai/gpt-4o", rec.Path())
	assert.True(t, decimal.RequireFromString("0.01").Equal(rec.TotalCostUSD), rec.TotalCostUSD.String())
}

func TestUsageConsumer_StoreErrorKeepsConsuming(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message, 2)}
	reader.msgs <- usageMessage(t)

	store := &memStore{err: errors.New("clickhouse down")}
	c := NewUsageConsumer(reader, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.msgs) == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, store.count())
}

// flakyReader fails a fixed number of reads before delegating.
type flakyReader struct {
	chanReader
	failures int
	reads    int
}

func (r *flakyReader) ReadMessageWithShutdownCheck(ctx context.Context) (kafka.Message, error) {
	r.reads++
	if r.reads <= r.failures {
		return kafka.Message{}, errors.New("broker unavailable")
	}
	return r.chanReader.ReadMessageWithShutdownCheck(ctx)
}

func TestUsageConsumer_ReadErrorsBackOffThenRecover(t *testing.T) {
	reader := &flakyReader{chanReader: chanReader{msgs: make(chan kafka.Message, 1)}, failures: 3}
	reader.msgs <- usageMessage(t)

	store := &memStore{}
	c := NewUsageConsumer(reader, store, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return store.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 0, c.backoff.Stats().ConsecutiveFailures)
	assert.Equal(t, 3, c.backoff.Stats().TotalFailures)
}
