package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain/model"
	"switchboard/internal/domain/usage"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

type memSink struct {
	mu      sync.Mutex
	name    string
	records []*usage.Record
	err     error
	block   chan struct{}
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Write(ctx context.Context, rec *usage.Record) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testRecord(provider, name string, prompt, completion int) *usage.Record {
	m := model.Model{Name: name, Vendor: provider, Provider: provider, Cost: model.CostFromPerMillion(1, 2)}
	u := model.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	return usage.NewRecord(m, usage.ModeInvoke, u, 10*time.Millisecond)
}

func TestTracker_AccumulatesPerModel(t *testing.T) {
	tr := NewTracker()

	tr.Add(testRecord("openai", "gpt-4o", 1000, 500))
	entry := tr.Add(testRecord("openai", "gpt-4o", 1000, 500))
	tr.Add(testRecord("anthropic", "claude", 10, 10))

	assert.Equal(t, int64(2), entry.Calls)
	assert.Equal(t, int64(2000), entry.PromptTokens)
	assert.Equal(t, int64(1000), entry.CompletionTokens)
	assert.True(t, decimal.RequireFromString("0.004").Equal(entry.CostUSD), entry.CostUSD.String())

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "claude", snap["anthropic:claude"].Model)

	list := tr.List()
	require.Len(t, list, 2)
	assert.Equal(t, "anthropic", list[0].Provider)
	assert.Equal(t, "openai", list[1].Provider)

	assert.True(t, decimal.RequireFromString("0.00403").Equal(tr.TotalCost()), tr.TotalCost().String())
}

func TestTracker_SnapshotIsCopy(t *testing.T) {
	tr := NewTracker()
	tr.Add(testRecord("openai", "gpt-4o", 1, 1))

	snap := tr.Snapshot()
	entry := snap["openai:gpt-4o"]
	entry.Calls = 99
	snap["openai:gpt-4o"] = entry

	assert.Equal(t, int64(1), tr.Snapshot()["openai:gpt-4o"].Calls)
}

func TestRecorder_WritesToAllSinks(t *testing.T) {
	a := &memSink{name: "a"}
	b := &memSink{name: "b"}
	r := NewRecorder(nil, []Sink{a, b}, RecorderConfig{QueueSize: 8}, logger.NewNop())

	ctx := context.Background()
	r.Start(ctx)

	for i := 0; i < 3; i++ {
		r.Record(ctx, testRecord("openai", "gpt-4o", 10, 10))
	}

	require.NoError(t, r.Stop(ctx))
	assert.Equal(t, 3, a.count())
	assert.Equal(t, 3, b.count())
	assert.Equal(t, int64(3), r.Tracker().Snapshot()["openai:gpt-4o"].Calls)
}

func TestRecorder_SinkFailureDoesNotStopOthers(t *testing.T) {
	bad := &memSink{name: "bad", err: errors.New("down")}
	good := &memSink{name: "good"}
	r := NewRecorder(nil, []Sink{bad, good}, RecorderConfig{}, logger.NewNop())

	ctx := context.Background()
	r.Start(ctx)
	r.Record(ctx, testRecord("openai", "gpt-4o", 1, 1))
	require.NoError(t, r.Stop(ctx))

	assert.Equal(t, 0, bad.count())
	assert.Equal(t, 1, good.count())
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	slow := &memSink{name: "slow", block: release}
	r := NewRecorder(nil, []Sink{slow}, RecorderConfig{QueueSize: 1}, logger.NewNop())

	ctx := context.Background()
	r.Start(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Record(ctx, testRecord("openai", "gpt-4o", 1, 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(release)
	require.NoError(t, r.Stop(ctx))

	assert.Less(t, slow.count(), 10)
	assert.Equal(t, int64(10), r.Tracker().Snapshot()["openai:gpt-4o"].Calls)
}

func TestRecorder_NoSinks(t *testing.T) {
	r := NewRecorder(nil, nil, RecorderConfig{}, logger.NewNop())
	r.Record(context.Background(), testRecord("openai", "gpt-4o", 1, 1))
	r.Record(context.Background(), nil)

	assert.Len(t, r.Tracker().Snapshot(), 1)
	assert.NoError(t, r.Stop(context.Background()))
}
