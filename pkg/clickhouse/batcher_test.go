package clickhouse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/pkg/errors"
)

type sink struct {
	mu      sync.Mutex
	batches [][]int
	fail    int
}

func (s *sink) flush(_ context.Context, batch []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("clickhouse unavailable")
	}
	s.batches = append(s.batches, append([]int(nil), batch...))
	return nil
}

func (s *sink) rows() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestBatcher_FlushesWhenFull(t *testing.T) {
	s := &sink{}
	b := NewBatcher(Config[int]{Name: "usage_test", Flush: s.flush, MaxBatchSize: 3, MaxAge: time.Hour})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, b.Add(ctx, i))
	}

	assert.Equal(t, 1, s.count())
	assert.Equal(t, []int{1, 2, 3}, s.rows())
	assert.Equal(t, 0, b.Pending())
}

func TestBatcher_FlushesOnAge(t *testing.T) {
	s := &sink{}
	b := NewBatcher(Config[int]{Flush: s.flush, MaxBatchSize: 100, MaxAge: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	require.NoError(t, b.Add(ctx, 7))

	assert.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{7}, s.rows())
	require.NoError(t, b.Stop(context.Background()))
}

func TestBatcher_StopFlushesRemaining(t *testing.T) {
	s := &sink{}
	b := NewBatcher(Config[int]{Flush: s.flush, MaxBatchSize: 100, MaxAge: time.Hour})
	b.Start(context.Background())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Add(ctx, i))
	}
	require.NoError(t, b.Stop(ctx))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, s.rows())
	assert.NoError(t, b.Stop(ctx), "second stop is a no-op")
}

func TestBatcher_StopWithoutStartFlushes(t *testing.T) {
	s := &sink{}
	b := NewBatcher(Config[int]{Flush: s.flush, MaxBatchSize: 100})

	require.NoError(t, b.Add(context.Background(), 1))
	require.NoError(t, b.Stop(context.Background()))
	assert.Equal(t, []int{1}, s.rows())
}

func TestBatcher_FailedFlushRequeuesInOrder(t *testing.T) {
	s := &sink{fail: 1}
	b := NewBatcher(Config[int]{Flush: s.flush, MaxBatchSize: 2, MaxAge: time.Hour})
	ctx := context.Background()

	require.NoError(t, b.Add(ctx, 1))
	assert.Error(t, b.Add(ctx, 2))
	assert.Equal(t, 2, b.Pending())

	require.NoError(t, b.Add(ctx, 3))
	assert.Equal(t, []int{1, 2, 3}, s.rows())
	assert.Equal(t, int64(0), b.Dropped())
}

func TestBatcher_DropsOldestOverPendingLimit(t *testing.T) {
	s := &sink{fail: 100}
	b := NewBatcher(Config[int]{Flush: s.flush, MaxBatchSize: 2, MaxAge: time.Hour, MaxPending: 3})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_ = b.Add(ctx, i)
	}

	assert.Equal(t, 3, b.Pending())
	assert.Equal(t, int64(1), b.Dropped())

	s.mu.Lock()
	s.fail = 0
	s.mu.Unlock()

	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, []int{2, 3, 4}, s.rows())
}

func TestBatcher_ConcurrentAdds(t *testing.T) {
	s := &sink{}
	b := NewBatcher(Config[int]{Flush: s.flush, MaxBatchSize: 10, MaxAge: time.Hour})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = b.Add(ctx, g*100+i)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, b.Flush(ctx))

	assert.Len(t, s.rows(), 200)
	assert.Equal(t, 0, b.Pending())
}
