package clickhouse

import (
	"context"
	"sync"
	"time"

	"switchboard/pkg/logger"
)

// FlushFunc inserts one batch. It must be safe to call again with the same
// rows after a failure.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// Config configures a Batcher. Zero values take the defaults noted.
type Config[T any] struct {
	Name         string // table name, for logs
	Flush        FlushFunc[T]
	MaxBatchSize int           // Default: 500
	MaxAge       time.Duration // Default: 5s
	MaxPending   int           // Default: 10 * MaxBatchSize
}

// Batcher buffers rows and hands them to Flush when the buffer reaches
// MaxBatchSize or when MaxAge elapses, whichever comes first. Rows from a
// failed flush go back to the front of the buffer; once more than MaxPending
// rows are waiting, the oldest are dropped.
type Batcher[T any] struct {
	name         string
	flush        FlushFunc[T]
	maxBatchSize int
	maxAge       time.Duration
	maxPending   int

	mu        sync.Mutex
	buffer    []T
	dropped   int64
	lastFlush time.Time
	running   bool

	flushMu sync.Mutex // serializes flushes so requeued rows keep their order
	stopCh  chan struct{}
	wg      sync.WaitGroup
	log     *logger.Logger
}

// NewBatcher creates a batcher. Call Start to enable age-based flushing.
func NewBatcher[T any](cfg Config[T]) *Batcher[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}
	if cfg.MaxPending < cfg.MaxBatchSize {
		cfg.MaxPending = 10 * cfg.MaxBatchSize
	}

	return &Batcher[T]{
		name:         cfg.Name,
		flush:        cfg.Flush,
		maxBatchSize: cfg.MaxBatchSize,
		maxAge:       cfg.MaxAge,
		maxPending:   cfg.MaxPending,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		lastFlush:    time.Now(),
		stopCh:       make(chan struct{}),
		log:          logger.Component("batcher").With("table", cfg.Name),
	}
}

// Start launches the age-based flush loop. When ctx is done the loop makes
// a final flush and exits.
func (b *Batcher[T]) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.loop(ctx)

	b.log.Infow("Batcher started", "max_batch_size", b.maxBatchSize, "max_age", b.maxAge)
}

// Add buffers a row and flushes when the batch is full. A flush error is
// returned but the rows stay queued for the next attempt.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	b.mu.Lock()
	b.buffer = append(b.buffer, item)
	full := len(b.buffer) >= b.maxBatchSize
	b.mu.Unlock()

	if full {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes everything buffered so far.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.buffer
	b.buffer = make([]T, 0, b.maxBatchSize)
	b.lastFlush = time.Now()
	b.mu.Unlock()

	start := time.Now()
	if err := b.flush(ctx, batch); err != nil {
		b.requeue(batch)
		b.log.Errorw("Flush failed, rows requeued",
			"rows", len(batch),
			"took", time.Since(start),
			"error", err,
		)
		return err
	}

	b.log.Debugw("Flushed", "rows", len(batch), "took", time.Since(start))
	return nil
}

func (b *Batcher[T]) requeue(batch []T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]T, 0, len(batch)+len(b.buffer))
	merged = append(merged, batch...)
	merged = append(merged, b.buffer...)

	if over := len(merged) - b.maxPending; over > 0 {
		merged = merged[over:]
		b.dropped += int64(over)
		b.log.Warnw("Pending rows over limit, dropped oldest", "dropped", over, "max_pending", b.maxPending)
	}
	b.buffer = merged
}

func (b *Batcher[T]) loop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.finalFlush()
			return
		case <-b.stopCh:
			b.finalFlush()
			return
		case <-ticker.C:
			b.mu.Lock()
			due := len(b.buffer) > 0 && time.Since(b.lastFlush) >= b.maxAge
			b.mu.Unlock()

			if due {
				_ = b.Flush(ctx)
			}
		}
	}
}

func (b *Batcher[T]) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := b.Flush(ctx); err != nil {
		b.log.Errorw("Final flush failed", "pending", b.Pending(), "error", err)
	}
}

// Stop ends the flush loop after a final flush. Without Start it flushes
// whatever is buffered.
func (b *Batcher[T]) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return b.Flush(ctx)
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopCh)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("Batcher stopped")
		return nil
	case <-ctx.Done():
		b.log.Warn("Batcher stop timed out")
		return ctx.Err()
	}
}

// Pending returns the number of buffered rows.
func (b *Batcher[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Dropped returns how many rows were discarded over MaxPending.
func (b *Batcher[T]) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
