package usage

import (
	"context"
	"sync"
	"time"

	"switchboard/internal/domain/usage"
	"switchboard/internal/metrics"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// Sink is a durable destination for usage records.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec *usage.Record) error
}

// RepositorySink stores records through a usage.Repository.
type RepositorySink struct {
	name string
	repo usage.Repository
}

// NewRepositorySink wraps repo under the given metrics name.
func NewRepositorySink(name string, repo usage.Repository) *RepositorySink {
	return &RepositorySink{name: name, repo: repo}
}

func (s *RepositorySink) Name() string { return s.name }

func (s *RepositorySink) Write(ctx context.Context, rec *usage.Record) error {
	return s.repo.Store(ctx, rec)
}

// PublisherSink emits records as events.
type PublisherSink struct {
	name      string
	publisher usage.Publisher
}

// NewPublisherSink wraps publisher under the given metrics name.
func NewPublisherSink(name string, publisher usage.Publisher) *PublisherSink {
	return &PublisherSink{name: name, publisher: publisher}
}

func (s *PublisherSink) Name() string { return s.name }

func (s *PublisherSink) Write(ctx context.Context, rec *usage.Record) error {
	return s.publisher.PublishUsage(ctx, rec)
}

// Recorder updates the in-memory tracker synchronously and hands each record
// to the sinks on a background worker. Sink failures are logged and counted,
// never returned to the caller.
type Recorder struct {
	tracker      *Tracker
	sinks        []Sink
	queue        chan *usage.Record
	writeTimeout time.Duration
	log          *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// RecorderConfig configures the background queue.
type RecorderConfig struct {
	QueueSize    int           // Default: 1024
	WriteTimeout time.Duration // Default: 5s
}

// NewRecorder creates a recorder. tracker may be nil.
func NewRecorder(tracker *Tracker, sinks []Sink, cfg RecorderConfig, log *logger.Logger) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	if log == nil {
		log = logger.Component("usage_recorder")
	}

	return &Recorder{
		tracker:      tracker,
		sinks:        sinks,
		queue:        make(chan *usage.Record, cfg.QueueSize),
		writeTimeout: cfg.WriteTimeout,
		log:          log,
		stopCh:       make(chan struct{}),
	}
}

// Tracker returns the in-memory totals.
func (r *Recorder) Tracker() *Tracker {
	return r.tracker
}

// Record implements orchestrator.UsageRecorder. It never blocks: when the
// queue is full the record is counted in the tracker but not written to sinks.
func (r *Recorder) Record(ctx context.Context, rec *usage.Record) {
	if rec == nil {
		return
	}
	r.tracker.Add(rec)

	if len(r.sinks) == 0 {
		return
	}

	select {
	case r.queue <- rec:
	default:
		for _, s := range r.sinks {
			metrics.RecordSinkWrite(s.Name(), errors.New("queue full"))
		}
		r.log.Warnw("Usage queue full, dropping record", "event_id", rec.EventID, "path", rec.Path())
	}
}

// Start launches the background worker.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	r.wg.Add(1)
	go r.loop(ctx)

	r.log.Infof("Usage recorder started (sinks=%d, queue=%d)", len(r.sinks), cap(r.queue))
}

// Stop drains the queue and waits for the worker, bounded by ctx.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("Usage recorder stopped")
		return nil
	case <-ctx.Done():
		r.log.Warn("Usage recorder stop timed out")
		return ctx.Err()
	}
}

func (r *Recorder) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-r.stopCh:
			r.drain()
			return
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(rec *usage.Record) {
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := s.Write(ctx, rec)
		cancel()

		metrics.RecordSinkWrite(s.Name(), err)
		if err != nil {
			r.log.Errorw("Failed to write usage record",
				"sink", s.Name(),
				"event_id", rec.EventID,
				"error", err,
			)
		}
	}
}
