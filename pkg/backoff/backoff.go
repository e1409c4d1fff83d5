package backoff

import (
	"context"
	"sync"
	"time"

	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker refuses new attempts.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Manager tracks consecutive failures of one operation (a catalog fetch, a
// broker read) and hands out exponentially growing delays. After MaxFailures
// in a row the circuit opens and attempts are refused until CircuitResetAfter
// has passed.
type Manager struct {
	minBackoff   time.Duration
	maxBackoff   time.Duration
	multiplier   float64
	maxFailures  int
	circuitReset time.Duration

	mu                  sync.Mutex
	current             time.Duration
	consecutiveFailures int
	totalFailures       int
	circuitOpen         bool
	circuitOpenedAt     time.Time

	log *logger.Logger
}

// Config configures a Manager. Zero values take the defaults noted.
type Config struct {
	MinBackoff        time.Duration // Default: 1s
	MaxBackoff        time.Duration // Default: 5m
	Multiplier        float64       // Default: 2
	MaxFailures       int           // Default: 0, the circuit never opens
	CircuitResetAfter time.Duration // Default: 5m
}

// NewManager creates a manager.
func NewManager(cfg Config, log *logger.Logger) *Manager {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if cfg.CircuitResetAfter <= 0 {
		cfg.CircuitResetAfter = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Manager{
		minBackoff:   cfg.MinBackoff,
		maxBackoff:   cfg.MaxBackoff,
		multiplier:   cfg.Multiplier,
		maxFailures:  cfg.MaxFailures,
		circuitReset: cfg.CircuitResetAfter,
		current:      cfg.MinBackoff,
		log:          log,
	}
}

// Allow reports whether an attempt may be made now. An open circuit allows
// one probe once the reset period has elapsed.
func (m *Manager) Allow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.circuitOpen {
		return true
	}
	return time.Since(m.circuitOpenedAt) >= m.circuitReset
}

// Backoff returns the delay to wait before the next attempt.
func (m *Manager) Backoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// RecordFailure grows the backoff and may open the circuit.
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++
	m.totalFailures++

	next := time.Duration(float64(m.current) * m.multiplier)
	if next > m.maxBackoff {
		next = m.maxBackoff
	}
	m.current = next

	if m.maxFailures > 0 && m.consecutiveFailures >= m.maxFailures {
		if !m.circuitOpen {
			m.log.Errorw("Circuit breaker opened",
				"consecutive_failures", m.consecutiveFailures,
				"reset_after", m.circuitReset,
			)
		}
		m.circuitOpen = true
		m.circuitOpenedAt = time.Now()
	}
}

// RecordSuccess resets the backoff and closes the circuit.
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures > 0 {
		m.log.Infow("Recovered, resetting backoff", "previous_failures", m.consecutiveFailures)
	}
	if m.circuitOpen {
		m.log.Info("Circuit breaker closed")
	}

	m.current = m.minBackoff
	m.consecutiveFailures = 0
	m.circuitOpen = false
	m.circuitOpenedAt = time.Time{}
}

// Wait sleeps for the current backoff or until ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	t := time.NewTimer(m.Backoff())
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry runs fn until it succeeds, ctx is done, or the circuit opens,
// waiting the backoff between attempts.
func (m *Manager) Retry(ctx context.Context, fn func(context.Context) error) error {
	for {
		if !m.Allow() {
			return ErrCircuitOpen
		}

		err := fn(ctx)
		if err == nil {
			m.RecordSuccess()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.RecordFailure()
		m.log.Warnw("Attempt failed, backing off", "backoff", m.Backoff(), "error", err)

		if err := m.Wait(ctx); err != nil {
			return err
		}
	}
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	ConsecutiveFailures int
	TotalFailures       int
	CurrentBackoff      time.Duration
	CircuitOpen         bool
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		ConsecutiveFailures: m.consecutiveFailures,
		TotalFailures:       m.totalFailures,
		CurrentBackoff:      m.current,
		CircuitOpen:         m.circuitOpen,
	}
}
