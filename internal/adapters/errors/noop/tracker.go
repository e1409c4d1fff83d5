package noop

import (
	"context"
	"sync"

	"switchboard/pkg/errors"
)

// Tracker keeps captured errors in memory. It is the tracker when no
// Sentry DSN is configured, and lets tests assert a failure was reported.
type Tracker struct {
	mu       sync.Mutex
	captured []error
}

var _ errors.Tracker = (*Tracker)(nil)

// New creates a new no-op tracker
func New() *Tracker {
	return &Tracker{}
}

// CaptureError remembers err.
func (t *Tracker) CaptureError(_ context.Context, err error, _ map[string]string) error {
	t.mu.Lock()
	t.captured = append(t.captured, err)
	t.mu.Unlock()
	return nil
}

// Captured returns the errors seen so far
func (t *Tracker) Captured() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]error(nil), t.captured...)
}

// Flush does nothing
func (t *Tracker) Flush(context.Context) error {
	return nil
}
