package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/pkg/errors"
)

type captureTracker struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (c *captureTracker) CaptureError(_ context.Context, err error, tags map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
	c.tags = append(c.tags, tags)
	return nil
}

func (c *captureTracker) Flush(context.Context) error { return nil }

func TestErrorWithContextReportsToTracker(t *testing.T) {
	tracker := &captureTracker{}
	log := NewNop()
	log.errorTracker = tracker

	err := errors.Wrapf(errors.ErrTransport, "upstream 500")
	tags := map[string]string{"component": "api"}
	log.With("path", "/v1/chat/completions").ErrorWithContext(context.Background(), err, tags)

	require.Len(t, tracker.errs, 1)
	assert.ErrorIs(t, tracker.errs[0], errors.ErrTransport)
	assert.Equal(t, map[string]string{"component": "api", "kind": "transport_failure"}, tracker.tags[0])
	assert.NotContains(t, tags, "kind", "caller tags are not modified")
}

func TestErrorWithContextKeepsCallerKind(t *testing.T) {
	tracker := &captureTracker{}
	log := NewNop()
	log.errorTracker = tracker

	log.ErrorWithContext(context.Background(), errors.New("boom"), map[string]string{"kind": "custom"})
	require.Len(t, tracker.tags, 1)
	assert.Equal(t, "custom", tracker.tags[0]["kind"])
}

func TestErrorWithoutTrackerOnlyLogs(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() {
		log.ErrorWithContext(context.Background(), errors.New("boom"), nil)
		log.Errorf("failed: %d", 1)
	})
}

func TestSetLevel(t *testing.T) {
	orig := Level()
	t.Cleanup(func() { _ = SetLevel(orig) })

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, "debug", Level())

	err := SetLevel("loud")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Equal(t, "debug", Level(), "a bad level leaves the current one")
}

func TestLevelHandler(t *testing.T) {
	orig := Level()
	t.Cleanup(func() { _ = SetLevel(orig) })

	req := httptest.NewRequest(http.MethodPut, "/debug/log-level", strings.NewReader(`{"level":"warn"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	LevelHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "warn", Level())
}

func TestComponentWithoutInitFallsBack(t *testing.T) {
	assert.NotNil(t, Component("test"))
}
