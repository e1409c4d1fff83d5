package sentry

import (
	"context"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/pkg/errors"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		kind string
		want sentry.Level
	}{
		{"invalid_input", sentry.LevelWarning},
		{"rate_limited", sentry.LevelWarning},
		{"not_found", sentry.LevelWarning},
		{"transport_failure", sentry.LevelError},
		{"missing_credential", sentry.LevelError},
		{"internal", sentry.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.want, levelFor(tt.kind))
		})
	}
}

func TestTrackerWithoutDSNIsHarmless(t *testing.T) {
	tracker, err := New(Options{Environment: "test"})
	require.NoError(t, err)

	err = tracker.CaptureError(context.Background(),
		errors.Wrap(errors.ErrTransport, "upstream 502"),
		map[string]string{"provider": "openai"},
	)
	assert.NoError(t, err)
	assert.NoError(t, tracker.CaptureError(context.Background(), nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, tracker.Flush(ctx))
}
