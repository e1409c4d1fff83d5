package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"switchboard/pkg/errors"
)

// Options configures the Sentry client
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// Tracker reports errors to Sentry, one cloned hub per event so tags from
// concurrent requests never mix.
type Tracker struct {
	hub *sentry.Hub
}

var _ errors.Tracker = (*Tracker)(nil)

// New initializes the Sentry SDK.
func New(opts Options) (*Tracker, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		SampleRate:  opts.SampleRate,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init sentry")
	}

	return &Tracker{hub: sentry.CurrentHub()}, nil
}

// CaptureError sends err tagged with its kind. Client-side kinds are
// reported at warning level; everything else is an error.
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	if err == nil {
		return nil
	}

	hub := t.hub.Clone()
	kind := errors.Kind(err)

	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("error_kind", kind)
		scope.SetLevel(levelFor(kind))
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if provider, ok := tags["provider"]; ok {
			scope.SetFingerprint([]string{kind, provider})
		}
	})

	hub.CaptureException(err)
	return nil
}

// Flush waits for pending events until ctx's deadline, or 2s without one.
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !t.hub.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

func levelFor(kind string) sentry.Level {
	switch kind {
	case "invalid_input", "invalid_conversation", "unsupported_feature", "not_found", "rate_limited":
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}
