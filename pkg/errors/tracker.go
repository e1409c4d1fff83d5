package errors

import (
	"context"
)

// Tracker reports server-side failures to an external service.
type Tracker interface {
	// CaptureError reports err with the given tags. Implementations add the
	// error's Kind themselves.
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// Flush blocks until pending reports are sent or ctx is done.
	Flush(ctx context.Context) error
}
