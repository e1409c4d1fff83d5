package ai

import (
	"net/http"
	"strconv"
	"time"

	"switchboard/pkg/errors"
)

// ClassifyError maps a backend failure into the error taxonomy. A 429 becomes a
// RateLimitError, anything else a TransportError. Nothing here is retried.
func ClassifyError(provider, modelName string, status int, err error) error {
	if err == nil {
		return nil
	}
	// already classified, e.g. by a local limiter
	if errors.Is(err, errors.ErrRateLimitExceeded) || errors.Is(err, errors.ErrTransport) {
		return err
	}
	if status == http.StatusTooManyRequests {
		return &errors.RateLimitError{Provider: provider, Err: err}
	}
	return &errors.TransportError{Provider: provider, Model: modelName, StatusCode: status, Err: err}
}

// classifyResponse is ClassifyError for raw HTTP responses; it also honours Retry-After.
func classifyResponse(provider, modelName string, resp *http.Response, err error) error {
	classified := ClassifyError(provider, modelName, resp.StatusCode, err)
	var rl *errors.RateLimitError
	if errors.As(classified, &rl) {
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			rl.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return classified
}
