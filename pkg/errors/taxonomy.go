package errors

import (
	"fmt"
	"time"
)

// NotFoundError is returned when a model path resolves to nothing.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q not found", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ProviderUnavailableError is returned when a model resolved but its provider has no adapter.
type ProviderUnavailableError struct {
	Provider string
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("no adapter registered for provider %q", e.Provider)
}

func (e *ProviderUnavailableError) Is(target error) bool { return target == ErrProviderUnavailable }

// UnsupportedFeatureError names the first capability a request could not satisfy.
type UnsupportedFeatureError struct {
	Feature string
	Model   string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("model %s does not support %s", e.Model, e.Feature)
}

func (e *UnsupportedFeatureError) Is(target error) bool { return target == ErrUnsupportedFeature }

// InvalidConversationError reports a structural violation at a turn index (-1 for the whole conversation).
type InvalidConversationError struct {
	Index  int
	Reason string
}

func (e *InvalidConversationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid conversation: %s", e.Reason)
	}
	return fmt.Sprintf("invalid conversation: turn %d: %s", e.Index, e.Reason)
}

func (e *InvalidConversationError) Is(target error) bool { return target == ErrInvalidConversation }

// TransportError wraps a backend failure without altering it.
type TransportError struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s/%s transport failure (status %d): %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s/%s transport failure: %v", e.Provider, e.Model, e.Err)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError wraps rate limit related errors with provider context.
type RateLimitError struct {
	Provider   string
	Limit      float64
	RetryAfter time.Duration
	Err        error
}

// Error implements error interface.
func (e *RateLimitError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("rate limit error for provider %s (limit: %.0f req/min): %v", e.Provider, e.Limit, e.Err)
	}
	return fmt.Sprintf("rate limit error for provider %s: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimitExceeded }

// Unwrap returns the underlying error.
func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Kind labels an error with its taxonomy name. Used for metrics and HTTP mapping.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case Is(err, ErrNotFound):
		return "not_found"
	case Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case Is(err, ErrUnsupportedFeature):
		return "unsupported_feature"
	case Is(err, ErrInvalidConversation):
		return "invalid_conversation"
	case Is(err, ErrRateLimitExceeded):
		return "rate_limited"
	case Is(err, ErrTransport):
		return "transport_failure"
	case Is(err, ErrMissingCredential):
		return "missing_credential"
	case Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
