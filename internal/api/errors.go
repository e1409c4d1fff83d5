package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"switchboard/pkg/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch errors.Kind(err) {
	case "not_found":
		return http.StatusNotFound
	case "unsupported_feature", "invalid_conversation", "invalid_input":
		return http.StatusBadRequest
	case "provider_unavailable", "missing_credential":
		return http.StatusServiceUnavailable
	case "rate_limited":
		return http.StatusTooManyRequests
	case "transport_failure":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)

	var rl *errors.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds()+0.999)))
	}

	if code >= http.StatusInternalServerError {
		s.log.With("path", r.URL.Path).ErrorWithContext(r.Context(), err, map[string]string{
			"component":  "api",
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		})
	} else {
		s.log.Debugw("Request rejected", "path", r.URL.Path, "kind", errors.Kind(err), "error", err)
	}

	writeJSON(w, code, errorBody{Error: errorDetail{
		Message: err.Error(),
		Type:    errors.Kind(err),
		Code:    code,
	}})
}

func invalidInput(format string, args ...interface{}) error {
	return errors.Wrapf(errors.ErrInvalidInput, format, args...)
}
