package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"switchboard/pkg/logger"
)

// Check probes one dependency. A nil error means healthy.
type Check struct {
	Name string
	// Critical checks fail readiness; the rest only degrade /health.
	Critical bool
	Probe    func(ctx context.Context) error
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      []Check
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(log *logger.Logger, serviceName, version string, checks ...Check) *Handler {
	if log == nil {
		log = logger.Component("health")
	}
	return &Handler{
		log:         log,
		checks:      checks,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK if service is running
// Used by Kubernetes liveness probe
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness fails when any critical check fails.
// Used by Kubernetes readiness probe
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, _, criticalFailed := h.run(ctx)
	status := h.status(checks)

	statusCode := http.StatusOK
	if criticalFailed {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", checks)
	}

	writeJSON(w, statusCode, status)
}

// HandleHealth returns detailed health status (includes all checks)
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks, failed, criticalFailed := h.run(ctx)
	status := h.status(checks)

	statusCode := http.StatusOK
	switch {
	case criticalFailed:
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case failed > 0:
		// degraded still answers 200
		status.Status = "degraded"
	}

	writeJSON(w, statusCode, status)
}

// run probes every dependency concurrently; one slow store does not hold
// up the others.
func (h *Handler) run(ctx context.Context) (map[string]ComponentHealth, int, bool) {
	type outcome struct {
		check   Check
		err     error
		elapsed time.Duration
	}
	outcomes := make([]outcome, len(h.checks))

	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			start := time.Now()
			err := c.Probe(ctx)
			outcomes[i] = outcome{check: c, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]ComponentHealth, len(outcomes))
	failed := 0
	criticalFailed := false

	for _, o := range outcomes {
		if o.err != nil {
			h.log.Warnw("Health check failed", "component", o.check.Name, "error", o.err, "elapsed", o.elapsed)
			results[o.check.Name] = ComponentHealth{
				Status:       "unhealthy",
				ResponseTime: o.elapsed.String(),
				Error:        o.err.Error(),
			}
			failed++
			if o.check.Critical {
				criticalFailed = true
			}
			continue
		}

		results[o.check.Name] = ComponentHealth{
			Status:       "healthy",
			ResponseTime: o.elapsed.String(),
		}
	}

	return results, failed, criticalFailed
}

func (h *Handler) status(checks map[string]ComponentHealth) HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
