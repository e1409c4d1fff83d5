package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/shopspring/decimal"

	"switchboard/internal/adapters/ai"
	catalogadapter "switchboard/internal/adapters/catalog"
	"switchboard/internal/api/health"
	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/internal/metrics"
	"switchboard/internal/orchestrator"
	usagesvc "switchboard/internal/services/usage"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// Catalog is the read side of the adapter registry.
type Catalog interface {
	Resolve(path string) (model.Model, ai.Constructor, error)
	List(filter *model.ModelFilter) []model.Model
	Providers() []string
}

// Completer runs completions. *orchestrator.Orchestrator satisfies it.
type Completer interface {
	Execute(ctx context.Context, path string, conv conversation.Conversation, opts completion.ExecuteOptions) (*completion.ChatCompletion, error)
	ExecuteStream(ctx context.Context, path string, conv conversation.Conversation, opts completion.ExecuteOptions) (*orchestrator.Stream, error)
}

// UsageTotals reports in-process usage. *usage.Tracker satisfies it.
type UsageTotals interface {
	List() []usagesvc.ModelUsage
	TotalCost() decimal.Decimal
}

// CostReport queries historical costs. *clickhouse.UsageRepository satisfies it.
type CostReport interface {
	GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error)
	GetModelCosts(ctx context.Context, provider string, from, to time.Time) (map[string]decimal.Decimal, error)
}

// CatalogRefresher triggers an out-of-band catalog reload.
type CatalogRefresher interface {
	Refresh(ctx context.Context) (catalogadapter.RefreshResult, error)
}

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Addr            string
	ServiceName     string
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestsPerMin  int
	CORSOrigins     []string
	MaxRequestBytes int64
}

// Deps are the components the routes serve. Usage, Costs and Refresher are optional.
type Deps struct {
	Catalog     Catalog
	Completions Completer
	Usage       UsageTotals
	Costs       CostReport
	Refresher   CatalogRefresher
	Health      *health.Handler
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

type handlers struct {
	deps Deps
	log  *logger.Logger
}

// NewRouter builds the chi router with every route and middleware.
func NewRouter(cfg ServerConfig, deps Deps, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.Component("api")
	}
	h := &handlers{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))

	if deps.Health != nil {
		r.Get("/health", deps.Health.HandleHealth)
		r.Get("/ready", deps.Health.HandleReadiness)
		r.Get("/live", deps.Health.HandleLiveness)
	}
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/debug/log-level", logger.LevelHandler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.MaxRequestBytes > 0 {
			r.Use(middleware.RequestSize(cfg.MaxRequestBytes))
		}
		if cfg.RequestsPerMin > 0 {
			r.Use(httprate.LimitByIP(cfg.RequestsPerMin, time.Minute))
		}

		r.Get("/models", h.listModels)
		r.Get("/models/*", h.getModel)
		r.Get("/providers", h.listProviders)
		r.Post("/chat/completions", h.chatCompletions)
		r.Get("/usage", h.usageTotals)
		r.Get("/usage/costs", h.usageCosts)
		r.Post("/catalog/refresh", h.refreshCatalog)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"status":  "running",
		})
	})

	return r
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, deps Deps, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Component("api")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	log.Infof("HTTP server configured on %s", cfg.Addr)

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.Addr,
			Handler:     NewRouter(cfg, deps, log),
			ReadTimeout: cfg.ReadTimeout,
			// streamed completions extend their own write deadline
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// requestLogger logs and measures each request, and hands the chi request id
// to the orchestrator so usage records carry it.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
				r = r.WithContext(orchestrator.WithRequestID(r.Context(), reqID))
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			metrics.RecordHTTPRequest(route, r.Method, code, time.Since(start))

			log.Debugw("HTTP request",
				"method", r.Method,
				"route", route,
				"status", code,
				"bytes", ww.BytesWritten(),
				"took", time.Since(start),
				"request_id", reqID,
			)
		})
	}
}

func (s *handlers) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		s.writeError(w, r, errors.Wrap(errors.ErrProviderUnavailable, "catalog refresh is not configured"))
		return
	}
	res, err := s.deps.Refresher.Refresh(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"source":    res.Source,
		"models":    res.Models,
		"providers": res.Providers,
		"at":        res.At.Format(time.RFC3339),
	})
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, invalidInput("from %q is not RFC3339", v)
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, invalidInput("to %q is not RFC3339", v)
		}
		to = t
	}
	if !from.Before(to) {
		return from, to, invalidInput("window %s..%s is empty", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}
