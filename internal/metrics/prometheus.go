package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

var (
	// Adapter metrics
	AdapterCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_adapter_calls_total",
			Help: "Total number of adapter invocations",
		},
		[]string{"provider", "model", "mode", "status"}, // mode: invoke|stream, status: error kind or ok
	)

	AdapterLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_adapter_latency_seconds",
			Help:    "Adapter call latency in seconds (time to first chunk for streams)",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model", "mode"},
	)

	Tokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_tokens_total",
			Help: "Total tokens reported by backends",
		},
		[]string{"provider", "model", "type"}, // type: prompt|completion|reasoning
	)

	Cost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_cost_usd_total",
			Help: "Total computed cost in USD",
		},
		[]string{"provider", "model"},
	)

	// Request rejected before any adapter was built
	RequestRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_request_rejections_total",
			Help: "Requests rejected during resolution or normalization",
		},
		[]string{"phase", "kind"},
	)

	NormalizationRewrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_normalization_rewrites_total",
			Help: "Conversation rewrites applied by the normalization pipeline",
		},
		[]string{"step"},
	)

	// Catalog metrics
	RegistryModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchboard_registry_models",
			Help: "Number of models in the current registry snapshot",
		},
	)

	CatalogRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_catalog_refreshes_total",
			Help: "Catalog refresh attempts",
		},
		[]string{"source", "status"}, // status: success|error
	)

	CatalogLastRefresh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchboard_catalog_last_refresh_timestamp",
			Help: "Unix timestamp of the last successful catalog refresh",
		},
	)

	// Usage sink metrics
	UsageSinkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_usage_sink_writes_total",
			Help: "Usage records written per sink",
		},
		[]string{"sink", "status"}, // sink: clickhouse|kafka
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_kafka_messages_total",
			Help: "Total Kafka messages produced or handled",
		},
		[]string{"topic", "status"},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"route", "method", "code"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		AdapterCalls, AdapterLatency, Tokens, Cost,
		RequestRejections, NormalizationRewrites,
		RegistryModels, CatalogRefreshes, CatalogLastRefresh,
		UsageSinkWrites, DBQueries, DBQueryDuration, KafkaMessages,
		HTTPRequests, HTTPDuration,
	}
}

// Init registers all metrics with the default Prometheus registry.
func Init() {
	for _, c := range collectors() {
		prometheus.MustRegister(c)
	}
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return errors.Kind(err)
}

// RecordAdapterCall records one adapter invocation.
func RecordAdapterCall(provider, modelName, mode string, latency time.Duration, err error) {
	AdapterCalls.WithLabelValues(provider, modelName, mode, status(err)).Inc()
	AdapterLatency.WithLabelValues(provider, modelName, mode).Observe(latency.Seconds())
}

// RecordUsage adds reported tokens and the computed cost.
func RecordUsage(provider, modelName string, usage model.TokenUsage, cost decimal.Decimal) {
	if usage.PromptTokens > 0 {
		Tokens.WithLabelValues(provider, modelName, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		Tokens.WithLabelValues(provider, modelName, "completion").Add(float64(usage.CompletionTokens))
	}
	if usage.ReasoningTokens > 0 {
		Tokens.WithLabelValues(provider, modelName, "reasoning").Add(float64(usage.ReasoningTokens))
	}
	if cost.IsPositive() {
		Cost.WithLabelValues(provider, modelName).Add(cost.InexactFloat64())
	}
}

// RecordRejection records a request that failed before invocation.
func RecordRejection(phase string, err error) {
	RequestRejections.WithLabelValues(phase, status(err)).Inc()
}

// RecordRewrites counts the normalization steps that changed a conversation.
func RecordRewrites(steps []string) {
	for _, s := range steps {
		NormalizationRewrites.WithLabelValues(s).Inc()
	}
}

// RecordCatalogRefresh records a catalog load attempt.
func RecordCatalogRefresh(source string, models int, err error) {
	if err != nil {
		CatalogRefreshes.WithLabelValues(source, "error").Inc()
		return
	}
	CatalogRefreshes.WithLabelValues(source, "success").Inc()
	CatalogLastRefresh.SetToCurrentTime()
	RegistryModels.Set(float64(models))
}

// RecordSinkWrite records a usage sink write.
func RecordSinkWrite(sink string, err error) {
	s := "success"
	if err != nil {
		s = "error"
	}
	UsageSinkWrites.WithLabelValues(sink, s).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	s := "success"
	if err != nil {
		s = "error"
	}

	DBQueries.WithLabelValues(database, operation, s).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced message.
func RecordKafkaMessage(topic string, err error) {
	s := "success"
	if err != nil {
		s = "error"
	}
	KafkaMessages.WithLabelValues(topic, s).Inc()
}

// RecordHTTPRequest records one served request. route is the matched pattern.
func RecordHTTPRequest(route, method string, code int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}
