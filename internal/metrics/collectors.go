package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"switchboard/internal/domain/model"
	"switchboard/pkg/logger"
)

// ModelLister is the read side of the registry.
type ModelLister interface {
	Providers() []string
	List(filter *model.ModelFilter) []model.Model
}

// CatalogCollector reports registry contents and shared infrastructure state at scrape time.
type CatalogCollector struct {
	log      *logger.Logger
	registry ModelLister
	redis    *redis.Client

	// Descriptors
	modelsByProvider   *prometheus.Desc
	modelsByCapability *prometheus.Desc
	rateLimitKeys      *prometheus.Desc
}

// NewCatalogCollector creates a collector. redis may be nil.
func NewCatalogCollector(log *logger.Logger, registry ModelLister, redis *redis.Client) *CatalogCollector {
	if log == nil {
		log = logger.NewNop()
	}
	return &CatalogCollector{
		log:      log,
		registry: registry,
		redis:    redis,

		modelsByProvider: prometheus.NewDesc(
			"switchboard_models_by_provider",
			"Number of registered models per provider",
			[]string{"provider"}, nil,
		),
		modelsByCapability: prometheus.NewDesc(
			"switchboard_models_by_capability",
			"Number of registered models supporting a capability",
			[]string{"capability"}, nil,
		),
		rateLimitKeys: prometheus.NewDesc(
			"switchboard_rate_limit_buckets",
			"Number of distributed rate limit buckets in Redis",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CatalogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.modelsByProvider
	ch <- c.modelsByCapability
	ch <- c.rateLimitKeys
}

// Collect implements prometheus.Collector
func (c *CatalogCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectProviders(ch)
	c.collectCapabilities(ch)

	if c.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.collectRateLimitBuckets(ctx, ch)
	}
}

func (c *CatalogCollector) collectProviders(ch chan<- prometheus.Metric) {
	for _, provider := range c.registry.Providers() {
		p := provider
		count := len(c.registry.List(&model.ModelFilter{Provider: &p}))
		ch <- prometheus.MustNewConstMetric(
			c.modelsByProvider,
			prometheus.GaugeValue,
			float64(count),
			provider,
		)
	}
}

func (c *CatalogCollector) collectCapabilities(ch chan<- prometheus.Metric) {
	var streaming, vision, tools, temperature int
	for _, m := range c.registry.List(nil) {
		if m.Capabilities.SupportsStreaming {
			streaming++
		}
		if m.Capabilities.SupportsVision {
			vision++
		}
		if m.Capabilities.SupportsTools {
			tools++
		}
		if m.Capabilities.SupportsTemperature {
			temperature++
		}
	}

	for name, count := range map[string]int{
		"streaming":   streaming,
		"vision":      vision,
		"tools":       tools,
		"temperature": temperature,
	} {
		ch <- prometheus.MustNewConstMetric(c.modelsByCapability, prometheus.GaugeValue, float64(count), name)
	}
}

func (c *CatalogCollector) collectRateLimitBuckets(ctx context.Context, ch chan<- prometheus.Metric) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, "rate_limit:llm:*", 100).Result()
		if err != nil {
			c.log.Warnw("Failed to collect rate limit buckets", "error", err)
			return
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	ch <- prometheus.MustNewConstMetric(c.rateLimitKeys, prometheus.GaugeValue, float64(total))
}

// RegisterCatalogCollector registers the collector with the default registry.
func RegisterCatalogCollector(collector *CatalogCollector) {
	prometheus.MustRegister(collector)
}
