package bootstrap

import (
	"context"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"switchboard/internal/adapters/ai"
	catalogadapter "switchboard/internal/adapters/catalog"
	chclient "switchboard/internal/adapters/clickhouse"
	"switchboard/internal/adapters/config"
	errnoop "switchboard/internal/adapters/errors/noop"
	"switchboard/internal/adapters/errors/sentry"
	"switchboard/internal/adapters/kafka"
	redisclient "switchboard/internal/adapters/redis"
	"switchboard/internal/api"
	"switchboard/internal/api/health"
	"switchboard/internal/consumers"
	"switchboard/internal/events"
	"switchboard/internal/metrics"
	"switchboard/internal/orchestrator"
	"switchboard/internal/registry"
	chrepo "switchboard/internal/repository/clickhouse"
	usagesvc "switchboard/internal/services/usage"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env, cfg.App.Name); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the optional data stores (ClickHouse, Redis)
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	var err error

	if c.Config.ClickHouse.Enabled() {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	} else {
		c.Log.Info("ClickHouse not configured, usage history disabled")
	}

	if c.Config.Redis.Enabled() {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	} else {
		c.Log.Info("Redis not configured, using local rate limits and no catalog cache")
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories initializes the usage repository when ClickHouse is available
func (c *Container) MustInitRepositories() {
	if c.CH == nil {
		return
	}

	c.Repos.Usage = chrepo.NewUsageRepository(c.CH.Conn(), chrepo.UsageRepositoryConfig{
		MaxBatchSize: c.Config.Usage.BatchSize,
		MaxAge:       c.Config.Usage.FlushInterval,
	})

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	if err := c.Repos.Usage.EnsureSchema(ctx); err != nil {
		c.Log.Fatalf("failed to prepare usage table: %v", err)
	}
	c.Log.Info("✓ Usage repository initialized")
}

// ========================================
// Phase 4: Adapters
// ========================================

// MustInitAdapters builds the registry and binds the adapter constructors
func (c *Container) MustInitAdapters() {
	reg, err := registry.NewDefault(logger.Component("registry"))
	if err != nil {
		c.Log.Fatalf("failed to load registry tables: %v", err)
	}
	c.Adapters.Registry = reg

	clients := ai.NewClientCache(provideClientConfig(c.Config.Adapters))
	c.Adapters.Factory = ai.NewFactory(clients, c.provideRateLimiters(), reg.Defaults().BaseURL)
	c.Adapters.Factory.RegisterAll(reg)

	metrics.RegisterCatalogCollector(metrics.NewCatalogCollector(
		logger.Component("catalog_collector"), reg, c.redisClient(),
	))

	if c.Config.Kafka.Enabled() {
		c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
	}

	c.Log.Info("✓ Adapters initialized")
}

// ========================================
// Phase 5: Catalog
// ========================================

// MustInitCatalog wires the catalog source, cache, loader and file watcher
func (c *Container) MustInitCatalog() {
	cfg := c.Config.Catalog

	source, err := provideCatalogSource(c.Context, cfg)
	if err != nil {
		c.Log.Fatalf("failed to configure catalog source: %v", err)
	}

	var cache catalogadapter.Cache
	if c.Redis != nil {
		cache = catalogadapter.NewRedisCache(c.Redis, catalogadapter.DefaultCacheKey, cfg.CacheTTL)
	}

	c.Catalog.Loader = catalogadapter.NewLoader(catalogadapter.LoaderConfig{
		Source:   source,
		Cache:    cache,
		Target:   c.Adapters.Registry,
		Interval: cfg.RefreshInterval,
		Logger:   logger.Component("catalog_loader"),
	})

	if fs, ok := source.(*catalogadapter.FileSource); ok && cfg.Watch {
		c.Catalog.Watcher, err = catalogadapter.NewWatcher(fs.Path(), c.Catalog.Loader, 0, logger.Component("catalog_watcher"))
		if err != nil {
			c.Log.Fatalf("failed to watch catalog file: %v", err)
		}
	}

	c.Log.Infow("✓ Catalog configured", "source", source.Name())
}

// ========================================
// Phase 6: Services
// ========================================

// MustInitServices wires the usage fan-out and the orchestrator
func (c *Container) MustInitServices() {
	var sinks []usagesvc.Sink

	if c.Adapters.KafkaProducer != nil {
		c.Services.Publisher = events.NewPublisher(c.Adapters.KafkaProducer, c.Config.Usage.Topic, logger.Component("events"))
		sinks = append(sinks, usagesvc.NewPublisherSink("kafka", c.Services.Publisher))

		publisher := c.Services.Publisher
		c.Catalog.Loader.OnRefresh(func(ctx context.Context, res catalogadapter.RefreshResult) {
			err := publisher.PublishCatalogRefreshed(ctx, events.CatalogRefreshedEvent{
				Timestamp: res.At,
				Source:    res.Source,
				Models:    res.Models,
				Providers: res.Providers,
			})
			if err != nil {
				c.Log.Warnw("Failed to publish catalog refresh", "error", err)
			}
		})
	} else if c.Repos.Usage != nil {
		sinks = append(sinks, usagesvc.NewRepositorySink("clickhouse", c.Repos.Usage))
	}

	c.Services.Recorder = usagesvc.NewRecorder(nil, sinks, usagesvc.RecorderConfig{
		QueueSize: c.Config.Usage.QueueSize,
	}, logger.Component("usage_recorder"))

	c.Services.Orchestrator = orchestrator.New(
		c.Adapters.Registry,
		config.EnvCredentials{},
		c.Services.Recorder,
		logger.Component("orchestrator"),
	)

	c.Log.Infow("✓ Services initialized", "usage_sinks", len(sinks))
}

// ========================================
// Phase 7: Application Layer
// ========================================

// MustInitApplication builds health checks and the HTTP server
func (c *Container) MustInitApplication() {
	cfg := c.Config

	c.Application.Health = health.New(
		logger.Component("health"),
		cfg.App.Name,
		cfg.App.Version,
		c.provideHealthChecks()...,
	)

	deps := api.Deps{
		Catalog:     c.Adapters.Registry,
		Completions: c.Services.Orchestrator,
		Usage:       c.Services.Recorder.Tracker(),
		Refresher:   c.Catalog.Loader,
		Health:      c.Application.Health,
	}
	if c.Repos.Usage != nil {
		deps.Costs = c.Repos.Usage
	}

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Addr:            cfg.HTTP.Addr(),
		ServiceName:     cfg.App.Name,
		Version:         cfg.App.Version,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		RequestsPerMin:  cfg.HTTP.RequestsPerMin,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		MaxRequestBytes: cfg.HTTP.MaxRequestBodyMB << 20,
	}, deps, logger.Component("api"))

	c.Log.Info("✓ Application layer initialized")
}

// ========================================
// Phase 8: Background consumers
// ========================================

// MustInitBackground wires the Kafka to ClickHouse usage consumer when both are configured
func (c *Container) MustInitBackground() {
	if c.Adapters.KafkaProducer == nil || c.Repos.Usage == nil {
		return
	}

	c.Background.UsageKafkaConsumer = provideKafkaConsumer(c.Config, c.Config.Usage.Topic, kafka.GroupUsageWriter, c.Log)
	c.Background.UsageConsumer = consumers.NewUsageConsumer(
		c.Background.UsageKafkaConsumer,
		c.Repos.Usage,
		logger.Component("usage_consumer"),
	)

	c.Log.Info("✓ Background consumers initialized")
}

// ========================================
// Helper Provider Functions
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(sentry.Options{
		DSN:         cfg.ErrorTracking.SentryDSN,
		Environment: cfg.ErrorTracking.Environment,
		Release:     cfg.App.Name + "@" + cfg.App.Version,
	})
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideClientConfig(cfg config.AdaptersConfig) ai.ClientConfig {
	return ai.ClientConfig{
		MaxConnections:          cfg.MaxConnections,
		MaxKeepaliveConnections: cfg.MaxKeepaliveConnections,
		Timeout:                 cfg.Timeout(),
		ConnectTimeout:          cfg.ConnectTimeout(),
		OverrideBaseURL:         cfg.OverrideBaseURL,
	}
}

func (c *Container) provideRateLimiters() *ai.RateLimiterFactory {
	cfg := c.Config.RateLimits
	if !cfg.Enabled {
		return nil
	}

	overrides := make(map[string]ai.RateLimitConfig, len(cfg.PerProvider))
	for provider, rpm := range cfg.PerProvider {
		overrides[ai.NormalizeProviderName(provider)] = ai.RateLimitConfig{
			Enabled:      rpm > 0,
			ReqPerMinute: rpm,
			Burst:        cfg.Burst,
		}
	}

	if cfg.Distributed && c.Redis != nil {
		return ai.NewRateLimiterFactory(c.Redis.Client(), overrides)
	}
	return ai.NewRateLimiterFactory(nil, overrides)
}

func (c *Container) redisClient() *goredis.Client {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Client()
}

func provideCatalogSource(ctx context.Context, cfg config.CatalogConfig) (catalogadapter.Source, error) {
	switch {
	case cfg.S3Bucket != "":
		return catalogadapter.NewS3SourceFromEnv(ctx, cfg.S3Region, cfg.S3Endpoint, cfg.S3Bucket, cfg.S3Key)
	case cfg.File != "":
		return catalogadapter.NewFileSource(cfg.File), nil
	case cfg.URL != "":
		return catalogadapter.NewHTTPSource(cfg.URL, &http.Client{Timeout: cfg.FetchTimeout}), nil
	}
	return nil, errors.Wrap(errors.ErrInvalidInput, "no catalog source configured")
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Info("Initializing Kafka producer...")
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Async:   cfg.Kafka.Async,
	})
	log.Info("✓ Kafka producer initialized")
	return producer
}

func provideKafkaConsumer(cfg *config.Config, topic, group string, log *logger.Logger) *kafka.Consumer {
	log.Infow("Initializing Kafka consumer", "topic", topic, "group", group)
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: group,
		Topic:   topic,
	})
	log.Infow("✓ Kafka consumer initialized", "topic", topic)
	return consumer
}

func (c *Container) provideHealthChecks() []health.Check {
	checks := []health.Check{{
		Name:     "catalog",
		Critical: true,
		Probe: func(ctx context.Context) error {
			if c.Adapters.Registry.Len() == 0 {
				return errors.Wrap(errors.ErrProviderUnavailable, "catalog is empty")
			}
			return nil
		},
	}}

	if c.Redis != nil {
		checks = append(checks, health.Check{Name: "redis", Probe: c.Redis.Health})
	}
	if c.CH != nil {
		checks = append(checks, health.Check{Name: "clickhouse", Probe: c.CH.Health})
	}
	return checks
}
