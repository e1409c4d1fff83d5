package bootstrap

import (
	"context"
	"sync"
	"time"

	"switchboard/internal/adapters/ai"
	catalogadapter "switchboard/internal/adapters/catalog"
	chclient "switchboard/internal/adapters/clickhouse"
	"switchboard/internal/adapters/config"
	"switchboard/internal/adapters/kafka"
	redisclient "switchboard/internal/adapters/redis"
	"switchboard/internal/api"
	"switchboard/internal/api/health"
	"switchboard/internal/consumers"
	"switchboard/internal/events"
	"switchboard/internal/orchestrator"
	"switchboard/internal/registry"
	chrepo "switchboard/internal/repository/clickhouse"
	usagesvc "switchboard/internal/services/usage"
	"switchboard/pkg/backoff"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure (optional, nil when not configured)
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       Repositories
	Adapters    Adapters
	Catalog     CatalogComponents
	Services    Services
	Application Application
	Background  Background

	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups data access
type Repositories struct {
	Usage *chrepo.UsageRepository // nil without ClickHouse
}

// Adapters groups backend and messaging adapters
type Adapters struct {
	Registry      *registry.Registry
	Factory       *ai.Factory
	KafkaProducer *kafka.Producer // nil without Kafka
}

// CatalogComponents groups the catalog pipeline
type CatalogComponents struct {
	Loader  *catalogadapter.Loader
	Watcher *catalogadapter.Watcher // nil unless a watched file source is used
}

// Services groups the request path services
type Services struct {
	Publisher    *events.Publisher // nil without Kafka
	Recorder     *usagesvc.Recorder
	Orchestrator *orchestrator.Orchestrator
}

// Application groups the outer surfaces
type Application struct {
	Health     *health.Handler
	HTTPServer *api.Server
}

// Background groups long-running consumers
type Background struct {
	UsageKafkaConsumer *kafka.Consumer
	UsageConsumer      *consumers.UsageConsumer
}

// NewContainer creates an empty container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())
	return &Container{
		Lifecycle: NewLifecycle(),
		WG:        &sync.WaitGroup{},
		Context:   ctx,
		Cancel:    cancel,
	}
}

// MustInit initializes all components in dependency order, panicking on failure
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitCatalog()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()

	c.Log.Info("✓ All components initialized")
}

// Start loads the catalog once, then launches background loops and the HTTP server
func (c *Container) Start() error {
	c.Log.Info("Starting components...")

	if _, err := c.Catalog.Loader.Refresh(c.Context); err != nil {
		c.Log.Errorw("Initial catalog load failed, retrying in background", "error", err)
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			c.retryCatalogLoad(c.Context)
		}()
	}

	if c.Repos.Usage != nil && c.Background.UsageConsumer == nil {
		// Stopped explicitly after the recorder drains.
		c.Repos.Usage.Start(context.Background())
	}
	c.Services.Recorder.Start(c.Context)

	c.startBackground(c.Context)
	c.startConsumers(c.Context)

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorw("HTTP server failed", "error", err)
			c.Cancel()
		}
	}()

	c.Log.Info("✓ All components started")
	return nil
}

func (c *Container) startBackground(ctx context.Context) {
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		c.Catalog.Loader.Run(ctx)
	}()

	if c.Catalog.Watcher != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			c.Catalog.Watcher.Run(ctx)
		}()
	}
}

// retryCatalogLoad keeps trying until the first snapshot lands; readiness
// stays failed until then.
func (c *Container) retryCatalogLoad(ctx context.Context) {
	b := backoff.NewManager(backoff.Config{
		MinBackoff: 2 * time.Second,
		MaxBackoff: 2 * time.Minute,
	}, logger.Component("catalog_retry"))

	err := b.Retry(ctx, func(ctx context.Context) error {
		_, err := c.Catalog.Loader.Refresh(ctx)
		return err
	})
	if err != nil && ctx.Err() == nil {
		c.Log.Errorw("Catalog load retries stopped", "error", err)
	}
}

func (c *Container) startConsumers(ctx context.Context) {
	if c.Background.UsageConsumer == nil {
		return
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Background.UsageConsumer.Start(ctx); err != nil {
			c.Log.Errorw("Usage consumer failed", "error", err)
		}
	}()
}

// Shutdown performs graceful shutdown of all components
func (c *Container) Shutdown() {
	c.Lifecycle.Shutdown(c)
}
