package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"switchboard/internal/domain/catalog"
	"switchboard/internal/metrics"
	"switchboard/pkg/logger"
)

// Target receives a fresh snapshot. *registry.Registry satisfies it.
type Target interface {
	Populate(snap catalog.Snapshot) error
	Len() int
	Providers() []string
}

// RefreshResult describes one successful refresh.
type RefreshResult struct {
	Source    string
	Models    int
	Providers int
	At        time.Time
}

// Loader moves snapshots from a Source (falling back to a Cache) into a Target.
// Concurrent Refresh calls share one fetch.
type Loader struct {
	source   Source
	cache    Cache
	target   Target
	interval time.Duration
	log      *logger.Logger

	group singleflight.Group

	mu        sync.RWMutex
	last      RefreshResult
	onRefresh []func(ctx context.Context, res RefreshResult)
}

// LoaderConfig wires a loader. Cache is optional; Interval <= 0 disables
// periodic refresh.
type LoaderConfig struct {
	Source   Source
	Cache    Cache
	Target   Target
	Interval time.Duration
	Logger   *logger.Logger
}

func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Logger == nil {
		cfg.Logger = logger.Component("catalog_loader")
	}
	return &Loader{
		source:   cfg.Source,
		cache:    cfg.Cache,
		target:   cfg.Target,
		interval: cfg.Interval,
		log:      cfg.Logger.With("source", cfg.Source.Name()),
	}
}

// OnRefresh registers a hook run after every successful refresh.
func (l *Loader) OnRefresh(fn func(ctx context.Context, res RefreshResult)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRefresh = append(l.onRefresh, fn)
}

// Last returns the most recent successful refresh; zero before the first one.
func (l *Loader) Last() RefreshResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Refresh fetches and populates. On a source failure the cached snapshot is
// used when present; otherwise the target keeps its previous contents.
func (l *Loader) Refresh(ctx context.Context) (RefreshResult, error) {
	v, err, shared := l.group.Do("refresh", func() (interface{}, error) {
		return l.refresh(ctx)
	})
	if shared {
		l.log.Debug("Joined in-flight catalog refresh")
	}
	if err != nil {
		return RefreshResult{}, err
	}
	return v.(RefreshResult), nil
}

func (l *Loader) refresh(ctx context.Context) (RefreshResult, error) {
	start := time.Now()
	origin := l.source.Name()

	snap, err := l.source.Fetch(ctx)
	if err != nil {
		metrics.RecordCatalogRefresh(origin, l.target.Len(), err)
		l.log.Warnw("Catalog fetch failed", "error", err)

		cached, ok := l.fromCache(ctx)
		if !ok {
			return RefreshResult{}, err
		}
		snap, origin = cached, "cache"
	} else if l.cache != nil {
		if err := l.cache.Put(ctx, snap); err != nil {
			l.log.Warnw("Failed to cache catalog", "error", err)
		}
	}

	if err := l.target.Populate(snap); err != nil {
		metrics.RecordCatalogRefresh(origin, l.target.Len(), err)
		return RefreshResult{}, err
	}

	res := RefreshResult{
		Source:    origin,
		Models:    l.target.Len(),
		Providers: len(l.target.Providers()),
		At:        time.Now().UTC(),
	}
	metrics.RecordCatalogRefresh(origin, res.Models, nil)

	l.mu.Lock()
	l.last = res
	hooks := append([]func(context.Context, RefreshResult){}, l.onRefresh...)
	l.mu.Unlock()

	l.log.Infow("Catalog refreshed",
		"from", origin,
		"models", res.Models,
		"providers", res.Providers,
		"took", time.Since(start),
	)

	for _, hook := range hooks {
		hook(ctx, res)
	}
	return res, nil
}

func (l *Loader) fromCache(ctx context.Context) (catalog.Snapshot, bool) {
	if l.cache == nil {
		return nil, false
	}
	snap, ok, err := l.cache.Get(ctx)
	if err != nil {
		l.log.Warnw("Catalog cache read failed", "error", err)
		return nil, false
	}
	return snap, ok
}

// Run refreshes on every interval tick until ctx is cancelled.
func (l *Loader) Run(ctx context.Context) {
	if l.interval <= 0 {
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
				l.log.Errorw("Periodic catalog refresh failed", "error", err)
			}
		}
	}
}
