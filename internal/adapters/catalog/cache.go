package catalog

import (
	"context"
	"time"

	"switchboard/internal/adapters/redis"
	"switchboard/internal/domain/catalog"
	"switchboard/pkg/errors"
)

// DefaultCacheKey is where the last good snapshot is kept.
const DefaultCacheKey = "catalog:snapshot"

// Cache keeps the last good snapshot so a restart survives an unreachable source.
type Cache interface {
	Get(ctx context.Context) (catalog.Snapshot, bool, error)
	Put(ctx context.Context, snap catalog.Snapshot) error
}

// RedisCache stores the snapshot as one JSON value with a TTL.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = DefaultCacheKey
	}
	return &RedisCache{client: client, key: key, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) (catalog.Snapshot, bool, error) {
	var snap catalog.Snapshot
	err := c.client.Get(ctx, c.key, &snap)
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read cached catalog")
	}
	return snap, len(snap) > 0, nil
}

func (c *RedisCache) Put(ctx context.Context, snap catalog.Snapshot) error {
	if err := c.client.Set(ctx, c.key, snap, c.ttl); err != nil {
		return errors.Wrap(err, "cache catalog")
	}
	return nil
}
