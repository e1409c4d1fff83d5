package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"switchboard/internal/adapters/config"
	"switchboard/internal/metrics"
	"switchboard/pkg/errors"
)

// ErrNil is returned by Get when the key does not exist.
var ErrNil = redis.Nil

// Client holds the shared Redis connection. The catalog cache uses the
// JSON helpers; distributed rate limiting takes the raw client.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings before returning.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	c := Wrap(rdb)
	if err := c.Health(ctx); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Addr())
	}
	return c, nil
}

// Wrap builds a Client around an existing connection.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Client returns the underlying client.
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	metrics.RecordDBQuery("redis", "ping", time.Since(start), err)
	return err
}

// Set stores value as JSON. A zero ttl keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}

	start := time.Now()
	err = c.rdb.Set(ctx, key, data, ttl).Err()
	metrics.RecordDBQuery("redis", "set", time.Since(start), err)
	return err
}

// Get decodes the JSON value at key into dest. Returns ErrNil when the key is missing.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	start := time.Now()
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordDBQuery("redis", "get", time.Since(start), nil)
		return ErrNil
	}
	metrics.RecordDBQuery("redis", "get", time.Since(start), err)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrapf(err, "decode %s", key)
	}
	return nil
}
