package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientConfig tunes the shared HTTP clients used by every adapter.
type ClientConfig struct {
	MaxConnections          int
	MaxKeepaliveConnections int
	Timeout                 time.Duration
	ConnectTimeout          time.Duration
	// OverrideBaseURL, when set, replaces every provider base URL (testing proxies).
	OverrideBaseURL string
}

// DefaultClientConfig mirrors the ADAPTERS_* config defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxConnections:          1000,
		MaxKeepaliveConnections: 100,
		Timeout:                 600 * time.Second,
		ConnectTimeout:          5 * time.Second,
	}
}

type clientKey struct {
	baseURL string
	keyHash string
}

// ClientCache hands out one *http.Client per (base URL, API key) so that adapters
// built for the same backend share a connection pool.
type ClientCache struct {
	cfg ClientConfig

	mu      sync.Mutex
	clients map[clientKey]*http.Client
}

// NewClientCache creates an empty cache.
func NewClientCache(cfg ClientConfig) *ClientCache {
	return &ClientCache{cfg: cfg, clients: make(map[clientKey]*http.Client)}
}

// BaseURL applies the global override, if any.
func (c *ClientCache) BaseURL(baseURL string) string {
	if c.cfg.OverrideBaseURL != "" {
		return c.cfg.OverrideBaseURL
	}
	return baseURL
}

// Get returns the client for baseURL and apiKey, creating it on first use.
// Only a hash of the key is retained.
func (c *ClientCache) Get(baseURL, apiKey string) *http.Client {
	sum := sha256.Sum256([]byte(apiKey))
	key := clientKey{baseURL: baseURL, keyHash: hex.EncodeToString(sum[:])}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[key]; ok {
		return client
	}
	client := c.newClient()
	c.clients[key] = client
	return client
}

// Len reports how many distinct clients are cached.
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

func (c *ClientCache) newClient() *http.Client {
	dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       c.cfg.MaxConnections,
		MaxIdleConns:          c.cfg.MaxKeepaliveConnections,
		MaxIdleConnsPerHost:   c.cfg.MaxKeepaliveConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   c.cfg.ConnectTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: c.cfg.Timeout}
}
