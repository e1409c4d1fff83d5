package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RATE_LIMITS_RPM", "openai:500,groq:30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "switchboard", cfg.App.Name)
	assert.Equal(t, 1000, cfg.Adapters.MaxConnections)
	assert.Equal(t, 100, cfg.Adapters.MaxKeepaliveConnections)
	assert.Equal(t, 600*time.Second, cfg.Adapters.Timeout())
	assert.Equal(t, 5*time.Second, cfg.Adapters.ConnectTimeout())
	assert.Equal(t, "https://models.dev/api.json", cfg.Catalog.URL)
	assert.Equal(t, map[string]float64{"openai": 500, "groq": 30}, cfg.RateLimits.PerProvider)
	assert.Equal(t, "usage.recorded", cfg.Usage.Topic)
}

func TestLoadAdapterOverrides(t *testing.T) {
	t.Setenv("ADAPTERS_HTTP_TIMEOUT", "30")
	t.Setenv("_ADAPTERS_OVERRIDE_ALL_BASE_URLS_", "http://localhost:9999")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Adapters.Timeout())
	assert.Equal(t, "http://localhost:9999", cfg.Adapters.OverrideBaseURL)
}

func TestAPIKey(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", APIKeyVar("openai"))
	assert.Equal(t, "FIREWORKS_AI_API_KEY", APIKeyVar("fireworks-ai"))

	t.Setenv("FIREWORKS_AI_API_KEY", "fw")
	assert.Equal(t, "fw", APIKey("fireworks-ai"))
	assert.Equal(t, "fw", EnvCredentials{}.APIKey("fireworks-ai"))
	assert.Equal(t, "", APIKey("nobody-at-all"))
}

func TestOptionalInfrastructure(t *testing.T) {
	assert.False(t, RedisConfig{}.Enabled())
	assert.True(t, RedisConfig{Host: "localhost"}.Enabled())
	assert.Equal(t, "localhost:6379", RedisConfig{Host: "localhost", Port: 6379}.Addr())
	assert.False(t, ClickHouseConfig{}.Enabled())
	assert.False(t, KafkaConfig{}.Enabled())
	assert.True(t, KafkaConfig{Brokers: []string{"b:9092"}}.Enabled())
}
