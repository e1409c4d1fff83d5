package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"switchboard/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Adapters      AdaptersConfig
	Catalog       CatalogConfig
	RateLimits    RateLimitsConfig
	Redis         RedisConfig
	ClickHouse    ClickHouseConfig
	Kafka         KafkaConfig
	Usage         UsageConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"switchboard"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type HTTPConfig struct {
	Port             int           `envconfig:"HTTP_PORT" default:"8080"`
	RequestsPerMin   int           `envconfig:"HTTP_RATE_LIMIT_PER_MINUTE" default:"600"`
	CORSOrigins      []string      `envconfig:"HTTP_CORS_ORIGINS" default:"*"`
	ReadTimeout      time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout     time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10m"`
	ShutdownTimeout  time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	MaxRequestBodyMB int64         `envconfig:"HTTP_MAX_REQUEST_BODY_MB" default:"20"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AdaptersConfig sizes the shared backend HTTP clients. Timeouts are whole seconds.
type AdaptersConfig struct {
	MaxConnections          int    `envconfig:"ADAPTERS_MAX_CONNECTIONS_PER_PROCESS" default:"1000"`
	MaxKeepaliveConnections int    `envconfig:"ADAPTERS_MAX_KEEPALIVE_CONNECTIONS_PER_PROCESS" default:"100"`
	TimeoutSeconds          int    `envconfig:"ADAPTERS_HTTP_TIMEOUT" default:"600"`
	ConnectTimeoutSeconds   int    `envconfig:"ADAPTERS_HTTP_CONNECT_TIMEOUT" default:"5"`
	OverrideBaseURL         string `envconfig:"_ADAPTERS_OVERRIDE_ALL_BASE_URLS_"`
}

func (c AdaptersConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c AdaptersConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// CatalogConfig selects where the model catalog comes from. The first
// configured source wins: S3, then file, then URL.
type CatalogConfig struct {
	URL             string        `envconfig:"CATALOG_URL" default:"https://models.dev/api.json"`
	File            string        `envconfig:"CATALOG_FILE"`
	Watch           bool          `envconfig:"CATALOG_WATCH" default:"true"`
	S3Bucket        string        `envconfig:"CATALOG_S3_BUCKET"`
	S3Key           string        `envconfig:"CATALOG_S3_KEY" default:"catalog/api.json"`
	S3Region        string        `envconfig:"CATALOG_S3_REGION"`
	S3Endpoint      string        `envconfig:"CATALOG_S3_ENDPOINT"`
	FetchTimeout    time.Duration `envconfig:"CATALOG_FETCH_TIMEOUT" default:"30s"`
	RefreshInterval time.Duration `envconfig:"CATALOG_REFRESH_INTERVAL" default:"1h"`
	CacheTTL        time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"1h"`
}

// RateLimitsConfig holds per-provider request budgets, e.g. RATE_LIMITS_RPM=openai:500,groq:30.
type RateLimitsConfig struct {
	Enabled     bool               `envconfig:"RATE_LIMITS_ENABLED" default:"true"`
	Distributed bool               `envconfig:"RATE_LIMITS_DISTRIBUTED" default:"true"`
	PerProvider map[string]float64 `envconfig:"RATE_LIMITS_RPM"`
	Burst       int                `envconfig:"RATE_LIMITS_BURST" default:"0"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	PoolSize    int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis host is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"switchboard"`

	DialTimeout  time.Duration `envconfig:"CLICKHOUSE_DIAL_TIMEOUT" default:"5s"`
	MaxOpenConns int           `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
}

// Enabled reports whether a ClickHouse host is configured.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Async   bool     `envconfig:"KAFKA_ASYNC" default:"false"`
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type UsageConfig struct {
	BatchSize     int           `envconfig:"USAGE_BATCH_SIZE" default:"500"`
	FlushInterval time.Duration `envconfig:"USAGE_FLUSH_INTERVAL" default:"5s"`
	QueueSize     int           `envconfig:"USAGE_QUEUE_SIZE" default:"1024"`
	Topic         string        `envconfig:"USAGE_TOPIC" default:"usage.recorded"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}

// APIKeyVar is the environment variable holding a provider's key:
// upper-cased, dashes turned into underscores, suffixed with _API_KEY.
func APIKeyVar(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}

// APIKey reads the key of a provider from the environment, or "".
func APIKey(provider string) string {
	return os.Getenv(APIKeyVar(provider))
}

// EnvCredentials serves provider keys from the process environment.
type EnvCredentials struct{}

func (EnvCredentials) APIKey(provider string) string { return APIKey(provider) }
