package testsupport

import (
	"os"
	"testing"

	"github.com/kelseyhightower/envconfig"

	"switchboard/internal/adapters/config"
)

// LoadRedisConfigFromEnv reads Redis settings the same way the service does.
// The test is skipped when REDIS_HOST is not set.
func LoadRedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()
	requireEnv(t, "REDIS_HOST")

	var cfg config.RedisConfig
	process(t, &cfg)
	return cfg
}

// LoadClickHouseConfigFromEnv reads ClickHouse settings the same way the
// service does. The test is skipped when CLICKHOUSE_HOST or CLICKHOUSE_DB is not set.
func LoadClickHouseConfigFromEnv(t *testing.T) config.ClickHouseConfig {
	t.Helper()
	requireEnv(t, "CLICKHOUSE_HOST", "CLICKHOUSE_DB")

	var cfg config.ClickHouseConfig
	process(t, &cfg)
	return cfg
}

// LoadKafkaConfigFromEnv reads the broker list, skipping the test when KAFKA_BROKERS is unset.
func LoadKafkaConfigFromEnv(t *testing.T) config.KafkaConfig {
	t.Helper()
	requireEnv(t, "KAFKA_BROKERS")

	var cfg config.KafkaConfig
	process(t, &cfg)
	return cfg
}

func process(t *testing.T, dst interface{}) {
	t.Helper()
	if err := envconfig.Process("", dst); err != nil {
		t.Fatalf("invalid integration environment: %v", err)
	}
}

func requireEnv(t *testing.T, keys ...string) {
	t.Helper()

	var missing []string
	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		t.Skipf("integration environment missing, set %v to run", missing)
	}
}
