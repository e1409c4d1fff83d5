package testsupport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigsFromEnv(t *testing.T) {
	t.Setenv("CLICKHOUSE_HOST", "click")
	t.Setenv("CLICKHOUSE_DB", "analytics")
	t.Setenv("CLICKHOUSE_PORT", "8123")

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")

	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	ch := LoadClickHouseConfigFromEnv(t)
	assert.Equal(t, "click", ch.Host)
	assert.Equal(t, 8123, ch.Port)
	assert.Equal(t, "default", ch.User)
	assert.Equal(t, 5*time.Second, ch.DialTimeout)

	rd := LoadRedisConfigFromEnv(t)
	assert.Equal(t, "redis:6380", rd.Addr())
	assert.Equal(t, 2, rd.DB)
	assert.Equal(t, 10, rd.PoolSize)

	kc := LoadKafkaConfigFromEnv(t)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, kc.Brokers)
}

func TestLoadRedisConfigSkipsWithoutHost(t *testing.T) {
	t.Setenv("REDIS_HOST", "")

	ran := false
	t.Run("skipped", func(t *testing.T) {
		LoadRedisConfigFromEnv(t)
		ran = true
	})

	assert.False(t, ran, "expected the subtest to be skipped")
}
