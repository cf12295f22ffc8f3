package pkg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "FEED_PAGE_SIZE", "PROFILE_CACHE_TTL", "KAFKA_BROKERS", "LOG_DEV", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := ConfigFromEnv()
	assert.Equal(t, "badger", cfg.StoreBackend)
	assert.Equal(t, 10, cfg.FeedPageSize)
	assert.Equal(t, time.Hour, cfg.ProfileCacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("FEED_PAGE_SIZE", "25")
	t.Setenv("FEED_PAGE_SIZE_BAD", "x")
	t.Setenv("PROFILE_CACHE_TTL", "90s")
	t.Setenv("RECONCILE_RPS", "2.5")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("LOG_DEV", "1")
	t.Setenv("LOG_LEVEL", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 25, cfg.FeedPageSize)
	assert.Equal(t, 90*time.Second, cfg.ProfileCacheTTL)
	assert.Equal(t, 2.5, cfg.ReconcileRPS)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Dev)
}

func TestConfigValidateRejectsDefaultSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LOG_DEV", "")
	cfg := ConfigFromEnv()
	assert.Equal(t, DefaultJWTSecret, cfg.JWTSecret)
	assert.ErrorIs(t, cfg.Validate(), ErrInsecureJWTSecret)

	t.Setenv("LOG_DEV", "1")
	assert.NoError(t, ConfigFromEnv().Validate())

	t.Setenv("LOG_DEV", "")
	t.Setenv("JWT_SECRET", "a-real-secret")
	assert.NoError(t, ConfigFromEnv().Validate())
}
