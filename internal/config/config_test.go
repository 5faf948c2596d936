package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, ":8081", cfg.Addr())
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.EditWindow)
	assert.Equal(t, 5000, cfg.MaxBodyChars)
	assert.EqualValues(t, 10<<20, cfg.MaxAttachmentBytes)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadConfig_ParsesLists(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CORS_ORIGINS", "https://app.example.com")
	t.Setenv("GUEST_RATE_WINDOW", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.GuestRateWindow)
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoadConfig_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ENV", "production")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	t.Setenv("CONVO_TEST_KEY", "set")
	assert.Equal(t, "set", GetEnv("CONVO_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("CONVO_TEST_MISSING", "fallback"))
}
