package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 1000, cfg.Cache.Size)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 500, cfg.Outbox.PollIntervalMS)
	assert.Equal(t, 10, cfg.Outbox.MaxRetries)
	assert.Equal(t, 30, cfg.Validation.TimeoutSeconds)
	assert.False(t, cfg.MultiPlatformRouting)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_ENDPOINT", "/tmp/oms.db")
	t.Setenv("OUTBOX_BATCH_SIZE", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/oms.db", cfg.Store.Endpoint)
	assert.Equal(t, 250, cfg.Outbox.BatchSize)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongodb")
	_, err := Load()
	assert.Error(t, err)
}
