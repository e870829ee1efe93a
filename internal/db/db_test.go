package db

import (
	"testing"

	"github.com/foundry/oms/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Sqlite(t *testing.T) {
	gdb, err := New(config.Store{Driver: "sqlite", Endpoint: ":memory:"})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	_, err := New(config.Store{Driver: "oracle"})
	assert.Error(t, err)
}

func TestSplitEndpoint(t *testing.T) {
	host, port, err := splitEndpoint("db.internal:6543")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", host)
	assert.Equal(t, "6543", port)

	host, port, err = splitEndpoint("db.internal")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", host)
	assert.Equal(t, "5432", port)
}
