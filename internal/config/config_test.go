package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RPC_URL", "http://node:26657/")
	t.Setenv("API_URL", "http://node:1317")
	t.Setenv("DATABASE_URL", "postgres://indexer:secret@db:5432/chain?sslmode=disable")
	t.Setenv("COIN_MINIMAL_DENOM", "uaura")
	t.Setenv("COIN_DECIMALS", "6")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://node:26657", cfg.RPCURL)
	assert.Equal(t, DatabaseSchemePostgres, cfg.DBDialect)
	assert.Equal(t, int32(6), cfg.CoinDecimals)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, int64(100), cfg.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.GapInterval)
	assert.Equal(t, time.Second, cfg.WorkerInterval)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("THREADS", "16")
	t.Setenv("GAP_INTERVAL", "500ms")
	t.Setenv("START_HEIGHT", "12000")
	t.Setenv("TUI", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Threads)
	assert.Equal(t, 500*time.Millisecond, cfg.GapInterval)
	assert.Equal(t, int64(12000), cfg.StartHeight)
	assert.True(t, cfg.TUI)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("THREADS", "")
	t.Setenv("COIN_DECIMALS", "")

	path := filepath.Join(t.TempDir(), "indexer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
threads: 8
batch_size: 250
coin_decimals: 18
worker_interval: 2s
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BATCH_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, int64(50), cfg.BatchSize)
	assert.Equal(t, int32(18), cfg.CoinDecimals)
	assert.Equal(t, 2*time.Second, cfg.WorkerInterval)
}

func TestLoad_BadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("THREADS", "many")
	t.Setenv("DATABASE_URL", "mysql://db/chain")

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "THREADS")
	assert.Contains(t, err.Error(), "unsupported DATABASE_URL scheme")
}

func TestValidate_ReportsEveryMissingField(t *testing.T) {
	for _, k := range []string{"CONFIG_FILE", "RPC_URL", "API_URL", "DATABASE_URL", "COIN_MINIMAL_DENOM", "COIN_DECIMALS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	for _, want := range []string{"RPC_URL", "API_URL", "DATABASE_URL", "COIN_MINIMAL_DENOM", "COIN_DECIMALS"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestDebugString_MasksPassword(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	require.NoError(t, err)

	s := cfg.DebugString()
	assert.NotContains(t, s, "secret")
	assert.Contains(t, s, "indexer@db:5432")

	assert.Equal(t, "host=db password=*** user=x", maskDSN(DatabaseSchemePostgres, "host=db password=hunter2 user=x"))
}
