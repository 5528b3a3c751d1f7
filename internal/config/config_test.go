package config

import (
	"testing"
	"time"

	"firmledger/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "FIRMLEDGER_API_ADDR", "DB_DIALECT", "DATABASE_URL", "DB_SQLITE_PATH",
		"FIRMLEDGER_ADMIN_TOKEN", "FIRMLEDGER_CATALOG", "FIRMLEDGER_AUDIT_DIR",
		"FIRMLEDGER_SEED_ON_STARTUP", "FIRMLEDGER_SAMPLER_SEED", "FIRMLEDGER_MONTH_EVERY",
		"FL_API_BASE_URL", "FL_ADMIN_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadAPIDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, db.SQLite, cfg.DBDialect)
	assert.Equal(t, "tmp/firmledger.sqlite", cfg.DSN())
	assert.True(t, cfg.SeedOnStartup)
	assert.Equal(t, 24*time.Hour, cfg.MonthEvery)
}

func TestLoadAPIOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DIALECT", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/firmledger")
	t.Setenv("FIRMLEDGER_SEED_ON_STARTUP", "false")
	t.Setenv("FIRMLEDGER_SAMPLER_SEED", "42")
	t.Setenv("FIRMLEDGER_MONTH_EVERY", "90s")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://localhost/firmledger", cfg.DSN())
	assert.False(t, cfg.SeedOnStartup)
	assert.Equal(t, int64(42), cfg.SamplerSeed)
	assert.Equal(t, 90*time.Second, cfg.MonthEvery)
}

func TestLoadAPIRejects(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DIALECT", "postgres")
	_, err := LoadAPIFromEnv()
	assert.EqualError(t, err, "DATABASE_URL is required when DB_DIALECT=postgres")

	clearEnv(t)
	t.Setenv("FIRMLEDGER_MONTH_EVERY", "-1m")
	_, err = LoadAPIFromEnv()
	assert.EqualError(t, err, "FIRMLEDGER_MONTH_EVERY must be positive")

	clearEnv(t)
	t.Setenv("DB_DIALECT", "mysql")
	_, err = LoadAPIFromEnv()
	assert.Error(t, err)
}

func TestLoadCLI(t *testing.T) {
	clearEnv(t)
	t.Setenv("FL_API_BASE_URL", "http://api.local:8080/")
	t.Setenv("FL_ADMIN_TOKEN", " tok ")
	cfg := LoadCLIFromEnv()
	assert.Equal(t, "http://api.local:8080", cfg.APIBaseURL)
	assert.Equal(t, "tok", cfg.AdminToken)
}
