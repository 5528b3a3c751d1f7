package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	d, err = ParseDialect(" Postgres ")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = ParseDialect("mysql")
	assert.EqualError(t, err, `unsupported DB_DIALECT "mysql"`)
}

func TestOpenSQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.sqlite")
	sqlDB, release, err := Open(ctx, SQLite, path)
	require.NoError(t, err)
	defer release()

	for _, table := range []string{"players", "exchanges", "env_configs", "firm_types", "firms", "firm_ownerships", "firm_cycles", "firm_cycle_fails", "settlement_runs", "idempotency_keys"} {
		var n int
		err := sqlDB.QueryRowContext(ctx, "SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
	require.NoError(t, Migrate(ctx, sqlDB, SQLite))
}

func TestOpenPostgresNeedsURL(t *testing.T) {
	_, _, err := Open(context.Background(), Postgres, " ")
	assert.EqualError(t, err, "DB_DIALECT=postgres requires DATABASE_URL")
}
