package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 10 * time.Second

// Connect opens the pgx pool behind the Postgres ledger. Sizing set in the
// URL (pool_max_conns, pool_min_conns, ...) wins over the defaults here.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	// Serializable retries queue behind each other, so keep the pool small.
	if !strings.Contains(databaseURL, "pool_max_conns") {
		cfg.MaxConns = 10
	}
	if !strings.Contains(databaseURL, "pool_min_conns") {
		cfg.MinConns = 1
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = "firmledger"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// openPooled exposes pool through database/sql. Closing the *sql.DB leaves
// the pool open, so the returned func closes both.
func openPooled(pool *pgxpool.Pool) (*sql.DB, func() error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	return sqlDB, func() error {
		err := sqlDB.Close()
		pool.Close()
		return err
	}
}
