package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case "", SQLite:
		return SQLite, nil
	case Postgres:
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported DB_DIALECT %q", s)
	}
}

// Open returns a migrated *sql.DB for dialect and the func that releases
// it. For Postgres dsn is a connection URL served through a pgx pool; for
// SQLite it is a file path.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, func() error, error) {
	var (
		db      *sql.DB
		release func() error
	)
	switch dialect {
	case Postgres:
		if strings.TrimSpace(dsn) == "" {
			return nil, nil, fmt.Errorf("DB_DIALECT=postgres requires DATABASE_URL")
		}
		pool, err := Connect(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		db, release = openPooled(pool)
	case SQLite:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		var err error
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// One writer keeps every transaction serialized.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		release = db.Close
	default:
		return nil, nil, fmt.Errorf("unsupported DB_DIALECT %q", dialect)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = release()
		return nil, nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		_ = release()
		return nil, nil, err
	}
	return db, release, nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
