// Package store persists the ledger and firm registry in Postgres or SQLite
// through database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"firmledger/internal/db"
	"firmledger/internal/game"
)

type Store struct {
	db      *sql.DB
	dialect db.Dialect
	close   func() error
}

var (
	_ game.Store = (*Store)(nil)
	_ game.Tx    = (*tx)(nil)
)

// New wraps an already migrated database. Close closes sqlDB.
func New(sqlDB *sql.DB, dialect db.Dialect) *Store {
	return &Store{db: sqlDB, dialect: dialect, close: sqlDB.Close}
}

// Open connects to and migrates the database for dialect.
func Open(ctx context.Context, dialect db.Dialect, dsn string) (*Store, error) {
	sqlDB, closeDB, err := db.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: sqlDB, dialect: dialect, close: closeDB}, nil
}

func (s *Store) Close() error {
	return s.close()
}

// WithTx runs fn inside one transaction. Postgres transactions are
// serializable so concurrent balance checks cannot both pass; SQLite runs
// on a single connection and is serialized already.
func (s *Store) WithTx(ctx context.Context, fn func(game.Tx) error) error {
	var opts *sql.TxOptions
	if s.dialect == db.Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type tx struct {
	tx      *sql.Tx
	dialect db.Dialect
}

// rebind rewrites ? placeholders into $n for Postgres.
func (t *tx) rebind(query string) string {
	if t.dialect != db.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.rebind(query), args...)
}

func (t *tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.rebind(query), args...)
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.rebind(query), args...)
}

// insert adds one row and returns its generated id.
func (t *tx) insert(ctx context.Context, table string, cols []string, vals []any) (int64, error) {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = "?"
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, strings.Join(cols, ", "), strings.Join(ph, ", "))
	var id int64
	if err := t.queryRow(ctx, q, vals...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return id, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return game.ErrNotFound
	}
	return err
}

// assetColumns names one column per asset, e.g. received_coin_micros.
func assetColumns(prefix, suffix string) []string {
	cols := make([]string, 0, game.NumAssets)
	for _, a := range game.Assets {
		cols = append(cols, prefix+a.String()+suffix)
	}
	return cols
}

func amountArgs(a game.Amounts) []any {
	out := make([]any, 0, game.NumAssets)
	for _, v := range a {
		out = append(out, v)
	}
	return out
}

func rateArgs(r game.Rates) []any {
	out := make([]any, 0, game.NumAssets)
	for _, v := range r {
		out = append(out, v)
	}
	return out
}

func amountDest(a *game.Amounts) []any {
	out := make([]any, 0, game.NumAssets)
	for i := range a {
		out = append(out, &a[i])
	}
	return out
}

func rateDest(r *game.Rates) []any {
	out := make([]any, 0, game.NumAssets)
	for i := range r {
		out = append(out, &r[i])
	}
	return out
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func idPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
