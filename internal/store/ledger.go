package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"firmledger/internal/game"
)

var receivedCols = assetColumns("received_", "_micros")

func (t *tx) AppendExchange(ctx context.Context, e game.Exchange) (game.Exchange, error) {
	cols := append([]string{"month", "action", "sender_id", "receiver_id", "firm_cycle_id", "batch_id"}, receivedCols...)
	vals := append([]any{e.Month, string(e.Action), nullableID(e.SenderID), nullableID(e.ReceiverID), nullableID(e.FirmCycleID), e.BatchID}, amountArgs(e.Received)...)
	id, err := t.insert(ctx, "exchanges", cols, vals)
	if err != nil {
		return game.Exchange{}, err
	}
	e.ID = id
	return e, nil
}

// exchangeWhere renders f as a WHERE clause over the exchanges table.
func exchangeWhere(f game.ExchangeFilter) (string, []any) {
	conds := []string{"deleted_at IS NULL"}
	var args []any
	if f.ReceiverID != nil {
		conds = append(conds, "receiver_id = ?")
		args = append(args, *f.ReceiverID)
	}
	if f.SenderID != nil {
		conds = append(conds, "sender_id = ?")
		args = append(args, *f.SenderID)
	}
	if f.SystemOnly {
		conds = append(conds, "sender_id IS NULL")
	}
	if f.Month != nil {
		conds = append(conds, "month = ?")
		args = append(args, *f.Month)
	}
	if len(f.Actions) > 0 {
		ph := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			ph[i] = "?"
			args = append(args, string(a))
		}
		conds = append(conds, "action IN ("+strings.Join(ph, ", ")+")")
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (t *tx) SumExchanges(ctx context.Context, f game.ExchangeFilter) (game.Amounts, error) {
	sums := make([]string, len(receivedCols))
	for i, c := range receivedCols {
		sums[i] = fmt.Sprintf("CAST(COALESCE(SUM(%s), 0) AS BIGINT)", c)
	}
	where, args := exchangeWhere(f)
	var out game.Amounts
	q := "SELECT " + strings.Join(sums, ", ") + " FROM exchanges " + where
	if err := t.queryRow(ctx, q, args...).Scan(amountDest(&out)...); err != nil {
		return game.Amounts{}, err
	}
	return out, nil
}

func (t *tx) Exchanges(ctx context.Context, f game.ExchangeFilter) ([]game.Exchange, error) {
	where, args := exchangeWhere(f)
	q := "SELECT id, month, action, sender_id, receiver_id, firm_cycle_id, batch_id, " +
		strings.Join(receivedCols, ", ") + " FROM exchanges " + where + " ORDER BY id"
	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Exchange
	for rows.Next() {
		var (
			e                          game.Exchange
			action                     string
			sender, receiver, cycleRef sql.NullInt64
		)
		dest := append([]any{&e.ID, &e.Month, &action, &sender, &receiver, &cycleRef, &e.BatchID}, amountDest(&e.Received)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		e.Action = game.Action(action)
		e.SenderID = idPtr(sender)
		e.ReceiverID = idPtr(receiver)
		e.FirmCycleID = idPtr(cycleRef)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *tx) LatestEnvConfig(ctx context.Context, key string) (game.EnvConfig, error) {
	var c game.EnvConfig
	err := t.queryRow(ctx, `
		SELECT id, key, value
		FROM env_configs
		WHERE key = ? AND deleted_at IS NULL
		ORDER BY id DESC
		LIMIT 1
	`, key).Scan(&c.ID, &c.Key, &c.Value)
	if err != nil {
		return game.EnvConfig{}, notFound(err)
	}
	return c, nil
}

func (t *tx) AppendEnvConfig(ctx context.Context, key, value string) (game.EnvConfig, error) {
	id, err := t.insert(ctx, "env_configs", []string{"key", "value"}, []any{key, value})
	if err != nil {
		return game.EnvConfig{}, err
	}
	return game.EnvConfig{ID: id, Key: key, Value: value}, nil
}

func (t *tx) SettlementRecorded(ctx context.Context, month int64) (bool, error) {
	var n int
	if err := t.queryRow(ctx, `SELECT COUNT(1) FROM settlement_runs WHERE month = ?`, month).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *tx) RecordSettlement(ctx context.Context, month int64, batchID string) error {
	_, err := t.exec(ctx, `INSERT INTO settlement_runs (month, batch_id) VALUES (?, ?)`, month, batchID)
	return err
}

func (t *tx) ClaimIdempotency(ctx context.Context, action, key string) error {
	res, err := t.exec(ctx, `
		INSERT INTO idempotency_keys (action, key)
		VALUES (?, ?)
		ON CONFLICT (action, key) DO NOTHING
	`, action, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}
