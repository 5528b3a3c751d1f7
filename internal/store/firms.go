package store

import (
	"context"
	"database/sql"
	"strings"

	"firmledger/internal/game"
)

var (
	costCols        = assetColumns("cost_", "_micros")
	monthlyCostCols = assetColumns("monthly_cost_", "_micros")
	meanCols        = assetColumns("production_", "_mean")
	stdDevCols      = assetColumns("production_", "_std_dev_perc")
	productionCols  = assetColumns("production_", "_micros")

	firmTypeSelect = "SELECT id, name, build_time_months, " +
		strings.Join(costCols, ", ") + ", " +
		strings.Join(monthlyCostCols, ", ") + ", " +
		strings.Join(meanCols, ", ") + ", " +
		strings.Join(stdDevCols, ", ") +
		" FROM firm_types"

	ownershipSelect = "SELECT id, firm_id, player_id, ownership_perc, " +
		strings.Join(monthlyCostCols, ", ") + " FROM firm_ownerships"

	cycleSelect = "SELECT id, month, firm_type_id, " +
		strings.Join(productionCols, ", ") + " FROM firm_cycles"
)

const firmSelect = "SELECT id, type_id, level, built_at_month, active_from_month, prev_level_id FROM firms"

type scanner interface {
	Scan(dest ...any) error
}

func scanFirmType(s scanner) (game.FirmType, error) {
	var ft game.FirmType
	dest := []any{&ft.ID, &ft.Name, &ft.BuildTimeMonths}
	dest = append(dest, amountDest(&ft.Cost)...)
	dest = append(dest, amountDest(&ft.MonthlyCost)...)
	dest = append(dest, rateDest(&ft.ProductionMean)...)
	dest = append(dest, rateDest(&ft.ProductionStdDevPerc)...)
	err := s.Scan(dest...)
	return ft, err
}

func scanFirm(s scanner) (game.Firm, error) {
	var (
		f    game.Firm
		prev sql.NullInt64
	)
	err := s.Scan(&f.ID, &f.TypeID, &f.Level, &f.BuiltAtMonth, &f.ActiveFromMonth, &prev)
	f.PrevLevelID = idPtr(prev)
	return f, err
}

func scanOwnership(s scanner) (game.FirmOwnership, error) {
	var o game.FirmOwnership
	dest := append([]any{&o.ID, &o.FirmID, &o.PlayerID, &o.OwnershipPerc}, amountDest(&o.MonthlyCost)...)
	err := s.Scan(dest...)
	return o, err
}

func scanCycle(s scanner) (game.FirmCycle, error) {
	var c game.FirmCycle
	dest := append([]any{&c.ID, &c.Month, &c.FirmTypeID}, amountDest(&c.Production)...)
	err := s.Scan(dest...)
	return c, err
}

// collect runs a query and scans each row with scan.
func collect[T any](ctx context.Context, t *tx, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *tx) CreateFirmType(ctx context.Context, ft game.FirmType) (game.FirmType, error) {
	cols := []string{"name", "build_time_months"}
	cols = append(cols, costCols...)
	cols = append(cols, monthlyCostCols...)
	cols = append(cols, meanCols...)
	cols = append(cols, stdDevCols...)
	vals := []any{ft.Name, ft.BuildTimeMonths}
	vals = append(vals, amountArgs(ft.Cost)...)
	vals = append(vals, amountArgs(ft.MonthlyCost)...)
	vals = append(vals, rateArgs(ft.ProductionMean)...)
	vals = append(vals, rateArgs(ft.ProductionStdDevPerc)...)
	id, err := t.insert(ctx, "firm_types", cols, vals)
	if err != nil {
		return game.FirmType{}, err
	}
	ft.ID = id
	return ft, nil
}

func (t *tx) FirmType(ctx context.Context, id int64) (game.FirmType, error) {
	ft, err := scanFirmType(t.queryRow(ctx, firmTypeSelect+" WHERE id = ? AND deleted_at IS NULL", id))
	if err != nil {
		return game.FirmType{}, notFound(err)
	}
	return ft, nil
}

func (t *tx) FirmTypes(ctx context.Context) ([]game.FirmType, error) {
	return collect(ctx, t, scanFirmType, firmTypeSelect+" WHERE deleted_at IS NULL ORDER BY id")
}

func (t *tx) CreateFirm(ctx context.Context, f game.Firm) (game.Firm, error) {
	id, err := t.insert(ctx, "firms",
		[]string{"type_id", "level", "built_at_month", "active_from_month", "prev_level_id"},
		[]any{f.TypeID, f.Level, f.BuiltAtMonth, f.ActiveFromMonth, nullableID(f.PrevLevelID)})
	if err != nil {
		return game.Firm{}, err
	}
	f.ID = id
	return f, nil
}

func (t *tx) Firm(ctx context.Context, id int64) (game.Firm, error) {
	f, err := scanFirm(t.queryRow(ctx, firmSelect+" WHERE id = ? AND deleted_at IS NULL", id))
	if err != nil {
		return game.Firm{}, notFound(err)
	}
	return f, nil
}

func (t *tx) Firms(ctx context.Context) ([]game.Firm, error) {
	return collect(ctx, t, scanFirm, firmSelect+" WHERE deleted_at IS NULL ORDER BY id")
}

func (t *tx) NextLevel(ctx context.Context, firmID int64) (game.Firm, error) {
	f, err := scanFirm(t.queryRow(ctx, firmSelect+" WHERE prev_level_id = ? AND deleted_at IS NULL", firmID))
	if err != nil {
		return game.Firm{}, notFound(err)
	}
	return f, nil
}

func (t *tx) CreateOwnership(ctx context.Context, o game.FirmOwnership) (game.FirmOwnership, error) {
	cols := append([]string{"firm_id", "player_id", "ownership_perc"}, monthlyCostCols...)
	vals := append([]any{o.FirmID, o.PlayerID, o.OwnershipPerc}, amountArgs(o.MonthlyCost)...)
	id, err := t.insert(ctx, "firm_ownerships", cols, vals)
	if err != nil {
		return game.FirmOwnership{}, err
	}
	o.ID = id
	return o, nil
}

func (t *tx) Ownerships(ctx context.Context, firmID int64) ([]game.FirmOwnership, error) {
	return collect(ctx, t, scanOwnership, ownershipSelect+" WHERE firm_id = ? AND deleted_at IS NULL ORDER BY id", firmID)
}

func (t *tx) CreateFirmCycle(ctx context.Context, c game.FirmCycle) (game.FirmCycle, error) {
	cols := append([]string{"month", "firm_type_id"}, productionCols...)
	vals := append([]any{c.Month, c.FirmTypeID}, amountArgs(c.Production)...)
	id, err := t.insert(ctx, "firm_cycles", cols, vals)
	if err != nil {
		return game.FirmCycle{}, err
	}
	c.ID = id
	return c, nil
}

func (t *tx) FirmCycles(ctx context.Context, month int64) ([]game.FirmCycle, error) {
	return collect(ctx, t, scanCycle, cycleSelect+" WHERE month = ? AND deleted_at IS NULL ORDER BY id", month)
}

func (t *tx) CreateFirmCycleFail(ctx context.Context, f game.FirmCycleFail) (game.FirmCycleFail, error) {
	id, err := t.insert(ctx, "firm_cycle_fails", []string{"firm_id", "firm_cycle_id"}, []any{f.FirmID, f.FirmCycleID})
	if err != nil {
		return game.FirmCycleFail{}, err
	}
	f.ID = id
	return f, nil
}

func (t *tx) FirmCycleFails(ctx context.Context, month int64) ([]game.FirmCycleFail, error) {
	scan := func(s scanner) (game.FirmCycleFail, error) {
		var f game.FirmCycleFail
		err := s.Scan(&f.ID, &f.FirmID, &f.FirmCycleID)
		return f, err
	}
	return collect(ctx, t, scan, `
		SELECT f.id, f.firm_id, f.firm_cycle_id
		FROM firm_cycle_fails f
		JOIN firm_cycles c ON c.id = f.firm_cycle_id
		WHERE c.month = ? AND f.deleted_at IS NULL
		ORDER BY f.id
	`, month)
}
