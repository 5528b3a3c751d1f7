package game

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
)

func (s *Service) CreateFirm(ctx context.Context, in CreateFirmInput) (Firm, error) {
	var out Firm
	err := s.runTx(ctx, func(tx Tx) error {
		if err := claimIdempotency(ctx, tx, in.IdempotencyKey, "firm.create"); err != nil {
			return err
		}
		month, err := currentMonth(ctx, tx)
		if err != nil {
			return err
		}
		ft, err := tx.FirmType(ctx, in.TypeID)
		if errors.Is(err, ErrNotFound) {
			return newError(ErrNotFound, "typeId %d not found.", in.TypeID)
		}
		if err != nil {
			return err
		}

		players := make(map[int64]Player, len(in.Ownerships))
		for _, o := range in.Ownerships {
			p, err := playerTx(ctx, tx, o.PlayerID, "playerId")
			if err != nil {
				return err
			}
			players[o.PlayerID] = p
		}

		var totalPerc float64
		for _, o := range in.Ownerships {
			totalPerc += o.OwnershipPerc
		}
		if math.Abs(totalPerc-100) > OwnershipTolerance {
			return newError(ErrValidationMismatch, "ownershipPerc don't sum up to 100.")
		}

		costs := make([]ownerCost, len(in.Ownerships))
		for i, o := range in.Ownerships {
			costs[i] = ownerCost{PlayerID: o.PlayerID, MonthlyCost: o.MonthlyCost, Payed: o.Payed}
		}
		if err := checkCostSplit(ft, costs); err != nil {
			return err
		}
		if err := checkPayable(ctx, tx, players, costs, false); err != nil {
			return err
		}

		out, err = tx.CreateFirm(ctx, Firm{
			TypeID:          ft.ID,
			Level:           0,
			BuiltAtMonth:    month,
			ActiveFromMonth: month + ft.BuildTimeMonths,
		})
		if err != nil {
			return err
		}
		if err := appendBuildExchanges(ctx, tx, month, costs); err != nil {
			return err
		}
		for _, o := range in.Ownerships {
			if _, err := tx.CreateOwnership(ctx, FirmOwnership{
				FirmID:        out.ID,
				PlayerID:      o.PlayerID,
				OwnershipPerc: o.OwnershipPerc,
				MonthlyCost:   o.MonthlyCost,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Firm{}, err
	}
	s.log.Info("firm built", "firm_id", out.ID, "type_id", out.TypeID, "owners", len(in.Ownerships), "active_from", out.ActiveFromMonth)
	return out, nil
}

// UpgradeFirm builds the next level of a firm. The existing owners must pay
// the type's build cost again and keep their ownership percentages.
func (s *Service) UpgradeFirm(ctx context.Context, in UpgradeFirmInput) (Firm, error) {
	var out Firm
	err := s.runTx(ctx, func(tx Tx) error {
		if err := claimIdempotency(ctx, tx, in.IdempotencyKey, "firm.upgrade"); err != nil {
			return err
		}
		month, err := currentMonth(ctx, tx)
		if err != nil {
			return err
		}
		maxLevelRaw, err := floatConfig(ctx, tx, KeyFirmMaxLevel)
		if err != nil {
			return err
		}
		maxLevel := int64(maxLevelRaw)

		firm, err := tx.Firm(ctx, in.FirmID)
		if errors.Is(err, ErrNotFound) {
			return newError(ErrNotFound, "firmId %d not found.", in.FirmID)
		}
		if err != nil {
			return err
		}
		if _, err := tx.NextLevel(ctx, firm.ID); err == nil {
			return newError(ErrStateConflict, "Already leveled up.")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if firm.Level >= maxLevel {
			return newError(ErrStateConflict, "Max level %d reached.", maxLevel)
		}
		ft, err := tx.FirmType(ctx, firm.TypeID)
		if err != nil {
			return err
		}
		owners, err := tx.Ownerships(ctx, firm.ID)
		if err != nil {
			return err
		}

		players := make(map[int64]Player, len(in.Ownerships))
		for _, o := range in.Ownerships {
			p, err := playerTx(ctx, tx, o.PlayerID, "playerId")
			if err != nil {
				return err
			}
			players[o.PlayerID] = p
		}

		percByOwner := make(map[int64]float64, len(owners))
		for _, o := range owners {
			percByOwner[o.PlayerID] = o.OwnershipPerc
		}
		included := make(map[int64]bool, len(in.Ownerships))
		for _, o := range in.Ownerships {
			if _, ok := percByOwner[o.PlayerID]; !ok {
				return newError(ErrValidationMismatch, "playerId %d is not an owner of this firm.", o.PlayerID)
			}
			included[o.PlayerID] = true
		}
		for _, o := range owners {
			if !included[o.PlayerID] {
				return newError(ErrValidationMismatch, "firm owner %d is not included in data.", o.PlayerID)
			}
		}

		costs := make([]ownerCost, len(in.Ownerships))
		for i, o := range in.Ownerships {
			costs[i] = ownerCost{PlayerID: o.PlayerID, MonthlyCost: o.MonthlyCost, Payed: o.Payed}
		}
		if err := checkCostSplit(ft, costs); err != nil {
			return err
		}
		if err := checkPayable(ctx, tx, players, costs, true); err != nil {
			return err
		}

		prevID := firm.ID
		out, err = tx.CreateFirm(ctx, Firm{
			TypeID:          ft.ID,
			Level:           firm.Level + 1,
			BuiltAtMonth:    month,
			ActiveFromMonth: month + ft.BuildTimeMonths,
			PrevLevelID:     &prevID,
		})
		if err != nil {
			return err
		}
		if err := appendBuildExchanges(ctx, tx, month, costs); err != nil {
			return err
		}
		for _, o := range in.Ownerships {
			if _, err := tx.CreateOwnership(ctx, FirmOwnership{
				FirmID:        out.ID,
				PlayerID:      o.PlayerID,
				OwnershipPerc: percByOwner[o.PlayerID],
				MonthlyCost:   o.MonthlyCost,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Firm{}, err
	}
	s.log.Info("firm upgraded", "firm_id", out.ID, "prev_level_id", in.FirmID, "level", out.Level)
	return out, nil
}

type ownerCost struct {
	PlayerID    int64
	MonthlyCost Amounts
	Payed       Amounts
}

// checkCostSplit verifies the owners' shares add up exactly to the type's
// monthly cost and build cost, asset by asset.
func checkCostSplit(ft FirmType, costs []ownerCost) error {
	for _, asset := range Assets {
		var monthly, payed int64
		for _, c := range costs {
			monthly += c.MonthlyCost[asset]
			payed += c.Payed[asset]
		}
		if monthly != ft.MonthlyCost[asset] {
			return newError(ErrValidationMismatch, "monthly cost for %s does not match. (total: %s, required: %s)",
				asset, FormatUnits(monthly), FormatUnits(ft.MonthlyCost[asset]))
		}
		if payed != ft.Cost[asset] {
			return newError(ErrValidationMismatch, "payed cost for %s does not match. (total: %s, required: %s)",
				asset, FormatUnits(payed), FormatUnits(ft.Cost[asset]))
		}
	}
	return nil
}

func checkPayable(ctx context.Context, tx Tx, players map[int64]Player, costs []ownerCost, rejectNegative bool) error {
	for _, c := range costs {
		balance, err := balanceTx(ctx, tx, c.PlayerID)
		if err != nil {
			return err
		}
		name := players[c.PlayerID].Name
		for _, asset := range Assets {
			if rejectNegative && c.Payed[asset] < 0 {
				return newError(ErrValidationMismatch, "payed cost for %s by player %s is negative. (%s)",
					asset, name, FormatUnits(c.Payed[asset]))
			}
			if balance[asset] < c.Payed[asset] {
				return newError(ErrInsufficientBalance, "payed cost for %s by player %s exceeds balance. (payed: %s, balance: %s)",
					asset, name, FormatUnits(c.Payed[asset]), FormatUnits(balance[asset]))
			}
		}
	}
	return nil
}

func appendBuildExchanges(ctx context.Context, tx Tx, month int64, costs []ownerCost) error {
	batchID := uuid.NewString()
	for _, c := range costs {
		receiver := c.PlayerID
		if _, err := tx.AppendExchange(ctx, Exchange{
			Month:      month,
			Action:     ActionBuild,
			ReceiverID: &receiver,
			BatchID:    batchID,
			Received:   c.Payed.Neg(),
		}); err != nil {
			return err
		}
	}
	return nil
}
