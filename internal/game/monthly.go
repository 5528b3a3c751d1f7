package game

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// NextMonth advances the game month and settles it: players eat, firms pay
// their running costs and produce, firm income is taxed and redistributed,
// and inflation is credited. The whole month commits or nothing does.
func (s *Service) NextMonth(ctx context.Context, in NextMonthInput) (MonthReport, error) {
	if !s.settleMu.TryLock() {
		return MonthReport{}, newError(ErrStateConflict, "month settlement already in progress.")
	}
	defer s.settleMu.Unlock()

	var report MonthReport
	err := s.runTx(ctx, func(tx Tx) error {
		report = MonthReport{BatchID: uuid.NewString()}

		current, err := currentMonth(ctx, tx)
		if err != nil {
			return err
		}
		if in.ExpectedMonth != nil && *in.ExpectedMonth != current {
			return newError(ErrStateConflict, "month already advanced. (expected: %d, current: %d)", *in.ExpectedMonth, current)
		}
		settled, err := tx.SettlementRecorded(ctx, current+1)
		if err != nil {
			return err
		}
		if settled {
			return newError(ErrStateConflict, "month %d already settled.", current+1)
		}
		month, err := incrementMonth(ctx, tx)
		if err != nil {
			return err
		}
		report.Month = month
		if err := tx.RecordSettlement(ctx, month, report.BatchID); err != nil {
			return err
		}

		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		report.Players = len(players)

		st := settlement{tx: tx, month: month, batchID: report.BatchID, players: players, report: &report}
		if err := st.eat(ctx); err != nil {
			return err
		}
		if err := st.runFirms(ctx, s.sampler); err != nil {
			return err
		}
		if err := st.collectTaxes(ctx); err != nil {
			return err
		}
		return st.inflate(ctx)
	})
	if err != nil {
		return MonthReport{}, err
	}
	report.SettledAt = time.Now().UTC()
	s.log.Info("month settled",
		"month", report.Month,
		"batch_id", report.BatchID,
		"players", report.Players,
		"producing_firms", len(report.ProducingFirmIDs),
		"failed_firms", len(report.FailedFirmIDs),
		"inflation_mode", report.InflationMode,
	)
	return report, nil
}

// settlement carries the state of one month being settled inside a transaction.
type settlement struct {
	tx      Tx
	month   int64
	batchID string
	players []Player
	report  *MonthReport
}

func (st *settlement) append(ctx context.Context, action Action, playerID int64, received Amounts, cycleID *int64) error {
	receiver := playerID
	_, err := st.tx.AppendExchange(ctx, Exchange{
		Month:       st.month,
		Action:      action,
		ReceiverID:  &receiver,
		FirmCycleID: cycleID,
		BatchID:     st.batchID,
		Received:    received,
	})
	return err
}

func (st *settlement) eat(ctx context.Context) error {
	eatAmount, err := floatConfig(ctx, st.tx, KeyEatAmount)
	if err != nil {
		return err
	}
	var food Amounts
	food[Food] = -UnitsToMicros(eatAmount)
	st.report.EatAmount = UnitsToMicros(eatAmount)
	for _, p := range st.players {
		if err := st.append(ctx, ActionEat, p.ID, food, nil); err != nil {
			return err
		}
	}
	return nil
}

type chargedFirm struct {
	cycle  FirmCycle
	factor float64
	owners []FirmOwnership
}

// runFirms samples one production cycle per firm type, charges every active
// firm's owners and only then credits production, so output from one firm
// can never fund another firm's cost in the same month.
func (st *settlement) runFirms(ctx context.Context, sampler Sampler) error {
	levelFactor, err := floatConfig(ctx, st.tx, KeyFirmLevelFactor)
	if err != nil {
		return err
	}
	types, err := st.tx.FirmTypes(ctx)
	if err != nil {
		return err
	}
	firms, err := st.tx.Firms(ctx)
	if err != nil {
		return err
	}
	byType := make(map[int64][]Firm, len(types))
	for _, f := range firms {
		byType[f.TypeID] = append(byType[f.TypeID], f)
	}

	var charged []chargedFirm
	for _, ft := range types {
		var production Amounts
		for _, a := range Assets {
			mean := ft.ProductionMean[a]
			sample := sampler.Normal(mean, mean*ft.ProductionStdDevPerc[a]/100)
			production[a] = int64(math.Round(sample)) * MicrosPerUnit
		}
		cycle, err := st.tx.CreateFirmCycle(ctx, FirmCycle{Month: st.month, FirmTypeID: ft.ID, Production: production})
		if err != nil {
			return err
		}
		st.report.Cycles = append(st.report.Cycles, cycle)

		for _, firm := range byType[ft.ID] {
			if st.month < firm.ActiveFromMonth {
				continue
			}
			factor := math.Pow(levelFactor, float64(firm.Level))
			owners, err := st.tx.Ownerships(ctx, firm.ID)
			if err != nil {
				return err
			}
			ok, err := ownersCanPay(ctx, st.tx, owners, factor)
			if err != nil {
				return err
			}
			if !ok {
				if _, err := st.tx.CreateFirmCycleFail(ctx, FirmCycleFail{FirmID: firm.ID, FirmCycleID: cycle.ID}); err != nil {
					return err
				}
				st.report.FailedFirmIDs = append(st.report.FailedFirmIDs, firm.ID)
				continue
			}
			cycleID := cycle.ID
			for _, o := range owners {
				if err := st.append(ctx, ActionFirmCost, o.PlayerID, o.MonthlyCost.Scale(factor).Neg(), &cycleID); err != nil {
					return err
				}
			}
			charged = append(charged, chargedFirm{cycle: cycle, factor: factor, owners: owners})
			st.report.ProducingFirmIDs = append(st.report.ProducingFirmIDs, firm.ID)
		}
	}

	for _, c := range charged {
		cycleID := c.cycle.ID
		for _, o := range c.owners {
			share := c.cycle.Production.Scale(c.factor * o.OwnershipPerc / 100)
			if err := st.append(ctx, ActionFirmProduction, o.PlayerID, share, &cycleID); err != nil {
				return err
			}
		}
	}
	return nil
}

func ownersCanPay(ctx context.Context, tx Tx, owners []FirmOwnership, factor float64) (bool, error) {
	for _, o := range owners {
		balance, err := balanceTx(ctx, tx, o.PlayerID)
		if err != nil {
			return false, err
		}
		if !balance.Covers(o.MonthlyCost.Scale(factor)) {
			return false, nil
		}
	}
	return true, nil
}

// collectTaxes taxes each player's net firm income of the month and splits
// the total evenly across all players.
func (st *settlement) collectTaxes(ctx context.Context) error {
	var upperBounds [NumAssets]float64
	for _, a := range Assets {
		v, err := floatConfig(ctx, st.tx, TaxUpperBoundKey(a))
		if err != nil {
			return err
		}
		if v <= 0 {
			return newError(ErrMissingConfig, "%s env config must be positive.", TaxUpperBoundKey(a))
		}
		upperBounds[a] = v
	}

	month := st.month
	var total Amounts
	for _, p := range st.players {
		playerID := p.ID
		income, err := st.tx.SumExchanges(ctx, ExchangeFilter{
			ReceiverID: &playerID,
			Month:      &month,
			Actions:    []Action{ActionFirmCost, ActionFirmProduction},
		})
		if err != nil {
			return err
		}
		var tax Amounts
		for _, a := range Assets {
			tax[a] = int64(TaxAmount(MicrosToUnits(income[a]), upperBounds[a])) * MicrosPerUnit
		}
		if err := st.append(ctx, ActionTax, p.ID, tax.Neg(), nil); err != nil {
			return err
		}
		total = total.Add(tax)
	}
	st.report.TaxCollected = total
	if len(st.players) == 0 {
		return nil
	}

	var share Amounts
	for _, a := range Assets {
		share[a] = total[a] / int64(len(st.players))
	}
	st.report.TaxPerPlayer = share
	for _, p := range st.players {
		if err := st.append(ctx, ActionNTax, p.ID, share, nil); err != nil {
			return err
		}
	}
	return nil
}

func (st *settlement) inflate(ctx context.Context) error {
	mode := InflationFlat
	cfg, ok, err := lookupEnvConfig(ctx, st.tx, KeyInflationMode)
	if err != nil {
		return err
	}
	if ok && cfg.Value != "" {
		mode = cfg.Value
	}
	st.report.InflationMode = mode
	if len(st.players) == 0 {
		return nil
	}

	var grant Amounts
	switch mode {
	case InflationFlat:
		grant[Coin] = FlatInflationCoin * MicrosPerUnit
		grant[Lumber] = FlatInflationLumber * MicrosPerUnit
	case InflationCoef:
		grant, err = st.coefInflation(ctx)
		if err != nil {
			return err
		}
	default:
		return newError(ErrMissingConfig, "inflationMode %q is not supported.", mode)
	}
	st.report.Inflation = grant
	for _, p := range st.players {
		if err := st.append(ctx, ActionInflation, p.ID, grant, nil); err != nil {
			return err
		}
	}
	return nil
}

// coefInflation prices every system-issued non-coin asset in coin using the
// configured coefficients and hands out the coin shortfall per player.
func (st *settlement) coefInflation(ctx context.Context) (Amounts, error) {
	var coef [NumAssets]float64
	for _, a := range Assets {
		v, err := floatConfig(ctx, st.tx, InflationCoefKey(a))
		if err != nil {
			return Amounts{}, err
		}
		coef[a] = v
	}
	if coef[Coin] == 0 {
		return Amounts{}, newError(ErrMissingConfig, "%s env config must not be zero.", InflationCoefKey(Coin))
	}
	issued, err := st.tx.SumExchanges(ctx, ExchangeFilter{SystemOnly: true})
	if err != nil {
		return Amounts{}, err
	}
	var weighted float64
	for _, a := range Assets {
		if a == Coin {
			continue
		}
		weighted += coef[a] * MicrosToUnits(issued[a])
	}
	diff := weighted/coef[Coin] - MicrosToUnits(issued[Coin])

	var grant Amounts
	grant[Coin] = int64(math.Floor(diff/float64(len(st.players)))) * MicrosPerUnit
	return grant, nil
}
