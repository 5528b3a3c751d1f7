package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"firmledger/internal/db"
	"firmledger/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	s, err := Open(context.Background(), db.SQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestRebind(t *testing.T) {
	pg := &tx{dialect: db.Postgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", pg.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))

	lite := &tx{dialect: db.SQLite}
	assert.Equal(t, "SELECT ? + ?", lite.rebind("SELECT ? + ?"))
}

func TestMigrationsAreRecordedOnce(t *testing.T) {
	_, path := openTestStore(t)
	again, err := Open(context.Background(), db.SQLite, path)
	require.NoError(t, err)
	defer again.Close()

	var n int
	require.NoError(t, again.db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestLedgerSums(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx game.Tx) error {
		a, err := tx.CreatePlayer(ctx, "Alice", "hash")
		require.NoError(t, err)
		b, err := tx.CreatePlayer(ctx, "Bob", "hash")
		require.NoError(t, err)

		_, err = tx.AppendExchange(ctx, game.Exchange{Month: 0, Action: game.ActionInit, ReceiverID: &a.ID, BatchID: "b1", Received: game.UnitAmounts(100, 10, 0, 0)})
		require.NoError(t, err)
		_, err = tx.AppendExchange(ctx, game.Exchange{Month: 1, Action: game.ActionEat, ReceiverID: &a.ID, BatchID: "b2", Received: game.UnitAmounts(0, -5, 0, 0)})
		require.NoError(t, err)
		ex, err := tx.AppendExchange(ctx, game.Exchange{Month: 1, Action: game.ActionTransfer, SenderID: &a.ID, ReceiverID: &b.ID, BatchID: "b3", Received: game.UnitAmounts(30, 0, 0, 0)})
		require.NoError(t, err)
		assert.NotZero(t, ex.ID)

		received, err := tx.SumExchanges(ctx, game.ExchangeFilter{ReceiverID: &a.ID})
		require.NoError(t, err)
		assert.Equal(t, game.UnitAmounts(100, 5, 0, 0), received)

		sent, err := tx.SumExchanges(ctx, game.ExchangeFilter{SenderID: &a.ID})
		require.NoError(t, err)
		assert.Equal(t, game.UnitAmounts(30, 0, 0, 0), sent)

		month := int64(1)
		system, err := tx.SumExchanges(ctx, game.ExchangeFilter{SystemOnly: true, Month: &month})
		require.NoError(t, err)
		assert.Equal(t, game.UnitAmounts(0, -5, 0, 0), system)

		inits, err := tx.Exchanges(ctx, game.ExchangeFilter{Actions: []game.Action{game.ActionInit, game.ActionTransfer}})
		require.NoError(t, err)
		require.Len(t, inits, 2)
		assert.Nil(t, inits[0].SenderID)
		require.NotNil(t, inits[1].SenderID)
		assert.Equal(t, a.ID, *inits[1].SenderID)
		assert.Equal(t, game.ActionTransfer, inits[1].Action)

		empty, err := tx.SumExchanges(ctx, game.ExchangeFilter{ReceiverID: &b.ID, Month: new(int64)})
		require.NoError(t, err)
		assert.True(t, empty.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestEnvConfigLatestWins(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx game.Tx) error {
		_, err := tx.LatestEnvConfig(ctx, "eatAmount")
		assert.ErrorIs(t, err, game.ErrNotFound)

		_, err = tx.AppendEnvConfig(ctx, "eatAmount", "20")
		require.NoError(t, err)
		_, err = tx.AppendEnvConfig(ctx, "eatAmount", "25")
		require.NoError(t, err)

		cfg, err := tx.LatestEnvConfig(ctx, "eatAmount")
		require.NoError(t, err)
		assert.Equal(t, "25", cfg.Value)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTxRollsBack(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx game.Tx) error {
		_, err := tx.CreatePlayer(ctx, "Ghost", "hash")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.WithTx(ctx, func(tx game.Tx) error {
		players, err := tx.Players(ctx)
		require.NoError(t, err)
		assert.Empty(t, players)
		return nil
	}))
}

func TestClaimIdempotency(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, "transfer", "k1")
	}))
	err := s.WithTx(ctx, func(tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, "transfer", "k1")
	})
	assert.ErrorIs(t, err, game.ErrDuplicateIdempotency)

	// The same key under another action is independent.
	require.NoError(t, s.WithTx(ctx, func(tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, "firm.create", "k1")
	}))
}

func TestFirmRegistry(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx game.Tx) error {
		p, err := tx.CreatePlayer(ctx, "Owner", "hash")
		require.NoError(t, err)
		ft, err := tx.CreateFirmType(ctx, game.FirmType{
			Name:                 "Sawmill",
			Cost:                 game.UnitAmounts(50, 0, 10, 0),
			MonthlyCost:          game.UnitAmounts(5, 0, 0, 0),
			ProductionMean:       game.Rates{0, 0, 40, 0},
			ProductionStdDevPerc: game.Rates{0, 0, 12.5, 0},
			BuildTimeMonths:      2,
		})
		require.NoError(t, err)

		got, err := tx.FirmType(ctx, ft.ID)
		require.NoError(t, err)
		assert.Equal(t, ft, got)

		_, err = tx.FirmType(ctx, ft.ID+100)
		assert.ErrorIs(t, err, game.ErrNotFound)

		base, err := tx.CreateFirm(ctx, game.Firm{TypeID: ft.ID, BuiltAtMonth: 3, ActiveFromMonth: 5})
		require.NoError(t, err)
		_, err = tx.NextLevel(ctx, base.ID)
		assert.ErrorIs(t, err, game.ErrNotFound)

		next, err := tx.CreateFirm(ctx, game.Firm{TypeID: ft.ID, Level: 1, BuiltAtMonth: 4, ActiveFromMonth: 6, PrevLevelID: &base.ID})
		require.NoError(t, err)
		found, err := tx.NextLevel(ctx, base.ID)
		require.NoError(t, err)
		assert.Equal(t, next.ID, found.ID)
		require.NotNil(t, found.PrevLevelID)
		assert.Equal(t, base.ID, *found.PrevLevelID)

		_, err = tx.CreateOwnership(ctx, game.FirmOwnership{FirmID: base.ID, PlayerID: p.ID, OwnershipPerc: 100, MonthlyCost: game.UnitAmounts(5, 0, 0, 0)})
		require.NoError(t, err)
		owners, err := tx.Ownerships(ctx, base.ID)
		require.NoError(t, err)
		require.Len(t, owners, 1)
		assert.Equal(t, game.UnitAmounts(5, 0, 0, 0), owners[0].MonthlyCost)

		cycle, err := tx.CreateFirmCycle(ctx, game.FirmCycle{Month: 7, FirmTypeID: ft.ID, Production: game.UnitAmounts(0, 0, 38, 0)})
		require.NoError(t, err)
		_, err = tx.CreateFirmCycleFail(ctx, game.FirmCycleFail{FirmID: base.ID, FirmCycleID: cycle.ID})
		require.NoError(t, err)

		cycles, err := tx.FirmCycles(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, []game.FirmCycle{cycle}, cycles)

		fails, err := tx.FirmCycleFails(ctx, 7)
		require.NoError(t, err)
		require.Len(t, fails, 1)
		assert.Equal(t, base.ID, fails[0].FirmID)

		none, err := tx.FirmCycleFails(ctx, 8)
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestSettlementRuns(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx game.Tx) error {
		done, err := tx.SettlementRecorded(ctx, 1)
		require.NoError(t, err)
		assert.False(t, done)
		require.NoError(t, tx.RecordSettlement(ctx, 1, "batch"))
		done, err = tx.SettlementRecorded(ctx, 1)
		require.NoError(t, err)
		assert.True(t, done)
		return nil
	}))
}
