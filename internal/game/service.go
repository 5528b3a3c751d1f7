package game

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	store    Store
	log      *slog.Logger
	sampler  Sampler
	hashCost int

	// settleMu keeps a single month settlement in flight per process.
	settleMu sync.Mutex
}

type Option func(*Service)

func WithSampler(sampler Sampler) Option {
	return func(s *Service) {
		if sampler != nil {
			s.sampler = sampler
		}
	}
}

// WithPasswordCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		log:      logger,
		sampler:  NewRandSampler(time.Now().UnixNano()),
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListPlayers(ctx context.Context) ([]PlayerBalance, error) {
	var out []PlayerBalance
	err := s.runTx(ctx, func(tx Tx) error {
		out = nil
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		for _, p := range players {
			balance, err := balanceTx(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			out = append(out, PlayerBalance{Player: p, Balance: balance})
		}
		return nil
	})
	return out, err
}

func (s *Service) ListFirmTypes(ctx context.Context) ([]FirmType, error) {
	var out []FirmType
	err := s.runTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.FirmTypes(ctx)
		return err
	})
	return out, err
}

// ListFirms returns every firm chain keyed by its level-0 head, with later
// levels in creation order.
func (s *Service) ListFirms(ctx context.Context) ([]FirmChain, error) {
	var out []FirmChain
	err := s.runTx(ctx, func(tx Tx) error {
		out = nil
		firms, err := tx.Firms(ctx)
		if err != nil {
			return err
		}
		byID := make(map[int64]Firm, len(firms))
		for _, f := range firms {
			byID[f.ID] = f
		}
		heads := make(map[int64]int)
		for _, f := range firms {
			view := FirmView{Firm: f}
			view.Ownerships, err = tx.Ownerships(ctx, f.ID)
			if err != nil {
				return err
			}
			root := chainRoot(byID, f)
			if root == f.ID {
				heads[f.ID] = len(out)
				out = append(out, FirmChain{FirmView: view, NextLevels: []FirmView{}})
				continue
			}
			idx, ok := heads[root]
			if !ok {
				// Firms are listed by id, so a head always precedes its upgrades.
				continue
			}
			out[idx].NextLevels = append(out[idx].NextLevels, view)
		}
		return nil
	})
	return out, err
}

func chainRoot(byID map[int64]Firm, f Firm) int64 {
	for f.PrevLevelID != nil {
		prev, ok := byID[*f.PrevLevelID]
		if !ok {
			break
		}
		f = prev
	}
	return f.ID
}

// PlayerExchanges lists every ledger row touching playerID, optionally for one month.
func (s *Service) PlayerExchanges(ctx context.Context, playerID int64, month *int64) ([]Exchange, error) {
	var out []Exchange
	err := s.runTx(ctx, func(tx Tx) error {
		if _, err := playerTx(ctx, tx, playerID, "playerId"); err != nil {
			return err
		}
		received, err := tx.Exchanges(ctx, ExchangeFilter{ReceiverID: &playerID, Month: month})
		if err != nil {
			return err
		}
		sent, err := tx.Exchanges(ctx, ExchangeFilter{SenderID: &playerID, Month: month})
		if err != nil {
			return err
		}
		out = mergeExchanges(received, sent)
		return nil
	})
	return out, err
}

// MonthCycles lists the production cycles sampled in month and the firms
// that failed to pay for them.
func (s *Service) MonthCycles(ctx context.Context, month int64) (MonthCycles, error) {
	out := MonthCycles{Month: month}
	err := s.runTx(ctx, func(tx Tx) error {
		var err error
		out.Cycles, err = tx.FirmCycles(ctx, month)
		if err != nil {
			return err
		}
		out.Fails, err = tx.FirmCycleFails(ctx, month)
		return err
	})
	return out, err
}

func mergeExchanges(a, b []Exchange) []Exchange {
	seen := make(map[int64]bool, len(a)+len(b))
	out := make([]Exchange, 0, len(a)+len(b))
	for _, list := range [][]Exchange{a, b} {
		for _, e := range list {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func playerTx(ctx context.Context, tx Tx, id int64, label string) (Player, error) {
	p, err := tx.Player(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Player{}, newError(ErrNotFound, "%s %d not found.", label, id)
	}
	return p, err
}

func claimIdempotency(ctx context.Context, tx Tx, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return tx.ClaimIdempotency(ctx, action, key)
}

// runTx runs fn in a transaction, retrying on serialization failures. fn must
// reset any state it captures because it may run more than once.
func (s *Service) runTx(ctx context.Context, fn func(Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		s.log.Debug("transaction conflict", "attempt", attempt+1, "err", err)
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
