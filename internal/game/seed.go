package game

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var playerNameRE = regexp.MustCompile(`^[\p{L}\p{N} _.-]{1,32}$`)

func (s *Service) CreatePlayer(ctx context.Context, name, password string) (Player, error) {
	name = strings.TrimSpace(name)
	if !playerNameRE.MatchString(name) {
		return Player{}, newError(ErrInvalidInput, "player name must be 1-32 letters, digits, spaces or _.-")
	}
	hash, err := hashPassword(password, s.hashCost)
	if err != nil {
		return Player{}, err
	}
	var out Player
	err = s.runTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.CreatePlayer(ctx, name, hash)
		return err
	})
	if err != nil {
		return Player{}, err
	}
	s.log.Info("player created", "player_id", out.ID, "name", out.Name)
	return out, nil
}

// Init installs the catalog firm types that do not exist yet (matched by
// name) and every base config key that has no value. Running it twice is a
// no-op.
func (s *Service) Init(ctx context.Context, seed Seed) (InitReport, error) {
	for _, kv := range seed.EnvConfig {
		if !knownEnvConfigKey(kv.Key) {
			return InitReport{}, newError(ErrInvalidInput, "unknown env config key %q.", kv.Key)
		}
		if err := validateEnvConfigValue(kv.Key, kv.Value); err != nil {
			return InitReport{}, err
		}
	}

	var report InitReport
	err := s.runTx(ctx, func(tx Tx) error {
		report = InitReport{}
		existing, err := tx.FirmTypes(ctx)
		if err != nil {
			return err
		}
		names := make(map[string]bool, len(existing))
		for _, ft := range existing {
			names[ft.Name] = true
		}
		for _, ft := range seed.FirmTypes {
			if names[ft.Name] {
				continue
			}
			if _, err := tx.CreateFirmType(ctx, ft); err != nil {
				return err
			}
			names[ft.Name] = true
			report.FirmTypesCreated++
		}
		for _, kv := range seed.EnvConfig {
			_, ok, err := lookupEnvConfig(ctx, tx, kv.Key)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			if _, err := tx.AppendEnvConfig(ctx, kv.Key, kv.Value); err != nil {
				return err
			}
			report.ConfigKeysSet++
		}
		return nil
	})
	if err != nil {
		return InitReport{}, err
	}
	s.log.Info("init applied", "firm_types_created", report.FirmTypesCreated, "config_keys_set", report.ConfigKeysSet)
	return report, nil
}

// InitialExchange credits the starting balance to every player that has not
// received one yet and returns how many players were credited.
func (s *Service) InitialExchange(ctx context.Context, amounts Amounts) (int, error) {
	credited := 0
	err := s.runTx(ctx, func(tx Tx) error {
		credited = 0
		month, err := currentMonth(ctx, tx)
		if err != nil {
			return err
		}
		players, err := tx.Players(ctx)
		if err != nil {
			return err
		}
		batchID := uuid.NewString()
		for _, p := range players {
			playerID := p.ID
			prior, err := tx.Exchanges(ctx, ExchangeFilter{ReceiverID: &playerID, Actions: []Action{ActionInit}})
			if err != nil {
				return err
			}
			if len(prior) > 0 {
				continue
			}
			if _, err := tx.AppendExchange(ctx, Exchange{
				Month:      month,
				Action:     ActionInit,
				ReceiverID: &playerID,
				BatchID:    batchID,
				Received:   amounts,
			}); err != nil {
				return err
			}
			credited++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("initial balances credited", "players", credited)
	return credited, nil
}
