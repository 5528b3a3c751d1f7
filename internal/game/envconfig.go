package game

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	KeyMonth           = "month"
	KeyFirmLevelFactor = "firmLevelFactor"
	KeyFirmMaxLevel    = "firmMaxLevel"
	KeyEatAmount       = "eatAmount"
	KeyInflationMode   = "inflationMode"

	InflationFlat = "flat"
	InflationCoef = "coef"
)

func TaxUpperBoundKey(a Asset) string { return "tax" + a.Title() + "UpperBound" }

func InflationCoefKey(a Asset) string { return "inflation" + a.Title() + "Coef" }

// EnvConfigKeys lists every key the engine reads.
func EnvConfigKeys() []string {
	keys := []string{KeyMonth, KeyFirmLevelFactor, KeyFirmMaxLevel, KeyEatAmount, KeyInflationMode}
	for _, a := range Assets {
		keys = append(keys, TaxUpperBoundKey(a))
	}
	for _, a := range Assets {
		keys = append(keys, InflationCoefKey(a))
	}
	return keys
}

func knownEnvConfigKey(key string) bool {
	for _, k := range EnvConfigKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// EnvConfig returns the latest value for key or a missing-config error.
func (s *Service) EnvConfig(ctx context.Context, key string) (EnvConfig, error) {
	var out EnvConfig
	err := s.runTx(ctx, func(tx Tx) error {
		var err error
		out, err = getEnvConfig(ctx, tx, key)
		return err
	})
	return out, err
}

// SetEnvConfig appends a new value for key; history is kept.
func (s *Service) SetEnvConfig(ctx context.Context, key, value string) (EnvConfig, error) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if !knownEnvConfigKey(key) {
		return EnvConfig{}, newError(ErrInvalidInput, "unknown env config key %q.", key)
	}
	if err := validateEnvConfigValue(key, value); err != nil {
		return EnvConfig{}, err
	}
	var out EnvConfig
	err := s.runTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.AppendEnvConfig(ctx, key, value)
		return err
	})
	if err == nil {
		s.log.Info("env config set", "key", key, "value", value)
	}
	return out, err
}

// EnvConfigSnapshot returns the effective value of every known key that is set.
func (s *Service) EnvConfigSnapshot(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := s.runTx(ctx, func(tx Tx) error {
		clear(out)
		for _, key := range EnvConfigKeys() {
			cfg, ok, err := lookupEnvConfig(ctx, tx, key)
			if err != nil {
				return err
			}
			if ok {
				out[key] = cfg.Value
			}
		}
		return nil
	})
	return out, err
}

// Month returns the current game month, 0 before the first settlement.
func (s *Service) Month(ctx context.Context) (int64, error) {
	var out int64
	err := s.runTx(ctx, func(tx Tx) error {
		var err error
		out, err = currentMonth(ctx, tx)
		return err
	})
	return out, err
}

func validateEnvConfigValue(key, value string) error {
	if key == KeyInflationMode {
		if value != InflationFlat && value != InflationCoef {
			return newError(ErrInvalidInput, "inflationMode must be %q or %q.", InflationFlat, InflationCoef)
		}
		return nil
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return newError(ErrInvalidInput, "%s must be numeric.", key)
	}
	return nil
}

func getEnvConfig(ctx context.Context, tx Tx, key string) (EnvConfig, error) {
	cfg, ok, err := lookupEnvConfig(ctx, tx, key)
	if err != nil {
		return EnvConfig{}, err
	}
	if !ok {
		return EnvConfig{}, newError(ErrMissingConfig, "%s env config not set.", key)
	}
	return cfg, nil
}

func lookupEnvConfig(ctx context.Context, tx Tx, key string) (EnvConfig, bool, error) {
	cfg, err := tx.LatestEnvConfig(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return EnvConfig{}, false, nil
	}
	if err != nil {
		return EnvConfig{}, false, err
	}
	return cfg, true, nil
}

func floatConfig(ctx context.Context, tx Tx, key string) (float64, error) {
	cfg, err := getEnvConfig(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cfg.Value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, newError(ErrMissingConfig, "%s env config is not a number.", key)
	}
	return v, nil
}

func currentMonth(ctx context.Context, tx Tx) (int64, error) {
	cfg, ok, err := lookupEnvConfig(ctx, tx, KeyMonth)
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cfg.Value), 64)
	if err != nil {
		return 0, newError(ErrMissingConfig, "month env config is not a number.")
	}
	return int64(v), nil
}

func incrementMonth(ctx context.Context, tx Tx) (int64, error) {
	month, err := currentMonth(ctx, tx)
	if err != nil {
		return 0, err
	}
	month++
	if _, err := tx.AppendEnvConfig(ctx, KeyMonth, strconv.FormatInt(month, 10)); err != nil {
		return 0, err
	}
	return month, nil
}
