// Package catalog loads the starting firm types, base env config and
// initial balances from YAML.
package catalog

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"firmledger/internal/game"
)

//go:embed default.yaml
var defaultYAML []byte

type FirmType struct {
	Name                 string             `yaml:"name"`
	BuildTimeMonths      int64              `yaml:"build_time_months"`
	Cost                 map[string]int64   `yaml:"cost"`
	MonthlyCost          map[string]int64   `yaml:"monthly_cost"`
	ProductionMean       map[string]float64 `yaml:"production_mean"`
	ProductionStdDevPerc map[string]float64 `yaml:"production_std_dev_perc"`
}

type Catalog struct {
	InitialBalance map[string]int64  `yaml:"initial_balance"`
	EnvConfig      map[string]string `yaml:"env_config"`
	FirmTypes      []FirmType        `yaml:"firm_types"`
}

// Default returns the embedded catalog.
func Default() (Catalog, error) {
	return Parse(defaultYAML)
}

// Load reads path, or the embedded catalog when path is empty.
func Load(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) validate() error {
	seen := map[string]bool{}
	for i, ft := range c.FirmTypes {
		name := strings.TrimSpace(ft.Name)
		if name == "" {
			return fmt.Errorf("firm_types[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("firm_types[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if ft.BuildTimeMonths < 0 {
			return fmt.Errorf("firm type %q: build_time_months must be >= 0", name)
		}
		for asset, v := range ft.ProductionStdDevPerc {
			if v < 0 || math.IsNaN(v) {
				return fmt.Errorf("firm type %q: production_std_dev_perc.%s must be >= 0", name, asset)
			}
		}
	}
	return nil
}

// Seed converts the catalog into firm types and config rows for game.Service.Init.
func (c Catalog) Seed() (game.Seed, error) {
	var seed game.Seed
	for _, ft := range c.FirmTypes {
		out := game.FirmType{Name: strings.TrimSpace(ft.Name), BuildTimeMonths: ft.BuildTimeMonths}
		var err error
		if out.Cost, err = unitAmounts(ft.Cost); err != nil {
			return game.Seed{}, fmt.Errorf("firm type %q cost: %w", ft.Name, err)
		}
		if out.MonthlyCost, err = unitAmounts(ft.MonthlyCost); err != nil {
			return game.Seed{}, fmt.Errorf("firm type %q monthly_cost: %w", ft.Name, err)
		}
		if out.ProductionMean, err = rates(ft.ProductionMean); err != nil {
			return game.Seed{}, fmt.Errorf("firm type %q production_mean: %w", ft.Name, err)
		}
		if out.ProductionStdDevPerc, err = rates(ft.ProductionStdDevPerc); err != nil {
			return game.Seed{}, fmt.Errorf("firm type %q production_std_dev_perc: %w", ft.Name, err)
		}
		seed.FirmTypes = append(seed.FirmTypes, out)
	}

	keys := make([]string, 0, len(c.EnvConfig))
	for k := range c.EnvConfig {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		seed.EnvConfig = append(seed.EnvConfig, game.EnvConfig{Key: k, Value: c.EnvConfig[k]})
	}
	return seed, nil
}

// InitialAmounts is the starting balance credited by the initial exchange.
func (c Catalog) InitialAmounts() (game.Amounts, error) {
	return unitAmounts(c.InitialBalance)
}

func unitAmounts(m map[string]int64) (game.Amounts, error) {
	var out game.Amounts
	for k, v := range m {
		a, err := game.ParseAsset(k)
		if err != nil {
			return game.Amounts{}, err
		}
		out[a] = v * game.MicrosPerUnit
	}
	return out, nil
}

func rates(m map[string]float64) (game.Rates, error) {
	var out game.Rates
	for k, v := range m {
		a, err := game.ParseAsset(k)
		if err != nil {
			return game.Rates{}, err
		}
		out[a] = v
	}
	return out, nil
}
