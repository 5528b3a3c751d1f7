package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"firmledger/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSeed(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	seed, err := c.Seed()
	require.NoError(t, err)
	require.Len(t, seed.FirmTypes, 4)

	farm := seed.FirmTypes[0]
	assert.Equal(t, "Farm", farm.Name)
	assert.Equal(t, game.UnitAmounts(300, 0, 50, 0), farm.Cost)
	assert.Equal(t, game.UnitAmounts(20, 0, 0, 0), farm.MonthlyCost)
	assert.Equal(t, 60.0, farm.ProductionMean[game.Food])
	assert.Equal(t, 20.0, farm.ProductionStdDevPerc[game.Food])

	keys := make([]string, len(seed.EnvConfig))
	for i, kv := range seed.EnvConfig {
		keys[i] = kv.Key
	}
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "eatAmount")
	assert.NotContains(t, keys, "month")

	initial, err := c.InitialAmounts()
	require.NoError(t, err)
	assert.Equal(t, game.UnitAmounts(500, 200, 200, 100), initial)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := `
initial_balance: {coin: 10}
firm_types:
  - name: Quarry
    cost: {coin: 5}
    production_mean: {iron: 2}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.FirmTypes, 1)

	seed, err := c.Seed()
	require.NoError(t, err)
	assert.Equal(t, 2.0, seed.FirmTypes[0].ProductionMean[game.Iron])
	assert.Empty(t, seed.EnvConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read catalog")
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"firm_types[0]: name is required":                             "firm_types: [{name: ' '}]",
		`firm_types[1]: duplicate name "Farm"`:                        "firm_types: [{name: Farm}, {name: Farm}]",
		`firm type "Farm": build_time_months must be >= 0`:            "firm_types: [{name: Farm, build_time_months: -1}]",
		`firm type "Farm": production_std_dev_perc.food must be >= 0`: "firm_types: [{name: Farm, production_std_dev_perc: {food: -3}}]",
	}
	for want, body := range cases {
		_, err := Parse([]byte(body))
		assert.EqualError(t, err, want)
	}

	_, err := Parse([]byte("firm_types: ["))
	assert.ErrorContains(t, err, "parse catalog")
}

func TestSeedRejectsUnknownAsset(t *testing.T) {
	c, err := Parse([]byte("firm_types: [{name: Mint, cost: {gold: 1}}]"))
	require.NoError(t, err)
	_, err = c.Seed()
	assert.ErrorContains(t, err, `unknown asset "gold"`)
}
