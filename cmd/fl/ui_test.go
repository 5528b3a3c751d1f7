package main

import (
	"path/filepath"
	"testing"

	cl "firmledger/internal/cli"
	"firmledger/internal/game"
	"firmledger/internal/syncq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMicros(t *testing.T) {
	tests := []struct {
		micros int64
		want   string
	}{
		{0, "0"},
		{-5_000, "0"},
		{12 * game.MicrosPerUnit, "12"},
		{1_234_567 * game.MicrosPerUnit, "1,234,567"},
		{2_500_000, "2.50"},
		{-109_333_333, "-109.33"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, formatMicros(tc.micros), "micros=%d", tc.micros)
	}
}

func TestComma(t *testing.T) {
	assert.Equal(t, "999", comma(999))
	assert.Equal(t, "1,000", comma(1000))
	assert.Equal(t, "12,345,678", comma(12345678))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Farm", truncate("  Farm ", 10))
	assert.Equal(t, "Iron M...", truncate("Iron Mine Deluxe", 9))
	assert.Equal(t, "Äö", truncate("Äöü", 2))
	assert.Equal(t, "Äöü", truncate("Äöü", 0))
}

func TestPartyLabel(t *testing.T) {
	id := int64(4)
	assert.Equal(t, "system", partyLabel(nil))
	assert.Equal(t, "#4", partyLabel(&id))
}

func TestAmountsInline(t *testing.T) {
	got := amountsInline(game.UnitAmounts(1500, 0, 2, 0))
	assert.Equal(t, "coin=1,500 food=0 lumber=2 iron=0", got)
}

func TestParseID(t *testing.T) {
	id, err := parseID(" 12 ", "firm id")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = parseID("0", "firm id")
	assert.EqualError(t, err, `invalid firm id "0"`)
	_, err = parseID("x", "player id")
	assert.Error(t, err)
}

func TestSetUnits(t *testing.T) {
	var u cl.Units
	for i, a := range game.Assets {
		setUnits(&u, a, int64(i+1))
	}
	assert.Equal(t, cl.Units{Coin: 1, Food: 2, Lumber: 3, Iron: 4}, u)
}

func TestDecodeInto(t *testing.T) {
	raw := map[string]any{"month": float64(3)}
	out, err := decodeInto[monthPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Month)
}

func TestQueueOnNetworkError(t *testing.T) {
	home := t.TempDir()
	t.Setenv("FL_HOME", home)
	cmd := syncq.Command{Method: "POST", Path: "/v1/exchanges/transfer", IdempotencyKey: "k"}

	apiErr := &cl.APIError{Status: 400, Message: "nope"}
	assert.Same(t, apiErr, queueOnNetworkError(apiErr, cmd))

	require.NoError(t, queueOnNetworkError(assert.AnError, cmd))
	q := syncq.New(filepath.Join(home, "outbox.json"))
	queued, err := q.Load()
	require.NoError(t, err)
	assert.Equal(t, []syncq.Command{cmd}, queued)
}

