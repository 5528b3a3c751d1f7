package audit

import (
	"testing"
	"time"

	"firmledger/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementLogRotatesPerDay(t *testing.T) {
	dir := t.TempDir()
	log := NewSettlementLog(dir)
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	log.w.now = func() time.Time { return now }

	require.NoError(t, log.Record(game.MonthReport{Month: 1, BatchID: "a", Players: 3}))
	require.NoError(t, log.Record(game.MonthReport{Month: 2, BatchID: "b", Players: 3}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, log.Record(game.MonthReport{Month: 3, BatchID: "c", TaxCollected: game.UnitAmounts(0, 1, 0, 0)}))
	require.NoError(t, log.Close())

	first, err := ReadReports(log.w.PathForDay("2026-03-01"))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].Month)
	assert.Equal(t, "b", first[1].BatchID)

	second, err := ReadReports(log.w.PathForDay("2026-03-02"))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, game.UnitAmounts(0, 1, 0, 0), second[0].TaxCollected)
}

func TestWriterAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "settlements")
	w.now = func() time.Time { return time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC) }

	require.NoError(t, w.Write(game.MonthReport{Month: 7}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Write(game.MonthReport{Month: 8}))
	require.NoError(t, w.Close())

	reports, err := ReadReports(w.PathForDay("2026-05-05"))
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(8), reports[1].Month)
}

func TestReadReportsMissingFile(t *testing.T) {
	_, err := ReadReports(t.TempDir() + "/nope.jsonl.zst")
	assert.Error(t, err)
}
