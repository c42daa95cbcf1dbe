package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

func testReportRecord(id string) *storage.ReportRecord {
	return &storage.ReportRecord{
		ReportID:     id,
		Source:       "buy 1 spy",
		ConfigDigest: "digest-" + id,
		BaseSeed:     42,
		InitialCash:  100000,
		Iterations:   100,
		TradingDays:  252,
		Report: &domain.SimulationReport{
			Iterations:           100,
			TradingDays:          252,
			ProbabilityOfSuccess: 0.85,
			ProbabilityOfRuin:    0.02,
			FinalWealth: domain.DistributionStats{
				Mean:    123456.78,
				Median:  118000,
				Deciles: map[int]float64{10: 90000, 50: 118000, 90: 170000},
			},
			DrawdownFrequency: map[int]float64{10: 0.6, 20: 0.2},
		},
	}
}

func TestReportStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testReportRecord("r1")))

	got, err := store.GetByID(ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, "r1", got.ReportID)
	assert.Equal(t, "buy 1 spy", got.Source)
	assert.Equal(t, int64(42), got.BaseSeed)
	assert.False(t, got.CreatedAt.IsZero())
	require.NotNil(t, got.Report)
	assert.Equal(t, 100, got.Report.Iterations)
	assert.InDelta(t, 0.85, got.Report.ProbabilityOfSuccess, 1e-9)
	assert.InDelta(t, 118000, got.Report.FinalWealth.Deciles[50], 1e-9)
	assert.InDelta(t, 0.6, got.Report.DrawdownFrequency[10], 1e-9)
}

func TestReportStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testReportRecord("r1")))
	assert.ErrorIs(t, store.Insert(ctx, testReportRecord("r1")), storage.ErrDuplicateKey)
}

func TestReportStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReportStore_ListNewestFirst(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReportStore(pool)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := testReportRecord(id)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Insert(ctx, rec))
	}

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ReportID)
	assert.Equal(t, "a", all[2].ReportID)

	two, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "c", two[0].ReportID)
}
