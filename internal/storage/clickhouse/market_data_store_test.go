package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/storage"
)

func tradingDay(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestMarketDataStore_InsertAndGetSeries(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMarketDataStore(conn)
	ctx := context.Background()

	bars := []storage.Bar{
		{Ticker: "spy", Day: tradingDay(2), Price: 110, Vol: 0.21},
		{Ticker: "spy", Day: tradingDay(1), Price: 100, Vol: 0.2},
		{Ticker: "qqq", Day: tradingDay(1), Price: 300, Vol: 0.25},
	}
	require.NoError(t, store.InsertBars(ctx, bars))

	series, err := store.GetSeries(ctx, "spy")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.InDelta(t, 100, series[0].Price, 1e-9)
	assert.InDelta(t, 110, series[1].Price, 1e-9)
	assert.InDelta(t, 0.2, series[0].Vol, 1e-9)
}

func TestMarketDataStore_DuplicateDay(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMarketDataStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBars(ctx, []storage.Bar{{Ticker: "spy", Day: tradingDay(1), Price: 100}}))

	err := store.InsertBars(ctx, []storage.Bar{{Ticker: "spy", Day: tradingDay(1), Price: 101}})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBars(ctx, []storage.Bar{
		{Ticker: "qqq", Day: tradingDay(1), Price: 300},
		{Ticker: "qqq", Day: tradingDay(1), Price: 301},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestMarketDataStore_GetRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMarketDataStore(conn)
	ctx := context.Background()

	var bars []storage.Bar
	for d := 1; d <= 5; d++ {
		bars = append(bars, storage.Bar{Ticker: "spy", Day: tradingDay(d), Price: float64(100 + d), Vol: 0.2})
	}
	require.NoError(t, store.InsertBars(ctx, bars))

	got, err := store.GetRange(ctx, "spy", tradingDay(2), tradingDay(4))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 102, got[0].Price, 1e-9)
	assert.InDelta(t, 104, got[2].Price, 1e-9)
}

func TestMarketDataStore_TickersAndNotFound(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMarketDataStore(conn)
	ctx := context.Background()

	_, err := store.GetSeries(ctx, "spy")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.InsertBars(ctx, []storage.Bar{
		{Ticker: "tlt", Day: tradingDay(1), Price: 90},
		{Ticker: "spy", Day: tradingDay(1), Price: 100},
	}))

	tickers, err := store.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"spy", "tlt"}, tickers)
}
