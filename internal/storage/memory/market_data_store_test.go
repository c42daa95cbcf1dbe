package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"strategy-lab/internal/storage"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestMarketDataStore_InsertAndGetSeries(t *testing.T) {
	store := NewMarketDataStore()
	ctx := context.Background()

	bars := []storage.Bar{
		{Ticker: "spy", Day: day(2), Price: 110, Vol: 0.2},
		{Ticker: "spy", Day: day(1), Price: 100, Vol: 0.2},
		{Ticker: "qqq", Day: day(1), Price: 300, Vol: 0.25},
	}
	if err := store.InsertBars(ctx, bars); err != nil {
		t.Fatalf("InsertBars failed: %v", err)
	}

	series, err := store.GetSeries(ctx, "spy")
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("series length %d, want 2", len(series))
	}
	if series[0].Price != 100 || series[1].Price != 110 {
		t.Errorf("series not ordered by day: %v", series)
	}
}

func TestMarketDataStore_DuplicateDay(t *testing.T) {
	store := NewMarketDataStore()
	ctx := context.Background()

	if err := store.InsertBars(ctx, []storage.Bar{{Ticker: "spy", Day: day(1), Price: 100}}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := store.InsertBars(ctx, []storage.Bar{{Ticker: "spy", Day: day(1), Price: 101}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("got %v, want ErrDuplicateKey", err)
	}

	err = store.InsertBars(ctx, []storage.Bar{
		{Ticker: "qqq", Day: day(1), Price: 300},
		{Ticker: "qqq", Day: day(1), Price: 301},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("intra-batch duplicate: got %v, want ErrDuplicateKey", err)
	}
}

func TestMarketDataStore_GetRange(t *testing.T) {
	store := NewMarketDataStore()
	ctx := context.Background()

	var bars []storage.Bar
	for d := 1; d <= 5; d++ {
		bars = append(bars, storage.Bar{Ticker: "spy", Day: day(d), Price: float64(100 + d)})
	}
	if err := store.InsertBars(ctx, bars); err != nil {
		t.Fatalf("InsertBars failed: %v", err)
	}

	got, err := store.GetRange(ctx, "spy", day(2), day(4))
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 3 || got[0].Price != 102 || got[2].Price != 104 {
		t.Errorf("range result wrong: %v", got)
	}
}

func TestMarketDataStore_TickersAndNotFound(t *testing.T) {
	store := NewMarketDataStore()
	ctx := context.Background()

	if _, err := store.GetSeries(ctx, "spy"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	bars := []storage.Bar{
		{Ticker: "tlt", Day: day(1), Price: 90},
		{Ticker: "spy", Day: day(1), Price: 100},
	}
	if err := store.InsertBars(ctx, bars); err != nil {
		t.Fatalf("InsertBars failed: %v", err)
	}

	tickers, err := store.Tickers(ctx)
	if err != nil {
		t.Fatalf("Tickers failed: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "spy" || tickers[1] != "tlt" {
		t.Errorf("tickers %v, want [spy tlt]", tickers)
	}
}
