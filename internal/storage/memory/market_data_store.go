package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"strategy-lab/internal/storage"
)

// MarketDataStore is an in-memory implementation of storage.MarketDataStore.
type MarketDataStore struct {
	mu   sync.RWMutex
	data map[string][]storage.Bar // keyed by ticker, sorted by day
}

// NewMarketDataStore creates a new in-memory market data store.
func NewMarketDataStore() *MarketDataStore {
	return &MarketDataStore{data: make(map[string][]storage.Bar)}
}

// Compile-time interface check.
var _ storage.MarketDataStore = (*MarketDataStore)(nil)

// InsertBars adds multiple bars. Fails the entire batch on any duplicate.
func (s *MarketDataStore) InsertBars(_ context.Context, bars []storage.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		ticker string
		day    string
	}
	batch := make(map[key]struct{}, len(bars))
	for _, b := range bars {
		if b.Ticker == "" {
			return storage.ErrInvalidInput
		}
		k := key{b.Ticker, b.Day.Format("2006-01-02")}
		if _, dup := batch[k]; dup {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}

		for _, existing := range s.data[b.Ticker] {
			if sameDay(existing.Day, b.Day) {
				return storage.ErrDuplicateKey
			}
		}
	}

	for _, b := range bars {
		s.data[b.Ticker] = append(s.data[b.Ticker], b)
	}
	for ticker := range s.data {
		series := s.data[ticker]
		sort.Slice(series, func(a, b int) bool { return series[a].Day.Before(series[b].Day) })
	}
	return nil
}

// GetSeries retrieves all bars for a ticker ordered by day ASC.
func (s *MarketDataStore) GetSeries(_ context.Context, ticker string) ([]storage.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.data[ticker]
	if !ok || len(series) == 0 {
		return nil, storage.ErrNotFound
	}
	out := make([]storage.Bar, len(series))
	copy(out, series)
	return out, nil
}

// GetRange retrieves bars for a ticker within [from, to] inclusive.
func (s *MarketDataStore) GetRange(_ context.Context, ticker string, from, to time.Time) ([]storage.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Bar
	for _, b := range s.data[ticker] {
		if b.Day.Before(from) || b.Day.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Tickers lists all tickers with at least one bar, sorted.
func (s *MarketDataStore) Tickers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for ticker, series := range s.data {
		if len(series) > 0 {
			out = append(out, ticker)
		}
	}
	sort.Strings(out)
	return out, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
