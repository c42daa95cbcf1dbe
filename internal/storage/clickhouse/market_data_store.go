package clickhouse

import (
	"context"
	"fmt"
	"time"

	"strategy-lab/internal/storage"
)

// MarketDataStore implements storage.MarketDataStore using ClickHouse.
// MergeTree does not enforce uniqueness, so duplicates are rejected with an
// explicit existence check before each batch insert.
type MarketDataStore struct {
	conn *Conn
}

// NewMarketDataStore creates a new MarketDataStore.
func NewMarketDataStore(conn *Conn) *MarketDataStore {
	return &MarketDataStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MarketDataStore = (*MarketDataStore)(nil)

// InsertBars adds multiple bars. Fails the entire batch on any duplicate
// (ticker, day), including intra-batch duplicates.
func (s *MarketDataStore) InsertBars(ctx context.Context, bars []storage.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		ticker string
		day    string
	}
	seen := make(map[key]struct{}, len(bars))
	for _, b := range bars {
		if b.Ticker == "" {
			return storage.ErrInvalidInput
		}
		k := key{b.Ticker, b.Day.Format("2006-01-02")}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, b := range bars {
		exists, err := s.exists(ctx, b.Ticker, b.Day)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_data_bars (ticker, day, price, vol)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		if err := batch.Append(b.Ticker, b.Day, b.Price, b.Vol); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetSeries retrieves all bars for a ticker ordered by day ASC.
func (s *MarketDataStore) GetSeries(ctx context.Context, ticker string) ([]storage.Bar, error) {
	query := `
		SELECT ticker, day, price, vol
		FROM market_data_bars
		WHERE ticker = ?
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, storage.ErrNotFound
	}
	return bars, nil
}

// GetRange retrieves bars for a ticker within [from, to] inclusive.
func (s *MarketDataStore) GetRange(ctx context.Context, ticker string, from, to time.Time) ([]storage.Bar, error) {
	query := `
		SELECT ticker, day, price, vol
		FROM market_data_bars
		WHERE ticker = ? AND day >= ? AND day <= ?
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// Tickers lists all tickers with at least one bar, sorted.
func (s *MarketDataStore) Tickers(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT ticker
		FROM market_data_bars
		ORDER BY ticker ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tickers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("scan ticker row: %w", err)
		}
		out = append(out, ticker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticker rows: %w", err)
	}
	return out, nil
}

// exists checks if a bar with the given key exists.
func (s *MarketDataStore) exists(ctx context.Context, ticker string, day time.Time) (bool, error) {
	query := `
		SELECT count(*) FROM market_data_bars
		WHERE ticker = ? AND day = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, ticker, day).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the row-iteration subset of the driver used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]storage.Bar, error) {
	var bars []storage.Bar
	for rows.Next() {
		var b storage.Bar
		if err := rows.Scan(&b.Ticker, &b.Day, &b.Price, &b.Vol); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}
	return bars, nil
}
