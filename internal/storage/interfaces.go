package storage

import (
	"context"
	"time"

	"strategy-lab/internal/domain"
)

// ReportRecord is one archived simulation batch. The report ID is derived
// deterministically from the inputs, so re-running the same request archives
// at most once.
type ReportRecord struct {
	ReportID     string
	Source       string
	ConfigDigest string
	BaseSeed     int64
	InitialCash  float64
	Iterations   int
	TradingDays  int
	CreatedAt    time.Time
	Report       *domain.SimulationReport
}

// ReportStore archives simulation reports. Append-only.
type ReportStore interface {
	// Insert archives a report. Returns ErrDuplicateKey if report_id exists.
	Insert(ctx context.Context, r *ReportRecord) error

	// GetByID retrieves a report by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, reportID string) (*ReportRecord, error)

	// List retrieves up to limit reports, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*ReportRecord, error)
}

// Bar is one daily (price, vol) observation of a ticker.
type Bar struct {
	Ticker string
	Day    time.Time
	Price  float64
	Vol    float64
}

// MarketDataStore holds daily bar series used for backtests and bootstrap
// calibration. Append-only; a (ticker, day) pair is written at most once.
type MarketDataStore interface {
	// InsertBars adds multiple bars. Fails the entire batch on a duplicate
	// (ticker, day), including intra-batch duplicates.
	InsertBars(ctx context.Context, bars []Bar) error

	// GetSeries retrieves all bars for a ticker ordered by day ASC.
	// Returns ErrNotFound when the ticker has no bars.
	GetSeries(ctx context.Context, ticker string) ([]Bar, error)

	// GetRange retrieves bars for a ticker within [from, to] inclusive,
	// ordered by day ASC.
	GetRange(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)

	// Tickers lists all tickers with at least one bar, sorted.
	Tickers(ctx context.Context) ([]string, error)
}

// HistoricalSeries converts a bar series to the engine's historical-point
// form, dropping the dates.
func HistoricalSeries(bars []Bar) []domain.HistoricalPoint {
	out := make([]domain.HistoricalPoint, len(bars))
	for i, b := range bars {
		out[i] = domain.HistoricalPoint{Price: b.Price, Vol: b.Vol}
	}
	return out
}
