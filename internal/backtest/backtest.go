// Package backtest runs a compiled strategy once over real historical price
// series instead of generated paths, and compares the result against a
// buy-and-hold benchmark.
package backtest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"strategy-lab/internal/analytics"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/dsl"
	"strategy-lab/internal/engine"
)

// Backtest errors.
var (
	ErrNoSeries         = errors.New("no historical series provided")
	ErrSeriesMismatch   = errors.New("historical series have different lengths")
	ErrUnknownBenchmark = errors.New("benchmark ticker has no series")
)

// Request describes one historic backtest. Series maps each ticker to its
// observed (price, vol) points; all series must cover the same days.
type Request struct {
	Source          string
	Series          map[string][]domain.HistoricalPoint
	BenchmarkTicker string // empty selects the first ticker alphabetically
	InitialCash     float64
	RiskFreeRate    float64
	StartDate       time.Time
	Tax             domain.TaxConfiguration
	Costs           domain.ExecutionCosts
}

// Results is the full backtest output, including the benchmark comparison.
type Results struct {
	EquityCurve    []float64
	BenchmarkCurve []float64
	DrawdownCurve  []float64
	Dates          []time.Time
	Transactions   []domain.Transaction

	TotalReturn     float64
	BenchmarkReturn float64
	MaxDrawdown     float64
	SharpeRatio     float64
	Volatility      float64

	TotalCommission float64
	TotalSlippage   float64
	TotalTax        float64
}

// Run compiles the strategy against the series' tickers and executes it
// day by day over the observed data.
func Run(req Request) (*Results, error) {
	tickers, length, err := validateSeries(req.Series)
	if err != nil {
		return nil, err
	}
	benchmark := req.BenchmarkTicker
	if benchmark == "" {
		benchmark = tickers[0]
	}
	benchSeries, ok := req.Series[benchmark]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBenchmark, benchmark)
	}

	strategy, cerr := dsl.Compile(req.Source, tickers)
	if cerr != nil {
		return nil, fmt.Errorf("compile: %w", cerr)
	}

	tradingDays := length - 1
	cfg := &domain.SimulationConfiguration{
		TradingDays:  tradingDays,
		Iterations:   1,
		RiskFreeRate: req.RiskFreeRate,
		StartDate:    req.StartDate,
	}

	run, err := engine.Run(engine.RunParams{
		Strategy:    strategy,
		Paths:       pathsFromSeries(req.Series, tickers),
		Config:      cfg,
		InitialCash: req.InitialCash,
		Tax:         req.Tax,
		Costs:       req.Costs,
	})
	if err != nil {
		return nil, err
	}

	metrics, err := analytics.ComputeRunMetrics(run, req.RiskFreeRate, domain.AnalysisConfiguration{})
	if err != nil {
		return nil, err
	}

	results := &Results{
		EquityCurve:     run.EquityCurve,
		BenchmarkCurve:  benchmarkCurve(benchSeries, req.InitialCash),
		DrawdownCurve:   analytics.DrawdownSeries(run.EquityCurve),
		Transactions:    run.Transactions,
		MaxDrawdown:     metrics.MaxDrawdown,
		SharpeRatio:     metrics.Sharpe,
		Volatility:      metrics.Volatility,
		TotalCommission: metrics.TotalCommission,
		TotalSlippage:   metrics.TotalSlippage,
		TotalTax:        metrics.TotalTax,
	}
	if req.InitialCash > 0 {
		results.TotalReturn = run.EquityCurve[len(run.EquityCurve)-1]/req.InitialCash - 1
	}
	if first := benchSeries[0].Price; first > 0 {
		results.BenchmarkReturn = benchSeries[len(benchSeries)-1].Price/first - 1
	}
	if !req.StartDate.IsZero() {
		results.Dates = tradingDates(req.StartDate, length)
	}
	return results, nil
}

// validateSeries checks shape and returns the tickers sorted for a stable
// compile universe.
func validateSeries(series map[string][]domain.HistoricalPoint) ([]string, int, error) {
	if len(series) == 0 {
		return nil, 0, ErrNoSeries
	}
	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	length := len(series[tickers[0]])
	if length < 2 {
		return nil, 0, fmt.Errorf("%w: series %q has %d points, need at least 2", ErrNoSeries, tickers[0], length)
	}
	for _, t := range tickers {
		if len(series[t]) != length {
			return nil, 0, fmt.Errorf("%w: %q has %d points, %q has %d", ErrSeriesMismatch, tickers[0], length, t, len(series[t]))
		}
	}
	return tickers, length, nil
}

func pathsFromSeries(series map[string][]domain.HistoricalPoint, tickers []string) *domain.PathSet {
	paths := make([]domain.PricePath, 0, len(tickers))
	for _, t := range tickers {
		points := make([]domain.MarketDataPoint, len(series[t]))
		for i, h := range series[t] {
			points[i] = domain.MarketDataPoint{Price: h.Price, Vol: h.Vol}
		}
		paths = append(paths, domain.PricePath{Ticker: t, Points: points})
	}
	return domain.NewPathSet(paths)
}

// benchmarkCurve scales a buy-and-hold of the benchmark to the starting
// capital.
func benchmarkCurve(series []domain.HistoricalPoint, initialCash float64) []float64 {
	out := make([]float64, len(series))
	first := series[0].Price
	if first <= 0 {
		return out
	}
	for i, h := range series {
		out[i] = initialCash * h.Price / first
	}
	return out
}

// tradingDates maps day indices to calendar dates, skipping weekends.
func tradingDates(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := start
	for len(out) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}
