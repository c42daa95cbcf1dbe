package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"strategy-lab/internal/domain"
)

func series(prices ...float64) []domain.HistoricalPoint {
	out := make([]domain.HistoricalPoint, len(prices))
	for i, p := range prices {
		out[i] = domain.HistoricalPoint{Price: p, Vol: 0.2}
	}
	return out
}

func TestRun_BuyAndHoldMatchesBenchmark(t *testing.T) {
	req := Request{
		Source:      "when cash_available >= 1000:\nbuy_max spy\nend",
		Series:      map[string][]domain.HistoricalPoint{"spy": series(100, 110, 121)},
		InitialCash: 1000,
	}
	results, err := Run(req)
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}
	if len(results.EquityCurve) != 3 {
		t.Fatalf("equity curve length %d, want 3", len(results.EquityCurve))
	}
	// All-in on day 0 tracks the benchmark exactly with zero costs.
	for i := range results.EquityCurve {
		if math.Abs(results.EquityCurve[i]-results.BenchmarkCurve[i]) > 1e-9 {
			t.Errorf("day %d: equity %.4f != benchmark %.4f", i, results.EquityCurve[i], results.BenchmarkCurve[i])
		}
	}
	if math.Abs(results.TotalReturn-0.21) > 1e-9 {
		t.Errorf("total return %.4f, want 0.21", results.TotalReturn)
	}
	if math.Abs(results.BenchmarkReturn-0.21) > 1e-9 {
		t.Errorf("benchmark return %.4f, want 0.21", results.BenchmarkReturn)
	}
}

func TestRun_DrawdownCurve(t *testing.T) {
	req := Request{
		Source:      "when cash_available >= 1000:\nbuy_max spy\nend",
		Series:      map[string][]domain.HistoricalPoint{"spy": series(100, 80, 100)},
		InitialCash: 1000,
	}
	results, err := Run(req)
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}
	if math.Abs(results.DrawdownCurve[1]-0.2) > 1e-9 {
		t.Errorf("day-1 drawdown %.4f, want 0.20", results.DrawdownCurve[1])
	}
	if math.Abs(results.MaxDrawdown-0.2) > 1e-9 {
		t.Errorf("max drawdown %.4f, want 0.20", results.MaxDrawdown)
	}
}

func TestRun_DatesSkipWeekends(t *testing.T) {
	// 2026-01-02 is a Friday; the next trading day is Monday the 5th.
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	req := Request{
		Source:      "set x to 1",
		Series:      map[string][]domain.HistoricalPoint{"spy": series(100, 100, 100)},
		InitialCash: 1000,
		StartDate:   start,
	}
	results, err := Run(req)
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}
	if len(results.Dates) != 3 {
		t.Fatalf("date count %d, want 3", len(results.Dates))
	}
	want := []int{2, 5, 6}
	for i, d := range results.Dates {
		if d.Day() != want[i] {
			t.Errorf("date %d is Jan %d, want Jan %d", i, d.Day(), want[i])
		}
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("date %d falls on a weekend", i)
		}
	}
}

func TestRun_ValidationErrors(t *testing.T) {
	if _, err := Run(Request{Source: "set x to 1"}); !errors.Is(err, ErrNoSeries) {
		t.Errorf("empty series: got %v, want ErrNoSeries", err)
	}

	req := Request{
		Source: "set x to 1",
		Series: map[string][]domain.HistoricalPoint{
			"spy": series(100, 110, 120),
			"qqq": series(100, 110),
		},
		InitialCash: 1000,
	}
	if _, err := Run(req); !errors.Is(err, ErrSeriesMismatch) {
		t.Errorf("mismatched lengths: got %v, want ErrSeriesMismatch", err)
	}

	req = Request{
		Source:          "set x to 1",
		Series:          map[string][]domain.HistoricalPoint{"spy": series(100, 110)},
		BenchmarkTicker: "qqq",
		InitialCash:     1000,
	}
	if _, err := Run(req); !errors.Is(err, ErrUnknownBenchmark) {
		t.Errorf("unknown benchmark: got %v, want ErrUnknownBenchmark", err)
	}
}

func TestRun_CompileErrorSurfaces(t *testing.T) {
	req := Request{
		Source:      "buy 1 unknown",
		Series:      map[string][]domain.HistoricalPoint{"spy": series(100, 110)},
		InitialCash: 1000,
	}
	if _, err := Run(req); err == nil {
		t.Error("expected a compile error for an unknown ticker")
	}
}
