package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/simulator"
)

func batchOptions(iterations int) simulator.Options {
	return simulator.Options{
		Config: &domain.SimulationConfiguration{
			Assets: []domain.Asset{{
				Ticker: "spy", InitialPrice: 100,
				Model: domain.AssetModel{Kind: domain.ModelGBM, GBM: &domain.GBMParams{Mu: 0.05, Sigma: 0.2}},
			}},
			TradingDays: 10,
			Iterations:  iterations,
		},
		Source:         "when cash_available >= 100:\nbuy_max spy\nend",
		InitialCash:    100000,
		BaseSeed:       42,
		Workers:        2,
		KeepRawResults: true,
	}
}

func TestCompareRuns_Identical(t *testing.T) {
	run := &domain.SimulationRunResult{
		RunID:       3,
		EquityCurve: []float64{100, 110, 105},
		Transactions: []domain.Transaction{
			{Day: 0, Ticker: "spy", Type: domain.TransactionBuy, Quantity: 1, Price: 100, Value: 100},
		},
	}
	if d := CompareRuns(run, run); len(d) != 0 {
		t.Errorf("identical runs produced %d divergences: %v", len(d), d)
	}
}

func TestCompareRuns_EquityDivergence(t *testing.T) {
	a := &domain.SimulationRunResult{RunID: 0, EquityCurve: []float64{100, 110, 105}}
	b := &domain.SimulationRunResult{RunID: 0, EquityCurve: []float64{100, 110, 104}}
	d := CompareRuns(a, b)
	if len(d) != 1 {
		t.Fatalf("divergence count %d, want 1", len(d))
	}
	if d[0].Field != "EquityCurve[2]" {
		t.Errorf("divergent field %q, want EquityCurve[2]", d[0].Field)
	}
}

func TestCompareRuns_TransactionCountShortCircuits(t *testing.T) {
	a := &domain.SimulationRunResult{
		EquityCurve:  []float64{100, 100},
		Transactions: []domain.Transaction{{Day: 0}, {Day: 1}},
	}
	b := &domain.SimulationRunResult{
		EquityCurve:  []float64{100, 100},
		Transactions: []domain.Transaction{{Day: 0}},
	}
	d := CompareRuns(a, b)
	if len(d) != 1 || d[0].Field != "len(Transactions)" {
		t.Errorf("got %v, want a single len(Transactions) divergence", d)
	}
}

func TestCompareRuns_TransactionFieldDivergence(t *testing.T) {
	a := &domain.SimulationRunResult{
		EquityCurve:  []float64{100, 100},
		Transactions: []domain.Transaction{{Day: 1, Ticker: "spy", Commission: 1}},
	}
	b := &domain.SimulationRunResult{
		EquityCurve:  []float64{100, 100},
		Transactions: []domain.Transaction{{Day: 1, Ticker: "spy", Commission: 2}},
	}
	d := CompareRuns(a, b)
	if len(d) != 1 {
		t.Fatalf("divergence count %d, want 1: %v", len(d), d)
	}
	if !strings.HasSuffix(d[0].Field, "Commission") {
		t.Errorf("divergent field %q, want a Commission field", d[0].Field)
	}
}

func TestCompareReports_Divergence(t *testing.T) {
	a := &domain.SimulationReport{Iterations: 10, ProbabilityOfSuccess: 0.9}
	b := &domain.SimulationReport{Iterations: 10, ProbabilityOfSuccess: 0.8}
	d := CompareReports(a, b)
	found := false
	for _, div := range d {
		if div.Field == "ProbabilityOfSuccess" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a ProbabilityOfSuccess divergence, got %v", d)
	}
}

func TestVerifyDeterminism(t *testing.T) {
	v := NewReplayVerifier(batchOptions(5))
	report, err := v.VerifyDeterminism(context.Background())
	if err != nil {
		t.Fatalf("verification failed: %v", err)
	}
	if !report.Match {
		t.Errorf("batch did not reproduce: %d divergent runs, report divergences %v",
			report.DivergentRuns, report.ReportDivergences)
	}
	if report.TotalRuns != 5 || report.MatchedRuns != 5 {
		t.Errorf("matched %d/%d runs, want 5/5", report.MatchedRuns, report.TotalRuns)
	}
}

func TestVerify_DetectsTamperedRun(t *testing.T) {
	opts := batchOptions(4)
	stored, err := simulator.New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	last := len(stored.Runs[2].EquityCurve) - 1
	stored.Runs[2].EquityCurve[last] += 1

	report, err := NewReplayVerifier(opts).Verify(context.Background(), stored)
	if err != nil {
		t.Fatalf("verification failed: %v", err)
	}
	if report.Match {
		t.Error("tampered batch reported as matching")
	}
	if report.DivergentRuns != 1 || report.MatchedRuns != 3 {
		t.Errorf("matched %d divergent %d, want 3 matched 1 divergent",
			report.MatchedRuns, report.DivergentRuns)
	}
	if report.Runs[2].Match {
		t.Error("tampered run reported as matching")
	}
}

func TestVerify_RequiresRawRuns(t *testing.T) {
	opts := batchOptions(2)
	opts.KeepRawResults = false
	stored, err := simulator.New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if _, err := NewReplayVerifier(opts).Verify(context.Background(), stored); !errors.Is(err, ErrNoRawRuns) {
		t.Errorf("got %v, want ErrNoRawRuns", err)
	}
}
