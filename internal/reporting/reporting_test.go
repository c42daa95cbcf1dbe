package reporting

import (
	"strings"
	"testing"
	"time"

	"strategy-lab/internal/domain"
)

func sampleReport() *domain.SimulationReport {
	return &domain.SimulationReport{
		Iterations:           100,
		TradingDays:          252,
		ProbabilityOfSuccess: 0.85,
		ProbabilityOfRuin:    0.02,
		AvgCAGR:              0.07,
		AvgSharpe:            0.9,
		FinalWealth: domain.DistributionStats{
			Mean:          120000,
			Median:        115000,
			GeometricMean: 118000,
			Deciles:       map[int]float64{10: 90000, 50: 115000, 90: 160000},
		},
		DrawdownFrequency: map[int]float64{10: 0.8, 20: 0.3},
		SamplePaths: []domain.SamplePath{
			{Percentile: 10, Curve: []float64{100000, 95000, 92000}},
			{Percentile: 50, Curve: []float64{100000, 101000, 103000}},
			{Percentile: 90, Curve: []float64{100000, 110000, 125000}},
		},
		Cone: domain.DrawdownCone{
			P10: []float64{0, 0, 0},
			P50: []float64{0, 0.01, 0.02},
			P90: []float64{0, 0.05, 0.08},
		},
		Recovery: []domain.RecoveryBin{{UpToDays: 0, Count: 40}, {UpToDays: 5, Count: 60}},
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(sampleReport(), RenderOptions{
		Title:       "Monte Carlo Report",
		ReportID:    "abc123",
		Source:      "buy 1 spy",
		BaseSeed:    42,
		InitialCash: 100000,
		GeneratedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	})

	for _, want := range []string{
		"# Monte Carlo Report",
		"Report ID: `abc123`",
		"buy 1 spy",
		"| Iterations | 100 |",
		"| Probability of Success | 0.8500 |",
		"## Final Wealth Distribution",
		"| Median | 115000.00 |",
		"| 10% | 0.8000 |",
		"## Recovery",
		"| 5 | 60 |",
		"| P90 | 125000.00 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_SkipsEmptyGoalDistribution(t *testing.T) {
	md := RenderMarkdown(sampleReport(), RenderOptions{})
	if strings.Contains(md, "Days to Goal Distribution") {
		t.Error("empty days-to-goal distribution should be omitted")
	}
}

func TestSamplePathsCSV(t *testing.T) {
	csv := SamplePathsCSV(sampleReport())
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("line count %d, want 4 (header + 3 days)", len(lines))
	}
	if lines[0] != "day,p10,p50,p90" {
		t.Errorf("header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,100000.000000,") {
		t.Errorf("first data row %q", lines[1])
	}
}

func TestDrawdownConeCSV(t *testing.T) {
	csv := DrawdownConeCSV(sampleReport())
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("line count %d, want 4", len(lines))
	}
	if lines[3] != "2,0.000000,0.020000,0.080000" {
		t.Errorf("last row %q", lines[3])
	}
}

func TestTransactionsCSV(t *testing.T) {
	csv := TransactionsCSV([]domain.Transaction{
		{Day: 0, Ticker: "spy", Type: domain.TransactionBuy, Quantity: 1, Price: 100, Value: 100},
		{Day: 5, Ticker: "spy", Type: domain.TransactionSell, Quantity: 1, Price: 110, Value: 110, Tax: 2.5},
	})
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("line count %d, want 3", len(lines))
	}
	if !strings.Contains(lines[2], "SELL") || !strings.Contains(lines[2], "2.500000") {
		t.Errorf("sell row %q", lines[2])
	}
}
