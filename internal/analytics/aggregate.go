package analytics

import (
	"fmt"
	"math"
	"sort"

	"strategy-lab/internal/domain"
)

// samplePathPercentiles are the final-wealth percentiles whose equity curves
// are returned as representative paths when the batch is large enough.
var samplePathPercentiles = []int{10, 25, 50, 75, 90}

// recoveryBinEdges are the underwater-streak histogram buckets in trading
// days (roughly week, fortnight, month, quarter, half year, year).
var recoveryBinEdges = []int{0, 5, 10, 21, 63, 126, 252}

// Aggregate folds per-run metrics and equity curves into a cross-run report.
// Runs and metrics must be parallel slices. The batch fails closed on empty
// input, mismatched lengths, or degenerate curves.
func Aggregate(runs []*domain.SimulationRunResult, metrics []*domain.SingleRunMetrics) (*domain.SimulationReport, error) {
	if len(runs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(runs) != len(metrics) {
		return nil, fmt.Errorf("runs/metrics length mismatch: %d vs %d", len(runs), len(metrics))
	}
	curveLen := len(runs[0].EquityCurve)
	if curveLen < 2 {
		return nil, fmt.Errorf("run %d: %w", runs[0].RunID, ErrDegenerateCurve)
	}
	for _, r := range runs {
		if len(r.EquityCurve) != curveLen {
			return nil, fmt.Errorf("run %d: %w (length %d, want %d)", r.RunID, ErrDegenerateCurve, len(r.EquityCurve), curveLen)
		}
	}

	n := float64(len(runs))
	report := &domain.SimulationReport{
		Iterations:        len(runs),
		TradingDays:       curveLen - 1,
		DrawdownFrequency: make(map[int]float64, len(domain.DrawdownThresholds)),
	}

	finals := make([]float64, len(metrics))
	var goalDays []float64
	var successes, ruins int
	breached := make(map[int]int, len(domain.DrawdownThresholds))
	for i, m := range metrics {
		finals[i] = m.FinalWealth
		if m.DaysToGoal >= 0 {
			goalDays = append(goalDays, float64(m.DaysToGoal))
		}
		if m.ReachedGoal {
			successes++
		}
		if m.IsRuined {
			ruins++
		}
		report.AvgCAGR += m.CAGR / n
		report.AvgSharpe += m.Sharpe / n
		report.AvgSortino += m.Sortino / n
		report.AvgVolatility += m.Volatility / n
		report.AvgCommission += m.TotalCommission / n
		report.AvgSlippage += m.TotalSlippage / n
		report.AvgTax += m.TotalTax / n
		for _, t := range domain.DrawdownThresholds {
			if m.DrawdownBreaches[t] > 0 {
				breached[t]++
			}
		}
	}

	report.FinalWealth = distribution(finals)
	report.DaysToGoal = distribution(goalDays)
	report.ProbabilityOfSuccess = float64(successes) / n
	report.ProbabilityOfRuin = float64(ruins) / n
	for _, t := range domain.DrawdownThresholds {
		report.DrawdownFrequency[t] = float64(breached[t]) / n
	}

	report.SamplePaths = samplePaths(runs, metrics)
	report.Cone = drawdownCone(runs, curveLen)
	report.Recovery = recoveryHistogram(runs)
	return report, nil
}

// distribution summarizes one cross-run sample. The geometric mean covers
// only the strictly positive values; an all-non-positive sample reports 0.
func distribution(sample []float64) domain.DistributionStats {
	stats := domain.DistributionStats{Deciles: make(map[int]float64, 9)}
	if len(sample) == 0 {
		return stats
	}

	var sum float64
	var logSum float64
	var positive int
	for _, v := range sample {
		sum += v
		if v > 0 {
			logSum += math.Log(v)
			positive++
		}
	}
	stats.Mean = sum / float64(len(sample))
	stats.Median = Percentile(sample, 50)
	if positive > 0 {
		stats.GeometricMean = math.Exp(logSum / float64(positive))
	}
	for p := 10; p <= 90; p += 10 {
		stats.Deciles[p] = Percentile(sample, float64(p))
	}
	return stats
}

// samplePaths picks representative equity curves. Small batches return every
// curve; larger ones the nearest-rank curves at fixed wealth percentiles.
func samplePaths(runs []*domain.SimulationRunResult, metrics []*domain.SingleRunMetrics) []domain.SamplePath {
	order := make([]int, len(runs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return metrics[order[a]].FinalWealth < metrics[order[b]].FinalWealth
	})

	if len(runs) < 5 {
		out := make([]domain.SamplePath, 0, len(runs))
		for rank, idx := range order {
			out = append(out, domain.SamplePath{
				Percentile: int(math.Round(float64(rank+1) / float64(len(runs)+1) * 100)),
				Curve:      runs[idx].EquityCurve,
			})
		}
		return out
	}

	out := make([]domain.SamplePath, 0, len(samplePathPercentiles))
	for _, p := range samplePathPercentiles {
		idx := order[nearestRankIndex(len(order), float64(p))]
		out = append(out, domain.SamplePath{Percentile: p, Curve: runs[idx].EquityCurve})
	}
	return out
}

// drawdownCone computes the per-day 10th/50th/90th percentile of every run's
// running drawdown series.
func drawdownCone(runs []*domain.SimulationRunResult, curveLen int) domain.DrawdownCone {
	series := make([][]float64, len(runs))
	for i, r := range runs {
		series[i] = DrawdownSeries(r.EquityCurve)
	}

	cone := domain.DrawdownCone{
		P10: make([]float64, curveLen),
		P50: make([]float64, curveLen),
		P90: make([]float64, curveLen),
	}
	day := make([]float64, len(runs))
	for d := 0; d < curveLen; d++ {
		for i := range series {
			day[i] = series[i][d]
		}
		cone.P10[d] = Percentile(day, 10)
		cone.P50[d] = Percentile(day, 50)
		cone.P90[d] = Percentile(day, 90)
	}
	return cone
}

// recoveryHistogram buckets each run's longest underwater streak. The zero
// bin counts runs that never dipped below a prior peak.
func recoveryHistogram(runs []*domain.SimulationRunResult) []domain.RecoveryBin {
	maxStreak := 0
	streaks := make([]int, len(runs))
	for i, r := range runs {
		streaks[i] = longestUnderwater(r.EquityCurve)
		if streaks[i] > maxStreak {
			maxStreak = streaks[i]
		}
	}

	edges := make([]int, 0, len(recoveryBinEdges)+1)
	for _, e := range recoveryBinEdges {
		if e == 0 || e < maxStreak {
			edges = append(edges, e)
		}
	}
	if edges[len(edges)-1] != maxStreak {
		edges = append(edges, maxStreak)
	}

	bins := make([]domain.RecoveryBin, len(edges))
	for i, e := range edges {
		bins[i] = domain.RecoveryBin{UpToDays: e}
	}
	for _, s := range streaks {
		for i, e := range edges {
			if s <= e {
				bins[i].Count++
				break
			}
		}
	}
	return bins
}
