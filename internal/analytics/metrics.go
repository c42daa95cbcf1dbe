// Package analytics computes per-run statistics and aggregates them into a
// cross-run simulation report. Degenerate inputs fail closed rather than
// producing silently-zeroed statistics.
package analytics

import (
	"errors"
	"fmt"
	"math"

	"strategy-lab/internal/domain"
)

// Aggregation errors. A batch that cannot produce honest percentiles is
// rejected outright.
var (
	ErrEmptyBatch      = errors.New("no runs to aggregate")
	ErrDegenerateCurve = errors.New("equity curve too short to analyze")
)

// ComputeRunMetrics derives one iteration's statistics from its equity curve
// and transaction log.
func ComputeRunMetrics(run *domain.SimulationRunResult, riskFree float64, analysis domain.AnalysisConfiguration) (*domain.SingleRunMetrics, error) {
	curve := run.EquityCurve
	if len(curve) < 2 {
		return nil, fmt.Errorf("run %d: %w (length %d)", run.RunID, ErrDegenerateCurve, len(curve))
	}

	m := &domain.SingleRunMetrics{
		RunID:       run.RunID,
		FinalWealth: curve[len(curve)-1],
		DaysToGoal:  -1,
	}
	m.TotalCommission, m.TotalSlippage, m.TotalTax = run.TotalCosts()

	returns := dailyLogReturns(curve)
	m.CAGR = cagr(curve)
	m.Volatility = annualizedVol(returns)
	m.Sharpe = ratioOrZero(m.CAGR-riskFree, m.Volatility)
	m.Sortino = ratioOrZero(m.CAGR-riskFree, downsideDeviation(returns, riskFree/domain.TradingDaysPerYear))
	m.MaxDrawdown, m.DrawdownBreaches = drawdownProfile(curve)

	for day, v := range curve {
		if v <= 0 {
			m.IsRuined = true
		}
		if analysis.TargetWealth > 0 && m.DaysToGoal < 0 && v >= analysis.TargetWealth {
			m.DaysToGoal = day
		}
	}
	m.ReachedGoal = reachedGoal(m.DaysToGoal, analysis)
	return m, nil
}

// reachedGoal applies the optional wealth/time targets. With no wealth
// target configured every run counts as a success.
func reachedGoal(daysToGoal int, analysis domain.AnalysisConfiguration) bool {
	if analysis.TargetWealth <= 0 {
		return true
	}
	if daysToGoal < 0 {
		return false
	}
	return analysis.TargetDays <= 0 || daysToGoal <= analysis.TargetDays
}

// dailyLogReturns stops at the first non-positive equity value; log returns
// are undefined past ruin.
func dailyLogReturns(curve []float64) []float64 {
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] <= 0 || curve[i] <= 0 {
			break
		}
		out = append(out, math.Log(curve[i]/curve[i-1]))
	}
	return out
}

func cagr(curve []float64) float64 {
	first, last := curve[0], curve[len(curve)-1]
	if first <= 0 {
		return 0
	}
	if last <= 0 {
		return -1
	}
	years := float64(len(curve)-1) / domain.TradingDaysPerYear
	if years == 0 {
		return 0
	}
	return math.Pow(last/first, 1/years) - 1
}

func annualizedVol(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(returns)-1) * domain.TradingDaysPerYear)
}

// downsideDeviation measures annualized deviation of returns below the daily
// target, the Sortino denominator.
func downsideDeviation(returns []float64, dailyTarget float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var ss float64
	for _, r := range returns {
		if d := r - dailyTarget; d < 0 {
			ss += d * d
		}
	}
	return math.Sqrt(ss / float64(len(returns)) * domain.TradingDaysPerYear)
}

// drawdownProfile walks the curve once, tracking the maximum drawdown and
// counting threshold breaches. Each threshold re-arms only after the curve
// sets a new peak.
func drawdownProfile(curve []float64) (maxDD float64, breaches map[int]int) {
	breaches = make(map[int]int, len(domain.DrawdownThresholds))
	armed := make(map[int]bool, len(domain.DrawdownThresholds))
	for _, t := range domain.DrawdownThresholds {
		breaches[t] = 0
		armed[t] = true
	}

	peak := curve[0]
	for _, v := range curve {
		if v > peak {
			peak = v
			for _, t := range domain.DrawdownThresholds {
				armed[t] = true
			}
			continue
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
		}
		for _, t := range domain.DrawdownThresholds {
			if armed[t] && dd >= float64(t)/100 {
				breaches[t]++
				armed[t] = false
			}
		}
	}
	return maxDD, breaches
}

// DrawdownSeries is the per-day running drawdown fraction of one curve.
func DrawdownSeries(curve []float64) []float64 {
	out := make([]float64, len(curve))
	peak := curve[0]
	for i, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = (peak - v) / peak
		}
	}
	return out
}

// longestUnderwater is the longest consecutive stretch of days spent below a
// prior equity peak.
func longestUnderwater(curve []float64) int {
	peak := curve[0]
	longest, current := 0, 0
	for _, v := range curve[1:] {
		if v >= peak {
			peak = v
			current = 0
			continue
		}
		current++
		if current > longest {
			longest = current
		}
	}
	return longest
}

func ratioOrZero(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
