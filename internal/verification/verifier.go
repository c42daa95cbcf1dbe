// Package verification checks that simulation batches reproduce exactly: the
// same options and base seed must yield bit-identical runs and an identical
// aggregate report.
package verification

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
)

// FloatTolerance bounds float64 comparisons. Replayed runs execute the same
// code over the same seeds, so anything beyond rounding noise is a defect.
const FloatTolerance = 1e-9

// FieldDivergence records one mismatch between a stored and a replayed value.
type FieldDivergence struct {
	Field    string
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// RunVerification is the comparison outcome for a single iteration.
type RunVerification struct {
	RunID       int
	Match       bool
	Divergences []FieldDivergence
}

// VerificationReport summarizes a whole batch comparison.
type VerificationReport struct {
	TotalRuns     int
	MatchedRuns   int
	DivergentRuns int
	Runs          []RunVerification

	// ReportDivergences lists mismatches in the aggregate report itself.
	ReportDivergences []FieldDivergence

	// Match is true when every run and the aggregate report reproduced.
	Match bool
}

// CompareRuns diffs two iterations field by field. Length mismatches in the
// equity curve or transaction log short-circuit the element-wise comparison.
func CompareRuns(stored, replayed *domain.SimulationRunResult) []FieldDivergence {
	var d differ
	d.intField("RunID", stored.RunID, replayed.RunID)

	if len(stored.EquityCurve) != len(replayed.EquityCurve) {
		d.add("len(EquityCurve)", len(stored.EquityCurve), len(replayed.EquityCurve))
	} else {
		for i := range stored.EquityCurve {
			d.floatField(fmt.Sprintf("EquityCurve[%d]", i), stored.EquityCurve[i], replayed.EquityCurve[i])
		}
	}

	if len(stored.Transactions) != len(replayed.Transactions) {
		d.add("len(Transactions)", len(stored.Transactions), len(replayed.Transactions))
		return d.out
	}
	for i := range stored.Transactions {
		d.transaction(i, stored.Transactions[i], replayed.Transactions[i])
	}
	return d.out
}

// CompareReports diffs the aggregate statistics of two batches. Sample paths
// and the drawdown cone are derived directly from the runs, which CompareRuns
// already covers, so only scalar and distribution fields are checked here.
func CompareReports(stored, replayed *domain.SimulationReport) []FieldDivergence {
	var d differ
	d.intField("Iterations", stored.Iterations, replayed.Iterations)
	d.intField("TradingDays", stored.TradingDays, replayed.TradingDays)
	d.floatField("ProbabilityOfSuccess", stored.ProbabilityOfSuccess, replayed.ProbabilityOfSuccess)
	d.floatField("ProbabilityOfRuin", stored.ProbabilityOfRuin, replayed.ProbabilityOfRuin)
	d.floatField("AvgCAGR", stored.AvgCAGR, replayed.AvgCAGR)
	d.floatField("AvgSharpe", stored.AvgSharpe, replayed.AvgSharpe)
	d.floatField("AvgSortino", stored.AvgSortino, replayed.AvgSortino)
	d.floatField("AvgVolatility", stored.AvgVolatility, replayed.AvgVolatility)
	d.floatField("AvgCommission", stored.AvgCommission, replayed.AvgCommission)
	d.floatField("AvgSlippage", stored.AvgSlippage, replayed.AvgSlippage)
	d.floatField("AvgTax", stored.AvgTax, replayed.AvgTax)

	d.distribution("FinalWealth", stored.FinalWealth, replayed.FinalWealth)
	d.distribution("DaysToGoal", stored.DaysToGoal, replayed.DaysToGoal)

	for _, t := range domain.DrawdownThresholds {
		d.floatField(fmt.Sprintf("DrawdownFrequency[%d]", t),
			stored.DrawdownFrequency[t], replayed.DrawdownFrequency[t])
	}
	return d.out
}

// differ accumulates divergences.
type differ struct {
	out []FieldDivergence
}

func (d *differ) add(field string, expected, actual interface{}) {
	d.out = append(d.out, FieldDivergence{Field: field, Expected: expected, Actual: actual})
}

func (d *differ) intField(field string, expected, actual int) {
	if expected != actual {
		d.add(field, expected, actual)
	}
}

func (d *differ) stringField(field, expected, actual string) {
	if expected != actual {
		d.add(field, expected, actual)
	}
}

func (d *differ) floatField(field string, expected, actual float64) {
	if !floatEquals(expected, actual) {
		d.add(field, expected, actual)
	}
}

func (d *differ) distribution(field string, expected, actual domain.DistributionStats) {
	d.floatField(field+".Mean", expected.Mean, actual.Mean)
	d.floatField(field+".Median", expected.Median, actual.Median)
	d.floatField(field+".GeometricMean", expected.GeometricMean, actual.GeometricMean)
	for p := 10; p <= 90; p += 10 {
		d.floatField(fmt.Sprintf("%s.Deciles[%d]", field, p), expected.Deciles[p], actual.Deciles[p])
	}
}

func (d *differ) transaction(i int, expected, actual domain.Transaction) {
	prefix := fmt.Sprintf("Transactions[%d].", i)
	d.intField(prefix+"Day", expected.Day, actual.Day)
	d.stringField(prefix+"Ticker", expected.Ticker, actual.Ticker)
	d.stringField(prefix+"Type", string(expected.Type), string(actual.Type))
	d.floatField(prefix+"Quantity", expected.Quantity, actual.Quantity)
	d.floatField(prefix+"Price", expected.Price, actual.Price)
	d.floatField(prefix+"Value", expected.Value, actual.Value)
	d.stringField(prefix+"Tag", expected.Tag, actual.Tag)
	d.floatField(prefix+"Commission", expected.Commission, actual.Commission)
	d.floatField(prefix+"Slippage", expected.Slippage, actual.Slippage)
	d.floatField(prefix+"Tax", expected.Tax, actual.Tax)
}

func floatEquals(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= FloatTolerance
}
