package domain

// DrawdownThresholds are the breach levels (percent) tracked per run.
var DrawdownThresholds = []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// SingleRunMetrics are the per-iteration statistics fed to the aggregator.
type SingleRunMetrics struct {
	RunID       int
	FinalWealth float64
	CAGR        float64
	Volatility  float64 // annualized stdev of daily log returns
	Sharpe      float64
	Sortino     float64
	MaxDrawdown float64 // fraction, 0.25 = 25% peak-to-trough

	// DrawdownBreaches counts how many times each threshold (percent) was
	// newly breached; a threshold re-arms only after a new equity peak.
	DrawdownBreaches map[int]int

	ReachedGoal bool
	DaysToGoal  int // -1 when the goal was never reached
	IsRuined    bool

	TotalCommission float64
	TotalSlippage   float64
	TotalTax        float64
}

// DistributionStats summarizes a cross-run sample.
type DistributionStats struct {
	Mean          float64
	Median        float64
	GeometricMean float64
	Deciles       map[int]float64 // percentile (10..90 by 10) -> value
}

// SamplePath is one representative equity curve selected by final-wealth
// percentile (nearest rank).
type SamplePath struct {
	Percentile int
	Curve      []float64
}

// DrawdownCone holds per-day drawdown percentiles across all runs.
type DrawdownCone struct {
	P10 []float64
	P50 []float64
	P90 []float64
}

// RecoveryBin is one bucket of the longest-underwater-streak histogram.
type RecoveryBin struct {
	UpToDays int // inclusive upper bound in trading days; 0 bin = never underwater
	Count    int
}

// SimulationReport is the cross-run aggregate returned to the caller.
type SimulationReport struct {
	Iterations  int
	TradingDays int

	FinalWealth DistributionStats
	DaysToGoal  DistributionStats // computed over runs that reached the goal

	ProbabilityOfSuccess float64
	ProbabilityOfRuin    float64

	AvgCAGR       float64
	AvgSharpe     float64
	AvgSortino    float64
	AvgVolatility float64

	AvgCommission float64
	AvgSlippage   float64
	AvgTax        float64

	// DrawdownFrequency maps each threshold (percent) to the fraction of
	// runs that breached it at least once.
	DrawdownFrequency map[int]float64

	SamplePaths  []SamplePath
	Cone         DrawdownCone
	Recovery     []RecoveryBin
}
