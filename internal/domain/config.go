package domain

import (
	"fmt"
	"strings"
	"time"
)

// Granularity controls report sampling cadence. The path generator always
// steps one trading day at a time regardless of this setting.
type Granularity string

// Granularity constants
const (
	GranularityDaily   Granularity = "DAILY"
	GranularityWeekly  Granularity = "WEEKLY"
	GranularityMonthly Granularity = "MONTHLY"
	GranularityYearly  Granularity = "YEARLY"
)

// TradingDaysPerYear is the annualization convention used throughout.
const TradingDaysPerYear = 252

// Asset couples a ticker with its starting price and generating model.
type Asset struct {
	Ticker       string
	InitialPrice float64
	Model        AssetModel
}

// Correlation is one unordered ticker pair with its correlation coefficient.
type Correlation struct {
	TickerA string
	TickerB string
	Value   float64
}

// HistoricalPoint is one observed (price, vol) sample of a real series.
type HistoricalPoint struct {
	Price float64
	Vol   float64
}

// SimulationConfiguration is the full input to one Monte Carlo batch.
// HistoricalData is shared read-only across all iterations.
type SimulationConfiguration struct {
	Assets         []Asset
	Correlations   []Correlation
	TradingDays    int
	Iterations     int
	RiskFreeRate   float64
	Granularity    Granularity
	HistoricalData map[string][]HistoricalPoint
	StartDate      time.Time
}

// CorrelationBetween returns the configured correlation for a ticker pair,
// trying both orderings. Missing pairs default to 0.
func (c *SimulationConfiguration) CorrelationBetween(a, b string) float64 {
	for _, corr := range c.Correlations {
		if (corr.TickerA == a && corr.TickerB == b) || (corr.TickerA == b && corr.TickerB == a) {
			return corr.Value
		}
	}
	return 0
}

// AssetByTicker returns the configured asset with the given ticker
// (case-insensitive), or nil.
func (c *SimulationConfiguration) AssetByTicker(ticker string) *Asset {
	for i := range c.Assets {
		if strings.EqualFold(c.Assets[i].Ticker, ticker) {
			return &c.Assets[i]
		}
	}
	return nil
}

// Tickers returns all configured tickers in declaration order.
func (c *SimulationConfiguration) Tickers() []string {
	out := make([]string, len(c.Assets))
	for i, a := range c.Assets {
		out[i] = a.Ticker
	}
	return out
}

// Validate checks structural invariants of the configuration. Path-level
// failures (e.g. a correlation matrix that is not positive definite) are
// detected by the generator, not here.
func (c *SimulationConfiguration) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("configuration has no assets")
	}
	if c.TradingDays < 1 {
		return fmt.Errorf("trading days must be >= 1, got %d", c.TradingDays)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be >= 1, got %d", c.Iterations)
	}

	seen := make(map[string]struct{}, len(c.Assets))
	for _, a := range c.Assets {
		key := strings.ToLower(a.Ticker)
		if a.Ticker == "" {
			return fmt.Errorf("asset with empty ticker")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate ticker %q", a.Ticker)
		}
		seen[key] = struct{}{}

		if a.InitialPrice <= 0 && !a.Model.IsDerived() {
			return fmt.Errorf("asset %s: initial price must be positive, got %g", a.Ticker, a.InitialPrice)
		}
		if err := a.Model.Validate(); err != nil {
			return fmt.Errorf("asset %s: %w", a.Ticker, err)
		}
	}

	// Leveraged assets must reference a primary (non-derived) ticker.
	for _, a := range c.Assets {
		if !a.Model.IsDerived() {
			continue
		}
		base := c.AssetByTicker(a.Model.Leveraged.BaseTicker)
		if base == nil {
			return fmt.Errorf("leveraged asset %s references unknown base ticker %q", a.Ticker, a.Model.Leveraged.BaseTicker)
		}
		if base.Model.IsDerived() {
			return fmt.Errorf("leveraged asset %s references derived ticker %q", a.Ticker, base.Ticker)
		}
	}
	return nil
}

// TaxSettlement selects when accrued capital-gains tax is paid.
type TaxSettlement string

// Tax settlement constants
const (
	TaxSettlementImmediate TaxSettlement = "IMMEDIATE"
	TaxSettlementPeriodic  TaxSettlement = "PERIODIC"
)

// TaxConfiguration describes capital-gains and wealth taxation of a run.
// The zero value disables all tax handling.
type TaxConfiguration struct {
	ShortTermRate         float64
	LongTermRate          float64
	LongTermThresholdDays int
	Settlement            TaxSettlement
	WealthTaxRate         float64 // applied to portfolio value at year boundaries
}

// Enabled reports whether any tax handling is active.
func (t TaxConfiguration) Enabled() bool {
	return t.ShortTermRate != 0 || t.LongTermRate != 0 || t.WealthTaxRate != 0
}

// ExecutionCosts describes per-trade frictions. The zero value means
// frictionless execution.
type ExecutionCosts struct {
	FixedCommission float64 // flat amount per transaction
	CommissionRate  float64 // fraction of traded value
	SlippageRate    float64 // adverse price movement fraction
}

// AnalysisConfiguration holds optional goal targets for success statistics.
// Zero values mean "no target".
type AnalysisConfiguration struct {
	TargetWealth float64
	TargetDays   int
}
