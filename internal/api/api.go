// Package api exposes the engine as pure request/response operations. All
// inputs and outputs are plain structured data; the caller owns transport,
// persistence, and historical data fetching.
package api

import (
	"context"
	"time"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/dsl"
	"strategy-lab/internal/idhash"
	"strategy-lab/internal/simulator"
)

// CompileRequest asks for validation of one strategy source against a ticker
// universe.
type CompileRequest struct {
	Source       string   `json:"source"`
	ValidTickers []string `json:"validTickers"`
}

// CompileIssue is one localized compilation error.
type CompileIssue struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// CompileResponse reports validity for live editor feedback.
type CompileResponse struct {
	IsValid bool           `json:"isValid"`
	Errors  []CompileIssue `json:"errors"`
}

// Compile validates strategy source. Compilation stops at the first error, so
// the errors list holds at most one issue.
func Compile(req CompileRequest) CompileResponse {
	if _, cerr := dsl.Compile(req.Source, req.ValidTickers); cerr != nil {
		return CompileResponse{
			Errors: []CompileIssue{{Line: cerr.Line, Column: cerr.Column, Message: cerr.Message}},
		}
	}
	return CompileResponse{IsValid: true, Errors: []CompileIssue{}}
}

// SimulationRequest is the full input to one Monte Carlo batch.
type SimulationRequest struct {
	Config      *domain.SimulationConfiguration `json:"config"`
	DSLSource   string                          `json:"dslSource"`
	InitialCash float64                         `json:"initialCash"`
	BaseSeed    int64                           `json:"baseSeed"`
	Analysis    domain.AnalysisConfiguration    `json:"analysis"`
	Tax         domain.TaxConfiguration         `json:"tax"`
	Costs       domain.ExecutionCosts           `json:"costs"`

	// KeepRawResults returns every run's equity curve and transaction log
	// alongside the aggregate report.
	KeepRawResults bool `json:"keepRawResults,omitempty"`

	// Workers bounds the iteration pool; 0 means one per CPU.
	Workers int `json:"workers,omitempty"`

	// Observer receives iteration-boundary progress. Host-side only.
	Observer simulator.Observer `json:"-"`
}

// SimulationResponse is the batch outcome. On failure the error string is
// surfaced verbatim and no partial report is returned.
type SimulationResponse struct {
	Success    bool                          `json:"success"`
	Error      string                        `json:"error,omitempty"`
	ReportID   string                        `json:"reportId,omitempty"`
	Report     *domain.SimulationReport      `json:"report,omitempty"`
	RawResults []*domain.SimulationRunResult `json:"rawResults,omitempty"`
}

// RunSimulation executes a Monte Carlo batch. Compile and configuration
// errors, and any iteration failure, fail the whole request.
func RunSimulation(ctx context.Context, req SimulationRequest) SimulationResponse {
	batch := simulator.New(simulator.Options{
		Config:         req.Config,
		Source:         req.DSLSource,
		InitialCash:    req.InitialCash,
		BaseSeed:       req.BaseSeed,
		Analysis:       req.Analysis,
		Tax:            req.Tax,
		Costs:          req.Costs,
		Workers:        req.Workers,
		Observer:       req.Observer,
		KeepRawResults: req.KeepRawResults,
	})
	result, err := batch.Run(ctx)
	if err != nil {
		return SimulationResponse{Error: err.Error()}
	}
	return SimulationResponse{
		Success:    true,
		ReportID:   idhash.ComputeReportID(req.DSLSource, idhash.ConfigDigest(req.Config), req.BaseSeed, req.InitialCash),
		Report:     result.Report,
		RawResults: result.Runs,
	}
}

// BacktestRequest runs a strategy once over caller-supplied historical
// series. The series map defines the compile universe.
type BacktestRequest struct {
	Source          string                              `json:"source"`
	Series          map[string][]domain.HistoricalPoint `json:"series"`
	BenchmarkTicker string                              `json:"benchmarkTicker,omitempty"`
	InitialCash     float64                             `json:"initialCash"`
	RiskFreeRate    float64                             `json:"riskFreeRate,omitempty"`
	StartDate       time.Time                           `json:"startDate,omitempty"`
	Tax             domain.TaxConfiguration             `json:"tax"`
	Costs           domain.ExecutionCosts               `json:"costs"`
}

// BacktestResponse is the single-run historic result with its benchmark
// comparison.
type BacktestResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	EquityCurve    []float64            `json:"equityCurve,omitempty"`
	BenchmarkCurve []float64            `json:"benchmarkCurve,omitempty"`
	DrawdownCurve  []float64            `json:"drawdownCurve,omitempty"`
	Dates          []time.Time          `json:"dates,omitempty"`
	Transactions   []domain.Transaction `json:"transactions,omitempty"`

	TotalReturn     float64 `json:"totalReturn"`
	BenchmarkReturn float64 `json:"benchmarkReturn"`
	MaxDrawdown     float64 `json:"maxDrawdown"`
	SharpeRatio     float64 `json:"sharpeRatio"`
	Volatility      float64 `json:"volatility"`

	TotalCommission float64 `json:"totalCommission"`
	TotalSlippage   float64 `json:"totalSlippage"`
	TotalTax        float64 `json:"totalTax"`
}

// RunHistoricBacktest executes one strategy over observed data.
func RunHistoricBacktest(req BacktestRequest) BacktestResponse {
	results, err := backtest.Run(backtest.Request{
		Source:          req.Source,
		Series:          req.Series,
		BenchmarkTicker: req.BenchmarkTicker,
		InitialCash:     req.InitialCash,
		RiskFreeRate:    req.RiskFreeRate,
		StartDate:       req.StartDate,
		Tax:             req.Tax,
		Costs:           req.Costs,
	})
	if err != nil {
		return BacktestResponse{Error: err.Error()}
	}
	return BacktestResponse{
		Success:         true,
		EquityCurve:     results.EquityCurve,
		BenchmarkCurve:  results.BenchmarkCurve,
		DrawdownCurve:   results.DrawdownCurve,
		Dates:           results.Dates,
		Transactions:    results.Transactions,
		TotalReturn:     results.TotalReturn,
		BenchmarkReturn: results.BenchmarkReturn,
		MaxDrawdown:     results.MaxDrawdown,
		SharpeRatio:     results.SharpeRatio,
		Volatility:      results.Volatility,
		TotalCommission: results.TotalCommission,
		TotalSlippage:   results.TotalSlippage,
		TotalTax:        results.TotalTax,
	}
}
