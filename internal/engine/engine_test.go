package engine

import (
	"math"
	"testing"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/dsl"
	"strategy-lab/internal/pathgen"
)

func compileFor(t *testing.T, src string, tickers []string) *dsl.CompiledStrategy {
	t.Helper()
	cs, cerr := dsl.Compile(src, tickers)
	if cerr != nil {
		t.Fatalf("compile failed: %v", cerr)
	}
	return cs
}

// pathFromPrices builds a single-asset path set with a constant vol proxy.
func pathFromPrices(ticker string, vol float64, prices ...float64) *domain.PathSet {
	points := make([]domain.MarketDataPoint, len(prices))
	for i, p := range prices {
		points[i] = domain.MarketDataPoint{Price: p, Vol: vol}
	}
	return domain.NewPathSet([]domain.PricePath{{Ticker: ticker, Points: points}})
}

func flatPaths(ticker string, price float64, tradingDays int) *domain.PathSet {
	prices := make([]float64, tradingDays+1)
	for i := range prices {
		prices[i] = price
	}
	return pathFromPrices(ticker, 0.2, prices...)
}

func configFor(tradingDays int) *domain.SimulationConfiguration {
	return &domain.SimulationConfiguration{
		Assets: []domain.Asset{{
			Ticker: "spy", InitialPrice: 100,
			Model: domain.AssetModel{Kind: domain.ModelGBM, GBM: &domain.GBMParams{Mu: 0.05, Sigma: 0.2}},
		}},
		TradingDays: tradingDays,
		Iterations:  1,
	}
}

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestRun_EndToEndDeterministic(t *testing.T) {
	cfg := configFor(10)
	strategy := compileFor(t, "buy 1 spy", []string{"spy"})

	paths, err := pathgen.Generate(cfg, 42)
	if err != nil {
		t.Fatalf("path generation failed: %v", err)
	}

	result, err := Run(RunParams{
		Strategy: strategy, Paths: paths, Config: cfg, InitialCash: 100000,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.EquityCurve) != 11 {
		t.Fatalf("equity curve length %d, want 11", len(result.EquityCurve))
	}
	// Day 0 buys one share at the initial price with zero costs, so the
	// mark-to-market equity is unchanged.
	if !almostEqual(result.EquityCurve[0], 100000, 1e-9) {
		t.Errorf("day-0 equity %.6f, want 100000", result.EquityCurve[0])
	}

	paths2, err := pathgen.Generate(cfg, 42)
	if err != nil {
		t.Fatalf("second path generation failed: %v", err)
	}
	result2, err := Run(RunParams{
		Strategy: strategy, Paths: paths2, Config: cfg, InitialCash: 100000,
	})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	for i := range result.EquityCurve {
		if result.EquityCurve[i] != result2.EquityCurve[i] {
			t.Fatalf("equity diverged at day %d: %v vs %v", i, result.EquityCurve[i], result2.EquityCurve[i])
		}
	}
}

func TestRun_CommissionAndSlippage(t *testing.T) {
	cfg := configFor(1)
	strategy := compileFor(t, "when cash_available >= 100000:\nbuy 1 spy\nend", []string{"spy"})

	result, err := Run(RunParams{
		Strategy: strategy, Paths: flatPaths("spy", 100, 1), Config: cfg, InitialCash: 100000,
		Costs: domain.ExecutionCosts{FixedCommission: 1, CommissionRate: 0.01, SlippageRate: 0.01},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Transactions) != 1 {
		t.Fatalf("transaction count %d, want 1", len(result.Transactions))
	}
	tx := result.Transactions[0]
	if !almostEqual(tx.Price, 101, 1e-9) {
		t.Errorf("execution price %.4f, want 101 (1%% slippage)", tx.Price)
	}
	if !almostEqual(tx.Commission, 1+0.01*101, 1e-9) {
		t.Errorf("commission %.4f, want %.4f", tx.Commission, 1+0.01*101)
	}
	if !almostEqual(tx.Slippage, 1, 1e-9) {
		t.Errorf("slippage %.4f, want 1", tx.Slippage)
	}
	// Equity reflects the cost drag: paid 101 + 2.01 for a position marked
	// at 100.
	want := 100000 - 101 - 2.01 + 100
	if !almostEqual(result.EquityCurve[0], want, 1e-9) {
		t.Errorf("day-0 equity %.4f, want %.4f", result.EquityCurve[0], want)
	}
}

func TestRun_BuyMaxInvestsAllCash(t *testing.T) {
	cfg := configFor(2)
	strategy := compileFor(t, "buy_max spy", []string{"spy"})

	result, err := Run(RunParams{
		Strategy: strategy, Paths: flatPaths("spy", 100, 2), Config: cfg, InitialCash: 1000,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Transactions) != 1 {
		t.Fatalf("transaction count %d, want 1 (later days have no cash)", len(result.Transactions))
	}
	if !almostEqual(result.Transactions[0].Quantity, 10, 1e-9) {
		t.Errorf("quantity %.4f, want 10", result.Transactions[0].Quantity)
	}
	for i, v := range result.EquityCurve {
		if !almostEqual(v, 1000, 1e-9) {
			t.Errorf("day %d equity %.4f, want 1000 on a flat path", i, v)
		}
	}
}

func TestRun_SellAllWithImmediateTax(t *testing.T) {
	cfg := configFor(2)
	src := "when cash_available >= 100000:\nbuy 1 spy\nend\n" +
		"when spy > 140:\nsell_all spy\nend"
	strategy := compileFor(t, src, []string{"spy"})

	result, err := Run(RunParams{
		Strategy: strategy,
		Paths:    pathFromPrices("spy", 0.2, 100, 120, 150),
		Config:   cfg, InitialCash: 100000,
		Tax: domain.TaxConfiguration{
			ShortTermRate: 0.5, LongTermRate: 0.1, LongTermThresholdDays: 10000,
			Settlement: domain.TaxSettlementImmediate,
		},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("transaction count %d, want 2", len(result.Transactions))
	}
	sell := result.Transactions[1]
	if sell.Type != domain.TransactionSell {
		t.Fatalf("second transaction is %s, want SELL", sell.Type)
	}
	// Gain of 50 taxed short-term at 50%.
	if !almostEqual(sell.Tax, 25, 1e-9) {
		t.Errorf("tax %.4f, want 25", sell.Tax)
	}
	final := result.EquityCurve[len(result.EquityCurve)-1]
	if !almostEqual(final, 100025, 1e-9) {
		t.Errorf("final equity %.4f, want 100025", final)
	}
}

func TestRun_WealthTaxAtYearBoundary(t *testing.T) {
	days := domain.TradingDaysPerYear
	cfg := configFor(days)
	strategy := compileFor(t, "set x to 1", []string{"spy"})

	result, err := Run(RunParams{
		Strategy: strategy, Paths: flatPaths("spy", 100, days), Config: cfg, InitialCash: 100000,
		Tax: domain.TaxConfiguration{WealthTaxRate: 0.01, Settlement: domain.TaxSettlementImmediate},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !almostEqual(result.EquityCurve[days-1], 100000, 1e-9) {
		t.Errorf("pre-boundary equity %.4f, want 100000", result.EquityCurve[days-1])
	}
	if !almostEqual(result.EquityCurve[days], 99000, 1e-9) {
		t.Errorf("post-boundary equity %.4f, want 99000 after 1%% wealth tax", result.EquityCurve[days])
	}
	if len(result.Transactions) != 1 || result.Transactions[0].Type != domain.TransactionTax {
		t.Fatalf("expected a single TAX transaction, got %+v", result.Transactions)
	}
}

func TestRun_OptionPositionSettlesAtExpiry(t *testing.T) {
	cfg := configFor(8)
	src := "define hedge as buy 1 spy_5dte_0.5delta\n" +
		"when cash_available >= 100000:\nbuy 1 hedge\nend"
	strategy := compileFor(t, src, []string{"spy"})

	result, err := Run(RunParams{
		Strategy: strategy, Paths: flatPaths("spy", 100, 8), Config: cfg, InitialCash: 100000,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// Day 0 opens the option at its model premium; frictionless, so equity
	// is unchanged.
	if !almostEqual(result.EquityCurve[0], 100000, 1e-9) {
		t.Errorf("day-0 equity %.6f, want 100000", result.EquityCurve[0])
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("transaction count %d, want open + settlement", len(result.Transactions))
	}
	open, settle := result.Transactions[0], result.Transactions[1]
	if open.Type != domain.TransactionBuy || open.Tag != "hedge" {
		t.Errorf("unexpected opening transaction %+v", open)
	}
	if settle.Type != domain.TransactionSell || settle.Day != 5 {
		t.Errorf("settlement should occur at expiry day 5, got %+v", settle)
	}
	// After settlement the equity curve must be flat cash again.
	last := result.EquityCurve[len(result.EquityCurve)-1]
	if !almostEqual(last, result.EquityCurve[6], 1e-9) {
		t.Errorf("post-settlement equity drifted: %v vs %v", last, result.EquityCurve[6])
	}
}

func TestRun_ForAnyPositionClosesOnCondition(t *testing.T) {
	cfg := configFor(3)
	src := "define longspy as buy 2 spy\n" +
		"when cash_available == 1000:\nbuy 1 longspy\nend\n" +
		"for_any_position longspy as p:\nwhen p.value > 250:\nsell p.quantity p\nend\nend"
	strategy := compileFor(t, src, []string{"spy"})

	result, err := Run(RunParams{
		Strategy: strategy,
		Paths:    pathFromPrices("spy", 0.2, 100, 110, 130, 130),
		Config:   cfg, InitialCash: 1000,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("transaction count %d, want open + close", len(result.Transactions))
	}
	closeTx := result.Transactions[1]
	if closeTx.Day != 2 || closeTx.Tag != "longspy" {
		t.Errorf("close should fire on day 2 when value first exceeds 250, got %+v", closeTx)
	}
	// Closed at 130 a position opened at 100: cash = 1000 - 200 + 260.
	final := result.EquityCurve[len(result.EquityCurve)-1]
	if !almostEqual(final, 1060, 1e-9) {
		t.Errorf("final equity %.4f, want 1060", final)
	}
}

func TestRun_RebalanceReachesTargetOnce(t *testing.T) {
	cfg := configFor(2)
	strategy := compileFor(t, "rebalance_to 50% spy", []string{"spy"})

	result, err := Run(RunParams{
		Strategy: strategy, Paths: flatPaths("spy", 100, 2), Config: cfg, InitialCash: 1000,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Transactions) != 1 {
		t.Fatalf("transaction count %d, want 1 (already balanced afterwards)", len(result.Transactions))
	}
	if !almostEqual(result.Transactions[0].Quantity, 5, 1e-9) {
		t.Errorf("quantity %.4f, want 5 shares for a 50%% target", result.Transactions[0].Quantity)
	}
}

func TestRun_IndicatorDrivenEntry(t *testing.T) {
	cfg := configFor(4)
	src := "when spy_return_1 > 0.05 and cash_available >= 1000:\nbuy 1 spy\nend"
	strategy := compileFor(t, src, []string{"spy"})

	result, err := Run(RunParams{
		Strategy: strategy,
		Paths:    pathFromPrices("spy", 0.2, 100, 102, 110, 111, 112),
		Config:   cfg, InitialCash: 1000,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// Only day 2 has a one-day return above 5%.
	if len(result.Transactions) != 1 {
		t.Fatalf("transaction count %d, want 1", len(result.Transactions))
	}
	if result.Transactions[0].Day != 2 {
		t.Errorf("entry on day %d, want 2", result.Transactions[0].Day)
	}
}
