package pathgen

import (
	"errors"
	"math"
	"testing"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/stochastic"
)

func gbmAsset(ticker string, price, mu, sigma float64) domain.Asset {
	return domain.Asset{
		Ticker:       ticker,
		InitialPrice: price,
		Model: domain.AssetModel{
			Kind: domain.ModelGBM,
			GBM:  &domain.GBMParams{Mu: mu, Sigma: sigma},
		},
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{
			gbmAsset("spy", 100, 0.05, 0.2),
			gbmAsset("qqq", 300, 0.08, 0.25),
		},
		Correlations: []domain.Correlation{{TickerA: "spy", TickerB: "qqq", Value: 0.8}},
		TradingDays:  50,
		Iterations:   1,
	}

	a, err := Generate(cfg, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Generate(cfg, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range a.Paths {
		for day := range a.Paths[i].Points {
			if a.Paths[i].Points[day] != b.Paths[i].Points[day] {
				t.Fatalf("path %s day %d diverged between identical seeds", a.Paths[i].Ticker, day)
			}
		}
	}

	c, err := Generate(cfg, 43)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Paths[0].Points[50] == c.Paths[0].Points[50] {
		t.Error("different seeds produced identical terminal points")
	}
}

func TestGenerate_PathLengthAndInitialState(t *testing.T) {
	cfg := &domain.SimulationConfiguration{
		Assets:      []domain.Asset{gbmAsset("spy", 100, 0.05, 0.2)},
		TradingDays: 10,
		Iterations:  1,
	}

	paths, err := Generate(cfg, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := paths.ByTicker("SPY")
	if p == nil {
		t.Fatal("ticker lookup failed")
	}
	if len(p.Points) != 11 {
		t.Fatalf("path length %d, want 11", len(p.Points))
	}
	if p.Points[0].Price != 100 {
		t.Errorf("day-0 price %v, want 100", p.Points[0].Price)
	}
	if p.Points[0].Vol != 0.2 {
		t.Errorf("day-0 vol %v, want 0.2", p.Points[0].Vol)
	}
}

func TestGenerate_InvalidCorrelationFails(t *testing.T) {
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{
			gbmAsset("a", 100, 0, 0.2),
			gbmAsset("b", 100, 0, 0.2),
		},
		Correlations: []domain.Correlation{{TickerA: "a", TickerB: "b", Value: 2.0}},
		TradingDays:  5,
		Iterations:   1,
	}

	_, err := Generate(cfg, 1)
	if !errors.Is(err, stochastic.ErrNotPositiveDefinite) {
		t.Fatalf("expected ErrNotPositiveDefinite, got %v", err)
	}
}

func TestGenerate_LeverageIdentity(t *testing.T) {
	// Multiplier 1.0 must reproduce the base path exactly.
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{
			gbmAsset("spy", 100, 0.05, 0.2),
			{
				Ticker:       "spy_1x",
				InitialPrice: 100,
				Model: domain.AssetModel{
					Kind:      domain.ModelLeveraged,
					Leveraged: &domain.LeveragedParams{BaseTicker: "spy", Multiplier: 1.0},
				},
			},
		},
		TradingDays: 100,
		Iterations:  1,
	}

	paths, err := Generate(cfg, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base := paths.ByTicker("spy")
	lev := paths.ByTicker("spy_1x")
	for day := range base.Points {
		if math.Abs(lev.Points[day].Price-base.Points[day].Price) > 1e-9 {
			t.Fatalf("day %d: leveraged %v, base %v", day, lev.Points[day].Price, base.Points[day].Price)
		}
	}
}

func TestGenerate_LeveragedNeverNegative(t *testing.T) {
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{
			gbmAsset("spy", 100, -0.5, 0.9),
			{
				Ticker:       "spy_3x",
				InitialPrice: 50,
				Model: domain.AssetModel{
					Kind:      domain.ModelLeveraged,
					Leveraged: &domain.LeveragedParams{BaseTicker: "spy", Multiplier: 3.0},
				},
			},
		},
		TradingDays: 252,
		Iterations:  1,
	}

	paths, err := Generate(cfg, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for day, pt := range paths.ByTicker("spy_3x").Points {
		if pt.Price < 0 {
			t.Fatalf("day %d: negative leveraged price %v", day, pt.Price)
		}
	}
}

func TestGenerate_HestonVarianceFloored(t *testing.T) {
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{{
			Ticker:       "vx",
			InitialPrice: 100,
			Model: domain.AssetModel{
				Kind: domain.ModelHeston,
				Heston: &domain.HestonParams{
					Kappa: 2, Theta: 0.04, Sigma: 1.5, Rho: -0.7, V0: 0.001, Mu: 0.05, Epsilon: 1e-6,
				},
			},
		}},
		TradingDays: 504,
		Iterations:  1,
	}

	paths, err := Generate(cfg, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for day, pt := range paths.ByTicker("vx").Points {
		if pt.Vol < math.Sqrt(1e-6)-1e-12 {
			t.Fatalf("day %d: vol %v below floor", day, pt.Vol)
		}
		if pt.Price <= 0 {
			t.Fatalf("day %d: non-positive price %v", day, pt.Price)
		}
	}
}

func TestGenerate_BootstrapRequiresHistory(t *testing.T) {
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{{
			Ticker:       "btc",
			InitialPrice: 100,
			Model: domain.AssetModel{
				Kind:      domain.ModelBlockedBootstrap,
				Bootstrap: &domain.BlockedBootstrapParams{BlockSize: 10},
			},
		}},
		HistoricalData: map[string][]domain.HistoricalPoint{
			"btc": {{Price: 100, Vol: 0.3}, {Price: 101, Vol: 0.3}},
		},
		TradingDays: 20,
		Iterations:  1,
	}

	_, err := Generate(cfg, 1)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestGenerate_BootstrapFillsHorizon(t *testing.T) {
	history := make([]domain.HistoricalPoint, 60)
	price := 100.0
	for i := range history {
		price *= 1 + 0.001*float64(i%5-2)
		history[i] = domain.HistoricalPoint{Price: price, Vol: 0.25}
	}

	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{{
			Ticker:       "btc",
			InitialPrice: 500,
			Model: domain.AssetModel{
				Kind:      domain.ModelBlockedBootstrap,
				Bootstrap: &domain.BlockedBootstrapParams{BlockSize: 7},
			},
		}},
		HistoricalData: map[string][]domain.HistoricalPoint{"btc": history},
		TradingDays:    100,
		Iterations:     1,
	}

	paths, err := Generate(cfg, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := paths.ByTicker("btc")
	if len(p.Points) != 101 {
		t.Fatalf("path length %d, want 101", len(p.Points))
	}
	if p.Points[0].Price != 500 {
		t.Errorf("day-0 price %v, want 500", p.Points[0].Price)
	}
	for day, pt := range p.Points {
		if pt.Price <= 0 {
			t.Fatalf("day %d: non-positive price", day)
		}
	}
}

func TestGenerate_GARCHLongRunInitialVol(t *testing.T) {
	omega, alpha, beta := 1e-5, 0.1, 0.85
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{{
			Ticker:       "x",
			InitialPrice: 100,
			Model: domain.AssetModel{
				Kind:  domain.ModelGARCH,
				GARCH: &domain.GARCHParams{Omega: omega, Alpha: alpha, Beta: beta, Mu: 0.05},
			},
		}},
		TradingDays: 10,
		Iterations:  1,
	}

	paths, err := Generate(cfg, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantVol := math.Sqrt(omega / (1 - alpha - beta) * domain.TradingDaysPerYear)
	got := paths.ByTicker("x").Points[0].Vol
	if math.Abs(got-wantVol) > 1e-12 {
		t.Errorf("initial vol %v, want long-run %v", got, wantVol)
	}
}

func TestGenerate_RegimeSwitching(t *testing.T) {
	cfg := &domain.SimulationConfiguration{
		Assets: []domain.Asset{{
			Ticker:       "r",
			InitialPrice: 100,
			Model: domain.AssetModel{
				Kind: domain.ModelRegimeSwitching,
				Regime: &domain.RegimeSwitchingParams{
					InitialRegime: 0,
					Regimes: []domain.RegimeParams{
						{Mu: 0.10, Sigma: 0.12, TransitionProbs: []float64{0.9, 0.1}},
						{Mu: -0.20, Sigma: 0.40, TransitionProbs: []float64{0.2, 0.8}},
					},
				},
			},
		}},
		TradingDays: 252,
		Iterations:  1,
	}

	paths, err := Generate(cfg, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Over a year with these transition rows both regimes should be visited.
	seenCalm, seenStressed := false, false
	for _, pt := range paths.ByTicker("r").Points {
		switch pt.Vol {
		case 0.12:
			seenCalm = true
		case 0.40:
			seenStressed = true
		}
	}
	if !seenCalm || !seenStressed {
		t.Errorf("expected both regimes visited, calm=%v stressed=%v", seenCalm, seenStressed)
	}
}
