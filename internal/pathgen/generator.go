// Package pathgen turns a simulation configuration and a seed into one set
// of asset price paths. Generation is deterministic: the same configuration
// and seed yield bit-identical paths.
package pathgen

import (
	"errors"
	"fmt"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/stochastic"
)

// Dt is the generator's fixed step size in years. Granularity affects report
// cadence downstream, never the step size.
const Dt = 1.0 / domain.TradingDaysPerYear

// Generation errors. These classify the request as invalid and abort the
// whole batch.
var (
	ErrInsufficientHistory = errors.New("historical data shorter than one bootstrap block")
	ErrUnknownBaseTicker   = errors.New("leveraged asset references unknown base ticker")
)

// Generate produces one price path per configured asset: primary assets in
// declaration order, then leveraged derivatives. All randomness for the
// iteration comes from a single source seeded with seed.
func Generate(cfg *domain.SimulationConfiguration, seed int64) (*domain.PathSet, error) {
	src := stochastic.NewNormalSource(seed)

	var primaries, derived []domain.Asset
	for _, a := range cfg.Assets {
		if a.Model.IsDerived() {
			derived = append(derived, a)
		} else {
			primaries = append(primaries, a)
		}
	}

	chol, err := correlationFactor(cfg, primaries)
	if err != nil {
		return nil, err
	}

	steppers := make([]stepper, len(primaries))
	for i, a := range primaries {
		s, err := newStepper(a, cfg, src)
		if err != nil {
			return nil, err
		}
		steppers[i] = s
	}

	paths := make([]domain.PricePath, 0, len(cfg.Assets))
	for _, a := range primaries {
		paths = append(paths, domain.PricePath{
			Ticker: a.Ticker,
			Points: make([]domain.MarketDataPoint, cfg.TradingDays+1),
		})
	}
	for i, s := range steppers {
		paths[i].Points[0] = s.initial()
	}

	// One correlated scalar driver per primary asset per day. Model-specific
	// extra draws (Heston vol shock, regime transitions) pull from the same
	// shared source in asset order, keeping the stream layout fixed.
	shocks := make([]float64, len(primaries))
	for day := 1; day <= cfg.TradingDays; day++ {
		src.NormVec(shocks)
		correlated := stochastic.MatVec(chol, shocks)
		for i, s := range steppers {
			paths[i].Points[day] = s.step(correlated[i], src)
		}
	}

	// Derived assets compound a multiple of an already-generated base path.
	primarySet := domain.NewPathSet(paths)
	for _, a := range derived {
		base := primarySet.ByTicker(a.Model.Leveraged.BaseTicker)
		if base == nil {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownBaseTicker, a.Ticker, a.Model.Leveraged.BaseTicker)
		}
		paths = append(paths, leveragedPath(a, base, cfg.TradingDays))
	}

	return domain.NewPathSet(paths), nil
}

// correlationFactor builds the primary-asset correlation matrix and returns
// its lower-triangular Cholesky factor. A matrix that is not positive
// definite fails the generation outright.
func correlationFactor(cfg *domain.SimulationConfiguration, primaries []domain.Asset) ([][]float64, error) {
	n := len(primaries)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rho := cfg.CorrelationBetween(primaries[i].Ticker, primaries[j].Ticker)
			m[i][j] = rho
			m[j][i] = rho
		}
	}

	chol, err := stochastic.Cholesky(m)
	if err != nil {
		return nil, fmt.Errorf("correlation matrix over %d assets: %w", n, err)
	}
	return chol, nil
}

// leveragedPath daily-compounds multiplier x base return onto the derived
// asset's own initial price. Prices are floored at zero; volatility is the
// base volatility scaled by |multiplier|.
func leveragedPath(a domain.Asset, base *domain.PricePath, tradingDays int) domain.PricePath {
	mult := a.Model.Leveraged.Multiplier
	points := make([]domain.MarketDataPoint, tradingDays+1)
	points[0] = domain.MarketDataPoint{
		Price: a.InitialPrice,
		Vol:   base.Points[0].Vol * abs(mult),
	}

	for day := 1; day <= tradingDays; day++ {
		baseReturn := 0.0
		if prev := base.Points[day-1].Price; prev != 0 {
			baseReturn = base.Points[day].Price/prev - 1
		}
		price := points[day-1].Price * (1 + mult*baseReturn)
		if price < 0 {
			price = 0
		}
		points[day] = domain.MarketDataPoint{
			Price: price,
			Vol:   base.Points[day].Vol * abs(mult),
		}
	}
	return domain.PricePath{Ticker: a.Ticker, Points: points}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
