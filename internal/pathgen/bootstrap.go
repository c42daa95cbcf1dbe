package pathgen

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/stochastic"
)

// bootstrapStepper replays contiguous blocks of historical (log-return, vol)
// pairs. The block layout is sampled once at construction so the stepper
// consumes no randomness during the day loop; its correlated driver is
// ignored.
type bootstrapStepper struct {
	price float64
	steps []histStep
	next  int
}

type histStep struct {
	logReturn float64
	vol       float64
}

func newBootstrapStepper(a domain.Asset, cfg *domain.SimulationConfiguration, src *stochastic.NormalSource) (*bootstrapStepper, error) {
	history := cfg.HistoricalData[a.Ticker]
	blockSize := a.Model.Bootstrap.BlockSize

	// len(history)-1 log returns are available.
	if len(history) < blockSize+1 {
		return nil, fmt.Errorf("asset %s: %w (have %d points, block size %d)",
			a.Ticker, ErrInsufficientHistory, len(history), blockSize)
	}

	returns := make([]histStep, len(history)-1)
	for i := 1; i < len(history); i++ {
		returns[i-1] = histStep{
			logReturn: math.Log(history[i].Price / history[i-1].Price),
			vol:       history[i].Vol,
		}
	}

	// Resample whole blocks at uniform start offsets until the horizon is
	// covered; the final block is truncated to fit.
	steps := make([]histStep, 0, cfg.TradingDays)
	maxStart := len(returns) - blockSize
	for len(steps) < cfg.TradingDays {
		u := stochastic.NormCDF(src.Norm())
		start := int(u * float64(maxStart+1))
		if start > maxStart {
			start = maxStart
		}
		take := blockSize
		if remaining := cfg.TradingDays - len(steps); take > remaining {
			take = remaining
		}
		steps = append(steps, returns[start:start+take]...)
	}

	return &bootstrapStepper{price: a.InitialPrice, steps: steps}, nil
}

func (s *bootstrapStepper) initial() domain.MarketDataPoint {
	vol := 0.0
	if len(s.steps) > 0 {
		vol = s.steps[0].vol
	}
	return domain.MarketDataPoint{Price: s.price, Vol: vol}
}

func (s *bootstrapStepper) step(_ float64, _ *stochastic.NormalSource) domain.MarketDataPoint {
	h := s.steps[s.next]
	s.next++
	s.price *= math.Exp(h.logReturn)
	return domain.MarketDataPoint{Price: s.price, Vol: h.vol}
}
