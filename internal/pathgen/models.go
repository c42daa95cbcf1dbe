package pathgen

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/stochastic"
)

// stepper advances one primary asset by one trading day. The correlated
// scalar driver z is supplied by the day loop; model-specific extra draws
// come from the shared source.
type stepper interface {
	initial() domain.MarketDataPoint
	step(z float64, src *stochastic.NormalSource) domain.MarketDataPoint
}

// newStepper builds the stepper for a primary asset. Bootstrap steppers
// pre-sample their block layout at construction from the shared source.
func newStepper(a domain.Asset, cfg *domain.SimulationConfiguration, src *stochastic.NormalSource) (stepper, error) {
	switch a.Model.Kind {
	case domain.ModelGBM:
		return &gbmStepper{price: a.InitialPrice, p: *a.Model.GBM}, nil
	case domain.ModelHeston:
		p := *a.Model.Heston
		if p.Epsilon <= 0 {
			p.Epsilon = 1e-8
		}
		return &hestonStepper{price: a.InitialPrice, variance: math.Max(p.V0, p.Epsilon), p: p}, nil
	case domain.ModelGARCH:
		return newGARCHStepper(a.InitialPrice, *a.Model.GARCH), nil
	case domain.ModelRegimeSwitching:
		return &regimeStepper{price: a.InitialPrice, regime: a.Model.Regime.InitialRegime, p: *a.Model.Regime}, nil
	case domain.ModelBlockedBootstrap:
		return newBootstrapStepper(a, cfg, src)
	default:
		return nil, fmt.Errorf("asset %s: model %s cannot drive a primary path", a.Ticker, a.Model.Kind)
	}
}

// gbmStepper: exact lognormal step.
type gbmStepper struct {
	price float64
	p     domain.GBMParams
}

func (s *gbmStepper) initial() domain.MarketDataPoint {
	return domain.MarketDataPoint{Price: s.price, Vol: s.p.Sigma}
}

func (s *gbmStepper) step(z float64, _ *stochastic.NormalSource) domain.MarketDataPoint {
	s.price *= math.Exp((s.p.Mu-0.5*s.p.Sigma*s.p.Sigma)*Dt + s.p.Sigma*math.Sqrt(Dt)*z)
	return domain.MarketDataPoint{Price: s.price, Vol: s.p.Sigma}
}

// hestonStepper: correlated variance process. The price driver is the
// correlated z; the variance driver mixes it with a fresh independent draw.
type hestonStepper struct {
	price    float64
	variance float64
	p        domain.HestonParams
}

func (s *hestonStepper) initial() domain.MarketDataPoint {
	return domain.MarketDataPoint{Price: s.price, Vol: math.Sqrt(s.variance)}
}

func (s *hestonStepper) step(z float64, src *stochastic.NormalSource) domain.MarketDataPoint {
	zIndep := src.Norm()
	zVol := s.p.Rho*z + math.Sqrt(1-s.p.Rho*s.p.Rho)*zIndep

	v := s.variance
	s.price *= math.Exp((s.p.Mu-0.5*v)*Dt + math.Sqrt(v*Dt)*z)

	v += s.p.Kappa*(s.p.Theta-v)*Dt + s.p.Sigma*math.Sqrt(v*Dt)*zVol
	if v < s.p.Epsilon {
		v = s.p.Epsilon
	}
	s.variance = v

	return domain.MarketDataPoint{Price: s.price, Vol: math.Sqrt(v)}
}

// garchStepper: GARCH(1,1) on daily variance with demeaned log returns.
type garchStepper struct {
	price    float64
	variance float64 // daily variance
	p        domain.GARCHParams
}

func newGARCHStepper(price float64, p domain.GARCHParams) *garchStepper {
	var dailyVar float64
	if p.InitialVol > 0 {
		dailyVar = p.InitialVol * p.InitialVol * Dt
	} else {
		// Long-run level omega/(1-alpha-beta).
		dailyVar = p.Omega / (1 - p.Alpha - p.Beta)
	}
	return &garchStepper{price: price, variance: dailyVar, p: p}
}

func (s *garchStepper) annualizedVol() float64 {
	return math.Sqrt(s.variance * domain.TradingDaysPerYear)
}

func (s *garchStepper) initial() domain.MarketDataPoint {
	return domain.MarketDataPoint{Price: s.price, Vol: s.annualizedVol()}
}

func (s *garchStepper) step(z float64, _ *stochastic.NormalSource) domain.MarketDataPoint {
	drift := s.p.Mu * Dt
	eps := math.Sqrt(s.variance) * z
	s.price *= math.Exp(drift + eps)
	s.variance = s.p.Omega + s.p.Alpha*eps*eps + s.p.Beta*s.variance
	return domain.MarketDataPoint{Price: s.price, Vol: s.annualizedVol()}
}

// regimeStepper: GBM step under the current regime, then a stochastic
// transition against the regime's cumulative probability row.
type regimeStepper struct {
	price  float64
	regime int
	p      domain.RegimeSwitchingParams
}

func (s *regimeStepper) initial() domain.MarketDataPoint {
	return domain.MarketDataPoint{Price: s.price, Vol: s.p.Regimes[s.regime].Sigma}
}

func (s *regimeStepper) step(z float64, src *stochastic.NormalSource) domain.MarketDataPoint {
	r := s.p.Regimes[s.regime]
	s.price *= math.Exp((r.Mu-0.5*r.Sigma*r.Sigma)*Dt + r.Sigma*math.Sqrt(Dt)*z)
	point := domain.MarketDataPoint{Price: s.price, Vol: r.Sigma}

	// Uniform via the normal CDF of a fresh draw, matched against the
	// cumulative transition row.
	u := stochastic.NormCDF(src.Norm())
	cum := 0.0
	for next, prob := range r.TransitionProbs {
		cum += prob
		if u <= cum {
			s.regime = next
			break
		}
	}
	return point
}
