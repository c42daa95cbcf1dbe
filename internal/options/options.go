// Package options prices European options and their Greeks from
// Black–Scholes closed forms. All functions are pure: inputs are the
// contract, the underlying's path, the current day index, and the risk-free
// rate.
package options

import (
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/stochastic"
)

// OptionType distinguishes calls from puts.
type OptionType int

// Option type constants
const (
	Call OptionType = iota
	Put
)

// Contract is one European option leg on a path's underlying.
type Contract struct {
	Type      OptionType
	Strike    float64
	ExpiryDay int // absolute trading-day index on the path
}

// Calendar-day year fraction convention for time to expiry.
const daysPerYear = 365.0

// nearZeroVol collapses pricing to discounted intrinsic value.
const nearZeroVol = 1e-10

// yearsToExpiry converts remaining trading days to a year fraction.
func yearsToExpiry(c Contract, day int) float64 {
	return float64(c.ExpiryDay-day) / daysPerYear
}

// inputs extracts spot and the constant-vol proxy from the path at day.
func inputs(path *domain.PricePath, day int) (spot, vol float64) {
	pt := path.Points[day]
	return pt.Price, pt.Vol
}

func intrinsic(c Contract, spot float64) float64 {
	if c.Type == Call {
		return math.Max(spot-c.Strike, 0)
	}
	return math.Max(c.Strike-spot, 0)
}

func d1d2(spot, strike, vol, r, t float64) (float64, float64) {
	volSqrtT := vol * math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+0.5*vol*vol)*t) / volSqrtT
	return d1, d1 - volSqrtT
}

// Price returns the Black–Scholes value of the contract. At or past expiry
// it collapses to intrinsic value; near-zero vol collapses to discounted
// intrinsic.
func Price(c Contract, path *domain.PricePath, day int, riskFree float64) float64 {
	spot, vol := inputs(path, day)
	t := yearsToExpiry(c, day)
	if t <= 0 {
		return intrinsic(c, spot)
	}
	if vol < nearZeroVol {
		discounted := c.Strike * math.Exp(-riskFree*t)
		if c.Type == Call {
			return math.Max(spot-discounted, 0)
		}
		return math.Max(discounted-spot, 0)
	}

	d1, d2 := d1d2(spot, c.Strike, vol, riskFree, t)
	if c.Type == Call {
		return spot*stochastic.NormCDF(d1) - c.Strike*math.Exp(-riskFree*t)*stochastic.NormCDF(d2)
	}
	return c.Strike*math.Exp(-riskFree*t)*stochastic.NormCDF(-d2) - spot*stochastic.NormCDF(-d1)
}

// Delta is the option price sensitivity to the spot price.
func Delta(c Contract, path *domain.PricePath, day int, riskFree float64) float64 {
	spot, vol := inputs(path, day)
	t := yearsToExpiry(c, day)
	if t <= 0 || vol < nearZeroVol {
		// Step function at the strike.
		if c.Type == Call {
			if spot > c.Strike {
				return 1
			}
			return 0
		}
		if spot < c.Strike {
			return -1
		}
		return 0
	}

	d1, _ := d1d2(spot, c.Strike, vol, riskFree, t)
	if c.Type == Call {
		return stochastic.NormCDF(d1)
	}
	return stochastic.NormCDF(d1) - 1
}

// Gamma is the second derivative with respect to spot; identical for calls
// and puts.
func Gamma(c Contract, path *domain.PricePath, day int, riskFree float64) float64 {
	spot, vol := inputs(path, day)
	t := yearsToExpiry(c, day)
	if t <= 0 || vol < nearZeroVol {
		return 0
	}
	d1, _ := d1d2(spot, c.Strike, vol, riskFree, t)
	return stochastic.NormPDF(d1) / (spot * vol * math.Sqrt(t))
}

// Theta is the time decay (per year, typically negative).
func Theta(c Contract, path *domain.PricePath, day int, riskFree float64) float64 {
	spot, vol := inputs(path, day)
	t := yearsToExpiry(c, day)
	if t <= 0 || vol < nearZeroVol {
		return 0
	}
	d1, d2 := d1d2(spot, c.Strike, vol, riskFree, t)
	decay := -spot * stochastic.NormPDF(d1) * vol / (2 * math.Sqrt(t))
	if c.Type == Call {
		return decay - riskFree*c.Strike*math.Exp(-riskFree*t)*stochastic.NormCDF(d2)
	}
	return decay + riskFree*c.Strike*math.Exp(-riskFree*t)*stochastic.NormCDF(-d2)
}

// Vega is the sensitivity to volatility, scaled per 1% vol move.
func Vega(c Contract, path *domain.PricePath, day int, riskFree float64) float64 {
	spot, vol := inputs(path, day)
	t := yearsToExpiry(c, day)
	if t <= 0 || vol < nearZeroVol {
		return 0
	}
	d1, _ := d1d2(spot, c.Strike, vol, riskFree, t)
	return spot * stochastic.NormPDF(d1) * math.Sqrt(t) * 0.01
}

// Rho is the sensitivity to the risk-free rate, scaled per 1% rate move.
func Rho(c Contract, path *domain.PricePath, day int, riskFree float64) float64 {
	spot, vol := inputs(path, day)
	t := yearsToExpiry(c, day)
	if t <= 0 || vol < nearZeroVol {
		return 0
	}
	_, d2 := d1d2(spot, c.Strike, vol, riskFree, t)
	if c.Type == Call {
		return c.Strike * t * math.Exp(-riskFree*t) * stochastic.NormCDF(d2) * 0.01
	}
	return -c.Strike * t * math.Exp(-riskFree*t) * stochastic.NormCDF(-d2) * 0.01
}
