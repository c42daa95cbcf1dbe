package options

import (
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/stochastic"
)

// Newton–Raphson bounds for StrikeForDelta.
const (
	maxStrikeIterations = 50
	deltaTolerance      = 1e-5
	derivativeFloor     = 1e-9
)

// StrikeForDelta solves for the strike whose Black–Scholes delta matches
// targetDelta for an option expiring dte days after day. Negative targets
// are treated as puts. A target |delta| >= 1 short-circuits to the spot
// price, since no finite strike reaches that delta exactly.
func StrikeForDelta(targetDelta float64, dte int, path *domain.PricePath, day int, riskFree float64) float64 {
	spot, vol := inputs(path, day)
	if math.Abs(targetDelta) >= 1 {
		return spot
	}

	optType := Call
	if targetDelta < 0 {
		optType = Put
	}
	t := float64(dte) / daysPerYear
	if t <= 0 || vol < nearZeroVol {
		return spot
	}

	strike := spot
	for i := 0; i < maxStrikeIterations; i++ {
		d1, _ := d1d2(spot, strike, vol, riskFree, t)
		delta := stochastic.NormCDF(d1)
		if optType == Put {
			delta -= 1
		}
		diff := delta - targetDelta
		if math.Abs(diff) < deltaTolerance {
			break
		}

		// d(delta)/dK = -phi(d1) / (K * vol * sqrt(t))
		deriv := -stochastic.NormPDF(d1) / (strike * vol * math.Sqrt(t))
		if math.Abs(deriv) < derivativeFloor {
			break
		}
		strike -= diff / deriv
		if strike <= 0 {
			strike = spot * 0.01
		}
	}
	return strike
}
