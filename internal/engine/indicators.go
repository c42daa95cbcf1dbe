package engine

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/dsl"
)

// evalIndicator computes a technical indicator over the path's prices up to
// and including the current day. Windows that reach before day 0 are clamped
// to the available history.
func (m *market) evalIndicator(ref dsl.IndicatorRef) (float64, error) {
	p, err := m.path(ref.Ticker)
	if err != nil {
		return 0, err
	}

	switch ref.Kind {
	case dsl.IndicatorSMA:
		return sma(p, m.day, ref.Period), nil
	case dsl.IndicatorEMA:
		return ema(p, m.day, ref.Period), nil
	case dsl.IndicatorRSI:
		return rsi(p, m.day, ref.Period), nil
	case dsl.IndicatorVol:
		if ref.Period == 0 {
			// No window: report the path's model volatility at this day.
			return p.Points[m.day].Vol, nil
		}
		return realizedVol(p, m.day, ref.Period), nil
	case dsl.IndicatorReturn:
		from := clampDay(m.day - ref.Period)
		if p.Points[from].Price == 0 {
			return 0, nil
		}
		return p.Points[m.day].Price/p.Points[from].Price - 1, nil
	case dsl.IndicatorPastPrice:
		return p.Points[clampDay(m.day-ref.Period)].Price, nil
	}
	return 0, fmt.Errorf("unknown indicator %q", ref.Kind)
}

func clampDay(d int) int {
	if d < 0 {
		return 0
	}
	return d
}

func sma(p *domain.PricePath, day, period int) float64 {
	from := clampDay(day - period + 1)
	var sum float64
	for i := from; i <= day; i++ {
		sum += p.Points[i].Price
	}
	return sum / float64(day-from+1)
}

func ema(p *domain.PricePath, day, period int) float64 {
	from := clampDay(day - period + 1)
	k := 2.0 / (float64(period) + 1)
	v := p.Points[from].Price
	for i := from + 1; i <= day; i++ {
		v = p.Points[i].Price*k + v*(1-k)
	}
	return v
}

// rsi uses simple averages of gains and losses over the window. An all-gain
// window saturates at 100, an all-loss window at 0.
func rsi(p *domain.PricePath, day, period int) float64 {
	from := clampDay(day - period)
	if from == day {
		return 50
	}
	var gains, losses float64
	for i := from + 1; i <= day; i++ {
		change := p.Points[i].Price - p.Points[i-1].Price
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// realizedVol is the annualized standard deviation of daily log returns over
// the trailing window.
func realizedVol(p *domain.PricePath, day, period int) float64 {
	from := clampDay(day - period)
	n := day - from
	if n < 2 {
		return 0
	}
	returns := make([]float64, 0, n)
	for i := from + 1; i <= day; i++ {
		returns = append(returns, math.Log(p.Points[i].Price/p.Points[i-1].Price))
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	variance := ss / float64(len(returns)-1)
	return math.Sqrt(variance * domain.TradingDaysPerYear)
}
