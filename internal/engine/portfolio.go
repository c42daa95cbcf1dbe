package engine

import (
	"fmt"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/dsl"
	"strategy-lab/internal/options"
)

// assetLot is one open purchase of a plain asset. Lots are kept separate so
// closes can be classified by holding period and are consumed FIFO.
type assetLot struct {
	ticker     string
	quantity   float64
	entryDay   int
	entryPrice float64
}

// legState is one live leg of a templated position instance. Quantity is per
// unit and signed: sold legs carry negative quantity.
type legState struct {
	ticker     string
	option     *options.Contract // nil for plain asset legs
	quantity   float64
	entryPrice float64 // per contract/share at open
}

// positionInstance is one opened instance of a position template. Units is
// the action quantity the instance was opened with; leg quantities scale
// with it.
type positionInstance struct {
	id         int
	def        string
	units      float64
	entryDay   int
	entryPrice float64 // per-unit net cost at open
	legs       []legState
}

// portfolio is the mutable account state owned by a single run.
type portfolio struct {
	cash       float64
	lots       []assetLot
	instances  []*positionInstance
	nextID     int
	accruedTax float64
}

func newPortfolio(initialCash float64) *portfolio {
	return &portfolio{cash: initialCash, nextID: 1}
}

// market is the read-only view of path data at one day index.
type market struct {
	paths    *domain.PathSet
	day      int
	riskFree float64
}

func (m *market) path(ticker string) (*domain.PricePath, error) {
	p := m.paths.ByTicker(ticker)
	if p == nil {
		return nil, fmt.Errorf("no price path for ticker %q", ticker)
	}
	return p, nil
}

func (m *market) price(ticker string) (float64, error) {
	p, err := m.path(ticker)
	if err != nil {
		return 0, err
	}
	return p.Points[m.day].Price, nil
}

// legPrice marks one leg: option legs via Black–Scholes, asset legs at spot.
func (m *market) legPrice(leg *legState) (float64, error) {
	p, err := m.path(leg.ticker)
	if err != nil {
		return 0, err
	}
	if leg.option != nil {
		return options.Price(*leg.option, p, m.day, m.riskFree), nil
	}
	return p.Points[m.day].Price, nil
}

// unitValue marks one unit of the instance to market.
func (inst *positionInstance) unitValue(m *market) (float64, error) {
	var v float64
	for i := range inst.legs {
		price, err := m.legPrice(&inst.legs[i])
		if err != nil {
			return 0, err
		}
		v += inst.legs[i].quantity * price
	}
	return v, nil
}

func (inst *positionInstance) value(m *market) (float64, error) {
	unit, err := inst.unitValue(m)
	if err != nil {
		return 0, err
	}
	return inst.units * unit, nil
}

// dte is the smallest remaining time to expiry over the instance's option
// legs, zero when no leg is an option.
func (inst *positionInstance) dte(day int) float64 {
	min, found := 0.0, false
	for i := range inst.legs {
		if inst.legs[i].option == nil {
			continue
		}
		d := float64(inst.legs[i].option.ExpiryDay - day)
		if !found || d < min {
			min, found = d, true
		}
	}
	return min
}

// legGreek evaluates one sensitivity for a single contract of the leg.
// A plain asset leg has delta 1 and no other sensitivities.
func (m *market) legGreek(leg *legState, greek dsl.GreekKind) (float64, error) {
	p, err := m.path(leg.ticker)
	if err != nil {
		return 0, err
	}
	if leg.option == nil {
		if greek == dsl.GreekDelta {
			return 1, nil
		}
		return 0, nil
	}
	c := *leg.option
	switch greek {
	case dsl.GreekDelta:
		return options.Delta(c, p, m.day, m.riskFree), nil
	case dsl.GreekGamma:
		return options.Gamma(c, p, m.day, m.riskFree), nil
	case dsl.GreekTheta:
		return options.Theta(c, p, m.day, m.riskFree), nil
	case dsl.GreekVega:
		return options.Vega(c, p, m.day, m.riskFree), nil
	case dsl.GreekRho:
		return options.Rho(c, p, m.day, m.riskFree), nil
	}
	return 0, fmt.Errorf("unknown greek %q", greek)
}

// greek sums a per-unit sensitivity over the instance's legs.
func (inst *positionInstance) greek(m *market, g dsl.GreekKind) (float64, error) {
	var v float64
	for i := range inst.legs {
		leg := &inst.legs[i]
		lg, err := m.legGreek(leg, g)
		if err != nil {
			return 0, err
		}
		v += leg.quantity * lg
	}
	return v, nil
}

// assetQuantity sums open lot quantity for a ticker.
func (pf *portfolio) assetQuantity(ticker string) float64 {
	var q float64
	for i := range pf.lots {
		if pf.lots[i].ticker == ticker {
			q += pf.lots[i].quantity
		}
	}
	return q
}

// instancesOf returns the open instances of a position definition, in open
// order.
func (pf *portfolio) instancesOf(def string) []*positionInstance {
	var out []*positionInstance
	for _, inst := range pf.instances {
		if inst.def == def {
			out = append(out, inst)
		}
	}
	return out
}

func (pf *portfolio) removeInstance(id int) {
	for i, inst := range pf.instances {
		if inst.id == id {
			pf.instances = append(pf.instances[:i], pf.instances[i+1:]...)
			return
		}
	}
}

// totalValue marks the whole portfolio: cash plus every lot and instance.
// Accrued (unsettled) tax is a liability and is not subtracted until paid.
func (pf *portfolio) totalValue(m *market) (float64, error) {
	v := pf.cash
	for i := range pf.lots {
		price, err := m.price(pf.lots[i].ticker)
		if err != nil {
			return 0, err
		}
		v += pf.lots[i].quantity * price
	}
	for _, inst := range pf.instances {
		iv, err := inst.value(m)
		if err != nil {
			return 0, err
		}
		v += iv
	}
	return v, nil
}
