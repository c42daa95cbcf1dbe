package engine

import (
	"fmt"
	"math"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/dsl"
	"strategy-lab/internal/options"
)

// closeEpsilon treats residual fractional units below this as fully closed.
const closeEpsilon = 1e-9

func (r *run) execAction(st *dsl.ActionStmt) error {
	switch st.Verb {
	case dsl.VerbBuy, dsl.VerbSell:
		qty, err := r.evalExpr(st.Quantity)
		if err != nil {
			return err
		}
		if qty <= 0 {
			return nil
		}
		if st.Verb == dsl.VerbBuy {
			return r.execBuy(st, qty)
		}
		return r.execSell(st, qty)
	case dsl.VerbBuyMax:
		return r.execBuyMax(st)
	case dsl.VerbSellAll:
		return r.execSellAll(st)
	case dsl.VerbRebalanceTo:
		frac, err := r.evalExpr(st.Fraction)
		if err != nil {
			return err
		}
		return r.rebalance(st.Target.Name, frac)
	}
	return fmt.Errorf("unhandled verb %q", st.Verb)
}

func (r *run) execBuy(st *dsl.ActionStmt, qty float64) error {
	switch st.Target.Kind {
	case dsl.TargetAsset:
		return r.buyAsset(st.Target.Name, qty)
	case dsl.TargetOption:
		// A bare option trade opens an anonymous single-leg instance so it
		// participates in expiry settlement.
		tpl := &dsl.PositionExpr{Legs: []dsl.PositionLeg{{
			Verb:     dsl.VerbBuy,
			Quantity: &dsl.NumberLit{Value: 1},
			Target:   st.Target,
		}}}
		return r.openInstance(st.Target.Name, tpl, qty)
	case dsl.TargetPositionDef:
		return r.openInstance(st.Target.Name, r.strategy.Positions[st.Target.Name], qty)
	case dsl.TargetBinding:
		inst, ok := r.bindings[st.Target.Name]
		if !ok {
			return fmt.Errorf("no bound position %q", st.Target.Name)
		}
		return r.addUnits(inst, qty)
	}
	return fmt.Errorf("buy target %q is unresolved", st.Target.Name)
}

func (r *run) execSell(st *dsl.ActionStmt, qty float64) error {
	switch st.Target.Kind {
	case dsl.TargetAsset:
		return r.sellAsset(st.Target.Name, qty)
	case dsl.TargetPositionDef:
		return r.closeDefinitionUnits(st.Target.Name, qty)
	case dsl.TargetBinding:
		inst, ok := r.bindings[st.Target.Name]
		if !ok {
			return fmt.Errorf("no bound position %q", st.Target.Name)
		}
		return r.closeInstanceUnits(inst, math.Min(qty, inst.units))
	}
	return fmt.Errorf("sell target %q is unresolved", st.Target.Name)
}

func (r *run) execBuyMax(st *dsl.ActionStmt) error {
	if st.Target.Kind == dsl.TargetAsset {
		price, err := r.mkt.price(st.Target.Name)
		if err != nil {
			return err
		}
		exec := price * (1 + r.costs.SlippageRate)
		qty := maxAffordable(r.pf.cash, exec, r.costs)
		if qty <= 0 {
			return nil
		}
		return r.buyAsset(st.Target.Name, qty)
	}

	// Position definition: size units by the template's current unit cost.
	tpl := r.strategy.Positions[st.Target.Name]
	unitCost, _, err := r.templateUnitCost(tpl, true)
	if err != nil {
		return err
	}
	if unitCost <= 0 {
		return nil
	}
	units := maxAffordable(r.pf.cash, unitCost, r.costs)
	if units <= 0 {
		return nil
	}
	return r.openInstance(st.Target.Name, tpl, units)
}

// maxAffordable solves cash = qty·price·(1+commissionRate) + fixed for qty.
func maxAffordable(cash, price float64, costs domain.ExecutionCosts) float64 {
	available := cash - costs.FixedCommission
	if available <= 0 || price <= 0 {
		return 0
	}
	return available / (price * (1 + costs.CommissionRate))
}

func (r *run) execSellAll(st *dsl.ActionStmt) error {
	if st.Target.Kind == dsl.TargetAsset {
		qty := r.pf.assetQuantity(st.Target.Name)
		if qty <= 0 {
			return nil
		}
		return r.sellAsset(st.Target.Name, qty)
	}
	for _, inst := range r.pf.instancesOf(st.Target.Name) {
		if err := r.closeInstanceUnits(inst, inst.units); err != nil {
			return err
		}
	}
	return nil
}

// buyAsset opens a new FIFO lot at the slippage-adjusted price.
func (r *run) buyAsset(ticker string, qty float64) error {
	price, err := r.mkt.price(ticker)
	if err != nil {
		return err
	}
	exec := price * (1 + r.costs.SlippageRate)
	value := qty * exec
	comm := r.commission(value)
	slip := qty * price * r.costs.SlippageRate

	r.pf.cash -= value + comm
	r.pf.lots = append(r.pf.lots, assetLot{
		ticker:     ticker,
		quantity:   qty,
		entryDay:   r.mkt.day,
		entryPrice: exec,
	})
	r.record(domain.Transaction{
		Day: r.mkt.day, Ticker: ticker, Type: domain.TransactionBuy,
		Quantity: qty, Price: exec, Value: value,
		Commission: comm, Slippage: slip,
	})
	return nil
}

// sellAsset consumes lots FIFO, assessing capital-gains tax per lot.
func (r *run) sellAsset(ticker string, qty float64) error {
	price, err := r.mkt.price(ticker)
	if err != nil {
		return err
	}
	exec := price * (1 - r.costs.SlippageRate)

	remaining := math.Min(qty, r.pf.assetQuantity(ticker))
	if remaining <= 0 {
		return nil
	}
	sold := remaining

	var assessed float64
	kept := r.pf.lots[:0]
	for i := range r.pf.lots {
		lot := r.pf.lots[i]
		if lot.ticker != ticker || remaining <= 0 {
			kept = append(kept, lot)
			continue
		}
		take := math.Min(lot.quantity, remaining)
		remaining -= take
		assessed += r.taxOnGain((exec-lot.entryPrice)*take, r.mkt.day-lot.entryDay)
		lot.quantity -= take
		if lot.quantity > closeEpsilon {
			kept = append(kept, lot)
		}
	}
	r.pf.lots = kept

	value := sold * exec
	comm := r.commission(value)
	slip := sold * price * r.costs.SlippageRate
	paid := r.settleTax(assessed)

	r.pf.cash += value - comm
	r.record(domain.Transaction{
		Day: r.mkt.day, Ticker: ticker, Type: domain.TransactionSell,
		Quantity: sold, Price: exec, Value: value,
		Commission: comm, Slippage: slip, Tax: paid,
	})
	return nil
}

// templateUnitCost prices one unit of a template at today's market,
// slippage-adjusted in the direction given by opening (true) or closing.
// The second return is the absolute pre-slippage notional per unit, used
// for slippage reporting.
func (r *run) templateUnitCost(tpl *dsl.PositionExpr, opening bool) (cost, notional float64, err error) {
	for i := range tpl.Legs {
		leg := &tpl.Legs[i]
		qty, err := r.evalExpr(leg.Quantity)
		if err != nil {
			return 0, 0, err
		}
		if leg.Verb == dsl.VerbSell {
			qty = -qty
		}
		state, err := r.resolveLeg(leg.Target, qty)
		if err != nil {
			return 0, 0, err
		}
		mid, err := r.mkt.legPrice(state)
		if err != nil {
			return 0, 0, err
		}
		cost += qty * r.slippageAdjust(mid, qty, opening)
		notional += math.Abs(qty) * mid
	}
	return cost, notional, nil
}

// slippageAdjust moves the mid price against the trade: paying legs fill
// high, receiving legs fill low.
func (r *run) slippageAdjust(mid, qty float64, opening bool) float64 {
	paying := qty > 0 == opening
	if paying {
		return mid * (1 + r.costs.SlippageRate)
	}
	return mid * (1 - r.costs.SlippageRate)
}

// resolveLeg materializes a template leg target into a leg state. Option
// strikes are solved for the spec's delta target at today's market.
func (r *run) resolveLeg(target dsl.Target, qty float64) (*legState, error) {
	if target.Kind == dsl.TargetAsset {
		return &legState{ticker: target.Name, quantity: qty}, nil
	}
	spec := target.Option
	if spec.Greek != dsl.GreekDelta {
		return nil, fmt.Errorf("option strike selection targets delta only, got %s", spec.Greek)
	}
	path, err := r.mkt.path(spec.Underlying)
	if err != nil {
		return nil, err
	}
	strike := options.StrikeForDelta(spec.GreekTarget, spec.DTE, path, r.mkt.day, r.mkt.riskFree)
	typ := options.Call
	if spec.GreekTarget < 0 {
		typ = options.Put
	}
	return &legState{
		ticker:   spec.Underlying,
		option:   &options.Contract{Type: typ, Strike: strike, ExpiryDay: r.mkt.day + spec.DTE},
		quantity: qty,
	}, nil
}

// openInstance opens units of a template as one tracked instance.
func (r *run) openInstance(def string, tpl *dsl.PositionExpr, units float64) error {
	if tpl == nil {
		return fmt.Errorf("no position template %q", def)
	}

	legs := make([]legState, 0, len(tpl.Legs))
	var unitCost, notional float64
	for i := range tpl.Legs {
		leg := &tpl.Legs[i]
		qty, err := r.evalExpr(leg.Quantity)
		if err != nil {
			return err
		}
		if leg.Verb == dsl.VerbSell {
			qty = -qty
		}
		state, err := r.resolveLeg(leg.Target, qty)
		if err != nil {
			return err
		}
		mid, err := r.mkt.legPrice(state)
		if err != nil {
			return err
		}
		state.entryPrice = r.slippageAdjust(mid, qty, true)
		unitCost += qty * state.entryPrice
		notional += math.Abs(qty) * mid
		legs = append(legs, *state)
	}

	cost := units * unitCost
	comm := r.commission(math.Abs(cost))
	slip := units * notional * r.costs.SlippageRate

	r.pf.cash -= cost + comm
	inst := &positionInstance{
		id:         r.pf.nextID,
		def:        def,
		units:      units,
		entryDay:   r.mkt.day,
		entryPrice: unitCost,
		legs:       legs,
	}
	r.pf.nextID++
	r.pf.instances = append(r.pf.instances, inst)

	r.record(domain.Transaction{
		Day: r.mkt.day, Ticker: instanceTicker(inst), Type: domain.TransactionBuy,
		Quantity: units, Price: unitCost, Value: cost, Tag: def,
		Commission: comm, Slippage: slip,
	})
	return nil
}

// addUnits scales an existing instance up at today's prices. The per-unit
// entry cost becomes the weighted average of old and new units.
func (r *run) addUnits(inst *positionInstance, units float64) error {
	unit, notional, err := r.instanceUnitCost(inst, true)
	if err != nil {
		return err
	}
	cost := units * unit
	comm := r.commission(math.Abs(cost))
	slip := units * notional * r.costs.SlippageRate

	r.pf.cash -= cost + comm
	total := inst.units + units
	inst.entryPrice = (inst.entryPrice*inst.units + unit*units) / total
	inst.units = total

	r.record(domain.Transaction{
		Day: r.mkt.day, Ticker: instanceTicker(inst), Type: domain.TransactionBuy,
		Quantity: units, Price: unit, Value: cost, Tag: inst.def,
		Commission: comm, Slippage: slip,
	})
	return nil
}

// instanceUnitCost marks one unit of a live instance with slippage applied
// in the given direction.
func (r *run) instanceUnitCost(inst *positionInstance, opening bool) (cost, notional float64, err error) {
	for i := range inst.legs {
		leg := &inst.legs[i]
		mid, err := r.mkt.legPrice(leg)
		if err != nil {
			return 0, 0, err
		}
		cost += leg.quantity * r.slippageAdjust(mid, leg.quantity, opening)
		notional += math.Abs(leg.quantity) * mid
	}
	return cost, notional, nil
}

// closeDefinitionUnits closes units across a definition's instances in open
// order.
func (r *run) closeDefinitionUnits(def string, units float64) error {
	remaining := units
	for _, inst := range r.pf.instancesOf(def) {
		if remaining <= 0 {
			return nil
		}
		take := math.Min(inst.units, remaining)
		remaining -= take
		if err := r.closeInstanceUnits(inst, take); err != nil {
			return err
		}
	}
	return nil
}

// closeInstanceUnits sells units of one instance at today's prices,
// assessing capital-gains tax on the per-unit gain.
func (r *run) closeInstanceUnits(inst *positionInstance, units float64) error {
	if units <= 0 {
		return nil
	}
	unit, notional, err := r.instanceUnitCost(inst, false)
	if err != nil {
		return err
	}
	proceeds := units * unit
	comm := r.commission(math.Abs(proceeds))
	slip := units * notional * r.costs.SlippageRate
	assessed := r.taxOnGain((unit-inst.entryPrice)*units, r.mkt.day-inst.entryDay)
	paid := r.settleTax(assessed)

	r.pf.cash += proceeds - comm
	inst.units -= units
	if inst.units <= closeEpsilon {
		r.pf.removeInstance(inst.id)
		inst.units = 0
	}

	r.record(domain.Transaction{
		Day: r.mkt.day, Ticker: instanceTicker(inst), Type: domain.TransactionSell,
		Quantity: units, Price: unit, Value: proceeds, Tag: inst.def,
		Commission: comm, Slippage: slip, Tax: paid,
	})
	return nil
}

// rebalance trades toward holding frac of total portfolio value in the
// asset. Fractions outside [0,1] are clamped.
func (r *run) rebalance(ticker string, frac float64) error {
	frac = math.Max(0, math.Min(1, frac))
	total, err := r.pf.totalValue(r.mkt)
	if err != nil {
		return err
	}
	price, err := r.mkt.price(ticker)
	if err != nil {
		return err
	}

	held := r.pf.assetQuantity(ticker)
	target := frac * total
	diff := target - held*price
	switch {
	case diff > closeEpsilon:
		qty := diff / (price * (1 + r.costs.SlippageRate))
		return r.buyAsset(ticker, qty)
	case diff < -closeEpsilon:
		qty := math.Min(held, -diff/(price*(1-r.costs.SlippageRate)))
		return r.sellAsset(ticker, qty)
	}
	return nil
}

// settleExpired cash-settles option legs at or past expiry at intrinsic
// value. Instances whose legs are all settled are removed.
func (r *run) settleExpired() error {
	day := r.mkt.day
	var toRemove []int
	for _, inst := range r.pf.instances {
		live := len(inst.legs)
		for i := range inst.legs {
			leg := &inst.legs[i]
			if leg.option == nil {
				continue
			}
			if leg.quantity == 0 {
				live--
				continue
			}
			if day < leg.option.ExpiryDay {
				continue
			}
			path, err := r.mkt.path(leg.ticker)
			if err != nil {
				return err
			}
			intrinsic := options.Price(*leg.option, path, day, r.mkt.riskFree)
			proceeds := inst.units * leg.quantity * intrinsic
			assessed := r.taxOnGain(inst.units*leg.quantity*(intrinsic-leg.entryPrice), day-inst.entryDay)
			paid := r.settleTax(assessed)

			r.pf.cash += proceeds
			r.record(domain.Transaction{
				Day: day, Ticker: leg.ticker, Type: domain.TransactionSell,
				Quantity: inst.units * leg.quantity, Price: intrinsic, Value: proceeds,
				Tag: inst.def, Tax: paid,
			})
			leg.quantity = 0
			live--
		}
		if live == 0 {
			toRemove = append(toRemove, inst.id)
		}
	}
	for _, id := range toRemove {
		r.pf.removeInstance(id)
	}
	return nil
}

// applyYearBoundaryTaxes pays accrued periodic capital-gains tax and any
// configured wealth tax on total portfolio value.
func (r *run) applyYearBoundaryTaxes() error {
	if r.tax.WealthTaxRate > 0 {
		total, err := r.pf.totalValue(r.mkt)
		if err != nil {
			return err
		}
		if total > 0 {
			wt := total * r.tax.WealthTaxRate
			r.pf.cash -= wt
			r.record(domain.Transaction{Day: r.mkt.day, Type: domain.TransactionTax, Tax: wt})
		}
	}
	if r.pf.accruedTax > 0 {
		r.pf.cash -= r.pf.accruedTax
		r.record(domain.Transaction{Day: r.mkt.day, Type: domain.TransactionTax, Tax: r.pf.accruedTax})
		r.pf.accruedTax = 0
	}
	return nil
}

func (r *run) commission(value float64) float64 {
	if r.costs.FixedCommission == 0 && r.costs.CommissionRate == 0 {
		return 0
	}
	return r.costs.FixedCommission + r.costs.CommissionRate*math.Abs(value)
}

// taxOnGain assesses capital-gains tax on a realized gain. Losses are not
// credited.
func (r *run) taxOnGain(gain float64, heldDays int) float64 {
	if !r.tax.Enabled() || gain <= 0 {
		return 0
	}
	rate := r.tax.ShortTermRate
	if heldDays >= r.tax.LongTermThresholdDays {
		rate = r.tax.LongTermRate
	}
	return gain * rate
}

// settleTax either deducts assessed tax immediately or accrues it for the
// next year boundary. The return value is what the current transaction
// should report as paid.
func (r *run) settleTax(assessed float64) float64 {
	if assessed == 0 {
		return 0
	}
	if r.tax.Settlement == domain.TaxSettlementPeriodic {
		r.pf.accruedTax += assessed
		return 0
	}
	r.pf.cash -= assessed
	return assessed
}

func (r *run) record(tx domain.Transaction) {
	r.txs = append(r.txs, tx)
}

// instanceTicker labels transactions for an instance: the single leg's
// ticker when unambiguous, otherwise the definition name.
func instanceTicker(inst *positionInstance) string {
	if len(inst.legs) == 1 {
		return inst.legs[0].ticker
	}
	return inst.def
}
