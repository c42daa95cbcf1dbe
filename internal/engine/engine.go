// Package engine interprets a compiled strategy day by day against one
// iteration's price paths, producing an equity curve and a transaction log.
// A run owns all of its state; runs never share mutable data.
package engine

import (
	"fmt"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/dsl"
)

// RunParams are the inputs to a single strategy run. Tax and Costs zero
// values mean no taxation and frictionless execution.
type RunParams struct {
	Strategy    *dsl.CompiledStrategy
	Paths       *domain.PathSet
	Config      *domain.SimulationConfiguration
	InitialCash float64
	Tax         domain.TaxConfiguration
	Costs       domain.ExecutionCosts
	RunID       int
}

// run is the mutable interpreter state for one invocation.
type run struct {
	strategy *dsl.CompiledStrategy
	cfg      *domain.SimulationConfiguration
	mkt      *market
	pf       *portfolio
	tax      domain.TaxConfiguration
	costs    domain.ExecutionCosts

	env      []float64                    // scalar slots, resolved at compile time
	bindings map[string]*positionInstance // active for_any_position bindings
	txs      []domain.Transaction
}

// Run executes the strategy over every day of the path set. The equity curve
// has TradingDays+1 entries; index 0 reflects any day-0 trades already
// executed. Execution is strictly sequential: a later day depends on
// portfolio state built by earlier days.
func Run(p RunParams) (*domain.SimulationRunResult, error) {
	if p.Strategy == nil {
		return nil, fmt.Errorf("engine: nil strategy")
	}
	if p.Paths == nil {
		return nil, fmt.Errorf("engine: nil path set")
	}

	r := &run{
		strategy: p.Strategy,
		cfg:      p.Config,
		mkt:      &market{paths: p.Paths, riskFree: p.Config.RiskFreeRate},
		pf:       newPortfolio(p.InitialCash),
		tax:      p.Tax,
		costs:    p.Costs,
		env:      make([]float64, p.Strategy.ScalarSlots),
		bindings: make(map[string]*positionInstance),
	}

	curve := make([]float64, 0, p.Config.TradingDays+1)
	for day := 0; day <= p.Config.TradingDays; day++ {
		r.mkt.day = day

		if err := r.settleExpired(); err != nil {
			return nil, err
		}
		if r.tax.Enabled() && day > 0 && day%domain.TradingDaysPerYear == 0 {
			if err := r.applyYearBoundaryTaxes(); err != nil {
				return nil, err
			}
		}

		for _, s := range p.Strategy.Program.Statements {
			if err := r.execStatement(s); err != nil {
				return nil, fmt.Errorf("day %d: %w", day, err)
			}
		}

		v, err := r.pf.totalValue(r.mkt)
		if err != nil {
			return nil, err
		}
		curve = append(curve, v)
	}

	return &domain.SimulationRunResult{
		RunID:        p.RunID,
		EquityCurve:  curve,
		Transactions: r.txs,
	}, nil
}

func (r *run) execStatement(s dsl.Statement) error {
	switch st := s.(type) {
	case *dsl.DefineStmt:
		if st.Position != nil {
			// Templates are registered at compile time; nothing to do here.
			return nil
		}
		v, err := r.evalExpr(st.Value)
		if err != nil {
			return err
		}
		r.env[st.Slot] = v
		return nil
	case *dsl.SetStmt:
		v, err := r.evalExpr(st.Value)
		if err != nil {
			return err
		}
		r.env[st.Slot] = v
		return nil
	case *dsl.ActionStmt:
		return r.execAction(st)
	case *dsl.WhenStmt:
		ok, err := r.evalCond(st.Cond)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return r.execBlock(st.Block)
	case *dsl.ForAnyPositionStmt:
		return r.execForAnyPosition(st)
	}
	return fmt.Errorf("unhandled statement %T", s)
}

func (r *run) execBlock(stmts []dsl.Statement) error {
	for _, s := range stmts {
		if err := r.execStatement(s); err != nil {
			return err
		}
	}
	return nil
}

// execForAnyPosition iterates a snapshot of the open instances so the block
// may close positions without invalidating the iteration.
func (r *run) execForAnyPosition(st *dsl.ForAnyPositionStmt) error {
	snapshot := r.pf.instancesOf(st.PositionName)
	prev, hadPrev := r.bindings[st.Binding]
	defer func() {
		if hadPrev {
			r.bindings[st.Binding] = prev
		} else {
			delete(r.bindings, st.Binding)
		}
	}()

	for _, inst := range snapshot {
		if inst.units == 0 {
			continue // closed earlier in this same loop
		}
		r.bindings[st.Binding] = inst
		if err := r.execBlock(st.Block); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) evalExpr(e dsl.Expr) (float64, error) {
	switch ex := e.(type) {
	case *dsl.NumberLit:
		return ex.Value, nil
	case *dsl.AssetRef:
		return r.mkt.price(ex.Ticker)
	case *dsl.IndicatorExpr:
		return r.mkt.evalIndicator(ex.Ref)
	case *dsl.PortfolioQuery:
		if ex.Query == "cash_available" {
			return r.pf.cash, nil
		}
		return r.pf.totalValue(r.mkt)
	case *dsl.PositionQuery:
		return r.evalPositionQuery(ex)
	case *dsl.IdentExpr:
		return r.env[ex.Slot], nil
	case *dsl.PropertyExpr:
		return r.evalProperty(ex)
	case *dsl.UnaryExpr:
		v, err := r.evalExpr(ex.X)
		return -v, err
	case *dsl.BinaryExpr:
		x, err := r.evalExpr(ex.X)
		if err != nil {
			return 0, err
		}
		y, err := r.evalExpr(ex.Y)
		if err != nil {
			return 0, err
		}
		switch ex.Op {
		case dsl.TokenPlus:
			return x + y, nil
		case dsl.TokenMinus:
			return x - y, nil
		case dsl.TokenStar:
			return x * y, nil
		case dsl.TokenSlash:
			if y == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return x / y, nil
		}
	}
	return 0, fmt.Errorf("unhandled expression %T", e)
}

func (r *run) evalPositionQuery(ex *dsl.PositionQuery) (float64, error) {
	var total float64
	for _, inst := range r.pf.instancesOf(ex.Position) {
		if ex.Query == "position_quantity" {
			total += inst.units
			continue
		}
		v, err := inst.value(r.mkt)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

func (r *run) evalProperty(ex *dsl.PropertyExpr) (float64, error) {
	inst, ok := r.bindings[ex.Binding]
	if !ok {
		return 0, fmt.Errorf("no bound position %q", ex.Binding)
	}

	if ex.Leg > 0 {
		if ex.Leg > len(inst.legs) {
			return 0, fmt.Errorf("position %q has no leg %d", inst.def, ex.Leg)
		}
		return r.evalLegProperty(inst, &inst.legs[ex.Leg-1], ex.Prop)
	}

	switch ex.Prop {
	case dsl.PropQuantity:
		return inst.units, nil
	case dsl.PropPrice:
		return inst.unitValue(r.mkt)
	case dsl.PropValue:
		return inst.value(r.mkt)
	case dsl.PropBuyPrice:
		return inst.entryPrice, nil
	case dsl.PropBuyDate:
		return float64(inst.entryDay), nil
	case dsl.PropDTE:
		return inst.dte(r.mkt.day), nil
	case dsl.PropDelta:
		return inst.greek(r.mkt, dsl.GreekDelta)
	case dsl.PropGamma:
		return inst.greek(r.mkt, dsl.GreekGamma)
	case dsl.PropTheta:
		return inst.greek(r.mkt, dsl.GreekTheta)
	case dsl.PropVega:
		return inst.greek(r.mkt, dsl.GreekVega)
	case dsl.PropRho:
		return inst.greek(r.mkt, dsl.GreekRho)
	}
	return 0, fmt.Errorf("unknown property %q", ex.Prop)
}

// evalLegProperty reports a single leg. Greeks and price are per contract;
// quantity and value are scaled by the instance's units.
func (r *run) evalLegProperty(inst *positionInstance, leg *legState, prop dsl.Property) (float64, error) {
	switch prop {
	case dsl.PropQuantity:
		return leg.quantity * inst.units, nil
	case dsl.PropPrice:
		return r.mkt.legPrice(leg)
	case dsl.PropValue:
		p, err := r.mkt.legPrice(leg)
		if err != nil {
			return 0, err
		}
		return leg.quantity * inst.units * p, nil
	case dsl.PropBuyPrice:
		return leg.entryPrice, nil
	case dsl.PropBuyDate:
		return float64(inst.entryDay), nil
	case dsl.PropDTE:
		if leg.option == nil {
			return 0, nil
		}
		return float64(leg.option.ExpiryDay - r.mkt.day), nil
	case dsl.PropDelta:
		return r.mkt.legGreek(leg, dsl.GreekDelta)
	case dsl.PropGamma:
		return r.mkt.legGreek(leg, dsl.GreekGamma)
	case dsl.PropTheta:
		return r.mkt.legGreek(leg, dsl.GreekTheta)
	case dsl.PropVega:
		return r.mkt.legGreek(leg, dsl.GreekVega)
	case dsl.PropRho:
		return r.mkt.legGreek(leg, dsl.GreekRho)
	}
	return 0, fmt.Errorf("unknown property %q", prop)
}

func (r *run) evalCond(c dsl.Cond) (bool, error) {
	switch cn := c.(type) {
	case *dsl.CondBool:
		return cn.Value, nil
	case *dsl.CondNot:
		v, err := r.evalCond(cn.X)
		return !v, err
	case *dsl.CondBinary:
		x, err := r.evalCond(cn.X)
		if err != nil {
			return false, err
		}
		// Short-circuit keeps degenerate right-hand sides from evaluating.
		if cn.Op == dsl.TokenAnd && !x {
			return false, nil
		}
		if cn.Op == dsl.TokenOr && x {
			return true, nil
		}
		return r.evalCond(cn.Y)
	case *dsl.CondCompare:
		x, err := r.evalExpr(cn.X)
		if err != nil {
			return false, err
		}
		y, err := r.evalExpr(cn.Y)
		if err != nil {
			return false, err
		}
		switch cn.Op {
		case dsl.TokenGT:
			return x > y, nil
		case dsl.TokenLT:
			return x < y, nil
		case dsl.TokenGE:
			return x >= y, nil
		case dsl.TokenLE:
			return x <= y, nil
		case dsl.TokenEQ:
			return x == y, nil
		case dsl.TokenNE:
			return x != y, nil
		}
	}
	return false, fmt.Errorf("unhandled condition %T", c)
}
