package dsl

// symbolKind classifies a resolved name.
type symbolKind int

const (
	symScalar symbolKind = iota
	symPositionDef
	symBinding
)

type symbol struct {
	kind     symbolKind
	slot     int           // symScalar
	def      *PositionExpr // symPositionDef
	position string        // symBinding: bound definition name
}

// checker resolves names statically and enforces the typing rules. Block
// scopes are a stack of name tables: bindings created inside a when or
// for_any_position block never escape their block.
type checker struct {
	scopes    []map[string]*symbol
	slots     int
	positions map[string]*PositionExpr
	options   []OptionSpec
}

func newChecker() *checker {
	return &checker{
		scopes:    []map[string]*symbol{{}},
		positions: make(map[string]*PositionExpr),
	}
}

func (c *checker) push() { c.scopes = append(c.scopes, map[string]*symbol{}) }
func (c *checker) pop()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *checker) declare(name string, s *symbol) {
	c.scopes[len(c.scopes)-1][name] = s
}

func (c *checker) resolve(name string) *symbol {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if s, ok := c.scopes[i][name]; ok {
			return s
		}
	}
	return nil
}

func (c *checker) checkProgram(prog *Program) *CompileError {
	return c.checkBlock(prog.Statements)
}

func (c *checker) checkBlock(stmts []Statement) *CompileError {
	for _, s := range stmts {
		if err := c.checkStatement(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkStatement(s Statement) *CompileError {
	switch st := s.(type) {
	case *DefineStmt:
		return c.checkDefine(st)
	case *SetStmt:
		return c.checkSet(st)
	case *ActionStmt:
		return c.checkAction(st)
	case *WhenStmt:
		if err := c.checkCond(st.Cond); err != nil {
			return err
		}
		c.push()
		defer c.pop()
		return c.checkBlock(st.Block)
	case *ForAnyPositionStmt:
		sym := c.resolve(st.PositionName)
		if sym == nil {
			return errAt(st.Pos.Line, st.Pos.Column, "unresolved identifier %q", st.PositionName)
		}
		if sym.kind != symPositionDef {
			return errAt(st.Pos.Line, st.Pos.Column, "for_any_position requires a position definition, %q is not one", st.PositionName)
		}
		c.push()
		defer c.pop()
		c.declare(st.Binding, &symbol{kind: symBinding, position: st.PositionName})
		return c.checkBlock(st.Block)
	default:
		return errAt(s.StmtPos().Line, s.StmtPos().Column, "unhandled statement")
	}
}

func (c *checker) checkDefine(st *DefineStmt) *CompileError {
	if st.Position != nil {
		if _, exists := c.positions[st.Name]; exists {
			return errAt(st.Pos.Line, st.Pos.Column, "position %q is already defined", st.Name)
		}
		for i := range st.Position.Legs {
			leg := &st.Position.Legs[i]
			if err := c.checkExpr(leg.Quantity); err != nil {
				return err
			}
			if leg.Target.Kind != TargetAsset && leg.Target.Kind != TargetOption {
				return errAt(leg.Target.Pos.Line, leg.Target.Pos.Column,
					"position template must trade an asset or option, %q is neither", leg.Target.Name)
			}
			if leg.Target.Option != nil {
				c.options = append(c.options, *leg.Target.Option)
			}
		}
		c.declare(st.Name, &symbol{kind: symPositionDef, def: st.Position})
		c.positions[st.Name] = st.Position
		return nil
	}

	if err := c.checkExpr(st.Value); err != nil {
		return err
	}
	st.Slot = c.slots
	c.slots++
	c.declare(st.Name, &symbol{kind: symScalar, slot: st.Slot})
	return nil
}

func (c *checker) checkSet(st *SetStmt) *CompileError {
	if err := c.checkExpr(st.Value); err != nil {
		return err
	}
	if sym := c.resolve(st.Name); sym != nil {
		if sym.kind != symScalar {
			return errAt(st.Pos.Line, st.Pos.Column, "cannot assign to %q: not a scalar", st.Name)
		}
		st.Slot = sym.slot
		return nil
	}
	// First assignment introduces the scalar in the current block.
	st.Slot = c.slots
	c.slots++
	c.declare(st.Name, &symbol{kind: symScalar, slot: st.Slot})
	return nil
}

func (c *checker) checkAction(st *ActionStmt) *CompileError {
	if st.Quantity != nil {
		if err := c.checkExpr(st.Quantity); err != nil {
			return err
		}
	}
	if st.Fraction != nil {
		if err := c.checkExpr(st.Fraction); err != nil {
			return err
		}
	}
	if err := c.resolveTarget(&st.Target); err != nil {
		return err
	}

	switch st.Verb {
	case VerbBuyMax, VerbSellAll:
		if st.Target.Kind != TargetAsset && st.Target.Kind != TargetPositionDef {
			return errAt(st.Target.Pos.Line, st.Target.Pos.Column,
				"%s target must be an asset or position definition", st.Verb)
		}
	case VerbRebalanceTo:
		if st.Target.Kind != TargetAsset {
			return errAt(st.Target.Pos.Line, st.Target.Pos.Column,
				"rebalance_to target must be a plain asset")
		}
	}
	if st.Target.Option != nil {
		c.options = append(c.options, *st.Target.Option)
	}
	return nil
}

func (c *checker) resolveTarget(t *Target) *CompileError {
	if t.Kind == TargetAsset || t.Kind == TargetOption {
		return nil
	}
	sym := c.resolve(t.Name)
	if sym == nil {
		return errAt(t.Pos.Line, t.Pos.Column, "unresolved identifier %q", t.Name)
	}
	switch sym.kind {
	case symPositionDef:
		t.Kind = TargetPositionDef
	case symBinding:
		t.Kind = TargetBinding
	default:
		return errAt(t.Pos.Line, t.Pos.Column, "cannot trade %q: it is a scalar", t.Name)
	}
	return nil
}

func (c *checker) checkExpr(e Expr) *CompileError {
	switch ex := e.(type) {
	case *NumberLit, *AssetRef, *IndicatorExpr, *PortfolioQuery:
		return nil
	case *PositionQuery:
		sym := c.resolve(ex.Position)
		if sym == nil {
			return errAt(ex.Pos.Line, ex.Pos.Column, "unresolved identifier %q", ex.Position)
		}
		if sym.kind != symPositionDef {
			return errAt(ex.Pos.Line, ex.Pos.Column, "%s requires a position definition, %q is not one", ex.Query, ex.Position)
		}
		return nil
	case *IdentExpr:
		sym := c.resolve(ex.Name)
		if sym == nil {
			return errAt(ex.Pos.Line, ex.Pos.Column, "unresolved identifier %q", ex.Name)
		}
		switch sym.kind {
		case symScalar:
			ex.Slot = sym.slot
			return nil
		case symPositionDef:
			return errAt(ex.Pos.Line, ex.Pos.Column, "position definition %q has no numeric value; use position_value(%s)", ex.Name, ex.Name)
		default:
			return errAt(ex.Pos.Line, ex.Pos.Column, "position instance %q requires a property access (e.g. %s.value)", ex.Name, ex.Name)
		}
	case *PropertyExpr:
		sym := c.resolve(ex.Binding)
		if sym == nil {
			return errAt(ex.Pos.Line, ex.Pos.Column, "unresolved identifier %q", ex.Binding)
		}
		if sym.kind != symBinding {
			// Instance-only properties are valid only on loop-bound instances.
			return errAt(ex.Pos.Line, ex.Pos.Column,
				"property .%s is only valid on a position bound by for_any_position", ex.Prop)
		}
		if ex.Leg > 0 {
			def := c.positions[sym.position]
			if def == nil || ex.Leg > len(def.Legs) {
				return errAt(ex.Pos.Line, ex.Pos.Column, "position %q has no leg %d", sym.position, ex.Leg)
			}
		}
		return nil
	case *UnaryExpr:
		return c.checkExpr(ex.X)
	case *BinaryExpr:
		if err := c.checkExpr(ex.X); err != nil {
			return err
		}
		return c.checkExpr(ex.Y)
	default:
		return errAt(e.ExprPos().Line, e.ExprPos().Column, "unhandled expression")
	}
}

func (c *checker) checkCond(cond Cond) *CompileError {
	switch cn := cond.(type) {
	case *CondBool:
		return nil
	case *CondNot:
		return c.checkCond(cn.X)
	case *CondBinary:
		if err := c.checkCond(cn.X); err != nil {
			return err
		}
		return c.checkCond(cn.Y)
	case *CondCompare:
		if err := c.checkExpr(cn.X); err != nil {
			return err
		}
		return c.checkExpr(cn.Y)
	default:
		return errAt(cond.CondPos().Line, cond.CondPos().Column, "unhandled condition")
	}
}
