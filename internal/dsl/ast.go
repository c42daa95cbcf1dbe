package dsl

// Pos is a source position carried on every AST node.
type Pos struct {
	Line   int
	Column int
}

// Program is a compiled statement list evaluated top to bottom each
// trading day.
type Program struct {
	Statements []Statement
}

// Statement is a closed variant set; every interpreter switches
// exhaustively over the concrete types.
type Statement interface {
	stmtNode()
	StmtPos() Pos
}

// DefineStmt binds a name to a position template or a scalar expression.
type DefineStmt struct {
	Pos      Pos
	Name     string
	Slot     int           // scalar slot assigned by the checker (scalar defines)
	Position *PositionExpr // non-nil for position templates
	Value    Expr          // non-nil for scalar defines
}

// SetStmt assigns a scalar.
type SetStmt struct {
	Pos   Pos
	Name  string
	Slot  int
	Value Expr
}

// ActionVerb enumerates trade statements.
type ActionVerb string

// Action verbs
const (
	VerbBuy         ActionVerb = "buy"
	VerbSell        ActionVerb = "sell"
	VerbBuyMax      ActionVerb = "buy_max"
	VerbSellAll     ActionVerb = "sell_all"
	VerbRebalanceTo ActionVerb = "rebalance_to"
)

// TargetKind is the checker-resolved classification of an action target.
type TargetKind int

// Target kinds
const (
	TargetUnresolved TargetKind = iota
	TargetAsset
	TargetPositionDef
	TargetBinding
	TargetOption
)

// Target is what an action trades: an asset, a position definition, an
// inline option spec, or a loop-bound position instance.
type Target struct {
	Pos    Pos
	Name   string
	Option *OptionSpec // inline option instrument
	Kind   TargetKind  // resolved statically
}

// ActionStmt executes a trade.
// buy/sell carry a Quantity; rebalance_to carries a Fraction; buy_max and
// sell_all carry neither.
type ActionStmt struct {
	Pos      Pos
	Verb     ActionVerb
	Quantity Expr
	Fraction Expr
	Target   Target
}

// WhenStmt guards a block; bindings created inside do not survive past end.
type WhenStmt struct {
	Pos   Pos
	Cond  Cond
	Block []Statement
}

// ForAnyPositionStmt iterates open instances of a position definition,
// binding each to Binding for the block's duration.
type ForAnyPositionStmt struct {
	Pos          Pos
	PositionName string
	Binding      string
	Block        []Statement
}

func (*DefineStmt) stmtNode()         {}
func (*SetStmt) stmtNode()            {}
func (*ActionStmt) stmtNode()         {}
func (*WhenStmt) stmtNode()           {}
func (*ForAnyPositionStmt) stmtNode() {}

func (s *DefineStmt) StmtPos() Pos         { return s.Pos }
func (s *SetStmt) StmtPos() Pos            { return s.Pos }
func (s *ActionStmt) StmtPos() Pos         { return s.Pos }
func (s *WhenStmt) StmtPos() Pos           { return s.Pos }
func (s *ForAnyPositionStmt) StmtPos() Pos { return s.Pos }

// PositionLeg is one side of a (possibly multi-leg) position template.
type PositionLeg struct {
	Verb     ActionVerb // buy or sell
	Quantity Expr
	Target   Target // asset or option spec
}

// PositionExpr is a position template: one or more legs joined by "and".
type PositionExpr struct {
	Pos  Pos
	Legs []PositionLeg
}

// Expr is the closed numeric expression variant set.
type Expr interface {
	exprNode()
	ExprPos() Pos
}

// NumberLit is a numeric, percentage, or dollar literal. Percentages are
// stored as fractions.
type NumberLit struct {
	Pos   Pos
	Value float64
}

// AssetRef coerces to the asset's current price in numeric context.
type AssetRef struct {
	Pos    Pos
	Ticker string
}

// IndicatorExpr evaluates a technical indicator at the current day.
type IndicatorExpr struct {
	Pos Pos
	Ref IndicatorRef
}

// PortfolioQuery is a zero-argument portfolio accessor.
type PortfolioQuery struct {
	Pos   Pos
	Query string // cash_available | portfolio_value
}

// PositionQuery is position_quantity(id) / position_value(id) over a
// position definition.
type PositionQuery struct {
	Pos      Pos
	Query    string // position_quantity | position_value
	Position string // resolved position definition name
}

// IdentExpr is a reference to a scalar variable.
type IdentExpr struct {
	Pos  Pos
	Name string
	Slot int // resolved statically
}

// Property enumerates instance-only accessors on loop-bound positions.
type Property string

// Instance properties
const (
	PropQuantity Property = "quantity"
	PropPrice    Property = "price"
	PropValue    Property = "value"
	PropBuyPrice Property = "buy_price"
	PropBuyDate  Property = "buy_date"
	PropDTE      Property = "dte"
	PropDelta    Property = "delta"
	PropGamma    Property = "gamma"
	PropTheta    Property = "theta"
	PropVega     Property = "vega"
	PropRho      Property = "rho"
)

var validProperties = map[Property]struct{}{
	PropQuantity: {}, PropPrice: {}, PropValue: {}, PropBuyPrice: {},
	PropBuyDate: {}, PropDTE: {}, PropDelta: {}, PropGamma: {},
	PropTheta: {}, PropVega: {}, PropRho: {},
}

// PropertyExpr accesses an instance property of a loop-bound position,
// optionally scoped to one leg (p.leg1.delta). Leg 0 means the whole
// position.
type PropertyExpr struct {
	Pos     Pos
	Binding string
	Leg     int
	Prop    Property
}

// UnaryExpr is arithmetic negation.
type UnaryExpr struct {
	Pos Pos
	X   Expr
}

// BinaryExpr is +, -, *, /.
type BinaryExpr struct {
	Pos Pos
	Op  TokenKind // TokenPlus/TokenMinus/TokenStar/TokenSlash
	X   Expr
	Y   Expr
}

func (*NumberLit) exprNode()      {}
func (*AssetRef) exprNode()       {}
func (*IndicatorExpr) exprNode()  {}
func (*PortfolioQuery) exprNode() {}
func (*PositionQuery) exprNode()  {}
func (*IdentExpr) exprNode()      {}
func (*PropertyExpr) exprNode()   {}
func (*UnaryExpr) exprNode()      {}
func (*BinaryExpr) exprNode()     {}

func (e *NumberLit) ExprPos() Pos      { return e.Pos }
func (e *AssetRef) ExprPos() Pos       { return e.Pos }
func (e *IndicatorExpr) ExprPos() Pos  { return e.Pos }
func (e *PortfolioQuery) ExprPos() Pos { return e.Pos }
func (e *PositionQuery) ExprPos() Pos  { return e.Pos }
func (e *IdentExpr) ExprPos() Pos      { return e.Pos }
func (e *PropertyExpr) ExprPos() Pos   { return e.Pos }
func (e *UnaryExpr) ExprPos() Pos      { return e.Pos }
func (e *BinaryExpr) ExprPos() Pos     { return e.Pos }

// Cond is the closed boolean condition variant set:
// or-of-and-of-(optionally negated) comparisons.
type Cond interface {
	condNode()
	CondPos() Pos
}

// CondBinary joins two conditions with and/or.
type CondBinary struct {
	Pos Pos
	Op  TokenKind // TokenAnd / TokenOr
	X   Cond
	Y   Cond
}

// CondNot negates a condition.
type CondNot struct {
	Pos Pos
	X   Cond
}

// CondCompare compares two numeric expressions.
type CondCompare struct {
	Pos Pos
	Op  TokenKind // TokenGT/TokenLT/TokenGE/TokenLE/TokenEQ/TokenNE
	X   Expr
	Y   Expr
}

// CondBool is a true/false literal.
type CondBool struct {
	Pos   Pos
	Value bool
}

func (*CondBinary) condNode()  {}
func (*CondNot) condNode()     {}
func (*CondCompare) condNode() {}
func (*CondBool) condNode()    {}

func (c *CondBinary) CondPos() Pos  { return c.Pos }
func (c *CondNot) CondPos() Pos    { return c.Pos }
func (c *CondCompare) CondPos() Pos { return c.Pos }
func (c *CondBool) CondPos() Pos    { return c.Pos }
