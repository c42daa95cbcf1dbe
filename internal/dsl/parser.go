package dsl

import "strconv"

// parser is a recursive-descent parser over the lexed token stream.
type parser struct {
	tokens []Token
	pos    int
}

func newParser(tokens []Token) *parser {
	return &parser{tokens: tokens}
}

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) next() Token {
	t := p.tokens[p.pos]
	if t.Kind != TokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind TokenKind, what string) (Token, *CompileError) {
	t := p.peek()
	if t.Kind != kind {
		return Token{}, errAt(t.Line, t.Column, "expected %s, found %q", what, tokenText(t))
	}
	return p.next(), nil
}

func tokenText(t Token) string {
	if t.Kind == TokenEOF {
		return "end of input"
	}
	return t.Text
}

func pos(t Token) Pos { return Pos{Line: t.Line, Column: t.Column} }

// parseProgram parses until EOF.
func (p *parser) parseProgram() (*Program, *CompileError) {
	var stmts []Statement
	for p.peek().Kind != TokenEOF {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return &Program{Statements: stmts}, nil
}

func (p *parser) parseStatement() (Statement, *CompileError) {
	t := p.peek()
	switch t.Kind {
	case TokenDefine:
		return p.parseDefine()
	case TokenSet:
		return p.parseSet()
	case TokenBuy, TokenSell, TokenBuyMax, TokenSellAll, TokenRebalanceTo:
		return p.parseAction()
	case TokenWhen:
		return p.parseWhen()
	case TokenForAnyPosition:
		return p.parseForAnyPosition()
	default:
		return nil, errAt(t.Line, t.Column, "expected statement, found %q", tokenText(t))
	}
}

// parseDefine: define NAME as (position-template | expr).
// A template starts with buy or sell.
func (p *parser) parseDefine() (Statement, *CompileError) {
	kw := p.next()
	name, err := p.expect(TokenIdent, "name after 'define'")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAs, "'as'"); err != nil {
		return nil, err
	}

	if k := p.peek().Kind; k == TokenBuy || k == TokenSell {
		posExpr, err := p.parsePositionExpr()
		if err != nil {
			return nil, err
		}
		return &DefineStmt{Pos: pos(kw), Name: name.Text, Position: posExpr}, nil
	}

	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &DefineStmt{Pos: pos(kw), Name: name.Text, Value: value}, nil
}

func (p *parser) parseSet() (Statement, *CompileError) {
	kw := p.next()
	name, err := p.expect(TokenIdent, "name after 'set'")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenTo, "'to'"); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &SetStmt{Pos: pos(kw), Name: name.Text, Value: value}, nil
}

// parsePositionExpr: leg { 'and' leg }.
func (p *parser) parsePositionExpr() (*PositionExpr, *CompileError) {
	start := p.peek()
	var legs []PositionLeg
	for {
		leg, err := p.parseLeg()
		if err != nil {
			return nil, err
		}
		legs = append(legs, *leg)
		if p.peek().Kind != TokenAnd {
			break
		}
		p.next()
	}
	return &PositionExpr{Pos: pos(start), Legs: legs}, nil
}

func (p *parser) parseLeg() (*PositionLeg, *CompileError) {
	verb := p.next()
	if verb.Kind != TokenBuy && verb.Kind != TokenSell {
		return nil, errAt(verb.Line, verb.Column, "expected buy or sell in position template, found %q", tokenText(verb))
	}
	qty, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	target, err := p.parseTarget()
	if err != nil {
		return nil, err
	}
	v := VerbBuy
	if verb.Kind == TokenSell {
		v = VerbSell
	}
	return &PositionLeg{Verb: v, Quantity: qty, Target: *target}, nil
}

// parseTarget: asset | option spec | identifier (position definition or
// loop binding, classified by the checker).
func (p *parser) parseTarget() (*Target, *CompileError) {
	t := p.peek()
	switch t.Kind {
	case TokenAsset:
		p.next()
		return &Target{Pos: pos(t), Name: t.Text, Kind: TargetAsset}, nil
	case TokenOptionSpec:
		p.next()
		return &Target{Pos: pos(t), Name: t.Text, Option: t.Option, Kind: TargetOption}, nil
	case TokenIdent:
		p.next()
		return &Target{Pos: pos(t), Name: t.Text}, nil
	default:
		return nil, errAt(t.Line, t.Column, "expected trade target, found %q", tokenText(t))
	}
}

func (p *parser) parseAction() (Statement, *CompileError) {
	verb := p.next()
	stmt := &ActionStmt{Pos: pos(verb)}

	switch verb.Kind {
	case TokenBuy, TokenSell:
		if verb.Kind == TokenBuy {
			stmt.Verb = VerbBuy
		} else {
			stmt.Verb = VerbSell
		}
		qty, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Quantity = qty
	case TokenBuyMax:
		stmt.Verb = VerbBuyMax
	case TokenSellAll:
		stmt.Verb = VerbSellAll
	case TokenRebalanceTo:
		stmt.Verb = VerbRebalanceTo
		frac, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Fraction = frac
	}

	target, err := p.parseTarget()
	if err != nil {
		return nil, err
	}
	stmt.Target = *target
	return stmt, nil
}

func (p *parser) parseWhen() (Statement, *CompileError) {
	kw := p.next()
	cond, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon, "':' after when condition"); err != nil {
		return nil, err
	}
	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhenStmt{Pos: pos(kw), Cond: cond, Block: block}, nil
}

func (p *parser) parseForAnyPosition() (Statement, *CompileError) {
	kw := p.next()
	name, err := p.expect(TokenIdent, "position definition name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAs, "'as'"); err != nil {
		return nil, err
	}
	binding, err := p.expect(TokenIdent, "binding name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon, "':'"); err != nil {
		return nil, err
	}
	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForAnyPositionStmt{Pos: pos(kw), PositionName: name.Text, Binding: binding.Text, Block: block}, nil
}

// parseBlock parses statements until the matching 'end'.
func (p *parser) parseBlock() ([]Statement, *CompileError) {
	var stmts []Statement
	for {
		t := p.peek()
		if t.Kind == TokenEnd {
			p.next()
			return stmts, nil
		}
		if t.Kind == TokenEOF {
			return nil, errAt(t.Line, t.Column, "missing 'end'")
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
}

// Conditions: or-of-and-of-(optionally negated) comparisons.

func (p *parser) parseCond() (Cond, *CompileError) {
	left, err := p.parseAndCond()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokenOr {
		op := p.next()
		right, err := p.parseAndCond()
		if err != nil {
			return nil, err
		}
		left = &CondBinary{Pos: pos(op), Op: TokenOr, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseAndCond() (Cond, *CompileError) {
	left, err := p.parseNotCond()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokenAnd {
		op := p.next()
		right, err := p.parseNotCond()
		if err != nil {
			return nil, err
		}
		left = &CondBinary{Pos: pos(op), Op: TokenAnd, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseNotCond() (Cond, *CompileError) {
	if t := p.peek(); t.Kind == TokenNot {
		p.next()
		x, err := p.parseNotCond()
		if err != nil {
			return nil, err
		}
		return &CondNot{Pos: pos(t), X: x}, nil
	}
	return p.parsePrimaryCond()
}

// parsePrimaryCond handles boolean literals, comparisons, and parenthesized
// conditions. A '(' is ambiguous between a grouped condition and a grouped
// arithmetic expression; the comparison parse is tried first and backtracked
// on failure.
func (p *parser) parsePrimaryCond() (Cond, *CompileError) {
	t := p.peek()
	switch t.Kind {
	case TokenTrue:
		p.next()
		return &CondBool{Pos: pos(t), Value: true}, nil
	case TokenFalse:
		p.next()
		return &CondBool{Pos: pos(t), Value: false}, nil
	}

	mark := p.pos
	cmp, cmpErr := p.parseComparison()
	if cmpErr == nil {
		return cmp, nil
	}
	p.pos = mark

	if t.Kind == TokenLParen {
		p.next()
		inner, err := p.parseCond()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, cmpErr
}

func (p *parser) parseComparison() (Cond, *CompileError) {
	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	op := p.peek()
	switch op.Kind {
	case TokenGT, TokenLT, TokenGE, TokenLE, TokenEQ, TokenNE:
		p.next()
	default:
		return nil, errAt(op.Line, op.Column, "expected comparison operator, found %q", tokenText(op))
	}
	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &CondCompare{Pos: pos(op), Op: op.Kind, X: lhs, Y: rhs}, nil
}

// Expressions: additive > multiplicative > unary.

func (p *parser) parseExpr() (Expr, *CompileError) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op.Kind != TokenPlus && op.Kind != TokenMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: pos(op), Op: op.Kind, X: left, Y: right}
	}
}

func (p *parser) parseMul() (Expr, *CompileError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op.Kind != TokenStar && op.Kind != TokenSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: pos(op), Op: op.Kind, X: left, Y: right}
	}
}

func (p *parser) parseUnary() (Expr, *CompileError) {
	if t := p.peek(); t.Kind == TokenMinus {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: pos(t), X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, *CompileError) {
	t := p.peek()
	switch t.Kind {
	case TokenNumber, TokenPercent, TokenDollar:
		p.next()
		return &NumberLit{Pos: pos(t), Value: t.Number}, nil
	case TokenAsset:
		p.next()
		return &AssetRef{Pos: pos(t), Ticker: t.Text}, nil
	case TokenIndicator:
		p.next()
		return &IndicatorExpr{Pos: pos(t), Ref: *t.Indicator}, nil
	case TokenOptionSpec:
		return nil, errAt(t.Line, t.Column, "option spec %q is only valid as a trade instrument", t.Text)
	case TokenLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokenIdent:
		return p.parseIdentExpr()
	default:
		return nil, errAt(t.Line, t.Column, "expected expression, found %q", tokenText(t))
	}
}

// parseIdentExpr disambiguates plain identifiers: portfolio queries,
// position queries, property access on a binding, or a scalar reference.
func (p *parser) parseIdentExpr() (Expr, *CompileError) {
	t := p.next()

	switch t.Text {
	case "cash_available", "portfolio_value":
		return &PortfolioQuery{Pos: pos(t), Query: t.Text}, nil
	case "position_quantity", "position_value":
		if _, err := p.expect(TokenLParen, "'(' after "+t.Text); err != nil {
			return nil, err
		}
		arg, err := p.expect(TokenIdent, "position definition name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return &PositionQuery{Pos: pos(t), Query: t.Text, Position: arg.Text}, nil
	}

	if p.peek().Kind != TokenDot {
		return &IdentExpr{Pos: pos(t), Name: t.Text}, nil
	}
	p.next()

	first, err := p.expect(TokenIdent, "property name after '.'")
	if err != nil {
		return nil, err
	}

	leg := 0
	propTok := first
	if n, ok := legIndex(first.Text); ok {
		leg = n
		if _, err := p.expect(TokenDot, "'.' after leg accessor"); err != nil {
			return nil, err
		}
		propTok, err = p.expect(TokenIdent, "property name after leg accessor")
		if err != nil {
			return nil, err
		}
	}

	prop := Property(propTok.Text)
	if _, ok := validProperties[prop]; !ok {
		return nil, errAt(propTok.Line, propTok.Column, "unknown position property %q", propTok.Text)
	}
	return &PropertyExpr{Pos: pos(t), Binding: t.Text, Leg: leg, Prop: prop}, nil
}

// legIndex parses "legN" accessors; leg numbering is 1-based in source.
func legIndex(s string) (int, bool) {
	if len(s) < 4 || s[:3] != "leg" {
		return 0, false
	}
	n, err := strconv.Atoi(s[3:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
