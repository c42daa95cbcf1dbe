package dsl

import (
	"regexp"
	"strconv"
	"strings"
)

// Structured token patterns, tried before the generic identifier fallback.
var (
	optionSpecRe = regexp.MustCompile(`^([a-z][a-z0-9]*)_([0-9]+)dte_(minus)?([0-9]+(?:\.[0-9]+)?)(delta|gamma|theta|vega|rho)$`)
	indicatorRe  = regexp.MustCompile(`^([a-z][a-z0-9]*)_(sma|ema|rsi|vol|return|pastprice)(?:_([0-9]+))?$`)
	leveragedRe  = regexp.MustCompile(`^([a-z][a-z0-9]*)_(?:minus)?[0-9]+x$`)
)

// lexer scans strategy source into tokens. Tickers are matched
// case-insensitively; everything is lowercased before keyword and pattern
// checks.
type lexer struct {
	src     string
	pos     int
	line    int
	col     int
	tickers map[string]struct{} // lowercase ticker universe
}

func newLexer(src string, validTickers []string) *lexer {
	set := make(map[string]struct{}, len(validTickers))
	for _, t := range validTickers {
		set[strings.ToLower(t)] = struct{}{}
	}
	return &lexer{src: src, line: 1, col: 1, tickers: set}
}

func (l *lexer) isTicker(name string) bool {
	_, ok := l.tickers[name]
	return ok
}

// lex scans the entire source. The first lexical violation stops the scan.
func (l *lexer) lex() ([]Token, *CompileError) {
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.peekByte()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '#':
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (Token, *CompileError) {
	l.skipSpaceAndComments()
	line, col := l.line, l.col
	if l.pos >= len(l.src) {
		return Token{Kind: TokenEOF, Line: line, Column: col}, nil
	}

	c := l.peekByte()
	switch {
	case isLetter(c):
		return l.lexWord(line, col)
	case isDigit(c):
		return l.lexNumber(line, col, false)
	case c == '$':
		l.advance()
		if !isDigit(l.peekByte()) {
			return Token{}, errAt(line, col, "expected number after '$'")
		}
		return l.lexNumber(line, col, true)
	}

	l.advance()
	simple := func(kind TokenKind, text string) (Token, *CompileError) {
		return Token{Kind: kind, Text: text, Line: line, Column: col}, nil
	}
	switch c {
	case '+':
		return simple(TokenPlus, "+")
	case '-':
		return simple(TokenMinus, "-")
	case '*':
		return simple(TokenStar, "*")
	case '/':
		return simple(TokenSlash, "/")
	case '(':
		return simple(TokenLParen, "(")
	case ')':
		return simple(TokenRParen, ")")
	case ':':
		return simple(TokenColon, ":")
	case '.':
		return simple(TokenDot, ".")
	case ',':
		return simple(TokenComma, ",")
	case '>':
		if l.peekByte() == '=' {
			l.advance()
			return simple(TokenGE, ">=")
		}
		return simple(TokenGT, ">")
	case '<':
		if l.peekByte() == '=' {
			l.advance()
			return simple(TokenLE, "<=")
		}
		return simple(TokenLT, "<")
	case '=':
		if l.peekByte() == '=' {
			l.advance()
			return simple(TokenEQ, "==")
		}
		return Token{}, errAt(line, col, "unexpected '='; use '==' for comparison")
	case '!':
		if l.peekByte() == '=' {
			l.advance()
			return simple(TokenNE, "!=")
		}
		return Token{}, errAt(line, col, "unexpected '!'")
	}
	return Token{}, errAt(line, col, "unexpected character %q", string(c))
}

// lexNumber scans a numeric literal, optionally dollar-prefixed (already
// consumed) or percent-suffixed. Percentages are stored as fractions.
func (l *lexer) lexNumber(line, col int, dollar bool) (Token, *CompileError) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.peekByte()) {
		l.advance()
	}
	if l.peekByte() == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
		l.advance()
		for l.pos < len(l.src) && isDigit(l.peekByte()) {
			l.advance()
		}
	}
	text := l.src[start:l.pos]
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, errAt(line, col, "invalid number %q", text)
	}

	if dollar {
		return Token{Kind: TokenDollar, Text: "$" + text, Line: line, Column: col, Number: value}, nil
	}
	if l.peekByte() == '%' {
		l.advance()
		return Token{Kind: TokenPercent, Text: text + "%", Line: line, Column: col, Number: value / 100}, nil
	}
	return Token{Kind: TokenNumber, Text: text, Line: line, Column: col, Number: value}, nil
}

// lexWord scans an identifier-like word. The option-spec pattern may embed a
// dot inside its decimal fraction, so the scan first tries the longest run
// including dots against that pattern, then falls back to a dot-free word.
func (l *lexer) lexWord(line, col int) (Token, *CompileError) {
	start := l.pos
	endWithDots := l.pos
	for endWithDots < len(l.src) && isWordOrDot(l.src[endWithDots]) {
		endWithDots++
	}

	longest := strings.ToLower(l.src[start:endWithDots])
	if m := optionSpecRe.FindStringSubmatch(longest); m != nil && l.isTicker(m[1]) {
		l.consumeN(endWithDots - start)
		spec, err := parseOptionSpec(m, line, col)
		if err != nil {
			return Token{}, err
		}
		return Token{Kind: TokenOptionSpec, Text: longest, Line: line, Column: col, Option: spec}, nil
	}

	end := l.pos
	for end < len(l.src) && isWord(l.src[end]) {
		end++
	}
	word := strings.ToLower(l.src[start:end])
	l.consumeN(end - start)

	if kind, ok := keywords[word]; ok {
		return Token{Kind: kind, Text: word, Line: line, Column: col}, nil
	}
	if m := indicatorRe.FindStringSubmatch(word); m != nil && l.isTicker(m[1]) {
		ref, err := parseIndicatorRef(m, line, col)
		if err != nil {
			return Token{}, err
		}
		return Token{Kind: TokenIndicator, Text: word, Line: line, Column: col, Indicator: ref}, nil
	}
	if m := leveragedRe.FindStringSubmatch(word); m != nil && (l.isTicker(word) || l.isTicker(m[1])) {
		return Token{Kind: TokenAsset, Text: word, Line: line, Column: col}, nil
	}
	if l.isTicker(word) {
		return Token{Kind: TokenAsset, Text: word, Line: line, Column: col}, nil
	}
	return Token{Kind: TokenIdent, Text: word, Line: line, Column: col}, nil
}

func (l *lexer) consumeN(n int) {
	for i := 0; i < n; i++ {
		l.advance()
	}
}

func parseOptionSpec(m []string, line, col int) (*OptionSpec, *CompileError) {
	dte, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, errAt(line, col, "invalid DTE in option spec %q", m[0])
	}
	target, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return nil, errAt(line, col, "invalid greek target in option spec %q", m[0])
	}
	if m[3] == "minus" {
		target = -target
	}
	return &OptionSpec{
		Underlying:  m[1],
		DTE:         dte,
		Greek:       GreekKind(m[5]),
		GreekTarget: target,
	}, nil
}

func parseIndicatorRef(m []string, line, col int) (*IndicatorRef, *CompileError) {
	kind := IndicatorKind(m[2])
	if m[3] == "" {
		// Only vol defaults its window.
		if kind != IndicatorVol {
			return nil, errAt(line, col, "indicator %s_%s requires a period", m[1], m[2])
		}
		return &IndicatorRef{Ticker: m[1], Kind: kind}, nil
	}
	period, err := strconv.Atoi(m[3])
	if err != nil || period < 1 {
		return nil, errAt(line, col, "invalid indicator period %q", m[3])
	}
	return &IndicatorRef{Ticker: m[1], Kind: kind, Period: period}, nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWord(c byte) bool { return isLetter(c) || isDigit(c) }

func isWordOrDot(c byte) bool { return isWord(c) || c == '.' }
