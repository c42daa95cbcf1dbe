package dsl

// TokenKind classifies lexer output.
type TokenKind int

// Token kinds
const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenNumber  // 1.5
	TokenPercent // 50% (value stored as fraction)
	TokenDollar  // $100
	TokenAsset   // bare identifier matching the ticker universe
	TokenOptionSpec
	TokenIndicator

	// Keywords
	TokenDefine
	TokenSet
	TokenTo
	TokenAs
	TokenWhen
	TokenEnd
	TokenForAnyPosition
	TokenBuy
	TokenSell
	TokenBuyMax
	TokenSellAll
	TokenRebalanceTo
	TokenAnd
	TokenOr
	TokenNot
	TokenTrue
	TokenFalse

	// Operators and punctuation
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenLParen
	TokenRParen
	TokenColon
	TokenDot
	TokenComma
	TokenGT
	TokenLT
	TokenGE
	TokenLE
	TokenEQ
	TokenNE
)

var keywords = map[string]TokenKind{
	"define":           TokenDefine,
	"set":              TokenSet,
	"to":               TokenTo,
	"as":               TokenAs,
	"when":             TokenWhen,
	"end":              TokenEnd,
	"for_any_position": TokenForAnyPosition,
	"buy":              TokenBuy,
	"sell":             TokenSell,
	"buy_max":          TokenBuyMax,
	"sell_all":         TokenSellAll,
	"rebalance_to":     TokenRebalanceTo,
	"and":              TokenAnd,
	"or":               TokenOr,
	"not":              TokenNot,
	"true":             TokenTrue,
	"false":            TokenFalse,
}

// GreekKind names the option sensitivity targeted by an option spec.
type GreekKind string

// Greek constants
const (
	GreekDelta GreekKind = "delta"
	GreekGamma GreekKind = "gamma"
	GreekTheta GreekKind = "theta"
	GreekVega  GreekKind = "vega"
	GreekRho   GreekKind = "rho"
)

// OptionSpec is a structured option token pre-parsed at lex time:
// {asset}_{int}dte_{(minus)?float}{greek}.
type OptionSpec struct {
	Underlying  string
	DTE         int
	Greek       GreekKind
	GreekTarget float64 // signed; minus prefix yields a negative target
}

// IndicatorKind names a technical indicator family.
type IndicatorKind string

// Indicator constants
const (
	IndicatorSMA       IndicatorKind = "sma"
	IndicatorEMA       IndicatorKind = "ema"
	IndicatorRSI       IndicatorKind = "rsi"
	IndicatorVol       IndicatorKind = "vol"
	IndicatorReturn    IndicatorKind = "return"
	IndicatorPastPrice IndicatorKind = "pastprice"
)

// IndicatorRef is a structured indicator token:
// {asset}_{sma|ema|rsi|vol|return|pastprice}(_{int})?.
type IndicatorRef struct {
	Ticker string
	Kind   IndicatorKind
	Period int // 0 only for vol
}

// Token is one lexed unit with its source position.
type Token struct {
	Kind   TokenKind
	Text   string
	Line   int
	Column int

	Number    float64       // TokenNumber/TokenPercent/TokenDollar
	Option    *OptionSpec   // TokenOptionSpec
	Indicator *IndicatorRef // TokenIndicator
}
