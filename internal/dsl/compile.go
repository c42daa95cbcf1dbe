package dsl

// CompiledStrategy is the validated program plus its resolved symbol
// information. It is immutable and safely shared read-only across all
// iterations of the execution engine.
type CompiledStrategy struct {
	Program *Program
	Source  string

	// Tickers is the universe the strategy was compiled against.
	Tickers []string

	// ScalarSlots is the number of scalar variable slots the interpreter
	// must allocate per run.
	ScalarSlots int

	// Positions maps each position definition name to its template.
	Positions map[string]*PositionExpr

	// OptionSpecs are all pre-parsed option instruments the program trades.
	OptionSpecs []OptionSpec
}

// Compile lexes, parses, and type-checks source against a ticker universe.
// It is a pure function: identical inputs always yield identical results,
// and malformed input is returned as a CompileError, never a panic.
func Compile(source string, validTickers []string) (*CompiledStrategy, *CompileError) {
	tokens, err := newLexer(source, validTickers).lex()
	if err != nil {
		return nil, err
	}

	prog, err := newParser(tokens).parseProgram()
	if err != nil {
		return nil, err
	}

	c := newChecker()
	if err := c.checkProgram(prog); err != nil {
		return nil, err
	}

	return &CompiledStrategy{
		Program:     prog,
		Source:      source,
		Tickers:     validTickers,
		ScalarSlots: c.slots,
		Positions:   c.positions,
		OptionSpecs: c.options,
	}, nil
}
