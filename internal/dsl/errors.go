// Package dsl compiles strategy source text into an executable
// representation. Compilation is a pure function of the source and the
// valid ticker universe: lexing, parsing, and type checking either produce
// an immutable CompiledStrategy or a positioned CompileError. Nothing here
// panics across the public boundary.
package dsl

import "fmt"

// CompileError is a lexical, syntactic, or semantic violation localized to
// a source position. The first error found is reported.
type CompileError struct {
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

func errAt(line, col int, format string, args ...interface{}) *CompileError {
	return &CompileError{Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}
