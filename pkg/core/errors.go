package core

import "fmt"

// ParseError reports an unreadable template or malformed marker usage.
// It is fatal to the whole run: no case can be generated from a template
// that cannot be read.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CompileError reports a formula evaluation failure or an undefined
// variable reference. It is scoped to a single case; compilation of other
// cases continues.
type CompileError struct {
	Label   string // case label
	File    string // template file containing the formula
	Formula string // formula text, empty for non-formula failures
	Err     error
}

func (e *CompileError) Error() string {
	if e.Formula != "" {
		return fmt.Sprintf("compile case %s: %s: formula %q: %v", e.Label, e.File, e.Formula, e.Err)
	}
	return fmt.Sprintf("compile case %s: %s: %v", e.Label, e.File, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// CalculatorError reports a non-zero exit, transport failure, or timeout
// from a calculator. It is scoped to a single case attempt and drives
// failover to the next calculator in the chain.
type CalculatorError struct {
	URI     string
	Label   string
	Command string
	Err     error
}

func (e *CalculatorError) Error() string {
	return fmt.Sprintf("calculator %s: case %s: %v", e.URI, e.Label, e.Err)
}

func (e *CalculatorError) Unwrap() error { return e.Err }

// CacheMissError signals that a cache calculator declines a case because
// no prior result with a matching fingerprint exists. It is not a true
// error: the dispatcher passes the case to the next calculator.
type CacheMissError struct {
	Dir   string // prior results directory consulted
	Label string
}

func (e *CacheMissError) Error() string {
	return fmt.Sprintf("cache %s: no reusable result for case %s", e.Dir, e.Label)
}

// AggregationError reports an extraction command failure for a single
// output field of a single case. The field is recorded as missing and the
// remaining fields are still extracted.
type AggregationError struct {
	Label  string
	Output string
	Err    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("extract %s for case %s: %v", e.Output, e.Label, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
