// Package formula provides per-case evaluation of embedded formula blocks
// using Starlark. Each case owns one Env, so helper functions and variables
// defined by an earlier block are visible to later blocks of the same case
// without leaking across concurrently compiled cases.
package formula

import (
	"fmt"

	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Env is the evaluation environment for one case. It accumulates globals
// produced by statement blocks and exposes them to later expressions.
type Env struct {
	thread      *starlark.Thread
	predeclared starlark.StringDict
	globals     starlark.StringDict
}

// NewEnv creates an environment seeded with the math and time modules and
// any helper namespaces loaded from .star files.
func NewEnv(name string, helpers starlark.StringDict) *Env {
	predeclared := starlark.StringDict{
		"math": math.Module,
		"time": time.Module,
	}
	for k, v := range helpers {
		predeclared[k] = v
	}

	return &Env{
		thread: &starlark.Thread{
			Name: name,
			Print: func(_ *starlark.Thread, _ string) {
				// Formula evaluation does not print.
			},
		},
		predeclared: predeclared,
		globals:     make(starlark.StringDict),
	}
}

// combined merges predeclared names with the globals accumulated so far.
// Globals win, so a formula may shadow a helper namespace.
func (e *Env) combined() starlark.StringDict {
	d := make(starlark.StringDict, len(e.predeclared)+len(e.globals))
	for k, v := range e.predeclared {
		d[k] = v
	}
	for k, v := range e.globals {
		d[k] = v
	}
	return d
}

// Eval evaluates a single expression and returns its value.
func (e *Env) Eval(expr, file string) (starlark.Value, error) {
	v, err := starlark.Eval(e.thread, file, expr, e.combined()) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", expr, err)
	}
	return v, nil
}

// Exec executes a block of statements (defs, assignments) and merges the
// resulting bindings into the environment's globals.
func (e *Env) Exec(block, file string) error {
	globals, err := starlark.ExecFile(e.thread, file, block, e.combined()) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		return fmt.Errorf("exec block: %w", err)
	}
	for k, v := range globals {
		e.globals[k] = v
	}
	return nil
}

// EvalBlock evaluates a formula block, deciding between expression and
// statement form. Expression blocks return their textual value; statement
// blocks extend the environment and return the empty string.
func (e *Env) EvalBlock(block, file string) (string, error) {
	if _, err := syntax.ParseExpr(file, block, 0); err == nil { //nolint:staticcheck // SA1019: will migrate to ParseExprOptions later
		v, err := e.Eval(block, file)
		if err != nil {
			return "", err
		}
		return ValueString(v), nil
	}

	if err := e.Exec(block, file); err != nil {
		return "", err
	}
	return "", nil
}

// Define binds a name directly in the environment's globals. The compiler
// uses this to expose the case's input variables to formulas.
func (e *Env) Define(name string, v starlark.Value) {
	e.globals[name] = v
}

// ValueString renders a Starlark value the way it is spliced into the
// compiled template: strings unquoted, None empty, everything else via the
// Starlark printed form.
func ValueString(v starlark.Value) string {
	switch x := v.(type) {
	case starlark.String:
		return string(x)
	case starlark.NoneType:
		return ""
	default:
		return v.String()
	}
}

// FromGo converts a scalar Go value decoded from the variables file into
// its Starlark equivalent.
func FromGo(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(x)
	case int:
		return starlark.MakeInt(x)
	case int64:
		return starlark.MakeInt64(x)
	case float64:
		return starlark.Float(x)
	case string:
		return starlark.String(x)
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			elems[i] = FromGo(e)
		}
		return starlark.NewList(elems)
	default:
		return starlark.String(fmt.Sprintf("%v", x))
	}
}
