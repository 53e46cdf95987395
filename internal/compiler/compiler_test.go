package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/casegrid-labs/casegrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := New(Config{})
	require.NoError(t, err)
	return c
}

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readCase(t *testing.T, cs *core.Case) string {
	t.Helper()
	data, err := os.ReadFile(cs.InputPath)
	require.NoError(t, err)
	return string(data)
}

func TestCompileTwoCases(t *testing.T) {
	template := writeTemplate(t, "x=$x")
	vars := core.VarSet{{Name: "x", Values: []any{1, 2}}}

	cases, err := newTestCompiler(t).Compile(context.Background(), template, vars, t.TempDir())
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, "x=1", cases[0].Label)
	assert.Equal(t, "x=1", readCase(t, cases[0]))
	assert.Equal(t, "x=2", cases[1].Label)
	assert.Equal(t, "x=2", readCase(t, cases[1]))
}

func TestCompileCardinality(t *testing.T) {
	template := writeTemplate(t, "$a $b $c")
	vars := core.VarSet{
		{Name: "a", Values: []any{1, 2, 3}},
		{Name: "b", Values: []any{"x", "y"}},
		{Name: "c", Values: []any{0.5}},
	}

	cases, err := newTestCompiler(t).Compile(context.Background(), template, vars, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, cases, 6)

	// First declared variable varies slowest.
	assert.Equal(t, "a=1,b=x", cases[0].Label)
	assert.Equal(t, "a=1,b=y", cases[1].Label)
	assert.Equal(t, "a=2,b=x", cases[2].Label)
	assert.Equal(t, "a=3,b=y", cases[5].Label)
}

func TestCompileLeavesNoUnresolvedMarkers(t *testing.T) {
	template := writeTemplate(t, "w=$w h=${h} area=@{w * h}\n")
	vars := core.VarSet{
		{Name: "w", Values: []any{2, 3}},
		{Name: "h", Values: []any{4}},
	}

	c := newTestCompiler(t)
	cases, err := c.Compile(context.Background(), template, vars, t.TempDir())
	require.NoError(t, err)

	for _, cs := range cases {
		body := readCase(t, cs)
		assert.NotContains(t, body, "$")
		assert.NotContains(t, body, "@{")
	}
	assert.Equal(t, "w=2 h=4 area=8\n", readCase(t, cases[0]))
	assert.Equal(t, "w=3 h=4 area=12\n", readCase(t, cases[1]))
}

func TestCompileFormulaSharedContextPerCase(t *testing.T) {
	// The first block defines a helper, the second uses it. Both cases
	// must resolve independently: the context is per-case, not cross-case.
	template := writeTemplate(t, "@{def twice(v):\n    return 2 * v\n}result=@{twice(n)}\n")
	vars := core.VarSet{{Name: "n", Values: []any{5, 8}}}

	cases, err := newTestCompiler(t).Compile(context.Background(), template, vars, t.TempDir())
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, core.CaseStatusPending, cases[0].Status)
	assert.Equal(t, "result=10\n", readCase(t, cases[0]))
	assert.Equal(t, "result=16\n", readCase(t, cases[1]))
}

func TestCompileUndefinedVariable(t *testing.T) {
	template := writeTemplate(t, "x=$x missing=$missing")
	vars := core.VarSet{{Name: "x", Values: []any{1}}}

	cases, err := newTestCompiler(t).Compile(context.Background(), template, vars, t.TempDir())
	require.NoError(t, err)
	require.Len(t, cases, 1)

	assert.Equal(t, core.CaseStatusFailed, cases[0].Status)
	assert.Contains(t, cases[0].Error, "undefined variable")
}

func TestCompileBadFormulaDoesNotAbortBatch(t *testing.T) {
	// The formula divides by x, so exactly one case fails.
	template := writeTemplate(t, "inv=@{10 // x}\n")
	vars := core.VarSet{{Name: "x", Values: []any{0, 2}}}

	cases, err := newTestCompiler(t).Compile(context.Background(), template, vars, t.TempDir())
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, core.CaseStatusFailed, cases[0].Status)
	assert.NotEmpty(t, cases[0].Error)
	assert.Equal(t, core.CaseStatusPending, cases[1].Status)
	assert.Equal(t, "inv=5\n", readCase(t, cases[1]))
}

func TestCompileDirectoryTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.txt"), []byte("v=$v"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "extra.txt"), []byte("twice=@{v * 2}"), 0o600))

	vars := core.VarSet{{Name: "v", Values: []any{3, 4}}}
	cases, err := newTestCompiler(t).Compile(context.Background(), dir, vars, t.TempDir())
	require.NoError(t, err)
	require.Len(t, cases, 2)

	main, err := os.ReadFile(filepath.Join(cases[0].InputPath, "main.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v=3", string(main))

	extra, err := os.ReadFile(filepath.Join(cases[0].InputPath, "sub", "extra.txt"))
	require.NoError(t, err)
	assert.Equal(t, "twice=6", string(extra))
}

func TestCompileUnreadableTemplate(t *testing.T) {
	vars := core.VarSet{{Name: "x", Values: []any{1}}}
	_, err := newTestCompiler(t).Compile(context.Background(), filepath.Join(t.TempDir(), "gone"), vars, t.TempDir())
	require.Error(t, err)

	var parseErr *core.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestEnumerateCasesScalarOnly(t *testing.T) {
	cases := EnumerateCases(core.VarSet{{Name: "a", Values: []any{1}}})
	require.Len(t, cases, 1)
	assert.Equal(t, "case", cases[0].Label)
	assert.Equal(t, 1, cases[0].Vars["a"])
}
