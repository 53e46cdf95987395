package calculator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/casegrid-labs/casegrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURIs(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{name: "shell", uri: "sh://./solver.sh"},
		{name: "shell with args", uri: "sh://python solve.py --fast"},
		{name: "ssh", uri: "ssh://alice@cluster.example.org/bin/solve"},
		{name: "ssh with port", uri: "ssh://alice@cluster:2222/solve --all"},
		{name: "missing scheme", uri: "solver.sh", wantErr: true},
		{name: "unknown scheme", uri: "ftp://somewhere", wantErr: true},
		{name: "empty shell body", uri: "sh://", wantErr: true},
		{name: "ssh without user", uri: "ssh://host/cmd", wantErr: true},
		{name: "ssh without command", uri: "ssh://user@host", wantErr: true},
		{name: "cache missing dir", uri: "cache:///does/not/exist", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.uri, Options{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.uri, c.URI())
		})
	}
}

func TestParseCacheURI(t *testing.T) {
	dir := t.TempDir()
	c, err := Parse("cache://"+dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, "cache://"+dir, c.URI())
}

func TestParseAllKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	calcs, err := ParseAll([]string{"cache://" + dir, "sh://echo hi"}, Options{})
	require.NoError(t, err)
	require.Len(t, calcs, 2)
	assert.Equal(t, "cache://"+dir, calcs[0].URI())
	assert.Equal(t, "sh://echo hi", calcs[1].URI())
}

func TestParseAllEmpty(t *testing.T) {
	_, err := ParseAll(nil, Options{})
	assert.Error(t, err)
}

func newCase(t *testing.T, body string) *core.Case {
	t.Helper()
	dir := t.TempDir()
	inputDir := filepath.Join(dir, core.InputDirName)
	require.NoError(t, os.MkdirAll(inputDir, 0o750))
	input := filepath.Join(inputDir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte(body), 0o600))

	return &core.Case{
		Label:     "x=1",
		Vars:      map[string]any{"x": 1},
		Dir:       dir,
		InputPath: input,
		Status:    core.CaseStatusPending,
	}
}

func TestShellRunCapturesOutput(t *testing.T) {
	cs := newCase(t, "x=1\n")

	calc, err := Parse("sh://cat", Options{})
	require.NoError(t, err)

	command, err := calc.Run(context.Background(), cs)
	require.NoError(t, err)
	assert.Equal(t, "cat "+cs.InputPath, command)

	out, err := os.ReadFile(filepath.Join(cs.Dir, StdoutFile))
	require.NoError(t, err)
	assert.Equal(t, "x=1\n", string(out))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "/tmp/results/x=1/input", shellQuote("/tmp/results/x=1/input"))
	assert.Equal(t, `'/tmp/my results/x=a b/input'`, shellQuote("/tmp/my results/x=a b/input"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	assert.Equal(t, "''", shellQuote(""))
}

func TestShellRunQuotesSpacedInputPath(t *testing.T) {
	// A string variable value with a space puts the space into the case
	// label and therefore into the input path.
	dir := filepath.Join(t.TempDir(), "x=a b")
	inputDir := filepath.Join(dir, core.InputDirName)
	require.NoError(t, os.MkdirAll(inputDir, 0o750))
	input := filepath.Join(inputDir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("x=a b\n"), 0o600))

	cs := &core.Case{
		Label:     "x=a b",
		Vars:      map[string]any{"x": "a b"},
		Dir:       dir,
		InputPath: input,
		Status:    core.CaseStatusPending,
	}

	calc, err := Parse("sh://cat", Options{})
	require.NoError(t, err)

	_, err = calc.Run(context.Background(), cs)
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(cs.Dir, StdoutFile))
	require.NoError(t, err)
	assert.Equal(t, "x=a b\n", string(out))
}

func TestShellRunNonZeroExit(t *testing.T) {
	cs := newCase(t, "")

	calc, err := Parse("sh://false", Options{})
	require.NoError(t, err)

	_, err = calc.Run(context.Background(), cs)
	require.Error(t, err)

	var calcErr *core.CalculatorError
	assert.ErrorAs(t, err, &calcErr)
	assert.Equal(t, "sh://false", calcErr.URI)
}

func TestFingerprintDeterministic(t *testing.T) {
	cs := newCase(t, "content")

	first, err := Fingerprint(cs.InputPath)
	require.NoError(t, err)
	second, err := Fingerprint(cs.InputPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Changing the content changes the fingerprint.
	require.NoError(t, os.WriteFile(cs.InputPath, []byte("different"), 0o600))
	third, err := Fingerprint(cs.InputPath)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestFingerprintRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFingerprint(dir, "abc123"))

	got, err := ReadFingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestReadFingerprintMissing(t *testing.T) {
	got, err := ReadFingerprint(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCacheHitCopiesOutputs(t *testing.T) {
	// Prior results directory with a completed case.
	prior := t.TempDir()
	cs := newCase(t, "x=1\n")

	priorCase := filepath.Join(prior, cs.Label)
	require.NoError(t, os.MkdirAll(priorCase, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(priorCase, "result.txt"), []byte("42\n"), 0o600))

	fingerprint, err := Fingerprint(cs.InputPath)
	require.NoError(t, err)
	require.NoError(t, WriteFingerprint(priorCase, fingerprint))

	calc, err := Parse("cache://"+prior, Options{})
	require.NoError(t, err)

	_, err = calc.Run(context.Background(), cs)
	require.NoError(t, err)

	copied, err := os.ReadFile(filepath.Join(cs.Dir, "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(copied))
}

func TestCacheMissOnFingerprintMismatch(t *testing.T) {
	prior := t.TempDir()
	cs := newCase(t, "x=1\n")

	// Same label, different inputs: reuse must be declined.
	priorCase := filepath.Join(prior, cs.Label)
	require.NoError(t, os.MkdirAll(priorCase, 0o750))
	require.NoError(t, WriteFingerprint(priorCase, "stale-fingerprint"))

	calc, err := Parse("cache://"+prior, Options{})
	require.NoError(t, err)

	_, err = calc.Run(context.Background(), cs)
	require.Error(t, err)

	var miss *core.CacheMissError
	assert.ErrorAs(t, err, &miss)
}

func TestCacheMissOnAbsentCase(t *testing.T) {
	prior := t.TempDir()
	cs := newCase(t, "x=1\n")

	calc, err := Parse("cache://"+prior, Options{})
	require.NoError(t, err)

	_, err = calc.Run(context.Background(), cs)

	var miss *core.CacheMissError
	assert.ErrorAs(t, err, &miss)
}
