package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/casegrid-labs/casegrid/internal/calculator"
	"github.com/casegrid-labs/casegrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCalculator records the labels it ran and fails when told to.
type fakeCalculator struct {
	uri  string
	fail error

	mu   sync.Mutex
	runs []string
}

func (f *fakeCalculator) URI() string { return f.uri }

func (f *fakeCalculator) Run(_ context.Context, cs *core.Case) (string, error) {
	f.mu.Lock()
	f.runs = append(f.runs, cs.Label)
	f.mu.Unlock()

	command := f.uri + " " + cs.Label
	if f.fail != nil {
		return command, f.fail
	}
	return command, nil
}

func (f *fakeCalculator) Close() error { return nil }

func (f *fakeCalculator) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

// blockingCalculator holds every run until released and records the
// context state its last run completed under.
type blockingCalculator struct {
	uri     string
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	ctxErr error
}

func (b *blockingCalculator) URI() string { return b.uri }

func (b *blockingCalculator) Run(ctx context.Context, cs *core.Case) (string, error) {
	b.started <- struct{}{}
	<-b.release

	b.mu.Lock()
	b.ctxErr = ctx.Err()
	b.mu.Unlock()
	return b.uri + " " + cs.Label, nil
}

func (b *blockingCalculator) Close() error { return nil }

func (b *blockingCalculator) runCtxErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctxErr
}

func makeCases(t *testing.T, n int) []*core.Case {
	t.Helper()
	root := t.TempDir()

	cases := make([]*core.Case, 0, n)
	for i := 0; i < n; i++ {
		label := fmt.Sprintf("x=%d", i)
		dir := filepath.Join(root, label)
		inputDir := filepath.Join(dir, core.InputDirName)
		require.NoError(t, os.MkdirAll(inputDir, 0o750))

		input := filepath.Join(inputDir, "input.txt")
		require.NoError(t, os.WriteFile(input, []byte(label+"\n"), 0o600))

		cases = append(cases, &core.Case{
			Index:     i,
			Label:     label,
			Vars:      map[string]any{"x": i},
			Dir:       dir,
			InputPath: input,
			Status:    core.CaseStatusPending,
		})
	}
	return cases
}

func TestRunAllCasesDone(t *testing.T) {
	calc := &fakeCalculator{uri: "sh://solve"}
	d, err := New(Config{Calculators: []calculator.Calculator{calc}})
	require.NoError(t, err)

	cases := makeCases(t, 4)
	require.NoError(t, d.Run(context.Background(), cases))

	for _, cs := range cases {
		assert.Equal(t, core.CaseStatusDone, cs.Status)
		assert.Equal(t, "sh://solve", cs.Calculator)
		assert.Equal(t, "sh://solve "+cs.Label, cs.Command)
		assert.Empty(t, cs.Error)
	}
	assert.Equal(t, 4, calc.runCount())
}

func TestRunFailsOverToNextCalculator(t *testing.T) {
	broken := &fakeCalculator{uri: "sh://broken", fail: errors.New("solver crashed")}
	working := &fakeCalculator{uri: "sh://working"}
	d, err := New(Config{
		Calculators: []calculator.Calculator{broken, working},
		MaxRetries:  1,
	})
	require.NoError(t, err)

	cases := makeCases(t, 3)
	require.NoError(t, d.Run(context.Background(), cases))

	for _, cs := range cases {
		assert.Equal(t, core.CaseStatusDone, cs.Status)
		assert.Equal(t, "sh://working", cs.Calculator)
		assert.Empty(t, cs.Error)
	}
	assert.Equal(t, 3, working.runCount())
}

func TestRunCacheMissFallsThrough(t *testing.T) {
	cache := &fakeCalculator{uri: "cache:///prior", fail: &core.CacheMissError{Dir: "/prior", Label: "x=0"}}
	shell := &fakeCalculator{uri: "sh://solve"}
	d, err := New(Config{Calculators: []calculator.Calculator{cache, shell}})
	require.NoError(t, err)

	cases := makeCases(t, 2)
	require.NoError(t, d.Run(context.Background(), cases))

	for _, cs := range cases {
		assert.Equal(t, core.CaseStatusDone, cs.Status)
		assert.Equal(t, "sh://solve", cs.Calculator)
		assert.Empty(t, cs.Error, "a cache miss must not be recorded as a failure")
	}
}

func TestRunExhaustsRetriesThenFails(t *testing.T) {
	first := &fakeCalculator{uri: "sh://one", fail: errors.New("boom")}
	second := &fakeCalculator{uri: "sh://two", fail: errors.New("also boom")}
	d, err := New(Config{
		Calculators: []calculator.Calculator{first, second},
		MaxRetries:  1,
	})
	require.NoError(t, err)

	cases := makeCases(t, 1)
	require.NoError(t, d.Run(context.Background(), cases))

	cs := cases[0]
	assert.Equal(t, core.CaseStatusFailed, cs.Status)
	assert.Contains(t, cs.Error, "boom")

	// One initial pass plus one retry of the full chain.
	assert.Equal(t, 2, first.runCount())
	assert.Equal(t, 2, second.runCount())
}

func TestRunSkipsTerminalCases(t *testing.T) {
	calc := &fakeCalculator{uri: "sh://solve"}
	d, err := New(Config{Calculators: []calculator.Calculator{calc}})
	require.NoError(t, err)

	cases := makeCases(t, 2)
	cases[0].Status = core.CaseStatusFailed
	cases[0].Error = "compile error"

	require.NoError(t, d.Run(context.Background(), cases))

	assert.Equal(t, core.CaseStatusFailed, cases[0].Status)
	assert.Equal(t, "compile error", cases[0].Error)
	assert.Equal(t, core.CaseStatusDone, cases[1].Status)
	assert.Equal(t, 1, calc.runCount())
}

func TestRunCancelledContext(t *testing.T) {
	calc := &fakeCalculator{uri: "sh://solve"}
	d, err := New(Config{Calculators: []calculator.Calculator{calc}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cases := makeCases(t, 3)
	err = d.Run(ctx, cases)
	assert.ErrorIs(t, err, context.Canceled)

	for _, cs := range cases {
		assert.Equal(t, core.CaseStatusPending, cs.Status)
	}
	assert.Equal(t, 0, calc.runCount())
}

func TestRunCancelMidFlightLetsCaseFinish(t *testing.T) {
	calc := &blockingCalculator{
		uri:     "sh://slow",
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	d, err := New(Config{Calculators: []calculator.Calculator{calc}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cases := makeCases(t, 2)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, cases) }()

	// Cancel while the first case is in flight, then let it complete.
	<-calc.started
	cancel()
	close(calc.release)

	require.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, core.CaseStatusDone, cases[0].Status, "the in-flight case must run to completion")
	assert.Equal(t, core.CaseStatusPending, cases[1].Status, "no new case may be assigned after cancellation")
	assert.NoError(t, calc.runCtxErr(), "the calculator must not see the cancelled context")
}

func TestRunPrefersCacheForEveryCase(t *testing.T) {
	cache := &fakeCalculator{uri: "cache:///prior"}
	shell := &fakeCalculator{uri: "sh://solve"}
	d, err := New(Config{Calculators: []calculator.Calculator{cache, shell}})
	require.NoError(t, err)

	cases := makeCases(t, 3)
	require.NoError(t, d.Run(context.Background(), cases))

	for _, cs := range cases {
		assert.Equal(t, core.CaseStatusDone, cs.Status)
		assert.Equal(t, "cache:///prior", cs.Calculator)
	}
	assert.Equal(t, 3, cache.runCount())
	assert.Equal(t, 0, shell.runCount(), "a case may only skip to the next calculator after the cache declined it")
}

func TestRunWritesFingerprintAndLog(t *testing.T) {
	calc := &fakeCalculator{uri: "sh://solve"}
	d, err := New(Config{Calculators: []calculator.Calculator{calc}})
	require.NoError(t, err)

	cases := makeCases(t, 1)
	require.NoError(t, d.Run(context.Background(), cases))

	cs := cases[0]
	fingerprint, err := calculator.ReadFingerprint(cs.Dir)
	require.NoError(t, err)
	want, err := calculator.Fingerprint(cs.InputPath)
	require.NoError(t, err)
	assert.Equal(t, want, fingerprint)

	log, err := os.ReadFile(filepath.Join(cs.Dir, LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(log), "start calculator=sh://solve")
	assert.Contains(t, string(log), "done calculator=sh://solve")
}

func TestRunInvokesOnCaseDone(t *testing.T) {
	calc := &fakeCalculator{uri: "sh://solve"}

	var mu sync.Mutex
	var seen []string
	d, err := New(Config{
		Calculators: []calculator.Calculator{calc},
		OnCaseDone: func(cs *core.Case) {
			mu.Lock()
			seen = append(seen, cs.Label)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	cases := makeCases(t, 3)
	require.NoError(t, d.Run(context.Background(), cases))
	assert.Len(t, seen, 3)
}

func TestNewRequiresCalculators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
