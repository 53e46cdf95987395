// Package study orchestrates the full pipeline: load variables, compile
// cases, dispatch them over the calculator chain, and aggregate results.
// Run history is recorded in the state store when one is attached.
package study

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casegrid-labs/casegrid/internal/aggregate"
	"github.com/casegrid-labs/casegrid/internal/calculator"
	"github.com/casegrid-labs/casegrid/internal/compiler"
	"github.com/casegrid-labs/casegrid/internal/dispatch"
	"github.com/casegrid-labs/casegrid/internal/loader"
	"github.com/casegrid-labs/casegrid/pkg/core"
)

// Study runs one parametric study end to end.
type Study struct {
	cfg    Config
	model  *core.Model
	logger *slog.Logger
}

// Config holds study configuration.
type Config struct {
	// Template is the template file or directory.
	Template string

	// VarsFile is the YAML variables file.
	VarsFile string

	// ResultsDir is where case directories are created.
	ResultsDir string

	// HelpersDir is an optional directory of .star helper files.
	HelpersDir string

	// Calculators is the ordered failover chain of calculator URIs.
	Calculators []string

	MaxRetries int
	MaxWorkers int
	Keepalive  time.Duration

	// Model declares markers and output extraction (nil for defaults).
	Model *core.Model

	// Store records run history when non-nil.
	Store core.Store

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates a study.
func New(cfg Config) *Study {
	model := cfg.Model
	if model == nil {
		model = core.DefaultModel()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Study{cfg: cfg, model: model, logger: logger}
}

// Compile loads the variables file and compiles every case into the
// results directory.
func (s *Study) Compile(ctx context.Context) ([]*core.Case, core.VarSet, error) {
	vars, err := loader.LoadVarSet(s.cfg.VarsFile)
	if err != nil {
		return nil, nil, err
	}

	comp, err := compiler.New(compiler.Config{
		Model:      s.model,
		HelpersDir: s.cfg.HelpersDir,
		Workers:    s.cfg.MaxWorkers,
		Logger:     s.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	cases, err := comp.Compile(ctx, s.cfg.Template, vars, s.cfg.ResultsDir)
	if err != nil {
		return nil, nil, err
	}
	return cases, vars, nil
}

// Run executes the full pipeline. On cancellation the in-flight cases
// finish and the result set covers whatever reached a terminal state; the
// returned error is the context error in that situation.
func (s *Study) Run(ctx context.Context) (*core.ResultSet, error) {
	cases, vars, err := s.Compile(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("compiled cases", "count", len(cases), "results_dir", s.cfg.ResultsDir)

	calcs, err := calculator.ParseAll(s.cfg.Calculators, calculator.Options{
		Logger:    s.logger,
		Keepalive: s.cfg.Keepalive,
	})
	if err != nil {
		return nil, err
	}
	defer calculator.CloseAll(calcs)

	recorder, err := s.startRun(cases)
	if err != nil {
		return nil, err
	}

	d, err := dispatch.New(dispatch.Config{
		Calculators: calcs,
		MaxRetries:  s.cfg.MaxRetries,
		MaxWorkers:  s.cfg.MaxWorkers,
		OnCaseDone:  recorder.caseDone,
		Logger:      s.logger,
	})
	if err != nil {
		return nil, err
	}

	dispatchErr := d.Run(ctx, cases)
	recorder.finish(cases, dispatchErr)

	// Aggregation still runs after cancellation so the partial results of
	// finished cases are not lost.
	collector := aggregate.New(aggregate.Config{Model: s.model, Logger: s.logger})
	rs, err := collector.Collect(context.WithoutCancel(ctx), cases, vars.Names())
	if err != nil {
		return rs, err
	}
	return rs, dispatchErr
}

// runRecorder mirrors case outcomes into the state store. A nil store
// makes every method a no-op.
type runRecorder struct {
	store core.Store
	run   *core.Run

	mu  sync.Mutex
	ids map[int]string // case index -> case run ID
}

func (s *Study) startRun(cases []*core.Case) (*runRecorder, error) {
	r := &runRecorder{store: s.cfg.Store, ids: make(map[int]string)}
	if r.store == nil {
		return r, nil
	}

	run, err := r.store.CreateRun(s.cfg.Template, len(cases))
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	r.run = run

	for _, cs := range cases {
		cr := &core.CaseRun{
			RunID:     run.ID,
			CaseIndex: cs.Index,
			Label:     cs.Label,
			Status:    cs.Status,
		}
		if err := r.store.RecordCaseRun(cr); err != nil {
			return nil, fmt.Errorf("failed to record case run: %w", err)
		}
		r.ids[cs.Index] = cr.ID

		// Compile failures are already terminal.
		if cs.Status.Terminal() {
			r.caseDone(cs)
		}
	}
	return r, nil
}

func (r *runRecorder) caseDone(cs *core.Case) {
	if r.store == nil {
		return
	}
	r.mu.Lock()
	id := r.ids[cs.Index]
	r.mu.Unlock()
	if id == "" {
		return
	}
	// State store trouble must not fail the study itself.
	_ = r.store.UpdateCaseRun(id, cs.Status, cs.Calculator, cs.Command, cs.Error)
}

func (r *runRecorder) finish(cases []*core.Case, dispatchErr error) {
	if r.store == nil || r.run == nil {
		return
	}

	status := core.RunStatusCompleted
	errMsg := ""
	switch {
	case dispatchErr != nil:
		status = core.RunStatusCancelled
		errMsg = dispatchErr.Error()
	default:
		for _, cs := range cases {
			if cs.Status == core.CaseStatusFailed {
				status = core.RunStatusFailed
				errMsg = fmt.Sprintf("%d of %d cases failed", len(failedCases(cases)), len(cases))
				break
			}
		}
	}

	_ = r.store.CompleteRun(r.run.ID, status, errMsg)
}

func failedCases(cases []*core.Case) []*core.Case {
	var failed []*core.Case
	for _, cs := range cases {
		if cs.Status == core.CaseStatusFailed {
			failed = append(failed, cs)
		}
	}
	return failed
}
