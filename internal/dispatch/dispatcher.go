// Package dispatch assigns compiled cases to calculators and drives each
// one to a terminal state. It owns the retry/failover bookkeeping: every
// case walks the calculator chain, a full chain exhaustion consumes one
// retry, and a case that runs out of retries is marked failed without
// aborting the batch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casegrid-labs/casegrid/internal/calculator"
	"github.com/casegrid-labs/casegrid/pkg/core"
)

// Dispatcher executes cases over an ordered calculator chain.
type Dispatcher struct {
	calcs      []calculator.Calculator
	maxRetries int
	maxWorkers int
	logger     *slog.Logger
	onDone     func(*core.Case)
}

// Config holds dispatcher configuration.
type Config struct {
	// Calculators is the ordered failover chain. Must not be empty.
	Calculators []calculator.Calculator

	// MaxRetries is how many times the full chain is retried after the
	// first pass exhausts every calculator.
	MaxRetries int

	// MaxWorkers caps concurrency; the effective bound is the smaller of
	// this and the calculator count (<= 0 means no extra cap).
	MaxWorkers int

	// OnCaseDone is invoked from the dispatch loop each time a case
	// reaches a terminal state (optional).
	OnCaseDone func(*core.Case)

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if len(cfg.Calculators) == 0 {
		return nil, fmt.Errorf("no calculators configured")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	workers := cfg.MaxWorkers
	if workers <= 0 || workers > len(cfg.Calculators) {
		workers = len(cfg.Calculators)
	}

	return &Dispatcher{
		calcs:      cfg.Calculators,
		maxRetries: cfg.MaxRetries,
		maxWorkers: workers,
		logger:     logger,
		onDone:     cfg.OnCaseDone,
	}, nil
}

// job tracks one case's walk through the calculator chain.
type job struct {
	cs     *core.Case
	tried  map[int]bool // calculators attempted in the current round
	rounds int          // full chain exhaustions so far
}

func (j *job) exhausted(n int) bool {
	return len(j.tried) == n
}

// event reports a finished attempt back to the assignment loop.
type event struct {
	calcIdx int
	j       *job
	command string
	err     error
}

// Run drives every pending case to a terminal state. Cases already in a
// terminal state (e.g. compile failures) pass through untouched. On
// cancellation no new assignments are made, in-flight cases finish, and
// cases never assigned stay pending; the error is ctx.Err() in that
// situation and nil otherwise. Per-case failures are never returned as
// errors: they are recorded on the case itself.
func (d *Dispatcher) Run(ctx context.Context, cases []*core.Case) error {
	var pending []*job
	for _, cs := range cases {
		if cs.Status.Terminal() {
			continue
		}
		pending = append(pending, &job{cs: cs, tried: make(map[int]bool)})
	}

	d.logger.Debug("dispatch starting",
		"cases", len(pending), "calculators", len(d.calcs),
		"max_retries", d.maxRetries, "workers", d.maxWorkers)

	busy := make([]bool, len(d.calcs))
	inFlight := 0
	events := make(chan event)

	for len(pending) > 0 || inFlight > 0 {
		if ctx.Err() == nil {
			pending = d.assign(ctx, pending, busy, &inFlight, events)
		}

		if inFlight > 0 {
			ev := <-events
			busy[ev.calcIdx] = false
			inFlight--
			pending = d.handle(ev, pending)
			continue
		}

		// Nothing in flight and nothing assignable.
		if ctx.Err() != nil {
			break
		}
		pending = d.advanceRounds(pending)
	}

	if err := ctx.Err(); err != nil {
		d.logger.Info("dispatch interrupted, returning partial results")
		return err
	}
	return nil
}

// assign hands every assignable job to its next calculator and returns the
// jobs still waiting. The next calculator for a job is the first one in
// chain order it has not tried this round; a busy chain position makes the
// job wait rather than skip ahead, so a later backend never runs a case
// the cache could still reuse.
func (d *Dispatcher) assign(ctx context.Context, pending []*job, busy []bool, inFlight *int, events chan event) []*job {
	var waiting []*job
	for _, j := range pending {
		if *inFlight >= d.maxWorkers {
			waiting = append(waiting, j)
			continue
		}

		next := -1
		for i := range d.calcs {
			if !j.tried[i] {
				next = i
				break
			}
		}
		if next < 0 || busy[next] {
			waiting = append(waiting, j)
			continue
		}

		busy[next] = true
		*inFlight++
		j.cs.Status = core.CaseStatusRunning
		logStart(j.cs, d.calcs[next].URI())
		d.logger.Debug("case assigned", "label", j.cs.Label, "calculator", d.calcs[next].URI())

		go func(idx int, j *job) {
			// Cancellation gates assignment only. A case already handed
			// to a calculator runs to its terminal state.
			command, err := d.calcs[idx].Run(context.WithoutCancel(ctx), j.cs)
			events <- event{calcIdx: idx, j: j, command: command, err: err}
		}(next, j)
	}
	return waiting
}

// handle applies one attempt result and requeues or finalizes the job.
func (d *Dispatcher) handle(ev event, pending []*job) []*job {
	j := ev.j
	cs := j.cs
	uri := d.calcs[ev.calcIdx].URI()
	j.tried[ev.calcIdx] = true

	if ev.err == nil {
		cs.Status = core.CaseStatusDone
		cs.Calculator = uri
		cs.Command = ev.command
		cs.Error = ""
		d.finalize(cs)
		d.logger.Debug("case done", "label", cs.Label, "calculator", uri)
		return pending
	}

	var miss *core.CacheMissError
	if errors.As(ev.err, &miss) {
		// A declined cache lookup is fallthrough, not failure.
		d.logger.Debug("calculator declined case", "label", cs.Label, "calculator", uri)
	} else {
		cs.Error = ev.err.Error()
		cs.Calculator = uri
		cs.Command = ev.command
		logAttemptFailed(cs, uri, ev.err)
		d.logger.Debug("calculator failed for case", "label", cs.Label, "calculator", uri, "error", ev.err)
	}

	cs.Status = core.CaseStatusPending
	return append(pending, j)
}

// advanceRounds runs when every waiting job has tried every calculator:
// each exhaustion consumes one retry, and jobs past the limit become
// terminal failures.
func (d *Dispatcher) advanceRounds(pending []*job) []*job {
	var next []*job
	for _, j := range pending {
		if !j.exhausted(len(d.calcs)) {
			next = append(next, j)
			continue
		}

		j.rounds++
		if j.rounds > d.maxRetries {
			j.cs.Status = core.CaseStatusFailed
			if j.cs.Error == "" {
				j.cs.Error = "no calculator accepted the case"
			}
			logTerminal(j.cs)
			if d.onDone != nil {
				d.onDone(j.cs)
			}
			d.logger.Debug("case failed after retries", "label", j.cs.Label, "rounds", j.rounds, "error", j.cs.Error)
			continue
		}

		d.logger.Debug("retrying calculator chain for case", "label", j.cs.Label, "round", j.rounds+1)
		j.tried = make(map[int]bool)
		next = append(next, j)
	}
	return next
}

// finalize persists the artifacts of a completed case: its input
// fingerprint (enabling cache reuse in later runs) and the closing log
// entry.
func (d *Dispatcher) finalize(cs *core.Case) {
	fingerprint, err := calculator.Fingerprint(cs.InputPath)
	if err != nil {
		d.logger.Debug("failed to fingerprint case", "label", cs.Label, "error", err)
	} else if err := calculator.WriteFingerprint(cs.Dir, fingerprint); err != nil {
		d.logger.Debug("failed to persist fingerprint", "label", cs.Label, "error", err)
	}

	logTerminal(cs)
	if d.onDone != nil {
		d.onDone(cs)
	}
}
