// Package aggregate extracts output values from completed cases and
// assembles them into the study's tabular result set.
package aggregate

import (
	"context"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/casegrid-labs/casegrid/pkg/core"
)

// Collector runs the model's output extraction commands over a batch of
// cases.
type Collector struct {
	model  *core.Model
	logger *slog.Logger
}

// Config holds collector configuration.
type Config struct {
	// Model supplies the output extraction commands.
	Model *core.Model

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates a collector.
func New(cfg Config) *Collector {
	model := cfg.Model
	if model == nil {
		model = core.DefaultModel()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{model: model, logger: logger}
}

// Collect builds the result set for a batch of cases, ordered by
// case-generation order regardless of completion order. Extraction runs
// only for cases that completed; a failing extraction command leaves that
// field nil for that case and the remaining fields are still extracted.
// The error is non-nil only on cancellation.
func (c *Collector) Collect(ctx context.Context, cases []*core.Case, inputNames []string) (*core.ResultSet, error) {
	outputNames := make([]string, 0, len(c.model.Output))
	for name := range c.model.Output {
		outputNames = append(outputNames, name)
	}
	sort.Strings(outputNames)

	rs := &core.ResultSet{
		InputNames:  inputNames,
		OutputNames: outputNames,
		Rows:        make([]core.ResultRow, 0, len(cases)),
	}

	ordered := make([]*core.Case, len(cases))
	copy(ordered, cases)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	for _, cs := range ordered {
		if err := ctx.Err(); err != nil {
			return rs, err
		}
		rs.Rows = append(rs.Rows, c.collectCase(ctx, cs, outputNames))
	}
	return rs, nil
}

func (c *Collector) collectCase(ctx context.Context, cs *core.Case, outputNames []string) core.ResultRow {
	row := core.ResultRow{
		Index:      cs.Index,
		Label:      cs.Label,
		Inputs:     cs.Vars,
		Outputs:    make(map[string]any, len(outputNames)),
		Status:     cs.Status,
		Calculator: cs.Calculator,
		Command:    cs.Command,
		Error:      cs.Error,
	}

	for _, name := range outputNames {
		if cs.Status != core.CaseStatusDone {
			row.Outputs[name] = nil
			continue
		}
		value, err := c.extract(ctx, cs, name)
		if err != nil {
			c.logger.Warn("output extraction failed", "label", cs.Label, "output", name, "error", err)
			row.Outputs[name] = nil
			continue
		}
		row.Outputs[name] = value
	}
	return row
}

// extract runs one output's extraction command inside the case directory
// and parses its stdout: a number when it parses as one, the trimmed text
// otherwise.
func (c *Collector) extract(ctx context.Context, cs *core.Case, name string) (any, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", c.model.Output[name]) //nolint:gosec // G204: extraction commands come from the study model
	cmd.Dir = cs.Dir

	out, err := cmd.Output()
	if err != nil {
		return nil, &core.AggregationError{Label: cs.Label, Output: name, Err: err}
	}

	text := strings.TrimSpace(string(out))
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f, nil
	}
	return text, nil
}
