package study

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/casegrid-labs/casegrid/internal/aggregate"
	"github.com/casegrid-labs/casegrid/pkg/core"
)

// CollectDir re-aggregates an existing results directory without
// recompiling or re-running anything. Each subdirectory is treated as a
// completed case; its label is parsed back into input values.
func (s *Study) CollectDir(ctx context.Context, resultsDir string) (*core.ResultSet, error) {
	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var cases []*core.Case
	var inputNames []string
	seen := make(map[string]bool)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		vars := parseLabel(label)
		for name := range vars {
			if !seen[name] {
				seen[name] = true
				inputNames = append(inputNames, name)
			}
		}
		cases = append(cases, &core.Case{
			Index:  len(cases),
			Label:  label,
			Vars:   vars,
			Dir:    filepath.Join(resultsDir, label),
			Status: core.CaseStatusDone,
		})
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no case directories in %s", resultsDir)
	}

	collector := aggregate.New(aggregate.Config{Model: s.model, Logger: s.logger})
	return collector.Collect(ctx, cases, inputNames)
}

// parseLabel recovers the variable assignment from a case label like
// "width=0.1,height=2". Values that parse as numbers come back as
// float64. A label without assignments (the scalar-only "case") yields an
// empty map.
func parseLabel(label string) map[string]any {
	vars := make(map[string]any)
	for _, part := range strings.Split(label, ",") {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			vars[name] = f
			continue
		}
		vars[name] = value
	}
	return vars
}
