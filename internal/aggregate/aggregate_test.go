package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/casegrid-labs/casegrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doneCase(t *testing.T, index int, files map[string]string) *core.Case {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	label := fmt.Sprintf("x=%d", index)
	return &core.Case{
		Index:      index,
		Label:      label,
		Vars:       map[string]any{"x": index},
		Dir:        dir,
		Status:     core.CaseStatusDone,
		Calculator: "sh://solve",
		Command:    "solve input",
	}
}

func TestCollectExtractsOutputs(t *testing.T) {
	model := core.DefaultModel()
	model.Output = map[string]string{
		"max_temp": "cat max_temp.txt",
		"solver":   "cat solver.txt",
	}

	cases := []*core.Case{
		doneCase(t, 0, map[string]string{"max_temp.txt": "98.6\n", "solver.txt": "fem\n"}),
		doneCase(t, 1, map[string]string{"max_temp.txt": "212\n", "solver.txt": "fvm\n"}),
	}

	c := New(Config{Model: model})
	rs, err := c.Collect(context.Background(), cases, []string{"x"})
	require.NoError(t, err)

	require.Len(t, rs.Rows, 2)
	assert.Equal(t, []string{"x"}, rs.InputNames)
	assert.Equal(t, []string{"max_temp", "solver"}, rs.OutputNames)

	// Numeric stdout parses to float64, anything else stays a string.
	assert.Equal(t, 98.6, rs.Rows[0].Outputs["max_temp"])
	assert.Equal(t, "fem", rs.Rows[0].Outputs["solver"])
	assert.Equal(t, 212.0, rs.Rows[1].Outputs["max_temp"])
	assert.Equal(t, "fvm", rs.Rows[1].Outputs["solver"])
}

func TestCollectFieldFailureIsSoft(t *testing.T) {
	model := core.DefaultModel()
	model.Output = map[string]string{"value": "cat value.txt"}

	cases := make([]*core.Case, 0, 5)
	for i := 0; i < 5; i++ {
		files := map[string]string{"value.txt": fmt.Sprintf("%d\n", i*10)}
		if i == 2 {
			files = nil // extraction command will fail for this case
		}
		cases = append(cases, doneCase(t, i, files))
	}

	c := New(Config{Model: model})
	rs, err := c.Collect(context.Background(), cases, []string{"x"})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 5)

	assert.Nil(t, rs.Rows[2].Outputs["value"])
	assert.Equal(t, core.CaseStatusDone, rs.Rows[2].Status)
	for _, i := range []int{0, 1, 3, 4} {
		assert.Equal(t, float64(i*10), rs.Rows[i].Outputs["value"])
	}
}

func TestCollectSkipsExtractionForFailedCases(t *testing.T) {
	model := core.DefaultModel()
	model.Output = map[string]string{"value": "cat value.txt"}

	ok := doneCase(t, 0, map[string]string{"value.txt": "1\n"})
	failed := doneCase(t, 1, map[string]string{"value.txt": "2\n"})
	failed.Status = core.CaseStatusFailed
	failed.Error = "solver crashed"

	c := New(Config{Model: model})
	rs, err := c.Collect(context.Background(), []*core.Case{ok, failed}, []string{"x"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, rs.Rows[0].Outputs["value"])
	assert.Nil(t, rs.Rows[1].Outputs["value"])
	assert.Equal(t, "solver crashed", rs.Rows[1].Error)
}

func TestCollectOrdersByGenerationOrder(t *testing.T) {
	model := core.DefaultModel()

	// Completion order scrambled; rows must come back in index order.
	cases := []*core.Case{
		doneCase(t, 2, nil),
		doneCase(t, 0, nil),
		doneCase(t, 1, nil),
	}

	c := New(Config{Model: model})
	rs, err := c.Collect(context.Background(), cases, []string{"x"})
	require.NoError(t, err)

	require.Len(t, rs.Rows, 3)
	for i, r := range rs.Rows {
		assert.Equal(t, i, r.Index)
	}
}

func TestRenderCSV(t *testing.T) {
	rs := &core.ResultSet{
		InputNames:  []string{"x"},
		OutputNames: []string{"value"},
		Rows: []core.ResultRow{
			{
				Label:      "x=1",
				Inputs:     map[string]any{"x": 1},
				Outputs:    map[string]any{"value": 42.0},
				Status:     core.CaseStatusDone,
				Calculator: "sh://solve",
				Command:    "solve input",
			},
		},
	}

	var buf strings.Builder
	require.NoError(t, Render(&buf, rs, "csv"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "case,x,value,status,calculator,error,command", lines[0])
	assert.Equal(t, "x=1,1,42,done,sh://solve,,solve input", lines[1])
}

func TestRenderJSON(t *testing.T) {
	rs := &core.ResultSet{
		InputNames:  []string{"x"},
		OutputNames: []string{"value"},
		Rows: []core.ResultRow{
			{Label: "x=1", Inputs: map[string]any{"x": 1}, Outputs: map[string]any{"value": 42.0}, Status: core.CaseStatusDone},
		},
	}

	var buf strings.Builder
	require.NoError(t, Render(&buf, rs, "json"))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "x=1", decoded[0]["case"])
	assert.Equal(t, 42.0, decoded[0]["value"])
}

func TestRenderMarkdown(t *testing.T) {
	rs := &core.ResultSet{
		InputNames: []string{"x"},
		Rows: []core.ResultRow{
			{Label: "x=1", Inputs: map[string]any{"x": 1}, Status: core.CaseStatusDone},
		},
	}

	var buf strings.Builder
	require.NoError(t, Render(&buf, rs, "markdown"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "| case | x |"))
	assert.Contains(t, lines[2], "| x=1 | 1 |")
}

func TestRenderTable(t *testing.T) {
	rs := &core.ResultSet{
		InputNames: []string{"x"},
		Rows: []core.ResultRow{
			{Label: "x=1", Inputs: map[string]any{"x": 1}, Status: core.CaseStatusDone},
			{Label: "x=2", Inputs: map[string]any{"x": 2}, Status: core.CaseStatusFailed, Error: "boom"},
		},
	}

	var buf strings.Builder
	require.NoError(t, Render(&buf, rs, "table"))
	assert.Contains(t, buf.String(), "(2 cases, 1 failed)")
}

func TestRenderEmpty(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, Render(&buf, &core.ResultSet{}, "table"))
	assert.Contains(t, buf.String(), "(0 cases)")
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf strings.Builder
	assert.Error(t, Render(&buf, &core.ResultSet{}, "xml"))
}
