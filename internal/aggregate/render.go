package aggregate

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/casegrid-labs/casegrid/pkg/core"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Render writes the result set to w in the requested format: "table"
// (default), "csv", "json", or "md"/"markdown".
func Render(w io.Writer, rs *core.ResultSet, format string) error {
	switch format {
	case "json":
		return renderJSON(w, rs)
	case "csv":
		return renderCSV(w, rs)
	case "md", "markdown":
		return renderMarkdown(w, rs)
	case "", "table":
		return renderTable(w, rs)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, rs *core.ResultSet) error {
	if len(rs.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 cases)")
		return nil
	}

	cols := rs.Columns()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, r := range rs.Rows {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = formatValue(r.Value(col))
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d cases, %d failed)\n", len(rs.Rows), len(rs.Failed()))
	return nil
}

func renderJSON(w io.Writer, rs *core.ResultSet) error {
	cols := rs.Columns()
	results := make([]map[string]any, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		row := make(map[string]any, len(cols)+1)
		row["case"] = r.Label
		for _, col := range cols {
			row[col] = r.Value(col)
		}
		results = append(results, row)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func renderCSV(w io.Writer, rs *core.ResultSet) error {
	cols := rs.Columns()
	_, _ = fmt.Fprintln(w, "case,"+strings.Join(cols, ","))

	for _, r := range rs.Rows {
		values := make([]string, 0, len(cols)+1)
		values = append(values, escapeCSV(r.Label))
		for _, col := range cols {
			values = append(values, escapeCSV(formatValue(r.Value(col))))
		}
		_, _ = fmt.Fprintln(w, strings.Join(values, ","))
	}
	return nil
}

func renderMarkdown(w io.Writer, rs *core.ResultSet) error {
	if len(rs.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 cases)")
		return nil
	}

	cols := append([]string{"case"}, rs.Columns()...)
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(cols, " | "))

	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for _, r := range rs.Rows {
		values := make([]string, 0, len(cols))
		values = append(values, r.Label)
		for _, col := range cols[1:] {
			values = append(values, formatValue(r.Value(col)))
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(values, " | "))
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
