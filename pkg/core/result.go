package core

// ResultRow is the final record for one case: input variable values,
// extracted output values, and execution metadata. Output values are
// float64 when the extracted text parses as a number, string otherwise,
// and nil when extraction failed for that field.
type ResultRow struct {
	Index      int
	Label      string
	Inputs     map[string]any
	Outputs    map[string]any
	Status     CaseStatus
	Calculator string
	Command    string
	Error      string
}

// ResultSet is the complete tabular result of a study: one row per case,
// ordered by case-generation order regardless of completion order.
type ResultSet struct {
	// InputNames are the input columns in declaration order.
	InputNames []string

	// OutputNames are the output columns in model declaration order
	// (sorted lexically, since YAML maps carry no order).
	OutputNames []string

	Rows []ResultRow
}

// Failed returns the rows that ended in a failed state.
func (rs *ResultSet) Failed() []ResultRow {
	var failed []ResultRow
	for _, r := range rs.Rows {
		if r.Status == CaseStatusFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Columns returns the full header in rendering order: inputs, outputs,
// then the metadata columns.
func (rs *ResultSet) Columns() []string {
	cols := make([]string, 0, len(rs.InputNames)+len(rs.OutputNames)+4)
	cols = append(cols, rs.InputNames...)
	cols = append(cols, rs.OutputNames...)
	cols = append(cols, "status", "calculator", "error", "command")
	return cols
}

// Value returns the cell value for a column of a row, following the same
// ordering convention as Columns.
func (r ResultRow) Value(col string) any {
	switch col {
	case "status":
		return string(r.Status)
	case "calculator":
		return r.Calculator
	case "error":
		return r.Error
	case "command":
		return r.Command
	}
	if v, ok := r.Inputs[col]; ok {
		return v
	}
	return r.Outputs[col]
}
