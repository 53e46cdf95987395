package core

import "fmt"

// Default marker syntax. Matches the conventions of the classic parametric
// template format: "$x" for variables, "@{...}" for formulas, "#" comments.
const (
	DefaultVarMarker     = "$"
	DefaultFormulaMarker = "@"
	DefaultDelimOpen     = "{"
	DefaultDelimClose    = "}"
	DefaultCommentMarker = "#"
)

// Model describes the marker syntax and output extraction commands for a
// parametric study. It is validated once at load time and treated as
// immutable afterwards.
type Model struct {
	// ID is an optional identifier used when the model is saved to or
	// loaded from the alias store.
	ID string `yaml:"id" koanf:"id"`

	// VarMarker introduces a variable reference (e.g. "$" in "$width").
	VarMarker string `yaml:"var_marker" koanf:"var_marker"`

	// FormulaMarker introduces a formula block (e.g. "@" in "@{2 * width}").
	FormulaMarker string `yaml:"formula_marker" koanf:"formula_marker"`

	// DelimOpen and DelimClose delimit the body of a formula block.
	DelimOpen  string `yaml:"delim_open" koanf:"delim_open"`
	DelimClose string `yaml:"delim_close" koanf:"delim_close"`

	// CommentMarker marks a line as a comment when it appears at the start
	// of the line (ignoring leading whitespace).
	CommentMarker string `yaml:"comment_marker" koanf:"comment_marker"`

	// Output maps an output variable name to the shell command that
	// extracts its value from a case's output directory.
	Output map[string]string `yaml:"output" koanf:"output"`
}

// ApplyDefaults fills unset marker fields with the default syntax.
func (m *Model) ApplyDefaults() {
	if m.VarMarker == "" {
		m.VarMarker = DefaultVarMarker
	}
	if m.FormulaMarker == "" {
		m.FormulaMarker = DefaultFormulaMarker
	}
	if m.DelimOpen == "" {
		m.DelimOpen = DefaultDelimOpen
	}
	if m.DelimClose == "" {
		m.DelimClose = DefaultDelimClose
	}
	if m.CommentMarker == "" {
		m.CommentMarker = DefaultCommentMarker
	}
}

// Validate checks the model for structurally invalid configuration.
// Marker fields must be non-conflicting single tokens; an empty output map
// is allowed (the study then produces only execution metadata).
func (m *Model) Validate() error {
	if m.VarMarker == m.FormulaMarker {
		return fmt.Errorf("variable marker %q conflicts with formula marker", m.VarMarker)
	}
	if m.DelimOpen == m.DelimClose {
		return fmt.Errorf("formula delimiters must differ, got %q for both", m.DelimOpen)
	}
	for name, cmd := range m.Output {
		if name == "" {
			return fmt.Errorf("output variable with empty name")
		}
		if cmd == "" {
			return fmt.Errorf("output variable %q has an empty extraction command", name)
		}
	}
	return nil
}

// DefaultModel returns a model with the default marker syntax and no
// output variables.
func DefaultModel() *Model {
	m := &Model{}
	m.ApplyDefaults()
	return m
}
