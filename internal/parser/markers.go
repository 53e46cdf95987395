package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/casegrid-labs/casegrid/pkg/core"
)

// identifier is the legal form of a variable name: letters, digits and
// underscore, not starting with a digit.
const identifier = `[A-Za-z_][A-Za-z0-9_]*`

// Syntax compiles a model's marker configuration into the matchers used by
// scanning and substitution. Built once per run; safe for concurrent use.
type Syntax struct {
	model  *core.Model
	varRef *regexp.Regexp
}

// NewSyntax compiles the marker syntax of a model.
func NewSyntax(model *core.Model) (*Syntax, error) {
	marker := regexp.QuoteMeta(model.VarMarker)
	open := regexp.QuoteMeta(model.DelimOpen)
	close := regexp.QuoteMeta(model.DelimClose)

	// Matches "$name" and the brace-delimited "${name}" form used to
	// separate a reference from adjacent identifier characters.
	varRef, err := regexp.Compile(marker + `(?:` + open + `(` + identifier + `)` + close + `|(` + identifier + `))`)
	if err != nil {
		return nil, fmt.Errorf("invalid variable marker %q: %w", model.VarMarker, err)
	}

	return &Syntax{model: model, varRef: varRef}, nil
}

// CommentLine reports whether a line is a comment under the model's
// line-comment marker.
func (s *Syntax) CommentLine(line string) bool {
	if s.model.CommentMarker == "" {
		return false
	}
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), s.model.CommentMarker)
}

// Refs returns the distinct variable names referenced in text, in first
// occurrence order. Comment lines are skipped; references inside formula
// bodies count, since they are substituted before evaluation.
func (s *Syntax) Refs(text string) []string {
	var names []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		if s.CommentLine(line) {
			continue
		}
		for _, m := range s.varRef.FindAllStringSubmatch(line, -1) {
			name := m[1]
			if name == "" {
				name = m[2]
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Substitute replaces every variable reference with its value's textual
// form. References to names absent from vars are left untouched so the
// caller can detect them as undefined.
func (s *Syntax) Substitute(text string, vars map[string]any) string {
	var out strings.Builder
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			out.WriteByte('\n')
		}
		if s.CommentLine(line) {
			out.WriteString(line)
			continue
		}
		out.WriteString(s.varRef.ReplaceAllStringFunc(line, func(ref string) string {
			m := s.varRef.FindStringSubmatch(ref)
			name := m[1]
			if name == "" {
				name = m[2]
			}
			v, ok := vars[name]
			if !ok {
				return ref
			}
			return core.ValueString(v)
		}))
	}
	return out.String()
}

// Formula is one formula block found in a template file.
type Formula struct {
	// Body is the text between the delimiters, with variable references
	// still unsubstituted.
	Body string

	// Start and End are the byte offsets of the whole block including the
	// marker and delimiters.
	Start, End int

	// Line is the 1-based line of the marker, for error reporting.
	Line int
}

// Formulas extracts the formula blocks of text in file order. Delimiters
// nest, so a Starlark dict literal inside a block does not terminate it.
// An unterminated block is reported as an error.
func (s *Syntax) Formulas(text string) ([]Formula, error) {
	marker := s.model.FormulaMarker + s.model.DelimOpen
	open := s.model.DelimOpen
	close := s.model.DelimClose

	var formulas []Formula
	offset := 0
	for {
		i := strings.Index(text[offset:], marker)
		if i < 0 {
			return formulas, nil
		}
		start := offset + i
		if s.CommentLine(lineOf(text, start)) {
			offset = start + len(marker)
			continue
		}

		depth := 1
		pos := start + len(marker)
		for depth > 0 {
			no := strings.Index(text[pos:], open)
			nc := strings.Index(text[pos:], close)
			if nc < 0 {
				return nil, fmt.Errorf("unterminated formula at line %d", 1+strings.Count(text[:start], "\n"))
			}
			if no >= 0 && no < nc {
				depth++
				pos += no + len(open)
			} else {
				depth--
				pos += nc + len(close)
			}
		}

		formulas = append(formulas, Formula{
			Body:  text[start+len(marker) : pos-len(close)],
			Start: start,
			End:   pos,
			Line:  1 + strings.Count(text[:start], "\n"),
		})
		offset = pos
	}
}

// lineOf returns the full line containing byte offset pos.
func lineOf(text string, pos int) string {
	begin := strings.LastIndexByte(text[:pos], '\n') + 1
	end := strings.IndexByte(text[pos:], '\n')
	if end < 0 {
		return text[begin:]
	}
	return text[begin : pos+end]
}
