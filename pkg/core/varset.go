package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// VarDef binds a variable name to either a single scalar value or an
// ordered list of scalar values. List-valued variables are expanded into
// cases; scalars are held constant across all cases.
type VarDef struct {
	Name   string
	Values []any
}

// List reports whether the variable varies across cases.
func (v VarDef) List() bool {
	return len(v.Values) > 1
}

// VarSet is an ordered collection of variable definitions. Order is the
// declaration order from the variables file and determines case enumeration:
// the first declared variable varies slowest.
type VarSet []VarDef

// Names returns the variable names in declaration order.
func (vs VarSet) Names() []string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Name
	}
	return names
}

// VaryingNames returns the names of list-valued variables in declaration order.
func (vs VarSet) VaryingNames() []string {
	var names []string
	for _, v := range vs {
		if v.List() {
			names = append(names, v.Name)
		}
	}
	return names
}

// CaseCount returns the product of all list-valued variable cardinalities.
// An empty set counts as a single case.
func (vs VarSet) CaseCount() int {
	n := 1
	for _, v := range vs {
		if len(v.Values) > 0 {
			n *= len(v.Values)
		}
	}
	return n
}

// Get returns the definition for name, if present.
func (vs VarSet) Get(name string) (VarDef, bool) {
	for _, v := range vs {
		if v.Name == name {
			return v, true
		}
	}
	return VarDef{}, false
}

// Validate checks that every variable has at least one value and that no
// name is declared twice.
func (vs VarSet) Validate() error {
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		if v.Name == "" {
			return fmt.Errorf("variable with empty name")
		}
		if seen[v.Name] {
			return fmt.Errorf("variable %q declared twice", v.Name)
		}
		seen[v.Name] = true
		if len(v.Values) == 0 {
			return fmt.Errorf("variable %q has no values", v.Name)
		}
	}
	return nil
}

// ValueString renders a scalar value the way it is substituted into
// templates and case labels. Floats render without a trailing ".0" when
// integral, matching the textual form users write in variables files.
func ValueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// CaseLabel derives the deterministic label for an assignment of the
// varying variables, e.g. "width=0.1,height=2". Only list-valued variables
// appear, in declaration order. A study with no varying variables yields
// the label "case".
func (vs VarSet) CaseLabel(assignment map[string]any) string {
	var parts []string
	for _, v := range vs {
		if !v.List() {
			continue
		}
		parts = append(parts, v.Name+"="+ValueString(assignment[v.Name]))
	}
	if len(parts) == 0 {
		return "case"
	}
	return strings.Join(parts, ",")
}

// SortedNames returns all variable names sorted lexically. Used where a
// stable order independent of declaration order is needed (e.g. reports).
func (vs VarSet) SortedNames() []string {
	names := vs.Names()
	sort.Strings(names)
	return names
}
