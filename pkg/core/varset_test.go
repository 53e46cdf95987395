package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarSetCaseCount(t *testing.T) {
	tests := []struct {
		name string
		vars VarSet
		want int
	}{
		{
			name: "empty set",
			vars: VarSet{},
			want: 1,
		},
		{
			name: "scalars only",
			vars: VarSet{
				{Name: "a", Values: []any{1}},
				{Name: "b", Values: []any{"x"}},
			},
			want: 1,
		},
		{
			name: "two lists",
			vars: VarSet{
				{Name: "a", Values: []any{1, 2, 3}},
				{Name: "b", Values: []any{"x", "y"}},
			},
			want: 6,
		},
		{
			name: "list and scalar",
			vars: VarSet{
				{Name: "a", Values: []any{1, 2}},
				{Name: "c", Values: []any{0.5}},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.vars.CaseCount())
		})
	}
}

func TestVarSetValidate(t *testing.T) {
	valid := VarSet{
		{Name: "a", Values: []any{1, 2}},
		{Name: "b", Values: []any{"x"}},
	}
	require.NoError(t, valid.Validate())

	dup := VarSet{
		{Name: "a", Values: []any{1}},
		{Name: "a", Values: []any{2}},
	}
	assert.Error(t, dup.Validate())

	empty := VarSet{{Name: "a"}}
	assert.Error(t, empty.Validate())
}

func TestCaseLabel(t *testing.T) {
	vars := VarSet{
		{Name: "width", Values: []any{0.1, 0.2}},
		{Name: "mesh", Values: []any{"coarse"}},
		{Name: "height", Values: []any{1, 2}},
	}

	label := vars.CaseLabel(map[string]any{
		"width":  0.1,
		"mesh":   "coarse",
		"height": 2,
	})

	// Scalars never appear; varying variables follow declaration order.
	assert.Equal(t, "width=0.1,height=2", label)
}

func TestCaseLabelNoVarying(t *testing.T) {
	vars := VarSet{{Name: "a", Values: []any{1}}}
	assert.Equal(t, "case", vars.CaseLabel(map[string]any{"a": 1}))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "1", ValueString(1))
	assert.Equal(t, "0.1", ValueString(0.1))
	assert.Equal(t, "2", ValueString(2.0))
	assert.Equal(t, "true", ValueString(true))
	assert.Equal(t, "coarse", ValueString("coarse"))
}

func TestModelValidate(t *testing.T) {
	m := DefaultModel()
	require.NoError(t, m.Validate())

	m = &Model{VarMarker: "$", FormulaMarker: "$", DelimOpen: "{", DelimClose: "}"}
	assert.Error(t, m.Validate())

	m = DefaultModel()
	m.Output = map[string]string{"pressure": ""}
	assert.Error(t, m.Validate())
}
