package compiler

import "github.com/casegrid-labs/casegrid/pkg/core"

// EnumerateCases expands a variable set into the full list of cases: the
// Cartesian product of all list-valued variables, scalars held constant.
// The first declared variable varies slowest, so enumeration is
// deterministic and reproducible across runs with identical inputs.
func EnumerateCases(vars core.VarSet) []*core.Case {
	varying := make([]core.VarDef, 0, len(vars))
	for _, v := range vars {
		if v.List() {
			varying = append(varying, v)
		}
	}

	total := vars.CaseCount()
	cases := make([]*core.Case, 0, total)
	indices := make([]int, len(varying))

	for i := 0; i < total; i++ {
		assignment := make(map[string]any, len(vars))
		for _, v := range vars {
			assignment[v.Name] = v.Values[0]
		}
		for j, v := range varying {
			assignment[v.Name] = v.Values[indices[j]]
		}

		cases = append(cases, &core.Case{
			Index:  i,
			Label:  vars.CaseLabel(assignment),
			Vars:   assignment,
			Status: core.CaseStatusPending,
		})

		// Advance the odometer, last variable fastest.
		for j := len(indices) - 1; j >= 0; j-- {
			indices[j]++
			if indices[j] < len(varying[j].Values) {
				break
			}
			indices[j] = 0
		}
	}

	return cases
}
