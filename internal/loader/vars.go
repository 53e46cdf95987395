// Package loader reads study inputs from YAML files: the ordered variable
// set and the model declaration.
package loader

import (
	"fmt"
	"os"

	"github.com/casegrid-labs/casegrid/pkg/core"
	"gopkg.in/yaml.v3"
)

// LoadVarSet parses a variables file into an ordered variable set. The
// file is a YAML mapping from variable name to either a scalar or a list
// of scalars; declaration order is preserved, which fixes case enumeration
// order (first declared varies slowest).
func LoadVarSet(path string) (core.VarSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is user-supplied on purpose
	if err != nil {
		return nil, fmt.Errorf("failed to read variables file: %w", err)
	}
	return ParseVarSet(data)
}

// ParseVarSet parses variables YAML. Decoding goes through yaml.Node
// because plain map decoding would lose declaration order.
func ParseVarSet(data []byte) (core.VarSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid variables file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("variables file must be a mapping of name to value(s)")
	}

	var vars core.VarSet
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode := root.Content[i]
		valNode := root.Content[i+1]

		var values []any
		switch valNode.Kind {
		case yaml.SequenceNode:
			for _, elem := range valNode.Content {
				v, err := scalarValue(elem)
				if err != nil {
					return nil, fmt.Errorf("variable %q: %w", keyNode.Value, err)
				}
				values = append(values, v)
			}
		case yaml.ScalarNode:
			v, err := scalarValue(valNode)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", keyNode.Value, err)
			}
			values = []any{v}
		default:
			return nil, fmt.Errorf("variable %q: value must be a scalar or a list of scalars", keyNode.Value)
		}

		vars = append(vars, core.VarDef{Name: keyNode.Value, Values: values})
	}

	if err := vars.Validate(); err != nil {
		return nil, err
	}
	return vars, nil
}

// scalarValue decodes a scalar node into the Go type it looks like.
func scalarValue(node *yaml.Node) (any, error) {
	if node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("nested structures are not supported")
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
