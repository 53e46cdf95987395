package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/casegrid-labs/casegrid/pkg/core"
	"gopkg.in/yaml.v3"
)

// LoadModel reads a model declaration from a YAML file, applies marker
// defaults, and validates it. Unknown fields are rejected so typos in
// marker configuration surface at load time instead of mid-run.
func LoadModel(path string) (*core.Model, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is user-supplied on purpose
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseModel(data)
}

// ParseModel parses model YAML.
func ParseModel(data []byte) (*core.Model, error) {
	var model core.Model

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&model); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid model file: %w", err)
	}

	model.ApplyDefaults()
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return &model, nil
}

// MarshalModel renders a model back to YAML, used by the alias store.
func MarshalModel(model *core.Model) ([]byte, error) {
	return yaml.Marshal(model)
}
