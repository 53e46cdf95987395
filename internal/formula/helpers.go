package formula

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// LoadHelpers scans a directory for .star files and loads each as a helper
// namespace, named after the file (e.g. geometry.star provides
// geometry.area(...)). Names starting with "_" are private to the file.
// A missing directory is not an error; the study simply has no helpers.
func LoadHelpers(dir string) (starlark.StringDict, error) {
	helpers := make(starlark.StringDict)
	if dir == "" {
		return helpers, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return helpers, nil
		}
		return nil, fmt.Errorf("failed to access helpers directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("helpers path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan helpers directory: %w", err)
	}

	for _, file := range files {
		namespace := strings.TrimSuffix(filepath.Base(file), ".star")
		if err := validateNamespace(namespace); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}

		exports, err := loadFile(file, namespace)
		if err != nil {
			return nil, err
		}

		helpers[namespace] = &starlarkstruct.Module{
			Name:    namespace,
			Members: exports,
		}
	}

	return helpers, nil
}

// loadFile executes a single .star file and returns its public bindings.
func loadFile(path, namespace string) (starlark.StringDict, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob within the helpers directory
	if err != nil {
		return nil, fmt.Errorf("failed to read helper file %s: %w", path, err)
	}

	thread := &starlark.Thread{
		Name: fmt.Sprintf("load:%s", namespace),
		Print: func(_ *starlark.Thread, _ string) {
			// Ignore prints during helper loading.
		},
	}

	globals, err := starlark.ExecFile(thread, path, content, starlark.StringDict{
		"math": math.Module,
		"time": time.Module,
	})
	if err != nil {
		return nil, fmt.Errorf("helper file %s: %w", path, err)
	}

	exports := make(starlark.StringDict)
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}
	return exports, nil
}

// validateNamespace checks that a namespace derived from a filename is a
// legal Starlark identifier and does not collide with a builtin module.
func validateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("empty helper namespace")
	}
	if ns == "math" || ns == "time" {
		return fmt.Errorf("helper namespace %q conflicts with a builtin module", ns)
	}
	for i, r := range ns {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("helper namespace %q is not a valid identifier", ns)
		}
	}
	return nil
}
