// Package parser scans templates for variable references and formula
// blocks using a model's configurable marker syntax.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/casegrid-labs/casegrid/internal/fsutil"
	"github.com/casegrid-labs/casegrid/pkg/core"
)

// ParseVariables returns the distinct variable names referenced by the
// template at path, sorted lexically. The template may be a single file or
// a directory tree. An unreadable template yields a *core.ParseError; a
// template with no references yields an empty set.
func ParseVariables(path string, model *core.Model) ([]string, error) {
	syntax, err := NewSyntax(model)
	if err != nil {
		return nil, &core.ParseError{Path: path, Err: err}
	}

	files, err := TemplateFiles(path)
	if err != nil {
		return nil, &core.ParseError{Path: path, Err: err}
	}

	seen := make(map[string]bool)
	for _, file := range files {
		content, err := os.ReadFile(file) //nolint:gosec // G304: file comes from walking the template path
		if err != nil {
			return nil, &core.ParseError{Path: file, Err: err}
		}
		for _, name := range syntax.Refs(string(content)) {
			seen[name] = true
		}
	}

	if len(seen) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// TemplateFiles resolves a template path to the absolute paths of its
// files, in deterministic order. A single-file template resolves to
// itself.
func TemplateFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("template not readable: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	rels, err := fsutil.ListFiles(path)
	if err != nil {
		return nil, fmt.Errorf("template not readable: %w", err)
	}

	files := make([]string, len(rels))
	for i, rel := range rels {
		files[i] = filepath.Join(path, rel)
	}
	return files, nil
}
