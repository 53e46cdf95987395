// Package compiler turns a template plus a variable set into one compiled
// input tree per case. Substitution happens first, then formula blocks are
// evaluated in file order with one shared environment per case.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/casegrid-labs/casegrid/internal/formula"
	"github.com/casegrid-labs/casegrid/internal/parser"
	"github.com/casegrid-labs/casegrid/pkg/core"
	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// Compiler compiles cases for one study. Safe for one Compile call at a
// time; individual cases compile concurrently.
type Compiler struct {
	model   *core.Model
	syntax  *parser.Syntax
	helpers starlark.StringDict
	logger  *slog.Logger
	workers int
}

// Config holds compiler configuration.
type Config struct {
	// Model declares the marker syntax.
	Model *core.Model

	// HelpersDir is an optional directory of .star helper files exposed
	// to formulas (empty to skip).
	HelpersDir string

	// Workers bounds concurrent case compilation (<= 0 means sequential).
	Workers int

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates a compiler, compiling the model's marker syntax and loading
// helper files once.
func New(cfg Config) (*Compiler, error) {
	model := cfg.Model
	if model == nil {
		model = core.DefaultModel()
	}

	syntax, err := parser.NewSyntax(model)
	if err != nil {
		return nil, err
	}

	helpers, err := formula.LoadHelpers(cfg.HelpersDir)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Compiler{
		model:   model,
		syntax:  syntax,
		helpers: helpers,
		logger:  logger,
		workers: workers,
	}, nil
}

// Compile enumerates the cases of vars and writes one compiled input tree
// per case under outDir. A case whose formula evaluation fails is marked
// failed with its *core.CompileError recorded; the remaining cases still
// compile. The returned error is non-nil only for whole-run failures
// (unreadable template, unusable output directory).
func (c *Compiler) Compile(ctx context.Context, templatePath string, vars core.VarSet, outDir string) ([]*core.Case, error) {
	if err := vars.Validate(); err != nil {
		return nil, err
	}

	files, err := parser.TemplateFiles(templatePath)
	if err != nil {
		return nil, &core.ParseError{Path: templatePath, Err: err}
	}

	info, err := os.Stat(templatePath)
	if err != nil {
		return nil, &core.ParseError{Path: templatePath, Err: err}
	}
	isDir := info.IsDir()

	// Read every template file once; cases share the raw content.
	contents := make(map[string]string, len(files))
	for _, file := range files {
		raw, err := os.ReadFile(file) //nolint:gosec // G304: file comes from walking the template path
		if err != nil {
			return nil, &core.ParseError{Path: file, Err: err}
		}
		contents[file] = string(raw)
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	cases := EnumerateCases(vars)
	c.logger.Debug("enumerated cases", "count", len(cases), "varying", vars.VaryingNames())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, cs := range cases {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.compileCase(cs, templatePath, isDir, files, contents, outDir); err != nil {
				// Partial-failure semantics: record and continue.
				cs.Status = core.CaseStatusFailed
				cs.Error = err.Error()
				c.logger.Debug("case failed to compile", "label", cs.Label, "error", err)
				return nil
			}
			c.logger.Debug("case compiled", "label", cs.Label, "dir", cs.Dir)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return cases, err
	}
	return cases, nil
}

// compileCase writes the substituted, evaluated template for one case.
func (c *Compiler) compileCase(cs *core.Case, templatePath string, isDir bool, files []string, contents map[string]string, outDir string) error {
	cs.Dir = filepath.Join(outDir, cs.Label)
	inputDir := filepath.Join(cs.Dir, core.InputDirName)
	if err := os.MkdirAll(inputDir, 0o750); err != nil {
		return fmt.Errorf("case %s: %w", cs.Label, err)
	}

	// One evaluation environment per case: helpers plus the case's own
	// variable values, shared across every formula block of the case.
	env := formula.NewEnv(cs.Label, c.helpers)
	for name, value := range cs.Vars {
		env.Define(name, formula.FromGo(value))
	}

	for _, file := range files {
		rel := filepath.Base(file)
		if isDir {
			r, err := filepath.Rel(templatePath, file)
			if err != nil {
				return fmt.Errorf("case %s: %w", cs.Label, err)
			}
			rel = r
		}

		compiled, err := c.compileText(cs, env, contents[file], rel)
		if err != nil {
			return err
		}

		dst := filepath.Join(inputDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return fmt.Errorf("case %s: %w", cs.Label, err)
		}
		if err := os.WriteFile(dst, []byte(compiled), 0o640); err != nil {
			return fmt.Errorf("case %s: %w", cs.Label, err)
		}
	}

	if isDir {
		cs.InputPath = inputDir
	} else {
		cs.InputPath = filepath.Join(inputDir, filepath.Base(templatePath))
	}
	return nil
}

// compileText substitutes variables and evaluates formulas in one file.
func (c *Compiler) compileText(cs *core.Case, env *formula.Env, text, file string) (string, error) {
	substituted := c.syntax.Substitute(text, cs.Vars)

	// Any reference left after substitution names an undefined variable.
	if undefined := c.syntax.Refs(substituted); len(undefined) > 0 {
		return "", &core.CompileError{
			Label: cs.Label,
			File:  file,
			Err:   fmt.Errorf("undefined variable %q", undefined[0]),
		}
	}

	formulas, err := c.syntax.Formulas(substituted)
	if err != nil {
		return "", &core.CompileError{Label: cs.Label, File: file, Err: err}
	}
	if len(formulas) == 0 {
		return substituted, nil
	}

	var out strings.Builder
	prev := 0
	for _, f := range formulas {
		value, err := env.EvalBlock(f.Body, file)
		if err != nil {
			return "", &core.CompileError{
				Label:   cs.Label,
				File:    file,
				Formula: strings.TrimSpace(f.Body),
				Err:     err,
			}
		}
		out.WriteString(substituted[prev:f.Start])
		out.WriteString(value)
		prev = f.End
	}
	out.WriteString(substituted[prev:])
	return out.String(), nil
}
