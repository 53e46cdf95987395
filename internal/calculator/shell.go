package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/casegrid-labs/casegrid/pkg/core"
)

// Per-case artifact names shared by the shell and ssh backends.
const (
	StdoutFile = "out.txt"
	StderrFile = "err.txt"
)

// shellCalculator runs a command line locally in the case directory, with
// the compiled input path appended as the last argument.
type shellCalculator struct {
	cmdline string
	logger  *slog.Logger
}

func newShell(body string, opts Options) (Calculator, error) {
	if body == "" {
		return nil, fmt.Errorf("malformed calculator URI: sh:// requires a command line")
	}
	return &shellCalculator{cmdline: body, logger: opts.logger()}, nil
}

func (s *shellCalculator) URI() string {
	return SchemeShell + "://" + s.cmdline
}

// shellSafe matches values that need no quoting on an sh command line.
var shellSafe = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

// shellQuote makes s safe to splice into an sh command line. Label-derived
// paths can carry spaces and quotes when a string variable value does.
func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *shellCalculator) Run(ctx context.Context, cs *core.Case) (string, error) {
	command := s.cmdline + " " + shellQuote(cs.InputPath)

	stdout, err := os.Create(filepath.Join(cs.Dir, StdoutFile))
	if err != nil {
		return command, &core.CalculatorError{URI: s.URI(), Label: cs.Label, Command: command, Err: err}
	}
	defer stdout.Close()

	stderr, err := os.Create(filepath.Join(cs.Dir, StderrFile))
	if err != nil {
		return command, &core.CalculatorError{URI: s.URI(), Label: cs.Label, Command: command, Err: err}
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cs.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	s.logger.Debug("running shell calculator", "label", cs.Label, "command", command)

	if err := cmd.Run(); err != nil {
		return command, &core.CalculatorError{URI: s.URI(), Label: cs.Label, Command: command, Err: err}
	}
	return command, nil
}

func (s *shellCalculator) Close() error { return nil }
