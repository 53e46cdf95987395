package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/casegrid-labs/casegrid/internal/fsutil"
	"github.com/casegrid-labs/casegrid/pkg/core"
)

// cacheCalculator reuses outputs from a prior results directory when the
// case's input fingerprint matches the one persisted there. Reuse is
// gated on the fingerprint, not the case label: a label collision with
// changed inputs is a miss.
type cacheCalculator struct {
	dir    string
	logger *slog.Logger
}

func newCache(body string, opts Options) (Calculator, error) {
	if body == "" {
		return nil, fmt.Errorf("malformed calculator URI: cache:// requires a results directory")
	}
	info, err := os.Stat(body)
	if err != nil {
		return nil, fmt.Errorf("cache directory %s: %w", body, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache path %s is not a directory", body)
	}
	return &cacheCalculator{dir: body, logger: opts.logger()}, nil
}

func (c *cacheCalculator) URI() string {
	return SchemeCache + "://" + c.dir
}

func (c *cacheCalculator) Run(ctx context.Context, cs *core.Case) (string, error) {
	command := fmt.Sprintf("reuse %s", filepath.Join(c.dir, cs.Label))

	fingerprint, err := Fingerprint(cs.InputPath)
	if err != nil {
		return command, &core.CalculatorError{URI: c.URI(), Label: cs.Label, Command: command, Err: err}
	}

	priorDir := filepath.Join(c.dir, cs.Label)
	prior, err := ReadFingerprint(priorDir)
	if err != nil {
		return command, &core.CalculatorError{URI: c.URI(), Label: cs.Label, Command: command, Err: err}
	}
	if prior == "" || prior != fingerprint {
		c.logger.Debug("cache miss", "label", cs.Label, "prior", prior, "want", fingerprint)
		return command, &core.CacheMissError{Dir: c.dir, Label: cs.Label}
	}

	if err := ctx.Err(); err != nil {
		return command, &core.CalculatorError{URI: c.URI(), Label: cs.Label, Command: command, Err: err}
	}

	// Copy the prior outputs, leaving this case's freshly compiled input
	// in place.
	files, err := fsutil.ListFiles(priorDir)
	if err != nil {
		return command, &core.CalculatorError{URI: c.URI(), Label: cs.Label, Command: command, Err: err}
	}
	for _, rel := range files {
		top := rel
		if i := strings.IndexByte(rel, filepath.Separator); i >= 0 {
			top = rel[:i]
		}
		if top == core.InputDirName || rel == FingerprintFile {
			continue
		}
		if err := fsutil.CopyFile(filepath.Join(priorDir, rel), filepath.Join(cs.Dir, rel)); err != nil {
			return command, &core.CalculatorError{URI: c.URI(), Label: cs.Label, Command: command, Err: err}
		}
	}

	c.logger.Debug("cache hit", "label", cs.Label, "prior", priorDir)
	return command, nil
}

func (c *cacheCalculator) Close() error { return nil }
