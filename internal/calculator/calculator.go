// Package calculator provides the execution backends a case can run on:
// a local shell command, a remote command over SSH, or a cache lookup
// against a prior results directory. Calculators are parsed once from
// their URI form at configuration load time.
package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/casegrid-labs/casegrid/pkg/core"
)

// Calculator is one URI-addressed execution backend. Implementations are
// stateless descriptors apart from reusable transport sessions; the
// dispatcher serializes access so at most one case runs on a calculator
// at a time.
type Calculator interface {
	// URI returns the canonical URI the calculator was parsed from.
	URI() string

	// Run drives one case to completion in cs.Dir. It returns the exact
	// invocation used. A *core.CacheMissError return means the calculator
	// declines the case and the dispatcher should try the next one.
	Run(ctx context.Context, cs *core.Case) (command string, err error)

	// Close releases any long-lived transport state.
	Close() error
}

// Scheme names.
const (
	SchemeShell = "sh"
	SchemeSSH   = "ssh"
	SchemeCache = "cache"
)

// Options carries shared construction parameters.
type Options struct {
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger

	// Keepalive is the interval between SSH keepalive requests
	// (<= 0 disables them).
	Keepalive time.Duration
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Parse turns a calculator URI into its concrete backend. A malformed URI
// is structurally invalid configuration and therefore fatal to the run.
func Parse(uri string, opts Options) (Calculator, error) {
	scheme, body, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, fmt.Errorf("malformed calculator URI %q: missing scheme", uri)
	}

	switch scheme {
	case SchemeShell:
		return newShell(body, opts)
	case SchemeSSH:
		return newSSH(body, opts)
	case SchemeCache:
		return newCache(body, opts)
	default:
		return nil, fmt.Errorf("malformed calculator URI %q: unknown scheme %q", uri, scheme)
	}
}

// ParseAll parses an ordered calculator list, preserving order. Order is
// significant: it is the failover chain.
func ParseAll(uris []string, opts Options) ([]Calculator, error) {
	if len(uris) == 0 {
		return nil, fmt.Errorf("no calculators configured")
	}

	calcs := make([]Calculator, 0, len(uris))
	for _, uri := range uris {
		c, err := Parse(uri, opts)
		if err != nil {
			for _, open := range calcs {
				_ = open.Close()
			}
			return nil, err
		}
		calcs = append(calcs, c)
	}
	return calcs, nil
}

// CloseAll closes every calculator, keeping the first error.
func CloseAll(calcs []Calculator) error {
	var first error
	for _, c := range calcs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
