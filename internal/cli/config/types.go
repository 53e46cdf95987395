// Package config loads the CLI configuration from defaults, the config
// file, environment variables, and flags.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults for configuration values not set anywhere else.
const (
	DefaultResultsDir = "results"
	DefaultStateFile  = ".casegrid.db"
	DefaultMaxRetries = 1
	DefaultMaxWorkers = 4
	DefaultKeepalive  = 30 * time.Second
	DefaultFormat     = "table"
)

// Config holds the resolved CLI configuration.
type Config struct {
	// Template is the template file or directory.
	Template string `koanf:"template"`

	// VarsFile is the YAML variables file.
	VarsFile string `koanf:"vars"`

	// ResultsDir is where case directories are created.
	ResultsDir string `koanf:"results_dir"`

	// Model is a model file path or a saved alias name.
	Model string `koanf:"model"`

	// HelpersDir is an optional directory of .star helper files.
	HelpersDir string `koanf:"helpers_dir"`

	// Calculators is the ordered failover chain of calculator URIs.
	Calculators []string `koanf:"calculators"`

	// StatePath is the SQLite state database path.
	StatePath string `koanf:"state_path"`

	MaxRetries int           `koanf:"max_retries"`
	MaxWorkers int           `koanf:"max_workers"`
	Keepalive  time.Duration `koanf:"keepalive"`

	Verbose bool   `koanf:"verbose"`
	Format  string `koanf:"format"`
}

// knownSchemes are the calculator URI schemes accepted at validation time.
var knownSchemes = []string{"sh://", "ssh://", "cache://"}

// Validate checks the configuration for structurally invalid values.
// Calculator URIs are checked syntactically here; full parsing (which may
// touch the filesystem for cache URIs) happens when a run starts.
func (c *Config) Validate() error {
	for _, uri := range c.Calculators {
		valid := false
		for _, scheme := range knownSchemes {
			if strings.HasPrefix(uri, scheme) && len(uri) > len(scheme) {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("malformed calculator URI %q: expected sh://, ssh:// or cache://", uri)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must be >= 0, got %d", c.MaxWorkers)
	}
	return nil
}
