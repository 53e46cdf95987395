package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "casegrid.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "casegrid.yml"

// configFileUsed tracks the config file loaded by the last LoadConfig call.
var configFileUsed string

// findConfigFile finds the config file to use.
// Priority: explicit path > casegrid.yaml > casegrid.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if _, err := os.Stat(ConfigFileNameAlt); err == nil {
		return ConfigFileNameAlt
	}
	return ""
}

// flagKey maps a CLI flag name to its config key. Flags are kebab-case and
// a few use short names for brevity; config keys are snake_case.
func flagKey(name string) string {
	switch name {
	case "results":
		return "results_dir"
	case "helpers":
		return "helpers_dir"
	case "calculator":
		return "calculators"
	case "retries":
		return "max_retries"
	case "workers":
		return "max_workers"
	case "state":
		return "state_path"
	}
	return strings.ReplaceAll(name, "-", "_")
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"results_dir": DefaultResultsDir,
		"state_path":  DefaultStateFile,
		"max_retries": DefaultMaxRetries,
		"max_workers": DefaultMaxWorkers,
		"keepalive":   DefaultKeepalive,
		"format":      DefaultFormat,
		"verbose":     false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (CASEGRID_ prefix)
	// Transform: CASEGRID_MAX_RETRIES -> max_retries
	if err := k.Load(env.Provider("CASEGRID_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CASEGRID_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}
