// Package commands implements the casegrid subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/casegrid-labs/casegrid/internal/cli/config"
	"github.com/casegrid-labs/casegrid/internal/loader"
	"github.com/casegrid-labs/casegrid/internal/store"
	"github.com/casegrid-labs/casegrid/pkg/core"
	"github.com/spf13/cobra"
)

// ConfigKey is the context key under which the root command stores the
// resolved configuration.
type ConfigKey struct{}

// LoggerKey is the context key under which the root command stores the
// logger.
type LoggerKey struct{}

func getConfig(cmd *cobra.Command) *config.Config {
	if c, ok := cmd.Context().Value(ConfigKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		ResultsDir: config.DefaultResultsDir,
		StatePath:  config.DefaultStateFile,
		MaxRetries: config.DefaultMaxRetries,
		MaxWorkers: config.DefaultMaxWorkers,
		Keepalive:  config.DefaultKeepalive,
		Format:     config.DefaultFormat,
	}
}

func getLogger(cmd *cobra.Command) *slog.Logger {
	if l, ok := cmd.Context().Value(LoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// openStore opens the state database, creating the schema when needed.
func openStore(path string) (core.Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	s := store.NewSQLiteStore()
	if err := s.Open(path); err != nil {
		return nil, err
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// resolveModel loads the configured model: a file path when one exists at
// the given location, otherwise a saved alias from the state store. An
// empty setting yields the default model.
func resolveModel(cfg *config.Config) (*core.Model, error) {
	if cfg.Model == "" {
		return core.DefaultModel(), nil
	}

	if _, err := os.Stat(cfg.Model); err == nil {
		return loader.LoadModel(cfg.Model)
	}

	s, err := openStore(cfg.StatePath)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	model, err := s.GetModel(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("model %q is neither a file nor a saved alias: %w", cfg.Model, err)
	}
	return model, nil
}
