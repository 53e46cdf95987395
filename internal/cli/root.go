// Package cli provides the command-line interface for casegrid.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/casegrid-labs/casegrid/internal/cli/commands"
	"github.com/casegrid-labs/casegrid/internal/cli/config"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "casegrid",
		Short: "Casegrid - Parametric Study Runner",
		Long: `Casegrid compiles a parameterized template into one input per case,
runs each case through a chain of calculators with caching and failover,
and aggregates the outputs into a single result table.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx := context.WithValue(cmd.Context(), commands.ConfigKey{}, cfg)
			ctx = context.WithValue(ctx, commands.LoggerKey{}, logger)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Parametric study runner built with Go
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./casegrid.yaml)")
	rootCmd.PersistentFlags().StringP("template", "t", "", "Template file or directory")
	rootCmd.PersistentFlags().String("vars", "", "YAML variables file")
	rootCmd.PersistentFlags().StringP("results", "o", "", "Results directory")
	rootCmd.PersistentFlags().StringP("model", "m", "", "Model file or saved alias name")
	rootCmd.PersistentFlags().String("helpers", "", "Directory of .star helper files")
	rootCmd.PersistentFlags().StringArrayP("calculator", "c", nil, "Calculator URI, repeatable (sh://, ssh://, cache://)")
	rootCmd.PersistentFlags().Int("retries", config.DefaultMaxRetries, "Full-chain retries after the first pass")
	rootCmd.PersistentFlags().Int("workers", config.DefaultMaxWorkers, "Concurrent case limit")
	rootCmd.PersistentFlags().Duration("keepalive", config.DefaultKeepalive, "SSH keepalive interval")
	rootCmd.PersistentFlags().String("state", "", "State database path")
	rootCmd.PersistentFlags().StringP("format", "f", "", "Output format (table|csv|json|md)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "csv", "json", "md"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewParseCommand())
	rootCmd.AddCommand(commands.NewCompileCommand())
	rootCmd.AddCommand(commands.NewCollectCommand())
	rootCmd.AddCommand(commands.NewModelCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for casegrid.

To load completions:

Bash:
  $ source <(casegrid completion bash)

Zsh:
  $ casegrid completion zsh > "${fpath[1]}/_casegrid"

Fish:
  $ casegrid completion fish | source

PowerShell:
  PS> casegrid completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
}
