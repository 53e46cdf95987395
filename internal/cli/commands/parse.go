package commands

import (
	"fmt"

	"github.com/casegrid-labs/casegrid/internal/parser"
	"github.com/spf13/cobra"
)

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse",
		Short: "List the variables a template references",
		Long: `Scan the template and print every distinct variable name it references,
one per line, sorted. Useful for drafting the variables file.`,
		Example: `  casegrid parse -t heat.tmpl
  casegrid parse -t templates/ -m model.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd)
			if cfg.Template == "" {
				return fmt.Errorf("no template given (use --template)")
			}

			model, err := resolveModel(cfg)
			if err != nil {
				return err
			}

			names, err := parser.ParseVariables(cfg.Template, model)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
