package commands

import (
	"fmt"

	"github.com/casegrid-labs/casegrid/internal/study"
	"github.com/casegrid-labs/casegrid/pkg/core"
	"github.com/spf13/cobra"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile one input per case without running anything",
		Long: `Enumerate the cases of the variables file and write the compiled input
tree for each case under the results directory. Nothing is executed.`,
		Example: `  casegrid compile -t heat.tmpl --vars vars.yaml -o results`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd)
			if cfg.Template == "" {
				return fmt.Errorf("no template given (use --template)")
			}
			if cfg.VarsFile == "" {
				return fmt.Errorf("no variables file given (use --vars)")
			}

			model, err := resolveModel(cfg)
			if err != nil {
				return err
			}

			s := study.New(study.Config{
				Template:   cfg.Template,
				VarsFile:   cfg.VarsFile,
				ResultsDir: cfg.ResultsDir,
				HelpersDir: cfg.HelpersDir,
				MaxWorkers: cfg.MaxWorkers,
				Model:      model,
				Logger:     getLogger(cmd),
			})

			cases, _, err := s.Compile(cmd.Context())
			if err != nil {
				return err
			}

			failed := 0
			for _, cs := range cases {
				if cs.Status == core.CaseStatusFailed {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tFAILED: %s\n", cs.Label, cs.Error)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", cs.Label, cs.Dir)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compiled %d cases (%d failed)\n", len(cases), failed)

			if failed > 0 {
				return fmt.Errorf("%d of %d cases failed to compile", failed, len(cases))
			}
			return nil
		},
	}
}
