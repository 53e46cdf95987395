package commands

import (
	"github.com/casegrid-labs/casegrid/internal/aggregate"
	"github.com/casegrid-labs/casegrid/internal/study"
	"github.com/spf13/cobra"
)

// NewCollectCommand creates the collect command.
func NewCollectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Re-aggregate an existing results directory",
		Long: `Run the model's output extraction over the case directories of an
existing results directory and print the result table, without
recompiling or re-running any case.`,
		Example: `  casegrid collect -o results -m model.yaml --format csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd)

			model, err := resolveModel(cfg)
			if err != nil {
				return err
			}

			s := study.New(study.Config{Model: model, Logger: getLogger(cmd)})
			rs, err := s.CollectDir(cmd.Context(), cfg.ResultsDir)
			if err != nil {
				return err
			}
			return aggregate.Render(cmd.OutOrStdout(), rs, cfg.Format)
		},
	}
}
