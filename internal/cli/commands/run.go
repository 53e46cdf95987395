package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casegrid-labs/casegrid/internal/aggregate"
	"github.com/casegrid-labs/casegrid/internal/study"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Compile, execute and aggregate all cases",
		Long: `Run the full pipeline: enumerate cases from the variables file, compile
one input per case, execute each case over the calculator chain, and
print the aggregated result table.

Interrupting the run lets in-flight cases finish and prints the partial
results collected so far.`,
		Example: `  # Two calculators: reuse prior results where possible, compute the rest
  casegrid run -t heat.tmpl --vars vars.yaml -c cache://prior -c "sh://./solve.sh" -o results

  # Remote execution with two retries of the full chain
  casegrid run -t heat.tmpl --vars vars.yaml -c "ssh://user@cluster/solve" --retries 2`,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg := getConfig(cmd)
	logger := getLogger(cmd)

	if cfg.Template == "" {
		return fmt.Errorf("no template given (use --template)")
	}
	if cfg.VarsFile == "" {
		return fmt.Errorf("no variables file given (use --vars)")
	}
	if len(cfg.Calculators) == 0 {
		return fmt.Errorf("no calculators given (use --calculator)")
	}

	model, err := resolveModel(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.StatePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	s := study.New(study.Config{
		Template:    cfg.Template,
		VarsFile:    cfg.VarsFile,
		ResultsDir:  cfg.ResultsDir,
		HelpersDir:  cfg.HelpersDir,
		Calculators: cfg.Calculators,
		MaxRetries:  cfg.MaxRetries,
		MaxWorkers:  cfg.MaxWorkers,
		Keepalive:   cfg.Keepalive,
		Model:       model,
		Store:       st,
		Logger:      logger,
	})

	rs, runErr := s.Run(ctx)
	if rs != nil {
		if err := aggregate.Render(cmd.OutOrStdout(), rs, cfg.Format); err != nil {
			return err
		}
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted, partial results above")
		return runErr
	case runErr != nil:
		return runErr
	}

	if failed := rs.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d cases failed", len(failed), len(rs.Rows))
	}

	logger.Info("study completed", "cases", len(rs.Rows), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
