package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/casegrid-labs/casegrid/internal/aggregate"
	"github.com/casegrid-labs/casegrid/internal/study"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// debounceDelay coalesces the event bursts editors produce on save.
const debounceDelay = 500 * time.Millisecond

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run the study when the template or variables change",
		Long: `Run the full pipeline, then watch the template and the variables file
and re-run on every change until interrupted.`,
		Example: `  casegrid watch -t heat.tmpl --vars vars.yaml -c "sh://./solve.sh" -o results`,
		RunE:    runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
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

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the containing directories: editors replace files on save,
	// which would invalidate a watch on the file itself.
	watched := map[string]bool{}
	for _, target := range []string{cfg.Template, cfg.VarsFile} {
		dir := filepath.Dir(target)
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			dir = target
		}
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched[dir] = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOnce := func() {
		rs, err := s.Run(ctx)
		if rs != nil {
			if rerr := aggregate.Render(cmd.OutOrStdout(), rs, cfg.Format); rerr != nil {
				logger.Warn("failed to render results", "error", rerr)
			}
		}
		if err != nil && !errors.Is(err, ctx.Err()) {
			logger.Warn("study failed", "error", err)
		}
	}

	runOnce()
	fmt.Fprintln(cmd.ErrOrStderr(), "Watching for changes (Ctrl-C to stop)")

	var debounce *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("change detected", "file", event.Name, "op", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-pending:
			runOnce()
		}
	}
}
