package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nextgensh/mdh-export/internal/config"
	"github.com/nextgensh/mdh-export/internal/export"
	"github.com/nextgensh/mdh-export/internal/output"
	"github.com/nextgensh/mdh-export/internal/store"
	"github.com/nextgensh/mdh-export/internal/warehouse"
)

func runExport(cmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		return cmd.Usage()
	}
	if len(args) > 2 {
		return fmt.Errorf("expected <config-file> <output-folder>, got %d arguments", len(args))
	}
	configPath, root := args[0], args[1]

	sel, err := export.ParseSelection(exportList)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Debug("loaded config", "config", cfg.String())

	createRoot, err := checkOutputRoot(root)
	if err != nil {
		return err
	}
	layout := output.DefaultLayout()
	if err := output.Init(root, layout, createRoot); err != nil {
		return fmt.Errorf("initializing output folder: %w", err)
	}

	sess, err := warehouse.Open(cfg, logger)
	if err != nil {
		return err
	}

	opts := export.Options{Root: root, Layout: layout, Logger: logger}
	if !noLedger {
		path := ledgerPath
		if path == "" {
			path = filepath.Join(root, store.DefaultFile)
		}
		s, err := store.Open(path)
		if err != nil {
			logger.Warn("run ledger unavailable, continuing without it", "path", path, "error", err)
		} else {
			defer s.Close()
			opts.Ledger = s
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	rep, runErr := export.New(sess, opts).Run(ctx, sel)

	summaryPath := filepath.Join(root, export.SummaryFile)
	if err := rep.WriteYAML(summaryPath); err != nil {
		logger.Warn("could not write run summary", "path", summaryPath, "error", err)
	}

	printReport(rep, runErr)

	if runErr != nil {
		return runErr
	}
	return rep.Err()
}

// loadConfig reads and validates the config file at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// checkOutputRoot reports whether root must be created, warning when it
// already exists.
func checkOutputRoot(root string) (bool, error) {
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("checking output folder: %w", err)
	case !info.IsDir():
		return false, fmt.Errorf("output folder %s is not a directory", root)
	}

	pterm.Warning.Printfln("Output folder %s already exists. Existing exports will be overwritten.", root)
	return false, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received interrupt signal, stopping export...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func printReport(rep *export.Report, runErr error) {
	if len(rep.Outcomes) > 0 {
		data := pterm.TableData{{"", "Category", "Name", "Rows", "Time"}}
		for _, o := range rep.Outcomes {
			rows := fmt.Sprintf("%d", o.Rows)
			if o.Failed() {
				rows = truncate(o.Error, 60)
			}
			data = append(data, []string{
				outcomeIcon(o),
				string(o.Category),
				truncate(o.Name, 48),
				rows,
				(time.Duration(o.DurationMs) * time.Millisecond).String(),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			logger.Warn("could not render summary table", "error", err)
		}
		pterm.Println()
	}

	title := pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("Export Completed")
	if runErr != nil || rep.Failed > 0 {
		title = pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Export Incomplete")
	}

	details := fmt.Sprintf("Run: %s\nDuration: %s\nFiles written: %d\nFailed: %d",
		rep.RunID,
		rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond),
		rep.Succeeded, rep.Failed,
	)
	if runErr != nil {
		details += "\nError: " + runErr.Error()
	}
	pterm.Println(pterm.DefaultBox.WithTitle(title).WithPadding(1).Sprint(details))
}
