package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/merchant-catalog-export/internal/config"
	"github.com/Sternrassler/merchant-catalog-export/internal/scrape"
	"github.com/Sternrassler/merchant-catalog-export/pkg/logging"
	"github.com/spf13/cobra"
)

type runFlags struct {
	output      string
	pages       int
	imageDir    string
	noImages    bool
	workers     int
	logLevel    string
	metricsFile string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one catalog export",
		Long: `Fetch compatibility data and products, enrich every product,
download its images and write the CSV.

Failed or interrupted listings keep what was collected; the command still
exits 0 and the report marks the run as incomplete.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			runID := logging.NewRunID()
			logging.Setup(logConfig(cfg, cmd, runID))
			logger := logging.NewLogger("scrape")

			runner, err := scrape.New(cfg, scrape.WithLogger(logger), scrape.WithRunID(runID))
			if err != nil {
				return err
			}
			defer runner.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := runner.Run(runCtx)
			if err != nil {
				if errors.Is(err, scrape.ErrLocked) {
					return fmt.Errorf("%w; wait for it to finish or remove a stale lock in %s", err, cfg.Images.Dir)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.Table())
			switch {
			case report.Interrupted:
				fmt.Fprintln(out, "Export interrupted; the CSV holds what was collected.")
			case report.Partial():
				fmt.Fprintln(out, "Export incomplete; see the log for the failed listings.")
			}
			if !report.CSVWritten {
				fmt.Fprintln(out, "No products collected; no CSV written.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "CSV output path")
	cmd.Flags().IntVar(&flags.pages, "pages", 0, "Maximum number of product pages (0 = until the listing ends)")
	cmd.Flags().StringVar(&flags.imageDir, "image-dir", "", "Image root directory")
	cmd.Flags().BoolVar(&flags.noImages, "no-images", false, "Skip image downloads")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Parallel image downloads")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")

	return cmd
}

// apply overrides cfg with the flags set on cmd and validates the result.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("output") {
		path, err := config.ExpandPath(f.output)
		if err != nil {
			return fmt.Errorf("resolve --output: %w", err)
		}
		cfg.Output.CSVPath = path
	}
	if changed("pages") {
		cfg.Products.MaxPages = f.pages
	}
	if changed("image-dir") {
		dir, err := config.ExpandPath(f.imageDir)
		if err != nil {
			return fmt.Errorf("resolve --image-dir: %w", err)
		}
		cfg.Images.Dir = dir
	}
	if f.noImages {
		cfg.Images.Enabled = false
	}
	if changed("workers") {
		cfg.Images.Workers = f.workers
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("metrics-file") {
		path, err := config.ExpandPath(f.metricsFile)
		if err != nil {
			return fmt.Errorf("resolve --metrics-file: %w", err)
		}
		cfg.Output.MetricsFile = path
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func logConfig(cfg *config.Config, cmd *cobra.Command, runID string) logging.Config {
	out := cmd.ErrOrStderr()

	pretty := logging.IsTerminal(out)
	switch cfg.Logging.Format {
	case config.LogFormatConsole:
		pretty = true
	case config.LogFormatJSON:
		pretty = false
	}

	return logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: pretty,
		Output: out,
		RunID:  runID,
	}
}
