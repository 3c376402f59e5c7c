package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/payslip-crawler/internal/config"
	"github.com/jonathan/payslip-crawler/internal/crawler"
	"github.com/jonathan/payslip-crawler/internal/ledger"
	"github.com/jonathan/payslip-crawler/internal/observability"
	"github.com/jonathan/payslip-crawler/internal/payslip"
	"github.com/jonathan/payslip-crawler/internal/session"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Download every payroll receipt from the portal",
	Long:  "Logs into the portal, walks the document records list from the saved position and downloads and renames the receipts of each item. Exits non-zero when no item succeeded.",
	Args:  cobra.NoArgs,
	RunE:  runCrawl,
}

var (
	crawlHeadless        bool
	crawlForceRestart    bool
	crawlBatchSize       int
	crawlMaxItems        int
	crawlMaxFailures     int
	crawlStepTimeout     time.Duration
	crawlDownloadTimeout time.Duration
)

func init() {
	crawlCmd.Flags().BoolVar(&crawlHeadless, "headless", true, "Run the browser without a window (overrides HEADLESS)")
	crawlCmd.Flags().BoolVar(&crawlForceRestart, "force-restart", false, "Ignore saved progress and start at the first item")
	crawlCmd.Flags().IntVar(&crawlBatchSize, "batch-size", crawler.DefaultBatchSize, "Items revealed per \"load more\" click")
	crawlCmd.Flags().IntVar(&crawlMaxItems, "max-items", crawler.DefaultMaxItems, "Stop after this list index")
	crawlCmd.Flags().IntVar(&crawlMaxFailures, "max-failures", 10, "Abort after this many failed items in a row (0 never aborts)")
	crawlCmd.Flags().DurationVar(&crawlStepTimeout, "step-timeout", 30*time.Second, "Timeout of each browser step")
	crawlCmd.Flags().DurationVar(&crawlDownloadTimeout, "download-timeout", 20*time.Second, "Timeout of each download")

	rootCmd.AddCommand(crawlCmd)
}

// applyCrawlFlags copies the crawl flags that were set explicitly.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.Headless = crawlHeadless
	}
	if flags.Changed("force-restart") {
		cfg.ForceRestart = crawlForceRestart
	}
	if flags.Changed("batch-size") {
		cfg.BatchSize = crawlBatchSize
	}
	if flags.Changed("max-items") {
		cfg.MaxItems = crawlMaxItems
	}
	if flags.Changed("max-failures") {
		cfg.MaxConsecutiveFailures = crawlMaxFailures
	}
	if flags.Changed("step-timeout") {
		cfg.StepTimeout = config.Duration(crawlStepTimeout)
	}
	if flags.Changed("download-timeout") {
		cfg.DownloadTimeout = config.Duration(crawlDownloadTimeout)
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	if err := os.MkdirAll(cfg.DownloadPath, 0755); err != nil {
		return fmt.Errorf("failed to create download directory %s: %w", cfg.DownloadPath, err)
	}
	layout := payslip.Layout{Root: cfg.DownloadPath}
	files := storage.NewDisk()

	store, closeStore, _, err := openStore(ctx, cfg, files, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	led, run := startRun(ctx, cfg, ledger.KindCrawl, logger)
	if led != nil {
		defer func() { _ = led.Close() }()
	}
	var recorder crawler.Recorder
	if run != nil {
		recorder = run
	}

	selectors := cfg.EffectiveSelectors()
	logger.Info("starting crawl",
		zap.String("download_path", cfg.DownloadPath),
		zap.Bool("headless", cfg.Headless),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("max_items", cfg.MaxItems),
	)

	controller := crawler.NewController(
		crawler.Options{
			BatchSize:              cfg.BatchSize,
			MaxItems:               cfg.MaxItems,
			MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
			ForceRestart:           cfg.ForceRestart,
			VerifyInterval:         cfg.SettleDelay.Std(),
			Layout:                 layout,
		},
		crawler.Deps{
			NewSession: func(ctx context.Context) (session.Session, error) {
				chrome, err := session.NewChrome(ctx, session.ChromeOptions{
					Headless:        cfg.Headless,
					Timeout:         cfg.StepTimeout.Std(),
					DownloadTimeout: cfg.DownloadTimeout.Std(),
					Settle:          cfg.SettleDelay.Std(),
					DiagnosticsDir:  layout.DiagnosticsDir(),
					Files:           files,
					Logger:          logger.Named("session"),
				})
				if err != nil {
					return nil, err
				}
				return chrome, nil
			},
			Entry: &crawler.Portal{
				LoginURL:     cfg.LoginURL,
				DocumentsURL: cfg.DocumentsURL,
				Credentials:  crawler.Credentials{Username: cfg.Username, Password: cfg.Password},
				Selectors:    selectors,
				Logger:       logger.Named("portal"),
			},
			Store:     store,
			Files:     files,
			Recorder:  recorder,
			Selectors: selectors,
			Logger:    logger,
		},
	)

	summary, runErr := controller.Run(ctx)

	if run != nil {
		stats := ledger.Stats{
			Processed: summary.Processed,
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
			Files:     summary.Files,
		}
		if err := run.Finish(context.WithoutCancel(ctx), string(summary.Status), stats); err != nil {
			logger.Warn("failed to finish ledger run", zap.Error(err))
		}
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintRunSummary(summary)
	return crawlResult(summary, runErr, logger)
}

// crawlResult decides the exit status: success iff at least one item
// succeeded in this run. A run-level error after some successes is only
// logged.
func crawlResult(summary *crawler.Summary, runErr error, logger *zap.Logger) error {
	if runErr != nil {
		logger.Error("crawl stopped", zap.String("status", string(summary.Status)), zap.Error(runErr))
	}
	if summary.Succeeded > 0 {
		return nil
	}
	if runErr != nil {
		return runErr
	}
	return crawler.ErrNothingProcessed
}
