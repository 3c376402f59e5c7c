package main

import (
	"fmt"

	"github.com/jonathan/payslip-crawler/internal/ledger"
	"github.com/jonathan/payslip-crawler/internal/observability"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show saved progress and the run ledger",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusRuns int

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 10, "Number of recent runs to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	files := storage.NewDisk()
	store, closeStore, source, err := openStore(ctx, cfg, files, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}
	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintProgress(source, rec)

	// Only an existing ledger is read; status never creates one.
	if cfg.NoLedger || !files.Exists(ledgerPath(cfg)) {
		return nil
	}
	led, err := ledger.Open(ledgerPath(cfg))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() { _ = led.Close() }()

	summary, err := led.Summary(ctx)
	if err != nil {
		return err
	}
	runs, err := led.RecentRuns(ctx, statusRuns)
	if err != nil {
		return err
	}
	printer.PrintLedgerSummary(summary, runs)
	return nil
}
