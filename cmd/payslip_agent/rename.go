package main

import (
	"context"

	"github.com/jonathan/payslip-crawler/internal/ledger"
	"github.com/jonathan/payslip-crawler/internal/observability"
	"github.com/jonathan/payslip-crawler/internal/rename"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Rename day-named receipts already on disk",
	Long:  "Gives canonical names to receipts downloaded as \"<day>.xml\" or \"<day>.pdf\". XMLs are dated from their content, PDFs from the matching XML or their own text. Safe to run repeatedly.",
	Args:  cobra.NoArgs,
	RunE:  runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	led, run := startRun(ctx, cfg, ledger.KindRename, logger)
	if led != nil {
		defer func() { _ = led.Close() }()
	}
	var recorder rename.Recorder
	if run != nil {
		recorder = run
	}

	report, err := rename.New(cfg.DownloadPath, storage.NewDisk(), recorder, logger).Run(ctx)
	if run != nil {
		status := "done"
		switch {
		case err != nil:
			status = "aborted"
		case report.Interrupted:
			status = "interrupted"
		}
		stats := ledger.Stats{
			Processed: report.Scanned,
			Succeeded: report.Renamed() + report.Duplicates,
			Failed:    report.Unresolved,
			Files:     report.Scanned,
		}
		if ferr := run.Finish(context.WithoutCancel(ctx), status, stats); ferr != nil {
			logger.Warn("failed to finish ledger run", zap.Error(ferr))
		}
	}
	if err != nil {
		return err
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintRenameReport(report)
	return nil
}
