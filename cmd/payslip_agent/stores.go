package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jonathan/payslip-crawler/internal/config"
	"github.com/jonathan/payslip-crawler/internal/ledger"
	"github.com/jonathan/payslip-crawler/internal/progress"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"go.uber.org/zap"
)

// openStore returns the progress backend selected by cfg, a close function
// and a description for status output.
func openStore(ctx context.Context, cfg *config.Config, files storage.FileStore, logger *zap.Logger) (progress.Store, func(), string, error) {
	if cfg.DatabaseURL != "" {
		pg, err := progress.ConnectPostgres(ctx, cfg.DatabaseURL, cfg.DownloadPath, logger)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to connect progress database: %w", err)
		}
		return pg, pg.Close, "postgres (" + cfg.DownloadPath + ")", nil
	}
	f := progress.NewFile(cfg.DownloadPath, files, logger)
	return f, func() {}, f.Path(), nil
}

// ledgerPath is where the run ledger of a download root lives.
func ledgerPath(cfg *config.Config) string {
	return filepath.Join(cfg.DownloadPath, ledger.FileName)
}

// startRun opens the ledger and registers a run of kind. A ledger failure
// is logged and the command continues without one.
func startRun(ctx context.Context, cfg *config.Config, kind string, logger *zap.Logger) (*ledger.Ledger, *ledger.Run) {
	if cfg.NoLedger {
		return nil, nil
	}
	led, err := ledger.Open(ledgerPath(cfg))
	if err != nil {
		logger.Warn("ledger unavailable, continuing without it", zap.Error(err))
		return nil, nil
	}
	run, err := led.StartRun(ctx, kind)
	if err != nil {
		logger.Warn("failed to register run in ledger", zap.Error(err))
		_ = led.Close()
		return nil, nil
	}
	logger.Debug("ledger run started", zap.String("run_id", run.ID.String()), zap.String("kind", kind))
	return led, run
}
