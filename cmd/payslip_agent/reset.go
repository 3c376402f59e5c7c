package main

import (
	"fmt"

	"github.com/jonathan/payslip-crawler/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget saved progress so the next crawl starts at the first item",
	Long:  "Deletes the progress record. Downloaded files and the ledger are kept.",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	store, closeStore, source, err := openStore(ctx, cfg, storage.NewDisk(), logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	logger.Info("progress reset", zap.String("source", source))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Progress cleared: %s\n", source)
	return nil
}
