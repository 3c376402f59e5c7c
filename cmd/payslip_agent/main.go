// Package main provides the payslip_agent CLI, which downloads payroll
// receipts from the HR self-service portal and names them by payment date.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/payslip-crawler/internal/config"
	"github.com/jonathan/payslip-crawler/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "payslip_agent",
	Short:         "Payroll receipt crawler",
	Long:          "payslip_agent logs into the HR self-service portal, downloads every payroll receipt (XML and PDF) and renames each file after its payment date. Interrupted runs resume where they stopped.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath  string
	downloadDir string
	databaseURL string
	logFile     string
	verbose     bool
	noLedger    bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a JSON config file")
	flags.StringVarP(&downloadDir, "dir", "d", "", "Download root (overrides DOWNLOAD_PATH)")
	flags.StringVar(&databaseURL, "database-url", "", "Keep progress in PostgreSQL instead of a JSON file (overrides DATABASE_URL)")
	flags.StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotating file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Print debug logs")
	flags.BoolVar(&noLedger, "no-ledger", false, "Do not record runs in the SQLite ledger")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges defaults, the config file, .env, the environment and
// the flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.DownloadPath = downloadDir
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = databaseURL
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("no-ledger") {
		cfg.NoLedger = noLedger
	}
	applyCrawlFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.New(logging.Options{Verbose: cfg.Verbose, File: cfg.LogFile})
}
