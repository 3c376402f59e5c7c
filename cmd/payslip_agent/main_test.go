package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/payslip-crawler/internal/config"
	"github.com/jonathan/payslip-crawler/internal/crawler"
	"github.com/jonathan/payslip-crawler/internal/ledger"
	"github.com/jonathan/payslip-crawler/internal/progress"
	"github.com/jonathan/payslip-crawler/internal/rename"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// execute runs the CLI in-process. Flag state is shared between runs, so
// every call passes --dir and --no-ledger explicitly.
func execute(t *testing.T, root string, withLedger bool, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ORACLE_USERNAME", "")
	t.Setenv("ORACLE_PASSWORD", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--dir", root, fmt.Sprintf("--no-ledger=%t", !withLedger)))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func receiptXML(year, month, day int) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" xmlns:nomina12="http://www.sat.gob.mx/nomina12" Fecha="%04d-%02d-%02dT09:00:00">
  <cfdi:Complemento><nomina12:Nomina FechaPago="%04d-%02d-%02d"/></cfdi:Complemento>
</cfdi:Comprobante>`, year, month, day, year, month, day)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCrawlResult(t *testing.T) {
	logger := zap.NewNop()
	aborted := &crawler.RunError{Phase: "item", Cause: crawler.ErrTooManyFailures}

	tests := []struct {
		name    string
		summary crawler.Summary
		runErr  error
		wantErr error
	}{
		{"success", crawler.Summary{Succeeded: 3}, nil, nil},
		{"aborted after successes", crawler.Summary{Succeeded: 1}, aborted, nil},
		{"nothing succeeded", crawler.Summary{Failed: 2}, nil, crawler.ErrNothingProcessed},
		{"aborted without successes", crawler.Summary{}, aborted, crawler.ErrTooManyFailures},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := crawlResult(&tt.summary, tt.runErr, logger)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestCrawlCommand_MissingCredentials(t *testing.T) {
	_, err := execute(t, t.TempDir(), false, "crawl")
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestCrawlCommand_InvalidFlag(t *testing.T) {
	_, err := execute(t, t.TempDir(), false, "crawl", "--batch-size", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")

	// Reset the shared flag for later runs.
	_, _ = execute(t, t.TempDir(), false, "crawl", "--batch-size", "10")
}

func TestRenameCommand(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "xmls", "23.xml"), receiptXML(2024, 4, 23))
	writeFile(t, filepath.Join(root, "pdfs", "23.pdf"), "not a pdf")

	out, err := execute(t, root, true, "rename")
	require.NoError(t, err)

	assert.Contains(t, out, "RENAME SUMMARY")
	assert.FileExists(t, filepath.Join(root, "xmls", "Recibo Nomina 2024_4_23.xml"))
	assert.FileExists(t, filepath.Join(root, "pdfs", "Recibo Nomina 2024_4_23.pdf"))

	led, err := ledger.Open(filepath.Join(root, ledger.FileName))
	require.NoError(t, err)
	defer func() { _ = led.Close() }()
	runs, err := led.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.KindRename, runs[0].Kind)
	assert.Equal(t, "done", runs[0].Status)
	assert.Equal(t, 2, runs[0].Stats.Succeeded)
}

func TestRenameCommand_MissingRoot(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "missing"), false, "rename")
	assert.ErrorIs(t, err, rename.ErrRootNotFound)
}

func TestStatusCommand(t *testing.T) {
	root := t.TempDir()
	store := progress.NewFile(root, storage.NewDisk(), nil)
	require.NoError(t, store.Save(context.Background(), 14, 12))

	out, err := execute(t, root, true, "status")
	require.NoError(t, err)

	assert.Contains(t, out, "Next index:      14 (item 15)")
	assert.Contains(t, out, "Total completed: 12")
	assert.NotContains(t, out, "LEDGER")
	assert.NoFileExists(t, filepath.Join(root, ledger.FileName), "status never creates a ledger")
}

func TestStatusCommand_WithLedger(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "xmls", "5.xml"), receiptXML(2023, 1, 5))
	_, err := execute(t, root, true, "rename")
	require.NoError(t, err)

	out, err := execute(t, root, true, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved progress")
	assert.Contains(t, out, "LEDGER: 1 runs, 1 artifacts")
	assert.Contains(t, out, "rename")
}

func TestResetCommand(t *testing.T) {
	root := t.TempDir()
	store := progress.NewFile(root, storage.NewDisk(), nil)
	require.NoError(t, store.Save(context.Background(), 3, 3))

	out, err := execute(t, root, false, "reset")
	require.NoError(t, err)

	assert.Contains(t, out, "Progress cleared")
	assert.NoFileExists(t, filepath.Join(root, progress.FileName))

	// Resetting twice is fine.
	_, err = execute(t, root, false, "reset")
	assert.NoError(t, err)
}
