package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/payslip-crawler/internal/schemas"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"go.uber.org/zap"
)

// File stores the progress record as JSON next to the downloaded
// artifacts. Saves replace the file atomically.
type File struct {
	path   string
	files  storage.FileStore
	logger *zap.Logger
}

// NewFile creates a store for the record at <root>/.scraper_progress.json.
func NewFile(root string, files storage.FileStore, logger *zap.Logger) *File {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{
		path:   filepath.Join(root, FileName),
		files:  files,
		logger: logger,
	}
}

var _ Store = (*File)(nil)

// Path returns the location of the progress record.
func (f *File) Path() string {
	return f.path
}

// Load returns the stored record. A missing file is the zero Record; an
// unreadable or inconsistent one is logged and also treated as zero.
func (f *File) Load(_ context.Context) (Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, nil
	}
	if err != nil {
		f.warnCorrupt(&CorruptRecordError{Source: f.path, Message: "failed to read", Cause: err})
		return Record{}, nil
	}

	rec, err := decodeRecord(f.path, data)
	if err != nil {
		f.warnCorrupt(err)
		return Record{}, nil
	}
	return rec, nil
}

// Save replaces the stored record. The write is durable when Save returns.
func (f *File) Save(_ context.Context, lastIndex, totalCompleted int) error {
	rec := Record{LastIndex: lastIndex, TotalCompleted: totalCompleted, UpdatedAt: nowFunc()}
	if !rec.Valid() {
		return &SaveError{Source: f.path, Cause: fmt.Errorf("inconsistent counters last_index=%d total_downloaded=%d", lastIndex, totalCompleted)}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &SaveError{Source: f.path, Cause: err}
	}
	if err := f.files.Write(f.path, data); err != nil {
		return &SaveError{Source: f.path, Cause: err}
	}
	return nil
}

// Reset deletes the stored record.
func (f *File) Reset(_ context.Context) error {
	if err := f.files.Delete(f.path); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	return nil
}

func (f *File) warnCorrupt(err error) {
	f.logger.Warn("ignoring unusable progress record, starting from zero",
		zap.String("path", f.path),
		zap.Error(err),
	)
}

func decodeRecord(source string, data []byte) (Record, error) {
	if err := schemas.ValidateProgress(data); err != nil {
		return Record{}, &CorruptRecordError{Source: source, Message: "schema validation failed", Cause: err}
	}

	var wire struct {
		LastIndex      int    `json:"last_index"`
		TotalCompleted int    `json:"total_downloaded"`
		UpdatedAt      string `json:"last_updated"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Record{}, &CorruptRecordError{Source: source, Message: "failed to decode", Cause: err}
	}

	rec := Record{
		LastIndex:      wire.LastIndex,
		TotalCompleted: wire.TotalCompleted,
		UpdatedAt:      parseTimestamp(wire.UpdatedAt),
	}
	if !rec.Valid() {
		return Record{}, &CorruptRecordError{
			Source:  source,
			Message: fmt.Sprintf("total_downloaded %d exceeds last_index %d + 1", rec.TotalCompleted, rec.LastIndex),
		}
	}
	return rec, nil
}

// Older records carry naive local timestamps with microseconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
