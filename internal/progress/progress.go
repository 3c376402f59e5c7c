// Package progress persists how far a crawl got so an interrupted run can
// resume at the next unprocessed item.
package progress

import (
	"context"
	"time"
)

// FileName is the progress record kept at the top of a download root.
const FileName = ".scraper_progress.json"

// Record is the persisted crawl position. LastIndex is the next absolute
// index to process; TotalCompleted counts items that yielded at least one
// file.
type Record struct {
	LastIndex      int       `json:"last_index"`
	TotalCompleted int       `json:"total_downloaded"`
	UpdatedAt      time.Time `json:"last_updated"`
}

// IsZero reports whether r is the start-from-scratch state.
func (r Record) IsZero() bool {
	return r.LastIndex == 0 && r.TotalCompleted == 0
}

// Valid reports whether the counters are consistent with each other.
func (r Record) Valid() bool {
	return r.LastIndex >= 0 && r.TotalCompleted >= 0 && r.TotalCompleted <= r.LastIndex+1
}

// Store loads and saves crawl progress. Load never fails on unreadable
// state: it reports the zero Record instead.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, lastIndex, totalCompleted int) error
	Reset(ctx context.Context) error
}

var nowFunc = func() time.Time { return time.Now().UTC() }
