// Package ledger keeps a local SQLite history of crawl and rename runs and
// of every artifact they touched.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the ledger database kept at the top of a download root.
const FileName = ".payslips.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	processed   INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	files       INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS artifacts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	item_index    INTEGER NOT NULL,
	original_name TEXT NOT NULL,
	path          TEXT NOT NULL,
	class         TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	payslip_date  TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);
`

// Run kinds.
const (
	KindCrawl  = "crawl"
	KindRename = "rename"
)

// Artifact outcomes.
const (
	OutcomeSaved      = "saved"
	OutcomeRenamed    = "renamed"
	OutcomeUnchanged  = "unchanged"
	OutcomeDuplicate  = "duplicate"
	OutcomeUnresolved = "unresolved"
)

// Artifact is one file handled during a run. Index is the absolute list
// index of the item it came from, or -1 outside a crawl.
type Artifact struct {
	Index        int
	OriginalName string
	Path         string
	Class        string
	Outcome      string
	Date         string
}

// Stats are the counters stored when a run finishes.
type Stats struct {
	Processed int
	Succeeded int
	Failed    int
	Files     int
}

// RunInfo is a stored run.
type RunInfo struct {
	ID         uuid.UUID
	Kind       string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Stats      Stats
}

// Summary aggregates the whole ledger.
type Summary struct {
	Runs      int
	Artifacts int
	Outcomes  map[string]int
	LastRun   *RunInfo
}

// Ledger wraps the SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path with WAL journaling
// and a busy timeout.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	// One writer; the crawl is sequential.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ledger: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: exec schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Run records the artifacts of one in-progress run.
type Run struct {
	ID     uuid.UUID
	Kind   string
	ledger *Ledger
}

// StartRun inserts a running run of the given kind.
func (l *Ledger) StartRun(ctx context.Context, kind string) (*Run, error) {
	id := uuid.New()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, started_at) VALUES (?, ?, 'running', ?)`,
		id.String(), kind, formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return &Run{ID: id, Kind: kind, ledger: l}, nil
}

// RecordArtifact appends an artifact to the run.
func (r *Run) RecordArtifact(ctx context.Context, a Artifact) error {
	_, err := r.ledger.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, item_index, original_name, path, class, outcome, payslip_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), a.Index, a.OriginalName, a.Path, a.Class, a.Outcome, a.Date, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", a.OriginalName, err)
	}
	return nil
}

// Finish stores the final status and counters of the run.
func (r *Run) Finish(ctx context.Context, status string, stats Stats) error {
	_, err := r.ledger.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, processed = ?, succeeded = ?, failed = ?, files = ?
		 WHERE id = ?`,
		status, formatTime(time.Now()), stats.Processed, stats.Succeeded, stats.Failed, stats.Files, r.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Artifacts lists the artifacts recorded for a run in insertion order.
func (l *Ledger) Artifacts(ctx context.Context, runID uuid.UUID) ([]Artifact, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT item_index, original_name, path, class, outcome, payslip_date
		 FROM artifacts WHERE run_id = ? ORDER BY id`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Index, &a.OriginalName, &a.Path, &a.Class, &a.Outcome, &a.Date); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, kind, status, started_at, finished_at, processed, succeeded, failed, files
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunInfo
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

// Summary aggregates run and artifact counts.
func (l *Ledger) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{Outcomes: make(map[string]int)}

	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&s.Runs); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM artifacts GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		s.Outcomes[outcome] = n
		s.Artifacts += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	runs, err := l.RecentRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		s.LastRun = &runs[0]
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunInfo, error) {
	var (
		info        RunInfo
		id, started string
		finished    sql.NullString
	)
	err := row.Scan(&id, &info.Kind, &info.Status, &started, &finished,
		&info.Stats.Processed, &info.Stats.Succeeded, &info.Stats.Failed, &info.Stats.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if info.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	info.StartedAt = parseTime(started)
	if finished.Valid {
		t := parseTime(finished.String)
		info.FinishedAt = &t
	}
	return &info, nil
}

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
