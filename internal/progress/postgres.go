package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS crawl_progress (
	download_root   TEXT PRIMARY KEY,
	last_index      INTEGER NOT NULL CHECK (last_index >= 0),
	total_completed INTEGER NOT NULL CHECK (total_completed >= 0),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres keeps one progress row per download root in PostgreSQL. It lets
// several machines share resume state for the same archive.
type Postgres struct {
	pool   *pgxpool.Pool
	root   string
	logger *zap.Logger
}

// ConnectPostgres opens a pool, verifies it and makes sure the progress
// table exists.
func ConnectPostgres(ctx context.Context, databaseURL, root string, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create progress table: %w", err)
	}

	return &Postgres{pool: pool, root: root, logger: logger}, nil
}

var _ Store = (*Postgres)(nil)

// Close closes the connection pool
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Load(ctx context.Context) (Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`SELECT last_index, total_completed, updated_at
		 FROM crawl_progress WHERE download_root = $1`,
		p.root,
	).Scan(&rec.LastIndex, &rec.TotalCompleted, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, nil
		}
		p.logger.Warn("ignoring unreadable progress row, starting from zero",
			zap.String("download_root", p.root),
			zap.Error(&CorruptRecordError{Source: p.root, Message: "failed to query", Cause: err}),
		)
		return Record{}, nil
	}

	if !rec.Valid() {
		p.logger.Warn("ignoring inconsistent progress row, starting from zero",
			zap.String("download_root", p.root),
			zap.Int("last_index", rec.LastIndex),
			zap.Int("total_completed", rec.TotalCompleted),
		)
		return Record{}, nil
	}
	return rec, nil
}

func (p *Postgres) Save(ctx context.Context, lastIndex, totalCompleted int) error {
	if !(Record{LastIndex: lastIndex, TotalCompleted: totalCompleted}).Valid() {
		return &SaveError{Source: p.root, Cause: fmt.Errorf("inconsistent counters last_index=%d total_completed=%d", lastIndex, totalCompleted)}
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO crawl_progress (download_root, last_index, total_completed, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (download_root) DO UPDATE SET last_index = $2, total_completed = $3, updated_at = $4`,
		p.root, lastIndex, totalCompleted, nowFunc(),
	)
	if err != nil {
		return &SaveError{Source: p.root, Cause: err}
	}
	return nil
}

func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM crawl_progress WHERE download_root = $1`, p.root)
	if err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	return nil
}
