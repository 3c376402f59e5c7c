package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonathan/payslip-crawler/internal/payslip"
	"github.com/jonathan/payslip-crawler/internal/progress"
	"github.com/jonathan/payslip-crawler/internal/session"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"go.uber.org/zap"
)

// DefaultMaxItems caps how many list entries one run visits.
const DefaultMaxItems = 250

// Status is how a run ended.
type Status string

const (
	StatusDone        Status = "done"
	StatusAborted     Status = "aborted"
	StatusInterrupted Status = "interrupted"
)

// SessionFactory starts the remote session a run drives.
type SessionFactory func(ctx context.Context) (session.Session, error)

// Options tunes a Controller.
type Options struct {
	BatchSize int
	MaxItems  int
	// MaxConsecutiveFailures aborts the run after that many failed items in
	// a row. Zero never aborts.
	MaxConsecutiveFailures int
	ForceRestart           bool
	// VerifyAttempts bounds how often the list is re-read after returning
	// to it before falling back to a full reload.
	VerifyAttempts int
	VerifyInterval time.Duration
	Layout         payslip.Layout
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxItems <= 0 {
		o.MaxItems = DefaultMaxItems
	}
	if o.VerifyAttempts <= 0 {
		o.VerifyAttempts = 3
	}
	if o.MaxConsecutiveFailures < 0 {
		o.MaxConsecutiveFailures = 0
	}
	return o
}

// Deps are the collaborators of a Controller. Store and Recorder are
// optional; without a Store progress lives in memory only.
type Deps struct {
	NewSession SessionFactory
	Entry      Entry
	Store      progress.Store
	Files      storage.FileStore
	Recorder   Recorder
	Selectors  Selectors
	Logger     *zap.Logger
}

// Summary reports one run.
type Summary struct {
	Status     Status
	StartIndex int
	NextIndex  int
	// Processed counts items visited in this run, failed ones included.
	Processed int
	Succeeded int
	Failed    int
	// TotalCompleted is the cumulative count carried in the progress
	// record.
	TotalCompleted int
	Files          int
	Renamed        int
	Duplicates     int
	Unresolved     int
	ListURL        string
	Duration       time.Duration
}

// Controller runs the crawl: one item at a time, strictly in list order.
type Controller struct {
	opts Options
	deps Deps
}

// NewController creates a Controller.
func NewController(opts Options, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Store == nil {
		deps.Store = progress.NewMemory()
	}
	if deps.Files == nil {
		deps.Files = storage.NewDisk()
	}
	return &Controller{opts: opts.withDefaults(), deps: deps}
}

// run holds the state of one Run call.
type run struct {
	*Controller
	sess    session.Session
	cursor  *Cursor
	dl      *downloader
	listURL string
	logger  *zap.Logger
	summary *Summary
}

// Run performs one crawl. The returned error is non-nil only for run-level
// failures; the Summary is always populated.
func (c *Controller) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	summary := &Summary{Status: StatusAborted}
	defer func() { summary.Duration = time.Since(started) }()

	logger := c.deps.Logger

	if c.opts.ForceRestart {
		logger.Info("forced restart, discarding saved progress")
		if err := c.deps.Store.Reset(ctx); err != nil {
			logger.Warn("failed to reset progress", zap.Error(err))
		}
	}
	rec, err := c.deps.Store.Load(ctx)
	if err != nil {
		logger.Warn("failed to load progress, starting from zero", zap.Error(err))
		rec = progress.Record{}
	}
	summary.StartIndex = rec.LastIndex
	summary.NextIndex = rec.LastIndex
	summary.TotalCompleted = rec.TotalCompleted
	if !rec.IsZero() {
		logger.Info("resuming",
			zap.Int("index", rec.LastIndex),
			zap.Int("total_completed", rec.TotalCompleted),
			zap.Time("last_updated", rec.UpdatedAt),
		)
	}

	sess, err := c.deps.NewSession(ctx)
	if err != nil {
		return summary, &RunError{Phase: "start", Cause: err}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close session", zap.Error(err))
		}
	}()

	listURL, err := c.deps.Entry.Open(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			summary.Status = StatusInterrupted
			return summary, nil
		}
		var runErr *RunError
		if errors.As(err, &runErr) {
			return summary, err
		}
		return summary, &RunError{Phase: "open", Cause: err}
	}
	summary.ListURL = listURL

	r := &run{
		Controller: c,
		sess:       sess,
		cursor:     NewCursor(sess, c.deps.Selectors, c.opts.BatchSize, logger),
		dl: &downloader{
			sess:     sess,
			sel:      c.deps.Selectors,
			layout:   c.opts.Layout,
			files:    c.deps.Files,
			namer:    payslip.NewNamer(c.deps.Files),
			recorder: c.deps.Recorder,
			logger:   logger,
		},
		listURL: listURL,
		logger:  logger,
		summary: summary,
	}
	return summary, r.loop(ctx, rec.LastIndex, rec.TotalCompleted)
}

func (r *run) loop(ctx context.Context, index, total int) error {
	consecutive := 0

	for {
		if index >= r.opts.MaxItems {
			r.logger.Info("item ceiling reached", zap.Int("max_items", r.opts.MaxItems))
			r.finish(ctx)
			return nil
		}
		if ctx.Err() != nil {
			r.logger.Info("interrupted", zap.Int("next_index", index))
			r.summary.Status = StatusInterrupted
			return nil
		}

		r.logger.Info("processing item",
			zap.Int("index", index),
			zap.Int("clicks_needed", r.cursor.ClicksNeeded(index)),
		)
		res, err := r.processItem(ctx, index)
		if errors.Is(err, ErrEndOfList) {
			r.finish(ctx)
			return nil
		}
		if err != nil && ctx.Err() != nil {
			// Partial item: leave the saved boundary where it is.
			r.logger.Info("interrupted during item", zap.Int("index", index))
			r.summary.Status = StatusInterrupted
			return nil
		}

		r.summary.Processed++
		r.summary.Files += res.Files
		r.summary.Renamed += res.Renamed
		r.summary.Duplicates += res.Duplicates
		r.summary.Unresolved += res.Unresolved

		switch {
		case err != nil:
			r.summary.Failed++
			consecutive++
			r.logger.Warn("item failed, skipping", zap.Int("index", index), zap.Error(err))
			capture(ctx, r.sess, r.logger, fmt.Sprintf("error_item_%d", index+1))
		case res.Files == 0:
			r.summary.Failed++
			consecutive++
			r.logger.Warn("item yielded no files", zap.Int("index", index))
			capture(ctx, r.sess, r.logger, fmt.Sprintf("no_download_%d", index+1))
		default:
			r.summary.Succeeded++
			total++
			consecutive = 0
			r.logger.Info("item done", zap.Int("index", index), zap.Int("files", res.Files))
		}

		// Saved before leaving the detail page so a failed return cannot
		// cause the item to be processed again.
		if err := r.deps.Store.Save(context.WithoutCancel(ctx), index+1, total); err != nil {
			r.logger.Error("failed to save progress", zap.Error(err))
			return &RunError{Phase: "save", Cause: err}
		}
		index++
		r.summary.NextIndex = index
		r.summary.TotalCompleted = total

		if limit := r.opts.MaxConsecutiveFailures; limit > 0 && consecutive >= limit {
			r.logger.Error("aborting after consecutive failures", zap.Int("failures", consecutive))
			return &RunError{Phase: "item", Cause: fmt.Errorf("%w: %d in a row", ErrTooManyFailures, consecutive)}
		}

		if ctx.Err() != nil {
			r.summary.Status = StatusInterrupted
			return nil
		}
		if err := r.returnToList(ctx); err != nil {
			if ctx.Err() != nil {
				r.summary.Status = StatusInterrupted
				return nil
			}
			return err
		}
	}
}

func (r *run) finish(ctx context.Context) {
	r.summary.Status = StatusDone
	r.logger.Info("crawl complete",
		zap.Int("total_completed", r.summary.TotalCompleted),
		zap.Int("succeeded", r.summary.Succeeded),
	)
	if err := r.deps.Store.Reset(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("failed to clear progress", zap.Error(err))
	}
}

// processItem opens the detail page of the item at index and downloads its
// files.
func (r *run) processItem(ctx context.Context, index int) (itemResult, error) {
	h, err := r.cursor.EnsureVisible(ctx, index)
	if err != nil {
		if errors.Is(err, ErrEndOfList) {
			return itemResult{}, err
		}
		return itemResult{}, &ItemError{Index: index, Step: "expand", Cause: err}
	}

	if err := r.sess.Click(ctx, h); err != nil {
		return itemResult{}, &ItemError{Index: index, Step: "open", Cause: err}
	}
	if err := r.sess.WaitIdle(ctx); err != nil {
		return itemResult{}, &ItemError{Index: index, Step: "open", Cause: err}
	}
	r.cursor.Invalidate()

	res, err := r.dl.download(ctx, index)
	if err != nil {
		return res, &ItemError{Index: index, Step: "download", Cause: err}
	}
	return res, nil
}

// returnToList leaves the detail page through its back control, or by URL
// when there is none, and checks the list rendered. A list that stays empty
// gets one full reload before the run gives up.
func (r *run) returnToList(ctx context.Context) error {
	if err := clickFirst(ctx, r.sess, r.deps.Selectors.Back); err != nil {
		r.logger.Debug("no back control, navigating by URL", zap.Error(err))
		if err := r.sess.Navigate(ctx, r.listURL); err != nil {
			r.logger.Warn("navigation back to list failed", zap.Error(err))
		}
	}
	waitIdle(ctx, r.sess, r.logger)
	r.cursor.Invalidate()

	if err := r.verifyList(ctx); err == nil {
		return nil
	}

	r.logger.Warn("list not visible after returning, reloading", zap.String("url", r.listURL))
	if err := r.sess.Navigate(ctx, r.listURL); err != nil {
		r.logger.Warn("list reload failed", zap.Error(err))
	}
	waitIdle(ctx, r.sess, r.logger)

	if err := r.verifyList(ctx); err != nil {
		capture(ctx, r.sess, r.logger, "error_list_unavailable")
		return &RunError{Phase: "return", Cause: fmt.Errorf("%w: %w", ErrListUnavailable, err)}
	}
	return nil
}

var errEmptyList = errors.New("no list items rendered")

func (r *run) verifyList(ctx context.Context) error {
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			waitIdle(ctx, r.sess, r.logger)
		}
		n, err := r.cursor.Refresh(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			r.logger.Debug("list empty", zap.Int("attempt", attempt))
			return errEmptyList
		}
		r.logger.Debug("list verified", zap.Int("items", n))
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.opts.VerifyInterval), uint64(r.opts.VerifyAttempts-1)),
		ctx,
	)
	return backoff.Retry(op, b)
}
