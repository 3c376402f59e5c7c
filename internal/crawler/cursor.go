package crawler

import (
	"context"
	"fmt"

	"github.com/jonathan/payslip-crawler/internal/session"
	"go.uber.org/zap"
)

// DefaultBatchSize is how many entries the list shows initially and adds on
// each "load more".
const DefaultBatchSize = 10

// Cursor makes an absolute list index reachable by expanding the list as
// many times as needed. The list forgets its expansions whenever the page
// navigates away, so every access re-checks from the current page.
type Cursor struct {
	sess     session.Session
	items    []string
	loadMore []string
	batch    int
	logger   *zap.Logger

	visible []session.Handle
}

// NewCursor creates a cursor over the items matched by sel.Items.
func NewCursor(sess session.Session, sel Selectors, batch int, logger *zap.Logger) *Cursor {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cursor{
		sess:     sess,
		items:    sel.Items,
		loadMore: sel.LoadMore,
		batch:    batch,
		logger:   logger,
	}
}

// ClicksNeeded is the number of expansions that guarantee index is
// rendered, assuming each adds a full batch.
func (c *Cursor) ClicksNeeded(index int) int {
	return index / c.batch
}

// Visible returns how many items the last lookup found.
func (c *Cursor) Visible() int {
	return len(c.visible)
}

// Refresh re-reads the rendered items.
func (c *Cursor) Refresh(ctx context.Context) (int, error) {
	handles, _, err := c.sess.Locate(ctx, c.items)
	if err != nil {
		return 0, fmt.Errorf("failed to locate list items: %w", err)
	}
	c.visible = handles
	return len(handles), nil
}

// Invalidate drops the cached items after the page navigated.
func (c *Cursor) Invalidate() {
	c.visible = nil
}

// EnsureVisible expands the list until index is rendered and returns its
// handle. It reports ErrEndOfList when there is no expand control left or
// an expansion adds nothing.
func (c *Cursor) EnsureVisible(ctx context.Context, index int) (session.Handle, error) {
	if _, err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	clicks := 0
	for len(c.visible) <= index {
		before := len(c.visible)

		buttons, sel, err := c.sess.Locate(ctx, c.loadMore)
		if err != nil {
			return nil, fmt.Errorf("failed to locate load more control: %w", err)
		}
		if len(buttons) == 0 {
			c.logger.Info("no load more control, list exhausted",
				zap.Int("index", index),
				zap.Int("visible", before),
			)
			return nil, ErrEndOfList
		}

		c.logger.Debug("expanding list",
			zap.Int("index", index),
			zap.Int("visible", before),
			zap.Int("clicks_needed", c.ClicksNeeded(index)),
			zap.String("selector", sel),
		)
		if err := c.sess.Click(ctx, buttons[0]); err != nil {
			return nil, fmt.Errorf("failed to expand list: %w", err)
		}
		if err := c.sess.WaitIdle(ctx); err != nil {
			c.logger.Debug("list did not settle after expanding", zap.Error(err))
		}
		clicks++

		if _, err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		if len(c.visible) <= before {
			c.logger.Info("expanding added no items, list exhausted",
				zap.Int("index", index),
				zap.Int("visible", len(c.visible)),
			)
			return nil, ErrEndOfList
		}
	}

	if clicks > 0 {
		c.logger.Debug("list expanded",
			zap.Int("index", index),
			zap.Int("clicks", clicks),
			zap.Int("visible", len(c.visible)),
		)
	}
	return c.visible[index], nil
}
