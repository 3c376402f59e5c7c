package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"go.uber.org/zap"
)

// ChromeOptions configures a Chrome session.
type ChromeOptions struct {
	Headless bool
	// Timeout bounds every navigation, lookup and click.
	Timeout time.Duration
	// DownloadTimeout bounds the wait for a download to start and finish.
	DownloadTimeout time.Duration
	// Settle is the pause after the page reports it is loaded.
	Settle time.Duration
	// StagingDir receives downloads before they are moved into place. A
	// temporary directory is used when empty.
	StagingDir     string
	DiagnosticsDir string
	Files          storage.FileStore
	Logger         *zap.Logger
}

// Chrome is a Session backed by a local Chrome instance over the DevTools
// protocol.
type Chrome struct {
	opts        ChromeOptions
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	stagingDir  string
	ownsStaging bool
	logger      *zap.Logger

	mu      sync.Mutex
	pending *pendingDownload
}

type pendingDownload struct {
	guid  string
	begin chan *browser.EventDownloadWillBegin
	done  chan *browser.EventDownloadProgress
}

type chromeHandle struct {
	node     *cdp.Node
	selector string
}

func (h chromeHandle) Selector() string {
	return h.selector
}

var _ Session = (*Chrome)(nil)

// NewChrome starts a browser and opens a blank tab with downloads routed to
// the staging directory. The browser outlives ctx cancellation; call Close
// to shut it down.
func NewChrome(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Files == nil {
		opts.Files = storage.NewDisk()
	}

	staging := opts.StagingDir
	ownsStaging := false
	if staging == "" {
		dir, err := os.MkdirTemp("", "payslip-downloads-")
		if err != nil {
			return nil, &Error{Op: "start", Cause: err}
		}
		staging, ownsStaging = dir, true
	} else if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, &Error{Op: "start", Cause: err}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	c := &Chrome{
		opts:        opts,
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		stagingDir:  staging,
		ownsStaging: ownsStaging,
		logger:      opts.Logger,
	}

	chromedp.ListenTarget(tabCtx, c.onEvent)

	// The first Run allocates the browser and must use the tab context
	// itself, not a derived one, or the browser dies with the derived one.
	err := chromedp.Run(tabCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(staging).
			WithEventsEnabled(true),
	)
	if err != nil {
		_ = c.Close()
		return nil, &Error{Op: "start", Cause: err}
	}

	c.logger.Debug("browser started",
		zap.Bool("headless", opts.Headless),
		zap.String("staging_dir", staging),
	)
	return c, nil
}

// run executes actions on the tab bounded by timeout and by the caller's
// ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.logger.Debug("navigating", zap.String("url", url))
	if err := c.run(ctx, c.opts.Timeout, chromedp.Navigate(url)); err != nil {
		return &Error{Op: "navigate", Selector: url, Cause: err}
	}
	return nil
}

func (c *Chrome) WaitIdle(ctx context.Context) error {
	var ready bool
	err := c.run(ctx, c.opts.Timeout,
		chromedp.Poll(`document.readyState === "complete"`, &ready,
			chromedp.WithPollingTimeout(c.opts.Timeout),
		),
		chromedp.Sleep(c.opts.Settle),
	)
	if err != nil {
		return &Error{Op: "wait", Cause: err}
	}
	return nil
}

// screenshotQuality 100 makes chromedp encode PNG; anything lower is JPEG.
const screenshotQuality = 100

func screenshotExt(quality int) string {
	if quality < 100 {
		return ".jpg"
	}
	return ".png"
}

// isXPath reports whether selector is XPath: those start with "/" or "(",
// everything else is CSS.
func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

func queryOption(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

func (c *Chrome) Locate(ctx context.Context, selectors []string) ([]Handle, string, error) {
	for _, sel := range selectors {
		var nodes []*cdp.Node
		err := c.run(ctx, c.opts.Timeout,
			chromedp.Nodes(sel, &nodes, queryOption(sel), chromedp.AtLeast(0)),
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", &Error{Op: "locate", Selector: sel, Cause: ctx.Err()}
			}
			c.logger.Debug("selector probe failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if len(nodes) == 0 {
			continue
		}

		handles := make([]Handle, len(nodes))
		for i, n := range nodes {
			handles[i] = chromeHandle{node: n, selector: sel}
		}
		return handles, sel, nil
	}
	return nil, "", nil
}

func nodeOf(h Handle) (*cdp.Node, error) {
	ch, ok := h.(chromeHandle)
	if !ok || ch.node == nil {
		return nil, ErrStaleHandle
	}
	return ch.node, nil
}

func (c *Chrome) Click(ctx context.Context, h Handle) error {
	node, err := nodeOf(h)
	if err != nil {
		return &Error{Op: "click", Selector: h.Selector(), Cause: err}
	}
	if err := c.run(ctx, c.opts.Timeout, chromedp.MouseClickNode(node)); err != nil {
		return &Error{Op: "click", Selector: h.Selector(), Cause: err}
	}
	return nil
}

func (c *Chrome) Fill(ctx context.Context, h Handle, value string) error {
	node, err := nodeOf(h)
	if err != nil {
		return &Error{Op: "fill", Selector: h.Selector(), Cause: err}
	}
	ids := []cdp.NodeID{node.NodeID}
	err = c.run(ctx, c.opts.Timeout,
		chromedp.SetValue(ids, "", chromedp.ByNodeID),
		chromedp.SendKeys(ids, value, chromedp.ByNodeID),
	)
	if err != nil {
		return &Error{Op: "fill", Selector: h.Selector(), Cause: err}
	}
	return nil
}

// onEvent runs on the DevTools event loop and must never block.
func (c *Chrome) onEvent(ev interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	if p == nil {
		return
	}

	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		if p.guid != "" {
			return
		}
		p.guid = e.GUID
		select {
		case p.begin <- e:
		default:
		}
	case *browser.EventDownloadProgress:
		if e.GUID != p.guid {
			return
		}
		if e.State != browser.DownloadProgressStateCompleted && e.State != browser.DownloadProgressStateCanceled {
			return
		}
		select {
		case p.done <- e:
		default:
		}
	}
}

func (c *Chrome) ExpectDownload(ctx context.Context, action func(context.Context) error) (*Download, error) {
	p := &pendingDownload{
		begin: make(chan *browser.EventDownloadWillBegin, 1),
		done:  make(chan *browser.EventDownloadProgress, 1),
	}
	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	if err := action(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.opts.DownloadTimeout)
	defer timer.Stop()

	var begin *browser.EventDownloadWillBegin
	select {
	case begin = <-p.begin:
	case <-timer.C:
		return nil, &Error{Op: "download", Cause: ErrDownloadNotStarted}
	case <-ctx.Done():
		return nil, &Error{Op: "download", Cause: ctx.Err()}
	}

	select {
	case ev := <-p.done:
		if ev.State == browser.DownloadProgressStateCanceled {
			return nil, &Error{Op: "download", Selector: begin.SuggestedFilename, Cause: ErrDownloadCanceled}
		}
	case <-timer.C:
		return nil, &Error{Op: "download", Selector: begin.SuggestedFilename, Cause: context.DeadlineExceeded}
	case <-ctx.Done():
		return nil, &Error{Op: "download", Selector: begin.SuggestedFilename, Cause: ctx.Err()}
	}

	staged := filepath.Join(c.stagingDir, begin.GUID)
	c.logger.Debug("download finished",
		zap.String("suggested_name", begin.SuggestedFilename),
		zap.String("staged", staged),
	)

	return &Download{
		SuggestedName: begin.SuggestedFilename,
		Save: func(dst string) error {
			return c.opts.Files.Move(staged, dst)
		},
	}, nil
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, c.opts.Timeout, chromedp.Location(&url)); err != nil {
		return "", &Error{Op: "location", Cause: err}
	}
	return url, nil
}

func (c *Chrome) Content(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, c.opts.Timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", &Error{Op: "content", Cause: err}
	}
	return html, nil
}

func (c *Chrome) CaptureDiagnostic(ctx context.Context, label string) error {
	if c.opts.DiagnosticsDir == "" {
		return nil
	}

	var shot []byte
	var html string
	err := c.run(ctx, c.opts.Timeout,
		chromedp.FullScreenshot(&shot, screenshotQuality),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return &Error{Op: "capture", Selector: label, Cause: err}
	}

	base := filepath.Join(c.opts.DiagnosticsDir, label)
	if err := c.opts.Files.Write(base+screenshotExt(screenshotQuality), shot); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	if err := c.opts.Files.Write(base+".html", []byte(html)); err != nil {
		return fmt.Errorf("failed to write page dump: %w", err)
	}

	c.logger.Info("diagnostic captured", zap.String("label", label), zap.String("path", base))
	return nil
}

// Close shuts down the tab and the browser process.
func (c *Chrome) Close() error {
	if c.cancelTab != nil {
		c.cancelTab()
	}
	if c.cancelAlloc != nil {
		c.cancelAlloc()
	}
	if c.ownsStaging {
		return os.RemoveAll(c.stagingDir)
	}
	return nil
}
