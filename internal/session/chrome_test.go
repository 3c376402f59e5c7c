package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestChrome returns a Chrome without a browser behind it. Only the
// parts that never talk to the DevTools endpoint work.
func newTestChrome(t *testing.T) *Chrome {
	t.Helper()
	staging := t.TempDir()
	return &Chrome{
		opts: ChromeOptions{
			DownloadTimeout: 50 * time.Millisecond,
			Files:           storage.NewDisk(),
		},
		stagingDir: staging,
		logger:     zap.NewNop(),
	}
}

func begin(guid, name string) *browser.EventDownloadWillBegin {
	return &browser.EventDownloadWillBegin{GUID: guid, SuggestedFilename: name}
}

func progress(guid string, state browser.DownloadProgressState) *browser.EventDownloadProgress {
	return &browser.EventDownloadProgress{GUID: guid, State: state}
}

func TestIsXPath(t *testing.T) {
	tests := []struct {
		selector string
		want     bool
	}{
		{"//a[contains(., 'Documentos')]", true},
		{"(//table//a)[1]", true},
		{"/html/body", true},
		{"input#userid", false},
		{"a[title='Descargar']", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			assert.Equal(t, tt.want, isXPath(tt.selector))
		})
	}
}

func TestScreenshotExt(t *testing.T) {
	assert.Equal(t, ".png", screenshotExt(screenshotQuality))
	assert.Equal(t, ".png", screenshotExt(100))
	assert.Equal(t, ".jpg", screenshotExt(90))
}

func TestOnEvent_WithoutPendingDownload(t *testing.T) {
	c := newTestChrome(t)
	assert.NotPanics(t, func() {
		c.onEvent(begin("a", "14.xml"))
		c.onEvent(progress("a", browser.DownloadProgressStateCompleted))
	})
}

func TestOnEvent_FiltersByGUIDAndState(t *testing.T) {
	c := newTestChrome(t)
	p := &pendingDownload{
		begin: make(chan *browser.EventDownloadWillBegin, 1),
		done:  make(chan *browser.EventDownloadProgress, 1),
	}
	c.pending = p

	c.onEvent(begin("first", "14.xml"))
	c.onEvent(begin("second", "15.xml"))
	assert.Equal(t, "first", p.guid)
	require.Len(t, p.begin, 1)
	assert.Equal(t, "14.xml", (<-p.begin).SuggestedFilename)

	c.onEvent(progress("second", browser.DownloadProgressStateCompleted))
	c.onEvent(progress("first", browser.DownloadProgressStateInProgress))
	assert.Len(t, p.done, 0)

	c.onEvent(progress("first", browser.DownloadProgressStateCompleted))
	require.Len(t, p.done, 1)
	assert.Equal(t, browser.DownloadProgressStateCompleted, (<-p.done).State)
}

func TestExpectDownload_Completed(t *testing.T) {
	c := newTestChrome(t)
	require.NoError(t, os.WriteFile(filepath.Join(c.stagingDir, "guid-1"), []byte("receipt"), 0o644))

	dl, err := c.ExpectDownload(context.Background(), func(context.Context) error {
		c.onEvent(begin("guid-1", "14.xml"))
		c.onEvent(progress("guid-1", browser.DownloadProgressStateCompleted))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "14.xml", dl.SuggestedName)
	assert.Nil(t, c.pending)

	dst := filepath.Join(t.TempDir(), "xmls", "14.xml")
	require.NoError(t, dl.Save(dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "receipt", string(data))
}

func TestExpectDownload_Canceled(t *testing.T) {
	c := newTestChrome(t)

	_, err := c.ExpectDownload(context.Background(), func(context.Context) error {
		c.onEvent(begin("guid-2", "14.pdf"))
		c.onEvent(progress("guid-2", browser.DownloadProgressStateCanceled))
		return nil
	})
	assert.ErrorIs(t, err, ErrDownloadCanceled)
}

func TestExpectDownload_NotStarted(t *testing.T) {
	c := newTestChrome(t)

	_, err := c.ExpectDownload(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrDownloadNotStarted)

	var sessErr *Error
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, "download", sessErr.Op)
}

func TestExpectDownload_ContextCancelled(t *testing.T) {
	c := newTestChrome(t)
	c.opts.DownloadTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.ExpectDownload(ctx, func(context.Context) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type foreignHandle struct{}

func (foreignHandle) Selector() string { return "#userid" }

func TestClick_ForeignHandleIsStale(t *testing.T) {
	c := newTestChrome(t)

	err := c.Click(context.Background(), foreignHandle{})
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.Contains(t, err.Error(), "#userid")
}

func TestCaptureDiagnostic_DisabledWithoutDir(t *testing.T) {
	c := newTestChrome(t)
	assert.NoError(t, c.CaptureDiagnostic(context.Background(), "error_login"))
}

func TestError_Message(t *testing.T) {
	err := &Error{Op: "navigate", Selector: "https://portal.test", Cause: context.DeadlineExceeded}
	assert.Equal(t, `session navigate "https://portal.test": context deadline exceeded`, err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = &Error{Op: "wait", Cause: ErrDownloadNotStarted}
	assert.Equal(t, "session wait: download did not start", err.Error())
}
