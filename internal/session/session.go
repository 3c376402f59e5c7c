// Package session drives the remote portal: navigation, element lookup,
// clicks, form input, file downloads and diagnostic captures.
package session

import (
	"context"
)

// Handle refers to one element found on the current page. Handles go stale
// once the page navigates; callers must locate again.
type Handle interface {
	Selector() string
}

// Download is a file the remote side has finished transferring. Save moves
// it to its final location.
type Download struct {
	SuggestedName string
	Save          func(dst string) error
}

// Session is the remote browsing surface used by the crawler. Every method
// blocks until the operation finishes or its timeout expires.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitIdle waits for the page to finish loading and settle.
	WaitIdle(ctx context.Context) error
	// Locate tries selectors in order and returns the elements matched by
	// the first one with at least one match, together with that selector.
	// Nothing matching is not an error: it returns no handles.
	Locate(ctx context.Context, selectors []string) ([]Handle, string, error)
	Click(ctx context.Context, h Handle) error
	Fill(ctx context.Context, h Handle, value string) error
	// ExpectDownload runs action and waits for the file transfer it
	// triggers.
	ExpectDownload(ctx context.Context, action func(context.Context) error) (*Download, error)
	CurrentURL(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	// CaptureDiagnostic stores a screenshot and an HTML dump under label.
	CaptureDiagnostic(ctx context.Context, label string) error
	Close() error
}
