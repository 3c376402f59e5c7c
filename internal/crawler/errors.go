// Package crawler walks the portal's paginated document list, downloads the
// files attached to each entry and keeps resumable progress.
package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrEndOfList means the list cannot grow to reach the requested index.
	ErrEndOfList = errors.New("end of document list")
	// ErrAuthentication means the portal login did not succeed.
	ErrAuthentication = errors.New("authentication failed")
	// ErrListUnavailable means the document list could not be shown again
	// after leaving it.
	ErrListUnavailable = errors.New("document list unavailable")
	// ErrTooManyFailures means the consecutive item failure limit was hit.
	ErrTooManyFailures = errors.New("too many consecutive item failures")
	// ErrNothingProcessed means a run ended without a single item yielding a
	// file.
	ErrNothingProcessed = errors.New("no item was downloaded")
	// ErrElementNotFound means none of the selectors for a required element
	// matched.
	ErrElementNotFound = errors.New("element not found")
)

// ItemError represents a failure while handling a single list item. The
// crawl records it and moves on.
type ItemError struct {
	Index int
	Step  string
	Cause error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %s: %v", e.Index+1, e.Step, e.Cause)
}

func (e *ItemError) Unwrap() error {
	return e.Cause
}

// RunError represents a failure that ends the run.
type RunError struct {
	Phase string
	Cause error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("crawl %s failed: %v", e.Phase, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}
