package session

import (
	"errors"
	"fmt"
)

var (
	// ErrDownloadNotStarted is returned when an action triggers no download
	// within the download timeout.
	ErrDownloadNotStarted = errors.New("download did not start")
	// ErrDownloadCanceled is returned when the browser aborts a transfer.
	ErrDownloadCanceled = errors.New("download canceled")
	// ErrStaleHandle is returned for a handle that does not belong to the
	// session it is used with.
	ErrStaleHandle = errors.New("element handle is not usable")
)

// Error represents a failed remote operation.
type Error struct {
	Op       string
	Selector string
	Cause    error
}

func (e *Error) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("session %s %q: %v", e.Op, e.Selector, e.Cause)
	}
	return fmt.Sprintf("session %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
