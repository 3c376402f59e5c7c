// Package payslip derives the canonical identity of downloaded payroll
// receipts: the payment date found in the document and the file name built
// from it.
package payslip

import (
	"errors"
	"fmt"
)

// ErrDateNotFound is returned when no date can be extracted from a document.
var ErrDateNotFound = errors.New("payslip date not found")

// ParseError represents a document that could not be read at all.
type ParseError struct {
	Source  string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error for %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error for %s: %s", e.Source, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// RenameError represents a failed rename or duplicate removal.
type RenameError struct {
	Path    string
	Message string
	Cause   error
}

func (e *RenameError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rename error for %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("rename error for %s: %s", e.Path, e.Message)
}

func (e *RenameError) Unwrap() error {
	return e.Cause
}
