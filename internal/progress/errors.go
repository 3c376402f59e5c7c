package progress

import "fmt"

// CorruptRecordError describes a stored record that could not be used.
// Load logs it and falls back to the zero Record.
type CorruptRecordError struct {
	Source  string
	Message string
	Cause   error
}

func (e *CorruptRecordError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("corrupt progress record %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("corrupt progress record %s: %s", e.Source, e.Message)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Cause
}

// SaveError represents a progress record that could not be persisted.
type SaveError struct {
	Source string
	Cause  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save progress to %s: %v", e.Source, e.Cause)
}

func (e *SaveError) Unwrap() error {
	return e.Cause
}
