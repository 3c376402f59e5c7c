package payslip

import (
	"path/filepath"

	"github.com/jonathan/payslip-crawler/internal/storage"
)

// Outcome describes what Rename did with a file.
type Outcome int

const (
	// Unchanged means the file already had its canonical name.
	Unchanged Outcome = iota
	// Renamed means the file was moved to its canonical name.
	Renamed
	// Duplicate means another file already held the canonical name; the
	// source was deleted.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Renamed:
		return "renamed"
	case Duplicate:
		return "duplicate"
	default:
		return "unchanged"
	}
}

// Result reports the outcome of a rename and the canonical path.
type Result struct {
	Outcome Outcome
	Path    string
}

// Namer moves files to their canonical, date-derived names.
type Namer struct {
	files storage.FileStore
}

// NewNamer creates a Namer over the given FileStore.
func NewNamer(files storage.FileStore) *Namer {
	return &Namer{files: files}
}

// Rename gives src its canonical name within its own directory. An existing
// file with that name wins: src is deleted and Duplicate is reported.
// Renaming a file that already has its canonical name is a no-op.
func (n *Namer) Rename(src string, d Date) (Result, error) {
	dst := filepath.Join(filepath.Dir(src), CanonicalName(d, Extension(src)))

	if filepath.Clean(src) == filepath.Clean(dst) {
		return Result{Outcome: Unchanged, Path: dst}, nil
	}

	if n.files.Exists(dst) {
		if err := n.files.Delete(src); err != nil {
			return Result{}, &RenameError{Path: src, Message: "failed to delete duplicate", Cause: err}
		}
		return Result{Outcome: Duplicate, Path: dst}, nil
	}

	if err := n.files.Move(src, dst); err != nil {
		return Result{}, &RenameError{Path: src, Message: "failed to rename", Cause: err}
	}
	return Result{Outcome: Renamed, Path: dst}, nil
}
