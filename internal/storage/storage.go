// Package storage provides the filesystem operations used to commit downloaded
// artifacts and crawl state to disk.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore is the minimal filesystem surface used by the naming pipeline and
// the progress store.
type FileStore interface {
	Exists(path string) bool
	Move(src, dst string) error
	Delete(path string) error
	Write(path string, data []byte) error
}

// Error represents a failed filesystem operation.
type Error struct {
	Op    string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Disk is a FileStore backed by the local filesystem. Writes are atomic:
// data goes to a temporary file in the destination directory which then
// replaces the target.
type Disk struct {
	FilePerm os.FileMode
	DirPerm  os.FileMode
}

// NewDisk returns a Disk with 0644 files and 0755 directories.
func NewDisk() *Disk {
	return &Disk{FilePerm: 0o644, DirPerm: 0o755}
}

var _ FileStore = (*Disk)(nil)

// Exists reports whether path names an existing file or directory.
func (d *Disk) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Move renames src to dst, creating the destination directory if needed.
func (d *Disk) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), d.dirPerm()); err != nil {
		return &Error{Op: "mkdir", Path: filepath.Dir(dst), Cause: err}
	}
	if err := os.Rename(src, dst); err != nil {
		return &Error{Op: "move", Path: src, Cause: err}
	}
	return nil
}

// Delete removes path. Deleting a missing file is not an error.
func (d *Disk) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Op: "delete", Path: path, Cause: err}
	}
	return nil
}

// Write replaces path with data using write-then-rename so readers never
// observe a partially written file.
func (d *Disk) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, d.dirPerm()); err != nil {
		return &Error{Op: "mkdir", Path: dir, Cause: err}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &Error{Op: "create temp", Path: dir, Cause: err}
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, d.filePerm())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &Error{Op: "write", Path: tmpPath, Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &Error{Op: "sync", Path: tmpPath, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Op: "close", Path: tmpPath, Cause: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Op: "replace", Path: path, Cause: err}
	}

	// best effort: persist the directory entry
	_ = syncDir(dir)
	return nil
}

func (d *Disk) filePerm() os.FileMode {
	if d.FilePerm == 0 {
		return 0o644
	}
	return d.FilePerm
}

func (d *Disk) dirPerm() os.FileMode {
	if d.DirPerm == 0 {
		return 0o755
	}
	return d.DirPerm
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Sync()
}
