package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisk_WriteCreatesParentAndReplaces(t *testing.T) {
	d := NewDisk()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, d.Write(path, []byte("first")))
	require.NoError(t, d.Write(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestDisk_MoveAndExists(t *testing.T) {
	d := NewDisk()
	dir := t.TempDir()
	src := filepath.Join(dir, "14.xml")
	dst := filepath.Join(dir, "xmls", "renamed.xml")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, d.Move(src, dst))
	assert.False(t, d.Exists(src))
	assert.True(t, d.Exists(dst))
}

func TestDisk_MoveMissingSource(t *testing.T) {
	d := NewDisk()
	dir := t.TempDir()

	err := d.Move(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	require.Error(t, err)

	var storageErr *Error
	assert.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "move", storageErr.Op)
}

func TestDisk_DeleteMissingIsNoop(t *testing.T) {
	d := NewDisk()
	assert.NoError(t, d.Delete(filepath.Join(t.TempDir(), "nothing-here")))
}
