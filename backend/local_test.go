package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalWriteRead(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "sub", "data.css")
	data := []byte("body { color: red }")

	err := l.Write(ctx, path, data)
	require.NoError(t, err)

	got, err := l.Read(ctx, path)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestLocalWriteOverwrites(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "data.css")

	require.NoError(t, l.Write(ctx, path, []byte("first")))
	require.NoError(t, l.Write(ctx, path, []byte("second")))

	got, err := l.Read(ctx, path)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestLocalReadNotFound(t *testing.T) {
	l := NewLocal()

	_, err := l.Read(context.Background(), filepath.Join(t.TempDir(), "missing.css"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalExists(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "data.css")

	exists, err := l.Exists(ctx, path)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, l.Write(ctx, path, []byte("data")))

	exists, err = l.Exists(ctx, path)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestLocalDelete(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "data.css")
	require.NoError(t, l.Write(ctx, path, []byte("data")))

	require.NoError(t, l.Delete(ctx, path))

	exists, _ := l.Exists(ctx, path)
	require.False(t, exists)

	// Idempotent
	require.NoError(t, l.Delete(ctx, path))
}

func TestLocalRename(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	dir := t.TempDir()
	oldPath := filepath.Join(dir, "active.css")
	newPath := filepath.Join(dir, "expired.css")

	require.NoError(t, l.Write(ctx, oldPath, []byte("data")))
	require.NoError(t, l.Rename(ctx, oldPath, newPath))

	exists, _ := l.Exists(ctx, oldPath)
	require.False(t, exists)

	got, err := l.Read(ctx, newPath)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), got)
}

func TestLocalRenameMissing(t *testing.T) {
	l := NewLocal()
	dir := t.TempDir()

	err := l.Rename(context.Background(), filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	require.Error(t, err)
}

func TestLocalList(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, l.Write(ctx, filepath.Join(dir, "a.css"), []byte("a")))
	require.NoError(t, l.Write(ctx, filepath.Join(dir, "nested", "b.js"), []byte("b")))

	paths, err := l.List(ctx, dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
}

func TestLocalListMissingRoot(t *testing.T) {
	l := NewLocal()

	paths, err := l.List(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestLocalListSkipsTempFiles(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, l.Write(ctx, filepath.Join(dir, "a.css"), []byte("a")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-12345"), []byte("partial"), 0644))

	paths, err := l.List(ctx, dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)
}

func TestLocalListContaining(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, l.Write(ctx, filepath.Join(dir, "abc-RequestReduced.css"), []byte("a")))
	require.NoError(t, l.Write(ctx, filepath.Join(dir, "other.css"), []byte("b")))

	entries, err := l.ListContaining(ctx, dir, "RequestReduce")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Join(dir, "abc-RequestReduced.css"), entries[0].Path)
	require.False(t, entries[0].Created.IsZero())
}
