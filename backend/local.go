package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local implements Backend using the local filesystem.
// Writes are atomic using a temp file and rename pattern, so a reader
// never observes a half-written artifact.
type Local struct{}

// NewLocal creates a local filesystem backend.
func NewLocal() *Local {
	return &Local{}
}

// Write stores data at the given path using atomic write.
func (l *Local) Write(ctx context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// Read retrieves the contents of the file at the given path.
func (l *Local) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Exists checks if a file exists at the given path.
func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking file: %w", err)
}

// Delete removes the file at the given path.
func (l *Local) Delete(ctx context.Context, path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// Rename moves a file from oldPath to newPath.
func (l *Local) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}

// List returns the paths of all files under root.
func (l *Local) List(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Skip in-flight atomic writes
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return paths, nil
}

// ListContaining returns entries for files under root whose name
// contains substr, case-insensitively (stored names are
// case-normalised, lookup tokens may not be). Creation time falls
// back to modification time on filesystems that do not record birth
// times.
func (l *Local) ListContaining(ctx context.Context, root, substr string) ([]Entry, error) {
	lower := strings.ToLower(substr)
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		if !strings.Contains(strings.ToLower(d.Name()), lower) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: path, Created: info.ModTime()})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return entries, nil
}

// Compile-time interface check
var _ Backend = (*Local)(nil)
