// Package backend provides the filesystem operations the artifact
// store is built on. Paths are plain filesystem paths; the store owns
// all naming decisions.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a path does not exist.
var ErrNotFound = errors.New("not found")

// Entry is one enumerated file with its creation timestamp.
type Entry struct {
	Path    string
	Created time.Time
}

// Backend defines the filesystem operations used by the store.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Write stores data at the given path, overwriting any existing
	// file. Parent directories are created as needed.
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves the contents of the file at the given path.
	// Returns ErrNotFound if the path does not exist.
	Read(ctx context.Context, path string) ([]byte, error)

	// Exists checks if a file exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the file at the given path.
	// Returns nil if the path does not exist (idempotent).
	Delete(ctx context.Context, path string) error

	// Rename moves a file from oldPath to newPath.
	Rename(ctx context.Context, oldPath, newPath string) error

	// List returns the paths of all files under root.
	List(ctx context.Context, root string) ([]string, error)

	// ListContaining returns entries for all files under root whose
	// name contains the given substring (case-insensitive), with
	// creation timestamps.
	ListContaining(ctx context.Context, root, substr string) ([]Entry, error)
}
