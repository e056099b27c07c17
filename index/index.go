// Package index provides the shared reduction index: a mapping from
// artifact key to the canonical URL of its currently active artifact.
// The index is eventually consistent with disk — store operations
// update it synchronously and the change watcher updates it
// asynchronously, and both converge to the same values for a given
// file state.
package index

import (
	"context"

	assetcache "github.com/reducekit/asset-cache"
)

// Repository is the shared reduction index. Implementations must be
// safe for concurrent use; store operations and the change watcher
// both write to it without coordination, and last-write-wins is
// acceptable.
type Repository interface {
	// Add records (or overwrites) the canonical URL for a key.
	Add(ctx context.Context, key assetcache.Key, url string) error

	// Remove deletes the entry for a key.
	// Removing an absent key is a no-op.
	Remove(ctx context.Context, key assetcache.Key) error

	// Lookup returns the canonical URL for a key.
	Lookup(ctx context.Context, key assetcache.Key) (string, bool, error)

	// All returns a snapshot of every entry.
	All(ctx context.Context) (map[assetcache.Key]string, error)
}
