// Package store implements the disk-backed artifact store: content
// addressed file naming, expire-by-rename invalidation and a change
// watcher that reconciles the shared reduction index with what is
// actually on disk.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	assetcache "github.com/reducekit/asset-cache"
	"github.com/reducekit/asset-cache/backend"
	"github.com/reducekit/asset-cache/index"
	"github.com/reducekit/asset-cache/telemetry"
)

// Sink receives artifact bytes for transmission to a consumer.
type Sink interface {
	// TransmitFile sends the file at the given path. Implementations
	// must return an error wrapping backend.ErrNotFound when the file
	// does not exist.
	TransmitFile(path string) error
}

// Config holds the store's collaborators and settings.
type Config struct {
	// Root is the storage directory. Empty means no storage is
	// configured: enumeration returns empty results and no watcher
	// is installed.
	Root string

	// Codec translates between canonical URLs and key/signature pairs.
	Codec *assetcache.URIBuilder

	// Kinds is the set of registered resource kinds.
	Kinds *assetcache.KindSet

	// Repository is the shared reduction index.
	Repository index.Repository

	// Files is the filesystem backend. Defaults to the local
	// filesystem.
	Files backend.Backend

	// EnableWatcher installs the directory change watcher. Leave
	// false in environments without the filesystem-watch capability;
	// the store then only reflects its own Save/Flush calls in the
	// index.
	EnableWatcher bool

	// Logger for store events.
	Logger *slog.Logger
}

// DiskStore is the disk-backed artifact store.
//
// Save, SendContent, SavedURLs and Flush take no locks against each
// other: the design relies on rename atomicity and the expired-file
// fallback to absorb races, both within this process and across
// sibling processes sharing the storage path.
type DiskStore struct {
	codec  *assetcache.URIBuilder
	kinds  *assetcache.KindSet
	repo   index.Repository
	files  backend.Backend
	logger *slog.Logger
	watch  bool

	// mu guards configuration only (root and the watch handle), never
	// held across file I/O.
	mu      sync.RWMutex
	root    string
	watcher *Watcher
}

// New creates a disk store. When the watcher capability is enabled and
// a root is configured, the change watcher is installed immediately.
func New(cfg Config) (*DiskStore, error) {
	if cfg.Codec == nil {
		return nil, errors.New("store: codec is required")
	}
	if cfg.Kinds == nil {
		return nil, errors.New("store: kind set is required")
	}
	if cfg.Repository == nil {
		return nil, errors.New("store: repository is required")
	}
	if cfg.Files == nil {
		cfg.Files = backend.NewLocal()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &DiskStore{
		codec:  cfg.Codec,
		kinds:  cfg.Kinds,
		repo:   cfg.Repository,
		files:  cfg.Files,
		logger: cfg.Logger,
		watch:  cfg.EnableWatcher,
		root:   cfg.Root,
	}

	if s.watch && s.root != "" {
		w, err := NewWatcher(s.root, cfg.Codec, cfg.Kinds, cfg.Repository,
			WithWatcherLogger(cfg.Logger.With("component", "watcher")))
		if err != nil {
			return nil, fmt.Errorf("installing watcher: %w", err)
		}
		s.watcher = w
	}

	return s, nil
}

// Root returns the configured storage root.
func (s *DiskStore) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// UpdateRoot points the store at a new storage directory. The old
// watch handle is released and a new one installed; the handle is
// released even if installing the replacement fails.
func (s *DiskStore) UpdateRoot(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Warn("closing watcher", "error", err)
		}
		s.watcher = nil
	}
	s.root = root

	if s.watch && root != "" {
		w, err := NewWatcher(root, s.codec, s.kinds, s.repo,
			WithWatcherLogger(s.logger.With("component", "watcher")))
		if err != nil {
			return fmt.Errorf("installing watcher: %w", err)
		}
		s.watcher = w
	}
	return nil
}

// Close releases the watch handle.
func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// PathFor maps a canonical URL to a filesystem path. A URL ending in a
// path separator already denotes a physical directory and is returned
// unchanged; otherwise the final segment is joined onto the storage
// root, case-normalised. Purely lexical.
func (s *DiskStore) PathFor(url string) string {
	if url == "" || strings.HasSuffix(url, "/") || strings.HasSuffix(url, `\`) {
		return url
	}
	_, base := splitPath(url)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return filepath.Join(s.Root(), strings.ToLower(base))
}

// Save writes artifact content under its canonical URL, records the
// reduction in the shared index (unless the URL names an image kind),
// and deletes any stale expired twin left over from an earlier flush
// of the same key and signature.
//
// A failed write aborts the whole operation: the index update and
// cleanup never run.
func (s *DiskStore) Save(ctx context.Context, content []byte, url, originalURLs string) error {
	file := s.PathFor(url)

	if err := s.files.Write(ctx, file, content); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}

	if !s.kinds.IsImageURL(url) {
		key := s.codec.ParseKey(url)
		if err := s.repo.Add(ctx, key, url); err != nil {
			return fmt.Errorf("updating reduction index: %w", err)
		}
	}

	if expired := expiredNearSignature(file, s.codec.ParseSignature(file)); expired != file {
		exists, err := s.files.Exists(ctx, expired)
		if err != nil {
			return fmt.Errorf("checking expired twin: %w", err)
		}
		if exists {
			if err := s.files.Delete(ctx, expired); err != nil {
				return fmt.Errorf("deleting expired twin: %w", err)
			}
		}
	}

	kindName := "unknown"
	if kind, ok := s.kinds.Match(file); ok {
		kindName = kind.Name
	}
	telemetry.RecordSave(ctx, kindName, int64(len(content)))

	s.logger.Debug("saved artifact",
		"url", url,
		"file", file,
		"bytes", len(content),
		"original_urls", originalURLs,
	)
	return nil
}

// SendContent transmits the artifact for a URL to the sink. If the
// active file is gone it falls back to the expired variant once, so a
// consumer that resolved the URL just before a flush still gets a
// valid response. Returns false when both attempts miss; the caller
// decides whether to regenerate.
func (s *DiskStore) SendContent(ctx context.Context, url string, sink Sink) (bool, error) {
	file := s.PathFor(url)

	err := sink.TransmitFile(file)
	if err == nil {
		telemetry.RecordSend(ctx, "active")
		return true, nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return false, fmt.Errorf("transmitting %s: %w", file, err)
	}

	fallback := expiredAtLastSeparator(file)
	err = sink.TransmitFile(fallback)
	if err == nil {
		telemetry.RecordSend(ctx, "expired")
		s.logger.Debug("served expired artifact", "url", url, "file", fallback)
		return true, nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return false, fmt.Errorf("transmitting %s: %w", fallback, err)
	}

	telemetry.RecordSend(ctx, "miss")
	return false, nil
}

// SavedURLs enumerates the active artifacts on disk, keyed by artifact
// key. When leftover duplicates exist for a key, the file with the
// newest creation timestamp wins (ties broken by filename). Returns an
// empty map when no storage root is configured.
func (s *DiskStore) SavedURLs(ctx context.Context) (map[assetcache.Key]string, error) {
	urls := make(map[assetcache.Key]string)

	root := s.Root()
	if root == "" {
		return urls, nil
	}

	entries, err := s.files.ListContaining(ctx, root, assetcache.Marker)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	newest := make(map[assetcache.Key]backend.Entry)
	for _, e := range entries {
		_, name := splitPath(e.Path)
		if IsExpiredName(name) {
			continue
		}
		key := s.codec.ParseKey(e.Path)
		if key.IsNil() {
			continue
		}
		cur, ok := newest[key]
		if !ok || e.Created.After(cur.Created) {
			newest[key] = e
			continue
		}
		// Deterministic tie-break on equal timestamps
		if e.Created.Equal(cur.Created) && e.Path > cur.Path {
			newest[key] = e
		}
	}

	for key, e := range newest {
		_, name := splitPath(e.Path)
		kind, ok := s.kinds.Match(name)
		if !ok {
			continue
		}
		urls[key] = s.codec.BuildURL(key, s.codec.ParseSignature(e.Path), kind)
	}

	return urls, nil
}

// Flush expires all active artifacts for a key: the key is removed
// from the shared index and every non-expired file carrying the key is
// renamed to its expired form. Bytes are never deleted, preserving the
// SendContent fallback. Renames are independent; a crash mid-flush
// leaves a partially expired set that the next flush or save
// converges.
//
// Flushing the nil key flushes every enumerated key, then still falls
// through to process the nil key itself against the index and the
// file scan. That extra no-op pass is kept for compatibility with
// existing deployments of the store family.
func (s *DiskStore) Flush(ctx context.Context, key assetcache.Key) error {
	if key.IsNil() {
		saved, err := s.SavedURLs(ctx)
		if err != nil {
			return err
		}
		for k := range saved {
			if err := s.Flush(ctx, k); err != nil {
				return err
			}
		}
	}

	if err := s.repo.Remove(ctx, key); err != nil {
		return fmt.Errorf("removing reduction: %w", err)
	}

	root := s.Root()
	if root == "" {
		return nil
	}

	entries, err := s.files.ListContaining(ctx, root, key.Compact())
	if err != nil {
		return fmt.Errorf("listing artifacts: %w", err)
	}

	renamed := 0
	for _, e := range entries {
		_, name := splitPath(e.Path)
		if IsExpiredName(name) {
			continue
		}
		if err := s.files.Rename(ctx, e.Path, expiredAfterKey(e.Path, key)); err != nil {
			return fmt.Errorf("expiring %s: %w", e.Path, err)
		}
		renamed++
	}

	if renamed > 0 {
		telemetry.RecordFlush(ctx, renamed)
		s.logger.Debug("flushed key", "key", key.String(), "renamed", renamed)
	}
	return nil
}
