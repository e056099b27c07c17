package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	assetcache "github.com/reducekit/asset-cache"
	"github.com/reducekit/asset-cache/index"
	"github.com/reducekit/asset-cache/telemetry"
)

// Watcher reconciles the shared reduction index with filesystem
// reality. It observes create/modify/delete events under the storage
// root — including changes made by sibling processes or machines
// sharing the path — and pushes the derived index updates itself, so
// the index converges even when a change did not go through this
// store's API.
//
// All events are handled on a single goroutine, keeping a single
// writer feeding watch-driven updates into the repository.
type Watcher struct {
	root   string
	codec  *assetcache.URIBuilder
	kinds  *assetcache.KindSet
	repo   index.Repository
	logger *slog.Logger

	fsw       *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for watch events.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher installs a recursive watch on the storage root and starts
// handling events. Callers must Close the watcher to release the
// handle.
func NewWatcher(root string, codec *assetcache.URIBuilder, kinds *assetcache.KindSet, repo index.Repository, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		root:   root,
		codec:  codec,
		kinds:  kinds,
		repo:   repo,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	// The root may not exist until the first write; a watch needs it
	// on disk now.
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watch handle: %w", err)
	}
	w.fsw = fsw

	// fsnotify watches are not recursive; register the root and every
	// existing subdirectory. New subdirectories are added as their
	// create events arrive.
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	go w.run()

	w.logger.Debug("watching storage root", "root", root)
	return w, nil
}

// Close stops event delivery and releases the watch handle. Safe to
// call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fsw.Close()
		<-w.done
	})
	return w.closeErr
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// handle applies one filesystem event to the reduction index. The
// handler never blocks on anything but the repository itself.
func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.logger.Warn("watching new directory", "dir", ev.Name, "error", err)
			}
			return
		}
	}

	_, name := splitPath(ev.Name)
	if !strings.Contains(strings.ToLower(name), strings.ToLower(assetcache.Marker)) {
		return
	}
	// An expired file appearing or vanishing says nothing about the
	// active artifact; flush already removed the key when it renamed
	// the file away.
	if IsExpiredName(name) {
		return
	}

	path := strings.ReplaceAll(ev.Name, `\`, "/")
	key := w.codec.ParseKey(path)
	if key.IsNil() {
		return
	}
	kind, ok := w.kinds.Match(name)
	if !ok {
		return
	}
	// Image artifacts are referenced from within reductions, never
	// looked up by key; they are not indexed.
	if kind.Image {
		return
	}

	ctx := context.Background()
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if err := w.repo.Remove(ctx, key); err != nil {
			w.logger.Warn("removing reduction", "key", key.String(), "error", err)
			return
		}
		telemetry.RecordWatchEvent(ctx, "remove")
		w.logger.Debug("index entry removed by watch", "key", key.String())

	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		url := w.codec.BuildURL(key, w.codec.ParseSignature(path), kind)
		if err := w.repo.Add(ctx, key, url); err != nil {
			w.logger.Warn("adding reduction", "key", key.String(), "error", err)
			return
		}
		telemetry.RecordWatchEvent(ctx, "add")
		w.logger.Debug("index entry added by watch", "key", key.String(), "url", url)
	}
}
