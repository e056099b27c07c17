package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	assetcache "github.com/reducekit/asset-cache"
	"github.com/reducekit/asset-cache/index"
)

func newTestWatcher(t *testing.T) (*Watcher, *index.Memory, string) {
	t.Helper()

	root := t.TempDir()
	repo := index.NewMemory()
	kinds := assetcache.DefaultKinds()
	codec := assetcache.NewURIBuilder("/rr", kinds)

	w, err := NewWatcher(root, codec, kinds, repo)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	return w, repo, root
}

func TestWatcherIndexesCreatedFile(t *testing.T) {
	_, repo, root := newTestWatcher(t)

	key := assetcache.NewKey()
	name := key.Compact() + "-abc123_requestreducedstyle.css"
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		url, found, err := repo.Lookup(context.Background(), key)
		return err == nil && found && url == "/rr/"+key.Compact()+"-abc123_RequestReducedStyle.css"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	_, repo, root := newTestWatcher(t)

	key := assetcache.NewKey()
	path := filepath.Join(root, key.Compact()+"-abc123_requestreducedscript.js")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	require.Eventually(t, func() bool {
		_, found, err := repo.Lookup(context.Background(), key)
		return err == nil && found
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		_, found, err := repo.Lookup(context.Background(), key)
		return err == nil && !found
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresExpiredNames(t *testing.T) {
	_, repo, root := newTestWatcher(t)

	key := assetcache.NewKey()
	expired := key.Compact() + "-Expired-abc123_requestreducedstyle.css"
	require.NoError(t, os.WriteFile(filepath.Join(root, expired), []byte("x"), 0644))

	// Give the event time to arrive, then confirm nothing was indexed.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 0, repo.Len())
}

func TestWatcherIgnoresForeignFiles(t *testing.T) {
	_, repo, root := newTestWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "site.css"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "short-abc_requestreducedstyle.css"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 0, repo.Len())
}

func TestWatcherIgnoresImageArtifacts(t *testing.T) {
	_, repo, root := newTestWatcher(t)

	key := assetcache.NewKey()
	name := key.Compact() + "-abc123_requestreducedsprite.png"
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 0, repo.Len())
}

func TestWatcherFollowsNewSubdirectories(t *testing.T) {
	_, repo, root := newTestWatcher(t)

	sub := filepath.Join(root, "spool")
	require.NoError(t, os.Mkdir(sub, 0755))

	key := assetcache.NewKey()
	name := key.Compact() + "-abc123_requestreducedstyle.css"

	// The new directory has to be picked up before a write inside it
	// is visible; retry the write until the event lands.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("x"), 0644); err != nil {
			return false
		}
		_, found, err := repo.Lookup(context.Background(), key)
		return err == nil && found
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	repo := index.NewMemory()
	kinds := assetcache.DefaultKinds()

	s, err := New(Config{
		Root:          root,
		Codec:         assetcache.NewURIBuilder("/rr", kinds),
		Kinds:         kinds,
		Repository:    repo,
		EnableWatcher: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	// The fresh root is watched from the start
	key := assetcache.NewKey()
	name := key.Compact() + "-abc123_requestreducedstyle.css"
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		_, found, err := repo.Lookup(context.Background(), key)
		return err == nil && found
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
