package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	assetcache "github.com/reducekit/asset-cache"
)

func TestMemoryAddLookupRemove(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	key := assetcache.NewKey()
	url := "/rr/" + key.Compact() + "-abc123_RequestReducedStyle.css"

	require.NoError(t, m.Add(ctx, key, url))

	got, ok, err := m.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, url, got)

	require.NoError(t, m.Remove(ctx, key))

	_, ok, err = m.Lookup(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryAddOverwrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	key := assetcache.NewKey()
	require.NoError(t, m.Add(ctx, key, "/rr/old.css"))
	require.NoError(t, m.Add(ctx, key, "/rr/new.css"))

	got, ok, _ := m.Lookup(ctx, key)
	require.True(t, ok)
	require.Equal(t, "/rr/new.css", got)
	require.Equal(t, 1, m.Len())
}

func TestMemoryRemoveAbsent(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Remove(context.Background(), assetcache.NewKey()))
}

func TestMemoryAll(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	k1, k2 := assetcache.NewKey(), assetcache.NewKey()
	require.NoError(t, m.Add(ctx, k1, "/rr/a.css"))
	require.NoError(t, m.Add(ctx, k2, "/rr/b.js"))

	all, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "/rr/a.css", all[k1])
	require.Equal(t, "/rr/b.js", all[k2])

	// Snapshot, not a live view
	all[k1] = "mutated"
	got, _, _ := m.Lookup(ctx, k1)
	require.Equal(t, "/rr/a.css", got)
}
