package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	assetcache "github.com/reducekit/asset-cache"
)

func TestExpiredInsertionsAgreeOnCanonicalNames(t *testing.T) {
	key, err := assetcache.ParseKey("3fa85f64-5717-4562-b3fc-2c963f66afa6")
	require.NoError(t, err)

	path := "/store/" + key.Compact() + "-abc123_RequestReducedStyle.css"
	want := "/store/" + key.Compact() + "-Expired-abc123_RequestReducedStyle.css"

	// Three distinct conventions, one result on a canonical name.
	require.Equal(t, want, expiredNearSignature(path, "abc123"))
	require.Equal(t, want, expiredAtLastSeparator(path))
	require.Equal(t, want, expiredAfterKey(path, key))
}

func TestExpiredNearSignatureUnmatched(t *testing.T) {
	require.Equal(t, "/store/a.png", expiredNearSignature("/store/a.png", ""))
	require.Equal(t, "/store/a.png", expiredNearSignature("/store/a.png", "abc123"))
}

func TestExpiredAtLastSeparatorNoDash(t *testing.T) {
	require.Equal(t, "/store/plain.css", expiredAtLastSeparator("/store/plain.css"))
}

func TestExpiredAfterKeyUnmatched(t *testing.T) {
	require.Equal(t, "/store/plain.css", expiredAfterKey("/store/plain.css", assetcache.NewKey()))
}

func TestExpiredHelpersPreserveDirectory(t *testing.T) {
	key, err := assetcache.ParseKey("3fa85f64-5717-4562-b3fc-2c963f66afa6")
	require.NoError(t, err)

	path := `C:\inetpub\store\` + key.Compact() + "-abc123_RequestReducedStyle.css"
	got := expiredAfterKey(path, key)
	require.Equal(t, `C:\inetpub\store\`+key.Compact()+"-Expired-abc123_RequestReducedStyle.css", got)
}

func TestIsExpiredName(t *testing.T) {
	require.True(t, IsExpiredName("3fa85f6457174562b3fc2c963f66afa6-Expired-abc123_RequestReducedStyle.css"))
	require.False(t, IsExpiredName("3fa85f6457174562b3fc2c963f66afa6-abc123_RequestReducedStyle.css"))
	require.False(t, IsExpiredName("/store/Expired/" + "3fa85f6457174562b3fc2c963f66afa6-abc123_RequestReducedStyle.css"))
}
