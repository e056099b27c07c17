package store

import (
	"path/filepath"
	"strings"

	assetcache "github.com/reducekit/asset-cache"
)

// ExpiredMarker is the token carried by files that have been expired
// by rename. Expired files are invisible to enumeration and the
// change watcher, but still serve the transmission fallback.
const ExpiredMarker = "Expired"

// IsExpiredName reports whether a filename carries the expired marker.
func IsExpiredName(name string) bool {
	return strings.Contains(filepath.Base(name), ExpiredMarker)
}

// The three insertion rules below are distinct conventions, each owned
// by one operation, kept separate for round-trip compatibility with
// existing stores. On a canonical <key>-<signature><suffix> name they
// all produce <key>-Expired-<signature><suffix>.

// expiredNearSignature inserts the marker immediately before the
// signature token. Used by Save to locate a stale expired twin of the
// file it just wrote.
func expiredNearSignature(path, signature string) string {
	if signature == "" {
		return path
	}
	dir, base := splitPath(path)
	i := strings.LastIndex(base, "-"+signature)
	if i < 0 {
		return path
	}
	return dir + base[:i+1] + ExpiredMarker + "-" + base[i+1:]
}

// expiredAtLastSeparator inserts the marker at the last "-" within the
// filename segment. Used by SendContent to locate the fallback file.
func expiredAtLastSeparator(path string) string {
	dir, base := splitPath(path)
	i := strings.LastIndex(base, "-")
	if i < 0 {
		return path
	}
	return dir + base[:i] + "-" + ExpiredMarker + base[i:]
}

// expiredAfterKey inserts the marker immediately after the compact key
// token. Used by Flush when renaming active files.
func expiredAfterKey(path string, key assetcache.Key) string {
	dir, base := splitPath(path)
	i := strings.Index(base, key.Compact())
	if i < 0 {
		return path
	}
	j := i + assetcache.CompactKeyLength
	return dir + base[:j] + "-" + ExpiredMarker + base[j:]
}

// splitPath splits a path into its directory prefix (separator
// included) and filename segment, tolerating both separator styles.
func splitPath(path string) (dir, base string) {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return "", path
	}
	return path[:i+1], path[i+1:]
}
