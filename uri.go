package assetcache

import "strings"

// URIBuilder is the codec between canonical artifact URLs and the
// key/signature/kind triple embedded in them. The same code parses
// filesystem paths, so callers may pass either; backslash and forward
// slash separators are interchangeable.
type URIBuilder struct {
	virtualPath string
	kinds       *KindSet
}

// NewURIBuilder creates a codec rooted at the given virtual path
// (for example "/rr") with the given registered kinds.
func NewURIBuilder(virtualPath string, kinds *KindSet) *URIBuilder {
	return &URIBuilder{
		virtualPath: strings.TrimRight(virtualPath, "/"),
		kinds:       kinds,
	}
}

// VirtualPath returns the URL prefix canonical URLs are built under.
func (b *URIBuilder) VirtualPath() string {
	return b.virtualPath
}

// BuildURL constructs the canonical URL for an artifact:
// <virtualPath>/<compactKey>-<signature><kindSuffix>.
func (b *URIBuilder) BuildURL(key Key, signature string, kind Kind) string {
	return b.virtualPath + "/" + key.Compact() + "-" + signature + kind.Suffix
}

// ParseKey extracts the artifact key from a URL or file path.
// Returns NilKey if the final segment does not begin with a compact
// key token.
func (b *URIBuilder) ParseKey(pathOrURL string) Key {
	seg := finalSegment(pathOrURL)
	token, _, ok := strings.Cut(seg, "-")
	if !ok || len(token) != CompactKeyLength {
		return NilKey
	}
	key, err := ParseKey(token)
	if err != nil {
		return NilKey
	}
	return key
}

// ParseSignature extracts the content signature from a URL or file
// path. Expired variants parse to the same signature as their active
// form. Returns "" if no signature token is present.
func (b *URIBuilder) ParseSignature(pathOrURL string) string {
	seg := finalSegment(pathOrURL)
	_, rest, ok := strings.Cut(seg, "-")
	if !ok {
		return ""
	}
	rest = strings.TrimPrefix(rest, "Expired-")
	if i := strings.IndexAny(rest, "_."); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// finalSegment returns the last path segment with separators
// normalised and any query or fragment stripped.
func finalSegment(pathOrURL string) string {
	s := strings.ReplaceAll(pathOrURL, "\\", "/")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
