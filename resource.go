package assetcache

import "strings"

// Marker is the literal token every stored artifact filename carries.
// Enumeration and the change watcher only see files containing it;
// anything else in the storage directory is invisible to the store.
const Marker = "RequestReduce"

// Kind describes one resource type the store can hold. The set of
// kinds is open: new ones are registered by constructing a KindSet
// with additional entries.
type Kind struct {
	// Name is a short identifier such as "css" or "javascript".
	Name string

	// Ext is the URL extension for the kind, e.g. ".css".
	Ext string

	// Suffix is the filename suffix for stored artifacts of this
	// kind. It carries the Marker token and attaches directly to the
	// signature, e.g. "_RequestReducedStyle.css".
	Suffix string

	// Image marks kinds that are addressed directly by URL and
	// excluded from the reduction index.
	Image bool
}

// The built-in kinds.
var (
	CSS        = Kind{Name: "css", Ext: ".css", Suffix: "_" + Marker + "dStyle.css"}
	JavaScript = Kind{Name: "javascript", Ext: ".js", Suffix: "_" + Marker + "dScript.js"}
	Sprite     = Kind{Name: "sprite", Ext: ".png", Suffix: "_" + Marker + "dSprite.png", Image: true}
)

// KindSet is an immutable set of registered resource kinds.
type KindSet struct {
	kinds []Kind
}

// NewKindSet builds a set from the given kinds.
func NewKindSet(kinds ...Kind) *KindSet {
	return &KindSet{kinds: append([]Kind(nil), kinds...)}
}

// DefaultKinds returns a set with the built-in kinds.
func DefaultKinds() *KindSet {
	return NewKindSet(CSS, JavaScript, Sprite)
}

// Kinds returns the registered kinds in registration order.
func (s *KindSet) Kinds() []Kind {
	return append([]Kind(nil), s.kinds...)
}

// Match returns the kind whose filename suffix matches the given
// filename, case-insensitively.
func (s *KindSet) Match(filename string) (Kind, bool) {
	lower := strings.ToLower(filename)
	for _, k := range s.kinds {
		if strings.HasSuffix(lower, strings.ToLower(k.Suffix)) {
			return k, true
		}
	}
	return Kind{}, false
}

// IsImageURL reports whether the URL names an image kind, by URL
// extension, case-insensitively. Image artifacts are stored and
// served but never tracked in the reduction index.
func (s *KindSet) IsImageURL(url string) bool {
	lower := strings.ToLower(url)
	for _, k := range s.kinds {
		if k.Image && strings.HasSuffix(lower, k.Ext) {
			return true
		}
	}
	return false
}
