// Package assetcache provides the domain types for the asset cache:
// artifact keys, content signatures, resource kinds and the URL codec
// used to name stored artifacts.
package assetcache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CompactKeyLength is the length of a compact key in hex characters.
const CompactKeyLength = 32

// Key identifies one logical asset slot (for example "the combined CSS
// for page template X"). It is stable across content updates of the
// same asset; successive versions are distinguished by signature.
type Key uuid.UUID

// NilKey is the zero key. Flushing it means "flush everything".
var NilKey Key

// NewKey returns a random key.
func NewKey() Key {
	return Key(uuid.New())
}

// IsNil returns true if the key is the zero key.
func (k Key) IsNil() bool {
	return k == NilKey
}

// String returns the canonical dashed UUID form.
func (k Key) String() string {
	return uuid.UUID(k).String()
}

// Compact returns the key as 32 lowercase hex characters with no
// dashes. This is the form embedded in artifact filenames.
func (k Key) Compact() string {
	return strings.ReplaceAll(uuid.UUID(k).String(), "-", "")
}

// ParseKey parses a key from either the dashed or the compact form.
func ParseKey(s string) (Key, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilKey, fmt.Errorf("parsing key %q: %w", s, err)
	}
	return Key(id), nil
}
