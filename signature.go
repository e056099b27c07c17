package assetcache

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// SignatureLength is the length of a content signature in hex characters.
const SignatureLength = 32

// Signature derives the content signature embedded in artifact
// filenames: a BLAKE3-256 digest truncated to 128 bits, lowercase hex.
// Two artifacts for the same key with different content get different
// signatures, which is what makes expire-by-rename safe.
func Signature(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:SignatureLength/2])
}
