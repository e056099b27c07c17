package assetcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyCompactRoundTrip(t *testing.T) {
	key, err := ParseKey("3fa85f64-5717-4562-b3fc-2c963f66afa6")
	require.NoError(t, err)

	compact := key.Compact()
	require.Equal(t, "3fa85f6457174562b3fc2c963f66afa6", compact)
	require.Len(t, compact, CompactKeyLength)

	parsed, err := ParseKey(compact)
	require.NoError(t, err)
	require.Equal(t, key, parsed)
}

func TestKeyNil(t *testing.T) {
	require.True(t, NilKey.IsNil())
	require.Equal(t, "00000000000000000000000000000000", NilKey.Compact())

	key := NewKey()
	require.False(t, key.IsNil())
}

func TestParseKeyInvalid(t *testing.T) {
	tests := []string{
		"",
		"not-a-key",
		"3fa85f6457174562b3fc2c963f66afa", // one char short
		"zfa85f6457174562b3fc2c963f66afa6",
	}

	for _, input := range tests {
		_, err := ParseKey(input)
		require.Error(t, err, "input %q", input)
	}
}
