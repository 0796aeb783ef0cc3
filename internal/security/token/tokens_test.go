package tokens

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateOpaqueToken_LengthAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		tok, err := GenerateOpaqueToken(StateBytes)
		require.NoError(t, err)
		require.Len(t, tok, 43)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %q", tok)
		seen[tok] = struct{}{}
	}
}

func TestGenerateOpaqueToken_RejectsInvalidSize(t *testing.T) {
	_, err := GenerateOpaqueToken(0)
	require.Error(t, err)
}

func TestSHA256Base64URL_Stable(t *testing.T) {
	require.Equal(t, SHA256Base64URL("abc"), SHA256Base64URL("abc"))
	require.NotEqual(t, SHA256Base64URL("abc"), SHA256Base64URL("abd"))
	require.Len(t, SHA256Base64URL("abc"), 43)
}
