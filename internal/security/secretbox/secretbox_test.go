package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	b, err := New(testKey())
	require.NoError(t, err)

	sealed, err := b.Seal("client-secret-value")
	require.NoError(t, err)
	require.True(t, IsSealed(sealed))
	require.NotContains(t, sealed, "client-secret-value")

	pt, err := b.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "client-secret-value", pt)
}

func TestOpen_DetectsTamper(t *testing.T) {
	b, err := New(testKey())
	require.NoError(t, err)
	sealed, err := b.Seal("x")
	require.NoError(t, err)

	parts := strings.Split(strings.TrimPrefix(sealed, Prefix), sep)
	ct, _ := base64.StdEncoding.DecodeString(parts[1])
	ct[0] ^= 0xFF
	tampered := Prefix + parts[0] + sep + base64.StdEncoding.EncodeToString(ct)

	_, err = b.Open(tampered)
	require.Error(t, err)
}

func TestOpen_Malformed(t *testing.T) {
	b, err := New(testKey())
	require.NoError(t, err)
	for _, v := range []string{"plain", "enc:nopipe", "enc:!!|!!"} {
		_, err := b.Open(v)
		require.ErrorIs(t, err, ErrMalformed, v)
	}
}

func TestParseKey_Encodings(t *testing.T) {
	k := testKey()
	for _, s := range []string{
		base64.StdEncoding.EncodeToString(k),
		base64.RawStdEncoding.EncodeToString(k),
		hex.EncodeToString(k),
	} {
		got, err := ParseKey(s)
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
	_, err := ParseKey("short")
	require.Error(t, err)
	_, err = ParseKey("")
	require.Error(t, err)
}

func TestOpenWithKey(t *testing.T) {
	b, _ := New(testKey())
	sealed, err := b.Seal("s3cr3t")
	require.NoError(t, err)

	pt, err := OpenWithKey(base64.StdEncoding.EncodeToString(testKey()), sealed)
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", pt)
}
