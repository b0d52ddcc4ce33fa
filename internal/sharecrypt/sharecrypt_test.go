package sharecrypt

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

var testKey = hex.EncodeToString(bytes.Repeat([]byte{0x42}, 32))

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	plaintext := []byte("signing share material")
	blob, err := c.Seal(plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(blob), "signing share")

	got, err := c.Open(blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestSealIsRandomized(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	a, err := c.Seal([]byte("same input"))
	require.NoError(t, err)
	b, err := c.Seal([]byte("same input"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestOpenRejectsTampering(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	blob, err := c.Seal([]byte("payload"))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0x01
	_, err = c.Open(blob)
	require.Error(t, err)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	c1, err := NewCipher(testKey)
	require.NoError(t, err)
	c2, err := NewCipher(hex.EncodeToString(bytes.Repeat([]byte{0x43}, 32)))
	require.NoError(t, err)

	blob, err := c1.Seal([]byte("payload"))
	require.NoError(t, err)
	_, err = c2.Open(blob)
	require.Error(t, err)
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	_, err := NewCipher("not hex")
	require.Error(t, err)
	_, err = NewCipher("abcd") // too short
	require.Error(t, err)
}

func TestOpenRejectsShortBlob(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)
	_, err = c.Open([]byte{0x01, 0x02})
	require.Error(t, err)
}
