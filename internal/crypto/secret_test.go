package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox([]byte(testKey))
	require.NoError(t, err)

	sealed, err := box.Encrypt("s3cret")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "s3cret")

	again, err := box.Encrypt("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	plain, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)
}

func TestSecretBoxRejectsTampering(t *testing.T) {
	box, err := NewSecretBox([]byte(testKey))
	require.NoError(t, err)
	sealed, err := box.Encrypt("s3cret")
	require.NoError(t, err)

	data, _ := base64.StdEncoding.DecodeString(sealed)
	data[len(data)-1] ^= 0xff
	_, err = box.Decrypt(base64.StdEncoding.EncodeToString(data))
	assert.Error(t, err)

	_, err = box.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrCiphertextShort)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey(testKey)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	key, err = ParseKey(base64.StdEncoding.EncodeToString([]byte(testKey)))
	require.NoError(t, err)
	assert.Equal(t, []byte(testKey), key)

	_, err = ParseKey(strings.Repeat("x", 10))
	assert.ErrorIs(t, err, ErrKeyLength)

	_, err = NewSecretBox([]byte("short"))
	assert.ErrorIs(t, err, ErrKeyLength)
}
