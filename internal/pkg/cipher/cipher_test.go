package cipher

import (
	"errors"
	"strings"
	"testing"

	"github.com/care-auth-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestNew_BadKey(t *testing.T) {
	_, err := New("not-hex")
	require.Error(t, err)

	_, err = New("abcd") // 2 bytes, not 32
	require.Error(t, err)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)

	sealed, err := c.Encrypt("482913")
	require.NoError(t, err)
	assert.NotEqual(t, "482913", sealed)

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "482913", plain)
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)

	a, err := c.Encrypt("482913")
	require.NoError(t, err)
	b, err := c.Encrypt("482913")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_CorruptedInput(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)

	cases := map[string]string{
		"not base64":     "%%%not-base64%%%",
		"too short":      "YWJj", // 3 bytes, shorter than the nonce
		"tampered":       "",
		"wrong key data": "",
	}

	sealed, err := c.Encrypt("482913")
	require.NoError(t, err)
	tampered := []byte(sealed)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}
	cases["tampered"] = string(tampered)

	other, err := New(strings.Repeat("ab", 32))
	require.NoError(t, err)
	foreign, err := other.Encrypt("482913")
	require.NoError(t, err)
	cases["wrong key data"] = foreign

	for name, input := range cases {
		_, err := c.Decrypt(input)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, domain.ErrCorruptedRecord), name)
	}
}
