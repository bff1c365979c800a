package ats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipherRoundtrip(t *testing.T) {
	keys := []string{
		"000000000000000000000000",
		"123456789012345678901234",
		"999999999999999999999999",
	}
	payloads := [][]byte{
		{},
		{0x01},
		[]byte("fifteen bytes.."),
		[]byte("exactly sixteen!"),
		make([]byte, 300),
	}

	for _, key := range keys {
		c, err := NewCipher(key)
		require.NoError(t, err)

		for _, plain := range payloads {
			enc, err := c.Encrypt(plain)
			require.NoError(t, err)
			require.NotEqual(t, plain, enc)

			dec, err := c.Decrypt(enc)
			require.NoError(t, err)
			require.Equal(t, plain, dec)
		}
	}
}

func TestCipherKeyFormat(t *testing.T) {
	for _, key := range []string{
		"",
		"12345",
		"12345678901234567890123",   // 23 digits
		"1234567890123456789012345", // 25 digits
		"12345678901234567890123a",
		"123456789012345678901 34",
	} {
		_, err := NewCipher(key)
		require.ErrorIs(t, err, ErrInvalidKeyFormat, "key %q", key)
	}
}

func TestCipherDecryptCorrupt(t *testing.T) {
	c, err := NewCipher("123456789012345678901234")
	require.NoError(t, err)

	_, err = c.Decrypt(nil)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = c.Decrypt(make([]byte, 17))
	require.ErrorIs(t, err, ErrDecrypt)

	enc, err := c.Encrypt([]byte("some payload"))
	require.NoError(t, err)
	enc[len(enc)-1] ^= 0xff // break the padding block
	_, err = c.Decrypt(enc)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestCipherWrongKey(t *testing.T) {
	a, err := NewCipher("111111111111111111111111")
	require.NoError(t, err)
	b, err := NewCipher("222222222222222222222222")
	require.NoError(t, err)

	enc, err := a.Encrypt([]byte("hello panel"))
	require.NoError(t, err)

	dec, err := b.Decrypt(enc)
	if err == nil {
		// Padding can survive by chance; the plaintext must not.
		require.NotEqual(t, []byte("hello panel"), dec)
	}
}
