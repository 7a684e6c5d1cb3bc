package pii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("local passphrase")
	require.NoError(t, err)

	sealed, err := c.Encrypt("TR330006100519786457841326")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{32}:[0-9a-f]+$`, sealed)
	assert.NotContains(t, sealed, "TR33")

	again, err := c.Encrypt("TR330006100519786457841326")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "random IV per value")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "TR330006100519786457841326", plain)
}

func TestCipher_RawHexKey(t *testing.T) {
	c, err := NewCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, c.key, 32)
	assert.Equal(t, byte(0xab), c.key[0])
}

func TestCipher_Fingerprint(t *testing.T) {
	a, err := NewCipher("key-a")
	require.NoError(t, err)
	b, err := NewCipher("key-b")
	require.NoError(t, err)

	fp := a.Fingerprint("TR330006100519786457841326")
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, a.Fingerprint("TR330006100519786457841326"))
	assert.NotEqual(t, fp, a.Fingerprint("TR330006100034786457841326"))
	assert.NotEqual(t, fp, b.Fingerprint("TR330006100519786457841326"), "keyed by the cipher secret")
}

func TestCipher_WrongKeyOrGarbage(t *testing.T) {
	a, _ := NewCipher("key-a")
	b, _ := NewCipher("key-b")
	sealed, err := a.Encrypt("Ahmet Yilmaz")
	require.NoError(t, err)

	if plain, err := b.Decrypt(sealed); err == nil {
		assert.NotEqual(t, "Ahmet Yilmaz", plain)
	}
	_, err = a.Decrypt("not-sealed")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = a.Decrypt("00:zz")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = NewCipher("  ")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestNormalizeIBAN(t *testing.T) {
	iban, err := NormalizeIBAN("tr33 0006 1005 1978 6457 8413 26")
	require.NoError(t, err)
	assert.Equal(t, "TR330006100519786457841326", iban)

	_, err = NormalizeIBAN("TR340006100519786457841326")
	assert.ErrorIs(t, err, ErrInvalidIBAN)
	_, err = NormalizeIBAN("TR33")
	assert.ErrorIs(t, err, ErrInvalidIBAN)
	_, err = NormalizeIBAN("1R330006100519786457841326")
	assert.ErrorIs(t, err, ErrInvalidIBAN)
}

func TestMasking(t *testing.T) {
	assert.Equal(t, "TR33 **** **** **** 1326", MaskIBAN("TR330006100519786457841326"))
	assert.Equal(t, "A**** Y*****", MaskName("Ahmet  Yilmaz"))
	assert.Equal(t, "Ş****", MaskName("Şükrü"))
}
