package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("DFTOOLS VERIFY 2025-01-01 00:00:00.000")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)

	assert.True(t, sig.Verify(pub, msg))
	assert.False(t, sig.Verify(pub, []byte("different message")))

	otherPub, _, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, sig.Verify(otherPub, msg))
}

func TestPublicKeyWireForm(t *testing.T) {
	pub, _, err := GenerateKeyPair()
	require.NoError(t, err)

	decoded, err := NewPublicKeyFromString(pub.String())
	require.NoError(t, err)
	assert.True(t, pub.Equal(decoded))

	_, err = NewPublicKeyFromString("not base64!!!")
	assert.Error(t, err)

	// Right encoding, wrong length.
	_, err = NewPublicKeyFromString("c2hvcnQ=")
	assert.Error(t, err)
}

func TestPrivateKeyDerivesPublic(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	derived, err := priv.PublicKey()
	require.NoError(t, err)
	assert.True(t, pub.Equal(derived))
}

func TestSignatureWireForm(t *testing.T) {
	_, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	sig, err := Sign(priv, []byte("payload"))
	require.NoError(t, err)

	decoded, err := NewSignatureFromString(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig.Bytes(), decoded.Bytes())
}

func TestHashAPIKeyIsStable(t *testing.T) {
	a := HashAPIKey("some-key")
	b := HashAPIKey("some-key")
	c := HashAPIKey("other-key")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.Bytes(), 32)
}

func TestNewAPIKeyIsAlphanumeric(t *testing.T) {
	key, err := NewAPIKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
	for _, r := range key {
		assert.Contains(t, alphanumeric, string(r))
	}

	other, err := NewAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
