package federation

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/plot"
)

func testKey(t *testing.T) crypto.PublicKey {
	t.Helper()
	pub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return pub
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens([]byte("secret"), "self.example.com", 3*time.Hour)
	peerKey := testKey(t)
	peer := plot.NewInstance(peerKey, "peer.example.com")

	token, err := tokens.Mint(peer)
	require.NoError(t, err)

	server, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, plot.InstanceDomain("peer.example.com"), server.Domain)
	assert.True(t, peerKey.Equal(server.Key))
}

func TestTokenSubjectKeepsDomainPort(t *testing.T) {
	tokens := NewTokens([]byte("secret"), "self.example.com", 3*time.Hour)
	peerKey := testKey(t)

	token, err := tokens.Mint(plot.NewInstance(peerKey, "localhost:3000"))
	require.NoError(t, err)

	server, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, plot.InstanceDomain("localhost:3000"), server.Domain)
}

func TestExpiredTokenRejected(t *testing.T) {
	tokens := NewTokens([]byte("secret"), "self.example.com", 3*time.Hour)
	tokens.now = func() time.Time { return time.Now().Add(-4 * time.Hour) }

	token, err := tokens.Mint(plot.NewInstance(testKey(t), "peer.example.com"))
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestPreFenceTokenRejected(t *testing.T) {
	tokens := NewTokens([]byte("secret"), "self.example.com", 3*time.Hour)

	// Minted long before the version fence but with an expiry far in the
	// future: the fence must win over the still-valid expiry.
	issued := minIssuedAt.Add(-24 * time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   plot.NewInstance(testKey(t), "peer.example.com").Encode("self.example.com"),
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(100 * 24 * time.Hour)),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestFreshTokenPassesBothChecks(t *testing.T) {
	tokens := NewTokens([]byte("secret"), "self.example.com", 3*time.Hour)

	token, err := tokens.Mint(plot.NewInstance(testKey(t), "peer.example.com"))
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	assert.NoError(t, err)
}

func TestTamperedTokenCannotVerify(t *testing.T) {
	tokens := NewTokens([]byte("secret"), "self.example.com", 3*time.Hour)
	token, err := tokens.Mint(plot.NewInstance(testKey(t), "peer.example.com"))
	require.NoError(t, err)

	other := NewTokens([]byte("different-secret"), "self.example.com", 3*time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrCannotVerify)

	_, err = tokens.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrCannotVerify)
}

func TestTokensCarryUniqueJTI(t *testing.T) {
	tokens := NewTokens([]byte("secret"), "self.example.com", 3*time.Hour)
	peer := plot.NewInstance(testKey(t), "peer.example.com")

	a, err := tokens.Mint(peer)
	require.NoError(t, err)
	b, err := tokens.Mint(peer)
	require.NoError(t, err)

	var claimsA, claimsB jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(a, &claimsA, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	_, err = jwt.ParseWithClaims(b, &claimsB, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)

	assert.NotEmpty(t, claimsA.ID)
	assert.NotEqual(t, claimsA.ID, claimsB.ID)
}
