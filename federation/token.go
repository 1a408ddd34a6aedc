package federation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/plot"
)

// Token verification errors, each a distinct 401 kind.
var (
	// ErrCannotVerify is returned for structurally invalid tokens or bad
	// signatures.
	ErrCannotVerify = errors.New("cannot verify server token")
	// ErrVersionMismatch is returned for tokens minted before the claim
	// format changed; holders must redo the handshake.
	ErrVersionMismatch = errors.New("server token predates current protocol version")
	// ErrExpired is returned for tokens past their expiry window.
	ErrExpired = errors.New("server token expired")
)

// minIssuedAt is the version fence: tokens issued before this instant were
// minted under the old claim layout and are rejected regardless of expiry.
var minIssuedAt = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultTokenTTL is the expiry window for server tokens. Tokens are not
// renewable; a fresh handshake is required after expiry.
const DefaultTokenTTL = 3 * time.Hour

// ExternalServer is the verified identity an accepted token carries: the
// peer instance the token was minted for.
type ExternalServer struct {
	Domain plot.InstanceDomain
	Key    crypto.PublicKey
}

// Tokens mints and verifies the signed, time-boxed credentials instances
// present on privileged federation calls. The signing key is shared
// symmetric material, immutable after construction.
type Tokens struct {
	secret []byte
	domain plot.InstanceDomain
	ttl    time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewTokens creates a token service signing with secret on behalf of the
// given instance domain.
func NewTokens(secret []byte, domain plot.InstanceDomain, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{
		secret: secret,
		domain: domain,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint issues a token bound to the given instance. The jti claim is a
// random UUID; it is carried for future replay tracking but not checked.
func (t *Tokens) Mint(instance plot.Instance) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   instance.Encode(string(t.domain)),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing server token: %w", err)
	}
	return signed, nil
}

// Verify checks a presented token: signature and structure first, then the
// issuance version fence, then expiry. Each failure keeps its own kind.
func (t *Tokens) Verify(token string) (ExternalServer, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Validated by hand below so the fence check precedes expiry.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return ExternalServer{}, fmt.Errorf("%w: %w", ErrCannotVerify, err)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return ExternalServer{}, fmt.Errorf("%w: missing iat or exp", ErrCannotVerify)
	}
	if claims.IssuedAt.Time.Before(minIssuedAt) {
		return ExternalServer{}, ErrVersionMismatch
	}
	if claims.ExpiresAt.Time.Before(t.now()) {
		return ExternalServer{}, ErrExpired
	}

	server, err := decodeSubject(claims.Subject)
	if err != nil {
		return ExternalServer{}, fmt.Errorf("%w: %w", ErrCannotVerify, err)
	}
	return server, nil
}

// decodeSubject parses the "domain:base64key" subject claim. The key never
// contains a colon, so the split happens at the last one; domains may
// carry a port.
func decodeSubject(sub string) (ExternalServer, error) {
	idx := strings.LastIndexByte(sub, ':')
	if idx < 0 {
		return ExternalServer{}, errors.New("malformed subject claim")
	}
	domain, err := plot.ParseInstanceDomain(sub[:idx])
	if err != nil {
		return ExternalServer{}, err
	}
	key, err := crypto.NewPublicKeyFromString(sub[idx+1:])
	if err != nil {
		return ExternalServer{}, err
	}
	return ExternalServer{Domain: domain, Key: key}, nil
}
