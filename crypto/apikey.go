package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
)

// KeyDigest is the SHA-256 digest of an API key. Only digests are persisted;
// the plaintext key is returned to the caller once at creation and never
// stored.
type KeyDigest [sha256.Size]byte

// HashAPIKey digests a plaintext API key for storage and lookup.
func HashAPIKey(key string) KeyDigest {
	return sha256.Sum256([]byte(key))
}

// Bytes returns the digest as a byte slice.
func (d KeyDigest) Bytes() []byte {
	return d[:]
}

// String returns the base64 form of the digest, used as the cache key.
func (d KeyDigest) String() string {
	return base64.StdEncoding.EncodeToString(d[:])
}

const apiKeyLength = 32

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewAPIKey generates a random alphanumeric API key.
func NewAPIKey() (string, error) {
	return randomAlphanumeric(apiKeyLength)
}

// NewSelfCheckKey generates the per-process key backing the vibecheck
// endpoint.
func NewSelfCheckKey() (string, error) {
	return randomAlphanumeric(42)
}

func randomAlphanumeric(n int) (string, error) {
	max := big.NewInt(int64(len(alphanumeric)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out), nil
}
