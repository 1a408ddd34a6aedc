// Package crypto provides the key and signature types used for instance
// identity and API-key handling.
//
// Instances are identified by Ed25519 keypairs. Keys and signatures travel
// base64-encoded on the wire and are stored raw in the database.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// PublicKey is an Ed25519 public key identifying an instance.
// The implementation makes a copy of input data to ensure immutability.
type PublicKey []byte

// NewPublicKeyFromBytes creates a PublicKey from a byte slice.
func NewPublicKeyFromBytes(data []byte) (PublicKey, error) {
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d byte public key, got %d", ed25519.PublicKeySize, len(data))
	}
	pk := make([]byte, len(data))
	copy(pk, data)
	return PublicKey(pk), nil
}

// NewPublicKeyFromString creates a PublicKey from its base64 wire form.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	return NewPublicKeyFromBytes(raw)
}

// Bytes returns the public key as a byte slice.
func (pk PublicKey) Bytes() []byte {
	return pk
}

// Equal compares two public keys in constant time.
func (pk PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(pk, other) == 1
}

// String returns the base64 wire form of the public key.
func (pk PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(pk)
}

// PrivateKey is an Ed25519 private key. It should never leave the process
// that generated it.
type PrivateKey []byte

// NewPrivateKeyFromBytes creates a PrivateKey from a byte slice.
func NewPrivateKeyFromBytes(data []byte) (PrivateKey, error) {
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d byte private key, got %d", ed25519.PrivateKeySize, len(data))
	}
	sk := make([]byte, len(data))
	copy(sk, data)
	return PrivateKey(sk), nil
}

// Bytes returns the private key material. Handle with care.
func (sk PrivateKey) Bytes() []byte {
	return sk
}

// PublicKey derives the public key corresponding to this private key.
// For Ed25519 the public key is the second half of the private key.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return PublicKey(sk[32:]), nil
}

// GenerateKeyPair creates a new Ed25519 keypair.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PublicKey(pub), PrivateKey(priv), nil
}

// Signature is an Ed25519 signature, base64-encoded on the wire.
type Signature []byte

// NewSignatureFromString decodes a signature from its base64 wire form.
func NewSignatureFromString(data string) (Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("expected %d byte signature, got %d", ed25519.SignatureSize, len(raw))
	}
	return Signature(raw), nil
}

// Bytes returns the raw signature bytes.
func (s Signature) Bytes() []byte {
	return s
}

// String returns the base64 wire form of the signature.
func (s Signature) String() string {
	return base64.StdEncoding.EncodeToString(s)
}

// Verify reports whether the signature is valid for data under publicKey.
func (s Signature) Verify(publicKey PublicKey, data []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(s) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, s)
}

// Sign signs data with the private key.
func Sign(privateKey PrivateKey, data []byte) (Signature, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return Signature(ed25519.Sign(ed25519.PrivateKey(privateKey), data)), nil
}
