// Package common provides shared helpers for dftools commands.
package common

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/DynamicCake/dftools/crypto"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from a base64
// string, or generates a new key pair if b64Key is empty.
func LoadOrGenerateSigningKey(b64Key string) (crypto.PrivateKey, error) {
	if b64Key != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(b64Key)
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes)
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// SetupLogger builds the process logger: JSON for production, text for
// local runs.
func SetupLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
