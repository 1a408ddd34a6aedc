// Package testutil provides shared fixtures for store, auth, and handler
// tests: keypairs, a miniredis-backed store, and a static name resolver.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/store"
)

// NewKeyPair generates an Ed25519 keypair for a test.
func NewKeyPair(t *testing.T) (crypto.PublicKey, crypto.PrivateKey) {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return pub, priv
}

// StaticResolver resolves player names from a fixed map, returning
// store.ErrOwnerNotFound for anything else.
type StaticResolver map[string]uuid.UUID

// Resolve implements store.NameResolver.
func (r StaticResolver) Resolve(_ context.Context, name string) (uuid.UUID, error) {
	id, ok := r[name]
	if !ok {
		return uuid.Nil, store.ErrOwnerNotFound
	}
	return id, nil
}

// Fixture bundles a fully-wired test store with its backing fakes.
type Fixture struct {
	Store     *store.Store
	DB        *store.MemoryQuerier
	Redis     *miniredis.Miniredis
	Resolver  StaticResolver
	PublicKey crypto.PublicKey
	SignKey   crypto.PrivateKey
}

// NewFixture builds a store over miniredis and an in-memory querier.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	pub, priv := NewKeyPair(t)
	db := store.NewMemoryQuerier()
	resolver := StaticResolver{}

	s := store.New(store.Config{
		Querier:   db,
		Cache:     cache,
		Resolver:  resolver,
		PublicKey: pub,
	})

	return &Fixture{
		Store:     s,
		DB:        db,
		Redis:     mr,
		Resolver:  resolver,
		PublicKey: pub,
		SignKey:   priv,
	}
}

// RegisterPlot seeds a plot owned by a fresh UUID and returns the owner.
func (f *Fixture) RegisterPlot(t *testing.T, id plot.ID) uuid.UUID {
	t.Helper()
	owner := uuid.New()
	require.NoError(t, f.DB.InsertPlot(context.Background(), id, owner, nil))
	return owner
}
