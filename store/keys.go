package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/plot"
)

// VerifyKey resolves a plaintext API key to the plot it belongs to, or nil
// if no active key matches. Misses are cached with a sentinel row so
// repeated probes with an invalid key never hit the relational store twice.
func (s *Store) VerifyKey(ctx context.Context, key string) (*plot.Plot, error) {
	digest := crypto.HashAPIKey(key)

	var cached plot.Plot
	hit, err := s.cacheGet(ctx, keyCacheKey(digest), "key", &cached)
	if err != nil {
		return nil, err
	}
	if hit {
		if cached.PlotID == plot.Sentinel {
			return nil, nil
		}
		return &cached, nil
	}

	rec, err := s.db.SelectKeyPlot(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("selecting key plot: %w", err)
	}
	if rec == nil {
		sentinel := plot.Plot{
			PlotID:   plot.Sentinel,
			Owner:    uuid.Nil,
			Instance: s.CurrentInstance(),
		}
		if err := s.cacheSet(ctx, keyCacheKey(digest), sentinel); err != nil {
			return nil, err
		}
		return nil, nil
	}

	p, err := s.resolveRecord(rec)
	if err != nil {
		return nil, err
	}
	if err := s.cacheSet(ctx, keyCacheKey(digest), p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateKey mints a new API key for a plot and returns the plaintext once.
// Only the SHA-256 digest is persisted.
func (s *Store) CreateKey(ctx context.Context, id plot.ID) (string, error) {
	key, err := crypto.NewAPIKey()
	if err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	if err := s.db.InsertAPIKey(ctx, id, crypto.HashAPIKey(key)); err != nil {
		return "", fmt.Errorf("inserting api key: %w", err)
	}
	return key, nil
}

// DisableKeys soft-disables every active key of a plot. Keys are never
// deleted, preserving the audit trail; their cache entries are dropped so
// the disabled keys stop authenticating immediately.
func (s *Store) DisableKeys(ctx context.Context, id plot.ID) error {
	digests, err := s.db.DisableAPIKeys(ctx, id)
	if err != nil {
		return fmt.Errorf("disabling api keys for plot %d: %w", id, err)
	}
	for _, digest := range digests {
		if err := s.cache.Del(ctx, keyCacheKey(digest)).Err(); err != nil {
			return fmt.Errorf("dropping cached key: %w", err)
		}
	}
	return nil
}
