package store

import (
	"context"
	"fmt"

	"github.com/DynamicCake/dftools/plot"
)

// TrustList returns the set of plots the given plot accepts transfers
// from. The full set is cached under the source plot; membership is a set,
// duplicates never occur.
func (s *Store) TrustList(ctx context.Context, id plot.ID) ([]plot.ID, error) {
	var cached []plot.ID
	hit, err := s.cacheGet(ctx, trustCacheKey(id), "trust", &cached)
	if err != nil {
		return nil, err
	}
	if hit {
		return cached, nil
	}

	trusted, err := s.db.SelectTrusted(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("selecting trust list for plot %d: %w", id, err)
	}
	if err := s.cacheSet(ctx, trustCacheKey(id), trusted); err != nil {
		return nil, err
	}
	return trusted, nil
}

// ReplaceTrustList atomically swaps the trust list of a plot. Returns
// ErrPlotNotFound if the plot does not exist.
//
// Unlike the plot writes, the cache is invalidated only after a successful
// commit: the replace is a delete+reinsert, and invalidating early would
// let a racing reader cache the empty intermediate state. On rollback the
// old list stays both in the database and in the cache.
func (s *Store) ReplaceTrustList(ctx context.Context, id plot.ID, trusted []plot.ID) error {
	if err := s.db.ReplaceTrusted(ctx, id, dedupe(trusted)); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, trustCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidating trust list for plot %d: %w", id, err)
	}
	return nil
}

// Trusts reports whether target accepts transfers claiming to come from source.
func (s *Store) Trusts(ctx context.Context, target, source plot.ID) (bool, error) {
	trusted, err := s.TrustList(ctx, target)
	if err != nil {
		return false, err
	}
	for _, t := range trusted {
		if t == source {
			return true, nil
		}
	}
	return false, nil
}

func dedupe(ids []plot.ID) []plot.ID {
	seen := make(map[plot.ID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
