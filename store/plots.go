package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/plot"
)

// Exists reports whether a plot is registered. A cached plot entry
// short-circuits; a miss falls through to Get.
func (s *Store) Exists(ctx context.Context, id plot.ID) (bool, error) {
	n, err := s.cache.Exists(ctx, plotCacheKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists check: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// Get returns a plot by id, or nil if it is not registered. Cache misses
// query the relational store and populate the cache best-effort in the
// background.
func (s *Store) Get(ctx context.Context, id plot.ID) (*plot.Plot, error) {
	var cached plot.Plot
	hit, err := s.cacheGet(ctx, plotCacheKey(id), "plot", &cached)
	if err != nil {
		return nil, err
	}
	if hit {
		return &cached, nil
	}

	rec, err := s.db.SelectPlot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("selecting plot %d: %w", id, err)
	}
	if rec == nil {
		return nil, nil
	}

	p, err := s.resolveRecord(rec)
	if err != nil {
		return nil, err
	}
	s.populateAsync(plotCacheKey(id), p)
	return &p, nil
}

// Register creates a plot owned by owner. A nil instanceKey registers the
// plot to the current instance; otherwise the key must name a known
// instance (ErrInstanceNotFound). Returns ErrPlotTaken if the id is in use.
//
// The cache entry is dropped before the insert so a racing reader can
// never observe the pre-write value after this returns.
func (s *Store) Register(ctx context.Context, id plot.ID, owner uuid.UUID, instanceKey crypto.PublicKey) error {
	if err := s.invalidatePlot(ctx, id); err != nil {
		return err
	}
	instanceID, err := s.resolveInstanceKey(ctx, instanceKey)
	if err != nil {
		return err
	}
	return s.db.InsertPlot(ctx, id, owner, instanceID)
}

// Edit reassigns a plot to another instance, nil meaning the current
// instance. Same invalidate-then-write ordering as Register.
func (s *Store) Edit(ctx context.Context, id plot.ID, instanceKey crypto.PublicKey) error {
	if err := s.invalidatePlot(ctx, id); err != nil {
		return err
	}
	instanceID, err := s.resolveInstanceKey(ctx, instanceKey)
	if err != nil {
		return err
	}
	return s.db.UpdatePlotInstance(ctx, id, instanceID)
}

// RegisterInstance persists a verified external instance so plots can be
// assigned to it.
func (s *Store) RegisterInstance(ctx context.Context, domain plot.InstanceDomain, key crypto.PublicKey) error {
	if domain.IsCurrent() {
		return fmt.Errorf("cannot register the current instance as external")
	}
	return s.db.UpsertInstance(ctx, string(domain), key)
}

func (s *Store) resolveInstanceKey(ctx context.Context, key crypto.PublicKey) (*int64, error) {
	if key == nil {
		return nil, nil
	}
	id, err := s.db.SelectInstanceID(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolving instance key: %w", err)
	}
	if id == nil {
		return nil, ErrInstanceNotFound
	}
	return id, nil
}

// invalidatePlot drops the plot entry and its trust-list entry as one
// logical unit. Never spawn this in the background: invalidation is part
// of the write, not an afterthought.
func (s *Store) invalidatePlot(ctx context.Context, id plot.ID) error {
	if err := s.cache.Del(ctx, plotCacheKey(id), trustCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidating plot %d: %w", id, err)
	}
	return nil
}
