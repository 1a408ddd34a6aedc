// Package store is the authoritative read/write path for plots, API keys,
// trust lists, and known instances. PostgreSQL is the source of truth;
// Redis holds derived, invalidation-only copies of the same rows.
//
// Cache entries are reproducible from the relational store at any time and
// are never updated in place: every write to a source row unconditionally
// drops the derived entry.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/metrics"
	"github.com/DynamicCake/dftools/plot"
)

// Store combines the relational querier with the Redis cache and the
// external name resolver.
type Store struct {
	log      *slog.Logger
	db       Querier
	cache    *redis.Client
	resolver NameResolver

	// publicKey is the current instance's signing key, used to resolve
	// plots with no assigned instance.
	publicKey crypto.PublicKey
}

// Config assembles a Store.
type Config struct {
	Log      *slog.Logger
	Querier  Querier
	Cache    *redis.Client
	Resolver NameResolver

	// PublicKey is the running instance's Ed25519 public key.
	PublicKey crypto.PublicKey
}

// New creates a Store.
func New(cfg Config) *Store {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		log:       log,
		db:        cfg.Querier,
		cache:     cfg.Cache,
		resolver:  cfg.Resolver,
		publicKey: cfg.PublicKey,
	}
}

// CurrentInstance returns the identity of the running instance.
func (s *Store) CurrentInstance() plot.Instance {
	return plot.NewInstance(s.publicKey, plot.Current)
}

// Close releases the relational pool and the cache client.
func (s *Store) Close() error {
	cacheErr := s.cache.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return cacheErr
}

const populateTimeout = 5 * time.Second

func plotCacheKey(id plot.ID) string {
	return fmt.Sprintf("plot:%d", id)
}

func trustCacheKey(id plot.ID) string {
	return fmt.Sprintf("plot:%d:baton_trust", id)
}

func keyCacheKey(digest crypto.KeyDigest) string {
	return fmt.Sprintf("key:%s", digest)
}

func playerCacheKey(name string) string {
	return fmt.Sprintf("player:%s:uuid", name)
}

// cacheGet fetches and JSON-decodes a cache entry into out. It reports
// whether the entry was present.
func (s *Store) cacheGet(ctx context.Context, key, kind string, out any) (bool, error) {
	raw, err := s.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues(kind).Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	metrics.CacheHits.WithLabelValues(kind).Inc()
	return true, nil
}

// cacheSet JSON-encodes value under key with no expiry.
func (s *Store) cacheSet(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	if err := s.cache.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// populateAsync writes a cache entry in the background. The read that
// produced the value already has its answer, so a failed population only
// gets logged. Concurrent populations of the same key write the same
// value; last writer wins.
func (s *Store) populateAsync(key string, value any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), populateTimeout)
		defer cancel()
		if err := s.cacheSet(ctx, key, value); err != nil {
			s.log.Warn("cache population failed", "key", key, "err", err)
		}
	}()
}

// resolveRecord turns a joined relational row into a Plot. A row with no
// instance columns resolves to the current instance.
func (s *Store) resolveRecord(rec *PlotRecord) (plot.Plot, error) {
	if rec.PublicKey == nil {
		return plot.Plot{
			PlotID:   rec.PlotID,
			Owner:    rec.Owner,
			Instance: s.CurrentInstance(),
		}, nil
	}

	key, err := crypto.NewPublicKeyFromBytes(rec.PublicKey)
	if err != nil {
		return plot.Plot{}, fmt.Errorf("stored instance key for plot %d: %w", rec.PlotID, err)
	}
	var domain plot.InstanceDomain
	if rec.Domain != nil {
		domain, err = plot.ParseInstanceDomain(*rec.Domain)
		if err != nil {
			return plot.Plot{}, fmt.Errorf("stored instance domain for plot %d: %w", rec.PlotID, err)
		}
	}
	return plot.Plot{
		PlotID:   rec.PlotID,
		Owner:    rec.Owner,
		Instance: plot.NewInstance(key, domain),
	}, nil
}
