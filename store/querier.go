package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/plot"
)

// Business errors surfaced by store operations. Anything else coming out of
// a Querier is an infrastructure failure.
var (
	// ErrPlotTaken is returned when registering an already-registered plot id.
	ErrPlotTaken = errors.New("plot is already registered")
	// ErrPlotNotFound is returned when an operation targets an unknown plot.
	ErrPlotNotFound = errors.New("plot not found")
	// ErrInstanceNotFound is returned when an instance key does not resolve
	// to a known instance.
	ErrInstanceNotFound = errors.New("instance not found")
)

// PlotRecord is a plot row joined to its assigned instance. Domain and
// PublicKey are nil when the plot belongs to the current instance.
type PlotRecord struct {
	PlotID    plot.ID
	Owner     uuid.UUID
	Domain    *string
	PublicKey []byte
}

// Querier is the relational source of truth behind the cache-aside Store.
// Implemented by PostgresQuerier for deployment and MemoryQuerier for tests.
type Querier interface {
	// SelectPlot returns the plot row left-joined to its known instance,
	// or nil if the plot is not registered.
	SelectPlot(ctx context.Context, id plot.ID) (*PlotRecord, error)

	// InsertPlot registers a plot. A nil instanceID assigns the plot to the
	// current instance. Returns ErrPlotTaken on a duplicate plot id.
	InsertPlot(ctx context.Context, id plot.ID, owner uuid.UUID, instanceID *int64) error

	// UpdatePlotInstance reassigns a plot to another known instance (nil
	// means the current instance). Returns ErrPlotNotFound when no row
	// was updated.
	UpdatePlotInstance(ctx context.Context, id plot.ID, instanceID *int64) error

	// SelectKeyPlot resolves a non-disabled API key digest to its plot,
	// joined like SelectPlot. Returns nil when no key matches.
	SelectKeyPlot(ctx context.Context, digest crypto.KeyDigest) (*PlotRecord, error)

	// InsertAPIKey stores a new key digest for a plot.
	InsertAPIKey(ctx context.Context, id plot.ID, digest crypto.KeyDigest) error

	// DisableAPIKeys soft-disables every active key of a plot and returns
	// the digests that were disabled so their cache entries can be dropped.
	DisableAPIKeys(ctx context.Context, id plot.ID) ([]crypto.KeyDigest, error)

	// SelectTrusted returns the plot ids the given plot accepts transfers from.
	SelectTrusted(ctx context.Context, id plot.ID) ([]plot.ID, error)

	// ReplaceTrusted atomically swaps the trust list of a plot inside a
	// single transaction. Returns ErrPlotNotFound if the plot does not
	// exist; on any error the previous list is left intact.
	ReplaceTrusted(ctx context.Context, id plot.ID, trusted []plot.ID) error

	// SelectInstanceID resolves a public key to a known-instance row id,
	// or nil if the instance has not been registered.
	SelectInstanceID(ctx context.Context, key crypto.PublicKey) (*int64, error)

	// UpsertInstance registers or refreshes a known instance by domain.
	UpsertInstance(ctx context.Context, domain string, key crypto.PublicKey) error

	// Close releases the underlying connections.
	Close() error
}
