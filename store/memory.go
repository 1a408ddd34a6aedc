package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/plot"
)

// MemoryQuerier implements Querier without a database, for tests. It counts
// queries per method so cache behavior can be asserted.
type MemoryQuerier struct {
	mu        sync.Mutex
	plots     map[plot.ID]memoryPlot
	keys      []memoryKey
	trust     map[plot.ID]map[plot.ID]struct{}
	instances map[string]memoryInstance
	nextID    int64

	// Queries counts calls per method name.
	Queries map[string]int
}

type memoryPlot struct {
	owner    uuid.UUID
	instance *int64
}

type memoryKey struct {
	plot     plot.ID
	digest   crypto.KeyDigest
	disabled bool
}

type memoryInstance struct {
	id  int64
	key crypto.PublicKey
}

// NewMemoryQuerier creates an empty in-memory querier.
func NewMemoryQuerier() *MemoryQuerier {
	return &MemoryQuerier{
		plots:     make(map[plot.ID]memoryPlot),
		trust:     make(map[plot.ID]map[plot.ID]struct{}),
		instances: make(map[string]memoryInstance),
		Queries:   make(map[string]int),
	}
}

func (m *MemoryQuerier) count(method string) {
	m.Queries[method]++
}

// SelectPlot returns the plot row joined to its assigned instance.
func (m *MemoryQuerier) SelectPlot(ctx context.Context, id plot.ID) (*PlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("SelectPlot")

	p, ok := m.plots[id]
	if !ok {
		return nil, nil
	}
	return m.record(id, p), nil
}

// InsertPlot registers a new plot.
func (m *MemoryQuerier) InsertPlot(ctx context.Context, id plot.ID, owner uuid.UUID, instanceID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("InsertPlot")

	if _, ok := m.plots[id]; ok {
		return ErrPlotTaken
	}
	m.plots[id] = memoryPlot{owner: owner, instance: instanceID}
	return nil
}

// UpdatePlotInstance reassigns a plot to another instance.
func (m *MemoryQuerier) UpdatePlotInstance(ctx context.Context, id plot.ID, instanceID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("UpdatePlotInstance")

	p, ok := m.plots[id]
	if !ok {
		return ErrPlotNotFound
	}
	p.instance = instanceID
	m.plots[id] = p
	return nil
}

// SelectKeyPlot resolves an active API key digest to its plot.
func (m *MemoryQuerier) SelectKeyPlot(ctx context.Context, digest crypto.KeyDigest) (*PlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("SelectKeyPlot")

	for _, k := range m.keys {
		if k.digest == digest && !k.disabled {
			if p, ok := m.plots[k.plot]; ok {
				return m.record(k.plot, p), nil
			}
		}
	}
	return nil, nil
}

// InsertAPIKey stores a new key digest for a plot.
func (m *MemoryQuerier) InsertAPIKey(ctx context.Context, id plot.ID, digest crypto.KeyDigest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("InsertAPIKey")

	m.keys = append(m.keys, memoryKey{plot: id, digest: digest})
	return nil
}

// DisableAPIKeys soft-disables every active key of a plot.
func (m *MemoryQuerier) DisableAPIKeys(ctx context.Context, id plot.ID) ([]crypto.KeyDigest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("DisableAPIKeys")

	var digests []crypto.KeyDigest
	for i, k := range m.keys {
		if k.plot == id && !k.disabled {
			m.keys[i].disabled = true
			digests = append(digests, k.digest)
		}
	}
	return digests, nil
}

// SelectTrusted returns the trust list of a plot.
func (m *MemoryQuerier) SelectTrusted(ctx context.Context, id plot.ID) ([]plot.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("SelectTrusted")

	trusted := []plot.ID{}
	for t := range m.trust[id] {
		trusted = append(trusted, t)
	}
	return trusted, nil
}

// ReplaceTrusted swaps the trust list of a plot.
func (m *MemoryQuerier) ReplaceTrusted(ctx context.Context, id plot.ID, trusted []plot.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("ReplaceTrusted")

	if _, ok := m.plots[id]; !ok {
		return ErrPlotNotFound
	}
	set := make(map[plot.ID]struct{}, len(trusted))
	for _, t := range trusted {
		set[t] = struct{}{}
	}
	m.trust[id] = set
	return nil
}

// SelectInstanceID resolves a public key to a known-instance row id.
func (m *MemoryQuerier) SelectInstanceID(ctx context.Context, key crypto.PublicKey) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("SelectInstanceID")

	for _, inst := range m.instances {
		if inst.key.Equal(key) {
			id := inst.id
			return &id, nil
		}
	}
	return nil, nil
}

// UpsertInstance registers or refreshes a known instance.
func (m *MemoryQuerier) UpsertInstance(ctx context.Context, domain string, key crypto.PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("UpsertInstance")

	if inst, ok := m.instances[domain]; ok {
		inst.key = key
		m.instances[domain] = inst
		return nil
	}
	m.nextID++
	m.instances[domain] = memoryInstance{id: m.nextID, key: key}
	return nil
}

// Close is a no-op for the in-memory querier.
func (m *MemoryQuerier) Close() error {
	return nil
}

// record resolves a stored plot to a PlotRecord. Caller holds the lock.
func (m *MemoryQuerier) record(id plot.ID, p memoryPlot) *PlotRecord {
	rec := &PlotRecord{PlotID: id, Owner: p.owner}
	if p.instance != nil {
		for domain, inst := range m.instances {
			if inst.id == *p.instance {
				d := domain
				rec.Domain = &d
				rec.PublicKey = inst.key.Bytes()
				break
			}
		}
	}
	return rec
}
