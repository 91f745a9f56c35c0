// Package storage implements the partition catalog, subpartition byte
// cache, and byte-range blob store backing the columnar core (spec.md
// §4.6). It owns the per-partition state machine and the compaction
// loop that merges small adjacent partitions.
package storage

import (
	"sync"
	"sync/atomic"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/dbmeta"
)

// State is a partition's residency state (spec.md §4.6): Seeded (known
// from metadata but never read), Resident (its bytes are cached),
// Decoded (columns materialized in memory), Evicted (bytes dropped,
// metadata retained), Dropped (removed from the catalog entirely).
type State int32

const (
	Seeded State = iota
	Resident
	Decoded
	Evicted
	Dropped
)

func (s State) String() string {
	switch s {
	case Seeded:
		return "seeded"
	case Resident:
		return "resident"
	case Decoded:
		return "decoded"
	case Evicted:
		return "evicted"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Partition is the catalog's in-memory handle to one immutable
// partition: its metadata plus a lazily-populated, reference-counted
// set of decoded columns. Subpartition bytes live in the shared Cache,
// not here; Partition only caches already-decoded columnar.Column
// values, since decode is the expensive step re-run on eviction.
type Partition struct {
	meta dbmeta.PartitionMetadata

	mu      sync.RWMutex
	state   State
	decoded map[string]*columnar.Column
	refs    atomic.Int32
}

func newPartition(meta dbmeta.PartitionMetadata) *Partition {
	return &Partition{meta: meta, state: Seeded, decoded: make(map[string]*columnar.Column)}
}

// ID returns the partition's stable id.
func (p *Partition) ID() uint64 { return p.meta.ID }

// Table returns the owning table name.
func (p *Partition) Table() string { return p.meta.Table }

// Len returns the partition's row count.
func (p *Partition) Len() int { return p.meta.Len }

// State returns the partition's current residency state.
func (p *Partition) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Acquire pins the partition against eviction for the duration of one
// query; Release must be called exactly once per Acquire.
func (p *Partition) Acquire() { p.refs.Add(1) }

// Release unpins the partition.
func (p *Partition) Release() { p.refs.Add(-1) }

// column returns an already-decoded column, if resident.
func (p *Partition) column(name string) (*columnar.Column, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.decoded[name]
	return c, ok
}

// setColumn installs a decoded column and advances state to Decoded.
func (p *Partition) setColumn(name string, c *columnar.Column) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decoded[name] = c
	p.state = Decoded
}

// evict drops decoded columns, returning to Evicted, unless the
// partition is pinned by an in-flight query.
func (p *Partition) evict() bool {
	if p.refs.Load() > 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.decoded) == 0 {
		return false
	}
	p.decoded = make(map[string]*columnar.Column)
	p.state = Evicted
	return true
}

// subpartitionKeyForColumn resolves which subpartition blob holds
// column, via the metadata's sorted last-column index.
func (p *Partition) subpartitionKeyForColumn(column string) (string, bool) {
	return p.meta.SubpartitionForColumn(column)
}
