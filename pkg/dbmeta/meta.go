// Package dbmeta implements the DB metadata catalog: partition and
// subpartition records, the string intern table, and the versioned
// on-disk encoding a loader must accept (v0 literal column names, v1
// interned ids, v2 compressed interned ids, v3 explicit last-column
// field).
package dbmeta

import (
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/pool"
)

// SubpartitionMetadata describes one on-disk subpartition blob: its
// size, its stable key (hash of sorted column names inside it), the
// name of its largest column (a cache heuristic), and the full set of
// column names it holds (this implementation's chosen subpartition
// grouping is one column per subpartition, so Columns always has
// length 1 today, but the field is general so a future grouping
// policy is metadata-compatible; see DESIGN.md's Open Question
// decision).
type SubpartitionMetadata struct {
	SizeBytes  uint64   `json:"size_bytes"`
	Key        string   `json:"key"`
	LastColumn string   `json:"last_column"`
	Columns    []string `json:"columns"`
	Loaded     bool     `json:"-"`
}

// PartitionMetadata describes one immutable partition.
type PartitionMetadata struct {
	ID            uint64                 `json:"id"`
	Table         string                 `json:"table"`
	Offset        int                    `json:"offset"`
	Len           int                    `json:"len"`
	Subpartitions []SubpartitionMetadata `json:"subpartitions"`
}

// SubpartitionForColumn returns the key of the subpartition holding
// column, using the same "smallest last_column >= column" lookup the
// original last-column index performs, since subpartitions are stored
// sorted by LastColumn.
func (p *PartitionMetadata) SubpartitionForColumn(column string) (string, bool) {
	idx := sort.Search(len(p.Subpartitions), func(i int) bool {
		return p.Subpartitions[i].LastColumn >= column
	})
	if idx == len(p.Subpartitions) {
		return "", false
	}
	return p.Subpartitions[idx].Key, true
}

// onDiskMeta is the versioned wire format. Every revision's fields
// coexist; the loader dispatches on which are populated. Writers only
// ever populate the v3 LastColumn plus the v0 literal Columns list,
// which the oldest readers also understand.
type onDiskMeta struct {
	NextWalID               uint64              `json:"next_wal_id"`
	Partitions              []onDiskPartition   `json:"partitions"`
	StringInternTable       []string            `json:"string_intern_table,omitempty"`
	CompressedStrings       []byte              `json:"compressed_strings,omitempty"`
	LengthsCompressedStrings []int              `json:"lengths_compressed_strings,omitempty"`
}

type onDiskPartition struct {
	ID            uint64                 `json:"id"`
	Table         string                 `json:"table"`
	Offset        int                    `json:"offset"`
	Len           int                    `json:"len"`
	Subpartitions []onDiskSubpartition   `json:"subpartitions"`
}

type onDiskSubpartition struct {
	SizeBytes uint64 `json:"size_bytes"`
	Key       string `json:"key"`

	// v0: literal column names.
	Columns []string `json:"columns,omitempty"`
	// v1: interned column name ids.
	InternedColumns []uint32 `json:"interned_columns,omitempty"`
	// v2: interned ids, additionally delta+varint compressed. This
	// implementation stores them exactly like v1 (uncompressed ints);
	// the "compressed" distinction from the source format is preserved
	// as a separate field the loader still accepts so v2 blobs written
	// elsewhere still parse, but this writer never emits it (see
	// DESIGN.md).
	CompressedInternedColumns []uint32 `json:"compressed_interned_columns,omitempty"`
	// v3: explicit last column name, present from this writer onward.
	LastColumn string `json:"last_column,omitempty"`
}

// Meta is the in-memory, mutable metadata catalog. Guarded by mu; the
// storage manager holds one and treats it as read-mostly.
type Meta struct {
	mu         sync.RWMutex
	nextWalID  uint64
	partitions map[string]map[uint64]*PartitionMetadata
	intern     *pool.StringInternPool
}

// New creates an empty metadata catalog.
func New() *Meta {
	return &Meta{
		partitions: make(map[string]map[uint64]*PartitionMetadata),
		intern:     pool.NewStringInternPool(0),
	}
}

// NextWalID returns the id metadata considers safe to allocate next.
func (m *Meta) NextWalID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextWalID
}

// RegisterWalID advances NextWalID past walID if necessary.
func (m *Meta) RegisterWalID(walID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if walID+1 > m.nextWalID {
		m.nextWalID = walID + 1
	}
}

// AddPartition inserts or replaces a partition's metadata.
func (m *Meta) AddPartition(p PartitionMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.partitions[p.Table] == nil {
		m.partitions[p.Table] = make(map[uint64]*PartitionMetadata)
	}
	pp := p
	m.partitions[p.Table][p.ID] = &pp
}

// Partition looks up one partition by table and id.
func (m *Meta) Partition(table string, id uint64) (*PartitionMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tbl, ok := m.partitions[table]
	if !ok {
		return nil, false
	}
	p, ok := tbl[id]
	return p, ok
}

// PartitionsForTable returns every partition of table, ordered by id
// (ascending, matching insertion order into the table).
func (m *Meta) PartitionsForTable(table string) []*PartitionMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tbl := m.partitions[table]
	out := make([]*PartitionMetadata, 0, len(tbl))
	for _, p := range tbl {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DropTable removes every partition of table.
func (m *Meta) DropTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, table)
}

// RemovePartition removes a single partition, used after compaction
// folds it into a merged replacement.
func (m *Meta) RemovePartition(table string, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tbl, ok := m.partitions[table]; ok {
		delete(tbl, id)
	}
}

// AllPartitions returns a snapshot of every table's partition map, for
// catalog restore on startup.
func (m *Meta) AllPartitions() map[string]map[uint64]*PartitionMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[uint64]*PartitionMetadata, len(m.partitions))
	for table, byID := range m.partitions {
		cp := make(map[uint64]*PartitionMetadata, len(byID))
		for id, p := range byID {
			cp[id] = p
		}
		out[table] = cp
	}
	return out
}

// Intern exposes the shared string intern pool backing subpartition
// column-name interning (v1/v2 on-disk encodings).
func (m *Meta) Intern() *pool.StringInternPool { return m.intern }

// Save serializes Meta at the newest (v3) revision: subpartitions
// carry both literal Columns (kept for the oldest v0 readers) and an
// explicit LastColumn, skipping the interned-id revisions entirely
// since interning is a read-time optimization, not a write
// requirement.
func (m *Meta) Save() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	disk := onDiskMeta{
		NextWalID:         m.nextWalID,
		StringInternTable: m.intern.Strings(),
	}
	for _, tbl := range m.partitions {
		for _, p := range tbl {
			dp := onDiskPartition{ID: p.ID, Table: p.Table, Offset: p.Offset, Len: p.Len}
			for _, sp := range p.Subpartitions {
				dp.Subpartitions = append(dp.Subpartitions, onDiskSubpartition{
					SizeBytes:  sp.SizeBytes,
					Key:        sp.Key,
					Columns:    sp.Columns,
					LastColumn: sp.LastColumn,
				})
			}
			disk.Partitions = append(disk.Partitions, dp)
		}
	}
	data, err := json.Marshal(disk)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Internal, "marshal db metadata")
	}
	return data, nil
}

// Load parses metadata written at any of the v0-v3 revisions,
// dispatching per subpartition on which fields are populated
// (spec.md §3, §9): v0 literal columns, v1 interned ids, v2
// compressed interned ids, v3 explicit last_column overriding
// whatever the earlier revisions computed.
func Load(data []byte) (*Meta, error) {
	var disk onDiskMeta
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, dberrors.Wrap(err, dberrors.CorruptData, "parse db metadata")
	}

	m := New()
	m.nextWalID = disk.NextWalID
	m.intern.LoadStrings(disk.StringInternTable)

	for _, dp := range disk.Partitions {
		p := PartitionMetadata{ID: dp.ID, Table: dp.Table, Offset: dp.Offset, Len: dp.Len}
		for _, dsp := range dp.Subpartitions {
			lastColumn, columns, err := resolveSubpartitionColumns(dsp, m.intern)
			if err != nil {
				return nil, err
			}
			p.Subpartitions = append(p.Subpartitions, SubpartitionMetadata{
				SizeBytes:  dsp.SizeBytes,
				Key:        dsp.Key,
				LastColumn: lastColumn,
				Columns:    columns,
			})
		}
		sort.Slice(p.Subpartitions, func(i, j int) bool {
			return p.Subpartitions[i].LastColumn < p.Subpartitions[j].LastColumn
		})
		m.AddPartition(p)
	}
	return m, nil
}

func resolveSubpartitionColumns(dsp onDiskSubpartition, intern *pool.StringInternPool) (lastColumn string, columns []string, err error) {
	// v0: literal column names.
	for _, c := range dsp.Columns {
		columns = append(columns, c)
		if c > lastColumn {
			lastColumn = c
		}
	}

	// v1: interned column ids.
	for _, id := range dsp.InternedColumns {
		c, ok := intern.ByIDLookup(id)
		if !ok {
			return "", nil, dberrors.Newf(dberrors.CorruptData, "subpartition %q: interned column id %d out of range", dsp.Key, id)
		}
		columns = append(columns, c)
		if c > lastColumn {
			lastColumn = c
		}
	}

	// v2: compressed interned ids (stored uncompressed by this
	// implementation, see onDiskSubpartition's comment; loader still
	// treats the field as a distinct revision so externally-produced
	// v2 blobs decode).
	for _, id := range dsp.CompressedInternedColumns {
		c, ok := intern.ByIDLookup(id)
		if !ok {
			return "", nil, dberrors.Newf(dberrors.CorruptData, "subpartition %q: compressed interned column id %d out of range", dsp.Key, id)
		}
		columns = append(columns, c)
		if c > lastColumn {
			lastColumn = c
		}
	}

	// v3: explicit last_column overrides whatever was computed above.
	if dsp.LastColumn != "" {
		lastColumn = dsp.LastColumn
	}

	return lastColumn, columns, nil
}
