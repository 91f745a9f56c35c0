// Package wal implements the write-ahead log: a durable, monotonically
// numbered append log of ingested but not-yet-sealed rows. One file
// per segment under db-root/wal/<id>.
package wal

import "github.com/goccy/go-json"

// ColumnKind discriminates a WAL column's storage form, mirroring the
// wire schema's Column variant (spec.md §6).
type ColumnKind int

const (
	KindDenseInt ColumnKind = iota
	KindDenseFloat
	KindDenseString
	KindSparseInt
	KindSparseFloat
	KindEmpty
)

// Column is one ingested column within a TableSegment: either dense
// (one value per row) or sparse (index, value pairs, used when most
// rows leave the column unset).
type Column struct {
	Name    string     `json:"name"`
	Kind    ColumnKind `json:"kind"`
	Indices []int      `json:"indices,omitempty"`
	Ints    []int64    `json:"ints,omitempty"`
	Floats  []float64  `json:"floats,omitempty"`
	Strings []string   `json:"strings,omitempty"`
}

// TableSegment is one table's contribution to a WAL segment: the
// number of rows in this batch and the columns present.
type TableSegment struct {
	Table   string   `json:"table"`
	Len     int      `json:"len"`
	Columns []Column `json:"columns"`
}

// Segment is the full payload of one wal/<id> file: an id and the
// per-table batches ingested together in a single Append call.
type Segment struct {
	ID     uint64         `json:"id"`
	Tables []TableSegment `json:"tables"`
}

// Marshal serializes a segment with goccy/go-json, the fast JSON
// codec the rest of this codebase's wire formats use.
func (s Segment) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal parses a segment previously produced by Marshal.
func Unmarshal(data []byte) (Segment, error) {
	var s Segment
	err := json.Unmarshal(data, &s)
	return s, err
}
