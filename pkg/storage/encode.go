package storage

import (
	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/pool"
)

// encodeColumnBatch chooses and runs the codec pipeline for one
// column's raw values, producing a columnar.Column ready to
// serialize. The type dispatch mirrors columnar.ComputeIntStats /
// EncodeInt / EncodeFloat / EncodeString's own type-specific entry
// points (pkg/columnar/encoder.go).
func encodeColumnBatch(cb ColumnBatch, intern *pool.StringInternPool) (*columnar.Column, error) {
	switch cb.Type {
	case columnar.TypeInt, columnar.TypeUint:
		codec, data, vt := columnar.EncodeInt(cb.Ints, cb.Nulls)
		rng := columnar.ComputeIntStats(cb.Ints, cb.Nulls)
		return &columnar.Column{
			Name:  cb.Name,
			Type:  vt,
			Len:   len(cb.Ints),
			Range: columnar.Range{Min: rng.Min, Max: rng.Max, Empty: rng.NullCount == rng.Len},
			Codec: codec,
			Data:  data,
		}, nil
	case columnar.TypeFloat:
		codec, data := columnar.EncodeFloat(cb.Floats)
		return &columnar.Column{
			Name:  cb.Name,
			Type:  columnar.TypeFloat,
			Len:   len(cb.Floats),
			Codec: codec,
			Data:  data,
		}, nil
	case columnar.TypeString:
		codec, data := columnar.EncodeString(cb.Strings, intern)
		return &columnar.Column{
			Name:  cb.Name,
			Type:  columnar.TypeString,
			Len:   len(cb.Strings),
			Codec: codec,
			Data:  data,
		}, nil
	case columnar.TypeNull:
		return &columnar.Column{
			Name: cb.Name,
			Type: columnar.TypeNull,
			Len:  cb.length(),
			Data: []columnar.DataSection{columnar.NullSection{Len: cb.length()}},
		}, nil
	default:
		return nil, dberrors.Newf(dberrors.Internal, "column %q: unsupported value type %v", cb.Name, cb.Type)
	}
}

func (cb ColumnBatch) length() int {
	switch {
	case len(cb.Ints) > 0:
		return len(cb.Ints)
	case len(cb.Floats) > 0:
		return len(cb.Floats)
	case len(cb.Strings) > 0:
		return len(cb.Strings)
	default:
		return 0
	}
}

// bufferToColumn wraps a decoded execution buffer back into a Column
// record for the partition's decoded-column cache, recomputing the
// pushdown Range for int buffers and carrying the buffer's null mask
// onto the Column as a BitvecSection — the same section kind the raw
// encoded form pairs with a nullable IntSection/FloatSection/
// StringDataSection (encoder.go's EncodeInt) — so a decoded column
// never silently loses its null positions.
func bufferToColumn(name string, buf columnar.Buffer) *columnar.Column {
	col := &columnar.Column{Name: name, Type: buf.Type(), Len: buf.Len()}
	switch b := buf.(type) {
	case *columnar.Int64Buffer:
		if len(b.Values) > 0 {
			lo, hi := b.Values[0], b.Values[0]
			for i, v := range b.Values {
				if b.Nulls != nil && b.Nulls.Get(i) {
					continue
				}
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			col.Range = columnar.Range{Min: lo, Max: hi}
		} else {
			col.Range = columnar.Range{Empty: true}
		}
		col.Data = []columnar.DataSection{columnar.IntSection{Width: columnar.WidthI64, Values: b.Values}}
		if b.Nulls != nil {
			col.Data = append(col.Data, columnar.BitvecSection{Bits: b.Nulls})
		}
	case *columnar.Float64Buffer:
		col.Data = []columnar.DataSection{columnar.FloatSection{Values: b.Values}}
		if b.Nulls != nil {
			col.Data = append(col.Data, columnar.BitvecSection{Bits: b.Nulls})
		}
	case *columnar.StringBuffer:
		col.Data = []columnar.DataSection{columnar.StringDataSection{Values: b.Values}}
		if b.Nulls != nil {
			col.Data = append(col.Data, columnar.BitvecSection{Bits: b.Nulls})
		}
	case *columnar.NullBuffer:
		col.Data = []columnar.DataSection{columnar.NullSection{Len: b.N}}
	}
	return col
}

// decodeForCache replays col's codec pipeline into an execution buffer
// and wraps the result back into a Column for the partition's
// decoded-column cache, preserving col's own Range (computed pre-
// encode by ComputeIntStats, including the all-null Empty case)
// instead of bufferToColumn's post-decode recomputation.
func decodeForCache(col *columnar.Column) (*columnar.Column, error) {
	buf, err := columnar.Decode(col.Codec, col.Data, col.Type, col.Len)
	if err != nil {
		return nil, err
	}
	decoded := bufferToColumn(col.Name, buf)
	decoded.Range = col.Range
	return decoded, nil
}

// appendColumnInto concatenates col's values onto cb, used by
// compaction to build a merged column across a group of partitions.
func appendColumnInto(cb *ColumnBatch, col *columnar.Column) {
	cb.Type = col.Type
	switch col.Type {
	case columnar.TypeInt, columnar.TypeUint:
		for _, s := range col.Data {
			if is, ok := s.(columnar.IntSection); ok {
				cb.Ints = append(cb.Ints, is.Values...)
			}
		}
	case columnar.TypeFloat:
		for _, s := range col.Data {
			if fs, ok := s.(columnar.FloatSection); ok {
				cb.Floats = append(cb.Floats, fs.Values...)
			}
		}
	case columnar.TypeString:
		for _, s := range col.Data {
			if ss, ok := s.(columnar.StringDataSection); ok {
				cb.Strings = append(cb.Strings, ss.Values...)
			}
		}
	case columnar.TypeNull:
		n := col.Len
		cb.Ints = append(cb.Ints, make([]int64, n)...)
	}
}
