// Package columnar implements the column encoding layer: typed value
// buffers, the codec pipeline that turns a decoded column into
// compact on-disk sections and back, and the heuristics that choose a
// pipeline per column.
package columnar

// ValueType is a column's logical value type. Integers are always
// stored decoded as 64-bit; narrower widths are an encoding detail of
// the codec pipeline, not a separate logical type.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeUint
	TypeFloat
	TypeString
	TypeNull
	TypeMixed
)

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeNull:
		return "null"
	case TypeMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Range is the (min, max) bound on an integer column used for
// predicate pushdown. Empty is set for all-null columns, where no
// bound can be derived.
type Range struct {
	Min, Max int64
	Empty    bool
}

// Contains reports whether v could possibly appear in a column with
// this range; used to prune partitions before compiling a predicate
// against them.
func (r Range) Contains(v int64) bool {
	if r.Empty {
		return false
	}
	return v >= r.Min && v <= r.Max
}

// Overlaps reports whether two ranges could share a value.
func (r Range) Overlaps(lo, hi int64) bool {
	if r.Empty {
		return false
	}
	return r.Min <= hi && r.Max >= lo
}

// Column is one named column of one partition: its logical range (for
// pushdown), the codec pipeline that reconstructs an execution buffer
// from Data, and the raw sections themselves.
type Column struct {
	Name  string
	Type  ValueType
	Len   int
	Range Range
	Codec Codec
	Data  []DataSection
}

// MixedTag discriminates the per-row union stored in a "mixed" column.
type MixedTag uint8

const (
	MixedInt MixedTag = iota
	MixedFloat
	MixedString
	MixedNull
)

// MixedValue is one element of a mixed-typed column.
type MixedValue struct {
	Tag MixedTag
	I   int64
	F   float64
	S   string
}
