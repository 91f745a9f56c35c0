package columnar

// IntWidth is the on-disk width of an integer data section, narrower
// than the 64-bit width columns are logically decoded to.
type IntWidth int

const (
	WidthI8 IntWidth = iota
	WidthI16
	WidthI32
	WidthI64
	WidthU8
	WidthU16
	WidthU32
	WidthU64
)

// DataSection is one typed byte section making up a column's stored
// form. The codec's op list describes how a sequence of these
// sections is turned back into an execution buffer.
type DataSection interface {
	sectionTag() string
}

// IntSection stores integers at a narrow width, sign- or zero-extended
// to int64 for the in-memory representation.
type IntSection struct {
	Width  IntWidth
	Values []int64
}

func (IntSection) sectionTag() string { return "int" }

// FloatSection stores raw float64 values (used by both plain float
// columns and as the decode target of Pco/XOR compressed sections).
type FloatSection struct {
	Values []float64
}

func (FloatSection) sectionTag() string { return "float" }

// BitvecSection is a packed bit vector, used both as a nullability
// mask (Nullable op) and as the dense encoding of boolean-like data.
type BitvecSection struct {
	Bits *Bitset
}

func (BitvecSection) sectionTag() string { return "bitvec" }

// NullSection marks an all-null column: no values, just a length.
type NullSection struct {
	Len int
}

func (NullSection) sectionTag() string { return "null" }

// StringDataSection stores a dictionary or plain string list, the
// pushed section a DictLookup or UnpackStrings op consumes.
type StringDataSection struct {
	Values []string
}

func (StringDataSection) sectionTag() string { return "strings" }

// RawBytesSection is an opaque compressed blob: input to LZ4 or Pco.
type RawBytesSection struct {
	Bytes []byte
}

func (RawBytesSection) sectionTag() string { return "raw" }

// RangeSection is the degenerate arithmetic-progression pipeline: a
// column stored as this single section holding start/len/step, with
// no per-row value data and no codec ops.
type RangeSection struct {
	Start, Step int64
	Len         int
}

func (RangeSection) sectionTag() string { return "range" }
