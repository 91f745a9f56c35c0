package columnar

import "github.com/locustdb/locustdb/pkg/dberrors"

// CodecOp is one step of a column's decode pipeline: a reversible
// transform from stored sections toward the execution buffer. Codec
// is the ordered list a decoder replays and an encoder builds.
type CodecOp interface {
	opTag() string
}

// Add is an integer delta from a constant; encoding subtracts Amount,
// decoding adds it back.
type Add struct {
	Width  IntWidth
	Amount int64
}

func (Add) opTag() string { return "add" }

// Delta is a prefix-sum / first-difference transform; the stored
// section holds successive deltas in Width.
type Delta struct {
	Width IntWidth
}

func (Delta) opTag() string { return "delta" }

// ToI64 widens a narrower stored integer to the 64-bit execution
// width. A no-op on the Go int64 backing array, kept as an explicit
// step so the pipeline documents the on-disk width it decoded from.
type ToI64 struct {
	Width IntWidth
}

func (ToI64) opTag() string { return "to_i64" }

// PushDataSection pushes Data[Idx] onto the decode stack, for later
// consumption by DictLookup or Nullable.
type PushDataSection struct {
	Idx int
}

func (PushDataSection) opTag() string { return "push_data_section" }

// DictLookup resolves integer codes against a dictionary previously
// pushed by PushDataSection, producing string values.
type DictLookup struct {
	Width IntWidth
}

func (DictLookup) opTag() string { return "dict_lookup" }

// LZ4 decompresses the top-of-stack raw section to LenDecoded bytes,
// which are then reinterpreted as ElemWidth-wide integers or floats.
type LZ4 struct {
	ElemWidth  IntWidth
	IsFloat    bool
	LenDecoded int
}

func (LZ4) opTag() string { return "lz4" }

// Pco decompresses a numeric section (Pco-style; backed here by
// zstd, see compression.go) to LenDecoded elements.
type Pco struct {
	LenDecoded int
	IsFP32     bool
}

func (Pco) opTag() string { return "pco" }

// XorFloat decompresses a Gorilla-style XOR-compressed float section.
// The section itself carries the element count, so no LenDecoded
// field is needed.
type XorFloat struct{}

func (XorFloat) opTag() string { return "xor_float" }

// UnpackStrings decodes a length-prefixed concatenated UTF-8 blob
// into individual strings.
type UnpackStrings struct{}

func (UnpackStrings) opTag() string { return "unpack_strings" }

// UnhexpackStrings decodes a hex-packed byte section into strings,
// two nibbles per encoded byte.
type UnhexpackStrings struct {
	Uppercase  bool
	TotalBytes int
}

func (UnhexpackStrings) opTag() string { return "unhexpack_strings" }

// Nullable combines a preceding bitvec section (pushed via
// PushDataSection) with the current value section into a nullable
// execution buffer.
type Nullable struct{}

func (Nullable) opTag() string { return "nullable" }

// Codec is the ordered pipeline applied, left to right, to reconstruct
// a column's execution buffer from its stored Data sections.
type Codec []CodecOp

// IsSummationPreserving reports whether SUM over the encoded values
// equals SUM over decoded values plus a computable offset, i.e. every
// op in the pipeline is Add or ToI64 (each of those is affine in the
// underlying value); any other op, Delta included, breaks the property.
func (c Codec) IsSummationPreserving() bool {
	for _, op := range c {
		switch op.(type) {
		case Add, ToI64:
			continue
		default:
			return false
		}
	}
	return true
}

// IsOrderPreserving reports whether comparisons can run directly on
// encoded values: true for Add/ToI64 (both monotonic in the encoded
// value) and false once dictionary lookup, delta, or compression
// reorders the relationship between encoded and decoded values.
func (c Codec) IsOrderPreserving() bool {
	for _, op := range c {
		switch op.(type) {
		case Add, ToI64:
			continue
		default:
			return false
		}
	}
	return true
}

// IsPositiveInteger reports whether the pipeline's final decoded type
// is a non-negative integer, allowing an unsigned specialization of
// downstream operators.
func (c Codec) IsPositiveInteger() bool {
	for _, op := range c {
		if a, ok := op.(Add); ok {
			return (a.Width == WidthU8 || a.Width == WidthU16 || a.Width == WidthU32 || a.Width == WidthU64) && a.Amount >= 0
		}
	}
	return false
}

// IsFixedWidth reports whether every row decodes independently of its
// neighbors (elementwise-decodable), i.e. the pipeline has no Delta
// (which requires a running prefix), no block decompression
// (LZ4/Pco/XorFloat) and no string unpack step whose output count
// differs per input. DictLookup maps each code on its own and does
// not break the property.
func (c Codec) IsFixedWidth() bool {
	for _, op := range c {
		switch op.(type) {
		case Delta, LZ4, Pco, XorFloat, UnpackStrings, UnhexpackStrings:
			return false
		}
	}
	return true
}

// Decode replays the codec pipeline against data, producing an
// execution Buffer. It is the single interpreter every column
// decoding path shares; encoders are per-op and live in encoder.go /
// dictionary.go / xorfloat.go / hexpack.go.
func Decode(codec Codec, data []DataSection, valueType ValueType, length int) (Buffer, error) {
	if len(codec) == 0 {
		return decodeRawSections(data, valueType, length)
	}

	interp := &decodeInterp{data: data, valueType: valueType, length: length}
	for _, op := range codec {
		if err := interp.apply(op); err != nil {
			return nil, err
		}
	}
	return interp.finish()
}

// decodeInterp is a small stack machine: ints/floats/strings hold the
// current primary value stream; pushed holds auxiliary sections
// (dictionaries, null masks) consumed by DictLookup/Nullable.
type decodeInterp struct {
	data      []DataSection
	valueType ValueType
	length    int

	dataIdx int
	ints    []int64
	floats  []float64
	strs    []string
	nulls   *Bitset
	kind    ValueType

	pushed []DataSection
}

func (in *decodeInterp) nextSection() (DataSection, error) {
	if in.dataIdx >= len(in.data) {
		return nil, dberrors.New(dberrors.CorruptData, "codec pipeline references missing data section")
	}
	s := in.data[in.dataIdx]
	in.dataIdx++
	return s, nil
}

func (in *decodeInterp) popPushed() (DataSection, error) {
	if len(in.pushed) == 0 {
		return nil, dberrors.New(dberrors.CorruptData, "codec op expected a pushed data section, stack empty")
	}
	s := in.pushed[len(in.pushed)-1]
	in.pushed = in.pushed[:len(in.pushed)-1]
	return s, nil
}

func (in *decodeInterp) apply(op CodecOp) error {
	switch o := op.(type) {
	case Add:
		if in.ints == nil {
			sec, err := in.nextSection()
			if err != nil {
				return err
			}
			is, ok := sec.(IntSection)
			if !ok {
				return dberrors.New(dberrors.CorruptData, "add op: expected int section")
			}
			in.ints = append([]int64(nil), is.Values...)
		}
		for i := range in.ints {
			in.ints[i] += o.Amount
		}
		in.kind = TypeInt
		return nil

	case ToI64:
		if in.ints == nil {
			sec, err := in.nextSection()
			if err != nil {
				return err
			}
			is, ok := sec.(IntSection)
			if !ok {
				return dberrors.New(dberrors.CorruptData, "to_i64 op: expected int section")
			}
			in.ints = append([]int64(nil), is.Values...)
		}
		in.kind = TypeInt
		return nil

	case Delta:
		if in.ints == nil {
			sec, err := in.nextSection()
			if err != nil {
				return err
			}
			is, ok := sec.(IntSection)
			if !ok {
				return dberrors.New(dberrors.CorruptData, "delta op: expected int section")
			}
			in.ints = append([]int64(nil), is.Values...)
		}
		var running int64
		for i := range in.ints {
			running += in.ints[i]
			in.ints[i] = running
		}
		in.kind = TypeInt
		return nil

	case PushDataSection:
		if o.Idx < 0 || o.Idx >= len(in.data) {
			return dberrors.Newf(dberrors.CorruptData, "push_data_section: index %d out of range", o.Idx)
		}
		in.pushed = append(in.pushed, in.data[o.Idx])
		return nil

	case DictLookup:
		dictSec, err := in.popPushed()
		if err != nil {
			return err
		}
		dict, ok := dictSec.(StringDataSection)
		if !ok {
			return dberrors.New(dberrors.CorruptData, "dict_lookup: pushed section is not a string dictionary")
		}
		if in.ints == nil {
			sec, err := in.nextSection()
			if err != nil {
				return err
			}
			is, ok := sec.(IntSection)
			if !ok {
				return dberrors.New(dberrors.CorruptData, "dict_lookup: expected int code section")
			}
			in.ints = is.Values
		}
		strs := make([]string, len(in.ints))
		for i, code := range in.ints {
			if code < 0 || int(code) >= len(dict.Values) {
				return dberrors.Newf(dberrors.CorruptData, "dict_lookup: code %d out of range [0,%d)", code, len(dict.Values))
			}
			strs[i] = dict.Values[code]
		}
		in.strs = strs
		in.ints = nil
		in.kind = TypeString
		return nil

	case LZ4:
		sec, err := in.nextSection()
		if err != nil {
			return err
		}
		raw, ok := sec.(RawBytesSection)
		if !ok {
			return dberrors.New(dberrors.CorruptData, "lz4 op: expected raw byte section")
		}
		decoded, err := lz4Decompress(raw.Bytes, o.LenDecoded)
		if err != nil {
			return err
		}
		if o.IsFloat {
			in.floats = bytesToFloat64(decoded)
			in.kind = TypeFloat
		} else {
			in.ints = bytesToInt(decoded, o.ElemWidth)
			in.kind = TypeInt
		}
		return nil

	case Pco:
		sec, err := in.nextSection()
		if err != nil {
			return err
		}
		raw, ok := sec.(RawBytesSection)
		if !ok {
			return dberrors.New(dberrors.CorruptData, "pco op: expected raw byte section")
		}
		decoded, err := pcoDecompress(raw.Bytes, o.LenDecoded)
		if err != nil {
			return err
		}
		in.floats = decoded
		in.kind = TypeFloat
		return nil

	case XorFloat:
		sec, err := in.nextSection()
		if err != nil {
			return err
		}
		raw, ok := sec.(RawBytesSection)
		if !ok {
			return dberrors.New(dberrors.CorruptData, "xor_float op: expected raw byte section")
		}
		decoded, err := xorFloatDecode(raw.Bytes)
		if err != nil {
			return err
		}
		in.floats = decoded
		in.kind = TypeFloat
		return nil

	case UnpackStrings:
		sec, err := in.nextSection()
		if err != nil {
			return err
		}
		raw, ok := sec.(RawBytesSection)
		if !ok {
			return dberrors.New(dberrors.CorruptData, "unpack_strings op: expected raw byte section")
		}
		strs, err := unpackStrings(raw.Bytes)
		if err != nil {
			return err
		}
		in.strs = strs
		in.kind = TypeString
		return nil

	case UnhexpackStrings:
		sec, err := in.nextSection()
		if err != nil {
			return err
		}
		raw, ok := sec.(RawBytesSection)
		if !ok {
			return dberrors.New(dberrors.CorruptData, "unhexpack_strings op: expected raw byte section")
		}
		strs, err := unhexpackStrings(raw.Bytes, o.Uppercase, o.TotalBytes)
		if err != nil {
			return err
		}
		in.strs = strs
		in.kind = TypeString
		return nil

	case Nullable:
		maskSec, err := in.popPushed()
		if err != nil {
			return err
		}
		bv, ok := maskSec.(BitvecSection)
		if !ok {
			return dberrors.New(dberrors.CorruptData, "nullable op: pushed section is not a bitvec")
		}
		if in.ints == nil && in.floats == nil && in.strs == nil {
			sec, err := in.nextSection()
			if err != nil {
				return err
			}
			switch vs := sec.(type) {
			case IntSection:
				in.ints = append([]int64(nil), vs.Values...)
			case FloatSection:
				in.floats = vs.Values
			case StringDataSection:
				in.strs = vs.Values
			default:
				return dberrors.New(dberrors.CorruptData, "nullable op: expected a value section")
			}
		}
		in.nulls = bv.Bits
		return nil

	default:
		return dberrors.Newf(dberrors.CorruptData, "unknown codec op %T", op)
	}
}

func (in *decodeInterp) finish() (Buffer, error) {
	switch {
	case in.ints != nil:
		return &Int64Buffer{Values: in.ints, Nulls: in.nulls}, nil
	case in.floats != nil:
		return &Float64Buffer{Values: in.floats, Nulls: in.nulls}, nil
	case in.strs != nil:
		return &StringBuffer{Values: in.strs, Nulls: in.nulls}, nil
	default:
		return &NullBuffer{N: in.length}, nil
	}
}

// decodeRawSections handles the zero-op pipelines: a plain data
// section stored verbatim (RangeSection, NullSection, or a bare
// IntSection/FloatSection/StringDataSection with no transform).
func decodeRawSections(data []DataSection, valueType ValueType, length int) (Buffer, error) {
	if len(data) == 0 {
		return &NullBuffer{N: length}, nil
	}
	switch sec := data[0].(type) {
	case RangeSection:
		vals := make([]int64, sec.Len)
		for i := range vals {
			vals[i] = sec.Start + int64(i)*sec.Step
		}
		return &Int64Buffer{Values: vals}, nil
	case NullSection:
		return &NullBuffer{N: sec.Len}, nil
	case IntSection:
		return &Int64Buffer{Values: sec.Values}, nil
	case FloatSection:
		return &Float64Buffer{Values: sec.Values}, nil
	case StringDataSection:
		return &StringBuffer{Values: sec.Values}, nil
	default:
		return nil, dberrors.Newf(dberrors.CorruptData, "unsupported bare data section %T", sec)
	}
}
