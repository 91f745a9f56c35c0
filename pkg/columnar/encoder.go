package columnar

import "github.com/locustdb/locustdb/pkg/pool"

// Stats summarizes a column's raw values before encoding: the
// signals the encoder heuristic inspects to pick a pipeline.
type Stats struct {
	Cardinality  int
	Min, Max     int64
	IsSorted     bool
	IsArithSeq   bool // constant step between consecutive values
	ArithStep    int64
	NullCount    int
	Len          int
}

// ComputeIntStats scans an integer column once to gather the
// statistics EncodeInt needs.
func ComputeIntStats(values []int64, nulls *Bitset) Stats {
	st := Stats{Len: len(values)}
	if len(values) == 0 {
		return st
	}
	seen := make(map[int64]struct{}, len(values))
	st.Min, st.Max = values[0], values[0]
	st.IsSorted = true
	st.IsArithSeq = len(values) > 1
	if len(values) > 1 {
		st.ArithStep = values[1] - values[0]
	}
	for i, v := range values {
		if nulls != nil && nulls.Get(i) {
			st.NullCount++
			continue
		}
		seen[v] = struct{}{}
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		if i > 0 {
			if v < values[i-1] {
				st.IsSorted = false
			}
			if v-values[i-1] != st.ArithStep {
				st.IsArithSeq = false
			}
		}
	}
	st.Cardinality = len(seen)
	return st
}

// EncodeInt picks a codec pipeline for an integer column following
// the heuristics in the ambient encoding-layer design: arithmetic
// progressions collapse to a single RangeSection, small ranges
// use Add+narrow, monotonic columns use Delta, everything else falls
// back to a plain narrowed int section.
func EncodeInt(values []int64, nulls *Bitset) (Codec, []DataSection, ValueType) {
	st := ComputeIntStats(values, nulls)

	if nulls != nil && st.NullCount == len(values) {
		return Codec{}, []DataSection{NullSection{Len: len(values)}}, TypeNull
	}

	if st.IsArithSeq && nulls == nil {
		return Codec{}, []DataSection{RangeSection{Start: values[0], Step: st.ArithStep, Len: len(values)}}, TypeInt
	}

	width := widthForRange(st.Max - st.Min)
	shifted := make([]int64, len(values))
	for i, v := range values {
		shifted[i] = v - st.Min
	}

	var codec Codec
	var data []DataSection

	if st.IsSorted && st.Cardinality > 1 {
		deltas := make([]int64, len(shifted))
		copy(deltas, shifted)
		for i := len(deltas) - 1; i > 0; i-- {
			deltas[i] -= deltas[i-1]
		}
		codec = Codec{Delta{Width: width}, Add{Width: width, Amount: st.Min}}
		data = []DataSection{IntSection{Width: width, Values: deltas}}
	} else {
		codec = Codec{Add{Width: width, Amount: st.Min}}
		data = []DataSection{IntSection{Width: width, Values: shifted}}
	}

	if nulls != nil && st.NullCount > 0 {
		codec = append(Codec{PushDataSection{Idx: 1}}, append(codec, Nullable{})...)
		data = append(data, BitvecSection{Bits: nulls})
	}

	return codec, data, TypeInt
}

func widthForRange(span int64) IntWidth {
	switch {
	case span <= 1<<8-1:
		return WidthU8
	case span <= 1<<16-1:
		return WidthU16
	case span <= 1<<32-1:
		return WidthU32
	default:
		return WidthU64
	}
}

// EncodeFloat picks between XOR (Gorilla) and Pco (zstd-backed)
// compression for a float column. XOR compresses best on slowly
// varying series (timestamps, counters cast to float); Pco is
// preferred once no run of shared exponent/mantissa bits exists,
// approximated here by checking how much the XOR encoding actually
// shrinks the column.
func EncodeFloat(values []float64) (Codec, []DataSection) {
	xor := xorFloatEncode(values)
	if len(xor) < len(values)*8*3/4 {
		return Codec{XorFloat{}}, []DataSection{RawBytesSection{Bytes: xor}}
	}
	packed, _ := pcoCompress(values)
	return Codec{Pco{LenDecoded: len(values)}}, []DataSection{RawBytesSection{Bytes: packed}}
}

// EncodeString picks dictionary encoding for low-cardinality columns,
// hex-packing for all-hex-digit columns, and a length-prefixed blob
// (optionally LZ4-compressed) otherwise.
func EncodeString(values []string, intern *pool.StringInternPool) (Codec, []DataSection) {
	if len(values) == 0 {
		return Codec{}, []DataSection{NullSection{Len: 0}}
	}

	distinct := make(map[string]struct{}, len(values))
	allHex, allHexUpper := true, true
	for _, v := range values {
		distinct[v] = struct{}{}
		up, low := hexpackable(v)
		if !up {
			allHexUpper = false
		}
		if !up && !low {
			allHex = false
		}
	}

	cardinalityRatio := float64(len(distinct)) / float64(len(values))
	if cardinalityRatio < 0.5 {
		return EncodeDictColumn(values, intern)
	}

	if allHex {
		packed, totalBytes, uppercase := hexpackEncode(values)
		if uppercase {
			allHexUpper = true
		}
		return Codec{UnhexpackStrings{Uppercase: allHexUpper, TotalBytes: totalBytes}},
			[]DataSection{RawBytesSection{Bytes: packed}}
	}

	blob := packStrings(values)
	compressed, err := lz4Compress(blob)
	if err == nil && len(compressed) < len(blob) {
		return Codec{LZ4{ElemWidth: WidthU8, LenDecoded: len(blob)}, UnpackStrings{}},
			[]DataSection{RawBytesSection{Bytes: compressed}}
	}
	return Codec{UnpackStrings{}}, []DataSection{RawBytesSection{Bytes: blob}}
}
