package columnar

import "github.com/locustdb/locustdb/pkg/pool"

// BuildDictionary assigns each distinct value in values a stable code
// in first-seen order, narrowed to the smallest integer width that
// fits the resulting cardinality. It is the encoder-side counterpart
// of the Codec{PushDataSection(dictIdx), DictLookup} decode pipeline.
func BuildDictionary(values []string, intern *pool.StringInternPool) (codes []int64, dict []string, width IntWidth) {
	seen := make(map[string]int64, len(values)/2+1)
	codes = make([]int64, len(values))
	for i, v := range values {
		if intern != nil {
			v = intern.Intern(v)
		}
		code, ok := seen[v]
		if !ok {
			code = int64(len(dict))
			seen[v] = code
			dict = append(dict, v)
		}
		codes[i] = code
	}
	return codes, dict, widthForCardinality(len(dict))
}

func widthForCardinality(n int) IntWidth {
	switch {
	case n <= 1<<8:
		return WidthU8
	case n <= 1<<16:
		return WidthU16
	default:
		return WidthU32
	}
}

// EncodeDictColumn builds the Codec + DataSection pair for a
// dictionary-encoded string column: dict pushed as section 0, codes
// as section 1.
func EncodeDictColumn(values []string, intern *pool.StringInternPool) (Codec, []DataSection) {
	codes, dict, width := BuildDictionary(values, intern)
	codec := Codec{
		PushDataSection{Idx: 0},
		DictLookup{Width: width},
	}
	data := []DataSection{
		StringDataSection{Values: dict},
		IntSection{Width: width, Values: codes},
	}
	return codec, data
}

// EncodeStrPredicate inverts a string equality predicate into the
// dictionary's code space, for pushdown against a DictCodeBuffer
// without materializing strings. ok is false if the value is not in
// the dictionary, meaning the predicate can never match this
// partition.
func EncodeStrPredicate(dict []string, value string) (code int64, ok bool) {
	for i, v := range dict {
		if v == value {
			return int64(i), true
		}
	}
	return 0, false
}

// EncodeIntPredicate inverts an integer comparison predicate against
// an Add(amount) pipeline's encoded space: `x > threshold` on decoded
// values becomes `x' > threshold-amount` on the stored, un-added
// values.
func EncodeIntPredicate(amount int64, threshold int64) int64 {
	return threshold - amount
}
