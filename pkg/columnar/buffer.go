package columnar

import "github.com/locustdb/locustdb/pkg/pool"

// Bitset is a packed null/boolean mask, 64 bits per word, used by
// Nullable execution buffers and by filter/select operators.
type Bitset struct {
	Words []uint64
	Len   int
}

// NewBitset allocates a bitset for n elements, drawn from BitsetPool.
func NewBitset(n int) *Bitset {
	words := pool.BitsetPool.Get()
	need := n/64 + 1
	if cap(words) < need {
		words = make([]uint64, need)
	} else {
		words = words[:need]
		for i := range words {
			words[i] = 0
		}
	}
	return &Bitset{Words: words, Len: n}
}

// Release returns the bitset's backing array to BitsetPool.
func (b *Bitset) Release() {
	if b.Words != nil {
		pool.BitsetPool.Put(b.Words[:0])
		b.Words = nil
	}
}

// Get reports whether bit i is set.
func (b *Bitset) Get(i int) bool {
	return b.Words[i/64]&(1<<uint(i%64)) != 0
}

// Set sets bit i to v.
func (b *Bitset) Set(i int, v bool) {
	if v {
		b.Words[i/64] |= 1 << uint(i%64)
	} else {
		b.Words[i/64] &^= 1 << uint(i%64)
	}
}

// PopCount returns the number of set bits, i.e. the number of
// surviving rows after a filter/select operator compacts by mask.
func (b *Bitset) PopCount() int {
	n := 0
	for _, w := range b.Words {
		n += popcount64(w)
	}
	return n
}

func popcount64(w uint64) int {
	n := 0
	for w != 0 {
		w &= w - 1
		n++
	}
	return n
}

// Buffer is the interface every typed execution buffer implements. It
// is what operators exchange batch-at-a-time; the scratch pool hands
// buffers to operators by index and each buffer is single-assignment
// within one partition execution.
type Buffer interface {
	Type() ValueType
	Len() int
}

// Int64Buffer holds decoded signed integers, optionally with a null
// mask (nil Nulls means "no nulls, skip the check").
type Int64Buffer struct {
	Values []int64
	Nulls  *Bitset
}

func (b *Int64Buffer) Type() ValueType { return TypeInt }
func (b *Int64Buffer) Len() int        { return len(b.Values) }

// IsNull reports whether row i is null.
func (b *Int64Buffer) IsNull(i int) bool { return b.Nulls != nil && b.Nulls.Get(i) }

// Float64Buffer holds decoded floats with an optional null mask.
type Float64Buffer struct {
	Values []float64
	Nulls  *Bitset
}

func (b *Float64Buffer) Type() ValueType { return TypeFloat }
func (b *Float64Buffer) Len() int        { return len(b.Values) }
func (b *Float64Buffer) IsNull(i int) bool { return b.Nulls != nil && b.Nulls.Get(i) }

// StringBuffer holds decoded UTF-8 strings with an optional null
// mask. DictLookup decoding materializes into one of these unless the
// planner keeps execution in dict-code space.
type StringBuffer struct {
	Values []string
	Nulls  *Bitset
}

func (b *StringBuffer) Type() ValueType { return TypeString }
func (b *StringBuffer) Len() int        { return len(b.Values) }
func (b *StringBuffer) IsNull(i int) bool { return b.Nulls != nil && b.Nulls.Get(i) }

// DictCodeBuffer holds dictionary codes without materializing the
// underlying strings; group-by and equality predicates run directly
// against this when the planner can avoid a DictLookup decode.
type DictCodeBuffer struct {
	Codes []uint32
	Dict  []string
	Nulls *Bitset
}

func (b *DictCodeBuffer) Type() ValueType { return TypeString }
func (b *DictCodeBuffer) Len() int        { return len(b.Codes) }

// Materialize decodes the dict codes into a StringBuffer; used when a
// downstream operator has no dict-code specialization.
func (b *DictCodeBuffer) Materialize() *StringBuffer {
	out := &StringBuffer{Values: make([]string, len(b.Codes)), Nulls: b.Nulls}
	for i, c := range b.Codes {
		out.Values[i] = b.Dict[c]
	}
	return out
}

// NullBuffer represents an all-null column: no data section, just a
// length.
type NullBuffer struct {
	N int
}

func (b *NullBuffer) Type() ValueType { return TypeNull }
func (b *NullBuffer) Len() int        { return b.N }

// MixedBuffer is the polymorphic "any-buffer" handle for mixed-typed
// columns: a per-row tagged union.
type MixedBuffer struct {
	Values []MixedValue
}

func (b *MixedBuffer) Type() ValueType { return TypeMixed }
func (b *MixedBuffer) Len() int        { return len(b.Values) }
