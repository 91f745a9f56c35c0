package columnar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locustdb/locustdb/pkg/pool"
)

func TestComputeIntStats(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		st := ComputeIntStats(nil, nil)
		assert.Equal(t, 0, st.Len)
	})

	t.Run("arithmetic sequence", func(t *testing.T) {
		st := ComputeIntStats([]int64{10, 12, 14, 16}, nil)
		assert.True(t, st.IsArithSeq)
		assert.Equal(t, int64(2), st.ArithStep)
		assert.True(t, st.IsSorted)
		assert.Equal(t, int64(10), st.Min)
		assert.Equal(t, int64(16), st.Max)
		assert.Equal(t, 4, st.Cardinality)
	})

	t.Run("sorted but not arithmetic", func(t *testing.T) {
		st := ComputeIntStats([]int64{1, 1, 5, 9}, nil)
		assert.True(t, st.IsSorted)
		assert.False(t, st.IsArithSeq)
	})

	t.Run("unsorted", func(t *testing.T) {
		st := ComputeIntStats([]int64{5, 1, 9}, nil)
		assert.False(t, st.IsSorted)
	})

	t.Run("nulls excluded from min/max/cardinality", func(t *testing.T) {
		nulls := NewBitset(4)
		nulls.Set(2, true)
		st := ComputeIntStats([]int64{3, 3, 0, 7}, nulls)
		assert.Equal(t, 1, st.NullCount)
		assert.Equal(t, int64(3), st.Min)
		assert.Equal(t, int64(7), st.Max)
	})
}

func TestEncodeIntArithSeqCollapsesToRangeSection(t *testing.T) {
	values := []int64{100, 105, 110, 115}
	codec, data, typ := EncodeInt(values, nil)
	assert.Equal(t, Codec{}, codec)
	assert.Equal(t, TypeInt, typ)
	require.Len(t, data, 1)
	rs, ok := data[0].(RangeSection)
	require.True(t, ok)
	assert.Equal(t, int64(100), rs.Start)
	assert.Equal(t, int64(5), rs.Step)
	assert.Equal(t, 4, rs.Len)

	buf, err := Decode(codec, data, typ, len(values))
	require.NoError(t, err)
	ib := buf.(*Int64Buffer)
	assert.Equal(t, values, ib.Values)
}

func TestEncodeIntSortedUsesDelta(t *testing.T) {
	values := []int64{3, 3, 8, 20}
	codec, data, typ := EncodeInt(values, nil)
	require.Len(t, codec, 2)
	_, isDelta := codec[0].(Delta)
	assert.True(t, isDelta)
	_, isAdd := codec[1].(Add)
	assert.True(t, isAdd)

	buf, err := Decode(codec, data, typ, len(values))
	require.NoError(t, err)
	ib := buf.(*Int64Buffer)
	assert.Equal(t, values, ib.Values)
}

func TestEncodeIntUnsortedUsesPlainAdd(t *testing.T) {
	values := []int64{9, 1, 5, 1}
	codec, data, typ := EncodeInt(values, nil)
	require.Len(t, codec, 1)
	_, isAdd := codec[0].(Add)
	assert.True(t, isAdd)

	buf, err := Decode(codec, data, typ, len(values))
	require.NoError(t, err)
	ib := buf.(*Int64Buffer)
	assert.Equal(t, values, ib.Values)
}

func TestEncodeIntWithNullsWrapsBitset(t *testing.T) {
	values := []int64{9, 1, 5, 1}
	nulls := NewBitset(4)
	nulls.Set(1, true)
	codec, data, typ := EncodeInt(values, nulls)

	buf, err := Decode(codec, data, typ, len(values))
	require.NoError(t, err)
	ib := buf.(*Int64Buffer)
	assert.False(t, ib.IsNull(0))
	assert.True(t, ib.IsNull(1))
	assert.Equal(t, values, ib.Values)
}

func TestEncodeIntAllNullYieldsNullSection(t *testing.T) {
	values := []int64{0, 0, 0}
	nulls := NewBitset(3)
	nulls.Set(0, true)
	nulls.Set(1, true)
	nulls.Set(2, true)

	_, data, typ := EncodeInt(values, nulls)
	assert.Equal(t, TypeNull, typ)
	require.Len(t, data, 1)
	ns, ok := data[0].(NullSection)
	require.True(t, ok)
	assert.Equal(t, 3, ns.Len)
}

func TestWidthForRange(t *testing.T) {
	assert.Equal(t, WidthU8, widthForRange(200))
	assert.Equal(t, WidthU16, widthForRange(60000))
	assert.Equal(t, WidthU32, widthForRange(1<<20))
	assert.Equal(t, WidthU64, widthForRange(int64(1) << 40))
}

func TestEncodeFloatXorRoundTrips(t *testing.T) {
	values := []float64{1.0, 1.0, 1.0, 1.0, 1.0}
	codec, data := EncodeFloat(values)
	buf, err := Decode(codec, data, TypeFloat, len(values))
	require.NoError(t, err)
	fb, ok := buf.(*Float64Buffer)
	require.True(t, ok)
	assert.InDeltaSlice(t, values, fb.Values, 1e-9)
}

func TestEncodeStringDictionaryForLowCardinality(t *testing.T) {
	values := []string{"a", "b", "a", "a", "b", "a", "c", "a"}
	codec, data := EncodeString(values, nil)
	require.Len(t, codec, 2)
	_, isPush := codec[0].(PushDataSection)
	assert.True(t, isPush)
	_, isLookup := codec[1].(DictLookup)
	assert.True(t, isLookup)

	buf, err := Decode(codec, data, TypeString, len(values))
	require.NoError(t, err)
	sb := buf.(*StringBuffer)
	assert.Equal(t, values, sb.Values)
}

func TestEncodeStringHexpackForAllHexColumn(t *testing.T) {
	values := []string{"deadbeef", "0badf00d", "cafebabe"}
	codec, data := EncodeString(values, nil)
	require.Len(t, codec, 1)
	_, isUnhex := codec[0].(UnhexpackStrings)
	require.True(t, isUnhex)

	buf, err := Decode(codec, data, TypeString, len(values))
	require.NoError(t, err)
	sb := buf.(*StringBuffer)
	assert.Equal(t, values, sb.Values)
}

func TestEncodeStringBlobForHighCardinalityNonHex(t *testing.T) {
	values := []string{"alpha widget", "banana crate", "cyclone tower", "delta wing", "echo park"}
	codec, data := EncodeString(values, nil)
	buf, err := Decode(codec, data, TypeString, len(values))
	require.NoError(t, err)
	sb := buf.(*StringBuffer)
	assert.Equal(t, values, sb.Values)
}

func TestEncodeStringEmptyYieldsNullSection(t *testing.T) {
	codec, data := EncodeString(nil, nil)
	assert.Equal(t, Codec{}, codec)
	require.Len(t, data, 1)
	_, ok := data[0].(NullSection)
	assert.True(t, ok)
}

func TestEncodeStringUsesInternPool(t *testing.T) {
	intern := pool.NewStringInternPool(64)
	values := []string{"x", "y", "x", "x", "x"}
	_, data := EncodeString(values, intern)
	dictSec, ok := data[0].(StringDataSection)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"x", "y"}, dictSec.Values)
}
