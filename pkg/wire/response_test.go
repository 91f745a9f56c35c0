package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntColumnPicksArithmeticRange(t *testing.T) {
	col := IntColumn("id", []int64{100, 105, 110, 115})
	assert.Equal(t, KindRange, col.Kind)
	assert.Equal(t, int64(100), col.RangeStart)
	assert.Equal(t, int64(5), col.RangeStep)
	assert.Equal(t, 4, col.RangeLen)

	decoded, err := col.Decode()
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 105, 110, 115}, decoded)
}

func TestIntColumnSingleValueIsTrivialRange(t *testing.T) {
	col := IntColumn("id", []int64{42})
	assert.Equal(t, KindRange, col.Kind)
	decoded, err := col.Decode()
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, decoded)
}

func TestIntColumnPicksSingleDeltaWidth8(t *testing.T) {
	values := []int64{1000, 1005, 998, 1010}
	col := IntColumn("v", values)
	require.Equal(t, KindDelta, col.Kind)
	assert.False(t, col.DeltaDouble)
	assert.Equal(t, 8, col.DeltaWidth)

	decoded, err := col.Decode()
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestIntColumnPicksDoubleDeltaWhenSingleDeltaOverflowsButAccelerationIsSmall(t *testing.T) {
	// A slowly accelerating series: deltas (1000, 1050, 1100, 1150) are
	// too wide for an 8-bit single delta, but the second differences
	// (50, 50, 50) fit comfortably.
	values := []int64{0, 1000, 2050, 3150, 4300}
	col := IntColumn("v", values)
	require.Equal(t, KindDelta, col.Kind)
	assert.True(t, col.DeltaDouble)

	decoded, err := col.Decode()
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestIntColumnFallsBackToDenseInt(t *testing.T) {
	values := []int64{1, 1 << 40, -(1 << 40), 3}
	col := IntColumn("v", values)
	assert.Equal(t, KindInt, col.Kind)
	assert.Equal(t, values, col.Ints)

	decoded, err := col.Decode()
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestIntColumnEmpty(t *testing.T) {
	col := IntColumn("v", nil)
	assert.Equal(t, KindInt, col.Kind)
	decoded, err := col.Decode()
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestFloatColumnAndStringColumnBuilders(t *testing.T) {
	f := FloatColumn("f", []float64{1.5, 2.5})
	assert.Equal(t, KindFloat, f.Kind)
	assert.Equal(t, []float64{1.5, 2.5}, f.Floats)

	s := StringColumn("s", []string{"a", "b"})
	assert.Equal(t, KindString, s.Kind)
	assert.Equal(t, []string{"a", "b"}, s.Strings)
}

func TestNullColumnAndRangeColumnBuilders(t *testing.T) {
	n := NullColumn("n", 7)
	assert.Equal(t, KindNull, n.Kind)
	assert.Equal(t, 7, n.NullLen)

	r := RangeColumn("r", 5, 3, 2)
	assert.Equal(t, KindRange, r.Kind)
	decoded, err := r.Decode()
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7, 9}, decoded)
}

func TestDecodeNonIntegerKindFails(t *testing.T) {
	col := StringColumn("s", []string{"a"})
	_, err := col.Decode()
	assert.Error(t, err)
}

func TestQueryResponseMarshalUnmarshalRoundTrips(t *testing.T) {
	resp := &QueryResponse{
		Columns: []Column{
			IntColumn("id", []int64{1, 2, 3}),
			FloatColumn("amount", []float64{1.1, 2.2}),
			StringColumn("label", []string{"x", "y"}),
			NullColumn("missing", 3),
			{Name: "mixed", Kind: KindMixed, Mixed: []AnyVal{
				{Tag: AnyInt, I: 5},
				{Tag: AnyString, S: "hi"},
				{Tag: AnyNull},
			}},
		},
	}

	data, err := resp.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, got.Columns, 5)
	assert.Equal(t, "id", got.Columns[0].Name)
	assert.Equal(t, KindMixed, got.Columns[4].Kind)
	assert.Equal(t, "hi", got.Columns[4].Mixed[1].S)
}

func TestUnmarshalRejectsCorruptData(t *testing.T) {
	_, err := Unmarshal([]byte("{not json"))
	assert.Error(t, err)
}

func TestMultiQueryResponseMarshal(t *testing.T) {
	m := &MultiQueryResponse{Responses: []QueryResponse{
		{Columns: []Column{IntColumn("a", []int64{1})}},
		{Columns: []Column{IntColumn("b", []int64{2})}},
	}}
	data, err := m.Marshal()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
