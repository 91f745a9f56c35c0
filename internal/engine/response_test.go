package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locustdb/locustdb/pkg/wire"
)

func TestToWireResponseScalar(t *testing.T) {
	res := &Result{Scalar: map[string]int64{"fare": 42, "count": 7}}
	resp := ToWireResponse(res)
	require.Len(t, resp.Columns, 2)
	assert.Equal(t, "count", resp.Columns[0].Name, "columns are sorted by alias for deterministic output")
	assert.Equal(t, "fare", resp.Columns[1].Name)

	decoded, err := resp.Columns[1].Decode()
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, decoded)
}

func TestToWireResponseGroupByStringDict(t *testing.T) {
	res := &Result{
		GroupNames:  []string{"a", "b"},
		GroupValues: map[string][]int64{"fare": {10, 20}},
	}
	resp := ToWireResponse(res)
	require.Len(t, resp.Columns, 2)
	assert.Equal(t, "group", resp.Columns[0].Name)
	assert.Equal(t, []string{"a", "b"}, resp.Columns[0].Strings)
	assert.Equal(t, "fare", resp.Columns[1].Name)
}

func TestToWireResponseTopK(t *testing.T) {
	res := &Result{TopK: []int64{100, 50, 9}}
	resp := ToWireResponse(res)
	require.Len(t, resp.Columns, 1)
	decoded, err := resp.Columns[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 50, 9}, decoded)
}

func TestToWireResponseProjectionWithNulls(t *testing.T) {
	res := &Result{
		ProjectionInts:  []int64{11, 0, 33},
		ProjectionValid: []bool{true, false, true},
	}
	resp := ToWireResponse(res)
	require.Len(t, resp.Columns, 1)
	col := resp.Columns[0]
	assert.Equal(t, wire.KindMixed, col.Kind)
	require.Len(t, col.Mixed, 3)
	assert.Equal(t, wire.AnyInt, col.Mixed[0].Tag)
	assert.Equal(t, int64(11), col.Mixed[0].I)
	assert.Equal(t, wire.AnyNull, col.Mixed[1].Tag)
	assert.Equal(t, wire.AnyInt, col.Mixed[2].Tag)
	assert.Equal(t, int64(33), col.Mixed[2].I)
}
