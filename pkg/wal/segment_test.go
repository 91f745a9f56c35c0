package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentMarshalUnmarshalRoundTrips(t *testing.T) {
	seg := Segment{
		ID: 7,
		Tables: []TableSegment{
			{
				Table: "trips",
				Len:   3,
				Columns: []Column{
					{Name: "fare", Kind: KindDenseFloat, Floats: []float64{1.5, 2.5, 3.5}},
					{Name: "vendor", Kind: KindDenseString, Strings: []string{"a", "b", "c"}},
					{Name: "sparse_tip", Kind: KindSparseInt, Indices: []int{0, 2}, Ints: []int64{100, 200}},
				},
			},
		},
	}

	data, err := seg.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, seg, got)
}

func TestUnmarshalRejectsCorruptData(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	assert.Error(t, err)
}
