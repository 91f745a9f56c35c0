package storage

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/config"
	"github.com/locustdb/locustdb/pkg/dbmeta"
	"github.com/locustdb/locustdb/pkg/metrics"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.DefaultDBConfig()
	cfg.DBPath = t.TempDir()
	cfg.PartitionSize = 4
	coll := metrics.NewCollector("locustdb_test", prometheus.NewRegistry())
	mgr, err := NewManager(cfg, dbmeta.New(), coll)
	require.NoError(t, err)
	return mgr
}

func TestSealZeroRowsIsNoOp(t *testing.T) {
	mgr := newTestManager(t)
	p, err := mgr.Seal(context.Background(), "t", 0, []ColumnBatch{{Name: "x", Type: columnar.TypeInt, Ints: nil}})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, mgr.PartitionsForTable("t"))
}

func TestSealAndFetchColumn(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	p, err := mgr.Seal(ctx, "trips", 4, []ColumnBatch{
		{Name: "fare", Type: columnar.TypeInt, Ints: []int64{10, 20, 30, 40}},
		{Name: "vendor", Type: columnar.TypeString, Strings: []string{"a", "b", "a", "a"}},
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4, p.Len())

	fare, err := mgr.FetchColumn(ctx, p, "fare")
	require.NoError(t, err)
	require.Len(t, fare.Data, 1)
	is, ok := fare.Data[0].(columnar.IntSection)
	require.True(t, ok)
	assert.Equal(t, []int64{10, 20, 30, 40}, is.Values)

	vendor, err := mgr.FetchColumn(ctx, p, "vendor")
	require.NoError(t, err)
	assert.Equal(t, columnar.TypeString, vendor.Type)
}

func TestFetchColumnCachedOnSecondCall(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	p, err := mgr.Seal(ctx, "t", 2, []ColumnBatch{{Name: "x", Type: columnar.TypeInt, Ints: []int64{1, 2}}})
	require.NoError(t, err)

	col1, err := mgr.FetchColumn(ctx, p, "x")
	require.NoError(t, err)
	col2, err := mgr.FetchColumn(ctx, p, "x")
	require.NoError(t, err)
	assert.Same(t, col1, col2, "second fetch should return the partition's cached decoded column")
}

func TestFetchColumnMissingIsImplicitlyAllNull(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	p, err := mgr.Seal(ctx, "t", 2, []ColumnBatch{{Name: "present", Type: columnar.TypeInt, Ints: []int64{1, 2}}})
	require.NoError(t, err)

	col, err := mgr.FetchColumn(ctx, p, "absent")
	require.NoError(t, err)
	assert.Equal(t, columnar.TypeNull, col.Type)
	assert.Equal(t, 2, col.Len)
}

func TestCompactMergesSmallAdjacentPartitions(t *testing.T) {
	mgr := newTestManager(t) // PartitionSize 4
	ctx := context.Background()

	_, err := mgr.Seal(ctx, "t", 1, []ColumnBatch{{Name: "x", Type: columnar.TypeInt, Ints: []int64{1}}})
	require.NoError(t, err)
	_, err = mgr.Seal(ctx, "t", 2, []ColumnBatch{{Name: "x", Type: columnar.TypeInt, Ints: []int64{2, 3}}})
	require.NoError(t, err)

	require.NoError(t, mgr.Compact(ctx, "t"))

	parts := mgr.PartitionsForTable("t")
	require.Len(t, parts, 1)
	assert.Equal(t, 3, parts[0].Len())

	col, err := mgr.FetchColumn(ctx, parts[0], "x")
	require.NoError(t, err)
	is := col.Data[0].(columnar.IntSection)
	assert.ElementsMatch(t, []int64{1, 2, 3}, is.Values)
}

func TestCompactLeavesFullPartitionsAlone(t *testing.T) {
	mgr := newTestManager(t) // PartitionSize 4
	ctx := context.Background()

	_, err := mgr.Seal(ctx, "t", 4, []ColumnBatch{{Name: "x", Type: columnar.TypeInt, Ints: []int64{1, 2, 3, 4}}})
	require.NoError(t, err)

	require.NoError(t, mgr.Compact(ctx, "t"))
	assert.Len(t, mgr.PartitionsForTable("t"), 1)
}
