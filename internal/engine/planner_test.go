package engine

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
	"github.com/locustdb/locustdb/pkg/storage"
)

func TestRangeCouldMatchAllOperators(t *testing.T) {
	r := columnar.Range{Min: 10, Max: 20}

	tests := []struct {
		op   CompareOp
		val  int64
		want bool
	}{
		{OpEq, 15, true},
		{OpEq, 25, false},
		{OpNeq, 15, true},
		{OpNeq, 5, true},
		{OpLt, 15, true},  // min(10) < 15
		{OpLt, 10, false}, // min(10) not< 10
		{OpLte, 10, true},
		{OpLte, 5, false},
		{OpGt, 15, true}, // max(20) > 15
		{OpGt, 20, false},
		{OpGte, 20, true},
		{OpGte, 25, false},
	}
	for _, tt := range tests {
		got := rangeCouldMatch(r, &Predicate{Op: tt.op, IntVal: tt.val})
		assert.Equal(t, tt.want, got, "op=%v val=%d", tt.op, tt.val)
	}
}

func TestRangeCouldMatchEmptyRangeNeverMatches(t *testing.T) {
	r := columnar.Range{Empty: true}
	assert.False(t, rangeCouldMatch(r, &Predicate{Op: OpEq, IntVal: 5}))
}

func TestRangeCouldMatchNeqExcludesOnlyWhenRangeIsSingleValueEqualToTarget(t *testing.T) {
	single := columnar.Range{Min: 7, Max: 7}
	assert.False(t, rangeCouldMatch(single, &Predicate{Op: OpNeq, IntVal: 7}))
	assert.True(t, rangeCouldMatch(single, &Predicate{Op: OpNeq, IntVal: 8}))
}

func newPlannerTestManager(t *testing.T) *storage.Manager {
	t.Helper()
	cfg := config.DefaultDBConfig()
	cfg.DBPath = t.TempDir()
	coll := metrics.NewCollector("locustdb_planner_test", prometheus.NewRegistry())
	mgr, err := storage.NewManager(cfg, dbmeta.New(), coll)
	require.NoError(t, err)
	return mgr
}

func TestCompilePrunesPartitionsOutsidePredicateRange(t *testing.T) {
	mgr := newPlannerTestManager(t)
	ctx := context.Background()

	_, err := mgr.Seal(ctx, "t", 3, []storage.ColumnBatch{{Name: "id", Type: columnar.TypeInt, Ints: []int64{1, 2, 3}}})
	require.NoError(t, err)
	_, err = mgr.Seal(ctx, "t", 3, []storage.ColumnBatch{{Name: "id", Type: columnar.TypeInt, Ints: []int64{100, 101, 102}}})
	require.NoError(t, err)

	q := &Query{
		Table:  "t",
		Select: []SelectExpr{{Column: "id"}},
		Where:  &Predicate{Column: "id", Op: OpEq, IntVal: 101},
	}
	plan, err := Compile(ctx, mgr, q)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, 3, plan.Tasks[0].Partition.Len())
}

func TestCompileKeepsAllPartitionsWithoutPushdownablePredicate(t *testing.T) {
	mgr := newPlannerTestManager(t)
	ctx := context.Background()
	_, err := mgr.Seal(ctx, "t", 2, []storage.ColumnBatch{{Name: "id", Type: columnar.TypeInt, Ints: []int64{1, 2}}})
	require.NoError(t, err)
	_, err = mgr.Seal(ctx, "t", 2, []storage.ColumnBatch{{Name: "id", Type: columnar.TypeInt, Ints: []int64{3, 4}}})
	require.NoError(t, err)

	q := &Query{Table: "t", Select: []SelectExpr{{Column: "id"}}}
	plan, err := Compile(ctx, mgr, q)
	require.NoError(t, err)
	assert.Len(t, plan.Tasks, 2)
}

func TestCompileRejectsEmptySelectAndGroupBy(t *testing.T) {
	mgr := newPlannerTestManager(t)
	_, err := Compile(context.Background(), mgr, &Query{Table: "t"})
	assert.Error(t, err)
}

func TestCompileAcrossPartitionBoundary(t *testing.T) {
	mgr := newPlannerTestManager(t)
	ctx := context.Background()

	const boundary = 65536
	ids := make([]int64, boundary)
	for i := range ids {
		ids[i] = int64(i)
	}
	_, err := mgr.Seal(ctx, "t", boundary, []storage.ColumnBatch{{Name: "id", Type: columnar.TypeInt, Ints: ids}})
	require.NoError(t, err)

	overflowIDs := make([]int64, 1)
	overflowIDs[0] = boundary
	_, err = mgr.Seal(ctx, "t", 1, []storage.ColumnBatch{{Name: "id", Type: columnar.TypeInt, Ints: overflowIDs}})
	require.NoError(t, err)

	q := &Query{Table: "t", Select: []SelectExpr{{Column: "id"}}, Where: &Predicate{Column: "id", Op: OpEq, IntVal: boundary}}
	plan, err := Compile(ctx, mgr, q)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, 1, plan.Tasks[0].Partition.Len())
}
