package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/config"
	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/dbmeta"
	"github.com/locustdb/locustdb/pkg/metrics"
	"github.com/locustdb/locustdb/pkg/storage"
)

func newExecutorTestManager(t *testing.T) *storage.Manager {
	t.Helper()
	cfg := config.DefaultDBConfig()
	cfg.DBPath = t.TempDir()
	coll := metrics.NewCollector("locustdb_exec_test", prometheus.NewRegistry())
	mgr, err := storage.NewManager(cfg, dbmeta.New(), coll)
	require.NoError(t, err)
	return mgr
}

func runQuery(t *testing.T, mgr *storage.Manager, q *Query) *Result {
	t.Helper()
	ctx := context.Background()
	plan, err := Compile(ctx, mgr, q)
	require.NoError(t, err)

	merged := newPartialResult()
	for _, task := range plan.Tasks {
		pr, err := ExecutePartition(ctx, mgr, q, task)
		require.NoError(t, err)
		mergePartial(merged, pr, q)
	}
	res, err := Finalize(ctx, q, merged)
	require.NoError(t, err)
	return res
}

// Scenario 1: scalar SUM with a predicate pushdown that prunes a
// whole partition from the plan before it is scanned.
func TestScenarioScalarSumWithPushdown(t *testing.T) {
	mgr := newExecutorTestManager(t)
	ctx := context.Background()

	_, err := mgr.Seal(ctx, "trips", 3, []storage.ColumnBatch{
		{Name: "fare", Type: columnar.TypeInt, Ints: []int64{10, 20, 30}},
		{Name: "zone", Type: columnar.TypeInt, Ints: []int64{1, 1, 2}},
	})
	require.NoError(t, err)
	_, err = mgr.Seal(ctx, "trips", 2, []storage.ColumnBatch{
		{Name: "fare", Type: columnar.TypeInt, Ints: []int64{100, 200}},
		{Name: "zone", Type: columnar.TypeInt, Ints: []int64{9, 9}},
	})
	require.NoError(t, err)

	q := &Query{
		Table:  "trips",
		Select: []SelectExpr{{Column: "fare", Agg: AggSum}},
		Where:  &Predicate{Column: "zone", Op: OpEq, IntVal: 1},
	}
	res := runQuery(t, mgr, q)
	assert.Equal(t, int64(30), res.Scalar["fare"]) // only the first partition contains zone==1, and only two of its three rows match
}

// Scenario 2: group-by executes on dict codes, never materialized
// strings — verified indirectly through the dictionary-encoded column
// shape produced by EncodeString for a low-cardinality column.
func TestScenarioGroupByOnDictCodes(t *testing.T) {
	mgr := newExecutorTestManager(t)
	ctx := context.Background()

	_, err := mgr.Seal(ctx, "trips", 6, []storage.ColumnBatch{
		{Name: "vendor", Type: columnar.TypeString, Strings: []string{"a", "b", "a", "a", "b", "a"}},
		{Name: "fare", Type: columnar.TypeInt, Ints: []int64{1, 2, 3, 4, 5, 6}},
	})
	require.NoError(t, err)

	q := &Query{
		Table:   "trips",
		Select:  []SelectExpr{{Column: "fare", Agg: AggSum}},
		GroupBy: []string{"vendor"},
	}
	res := runQuery(t, mgr, q)

	require.NotEmpty(t, res.GroupNames)
	got := make(map[string]int64, len(res.GroupNames))
	for i, name := range res.GroupNames {
		got[name] = res.GroupValues["fare"][i]
	}
	assert.Equal(t, int64(1+3+4+6), got["a"])
	assert.Equal(t, int64(2+5), got["b"])
}

// Scenario 3: a single partition of 65537 rows, one past the default
// 65536-row partition size, compiles and executes correctly.
func TestScenarioPartitionBoundary(t *testing.T) {
	mgr := newExecutorTestManager(t)
	ctx := context.Background()

	const n = 65537
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = int64(i)
	}
	_, err := mgr.Seal(ctx, "t", n, []storage.ColumnBatch{{Name: "v", Type: columnar.TypeInt, Ints: vals}})
	require.NoError(t, err)

	q := &Query{Table: "t", Select: []SelectExpr{{Column: "v", Agg: AggCount}}}
	res := runQuery(t, mgr, q)
	assert.Equal(t, int64(n), res.Scalar["v"])
}

// Scenario 4: SELECT a+b propagates null when either input is null.
func TestScenarioProjectionAddPropagatesNull(t *testing.T) {
	mgr := newExecutorTestManager(t)
	ctx := context.Background()

	nulls := columnar.NewBitset(3)
	nulls.Set(1, true)
	_, err := mgr.Seal(ctx, "t", 3, []storage.ColumnBatch{
		{Name: "a", Type: columnar.TypeInt, Ints: []int64{1, 2, 3}, Nulls: nulls},
		{Name: "b", Type: columnar.TypeInt, Ints: []int64{10, 20, 30}},
	})
	require.NoError(t, err)

	q := &Query{
		Table:  "t",
		Select: []SelectExpr{{Add: &BinaryAdd{Left: "a", Right: "b"}, Alias: "sum"}},
	}
	res := runQuery(t, mgr, q)
	require.Len(t, res.ProjectionInts, 3)
	require.Len(t, res.ProjectionValid, 3)
	assert.True(t, res.ProjectionValid[0])
	assert.Equal(t, int64(11), res.ProjectionInts[0])
	assert.False(t, res.ProjectionValid[1], "row 1 has a null left operand")
	assert.True(t, res.ProjectionValid[2])
	assert.Equal(t, int64(33), res.ProjectionInts[2])
}

// Scenario 5: ORDER BY ... LIMIT k returns the correct top-k across
// partitions.
func TestScenarioTopKAcrossPartitions(t *testing.T) {
	mgr := newExecutorTestManager(t)
	ctx := context.Background()

	_, err := mgr.Seal(ctx, "t", 4, []storage.ColumnBatch{{Name: "fare", Type: columnar.TypeInt, Ints: []int64{5, 1, 9, 3}}})
	require.NoError(t, err)
	_, err = mgr.Seal(ctx, "t", 3, []storage.ColumnBatch{{Name: "fare", Type: columnar.TypeInt, Ints: []int64{100, 2, 50}}})
	require.NoError(t, err)

	q := &Query{
		Table:   "t",
		Select:  []SelectExpr{{Column: "fare"}},
		OrderBy: []OrderTerm{{Column: "fare", Desc: true}},
		Limit:   3,
	}
	res := runQuery(t, mgr, q)
	assert.Equal(t, []int64{100, 50, 9}, res.TopK)
}

// Scenario 6: merging partition results is associative/commutative —
// the answer does not depend on merge order.
func TestScenarioMergeIsOrderIndependent(t *testing.T) {
	mgr := newExecutorTestManager(t)
	ctx := context.Background()

	_, err := mgr.Seal(ctx, "t", 2, []storage.ColumnBatch{{Name: "v", Type: columnar.TypeInt, Ints: []int64{1, 2}}})
	require.NoError(t, err)
	_, err = mgr.Seal(ctx, "t", 2, []storage.ColumnBatch{{Name: "v", Type: columnar.TypeInt, Ints: []int64{3, 4}}})
	require.NoError(t, err)
	_, err = mgr.Seal(ctx, "t", 2, []storage.ColumnBatch{{Name: "v", Type: columnar.TypeInt, Ints: []int64{5, 6}}})
	require.NoError(t, err)

	q := &Query{Table: "t", Select: []SelectExpr{{Column: "v", Agg: AggSum}}}
	plan, err := Compile(ctx, mgr, q)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 3)

	partials := make([]*partialResult, len(plan.Tasks))
	for i, task := range plan.Tasks {
		pr, err := ExecutePartition(ctx, mgr, q, task)
		require.NoError(t, err)
		partials[i] = pr
	}

	forward := newPartialResult()
	for _, pr := range partials {
		mergePartial(forward, pr, q)
	}
	backward := newPartialResult()
	for i := len(partials) - 1; i >= 0; i-- {
		mergePartial(backward, partials[i], q)
	}

	fr, err := Finalize(ctx, q, forward)
	require.NoError(t, err)
	br, err := Finalize(ctx, q, backward)
	require.NoError(t, err)
	assert.Equal(t, fr.Scalar, br.Scalar)
}

func TestExecutePartitionRespectsCancellation(t *testing.T) {
	mgr := newExecutorTestManager(t)
	ctx := context.Background()
	_, err := mgr.Seal(ctx, "t", 1, []storage.ColumnBatch{{Name: "v", Type: columnar.TypeInt, Ints: []int64{1}}})
	require.NoError(t, err)

	plan, err := Compile(ctx, mgr, &Query{Table: "t", Select: []SelectExpr{{Column: "v", Agg: AggCount}}})
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)

	cancelledCtx, cancel := context.WithCancel(ctx)
	cancel()

	_, err = ExecutePartition(cancelledCtx, mgr, plan.Query, plan.Tasks[0])
	require.Error(t, err)
	var derr *dberrors.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, dberrors.Cancelled, derr.Kind)
}
