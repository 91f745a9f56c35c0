package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/config"
	"github.com/locustdb/locustdb/pkg/dbmeta"
	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/metrics"
	"github.com/locustdb/locustdb/pkg/storage"
)

func newSchedulerTestManager(t *testing.T) *storage.Manager {
	t.Helper()
	cfg := config.DefaultDBConfig()
	cfg.DBPath = t.TempDir()
	coll := metrics.NewCollector("locustdb_sched_test", prometheus.NewRegistry())
	mgr, err := storage.NewManager(cfg, dbmeta.New(), coll)
	require.NoError(t, err)
	return mgr
}

func TestSchedulerRunMergesPartitionsRegardlessOfCompletionOrder(t *testing.T) {
	mgr := newSchedulerTestManager(t)
	ctx := context.Background()

	for _, vals := range [][]int64{{1, 2}, {3, 4}, {5, 6}, {7, 8}} {
		_, err := mgr.Seal(ctx, "t", len(vals), []storage.ColumnBatch{{Name: "v", Type: columnar.TypeInt, Ints: vals}})
		require.NoError(t, err)
	}

	q := &Query{Table: "t", Select: []SelectExpr{{Column: "v", Agg: AggSum}}}
	plan, err := Compile(ctx, mgr, q)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 4)

	sched := NewScheduler(4, mgr, nil)
	defer sched.Close()

	var want int64
	for _, vals := range [][]int64{{1, 2}, {3, 4}, {5, 6}, {7, 8}} {
		for _, v := range vals {
			want += v
		}
	}

	for i := 0; i < 5; i++ {
		res, err := sched.Run(ctx, plan)
		require.NoError(t, err)
		assert.Equal(t, want, res.Scalar["v"], "run %d: merge order must not affect the aggregate", i)
	}
}

func TestSchedulerRunEmptyPlanReturnsEmptyResult(t *testing.T) {
	mgr := newSchedulerTestManager(t)
	sched := NewScheduler(2, mgr, nil)
	defer sched.Close()

	plan := &Plan{Query: &Query{Table: "t", Select: []SelectExpr{{Column: "v", Agg: AggCount}}}}
	res, err := sched.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Scalar["v"])
}

func TestSchedulerRunReturnsCancelledWhenContextAlreadyDone(t *testing.T) {
	mgr := newSchedulerTestManager(t)
	ctx := context.Background()
	_, err := mgr.Seal(ctx, "t", 1, []storage.ColumnBatch{{Name: "v", Type: columnar.TypeInt, Ints: []int64{1}}})
	require.NoError(t, err)

	q := &Query{Table: "t", Select: []SelectExpr{{Column: "v", Agg: AggCount}}}
	plan, err := Compile(ctx, mgr, q)
	require.NoError(t, err)

	sched := NewScheduler(1, mgr, nil)
	defer sched.Close()

	cancelledCtx, cancel := context.WithCancel(ctx)
	cancel()

	_, err = sched.Run(cancelledCtx, plan)
	require.Error(t, err)
	var derr *dberrors.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, dberrors.Cancelled, derr.Kind)
}

func TestExecutePartitionZeroDeadlineIsImmediatelyCancelled(t *testing.T) {
	mgr := newSchedulerTestManager(t)
	ctx := context.Background()
	_, err := mgr.Seal(ctx, "t", 1, []storage.ColumnBatch{{Name: "v", Type: columnar.TypeInt, Ints: []int64{1}}})
	require.NoError(t, err)

	q := &Query{Table: "t", Select: []SelectExpr{{Column: "v", Agg: AggCount}}}
	plan, err := Compile(ctx, mgr, q)
	require.NoError(t, err)

	expiredCtx, cancel := context.WithDeadline(ctx, time.Now())
	defer cancel()

	_, err = ExecutePartition(expiredCtx, mgr, plan.Query, plan.Tasks[0])
	require.Error(t, err)
	var derr *dberrors.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, dberrors.Cancelled, derr.Kind)
}
