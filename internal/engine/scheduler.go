package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/lockfree"
	"github.com/locustdb/locustdb/pkg/logger"
	"github.com/locustdb/locustdb/pkg/metrics"
	"github.com/locustdb/locustdb/pkg/observability"
	"github.com/locustdb/locustdb/pkg/storage"
)

// Scheduler runs compiled Plans across a fixed worker pool (spec.md
// §4.4's default-to-CPU-count sizing), fanning per-partition tasks out
// over a shared lock-free queue and folding partial results back
// together with one final single-worker merge.
type Scheduler struct {
	workers int
	queue   *lockfree.MPMCQueue
	coll    *metrics.Collector
	mgr     *storage.Manager

	wg       sync.WaitGroup
	quit     chan struct{}
	queryIDs uint64
}

// job is one unit of work handed to a worker goroutine.
type job struct {
	ctx    context.Context
	task   *PartitionTask
	query  *Query
	result chan jobResult
}

type jobResult struct {
	partial *partialResult
	err     error
}

// NewScheduler starts a pool of workers. workers <= 0 defaults to
// runtime.NumCPU, per spec.md §4.4.
func NewScheduler(workers int, mgr *storage.Manager, coll *metrics.Collector) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s := &Scheduler{
		workers: workers,
		queue:   lockfree.NewMPMCQueue(workers * 4),
		coll:    coll,
		mgr:     mgr,
		quit:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.runWorker()
	}
	return s
}

// runWorker drains jobs off the shared queue until Close is called,
// spinning briefly rather than blocking since MPMCQueue is non-blocking.
func (s *Scheduler) runWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		item, ok := s.queue.Dequeue()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		j := item.(*job)
		pctx := context.WithValue(j.ctx, logger.PartitionIDKey, j.task.Partition.ID())
		logger.WithContext(pctx).Debug("executing partition")
		pr, err := ExecutePartition(pctx, s.mgr, j.query, j.task)
		if err != nil {
			logger.WithContext(pctx).Warn("partition execution failed", zap.Error(err))
		}
		j.result <- jobResult{partial: pr, err: err}
	}
}

// Close stops all workers. Outstanding jobs already dequeued still run
// to completion; the caller is expected to have drained every result
// channel from Run before calling Close.
func (s *Scheduler) Close() {
	close(s.quit)
	s.wg.Wait()
}

// Run executes plan's tasks across the worker pool, merging partial
// results as they complete (associative/commutative per spec.md §8),
// and returns the finalized Result. Cancellation is cooperative:
// ctx.Done() short-circuits result collection but tasks already
// dispatched are allowed to finish rather than being interrupted
// mid-partition (spec.md §5's suspension-point model).
func (s *Scheduler) Run(ctx context.Context, plan *Plan) (*Result, error) {
	queryID := fmt.Sprintf("q%d", atomic.AddUint64(&s.queryIDs, 1))
	ctx = context.WithValue(ctx, logger.QueryIDKey, queryID)
	ctx = context.WithValue(ctx, logger.TableKey, plan.Query.Table)

	ctx, span := observability.StartQuerySpan(ctx, plan.Query.Table, queryID)
	defer span.End()

	logger.WithContext(ctx).Debug("query started", zap.Int("partitions", len(plan.Tasks)))

	if len(plan.Tasks) == 0 {
		return Finalize(ctx, plan.Query, newPartialResult())
	}

	results := make(chan jobResult, len(plan.Tasks))
	for _, task := range plan.Tasks {
		t := task
		pctx, pspan := observability.StartPartitionSpan(ctx, t.Partition.ID())
		j := &job{ctx: pctx, task: t, query: plan.Query, result: results}
		if !s.queue.Enqueue(j) {
			// Queue briefly full under a burst: run inline rather than
			// dropping the task.
			pctx := context.WithValue(pctx, logger.PartitionIDKey, t.Partition.ID())
			pr, err := ExecutePartition(pctx, s.mgr, plan.Query, t)
			results <- jobResult{partial: pr, err: err}
		}
		pspan.End()
	}

	merged := newPartialResult()
	var firstErr error
	for i := 0; i < len(plan.Tasks); i++ {
		select {
		case r := <-results:
			if r.err != nil {
				if firstErr == nil {
					firstErr = r.err
				}
				if s.coll != nil {
					s.coll.QueryErrors.WithLabelValues(string(errorKind(r.err))).Inc()
				}
				continue
			}
			mergePartial(merged, r.partial, plan.Query)
			if s.coll != nil {
				s.coll.PartitionsScanned.WithLabelValues(plan.Query.Table).Inc()
			}
		case <-ctx.Done():
			return nil, dberrors.Wrap(ctx.Err(), dberrors.Cancelled, "query cancelled while awaiting partitions")
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return Finalize(ctx, plan.Query, merged)
}

// errorKind extracts the dberrors.Kind label from err for metrics, falling
// back to Internal for errors that never passed through dberrors.Wrap/New.
func errorKind(err error) dberrors.Kind {
	var e *dberrors.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return dberrors.Internal
}
