package engine

import (
	"context"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/storage"
)

// Plan is a compiled query: one PartitionTask per partition that
// survived pushdown pruning.
type Plan struct {
	Query *Query
	Tasks []*PartitionTask
}

// PartitionTask is the operator graph for one partition: the
// WHERE-clause ops compiled once for the whole query (Ops, MaskBuf,
// NumBufs) plus the partition they run against. The same Ops slice is
// shared by every task in a Plan — resolved once per compile, run once
// per partition, per operator.go's "resolve once, execute many".
type PartitionTask struct {
	Partition *storage.Partition
	Ops       []Op
	MaskBuf   int // buffer id holding the final predicate mask, or -1 if q has no WHERE clause
	NumBufs   int // buffers Ops needs, pre-acquired before ExecutePartition steps them
}

// Compile builds a Plan for q against every partition of its table,
// pruning partitions whose column range cannot satisfy a leaf
// int-comparison predicate before they are scanned; the range comes
// from the predicate column alone, which FetchColumn reads from the
// blob store when it is not already cached (spec.md §4.2's predicate pushdown, §8 scenario
// 3's delta+pushdown test), and compiles q's WHERE clause once into
// the LoadColumn/CompareIntConst/CompareStrConst/BooleanAnd/BooleanOr
// operator graph every surviving partition's task will run.
func Compile(ctx context.Context, mgr *storage.Manager, q *Query) (*Plan, error) {
	if len(q.Select) == 0 && len(q.GroupBy) == 0 {
		return nil, dberrors.New(dberrors.InvalidQuery, "query has no select list")
	}

	ops, maskBuf, numBufs := compilePredicateOps(q.Where)

	partitions := mgr.PartitionsForTable(q.Table)
	plan := &Plan{Query: q}
	for _, part := range partitions {
		prune, err := shouldPrune(ctx, mgr, part, q.Where)
		if err != nil {
			return nil, err
		}
		if prune {
			continue
		}
		plan.Tasks = append(plan.Tasks, &PartitionTask{Partition: part, Ops: ops, MaskBuf: maskBuf, NumBufs: numBufs})
	}
	return plan, nil
}

// compilePredicateOps translates pred into a flat operator graph that
// produces its boolean mask in the returned buffer id, allocating
// buffer ids sequentially from 0. A nil pred compiles to no ops and a
// maskBuf of -1, meaning "match every row" (spec.md §4.3).
func compilePredicateOps(pred *Predicate) (ops []Op, maskBuf int, numBufs int) {
	next := 0
	alloc := func() int {
		id := next
		next++
		return id
	}
	buf := buildPredicateOps(pred, alloc, &ops)
	return ops, buf, next
}

func buildPredicateOps(pred *Predicate, alloc func() int, ops *[]Op) int {
	if pred == nil {
		return -1
	}
	if len(pred.And) > 0 {
		acc := buildPredicateOps(pred.And[0], alloc, ops)
		for _, sub := range pred.And[1:] {
			right := buildPredicateOps(sub, alloc, ops)
			out := alloc()
			*ops = append(*ops, BooleanAnd{Left: acc, Right: right, Out: out})
			acc = out
		}
		return acc
	}
	if len(pred.Or) > 0 {
		acc := buildPredicateOps(pred.Or[0], alloc, ops)
		for _, sub := range pred.Or[1:] {
			right := buildPredicateOps(sub, alloc, ops)
			out := alloc()
			*ops = append(*ops, BooleanOr{Left: acc, Right: right, Out: out})
			acc = out
		}
		return acc
	}

	colBuf := alloc()
	*ops = append(*ops, LoadColumn{Column: pred.Column, Out: colBuf})
	cmpBuf := alloc()
	if pred.IsStr {
		*ops = append(*ops, CompareStrConst{In: colBuf, Out: cmpBuf, Const: pred.StrVal})
	} else {
		*ops = append(*ops, CompareIntConst{In: colBuf, Out: cmpBuf, Op: pred.Op, Const: pred.IntVal})
	}
	return cmpBuf
}

// shouldPrune reports whether a partition can be dropped from the
// plan without being scanned, by consulting the range of a
// leaf-predicate column against its already-decoded (or cheaply
// decodable) statistics.
func shouldPrune(ctx context.Context, mgr *storage.Manager, part *storage.Partition, pred *Predicate) (bool, error) {
	if pred == nil || !pred.isLeaf() || pred.IsStr || pred.IsFloat {
		return false, nil
	}
	col, err := mgr.FetchColumn(ctx, part, pred.Column)
	if err != nil {
		return false, err
	}
	if col.Type != columnar.TypeInt && col.Type != columnar.TypeUint {
		return false, nil
	}
	return !rangeCouldMatch(col.Range, pred), nil
}

// rangeCouldMatch reports whether some value in [r.Min, r.Max] could
// satisfy pred; a false result means the whole partition is provably
// excluded by the predicate.
func rangeCouldMatch(r columnar.Range, pred *Predicate) bool {
	if r.Empty {
		return false
	}
	switch pred.Op {
	case OpEq:
		return r.Contains(pred.IntVal)
	case OpNeq:
		return !(r.Min == r.Max && r.Min == pred.IntVal)
	case OpLt:
		return r.Min < pred.IntVal
	case OpLte:
		return r.Min <= pred.IntVal
	case OpGt:
		return r.Max > pred.IntVal
	case OpGte:
		return r.Max >= pred.IntVal
	default:
		return true
	}
}
