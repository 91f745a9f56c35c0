package engine

import (
	"context"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/storage"
)

// Result is a query's assembled output: exactly one of the fields
// below is populated depending on the query's shape (scalar
// aggregate, grouped aggregate, ordered top-k, or plain projection).
type Result struct {
	Scalar map[string]int64

	GroupKeys   []int64
	GroupNames  []string // resolved dict names, parallel to GroupKeys if grouping by a string column
	GroupValues map[string][]int64

	TopK []int64

	ProjectionInts   []int64
	ProjectionValid  []bool
}

// partialResult is the per-partition accumulator merged into Result.
type partialResult struct {
	scalarSum   map[string]int64
	scalarCount map[string]int64
	scalarMin   map[string]*int64
	scalarMax   map[string]*int64

	groups    map[string]*GroupResult // alias -> accumulator
	groupDict []string

	topK []int64

	projInts  []int64
	projValid []bool
}

func newPartialResult() *partialResult {
	return &partialResult{
		scalarSum:   make(map[string]int64),
		scalarCount: make(map[string]int64),
		scalarMin:   make(map[string]*int64),
		scalarMax:   make(map[string]*int64),
		groups:      make(map[string]*GroupResult),
	}
}

// mergePartial folds b into a, associatively and commutatively for
// every aggregate kind (spec.md §8's merge-associativity property).
func mergePartial(a, b *partialResult, q *Query) {
	for k, v := range b.scalarSum {
		a.scalarSum[k] += v
	}
	for k, v := range b.scalarCount {
		a.scalarCount[k] += v
	}
	for k, v := range b.scalarMin {
		if cur, ok := a.scalarMin[k]; !ok || cur == nil || *v < *cur {
			a.scalarMin[k] = v
		}
	}
	for k, v := range b.scalarMax {
		if cur, ok := a.scalarMax[k]; !ok || cur == nil || *v > *cur {
			a.scalarMax[k] = v
		}
	}
	for k, g := range b.groups {
		if a.groups[k] == nil {
			a.groups[k] = NewGroupResult(g.Agg)
		}
		a.groups[k].Merge(g)
	}
	if len(b.groupDict) > 0 {
		a.groupDict = b.groupDict
	}

	if len(q.OrderBy) > 0 && q.Limit > 0 {
		desc := q.OrderBy[0].Desc
		a.topK = MergeTopK(q.Limit, desc, a.topK, b.topK)
	}

	a.projInts = append(a.projInts, b.projInts...)
	a.projValid = append(a.projValid, b.projValid...)
}

// scratchPoolCapacity bounds the buffers one partition's operator
// graph plus its select-side ops can check out. A query's predicate
// and select lists reference at most a handful of columns, so this is
// generous headroom rather than a tuned budget.
const scratchPoolCapacity = 64

// ExecutePartition runs q against one partition's task, returning its
// partial contribution. Cooperative cancellation is checked before
// any column is fetched (spec.md §5's "suspension points: between
// batches and between partitions"). The task's compiled Ops run
// through a ScratchPool to produce the predicate mask (spec.md §4.3's
// operator graph), then the select list runs against that mask.
func ExecutePartition(ctx context.Context, mgr *storage.Manager, q *Query, task *PartitionTask) (*partialResult, error) {
	select {
	case <-ctx.Done():
		return nil, dberrors.Wrap(ctx.Err(), dberrors.Cancelled, "partition execution cancelled")
	default:
	}

	part := task.Partition
	part.Acquire()
	defer part.Release()

	pool := NewScratchPool(scratchPoolCapacity)
	defer pool.ReleaseAll()

	mask, err := runPredicateOps(ctx, mgr, part, task, pool)
	if err != nil {
		return nil, err
	}

	pr := newPartialResult()

	switch {
	case len(q.GroupBy) > 0:
		if err := execGroupBy(ctx, mgr, part, q, mask, pr, pool); err != nil {
			return nil, err
		}
	case len(q.OrderBy) > 0 && q.Limit > 0:
		if err := execTopK(ctx, mgr, part, q, mask, pr, pool); err != nil {
			return nil, err
		}
	case hasAggregate(q):
		if err := execScalarAgg(ctx, mgr, part, q, mask, pr); err != nil {
			return nil, err
		}
	default:
		if err := execProjection(ctx, mgr, part, q, mask, pr, pool); err != nil {
			return nil, err
		}
	}
	return pr, nil
}

func hasAggregate(q *Query) bool {
	for _, s := range q.Select {
		if s.Agg != AggNone {
			return true
		}
	}
	return false
}

// runPredicateOps pre-acquires task's buffers and steps its compiled
// operator graph, returning the resulting mask (nil if task has no
// WHERE clause, meaning "match every row").
func runPredicateOps(ctx context.Context, mgr *storage.Manager, part *storage.Partition, task *PartitionTask, pool *ScratchPool) (*columnar.Bitset, error) {
	for i := 0; i < task.NumBufs; i++ {
		if _, _, err := pool.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	for _, op := range task.Ops {
		if err := op.Step(ctx, mgr, part, pool); err != nil {
			return nil, err
		}
	}
	if task.MaskBuf < 0 {
		return nil, nil
	}
	return pool.Buffer(task.MaskBuf).Bits, nil
}

// materializeInts flattens a decoded int column's data sections into
// a single slice; a column is exactly one section after decode.
func materializeInts(col *columnar.Column) ([]int64, error) {
	for _, s := range col.Data {
		if is, ok := s.(columnar.IntSection); ok {
			return is.Values, nil
		}
		if rs, ok := s.(columnar.RangeSection); ok {
			out := make([]int64, rs.Len)
			v := rs.Start
			for i := range out {
				out[i] = v
				v += rs.Step
			}
			return out, nil
		}
	}
	return nil, dberrors.Newf(dberrors.Internal, "column %q: no int-bearing section", col.Name)
}

func materializeStrings(col *columnar.Column) ([]string, error) {
	for _, s := range col.Data {
		if ss, ok := s.(columnar.StringDataSection); ok {
			return ss.Values, nil
		}
	}
	return nil, dberrors.Newf(dberrors.Internal, "column %q: no string-bearing section", col.Name)
}

func execScalarAgg(ctx context.Context, mgr *storage.Manager, part *storage.Partition, q *Query, mask *columnar.Bitset, pr *partialResult) error {
	for _, sel := range q.Select {
		alias := selectAlias(sel)
		if sel.Agg == AggCount && sel.Column == "" {
			pr.scalarCount[alias] += countMasked(mask, part.Len())
			continue
		}
		col, err := mgr.FetchColumn(ctx, part, sel.Column)
		if err != nil {
			return err
		}
		values, err := materializeInts(col)
		if err != nil {
			return err
		}
		for i, v := range values {
			if mask != nil && !mask.Get(i) {
				continue
			}
			switch sel.Agg {
			case AggSum:
				pr.scalarSum[alias] += v
			case AggCount:
				pr.scalarCount[alias]++
			case AggMin:
				vv := v
				if cur := pr.scalarMin[alias]; cur == nil || vv < *cur {
					pr.scalarMin[alias] = &vv
				}
			case AggMax:
				vv := v
				if cur := pr.scalarMax[alias]; cur == nil || vv > *cur {
					pr.scalarMax[alias] = &vv
				}
			}
		}
	}
	return nil
}

func countMasked(mask *columnar.Bitset, n int) int64 {
	if mask == nil {
		return int64(n)
	}
	return int64(mask.PopCount())
}

func execGroupBy(ctx context.Context, mgr *storage.Manager, part *storage.Partition, q *Query, mask *columnar.Bitset, pr *partialResult, pool *ScratchPool) error {
	groupCol, err := mgr.FetchColumn(ctx, part, q.GroupBy[0])
	if err != nil {
		return err
	}

	var keys []int64
	if groupCol.Type == columnar.TypeString {
		codes, dict, err := dictCodes(groupCol)
		if err != nil {
			return err
		}
		keys = codes
		pr.groupDict = dict
	} else {
		keys, err = materializeInts(groupCol)
		if err != nil {
			return err
		}
	}

	keyBuf, keyID, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	keyBuf.Ints = keys

	maskID := -1
	if mask != nil {
		maskBuf, id, err := pool.Acquire(ctx)
		if err != nil {
			return err
		}
		maskBuf.Bits = mask
		maskID = id
	}

	filteredKeyID := keyID
	if maskID >= 0 {
		id, err := acquireAndFilter(ctx, mgr, part, pool, keyID, maskID)
		if err != nil {
			return err
		}
		filteredKeyID = id
	}

	for _, sel := range q.Select {
		if sel.Agg == AggNone {
			continue
		}
		alias := selectAlias(sel)

		valueID := -1
		if sel.Agg != AggCount {
			valCol, err := mgr.FetchColumn(ctx, part, sel.Column)
			if err != nil {
				return err
			}
			values, err := materializeInts(valCol)
			if err != nil {
				return err
			}
			vb, id, err := pool.Acquire(ctx)
			if err != nil {
				return err
			}
			vb.Ints = values
			valueID = id
			if maskID >= 0 {
				fid, err := acquireAndFilter(ctx, mgr, part, pool, valueID, maskID)
				if err != nil {
					return err
				}
				valueID = fid
			}
		}

		g := NewGroupResult(sel.Agg)
		if err := (HashAggregate{KeyIn: filteredKeyID, ValueIn: valueID, Agg: sel.Agg, Result: g}).Step(ctx, mgr, part, pool); err != nil {
			return err
		}
		pr.groups[alias] = g
	}
	return nil
}

// acquireAndFilter compacts the int buffer in by mask via FilterInt,
// returning the id of a freshly acquired output buffer.
func acquireAndFilter(ctx context.Context, mgr *storage.Manager, part *storage.Partition, pool *ScratchPool, in, mask int) (int, error) {
	_, out, err := pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if err := (FilterInt{In: in, Mask: mask, Out: out}).Step(ctx, mgr, part, pool); err != nil {
		return 0, err
	}
	return out, nil
}

// dictCodes returns a string column's underlying dict codes and
// dictionary without materializing strings, so group-by runs on
// integers (spec.md §8 scenario 2).
func dictCodes(col *columnar.Column) (codes []int64, dict []string, err error) {
	if codes, dict, ok := pairedDictSections(col); ok {
		return codes, dict, nil
	}
	// Already materialized to plain strings: fall back to building an
	// ad hoc dictionary so the group-by key space is still integers.
	values, err := materializeStrings(col)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]int64)
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = int64(len(dict))
			dict = append(dict, v)
		}
		codes = append(codes, seen[v])
	}
	return codes, dict, nil
}

func execTopK(ctx context.Context, mgr *storage.Manager, part *storage.Partition, q *Query, mask *columnar.Bitset, pr *partialResult, pool *ScratchPool) error {
	col, err := mgr.FetchColumn(ctx, part, q.OrderBy[0].Column)
	if err != nil {
		return err
	}
	values, err := materializeInts(col)
	if err != nil {
		return err
	}

	filtered := values
	if mask != nil {
		valBuf, valID, err := pool.Acquire(ctx)
		if err != nil {
			return err
		}
		valBuf.Ints = values
		maskBuf, maskID, err := pool.Acquire(ctx)
		if err != nil {
			return err
		}
		maskBuf.Bits = mask
		outID, err := acquireAndFilter(ctx, mgr, part, pool, valID, maskID)
		if err != nil {
			return err
		}
		filtered = pool.Buffer(outID).Ints
	}

	heap := NewTopKHeap(q.Limit, q.OrderBy[0].Desc)
	for _, v := range filtered {
		heap.Insert(v)
	}
	pr.topK = heap.Values()
	return nil
}

func execProjection(ctx context.Context, mgr *storage.Manager, part *storage.Partition, q *Query, mask *columnar.Bitset, pr *partialResult, pool *ScratchPool) error {
	sel := q.Select[0]
	if sel.Add == nil {
		col, err := mgr.FetchColumn(ctx, part, sel.Column)
		if err != nil {
			return err
		}
		values, err := materializeInts(col)
		if err != nil {
			return err
		}

		valBuf, valID, err := pool.Acquire(ctx)
		if err != nil {
			return err
		}
		valBuf.Ints = values

		outID := valID
		if mask != nil {
			maskBuf, maskID, err := pool.Acquire(ctx)
			if err != nil {
				return err
			}
			maskBuf.Bits = mask
			outID, err = acquireAndFilter(ctx, mgr, part, pool, valID, maskID)
			if err != nil {
				return err
			}
		}
		pr.projInts = append(pr.projInts, pool.Buffer(outID).Ints...)
		for i := range values {
			if mask != nil && !mask.Get(i) {
				continue
			}
			pr.projValid = append(pr.projValid, !isNullAt(col, i))
		}
		return nil
	}

	left, err := mgr.FetchColumn(ctx, part, sel.Add.Left)
	if err != nil {
		return err
	}
	right, err := mgr.FetchColumn(ctx, part, sel.Add.Right)
	if err != nil {
		return err
	}
	lv, err := materializeInts(left)
	if err != nil {
		return err
	}
	rv, err := materializeInts(right)
	if err != nil {
		return err
	}
	n := len(lv)
	if len(rv) < n {
		n = len(rv)
	}

	lBuf, lID, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	lBuf.Ints = lv[:n]
	lBuf.Bits = columnar.NewBitset(n)
	for i := 0; i < n; i++ {
		if isNullAt(left, i) {
			lBuf.Bits.Set(i, true)
		}
	}

	rBuf, rID, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	rBuf.Ints = rv[:n]
	rBuf.Bits = columnar.NewBitset(n)
	for i := 0; i < n; i++ {
		if isNullAt(right, i) {
			rBuf.Bits.Set(i, true)
		}
	}

	_, outID, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := (ArithmeticAddInt{Left: lID, Right: rID, Out: outID}).Step(ctx, mgr, part, pool); err != nil {
		return err
	}
	sumBuf := pool.Buffer(outID)

	for i := 0; i < n; i++ {
		if mask != nil && !mask.Get(i) {
			continue
		}
		pr.projInts = append(pr.projInts, sumBuf.Ints[i])
		pr.projValid = append(pr.projValid, !sumBuf.Bits.Get(i))
	}
	return nil
}

// isNullAt reports whether row i of a decoded column is null. A
// nullable int/float/string column carries its null mask as a
// BitvecSection paired alongside its value section (bufferToColumn);
// a column materialized straight from a NullSection has every row null.
func isNullAt(col *columnar.Column, i int) bool {
	for _, s := range col.Data {
		switch sec := s.(type) {
		case columnar.NullSection:
			return i < sec.Len
		case columnar.BitvecSection:
			return sec.Bits.Get(i)
		}
	}
	return false
}

func selectAlias(sel SelectExpr) string {
	if sel.Alias != "" {
		return sel.Alias
	}
	if sel.Column != "" {
		return sel.Column
	}
	return "count"
}

// Finalize converts an accumulated partialResult into the query's
// Result shape. Group names are resolved from dict codes through the
// same DictMaterialize op the per-partition graph would use, kept out
// of the hot per-row aggregation loop (spec.md §4.2's planner note).
func Finalize(ctx context.Context, q *Query, pr *partialResult) (*Result, error) {
	res := &Result{}
	switch {
	case len(q.GroupBy) > 0:
		res.GroupValues = make(map[string][]int64)
		var keys []int64
		seen := make(map[int64]bool)
		for _, g := range pr.groups {
			for k := range g.Counts {
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
		res.GroupKeys = keys
		if len(pr.groupDict) > 0 {
			names, err := materializeGroupNames(ctx, keys, pr.groupDict)
			if err != nil {
				return nil, err
			}
			res.GroupNames = names
		}
		for alias, g := range pr.groups {
			out := make([]int64, len(keys))
			for i, k := range keys {
				out[i] = groupValue(g, k)
			}
			res.GroupValues[alias] = out
		}
	case len(q.OrderBy) > 0 && q.Limit > 0:
		res.TopK = pr.topK
	case hasAggregate(q):
		res.Scalar = make(map[string]int64)
		for _, sel := range q.Select {
			alias := selectAlias(sel)
			switch sel.Agg {
			case AggSum:
				res.Scalar[alias] = pr.scalarSum[alias]
			case AggCount:
				res.Scalar[alias] = pr.scalarCount[alias]
			case AggMin:
				if v := pr.scalarMin[alias]; v != nil {
					res.Scalar[alias] = *v
				}
			case AggMax:
				if v := pr.scalarMax[alias]; v != nil {
					res.Scalar[alias] = *v
				}
			}
		}
	default:
		res.ProjectionInts = pr.projInts
		res.ProjectionValid = pr.projValid
	}
	return res, nil
}

func materializeGroupNames(ctx context.Context, keys []int64, dict []string) ([]string, error) {
	pool := NewScratchPool(2)
	defer pool.ReleaseAll()

	keyBuf, keyID, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	keyBuf.Ints = keys

	_, outID, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := (DictMaterialize{In: keyID, Out: outID, Dict: dict}).Step(ctx, nil, nil, pool); err != nil {
		return nil, err
	}
	return pool.Buffer(outID).Strings, nil
}

func groupValue(g *GroupResult, key int64) int64 {
	switch g.Agg {
	case AggSum, AggCount:
		if g.Agg == AggCount {
			return g.Counts[key]
		}
		return g.Sums[key]
	case AggMin:
		return g.Mins[key]
	case AggMax:
		return g.Maxs[key]
	default:
		return 0
	}
}
