package engine

import (
	"context"
	"sort"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/storage"
)

// Op is one vectorized primitive in a partition's operator graph: it
// consumes zero or more input buffers by id and produces one output
// buffer by id (spec.md §4.3). Implementations are resolved once per
// query compile (by (op, input types)) and then run many times across
// partitions/batches, per §9's "resolve once, execute many" — Compile
// builds the []Op once for a query, and ExecutePartition replays the
// same graph against every surviving partition's own ScratchPool.
type Op interface {
	Step(ctx context.Context, mgr *storage.Manager, part *storage.Partition, pool *ScratchPool) error
}

// LoadColumn fetches and materializes a column's values into a fresh
// scratch buffer, the entry point of every operator graph. It is
// compiled with just a column name, since Compile runs once per query
// while the fetch itself must happen once per partition.
type LoadColumn struct {
	Column string
	Out    int
}

func (o LoadColumn) Step(ctx context.Context, mgr *storage.Manager, part *storage.Partition, p *ScratchPool) error {
	col, err := mgr.FetchColumn(ctx, part, o.Column)
	if err != nil {
		return err
	}
	b := p.Buffer(o.Out)
	if codes, dict, ok := pairedDictSections(col); ok {
		b.Strings = make([]string, len(codes))
		for i, c := range codes {
			if c < 0 || int(c) >= len(dict) {
				return dberrors.New(dberrors.Internal, "dict code out of range")
			}
			b.Strings[i] = dict[c]
		}
		return nil
	}
	for _, s := range col.Data {
		switch sec := s.(type) {
		case columnar.IntSection:
			b.Ints = append(b.Ints, sec.Values...)
		case columnar.FloatSection:
			b.Floats = append(b.Floats, sec.Values...)
		case columnar.StringDataSection:
			b.Strings = append(b.Strings, sec.Values...)
		case columnar.NullSection:
			b.Bits = columnar.NewBitset(sec.Len)
			for i := 0; i < sec.Len; i++ {
				b.Bits.Set(i, true)
			}
			b.Ints = make([]int64, sec.Len)
		case columnar.BitvecSection:
			b.Bits = sec.Bits
		case columnar.RangeSection:
			v := sec.Start
			for i := 0; i < sec.Len; i++ {
				b.Ints = append(b.Ints, v)
				v += sec.Step
			}
		}
	}
	return nil
}

// pairedDictSections reports whether col decoded to the paired
// IntSection (codes) + StringDataSection (dictionary) shape a
// dict-encoded string column leaves behind when the DictLookup step
// is skipped, letting group-by and predicate evaluation run on
// integers instead of materialized strings (spec.md §4.2, §8
// scenario 2).
func pairedDictSections(col *columnar.Column) (codes []int64, dict []string, ok bool) {
	var intSec *columnar.IntSection
	var strSec *columnar.StringDataSection
	for i := range col.Data {
		switch s := col.Data[i].(type) {
		case columnar.IntSection:
			intSec = &s
		case columnar.StringDataSection:
			strSec = &s
		}
	}
	if intSec == nil || strSec == nil {
		return nil, nil, false
	}
	return intSec.Values, strSec.Values, true
}

// CompareIntConst is the typed compare primitive for `column OP const`.
type CompareIntConst struct {
	In, Out int
	Op      CompareOp
	Const   int64
}

func (o CompareIntConst) Step(_ context.Context, _ *storage.Manager, _ *storage.Partition, p *ScratchPool) error {
	in := p.Buffer(o.In)
	out := p.Buffer(o.Out)
	mask := columnar.NewBitset(len(in.Ints))
	for i, v := range in.Ints {
		if compareInt(v, o.Op, o.Const) {
			mask.Set(i, true)
		}
	}
	out.Bits = mask
	return nil
}

func compareInt(v int64, op CompareOp, c int64) bool {
	switch op {
	case OpEq:
		return v == c
	case OpNeq:
		return v != c
	case OpLt:
		return v < c
	case OpLte:
		return v <= c
	case OpGt:
		return v > c
	case OpGte:
		return v >= c
	default:
		return false
	}
}

// CompareStrConst compares a dict-materialized string buffer against
// a constant (equality only, per dictionary predicate pushdown).
type CompareStrConst struct {
	In, Out int
	Const   string
}

func (o CompareStrConst) Step(_ context.Context, _ *storage.Manager, _ *storage.Partition, p *ScratchPool) error {
	in := p.Buffer(o.In)
	out := p.Buffer(o.Out)
	mask := columnar.NewBitset(len(in.Strings))
	for i, v := range in.Strings {
		if v == o.Const {
			mask.Set(i, true)
		}
	}
	out.Bits = mask
	return nil
}

// BooleanAnd intersects two boolean masks.
type BooleanAnd struct {
	Left, Right, Out int
}

func (o BooleanAnd) Step(_ context.Context, _ *storage.Manager, _ *storage.Partition, p *ScratchPool) error {
	l := p.Buffer(o.Left).Bits
	r := p.Buffer(o.Right).Bits
	out := columnar.NewBitset(l.Len)
	for i := 0; i < l.Len; i++ {
		if l.Get(i) && r.Get(i) {
			out.Set(i, true)
		}
	}
	p.Buffer(o.Out).Bits = out
	return nil
}

// BooleanOr unions two boolean masks.
type BooleanOr struct {
	Left, Right, Out int
}

func (o BooleanOr) Step(_ context.Context, _ *storage.Manager, _ *storage.Partition, p *ScratchPool) error {
	l := p.Buffer(o.Left).Bits
	r := p.Buffer(o.Right).Bits
	out := columnar.NewBitset(l.Len)
	for i := 0; i < l.Len; i++ {
		if l.Get(i) || r.Get(i) {
			out.Set(i, true)
		}
	}
	p.Buffer(o.Out).Bits = out
	return nil
}

// FilterInt compacts an int buffer by a boolean mask (select).
type FilterInt struct {
	In, Mask, Out int
}

func (o FilterInt) Step(_ context.Context, _ *storage.Manager, _ *storage.Partition, p *ScratchPool) error {
	in := p.Buffer(o.In)
	mask := p.Buffer(o.Mask).Bits
	out := p.Buffer(o.Out)
	for i, v := range in.Ints {
		if mask.Get(i) {
			out.Ints = append(out.Ints, v)
		}
	}
	return nil
}

// ArithmeticAddInt adds two nullable int buffers elementwise,
// propagating null: a result is null if either input is null
// (spec.md §8 scenario 4).
type ArithmeticAddInt struct {
	Left, Right, Out int
}

func (o ArithmeticAddInt) Step(_ context.Context, _ *storage.Manager, _ *storage.Partition, p *ScratchPool) error {
	l := p.Buffer(o.Left)
	r := p.Buffer(o.Right)
	out := p.Buffer(o.Out)
	n := len(l.Ints)
	if len(r.Ints) < n {
		n = len(r.Ints)
	}
	outNulls := columnar.NewBitset(n)
	for i := 0; i < n; i++ {
		ln := l.Bits != nil && l.Bits.Get(i)
		rn := r.Bits != nil && r.Bits.Get(i)
		if ln || rn {
			outNulls.Set(i, true)
			out.Ints = append(out.Ints, 0)
			continue
		}
		out.Ints = append(out.Ints, l.Ints[i]+r.Ints[i])
	}
	out.Bits = outNulls
	return nil
}

// HashAggregate performs group-by aggregation: keys come from a
// dict-code or int buffer, values are aggregated per distinct key by
// Agg (spec.md §8 scenario 2 — group-by runs on dict codes directly,
// never materialized strings).
type HashAggregate struct {
	KeyIn   int
	ValueIn int // ignored for AggCount
	Agg     AggFunc
	Result  *GroupResult
}

// GroupResult accumulates one aggregate per distinct integer key
// (a dict code, or the int value itself for a plain group-by column).
type GroupResult struct {
	Agg    AggFunc
	Sums   map[int64]int64
	Counts map[int64]int64
	Mins   map[int64]int64
	Maxs   map[int64]int64
}

// NewGroupResult creates an empty accumulator for agg.
func NewGroupResult(agg AggFunc) *GroupResult {
	return &GroupResult{
		Agg:    agg,
		Sums:   make(map[int64]int64),
		Counts: make(map[int64]int64),
		Mins:   make(map[int64]int64),
		Maxs:   make(map[int64]int64),
	}
}

// Add folds one (key, value) pair into the accumulator.
func (g *GroupResult) Add(key, value int64) {
	g.Counts[key]++
	switch g.Agg {
	case AggSum, AggCount:
		g.Sums[key] += value
	case AggMin:
		if cur, ok := g.Mins[key]; !ok || value < cur {
			g.Mins[key] = value
		}
	case AggMax:
		if cur, ok := g.Maxs[key]; !ok || value > cur {
			g.Maxs[key] = value
		}
	}
}

// Merge folds other into g, associatively and commutatively (spec.md
// §8's merge-associativity testable property).
func (g *GroupResult) Merge(other *GroupResult) {
	for k, v := range other.Sums {
		g.Sums[k] += v
	}
	for k, v := range other.Counts {
		g.Counts[k] += v
	}
	for k, v := range other.Mins {
		if cur, ok := g.Mins[k]; !ok || v < cur {
			g.Mins[k] = v
		}
	}
	for k, v := range other.Maxs {
		if cur, ok := g.Maxs[k]; !ok || v > cur {
			g.Maxs[k] = v
		}
	}
}

func (o HashAggregate) Step(_ context.Context, _ *storage.Manager, _ *storage.Partition, p *ScratchPool) error {
	keys := p.Buffer(o.KeyIn)
	var values []int64
	if o.Agg != AggCount {
		values = p.Buffer(o.ValueIn).Ints
	}
	for i, k := range keys.Ints {
		var v int64
		if values != nil && i < len(values) {
			v = values[i]
		}
		o.Result.Add(k, v)
	}
	return nil
}

// DictMaterialize resolves dict codes to strings for a final
// projection, kept out of the hot group-by loop (spec.md §4.2's
// planner note about executing group-by on dict codes).
type DictMaterialize struct {
	In, Out int
	Dict    []string
}

func (o DictMaterialize) Step(_ context.Context, _ *storage.Manager, _ *storage.Partition, p *ScratchPool) error {
	in := p.Buffer(o.In)
	out := p.Buffer(o.Out)
	for _, code := range in.Ints {
		if int(code) < 0 || int(code) >= len(o.Dict) {
			return dberrors.New(dberrors.Internal, "dict code out of range")
		}
		out.Strings = append(out.Strings, o.Dict[code])
	}
	return nil
}

// TopKHeap is a bounded max/min-heap used to compile `ORDER BY …
// LIMIT k` per partition (spec.md §4.2, §8 scenario 5).
type TopKHeap struct {
	K    int
	Desc bool
	heap []int64
}

// NewTopKHeap creates a heap bounded to k elements.
func NewTopKHeap(k int, desc bool) *TopKHeap { return &TopKHeap{K: k, Desc: desc} }

// Insert offers one value to the heap, keeping only the top K.
func (h *TopKHeap) Insert(v int64) {
	if len(h.heap) < h.K {
		h.heap = append(h.heap, v)
		h.siftUp(len(h.heap) - 1)
		return
	}
	if h.worseThanRoot(v) {
		return
	}
	h.heap[0] = v
	h.siftDown(0)
}

// worseThanRoot reports whether v would never displace the current
// worst-of-the-best element at the root.
func (h *TopKHeap) worseThanRoot(v int64) bool {
	if h.Desc {
		return v <= h.heap[0]
	}
	return v >= h.heap[0]
}

func (h *TopKHeap) less(i, j int) bool {
	if h.Desc {
		return h.heap[i] < h.heap[j]
	}
	return h.heap[i] > h.heap[j]
}

func (h *TopKHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			return
		}
		h.heap[i], h.heap[parent] = h.heap[parent], h.heap[i]
		i = parent
	}
}

func (h *TopKHeap) siftDown(i int) {
	n := len(h.heap)
	for {
		l, r := 2*i+1, 2*i+2
		smallest := i
		if l < n && h.less(l, smallest) {
			smallest = l
		}
		if r < n && h.less(r, smallest) {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.heap[i], h.heap[smallest] = h.heap[smallest], h.heap[i]
		i = smallest
	}
}

// Values drains the heap in best-first order.
func (h *TopKHeap) Values() []int64 {
	out := make([]int64, len(h.heap))
	copy(out, h.heap)
	if h.Desc {
		sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	}
	return out
}

// MergeTopK combines two per-partition top-k results into a merged
// top-k, associatively (spec.md §8's merge-associativity property
// applied to ordering, not just aggregation).
func MergeTopK(k int, desc bool, a, b []int64) []int64 {
	h := NewTopKHeap(k, desc)
	for _, v := range a {
		h.Insert(v)
	}
	for _, v := range b {
		h.Insert(v)
	}
	return h.Values()
}
