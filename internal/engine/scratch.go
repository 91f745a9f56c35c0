package engine

import (
	"context"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/pool"
)

// ScratchBuffer is one typed, single-assignment execution buffer
// referenced by id within one partition's operator graph (spec.md
// §4.3, §9's "shared vs owned buffers").
type ScratchBuffer struct {
	Ints    []int64
	Floats  []float64
	Strings []string
	Bits    *columnar.Bitset
}

// ScratchPool hands out and reclaims ScratchBuffers for one partition
// execution. Acquire allocates each buffer fresh; ReleaseAll puts the
// buffers' backing arrays into the typed slice pools
// (pkg/pool.Int64SlicePool etc.), which Acquire does not draw from.
// Acquire blocks once max buffers of this pool are checked out. Each
// partition execution creates its own pool, so the bound applies per
// partition task and does not limit memory across concurrent tasks.
type ScratchPool struct {
	max     int
	tokens  chan struct{}
	buffers []*ScratchBuffer
}

// NewScratchPool creates a pool allowing up to maxConcurrent buffers
// checked out at once.
func NewScratchPool(maxConcurrent int) *ScratchPool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ScratchPool{max: maxConcurrent, tokens: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or ctx is cancelled, then
// allocates a new buffer with id equal to its position in the
// pool's per-execution buffer list.
func (p *ScratchPool) Acquire(ctx context.Context) (*ScratchBuffer, int, error) {
	select {
	case p.tokens <- struct{}{}:
	case <-ctx.Done():
		return nil, 0, dberrors.Wrap(ctx.Err(), dberrors.Cancelled, "scratch pool acquire")
	}
	b := &ScratchBuffer{}
	p.buffers = append(p.buffers, b)
	return b, len(p.buffers) - 1, nil
}

// ReleaseAll returns every buffer's backing arrays to the shared typed
// pools and frees the concurrency tokens acquired for this execution.
func (p *ScratchPool) ReleaseAll() {
	for _, b := range p.buffers {
		if b.Ints != nil {
			pool.Int64SlicePool.Put(b.Ints[:0])
		}
		if b.Floats != nil {
			pool.Float64SlicePool.Put(b.Floats[:0])
		}
		if b.Bits != nil {
			b.Bits.Release()
		}
		<-p.tokens
	}
	p.buffers = nil
}

// Buffer returns the buffer previously returned by Acquire at id.
func (p *ScratchPool) Buffer(id int) *ScratchBuffer { return p.buffers[id] }
