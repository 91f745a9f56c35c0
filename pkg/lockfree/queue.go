// Package lockfree provides lock-free data structures used by the
// scheduler's shared per-partition work queue (spec.md §4.4, §5).
package lockfree

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// MPMCQueue is a lock-free multi-producer multi-consumer queue using
// sequence numbers for ordering, with cache-line padding to avoid false
// sharing between the query dispatcher (producer) and worker goroutines
// (consumers).
type MPMCQueue struct {
	buffer   []slot
	capacity uint64
	mask     uint64

	enqueuePos atomic.Uint64
	_padding1  [7]uint64 //nolint:unused

	dequeuePos atomic.Uint64
	_padding2  [7]uint64 //nolint:unused
}

type slot struct {
	sequence atomic.Uint64
	data     unsafe.Pointer
}

// NewMPMCQueue creates a queue with capacity rounded up to the next power
// of two.
func NewMPMCQueue(capacity int) *MPMCQueue {
	cap := uint64(1)
	for cap < uint64(capacity) {
		cap <<= 1
	}

	q := &MPMCQueue{
		buffer:   make([]slot, cap),
		capacity: cap,
		mask:     cap - 1,
	}
	for i := uint64(0); i < cap; i++ {
		q.buffer[i].sequence.Store(i)
	}
	return q
}

// Enqueue adds an item, returning false if the queue is full.
func (q *MPMCQueue) Enqueue(item interface{}) bool {
	for {
		pos := q.enqueuePos.Load()
		s := &q.buffer[pos&q.mask]
		seq := s.sequence.Load()

		diff := int64(seq) - int64(pos)
		if diff == 0 {
			if q.enqueuePos.CompareAndSwap(pos, pos+1) {
				atomic.StorePointer(&s.data, unsafe.Pointer(&item)) // #nosec G103
				s.sequence.Store(pos + 1)
				return true
			}
		} else if diff < 0 {
			return false
		}
		runtime.Gosched()
	}
}

// Dequeue removes an item, returning false if the queue is empty.
func (q *MPMCQueue) Dequeue() (interface{}, bool) {
	for {
		pos := q.dequeuePos.Load()
		s := &q.buffer[pos&q.mask]
		seq := s.sequence.Load()

		diff := int64(seq) - int64(pos+1)
		if diff == 0 {
			if q.dequeuePos.CompareAndSwap(pos, pos+1) {
				data := (*interface{})(atomic.LoadPointer(&s.data))
				atomic.StorePointer(&s.data, nil)
				s.sequence.Store(pos + q.capacity)
				return *data, true
			}
		} else if diff < 0 {
			return nil, false
		}
		runtime.Gosched()
	}
}

// AtomicCounter is a lock-free counter for scheduler/executor statistics
// (records scanned, partitions pruned, cache hits).
type AtomicCounter struct {
	value atomic.Uint64
}

// NewAtomicCounter creates a counter initialized to zero.
func NewAtomicCounter() *AtomicCounter { return &AtomicCounter{} }

// Increment adds one.
func (c *AtomicCounter) Increment() { c.value.Add(1) }

// Add adds delta.
func (c *AtomicCounter) Add(delta uint64) { c.value.Add(delta) }

// Get returns the current value.
func (c *AtomicCounter) Get() uint64 { return c.value.Load() }

// Reset zeroes the counter.
func (c *AtomicCounter) Reset() { c.value.Store(0) }
