package pool

import (
	"sync"
	"sync/atomic"
)

// StringInternPool interns strings to reduce allocation and give equal
// strings pointer-identical backing arrays. DBMeta's string_intern_table
// (spec.md §3) is one of these: subpartition metadata v1/v2 store interned
// ids instead of literal column names.
type StringInternPool struct {
	mu      sync.RWMutex
	strings map[string]string
	ids     map[string]uint32
	byID    []string
	maxSize int
	size    int64
	hits    int64
	misses  int64
}

// NewStringInternPool creates an empty intern pool bounded to maxSize
// distinct strings; beyond the bound Intern returns the input unchanged.
func NewStringInternPool(maxSize int) *StringInternPool {
	return &StringInternPool{
		strings: make(map[string]string, 256),
		ids:     make(map[string]uint32, 256),
		maxSize: maxSize,
	}
}

// Intern returns an interned copy of s.
func (p *StringInternPool) Intern(s string) string {
	p.mu.RLock()
	if interned, ok := p.strings[s]; ok {
		p.mu.RUnlock()
		atomic.AddInt64(&p.hits, 1)
		return interned
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if interned, ok := p.strings[s]; ok {
		atomic.AddInt64(&p.hits, 1)
		return interned
	}

	if p.maxSize > 0 && int64(len(p.strings)) >= int64(p.maxSize) {
		atomic.AddInt64(&p.misses, 1)
		return s
	}

	p.strings[s] = s
	id := uint32(len(p.byID))
	p.ids[s] = id
	p.byID = append(p.byID, s)
	atomic.AddInt64(&p.size, 1)
	atomic.AddInt64(&p.misses, 1)
	return s
}

// InternID interns s and returns its stable numeric id, used by
// SubpartitionMetadata's v1/v2 on-disk encodings.
func (p *StringInternPool) InternID(s string) uint32 {
	p.Intern(s)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ids[s]
}

// ByIDLookup resolves an interned id back to its string. ok is false if
// the id is out of range (a corrupt metadata blob, per dberrors.CorruptData).
func (p *StringInternPool) ByIDLookup(id uint32) (s string, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(id) >= len(p.byID) {
		return "", false
	}
	return p.byID[id], true
}

// Strings returns every interned string in id order, the layout DBMeta
// serializes as its string_intern_table.
func (p *StringInternPool) Strings() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.byID))
	copy(out, p.byID)
	return out
}

// LoadStrings replaces the pool's contents with a previously serialized
// string_intern_table (used when loading DBMeta from disk).
func (p *StringInternPool) LoadStrings(strs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strings = make(map[string]string, len(strs))
	p.ids = make(map[string]uint32, len(strs))
	p.byID = make([]string, 0, len(strs))
	for _, s := range strs {
		id := uint32(len(p.byID))
		p.strings[s] = s
		p.ids[s] = id
		p.byID = append(p.byID, s)
	}
	atomic.StoreInt64(&p.size, int64(len(p.byID)))
}

// Stats returns intern pool statistics.
func (p *StringInternPool) Stats() (size, hits, misses int64) {
	return atomic.LoadInt64(&p.size),
		atomic.LoadInt64(&p.hits),
		atomic.LoadInt64(&p.misses)
}
