package storage

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/locustdb/locustdb/pkg/metrics"
)

func TestCacheGetMissThenHit(t *testing.T) {
	c := NewCache(1<<20, nil)
	_, ok := c.Get(1, "k")
	assert.False(t, ok)

	c.Put(1, "k", []byte("hello"))
	data, ok := c.Get(1, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
}

func TestCacheEvictsLeastRecentlyUsedWithinShard(t *testing.T) {
	// Budget spread across cacheShardCount shards; use the same
	// partition id (same shard) so eviction is exercised deterministically.
	c := NewCache(int64(cacheShardCount)*30, nil)

	c.Put(0, "a", make([]byte, 20))
	c.Put(0, "b", make([]byte, 20))
	// Touch "a" so it is more recent than "b".
	c.Get(0, "a")
	// Pushes shard usage past its ~30-byte budget; "b" is least recently used.
	c.Put(0, "c", make([]byte, 20))

	_, aOK := c.Get(0, "a")
	_, bOK := c.Get(0, "b")
	_, cOK := c.Get(0, "c")
	assert.True(t, aOK)
	assert.False(t, bOK, "least recently used entry should have been evicted")
	assert.True(t, cOK)
}

func TestCacheInvalidateDropsAllKeysForPartition(t *testing.T) {
	c := NewCache(1<<20, nil)
	c.Put(5, "a", []byte("x"))
	c.Put(5, "b", []byte("y"))
	c.Put(6, "a", []byte("z"))

	c.Invalidate(5)

	_, ok := c.Get(5, "a")
	assert.False(t, ok)
	_, ok = c.Get(5, "b")
	assert.False(t, ok)
	_, ok = c.Get(6, "a")
	assert.True(t, ok, "other partitions must be unaffected")
}

func TestCachePutRecordsMetrics(t *testing.T) {
	coll := metrics.NewCollector("locustdb_cache_test", prometheus.NewRegistry())
	c := NewCache(1<<20, coll)
	c.Put(1, "k", []byte("hello"))
	c.Get(1, "k")
	c.Get(1, "missing")
	// No panics/registration errors is the main assertion here; the
	// collector's counters are exercised via Put/Get above.
}
