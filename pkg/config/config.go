// Package config provides the configuration structures for the LocustDB
// core: partition sizing, worker pool sizing, memory budgets, WAL fsync
// policy, and disk cache sizing. Values map onto the CLI flags enumerated
// in spec.md §6.
package config

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// DBConfig is the single configuration structure the storage manager,
// WAL writer, and scheduler are built from.
type DBConfig struct {
	// DBPath is the root directory for meta/, wal/, and parts/.
	DBPath string `yaml:"db_path" json:"db_path"`

	// PartitionSize is the row count of a full partition (--partition-size).
	PartitionSize int `yaml:"partition_size" json:"partition_size"`

	// Threads is the scheduler's worker pool size (--threads).
	Threads int `yaml:"threads" json:"threads"`

	// ReadaheadMB controls the disk cache's read-ahead window (--readahead).
	ReadaheadMB int `yaml:"readahead_mb" json:"readahead_mb"`

	// MemLimitTablesGB bounds decoded table bytes (--mem-limit-tables). 0
	// means "auto-size from host memory" (see DefaultDBConfig).
	MemLimitTablesGB int `yaml:"mem_limit_tables_gb" json:"mem_limit_tables_gb"`

	// DiskCacheBudgetBytes bounds the encoded subpartition byte cache.
	DiskCacheBudgetBytes int64 `yaml:"disk_cache_budget_bytes" json:"disk_cache_budget_bytes"`

	// MemLZ4 mirrors --mem-lz4: compress decoded in-memory buffers too,
	// not just on-disk sections.
	MemLZ4 bool `yaml:"mem_lz4" json:"mem_lz4"`

	// SeqDiskRead mirrors --seq-disk-read: disable read-ahead reordering
	// and always read subpartitions in on-disk order.
	SeqDiskRead bool `yaml:"seq_disk_read" json:"seq_disk_read"`

	// WALFsyncPerSegment fsyncs the WAL after every appended segment
	// (Open Question decision, SPEC_FULL.md §13.2). Defaults to true;
	// when false, the WAL writer appends segments without fsync.
	WALFsyncPerSegment bool `yaml:"wal_fsync_per_segment" json:"wal_fsync_per_segment"`

	// DefaultQueryTimeout is applied to a query with no explicit deadline.
	// Zero means no timeout.
	DefaultQueryTimeout time.Duration `yaml:"default_query_timeout" json:"default_query_timeout"`
}

// DefaultDBConfig returns the defaults enumerated in spec.md §6.
func DefaultDBConfig() *DBConfig {
	cfg := &DBConfig{
		DBPath:               "./db",
		PartitionSize:        65536,
		Threads:              runtime.NumCPU(),
		ReadaheadMB:          256,
		MemLimitTablesGB:     8,
		DiskCacheBudgetBytes: 2 << 30, // 2GiB
		WALFsyncPerSegment:   true,
	}
	return cfg
}

// MemLimitTablesBytes returns the decoded-table memory budget in bytes. If
// MemLimitTablesGB is zero, it auto-sizes to a quarter of host RAM the way
// the teacher's performance package sizes buffer pools off gopsutil's
// reported system memory, falling back to the CLI default if the host
// memory can't be read.
func (c *DBConfig) MemLimitTablesBytes() int64 {
	if c.MemLimitTablesGB > 0 {
		return int64(c.MemLimitTablesGB) << 30
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		return int64(vm.Total / 4)
	}
	return 8 << 30
}
