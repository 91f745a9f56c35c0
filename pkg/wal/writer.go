package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/logger"
	"github.com/locustdb/locustdb/pkg/metrics"
)

// Writer is the single-writer append log. Segment ids are strictly
// increasing (spec.md §3 invariant); callers serialize through mu so
// that "append to durable log" happens before the caller applies the
// batch to the in-memory write buffer, matching §7's write-path
// atomicity contract.
type Writer struct {
	dir        string
	mu         sync.Mutex
	nextID     atomic.Uint64
	fsyncEach  bool
	collector  *metrics.Collector
}

// NewWriter opens (creating if needed) the wal/ directory under dir,
// resuming id allocation after the highest existing segment id.
func NewWriter(dir string, fsyncEach bool, collector *metrics.Collector) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "create wal directory").WithDetail("dir", dir)
	}
	w := &Writer{dir: dir, fsyncEach: fsyncEach, collector: collector}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "list wal directory").WithDetail("dir", dir)
	}
	var maxID uint64
	found := false
	for _, e := range entries {
		var id uint64
		if _, err := fmt.Sscanf(e.Name(), "%d", &id); err == nil {
			found = true
			if id > maxID {
				maxID = id
			}
		}
	}
	if found {
		w.nextID.Store(maxID + 1)
	}
	return w, nil
}

// Append allocates the next segment id, serializes tables, writes and
// (if configured) fsyncs the segment file, and returns the id used.
// The caller must not apply the batch to the write buffer until this
// returns successfully.
func (w *Writer) Append(tables []TableSegment) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID.Load()
	seg := Segment{ID: id, Tables: tables}
	data, err := seg.Marshal()
	if err != nil {
		return 0, dberrors.Wrap(err, dberrors.Internal, "marshal wal segment")
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%020d", id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644) //nolint:gosec
	if err != nil {
		return 0, dberrors.Wrap(err, dberrors.Io, "create wal segment file").WithDetail("path", path)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return 0, dberrors.Wrap(err, dberrors.Io, "write wal segment").WithDetail("path", path)
	}
	if w.fsyncEach {
		if err := f.Sync(); err != nil {
			return 0, dberrors.Wrap(err, dberrors.Io, "fsync wal segment").WithDetail("path", path)
		}
	}

	w.nextID.Store(id + 1)
	if w.collector != nil {
		w.collector.WALSegmentsWritten.Inc()
	}
	logger.Get().Debug("wal segment appended", zap.Uint64("segment_id", id), zap.Int("tables", len(tables)))
	return id, nil
}

// NextID returns the id that will be assigned to the next Append.
func (w *Writer) NextID() uint64 { return w.nextID.Load() }

// GC removes every segment file with id strictly less than
// belowID. Called only after metadata recording the corresponding
// sealed partition has been durably written (spec.md §4.5).
func (w *Writer) GC(belowID uint64) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return dberrors.Wrap(err, dberrors.Io, "list wal directory for gc")
	}
	for _, e := range entries {
		var id uint64
		if _, err := fmt.Sscanf(e.Name(), "%d", &id); err != nil {
			continue
		}
		if id < belowID {
			_ = os.Remove(filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}
