package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/logger"
)

// Replay reads every segment with id >= fromID, in id order, and
// returns their table batches for reapplication to the in-memory
// write buffer (spec.md §4.5 recovery). A corrupt frame is logged and
// skipped rather than failing recovery outright, matching §7's
// CorruptData policy for WAL replay ("best-effort, consistent with
// the small ingestion loss acceptable non-goal").
func Replay(dir string, fromID uint64) ([]TableSegment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dberrors.Wrap(err, dberrors.Io, "list wal directory").WithDetail("dir", dir)
	}

	type idFile struct {
		id   uint64
		name string
	}
	var files []idFile
	for _, e := range entries {
		var id uint64
		if _, err := fmt.Sscanf(e.Name(), "%d", &id); err != nil {
			continue
		}
		if id >= fromID {
			files = append(files, idFile{id: id, name: e.Name()})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })

	var out []TableSegment
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name)) //nolint:gosec
		if err != nil {
			logger.Get().Warn("wal replay: unreadable segment, skipping", zap.Uint64("segment_id", f.id), zap.Error(err))
			continue
		}
		seg, err := Unmarshal(data)
		if err != nil {
			logger.Get().Warn("wal replay: corrupt segment, skipping", zap.Uint64("segment_id", f.id), zap.Error(err))
			continue
		}
		out = append(out, seg.Tables...)
	}
	return out, nil
}
