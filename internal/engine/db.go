package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/locustdb/locustdb/pkg/columnar"
	"github.com/locustdb/locustdb/pkg/config"
	"github.com/locustdb/locustdb/pkg/dberrors"
	"github.com/locustdb/locustdb/pkg/dbmeta"
	"github.com/locustdb/locustdb/pkg/logger"
	"github.com/locustdb/locustdb/pkg/metrics"
	"github.com/locustdb/locustdb/pkg/observability"
	"github.com/locustdb/locustdb/pkg/storage"
	"github.com/locustdb/locustdb/pkg/wal"
)

const metaFileName = "meta.json"

// DB is the top-level handle spec.md §6 describes: ingest appends rows
// durably to the write-ahead log and buffers them in memory until a
// partition's worth accumulates, Submit compiles and runs a query
// across the storage manager's sealed partitions, and Stats exposes
// the running collector snapshot plus per-table partition counts.
type DB struct {
	cfg   *config.DBConfig
	meta  *dbmeta.Meta
	walw  *wal.Writer
	mgr   *storage.Manager
	coll  *metrics.Collector
	sched *Scheduler

	mu        sync.Mutex
	memtables map[string]*memTable
}

// memTable buffers not-yet-sealed rows for one table, column by
// column, mirroring the wal.Column shapes it was appended from.
type memTable struct {
	rows    int
	columns map[string]*colAccum
	walIDs  []uint64 // segments contributing to this buffer, oldest first
}

type colAccum struct {
	typ     columnar.ValueType
	ints    []int64
	floats  []float64
	strings []string
}

// Open creates or reopens a DB rooted at cfg.DBPath: it loads (or
// initializes) the metadata catalog, replays the write-ahead log to
// rebuild any not-yet-sealed rows, and starts the query scheduler.
func Open(cfg *config.DBConfig) (*DB, error) {
	if err := os.MkdirAll(filepath.Join(cfg.DBPath, "meta"), 0o755); err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "create meta directory")
	}

	meta, err := loadOrInitMeta(cfg)
	if err != nil {
		return nil, err
	}

	coll := metrics.NewCollector("locustdb", nil)

	walDir := filepath.Join(cfg.DBPath, "wal")
	walw, err := wal.NewWriter(walDir, cfg.WALFsyncPerSegment, coll)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "open wal writer")
	}

	mgr, err := storage.NewManager(cfg, meta, coll)
	if err != nil {
		return nil, err
	}

	db := &DB{
		cfg:       cfg,
		meta:      meta,
		walw:      walw,
		mgr:       mgr,
		coll:      coll,
		sched:     NewScheduler(cfg.Threads, mgr, coll),
		memtables: make(map[string]*memTable),
	}

	tables, err := wal.Replay(walDir, meta.NextWalID())
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.CorruptData, "replay wal")
	}
	for _, ts := range tables {
		db.applyToMemtable(ts)
	}

	logger.Info("opened database", zap.String("path", cfg.DBPath), zap.Int("tables_replayed", len(tables)))
	return db, nil
}

func loadOrInitMeta(cfg *config.DBConfig) (*dbmeta.Meta, error) {
	path := filepath.Join(cfg.DBPath, "meta", metaFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return dbmeta.New(), nil
	}
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "read metadata catalog")
	}
	return dbmeta.Load(data)
}

func (db *DB) saveMeta() error {
	data, err := db.meta.Save()
	if err != nil {
		return err
	}
	path := filepath.Join(db.cfg.DBPath, "meta", metaFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dberrors.Wrap(err, dberrors.Io, "write metadata catalog")
	}
	return nil
}

// Close stops the scheduler and flushes the metadata catalog.
func (db *DB) Close() error {
	db.sched.Close()
	return db.saveMeta()
}

// IngestBatch is one caller-supplied batch of rows for a single table.
type IngestBatch struct {
	Table   string
	Len     int
	Columns []wal.Column
}

// Ack confirms a batch was durably appended to the write-ahead log.
type Ack struct {
	WalID uint64
}

// Ingest appends batch to the write-ahead log, folds it into the
// table's in-memory buffer, and seals a new partition once the buffer
// reaches cfg.PartitionSize rows (spec.md §4.5's ingest-then-seal
// pipeline).
func (db *DB) Ingest(ctx context.Context, batch IngestBatch) (Ack, error) {
	ctx, span := observability.StartIngestSpan(ctx, batch.Table, batch.Len)
	defer span.End()

	ts := wal.TableSegment{Table: batch.Table, Len: batch.Len, Columns: batch.Columns}
	walID, err := db.walw.Append([]wal.TableSegment{ts})
	if err != nil {
		return Ack{}, dberrors.Wrap(err, dberrors.Io, "append wal segment")
	}
	db.meta.RegisterWalID(walID)
	db.coll.RowsIngested.Add(float64(batch.Len))

	db.mu.Lock()
	db.applyToMemtableLocked(ts)
	mt := db.memtables[batch.Table]
	mt.walIDs = append(mt.walIDs, walID)
	shouldFlush := mt.rows >= db.cfg.PartitionSize
	db.mu.Unlock()

	if shouldFlush {
		if err := db.flush(ctx, batch.Table); err != nil {
			return Ack{}, err
		}
	}
	return Ack{WalID: walID}, nil
}

func (db *DB) applyToMemtable(ts wal.TableSegment) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.applyToMemtableLocked(ts)
}

func (db *DB) applyToMemtableLocked(ts wal.TableSegment) {
	mt := db.memtables[ts.Table]
	if mt == nil {
		mt = &memTable{columns: make(map[string]*colAccum)}
		db.memtables[ts.Table] = mt
	}
	mt.rows += ts.Len
	for _, c := range ts.Columns {
		acc := mt.columns[c.Name]
		if acc == nil {
			acc = &colAccum{typ: valueTypeForWalColumn(c)}
			mt.columns[c.Name] = acc
		}
		acc.ints = append(acc.ints, c.Ints...)
		acc.floats = append(acc.floats, c.Floats...)
		acc.strings = append(acc.strings, c.Strings...)
	}
}

func valueTypeForWalColumn(c wal.Column) columnar.ValueType {
	switch c.Kind {
	case wal.KindDenseInt, wal.KindSparseInt:
		return columnar.TypeInt
	case wal.KindDenseFloat, wal.KindSparseFloat:
		return columnar.TypeFloat
	case wal.KindDenseString:
		return columnar.TypeString
	default:
		return columnar.TypeNull
	}
}

// flush seals the table's buffered rows into a new partition and
// truncates the write-ahead log up to the watermark that partition
// covers.
func (db *DB) flush(ctx context.Context, table string) error {
	db.mu.Lock()
	mt := db.memtables[table]
	if mt == nil || mt.rows == 0 {
		db.mu.Unlock()
		return nil
	}
	rows := mt.rows
	batches := make([]storage.ColumnBatch, 0, len(mt.columns))
	for name, acc := range mt.columns {
		batches = append(batches, storage.ColumnBatch{
			Name:    name,
			Type:    acc.typ,
			Ints:    acc.ints,
			Floats:  acc.floats,
			Strings: acc.strings,
		})
	}
	delete(db.memtables, table)
	gcBelow := db.oldestPendingWalIDLocked()
	db.mu.Unlock()

	if _, err := db.mgr.Seal(ctx, table, rows, batches); err != nil {
		return err
	}
	if err := db.saveMeta(); err != nil {
		return err
	}
	return db.walw.GC(gcBelow)
}

// oldestPendingWalIDLocked returns the lowest wal id still needed by
// any remaining in-memory buffer, or the writer's next id (meaning
// "everything so far is safe to discard") if nothing is buffered.
// Callers must hold db.mu.
func (db *DB) oldestPendingWalIDLocked() uint64 {
	oldest := db.walw.NextID()
	for _, mt := range db.memtables {
		for _, id := range mt.walIDs {
			if id < oldest {
				oldest = id
			}
		}
	}
	return oldest
}

// Submit compiles q, flushes any buffered rows for its table so the
// query sees them, runs it across the worker pool, and returns the
// merged result.
func (db *DB) Submit(ctx context.Context, q *Query) (*Result, error) {
	if _, ok := ctx.Deadline(); !ok && db.cfg.DefaultQueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.cfg.DefaultQueryTimeout)
		defer cancel()
	}
	if err := db.flush(ctx, q.Table); err != nil {
		return nil, err
	}
	plan, err := Compile(ctx, db.mgr, q)
	if err != nil {
		db.coll.QueryErrors.WithLabelValues(string(errorKind(err))).Inc()
		return nil, err
	}
	return db.sched.Run(ctx, plan)
}

// Stats is the snapshot Executor.Stats() returns per spec.md §6.
type Stats struct {
	metrics.Snapshot
	PartitionsByTable map[string]int
}

// Stats reports the running collector snapshot plus per-table
// partition counts.
func (db *DB) Stats(tables []string) Stats {
	s := Stats{Snapshot: db.coll.Snapshot(), PartitionsByTable: make(map[string]int)}
	for _, t := range tables {
		s.PartitionsByTable[t] = len(db.mgr.PartitionsForTable(t))
	}
	return s
}
