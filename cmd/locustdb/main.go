// Command locustdb is a thin collaborator binary around the storage
// and execution core: it opens or creates a database directory,
// optionally smoke-loads one or more CSV files, runs an optional
// single-column query, and prints either the query's wire-encoded
// result or a stats snapshot. Full ingestion pipelines and a SQL
// front end are collaborator concerns outside this core's boundary
// (spec.md §1).
package main

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/locustdb/locustdb/internal/engine"
	"github.com/locustdb/locustdb/pkg/config"
	"github.com/locustdb/locustdb/pkg/logger"
	"github.com/locustdb/locustdb/pkg/wal"
	"github.com/locustdb/locustdb/pkg/wire"
)

// aggFuncByName resolves the --agg flag to the engine's AggFunc, used
// by the optional post-load smoke query.
var aggFuncByName = map[string]engine.AggFunc{
	"":      engine.AggNone,
	"sum":   engine.AggSum,
	"count": engine.AggCount,
	"min":   engine.AggMin,
	"max":   engine.AggMax,
}

// version is stamped by the release process; left as a placeholder
// default for local builds.
var version = "dev"

// argError marks a usage mistake that should exit with code 2 rather
// than 1, per spec.md §6's exit code table.
type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

func main() {
	_ = godotenv.Load() // optional .env, missing file is not an error

	if err := logger.Init(logger.Config{Level: "info", Development: false}); err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var ae *argError
		if errors.As(err, &ae) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dbPath         string
		table          string
		threads        int
		partitionSize  int
		readaheadMB    int
		memLimitTables int
		memLZ4         bool
		seqDiskRead    bool
		loadFiles      []string
		trips          bool
		reducedTrips   bool
		selectColumn   string
		aggFunc        string
	)

	cmd := &cobra.Command{
		Use:     "locustdb",
		Short:   "LocustDB columnar storage and execution core",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reducedTrips && !trips {
				return &argError{msg: "--reduced-trips requires --trips"}
			}
			if trips {
				table = "trips"
			}

			cfg := config.DefaultDBConfig()
			cfg.DBPath = dbPath
			cfg.Threads = threads
			cfg.PartitionSize = partitionSize
			cfg.ReadaheadMB = readaheadMB
			cfg.MemLimitTablesGB = memLimitTables
			cfg.MemLZ4 = memLZ4
			cfg.SeqDiskRead = seqDiskRead

			db, err := engine.Open(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					logger.Error("close database", zap.Error(cerr))
				}
			}()

			for _, path := range loadFiles {
				rows, err := loadCSVFile(cmd.Context(), db, table, path, reducedTrips)
				if err != nil {
					return fmt.Errorf("load %s: %w", path, err)
				}
				logger.Info("loaded file", zap.String("path", path), zap.Int("rows", rows))
			}

			if selectColumn != "" {
				agg, ok := aggFuncByName[aggFunc]
				if !ok {
					return &argError{msg: fmt.Sprintf("unknown --agg %q", aggFunc)}
				}
				resp, err := runSelectQuery(cmd.Context(), db, table, selectColumn, agg)
				if err != nil {
					return err
				}
				data, err := resp.Marshal()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			stats := db.Stats([]string{table})
			out, err := yaml.Marshal(stats)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db-path", "./db", "database root directory")
	cmd.Flags().StringVar(&table, "table", "default", "table name for --load")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker pool size (0 = CPU count)")
	cmd.Flags().IntVar(&partitionSize, "partition-size", 65536, "rows per partition")
	cmd.Flags().IntVar(&readaheadMB, "readahead", 256, "disk cache readahead window, MB")
	cmd.Flags().IntVar(&memLimitTables, "mem-limit-tables", 8, "decoded table memory budget, GB (0 = auto)")
	cmd.Flags().BoolVar(&memLZ4, "mem-lz4", false, "compress decoded in-memory buffers")
	cmd.Flags().BoolVar(&seqDiskRead, "seq-disk-read", false, "disable read-ahead reordering")
	cmd.Flags().StringSliceVar(&loadFiles, "load", nil, "CSV or CSV.GZ files to ingest at startup")
	cmd.Flags().BoolVar(&trips, "trips", false, "use the NYC taxi trips demo table name")
	cmd.Flags().BoolVar(&reducedTrips, "reduced-trips", false, "cap --trips ingestion to a small smoke-test subset")
	cmd.Flags().StringVar(&selectColumn, "select", "", "run a single-column query instead of printing stats")
	cmd.Flags().StringVar(&aggFunc, "agg", "", "aggregate applied to --select: sum, count, min, or max")
	cmd.SilenceUsage = true

	return cmd
}

// runSelectQuery runs a single-column query (optionally aggregated)
// against table and encodes the result in pkg/wire's transport
// schema, the minimal query path spec.md §6 needs to exercise the
// engine end to end without a SQL front end.
func runSelectQuery(ctx context.Context, db *engine.DB, table, column string, agg engine.AggFunc) (*wire.QueryResponse, error) {
	q := &engine.Query{
		Table:  table,
		Select: []engine.SelectExpr{{Column: column, Agg: agg}},
	}
	res, err := db.Submit(ctx, q)
	if err != nil {
		return nil, err
	}
	return engine.ToWireResponse(res), nil
}

const reducedTripsRowCap = 1000

// loadCSVFile ingests one CSV (optionally gzip-compressed) file into
// table, inferring each column's type from all of its values and
// batching every row into a single IngestBatch, the minimal loader
// spec.md §6 calls for as a smoke-test path (full CSV/gzip ingestion
// stays a collaborator boundary).
func loadCSVFile(ctx context.Context, db *engine.DB, table, path string, reduced bool) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return 0, err
		}
		defer gz.Close()
		r = gz
	}

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return 0, err
	}

	cols := make([]*csvColumn, len(header))
	for i, name := range header {
		cols[i] = &csvColumn{name: name}
	}

	rows := 0
	for {
		if reduced && rows >= reducedTripsRowCap {
			break
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, err
		}
		for i, v := range record {
			if i >= len(cols) {
				break
			}
			cols[i].append(v)
		}
		rows++
	}
	if rows == 0 {
		return 0, nil
	}

	walCols := make([]wal.Column, len(cols))
	for i, c := range cols {
		walCols[i] = c.toWALColumn()
	}

	if _, err := db.Ingest(ctx, engine.IngestBatch{Table: table, Len: rows, Columns: walCols}); err != nil {
		return rows, err
	}
	return rows, nil
}

// csvColumn accumulates one CSV column's raw string values and infers
// its storage kind once fully read: dense int if every value parses as
// int64, dense float if every value parses as float64, dense string
// otherwise.
type csvColumn struct {
	name   string
	values []string
}

func (c *csvColumn) append(v string) { c.values = append(c.values, v) }

func (c *csvColumn) toWALColumn() wal.Column {
	if allParse(c.values, isInt) {
		ints := make([]int64, len(c.values))
		for i, v := range c.values {
			n, _ := strconv.ParseInt(v, 10, 64)
			ints[i] = n
		}
		return wal.Column{Name: c.name, Kind: wal.KindDenseInt, Ints: ints}
	}
	if allParse(c.values, isFloat) {
		floats := make([]float64, len(c.values))
		for i, v := range c.values {
			f, _ := strconv.ParseFloat(v, 64)
			floats[i] = f
		}
		return wal.Column{Name: c.name, Kind: wal.KindDenseFloat, Floats: floats}
	}
	return wal.Column{Name: c.name, Kind: wal.KindDenseString, Strings: append([]string(nil), c.values...)}
}

func allParse(values []string, ok func(string) bool) bool {
	for _, v := range values {
		if !ok(v) {
			return false
		}
	}
	return true
}

func isInt(v string) bool {
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

func isFloat(v string) bool {
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}
