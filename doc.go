// Package locustdb implements an embeddable, single-process columnar
// analytics engine: an append-only write-ahead log feeding partitioned,
// dictionary- and delta-encoded column storage, queried through a
// vectorized, batch-at-a-time operator pipeline.
//
// # Architecture
//
// Ingestion appends rows to a per-table write-ahead log (pkg/wal),
// buffering them in memory until enough rows accumulate to seal a new
// partition. The storage manager (pkg/storage) tracks partition and
// subpartition metadata (pkg/dbmeta) and owns a bounded LRU cache of
// encoded subpartition bytes read back from a pluggable blob store
// (local disk or S3).
//
// Each column is encoded independently by a small stack-based codec
// (pkg/columnar): delta and dictionary encoding, LZ4 and Pco-style
// block compression, Gorilla-style XOR float compression, and hex
// packing for structured string columns. The codec exposes derived
// properties (order-preserving, summation-preserving, fixed-width)
// that the query planner (internal/engine) uses to decide whether an
// operator can run directly against encoded data or must decode first.
//
// Queries compile to an operator graph executed one partition at a
// time by a fixed worker pool (internal/engine/scheduler.go), with
// partial per-partition results merged associatively as they complete
// and, for global ORDER BY, sort-merged at the end.
//
// # Key packages
//
//	pkg/wal            - append-only ingestion log, segment format, recovery
//	pkg/dbmeta         - partition/subpartition metadata, versioned on-disk schema
//	pkg/columnar       - column codec, encoder heuristics, compression
//	pkg/storage        - partition manager, disk cache, blob store
//	pkg/wire           - query response wire schema
//	internal/engine    - planner, operators, scratch pool, scheduler, DB API
//	pkg/config         - configuration and CLI flag defaults
//	pkg/logger         - structured logging
//	pkg/dberrors       - structured error handling
//	pkg/metrics        - Prometheus instrumentation
//	pkg/observability  - OpenTelemetry tracing
package locustdb
