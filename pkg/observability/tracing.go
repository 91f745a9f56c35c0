// Package observability wires OpenTelemetry tracing around query
// execution: one span per submitted query, with a child span per
// partition task fanned out by the scheduler (spec.md §4.4, §5).
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/locustdb/locustdb"

// Config controls how the tracer provider is constructed.
type Config struct {
	// ServiceName identifies this process in exported spans.
	ServiceName string

	// Enabled turns tracing on. When false, Init installs a no-op
	// TracerProvider and span creation is nearly free.
	Enabled bool
}

var (
	initOnce sync.Once
	tp       trace.TracerProvider = otel.GetTracerProvider()
)

// Init installs the process-wide TracerProvider. Safe to call multiple
// times; only the first call takes effect. Callers should defer the
// returned shutdown function.
func Init(cfg Config) (shutdown func(context.Context) error, err error) {
	var initErr error
	shutdown = func(context.Context) error { return nil }

	initOnce.Do(func() {
		if !cfg.Enabled {
			return
		}

		exporter, e := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if e != nil {
			initErr = e
			return
		}

		res, e := resource.Merge(
			resource.Default(),
			resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName)),
		)
		if e != nil {
			initErr = e
			return
		}

		provider := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
		tp = provider
		shutdown = provider.Shutdown
	})

	return shutdown, initErr
}

// Tracer returns the package tracer, drawing from whatever
// TracerProvider is currently installed (no-op until Init runs).
func Tracer() trace.Tracer {
	return tp.Tracer(tracerName)
}

// StartQuerySpan opens the top-level span for a submitted query,
// tagging it with the table name and query id (pkg/logger's context
// keys carry the same values through structured logs).
func StartQuerySpan(ctx context.Context, table, queryID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "query.execute",
		trace.WithAttributes(
			attribute.String("table", table),
			attribute.String("query_id", queryID),
		),
	)
}

// StartPartitionSpan opens a child span for one partition's scan
// within a query. Scheduler.Run opens it as it dispatches the task and
// ends it once the task is enqueued (or, when the queue is full, after
// running the task inline).
func StartPartitionSpan(ctx context.Context, partitionID uint64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "query.scan_partition",
		trace.WithAttributes(
			attribute.Int64("partition_id", int64(partitionID)),
		),
	)
}

// StartIngestSpan opens a span around one WAL append + in-memory
// buffer insert.
func StartIngestSpan(ctx context.Context, table string, rows int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "table.ingest",
		trace.WithAttributes(
			attribute.String("table", table),
			attribute.Int("rows", rows),
		),
	)
}
