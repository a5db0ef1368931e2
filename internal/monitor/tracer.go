package monitor

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "submission-grader"

// Tracer wraps OpenTelemetry tracing for the grading pipeline.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("grader.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// CodeHash is a short stable digest of a source for span attributes and caches.
func CodeHash(code string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(code))
}

// Common attribute keys for grader tracing.
var (
	AttrSubmissionID = attribute.Key("grader.submission.id")
	AttrLanguage     = attribute.Key("grader.language")
	AttrCodeHash     = attribute.Key("grader.code_hash")
	AttrCaseCount    = attribute.Key("grader.case_count")
	AttrScore        = attribute.Key("grader.score")
	AttrProfile      = attribute.Key("grader.analysis.profile")
	AttrBatchSize    = attribute.Key("grader.batch_size")
	AttrModel        = attribute.Key("grader.perf.model")
)
