package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/consulkit/errors"
)

// Operation tracks one traced and measured registry call.
type Operation struct {
	Registry  string
	Name      string
	StartTime time.Time

	span    trace.Span
	metrics *Metrics
}

// StartOperation opens a span named "registry.<operation>" and returns the
// derived context. metrics may be nil.
func StartOperation(ctx context.Context, metrics *Metrics, registry, operation string, attrs ...attribute.KeyValue) (context.Context, *Operation) {
	ctx, span := StartSpan(ctx, "registry."+operation, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String(AttrRegistry, registry),
		attribute.String(AttrOperation, operation),
	)
	span.SetAttributes(attrs...)
	return ctx, &Operation{
		Registry:  registry,
		Name:      operation,
		StartTime: time.Now(),
		span:      span,
		metrics:   metrics,
	}
}

// End closes the span and records the outcome. A non-nil err marks the span
// as failed and is counted under its AppError code.
func (op *Operation) End(ctx context.Context, err error) {
	duration := time.Since(op.StartTime)
	status := "ok"

	if err != nil {
		status = "error"
		code := string(errors.CodeOf(err))
		if code == "" {
			code = string(errors.ErrCodeInternal)
		}
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
		op.span.SetAttributes(attribute.String(AttrErrorCode, code))
		op.metrics.RecordError(ctx, code, op.Registry)
	}

	op.span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	op.span.End()
	op.metrics.RecordOperation(ctx, op.Registry, op.Name, status, duration)
}

// Duration returns the elapsed time since the operation started.
func (op *Operation) Duration() time.Duration {
	return time.Since(op.StartTime)
}
