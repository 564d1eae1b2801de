package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartPipelineSpan creates a child span for the full pipeline processing phase.
func StartPipelineSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline."+phase,
		trace.WithAttributes(attribute.String("pipeline.phase", phase)),
	)
}

// SetOCRAttributes adds OCR-stage attributes to the current span: the
// best-of result's confidence and span count, and whether the Vision
// fallback path fired for this job.
func SetOCRAttributes(ctx context.Context, meanConfidence float64, spanCount int, usedVision bool) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Float64("ocr.mean_confidence", meanConfidence),
		attribute.Int("ocr.span_count", spanCount),
		attribute.Bool("ocr.used_vision", usedVision),
	)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
