package archive

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName matches pkg/telemetry's doc-comment convention of naming the
// tracer after the component emitting spans, not the global service name.
const tracerName = "hprofkit/archive"

// withSpan starts a span named "archive.<stage>" around fn, adapted from
// pkg/telemetry.Init's "otel.Tracer(name).Start(ctx, op)" pattern: spans are
// emitted unconditionally (otel.Tracer returns a no-op tracer when telemetry
// is disabled, per telemetry.Init), so archiver.go never has to branch on
// telemetry.Enabled() itself.
func withSpan(ctx context.Context, stage string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "archive."+stage, trace.WithAttributes(attrs...))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
