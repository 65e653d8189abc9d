package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/heysubinoy/etagkv/pkg/state"
)

const tracerName = "github.com/heysubinoy/etagkv/pkg/state"

// TracingObserver records one span per completed operation, back-dated to
// when the operation started. Attempt events are ignored.
type TracingObserver struct {
	tracer trace.Tracer
}

var _ state.Observer = (*TracingObserver)(nil)

// NewTracingObserver uses tp, or the global tracer provider when tp is nil.
func NewTracingObserver(tp trace.TracerProvider) *TracingObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingObserver{tracer: tp.Tracer(tracerName)}
}

func (o *TracingObserver) Observe(ctx context.Context, ev state.Event) {
	if ev.Kind == state.EventAttempt {
		return
	}
	end := time.Now()
	_, span := o.tracer.Start(ctx, "state."+ev.Op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(end.Add(-ev.Duration)),
		trace.WithAttributes(
			attribute.String("etagkv.store", ev.Store),
			attribute.String("etagkv.key", ev.Key),
			attribute.Bool("etagkv.conditional", ev.ETag.IsSet()),
			attribute.String("etagkv.outcome", ev.Kind.String()),
		),
	)
	if ev.Kind == state.EventFailure {
		span.RecordError(ev.Err)
		span.SetStatus(codes.Error, ev.Err.Error())
	}
	span.End(trace.WithTimestamp(end))
}
