package serving

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracedScorer wraps each row request in a span.
type tracedScorer struct {
	next   Scorer
	tracer trace.Tracer
}

// TracingMiddleware records a span per row request using the global
// tracer provider.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(serviceName)
	return func(next Scorer) Scorer {
		return &tracedScorer{next: next, tracer: tracer}
	}
}

func (t *tracedScorer) Score(ctx context.Context, req RowRequest) (RowResponse, error) {
	ctx, span := t.tracer.Start(ctx, "serving.score",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("serving.endpoint", t.next.Endpoint()),
			attribute.Int("serving.row", req.Row),
			attribute.String("serving.row_id", req.RowID),
			attribute.Int("serving.features", len(req.Features)),
		),
	)
	defer span.End()

	resp, err := t.next.Score(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	span.SetAttributes(
		attribute.Int("serving.prediction", resp.Label),
		attribute.Float64("serving.probability", resp.Probability),
	)
	return resp, nil
}

func (t *tracedScorer) Endpoint() string { return t.next.Endpoint() }
