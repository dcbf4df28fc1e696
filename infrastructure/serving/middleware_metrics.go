package serving

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-bankprep/internal/ports"
)

// metricsScorer records latency and outcome of every row request.
type metricsScorer struct {
	next      Scorer
	collector ports.MetricsCollector
}

// MetricsMiddleware reports per-request latency and counts by status.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next Scorer) Scorer {
		return &metricsScorer{next: next, collector: collector}
	}
}

func (m *metricsScorer) Score(ctx context.Context, req RowRequest) (RowResponse, error) {
	start := time.Now()
	resp, err := m.next.Score(ctx, req)

	if m.collector != nil {
		labels := map[string]string{
			"endpoint": m.next.Endpoint(),
			"status":   status(ctx, err),
		}
		m.collector.RecordHistogram(ports.MetricServingLatency, time.Since(start).Seconds(), labels)
		m.collector.RecordCounter(ports.MetricServingRequests, 1, labels)
	}

	return resp, err
}

func (m *metricsScorer) Endpoint() string { return m.next.Endpoint() }

// status buckets an outcome into a low-cardinality label value.
func status(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ports.ErrTimeout), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ports.ErrAuthenticationFailed):
		return "unauthorized"
	default:
		return "error"
	}
}
