package serving

import (
	"context"
	"time"
)

// timeoutScorer bounds each attempt with its own deadline.
type timeoutScorer struct {
	next    Scorer
	timeout time.Duration
}

// TimeoutMiddleware cancels a row request that exceeds timeout. Placed
// inside RetryMiddleware it bounds each attempt; outside it bounds the
// whole retry sequence.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Scorer) Scorer {
		return &timeoutScorer{next: next, timeout: timeout}
	}
}

func (t *timeoutScorer) Score(ctx context.Context, req RowRequest) (RowResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Score(ctx, req)
}

func (t *timeoutScorer) Endpoint() string { return t.next.Endpoint() }
