package serving

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimitedScorer paces requests with a token bucket so the model
// endpoint's quota is never exceeded.
type rateLimitedScorer struct {
	next    Scorer
	limiter *rate.Limiter
}

// RateLimitMiddleware limits requests to limit per second with the given
// burst. The bucket is shared by every scorer the middleware wraps.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next Scorer) Scorer {
		return &rateLimitedScorer{next: next, limiter: limiter}
	}
}

// Score blocks until a token is available or ctx ends.
func (r *rateLimitedScorer) Score(ctx context.Context, req RowRequest) (RowResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return RowResponse{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Score(ctx, req)
}

func (r *rateLimitedScorer) Endpoint() string { return r.next.Endpoint() }
