package serving

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ahrav/go-bankprep/internal/ports"
)

// retryScorer retries transient failures with exponential backoff.
type retryScorer struct {
	next       Scorer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries a row up to maxRetries times when the failure is
// retryable: rate limiting, timeouts, and unavailable service. A
// Retry-After hint from the server overrides the computed delay.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next Scorer) Scorer {
		return &retryScorer{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// Score forwards req until it succeeds, fails permanently, or retries run out.
func (r *retryScorer) Score(ctx context.Context, req RowRequest) (RowResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := r.next.Score(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			return RowResponse{}, err
		}

		if attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return RowResponse{}, ctx.Err()
		case <-time.After(r.delay(attempt, err)):
		}
	}

	return RowResponse{}, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retryScorer) Endpoint() string { return r.next.Endpoint() }

func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var serr *ports.ServingError
	if errors.As(err, &serr) {
		return serr.IsRetryable()
	}
	return false
}

func (r *retryScorer) delay(attempt int, err error) time.Duration {
	var serr *ports.ServingError
	if errors.As(err, &serr) && serr.RetryAfter != nil {
		return min(*serr.RetryAfter, r.maxDelay)
	}

	// Exponential backoff with jitter.
	attempt = max(0, min(attempt, 30))
	// #nosec G115 - attempt is bounded between 0 and 30
	delay := r.baseDelay * time.Duration(1<<uint(attempt))

	// Add jitter (±25%)
	// #nosec G404 - Using weak RNG is acceptable for jitter calculation
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	return min(delay, r.maxDelay)
}
