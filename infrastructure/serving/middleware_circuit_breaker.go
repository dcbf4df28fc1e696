package serving

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a request
// without calling the model.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is the current state of a circuit breaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed allows all requests through.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects requests until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a single trial request through to test whether the
	// endpoint recovered. Other callers fail fast until it finishes.
	StateHalfOpen
)

// String returns the state name used in logs and metric labels.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and stays
// open for the cooldown before sending a trial request.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	lastFailure      time.Time
	trialInFlight    bool
	now              func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldownDuration,
		now:              time.Now,
	}
}

// allow reports whether a request may proceed, moving an expired open
// circuit to half-open. In half-open only one caller is admitted until
// record or release runs for it.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.cooldownDuration {
			return false
		}
		cb.state = StateHalfOpen
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
	default:
		return true
	}
	cb.trialInFlight = true
	return true
}

// release frees the half-open slot without judging the endpoint.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialInFlight = false
	if err == nil {
		cb.failureCount = 0
		cb.state = StateClosed
		return
	}
	cb.failureCount++
	cb.lastFailure = cb.now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type circuitBreakerScorer struct {
	next Scorer
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware fails fast with ErrCircuitOpen while the
// endpoint is failing. Caller cancellations do not count as failures.
func CircuitBreakerMiddleware(cb *CircuitBreaker) Middleware {
	return func(next Scorer) Scorer {
		return &circuitBreakerScorer{next: next, cb: cb}
	}
}

func (c *circuitBreakerScorer) Score(ctx context.Context, req RowRequest) (RowResponse, error) {
	if !c.cb.allow() {
		return RowResponse{}, ErrCircuitOpen
	}
	resp, err := c.next.Score(ctx, req)
	if errors.Is(err, context.Canceled) {
		c.cb.release()
		return resp, err
	}
	c.cb.record(err)
	return resp, err
}

func (c *circuitBreakerScorer) Endpoint() string { return c.next.Endpoint() }
