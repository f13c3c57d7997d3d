package engine

import (
	"context"
	"sync"
	"time"
)

// BreakerState is the circuit breaker position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive transient failures and
// stays open for retryAfter. It then lets exactly one trial call through.
type CircuitBreaker struct {
	maxFailures int
	retryAfter  time.Duration
	now         func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       BreakerState
	probing     bool
}

func NewCircuitBreaker(maxFailures int, retryAfter time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if retryAfter <= 0 {
		retryAfter = 30 * time.Second
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		retryAfter:  retryAfter,
		now:         time.Now,
	}
}

// allow reports whether a call may proceed. In half-open only one caller is
// admitted until it reports back.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.retryAfter {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	cb.state = StateClosed
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = cb.now()
	cb.probing = false
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// recordNeutral ends a trial call without changing the failure count, for
// outcomes that say nothing about engine health.
func (cb *CircuitBreaker) recordNeutral() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.failures = 0
	}
	cb.probing = false
}

// State returns the current position, reporting an expired open breaker as
// half-open.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.retryAfter {
		return StateHalfOpen
	}
	return cb.state
}

// BreakerEngine guards an Engine with a CircuitBreaker.
type BreakerEngine struct {
	inner   Engine
	breaker *CircuitBreaker
}

// WithBreaker wraps inner. Calls made while the breaker is open fail fast
// with an overloaded error.
func WithBreaker(inner Engine, breaker *CircuitBreaker) *BreakerEngine {
	return &BreakerEngine{inner: inner, breaker: breaker}
}

func (b *BreakerEngine) Name() string { return b.inner.Name() }

func (b *BreakerEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if !b.breaker.allow() {
		return nil, Overloaded(b.inner.Name(), ErrCircuitOpen)
	}
	data, err := b.inner.Synthesize(ctx, req)
	switch {
	case err == nil:
		b.breaker.recordSuccess()
	case Retryable(err):
		b.breaker.recordFailure()
	default:
		b.breaker.recordNeutral()
	}
	return data, err
}

// HealthCheck fails while the breaker is open, then defers to the engine.
func (b *BreakerEngine) HealthCheck(ctx context.Context) error {
	if b.breaker.State() == StateOpen {
		return Overloaded(b.inner.Name(), ErrCircuitOpen)
	}
	return b.inner.HealthCheck(ctx)
}

func (b *BreakerEngine) BreakerState() BreakerState {
	return b.breaker.State()
}
