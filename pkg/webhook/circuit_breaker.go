package webhook

import (
	"sync"
	"time"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreakerConfig holds the parameters for a circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
}

// CircuitBreaker stops deliveries to an endpoint after repeated failures
// and lets a probe through once ResetTimeout has passed.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      CircuitBreakerConfig
	now         func() time.Time
	state       BreakerState
	failures    int
	probes      int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = 1
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	return &CircuitBreaker{
		config: cfg,
		now:    time.Now,
		state:  StateClosed,
	}
}

// AllowRequest reports whether a delivery should be attempted.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) > cb.config.ResetTimeout {
		cb.state = StateHalfOpen
		cb.probes = 0
		return true
	}
	return false
}

// RecordSuccess records a successful delivery.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.probes++
		if cb.probes < cb.config.HalfOpenMaxAttempts {
			return
		}
	}
	cb.state = StateClosed
}

// RecordFailure records a failed delivery. A failed probe reopens the
// breaker immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.state = StateOpen
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
