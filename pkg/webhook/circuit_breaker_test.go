package webhook

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: threshold, ResetTimeout: reset})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)

	if !cb.AllowRequest() || cb.State() != StateClosed {
		t.Fatal("new breaker should be closed")
	}
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("should still be closed after 1 failure")
	}
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("state = %q, want %q", cb.State(), StateOpen)
	}
	if cb.AllowRequest() {
		t.Error("open breaker should not allow requests")
	}
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	tests := []struct {
		name      string
		probeOK   bool
		wantState BreakerState
	}{
		{"probe succeeds", true, StateClosed},
		{"probe fails", false, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(1, time.Minute)
			cb.RecordFailure()

			clock.t = clock.t.Add(2 * time.Minute)
			if !cb.AllowRequest() {
				t.Fatal("breaker should allow a probe after the reset timeout")
			}
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %q, want half_open", cb.State())
			}

			if tt.probeOK {
				cb.RecordSuccess()
			} else {
				cb.RecordFailure()
			}
			if cb.State() != tt.wantState {
				t.Errorf("state = %q, want %q", cb.State(), tt.wantState)
			}
		})
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("state = %q, want closed", cb.State())
	}
}
