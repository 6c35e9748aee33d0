package gen

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		cb.Failure()
	}
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}

	cb.Failure()
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("state = %v, want open", got)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})

	cb.Failure()
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(5 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected half-open probe to be allowed, got %v", err)
	}
	if got := cb.State(); got != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", got)
	}

	cb.Success()
	cb.Success()
	if got := cb.State(); got != CircuitClosed {
		t.Fatalf("state = %v, want closed after recovery", got)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})

	cb.Failure()
	time.Sleep(5 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() = %v", err)
	}

	cb.Failure()
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("state = %v, want open after half-open failure", got)
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
