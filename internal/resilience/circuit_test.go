package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedState_PassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	fail := func(_ context.Context) error { return errors.New("fail") }
	ok := func(_ context.Context) error { return nil }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), ok)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("fail") })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	now = now.Add(2 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open state, got %s", cb.State())
	}

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "trial", nil
	})
	if err != nil || val != "trial" {
		t.Fatalf("expected successful trial call, got %q, %v", val, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after trial call, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	fail := func(_ context.Context) error { return errors.New("fail") }
	_ = cb.Execute(context.Background(), fail)
	now = now.Add(2 * time.Second)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != CircuitOpen {
		t.Errorf("expected open after failed trial call, got %s", cb.State())
	}
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return context.Canceled })

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}
