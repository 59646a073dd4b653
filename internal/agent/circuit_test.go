package agent

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultCircuitBreakerConfig()

	if cfg.FailureThreshold <= 0 {
		t.Errorf("FailureThreshold should be positive, got %d", cfg.FailureThreshold)
	}
	if cfg.SuccessThreshold <= 0 {
		t.Errorf("SuccessThreshold should be positive, got %d", cfg.SuccessThreshold)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout should be positive, got %v", cfg.Timeout)
	}
}

func TestNewCircuitBreakerAppliesDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.failureThreshold <= 0 {
		t.Error("should apply default failure threshold")
	}
	if cb.successThreshold <= 0 {
		t.Error("should apply default success threshold")
	}
	if cb.timeout <= 0 {
		t.Error("should apply default timeout")
	}
	if cb.State() != CircuitClosed {
		t.Error("should start in closed state")
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          100 * time.Millisecond,
	})

	cb.Failure()
	cb.Failure()
	if cb.State() != CircuitClosed {
		t.Error("should remain closed below threshold")
	}

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Error("should open at threshold")
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Fatal("should be open")
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() after timeout = %v, want nil", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("state = %v, want half-open", cb.State())
	}

	// Enough successes close it again.
	cb.Success()
	cb.Success()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed after recovery", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	cb.Failure()
	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() = %v", err)
	}

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Errorf("state = %v, want open after half-open failure", cb.State())
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	})

	cb.Failure()
	cb.Success()
	cb.Failure()
	if cb.State() != CircuitClosed {
		t.Error("success should reset the failure count while closed")
	}
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = cb.Allow()
			if n%2 == 0 {
				cb.Success()
			} else {
				cb.Failure()
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()

	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Error("Reset should close the circuit")
	}
}
