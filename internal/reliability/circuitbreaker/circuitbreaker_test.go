package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Hour)
	fail := func() error { return errors.New("redis down") }

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestHalfOpenClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(1, 1, time.Millisecond)
	_ = cb.Execute(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected trial call to pass, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.GetState())
	}
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(1, 1, time.Hour)
	isCanceled := func(err error) bool { return errors.Is(err, context.Canceled) }

	err := cb.Execute(func() error { return context.Canceled }, isCanceled)
	if !errors.Is(err, context.Canceled) || cb.GetState() != StateClosed {
		t.Fatalf("cancellation should not open the circuit: %v %s", err, cb.GetState())
	}
}
