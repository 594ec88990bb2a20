package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() *Config {
	return &Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), nil, "connect", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})
	if err != nil || got != 42 || calls != 3 {
		t.Fatalf("got %d, err %v after %d calls", got, err, calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	cause := errors.New("down")
	_, err := Do(context.Background(), fastConfig(), nil, "connect", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestPermanentStopsImmediately(t *testing.T) {
	cause := errors.New("bad url")
	calls := 0
	_, err := Do(context.Background(), fastConfig(), nil, "connect", func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})
	if err != cause || calls != 1 {
		t.Fatalf("expected single attempt returning cause, got %v after %d", err, calls)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := &Config{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffMultiplier: 2}
	if d := calculateBackoff(5, cfg); d != 3*time.Second {
		t.Fatalf("expected cap, got %v", d)
	}
}
