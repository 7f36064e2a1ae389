package rtspsession

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponentialBackoffDoublesAndCaps(t *testing.T) {
	b := ExponentialBackoff(100*time.Millisecond, 800*time.Millisecond)
	want := []time.Duration{100, 200, 400, 800, 800}
	for i, w := range want {
		got := b(i + 1)
		if got != w*time.Millisecond {
			t.Errorf("attempt %d: got %v, want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestFixedBackoffIsConstant(t *testing.T) {
	b := FixedBackoff(500 * time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := b(attempt); got != 500*time.Millisecond {
			t.Errorf("attempt %d: got %v, want 500ms", attempt, got)
		}
	}
}

func TestRunWithReconnectSucceedsAfterRetries(t *testing.T) {
	tries := 0
	connect := func(ctx context.Context) error {
		tries++
		if tries < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	var attempts []int
	err := runWithReconnect(context.Background(), connect, 0, FixedBackoff(time.Millisecond), func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tries != 3 {
		t.Errorf("got %d connect calls, want 3", tries)
	}
	if len(attempts) != 2 {
		t.Errorf("got %d onAttempt calls, want 2", len(attempts))
	}
}

func TestRunWithReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	connect := func(ctx context.Context) error {
		return errors.New("timeout")
	}
	err := runWithReconnect(context.Background(), connect, 3, FixedBackoff(time.Millisecond), nil)
	if err == nil {
		t.Fatal("expected error after exhausting max attempts")
	}
}

func TestRunWithReconnectRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runWithReconnect(ctx, func(context.Context) error { return errors.New("nope") }, 0, FixedBackoff(time.Millisecond), nil)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
