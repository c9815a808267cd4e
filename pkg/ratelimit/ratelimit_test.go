package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives the limiter deterministically: sleeps advance the
// clock instead of blocking.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeLimiter(maxCalls int, window time.Duration, buffer int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(maxCalls, window, buffer)
	l.now = func() time.Time { return clock.now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		clock.sleeps = append(clock.sleeps, d)
		clock.now = clock.now.Add(d)
		return ctx.Err()
	}
	return l, clock
}

func TestAcquireBelowBudgetDoesNotBlock(t *testing.T) {
	l, clock := newFakeLimiter(300, 5*time.Minute, 10)

	for i := 0; i < 290; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no waits below the budget, got %d", len(clock.sleeps))
	}
}

func TestAcquireBlocksAtBudget(t *testing.T) {
	l, clock := newFakeLimiter(300, 5*time.Minute, 10)

	// cap=300, buffer=10: 290 calls fit; the 291st must wait for the
	// oldest entry to age out, plus the fixed margin.
	for i := 0; i < 290; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("blocked Acquire failed: %v", err)
	}

	if len(clock.sleeps) == 0 {
		t.Fatal("291st call should have waited")
	}
	want := 5*time.Minute + margin
	if clock.sleeps[0] != want {
		t.Errorf("first wait = %v, want %v", clock.sleeps[0], want)
	}
}

func TestAcquireAfterWindowAgesOut(t *testing.T) {
	l, clock := newFakeLimiter(300, 5*time.Minute, 10)

	for i := 0; i < 290; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}

	// Once the window has passed, the budget is fully available again.
	clock.now = clock.now.Add(5*time.Minute + time.Second)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after window failed: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no waits after the window aged out, got %d", len(clock.sleeps))
	}
}

func TestRemaining(t *testing.T) {
	l, _ := newFakeLimiter(300, 5*time.Minute, 10)

	if got := l.Remaining(); got != 290 {
		t.Fatalf("Remaining = %d, want 290", got)
	}
	for i := 0; i < 5; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	}
	if got := l.Remaining(); got != 285 {
		t.Errorf("Remaining = %d, want 285", got)
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	l, _ := newFakeLimiter(2, time.Minute, 0)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	}

	cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Error("Acquire should fail once the context is cancelled")
	}
}
