// Package ratelimit provides a sliding-window limiter for outbound
// API calls. The external directory enforces a hard budget per
// interval; this limiter self-throttles below it so the process never
// trips a server-side rejection, even under bursty demand.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// margin added on top of the computed wait so the oldest call is
// guaranteed to have left the window when we proceed.
const margin = time.Second

// Limiter tracks call timestamps over a fixed window and blocks
// callers once the budget (max minus safety buffer) is exhausted.
// Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	calls  []time.Time
	max    int
	buffer int
	window time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(maxCalls int, window time.Duration, safetyBuffer int) *Limiter {
	return &Limiter{
		max:    maxCalls,
		buffer: safetyBuffer,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire blocks until a call slot is available, then records the
// call. It returns early only if ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.calls) < l.max-l.buffer {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}

		// Wait for the oldest call in the window to age out.
		wait := l.window - now.Sub(l.calls[0]) + margin
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Remaining reports how many calls can still be made without blocking.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())

	remaining := l.max - l.buffer - len(l.calls)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// prune drops timestamps that have aged out of the window. Caller
// must hold mu.
func (l *Limiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.calls) && now.Sub(l.calls[cut]) >= l.window {
		cut++
	}
	if cut > 0 {
		l.calls = append(l.calls[:0], l.calls[cut:]...)
	}
}
