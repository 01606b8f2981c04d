// ABOUTME: Timer-armed single-slot queue that collapses bursts of triggers into one run
// ABOUTME: Used for debounced session switching and directory re-resolution

package coalesce

import (
	"context"
	"sync"
	"time"
)

// Queue holds at most one pending value. The first Trigger after an idle
// period arms a timer; triggers before it fires only replace the pending
// value. When the timer fires, Run calls fn with the latest value.
type Queue[T any] struct {
	window time.Duration
	fn     func(ctx context.Context, v T)

	mu      sync.Mutex
	pending T
	has     bool
	timer   *time.Timer
	fire    chan struct{}
}

// New creates a queue that runs fn at most once per window.
func New[T any](window time.Duration, fn func(ctx context.Context, v T)) *Queue[T] {
	return &Queue[T]{
		window: window,
		fn:     fn,
		fire:   make(chan struct{}, 1),
	}
}

// Trigger places v in the slot, replacing any pending value.
func (q *Queue[T]) Trigger(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = v
	q.has = true
	if q.timer != nil {
		return
	}
	if q.window <= 0 {
		q.signalLocked()
		return
	}
	q.timer = time.AfterFunc(q.window, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.signalLocked()
	})
}

func (q *Queue[T]) signalLocked() {
	select {
	case q.fire <- struct{}{}:
	default:
	}
}

// waiting reports whether a value is waiting to run.
func (q *Queue[T]) waiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.has
}

// Run delivers collapsed values to fn until ctx is cancelled. fn runs on the
// Run goroutine, so runs never overlap; triggers that arrive during a run are
// collapsed into the next one.
func (q *Queue[T]) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			if q.timer != nil {
				q.timer.Stop()
				q.timer = nil
			}
			q.mu.Unlock()
			return
		case <-q.fire:
			v, ok := q.take()
			if ok {
				q.fn(ctx, v)
			}
		}
	}
}

func (q *Queue[T]) take() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	v, ok := q.pending, q.has
	q.pending = zero
	q.has = false
	q.timer = nil
	return v, ok
}
