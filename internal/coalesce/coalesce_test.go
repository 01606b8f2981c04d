// ABOUTME: Tests for the coalescing queue
// ABOUTME: Bursts collapse to the last value, runs never overlap, Run exits on cancel

package coalesce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) record(_ context.Context, v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, v)
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func startQueue(t *testing.T, q *Queue[string]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestQueue_BurstCollapsesToLast(t *testing.T) {
	rec := &recorder{}
	q := New(30*time.Millisecond, rec.record)
	startQueue(t, q)

	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		q.Trigger(id)
	}

	require.Eventually(t, func() bool { return len(rec.values()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"s4"}, rec.values())
	assert.False(t, q.waiting())
}

func TestQueue_SeparateBurstsRunSeparately(t *testing.T) {
	rec := &recorder{}
	q := New(10*time.Millisecond, rec.record)
	startQueue(t, q)

	q.Trigger("a")
	require.Eventually(t, func() bool { return len(rec.values()) == 1 }, time.Second, 5*time.Millisecond)
	q.Trigger("b")
	require.Eventually(t, func() bool { return len(rec.values()) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, rec.values())
}

func TestQueue_ZeroWindowRunsImmediately(t *testing.T) {
	rec := &recorder{}
	q := New(0, rec.record)
	startQueue(t, q)

	q.Trigger("now")
	require.Eventually(t, func() bool { return len(rec.values()) == 1 }, time.Second, time.Millisecond)
}

func TestQueue_TriggersDuringRunAreCollapsed(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var seen []string
	q := New(time.Millisecond, func(_ context.Context, v string) {
		mu.Lock()
		seen = append(seen, v)
		first := len(seen) == 1
		mu.Unlock()
		if first {
			<-release
		}
	})
	startQueue(t, q)

	q.Trigger("first")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)

	q.Trigger("x")
	q.Trigger("y")
	q.Trigger("z")
	time.Sleep(10 * time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "z"}, seen)
}

func TestQueue_CancelStopsArmedTimer(t *testing.T) {
	rec := &recorder{}
	q := New(time.Hour, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx)
	}()

	q.Trigger("never")
	cancel()
	<-done

	assert.Empty(t, rec.values())
}
