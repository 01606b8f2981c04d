// ABOUTME: Tests for Broadcaster fan-out pub/sub
// ABOUTME: Covers topics, Notify routing, slow subscribers, cancellation and goroutine cleanup

package push

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/scout-desk/internal/store"
)

func change(table store.Table, owner, session, row string) store.Change {
	return store.Change{Table: table, Op: store.OpInsert, OwnerID: owner, SessionID: session, RowID: row, At: time.Now()}
}

func receive(t *testing.T, ch <-chan store.Change) store.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return store.Change{}
	}
}

func TestBroadcaster_SubscribersReceivePublishedChange(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx, OwnerTopic("o1"))
	ch2, _ := b.Subscribe(ctx, OwnerTopic("o1"))

	b.Publish(OwnerTopic("o1"), change(store.TableSessions, "o1", "s1", "s1"))

	assert.Equal(t, "s1", receive(t, ch1).RowID)
	assert.Equal(t, "s1", receive(t, ch2).RowID)
}

func TestBroadcaster_TopicsAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	mine, _ := b.Subscribe(ctx, OwnerTopic("o1"))
	theirs, _ := b.Subscribe(ctx, OwnerTopic("o2"))

	b.Publish(OwnerTopic("o1"), change(store.TableSessions, "o1", "", "s1"))

	receive(t, mine)
	select {
	case c := <-theirs:
		t.Fatalf("other owner received %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_NotifyRoutesToOwnerAndSession(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	owner, _ := b.Subscribe(ctx, OwnerTopic("o1"))
	session, _ := b.Subscribe(ctx, SessionTopic("s1"))
	other, _ := b.Subscribe(ctx, SessionTopic("s2"))

	b.Notify(change(store.TableMessages, "o1", "s1", "m1"))
	assert.Equal(t, "m1", receive(t, owner).RowID)
	assert.Equal(t, "m1", receive(t, session).RowID)

	// A report has no session; only the owner topic hears it.
	b.Notify(change(store.TableReports, "o1", "", "r1"))
	assert.Equal(t, "r1", receive(t, owner).RowID)

	select {
	case c := <-other:
		t.Fatalf("unrelated session received %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), OwnerTopic("o1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(OwnerTopic("o1"), change(store.TableSessions, "o1", "", "s"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, id := b.Subscribe(t.Context(), OwnerTopic("o1"))
	b.Unsubscribe(OwnerTopic("o1"), id)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount(OwnerTopic("o1")))

	// Unknown ids are ignored.
	b.Unsubscribe(OwnerTopic("o1"), id)
	b.Unsubscribe("nope", "nope")
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, OwnerTopic("o1"))
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not cleaned up after cancel")
	}
}

func TestBroadcaster_CloseThenSubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	ch, _ := b.Subscribe(context.Background(), OwnerTopic("o1"))
	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(context.Background(), OwnerTopic("o1"))
	_, ok = <-late
	assert.False(t, ok)
	b.Publish(OwnerTopic("o1"), change(store.TableSessions, "o1", "", "s1"))
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			ch, _ := b.Subscribe(ctx, OwnerTopic("o1"))
			b.Publish(OwnerTopic("o1"), change(store.TableSessions, "o1", "", "s"))
			cancel()
			for range ch {
			}
		}()
	}
	wg.Wait()
}

func TestBroadcaster_NoGoroutineLeaks(t *testing.T) {
	b := NewBroadcaster(nil)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 10; i++ {
		b.Subscribe(ctx, OwnerTopic("o1"))
	}
	_, id := b.Subscribe(context.Background(), SessionTopic("s1"))
	b.Unsubscribe(SessionTopic("s1"), id)
	b.Subscribe(context.Background(), SessionTopic("s2"))

	cancel()
	b.Close()

	goleak.VerifyNone(t)
}
