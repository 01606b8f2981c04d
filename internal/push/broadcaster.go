// ABOUTME: In-memory fan-out of store changes keyed by owner and session topics
// ABOUTME: Slow subscribers drop changes; every consumer re-reads the store on receipt

package push

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/scout-desk/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// OwnerTopic is the topic carrying every change for one owner.
func OwnerTopic(ownerID string) string { return "owner:" + ownerID }

// SessionTopic is the topic carrying changes scoped to one session.
func SessionTopic(sessionID string) string { return "session:" + sessionID }

type subscription struct {
	ch   chan store.Change
	stop chan struct{}
}

// Broadcaster provides in-memory pub/sub for committed store changes.
// Delivery is at-least-once from the store's point of view but lossy per
// subscriber: a full buffer drops the change for that subscriber only.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscription // topic -> subID -> sub
	closed      bool
	done        chan struct{}
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]*subscription),
		done:        make(chan struct{}),
		logger:      logger.With("component", "push"),
	}
}

// Subscribe registers a subscriber for changes on the given topic.
// Returns a channel that receives changes and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled. Subscribing to a closed broadcaster yields a closed channel.
func (b *Broadcaster) Subscribe(ctx context.Context, topic string) (<-chan store.Change, string) {
	subID := uuid.New().String()
	sub := &subscription{
		ch:   make(chan store.Change, subscriberBufferSize),
		stop: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, subID
	}
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[string]*subscription)
	}
	b.subscribers[topic][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(topic, subID)
		case <-sub.stop:
		case <-b.done:
		}
	}()

	return sub.ch, subID
}

// Publish sends a change to all subscribers of the given topic.
// Non-blocking: changes are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(topic string, change store.Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subscribers[topic] {
		select {
		case sub.ch <- change:
		default:
			b.logger.Debug("dropped change for slow subscriber",
				"topic", topic,
				"sub_id", id,
				"table", change.Table,
				"row_id", change.RowID)
		}
	}
}

// Notify implements store.Notifier by publishing to the owner topic and,
// for session-scoped rows, the session topic.
func (b *Broadcaster) Notify(c store.Change) {
	if c.OwnerID != "" {
		b.Publish(OwnerTopic(c.OwnerID), c)
	}
	if c.SessionID != "" {
		b.Publish(SessionTopic(c.SessionID), c)
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	sub, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(sub.ch)
	close(sub.stop)

	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}

	b.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// SubscriberCount reports the number of live subscriptions on a topic.
func (b *Broadcaster) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)

	for topic, subs := range b.subscribers {
		for subID, sub := range subs {
			close(sub.ch)
			delete(subs, subID)
		}
		delete(b.subscribers, topic)
	}

	b.logger.Debug("broadcaster closed")
}

var _ store.Notifier = (*Broadcaster)(nil)
