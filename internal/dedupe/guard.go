// ABOUTME: Bounded, expiring seen-set that lets each response be rendered at most once
// ABOUTME: Keys are claimed atomically; the first claimer renders, later claimers skip

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type claim struct {
	at   time.Time
	elem *list.Element
}

// Guard remembers claimed keys for a TTL, holding at most maxSize of them.
// The oldest claim is evicted first when full.
type Guard struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // keys, oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard and starts its janitor. Call Close to stop it.
func NewGuard(ttl time.Duration, maxSize int, opts ...Option) *Guard {
	if maxSize <= 0 {
		maxSize = 1
	}
	g := &Guard{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	go g.janitor()
	return g
}

// Key builds the guard key for one response to one session.
func Key(sessionID, responseID string) string {
	return sessionID + "/" + responseID
}

// Claim reports whether the caller is the first to claim key within the TTL.
// A true result means "render it"; false means someone already did.
func (g *Guard) Claim(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if c, ok := g.claims[key]; ok {
		if now.Sub(c.at) < g.ttl {
			return false
		}
		g.order.Remove(c.elem)
		delete(g.claims, key)
	}

	if len(g.claims) >= g.maxSize {
		g.evictOldestLocked()
	}
	g.claims[key] = &claim{at: now, elem: g.order.PushBack(key)}
	return true
}

// claimed reports whether key holds an unexpired claim.
func (g *Guard) claimed(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.claims[key]
	return ok && g.now().Sub(c.at) < g.ttl
}

// size returns the number of held claims, expired or not.
func (g *Guard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

func (g *Guard) evictOldestLocked() {
	front := g.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.claims, key)
}

func (g *Guard) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.done:
			return
		}
	}
}

// sweep drops expired claims. Claims are ordered by age, so it stops at the
// first live one.
func (g *Guard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for e := g.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		c := g.claims[key]
		if c == nil || now.Sub(c.at) < g.ttl {
			return
		}
		next := e.Next()
		g.order.Remove(e)
		delete(g.claims, key)
		e = next
	}
}

// Close stops the janitor. It is safe to call multiple times.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
