// ABOUTME: Tests for the at-most-once render guard
// ABOUTME: Validates claim semantics, TTL expiry, size-bounded eviction, sweep and concurrency

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGuard_FirstClaimWins(t *testing.T) {
	g := NewGuard(time.Minute, 10)
	defer g.Close()

	key := Key("s1", "req-1")
	assert.True(t, g.Claim(key))
	assert.False(t, g.Claim(key))
	assert.True(t, g.claimed(key))
	assert.False(t, g.claimed(Key("s2", "req-1")))
}

func TestGuard_ClaimExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g := NewGuard(time.Second, 10, WithClock(clock.Now))
	defer g.Close()

	assert.True(t, g.Claim("k"))
	clock.Advance(2 * time.Second)
	assert.False(t, g.claimed("k"))
	assert.True(t, g.Claim("k"), "expired claim should be claimable again")
}

func TestGuard_EvictsOldestWhenFull(t *testing.T) {
	g := NewGuard(time.Minute, 3)
	defer g.Close()

	for i := 0; i < 4; i++ {
		g.Claim(fmt.Sprintf("k%d", i))
	}

	assert.Equal(t, 3, g.size())
	assert.False(t, g.claimed("k0"), "oldest claim should be evicted")
	assert.True(t, g.claimed("k3"))
}

func TestGuard_SweepDropsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g := NewGuard(time.Second, 10, WithClock(clock.Now))
	defer g.Close()

	g.Claim("old-1")
	g.Claim("old-2")
	clock.Advance(2 * time.Second)
	g.Claim("fresh")

	g.sweep()
	assert.Equal(t, 1, g.size())
	assert.True(t, g.claimed("fresh"))
}

func TestGuard_ConcurrentClaimsExactlyOneWinner(t *testing.T) {
	g := NewGuard(time.Minute, 100)
	defer g.Close()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Claim(Key("s1", "req-1")) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestGuard_CloseStopsJanitor(t *testing.T) {
	g := NewGuard(time.Minute, 10)
	g.Close()
	g.Close()

	goleak.VerifyNone(t)
}
