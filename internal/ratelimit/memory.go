package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// window holds one key's admitted-request instants, oldest first.
// Each window carries its own mutex: prune+append for the same key from
// parallel requests is a data race otherwise.
type window struct {
	mu    sync.Mutex
	times []time.Time
}

// MemoryCounter is the in-process sliding-window counter. State is lost
// on restart and not shared across instances.
type MemoryCounter struct {
	keys      *xsync.MapOf[string, *window]
	retention time.Duration
	now       func() time.Time
}

// NewMemoryCounter creates a counter whose periodic sweep prunes keys to
// the given retention horizon.
func NewMemoryCounter(retention time.Duration) *MemoryCounter {
	return &MemoryCounter{
		keys:      xsync.NewMapOf[string, *window](),
		retention: retention,
		now:       time.Now,
	}
}

// Allow implements Counter.
func (c *MemoryCounter) Allow(_ context.Context, key string, windowDur time.Duration, max int) bool {
	w, _ := c.keys.LoadOrCompute(key, func() *window { return &window{} })

	w.mu.Lock()
	defer w.mu.Unlock()

	now := c.now()
	w.prune(now.Add(-windowDur))

	if len(w.times) >= max {
		return false
	}

	w.times = append(w.times, now)
	return true
}

// Count implements Counter.
func (c *MemoryCounter) Count(_ context.Context, key string, windowDur time.Duration) int {
	w, ok := c.keys.Load(key)
	if !ok {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(c.now().Add(-windowDur))
	return len(w.times)
}

// RetryAfter implements Counter.
func (c *MemoryCounter) RetryAfter(_ context.Context, key string, windowDur time.Duration) time.Duration {
	w, ok := c.keys.Load(key)
	if !ok {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := c.now()
	w.prune(now.Add(-windowDur))
	if len(w.times) == 0 {
		return 0
	}
	return w.times[0].Add(windowDur).Sub(now)
}

// Sweep prunes every key to the retention horizon and drops keys left
// empty, bounding memory for abandoned sources. It runs on a fixed
// schedule, off the admission path.
func (c *MemoryCounter) Sweep() {
	cutoff := c.now().Add(-c.retention)
	c.keys.Range(func(key string, w *window) bool {
		w.mu.Lock()
		w.prune(cutoff)
		empty := len(w.times) == 0
		w.mu.Unlock()
		if empty {
			c.keys.Delete(key)
		}
		return true
	})
}

// Keys reports how many keys are currently tracked.
func (c *MemoryCounter) Keys() int {
	return c.keys.Size()
}

// prune drops timestamps at or before the cutoff. Caller holds w.mu.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}
