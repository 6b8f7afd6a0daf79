package gateway

import (
	"sync"
	"time"
)

// seenCache is a fixed-window cache of candidate decisions keyed by
// envelope ID. A QoS-1 redelivery of the same candidate is re-answered
// from cache instead of re-evaluated, so used_count is never double-spent
// and approved candidates are never republished twice.
type seenCache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]seenEntry
}

type seenEntry struct {
	result    Result
	expiresAt time.Time
}

// defaultDedupWindow is the window size chosen for the redelivery-dedup
// open question (§9); configurable via Gateway's WithDedupWindow option.
const defaultDedupWindow = 5 * time.Minute

func newSeenCache(window time.Duration) *seenCache {
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &seenCache{
		window:  window,
		entries: make(map[string]seenEntry),
	}
}

// Get returns the cached decision for id, evicting it first if its window
// has already elapsed.
func (c *seenCache) Get(id string, now time.Time) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Result{}, false
	}
	if now.After(e.expiresAt) {
		delete(c.entries, id)
		return Result{}, false
	}
	return e.result, true
}

// Put records the decision for id, valid until now+window.
func (c *seenCache) Put(id string, result Result, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = seenEntry{result: result, expiresAt: now.Add(c.window)}
}

// Sweep drops all entries whose window has elapsed as of now. Callers may
// invoke this periodically to bound memory use; Get already evicts an
// expired entry when it is looked up, so Sweep is an optimization, not a
// correctness requirement.
func (c *seenCache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
		}
	}
}
