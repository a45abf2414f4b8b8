package hotspot

import "sync/atomic"

// Cache holds the latest committed snapshot. The orchestrator is the single
// writer; broadcast tasks read concurrently. Publication is an atomic
// pointer swap, so readers always observe a fully formed snapshot.
type Cache struct {
	latest atomic.Pointer[Snapshot]
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Set publishes snap as the latest snapshot. Callers must not mutate snap
// after publishing.
func (c *Cache) Set(snap *Snapshot) {
	c.latest.Store(snap)
}

// Latest returns the most recently published snapshot, or nil before the
// first commit.
func (c *Cache) Latest() *Snapshot {
	return c.latest.Load()
}
