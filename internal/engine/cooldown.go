package engine

import (
	"sync"
	"time"
)

// Cooldown suppresses repeated submission of the same trade plan within a
// time window, so an upstream signal source that fires twice does not burn
// two attempts on one opportunity. Safe for concurrent use.
type Cooldown struct {
	mu   sync.Mutex
	seen map[string]time.Time // plan digest -> last accepted time
	ttl  time.Duration
}

// NewCooldown creates a Cooldown with the given suppression window.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Active reports whether key was accepted within the window. A key that is
// not active is recorded as accepted now.
func (c *Cooldown) Active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if last, ok := c.seen[key]; ok && now.Sub(last) < c.ttl {
		return true
	}
	c.seen[key] = now
	return false
}

// Sweep drops expired entries. Called periodically by the runner loop to
// keep the map bounded.
func (c *Cooldown) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, k)
		}
	}
}
