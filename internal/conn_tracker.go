package internal

import "sync"

// ConnTracker caps concurrent websocket connections per remote address.
// A zero limit disables the cap.
type ConnTracker struct {
	mu     sync.Mutex
	open   map[string]int
	perKey int
}

func NewConnTracker(perKey int) *ConnTracker {
	return &ConnTracker{open: make(map[string]int), perKey: perKey}
}

// Acquire reserves a slot for key and reports whether one was free.
func (c *ConnTracker) Acquire(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.perKey > 0 && c.open[key] >= c.perKey {
		return false
	}
	c.open[key]++
	return true
}

func (c *ConnTracker) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count, ok := c.open[key]; ok {
		if count <= 1 {
			delete(c.open, key)
			return
		}
		c.open[key] = count - 1
	}
}

// Open returns the number of connections held by key.
func (c *ConnTracker) Open(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open[key]
}
