package rotation

import (
	"sync"
	"sync/atomic"
)

// Counter is a rotation index advanced atomically with modulo
type Counter struct {
	v atomic.Int64
}

// Load returns the current index
func (c *Counter) Load() int {
	return int(c.v.Load())
}

// Store overwrites the index
func (c *Counter) Store(i int) {
	c.v.Store(int64(i))
}

// Advance moves the index to (index+1) mod n and returns the index it
// replaced, reduced modulo n. A non-positive n leaves the counter untouched.
func (c *Counter) Advance(n int) int {
	if n <= 0 {
		return 0
	}
	for {
		old := c.v.Load()
		prev := Mod(int(old), n)
		if c.v.CompareAndSwap(old, int64(Next(prev, n))) {
			return prev
		}
	}
}

// State holds the two rotation counters of one short entry
type State struct {
	Destination Counter
	Og          Counter
}

// Arena maps entry ids to their rotation state
type Arena struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewArena creates an empty arena
func NewArena() *Arena {
	return &Arena{states: make(map[string]*State)}
}

// Get returns the state for id, creating it on first use
func (a *Arena) Get(id string) *State {
	a.mu.RLock()
	st, ok := a.states[id]
	a.mu.RUnlock()
	if ok {
		return st
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok = a.states[id]; ok {
		return st
	}
	st = &State{}
	a.states[id] = st
	return st
}
