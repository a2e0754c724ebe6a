package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"shorturl/internal/domain"
)

type item struct {
	entry   *domain.ShortEntry
	expires time.Time
}

// MemoryCache is a process-local EntryCache with sliding expiration.
// Concurrent misses for one code share a single store load.
type MemoryCache struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu          sync.Mutex
	items       map[string]*item
	epoch       uint64
	inflight    map[string]int    // loads running per code
	invalidated map[string]uint64 // epoch of the last invalidation seen by a running load
}

// NewMemoryCache creates an in-process cache; a non-positive ttl uses DefaultTTL
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:         ttl,
		now:         time.Now,
		items:       make(map[string]*item),
		inflight:    make(map[string]int),
		invalidated: make(map[string]uint64),
	}
}

// WithClock replaces the time source, for tests
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// GetOrLoad implements EntryCache
func (c *MemoryCache) GetOrLoad(ctx context.Context, code string, load Loader) (*domain.ShortEntry, error) {
	code = key(code)
	if entry, ok := c.lookup(code); ok {
		return entry, nil
	}

	v, err, _ := c.group.Do(code, func() (interface{}, error) {
		return c.load(ctx, code, load)
	})
	if err != nil {
		return nil, err
	}

	entry, _ := v.(*domain.ShortEntry)
	return entry.Clone(), nil
}

func (c *MemoryCache) lookup(code string) (*domain.ShortEntry, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[code]
	if !ok {
		return nil, false
	}
	if !now.Before(it.expires) {
		delete(c.items, code)
		return nil, false
	}
	it.expires = now.Add(c.ttl)
	return it.entry.Clone(), true
}

func (c *MemoryCache) load(ctx context.Context, code string, load Loader) (*domain.ShortEntry, error) {
	c.mu.Lock()
	start := c.epoch
	c.inflight[code]++
	c.mu.Unlock()

	// Waiters share this load, so one caller going away must not fail the rest.
	entry, err := load(context.WithoutCancel(ctx))

	c.mu.Lock()
	defer c.mu.Unlock()

	stale := c.invalidated[code] > start
	c.inflight[code]--
	if c.inflight[code] <= 0 {
		delete(c.inflight, code)
		delete(c.invalidated, code)
	}

	if err != nil || entry == nil {
		return nil, err
	}
	if !stale {
		c.items[code] = &item{entry: entry.Clone(), expires: c.now().Add(c.ttl)}
	}
	return entry, nil
}

// Invalidate implements EntryCache
func (c *MemoryCache) Invalidate(ctx context.Context, code string) error {
	code = key(code)
	c.mu.Lock()
	delete(c.items, code)
	if c.inflight[code] > 0 {
		c.epoch++
		c.invalidated[code] = c.epoch
	}
	c.mu.Unlock()

	c.group.Forget(code)
	return nil
}

// Len returns the number of cached snapshots
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep drops expired snapshots and returns how many were removed
func (c *MemoryCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for code, it := range c.items {
		if !now.Before(it.expires) {
			delete(c.items, code)
			removed++
		}
	}
	return removed
}

// Run sweeps expired snapshots every interval until ctx is done
func (c *MemoryCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Close implements EntryCache
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.items = make(map[string]*item)
	c.mu.Unlock()
	return nil
}
