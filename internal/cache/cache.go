package cache

import (
	"context"
	"strings"
	"time"

	"shorturl/internal/domain"
)

// DefaultTTL is the sliding lifetime of a cached entry
const DefaultTTL = 5 * time.Minute

// Loader fetches an entry from the store.
// It returns (nil, nil) when the code does not exist; misses are never cached.
type Loader func(ctx context.Context) (*domain.ShortEntry, error)

// key folds a code to the case-insensitive form snapshots are stored under
func key(code string) string {
	return strings.ToLower(code)
}

// EntryCache is a read-through cache of short entry snapshots keyed by code,
// ignoring case.
// Returned entries are private copies the caller may modify.
// This abstraction allows swapping the in-process cache for a shared one.
type EntryCache interface {
	// GetOrLoad returns the cached snapshot or loads, caches and returns it.
	GetOrLoad(ctx context.Context, code string, load Loader) (*domain.ShortEntry, error)

	// Invalidate drops the snapshot for code. A load that started before
	// the call must not repopulate the cache.
	Invalidate(ctx context.Context, code string) error

	// Close releases resources held by the cache
	Close() error
}
