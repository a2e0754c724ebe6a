package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorturl/internal/domain"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newEntry(code, url string) *domain.ShortEntry {
	return &domain.ShortEntry{
		ID:   "id-" + code,
		Code: code,
		Destinations: []domain.Destination{
			{ID: "d1", URL: url, Weight: 1},
		},
	}
}

func countingLoader(calls *int32, entry *domain.ShortEntry) Loader {
	return func(ctx context.Context) (*domain.ShortEntry, error) {
		atomic.AddInt32(calls, 1)
		return entry, nil
	}
}

func TestMemoryCache_HitAfterLoad(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	var calls int32

	e1, err := c.GetOrLoad(ctx, "abc", countingLoader(&calls, newEntry("abc", "https://a.example")))
	require.NoError(t, err)
	e2, err := c.GetOrLoad(ctx, "abc", countingLoader(&calls, newEntry("abc", "https://b.example")))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, "https://a.example", e2.Destinations[0].URL)
	assert.NotSame(t, e1, e2)
}

func TestMemoryCache_ReturnsPrivateCopies(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	var calls int32

	e1, err := c.GetOrLoad(ctx, "abc", countingLoader(&calls, newEntry("abc", "https://a.example")))
	require.NoError(t, err)
	e1.Destinations[0].URL = "https://mutated.example"
	e1.CurrentDestinationIndex = 9

	e2, err := c.GetOrLoad(ctx, "abc", countingLoader(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", e2.Destinations[0].URL)
	assert.Equal(t, 0, e2.CurrentDestinationIndex)
}

func TestMemoryCache_MissesAreNotCached(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	var calls int32

	for i := 0; i < 3; i++ {
		e, err := c.GetOrLoad(ctx, "nope", countingLoader(&calls, nil))
		require.NoError(t, err)
		assert.Nil(t, e)
	}
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_LoadErrorNotCached(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	boom := errors.New("db down")

	_, err := c.GetOrLoad(context.Background(), "abc", func(ctx context.Context) (*domain.ShortEntry, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_InvalidateForcesReload(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	var calls int32

	_, err := c.GetOrLoad(ctx, "abc", countingLoader(&calls, newEntry("abc", "https://old.example")))
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "abc"))

	e, err := c.GetOrLoad(ctx, "abc", countingLoader(&calls, newEntry("abc", "https://new.example")))
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", e.Destinations[0].URL)
	assert.Equal(t, int32(2), calls)
}

func TestMemoryCache_KeysIgnoreCase(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	var calls int32

	_, err := c.GetOrLoad(ctx, "AbC", countingLoader(&calls, newEntry("AbC", "https://old.example")))
	require.NoError(t, err)
	_, err = c.GetOrLoad(ctx, "abc", countingLoader(&calls, newEntry("AbC", "https://old.example")))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)

	require.NoError(t, c.Invalidate(ctx, "ABC"))

	e, err := c.GetOrLoad(ctx, "abc", countingLoader(&calls, newEntry("AbC", "https://new.example")))
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", e.Destinations[0].URL)
	assert.Equal(t, int32(2), calls)
}

func TestMemoryCache_SlidingExpiration(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(5 * time.Minute).WithClock(clock.Now)
	ctx := context.Background()
	var calls int32
	loader := countingLoader(&calls, newEntry("abc", "https://a.example"))

	_, err := c.GetOrLoad(ctx, "abc", loader)
	require.NoError(t, err)

	// each hit within the window pushes expiry out again
	for i := 0; i < 3; i++ {
		clock.Advance(4 * time.Minute)
		_, err = c.GetOrLoad(ctx, "abc", loader)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls)

	clock.Advance(5 * time.Minute)
	_, err = c.GetOrLoad(ctx, "abc", loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestMemoryCache_Sweep(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(time.Minute).WithClock(clock.Now)
	var calls int32

	_, err := c.GetOrLoad(context.Background(), "abc", countingLoader(&calls, newEntry("abc", "https://a.example")))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Sweep())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_InvalidateDuringLoadDoesNotRepopulate(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = c.GetOrLoad(ctx, "abc", func(ctx context.Context) (*domain.ShortEntry, error) {
			close(started)
			<-release
			return newEntry("abc", "https://stale.example"), nil
		})
	}()

	<-started
	require.NoError(t, c.Invalidate(ctx, "abc"))
	close(release)
	<-done

	assert.Equal(t, 0, c.Len(), "stale load must not be cached")

	var calls int32
	e, err := c.GetOrLoad(ctx, "abc", countingLoader(&calls, newEntry("abc", "https://fresh.example")))
	require.NoError(t, err)
	assert.Equal(t, "https://fresh.example", e.Destinations[0].URL)
	assert.Equal(t, int32(1), calls)
}

func TestMemoryCache_ConcurrentMissesCoalesce(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	loader := func(ctx context.Context) (*domain.ShortEntry, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return newEntry("abc", "https://a.example"), nil
	}

	var wg sync.WaitGroup
	results := make([]*domain.ShortEntry, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrLoad(ctx, "abc", loader)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(20))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "https://a.example", r.Destinations[0].URL)
	}
}
