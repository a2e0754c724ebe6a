package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter() (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryLimiter(DefaultPolicy(), time.Minute).WithClock(clock.Now), clock
}

func allowN(t *testing.T, l Limiter, class Class, key string, authed bool, n int) int {
	t.Helper()
	passed := 0
	for i := 0; i < n; i++ {
		ok, err := l.Allow(context.Background(), class, key, authed)
		require.NoError(t, err)
		if ok {
			passed++
		}
	}
	return passed
}

func TestMemoryLimiter_ExactlyLimitPasses(t *testing.T) {
	l, _ := newTestLimiter()

	assert.Equal(t, 60, allowN(t, l, ClassRedirect, "1.2.3.4", false, 60))

	ok, err := l.Allow(context.Background(), ClassRedirect, "1.2.3.4", false)
	require.NoError(t, err)
	assert.False(t, ok, "request limit+1 must be rejected")
}

func TestMemoryLimiter_WindowRollover(t *testing.T) {
	l, clock := newTestLimiter()

	assert.Equal(t, 5, allowN(t, l, ClassCreation, "k", false, 10))

	clock.Advance(59 * time.Second)
	assert.Equal(t, 0, allowN(t, l, ClassCreation, "k", false, 1))

	clock.Advance(time.Second)
	assert.Equal(t, 5, allowN(t, l, ClassCreation, "k", false, 6))
}

func TestMemoryLimiter_ClassesAndKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()

	assert.Equal(t, 15, allowN(t, l, ClassQR, "a", false, 20))
	assert.Equal(t, 30, allowN(t, l, ClassAPI, "a", false, 40))
	assert.Equal(t, 15, allowN(t, l, ClassQR, "b", false, 20))
}

func TestMemoryLimiter_AuthenticatedThreshold(t *testing.T) {
	l, _ := newTestLimiter()

	assert.Equal(t, 200, allowN(t, l, ClassRedirect, "user-1", true, 250))
	assert.Equal(t, 20, allowN(t, l, ClassCreation, "user-1", true, 25))
	assert.Equal(t, 100, allowN(t, l, ClassAPI, "user-1", true, 120))
	assert.Equal(t, 50, allowN(t, l, ClassQR, "user-1", true, 60))
}

func TestMemoryLimiter_UnknownClassFailsOpen(t *testing.T) {
	l, _ := newTestLimiter()
	ok, err := l.Allow(context.Background(), Class("bogus"), "k", false)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter()
	allowN(t, l, ClassAPI, "a", false, 1)
	allowN(t, l, ClassAPI, "b", false, 1)

	assert.Equal(t, 0, l.Sweep())
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, l.Sweep())
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter()

	var wg sync.WaitGroup
	var mu sync.Mutex
	passed := 0
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Allow(context.Background(), ClassRedirect, "same", false)
			if ok {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 60, passed)
}
