package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// MemoryLimiter is a process-local fixed-window limiter
type MemoryLimiter struct {
	policy Policy
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter creates a limiter; a non-positive window uses DefaultWindow
func NewMemoryLimiter(policy Policy, windowLen time.Duration) *MemoryLimiter {
	if windowLen <= 0 {
		windowLen = DefaultWindow
	}
	return &MemoryLimiter{
		policy:  policy,
		window:  windowLen,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// WithClock replaces the time source, for tests
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Allow implements Limiter
func (l *MemoryLimiter) Allow(ctx context.Context, class Class, clientKey string, authenticated bool) (bool, error) {
	limit, err := l.policy.limit(class, authenticated)
	if err != nil {
		return true, err
	}

	key := windowKey(class, clientKey)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++

	return w.count <= limit, nil
}

// Sweep drops windows that have expired and returns how many were removed
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}

// Run sweeps expired windows every interval until ctx is done
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
