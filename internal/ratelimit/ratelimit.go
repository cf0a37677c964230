package ratelimit

import (
	"fmt"
	"sync"
	"time"

	apperr "tradedesk/internal/errors"
)

// Limiter enforces a per-key cap over a sliding window. Calls past the cap
// are rejected immediately rather than queued.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	calls  map[string][]time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		calls:  make(map[string][]time.Time),
	}
}

// WithClock swaps the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records a call for key if the sliding-window budget permits it.
// A zero or negative limit disables the limiter.
func (l *Limiter) Allow(key string) error {
	if l.limit <= 0 {
		return nil
	}

	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.calls[key][:0]
	for _, ts := range l.calls[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.limit {
		l.calls[key] = recent
		return apperr.New(apperr.CodeRateLimited,
			fmt.Sprintf("rate limit reached for %s (%d calls per %s)", key, l.limit, l.window))
	}

	l.calls[key] = append(recent, now)
	return nil
}

// Remaining reports how many calls key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	if l.limit <= 0 {
		return -1
	}
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	used := 0
	for _, ts := range l.calls[key] {
		if ts.After(cutoff) {
			used++
		}
	}
	if used > l.limit {
		used = l.limit
	}
	return l.limit - used
}
