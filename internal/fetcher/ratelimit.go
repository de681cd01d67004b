package fetcher

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so window expiry can be simulated in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type userWindow struct {
	start time.Time
	count int
}

// WindowLimiter is a fixed-window rate limiter keyed by user id. The
// window resets lazily on the next request after expiry. State is
// process-wide; a single running instance is assumed.
type WindowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clock   Clock
	windows map[string]*userWindow
}

// NewWindowLimiter creates a limiter allowing limit requests per window
// for each user.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return NewWindowLimiterWithClock(limit, window, realClock{})
}

// NewWindowLimiterWithClock is NewWindowLimiter with an injectable clock.
func NewWindowLimiterWithClock(limit int, window time.Duration, clock Clock) *WindowLimiter {
	return &WindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]*userWindow),
	}
}

// Allow records one request for userID. It returns a RateLimitError when
// the user already spent the whole window budget.
func (l *WindowLimiter) Allow(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.windows[userID]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[userID] = &userWindow{start: now, count: 1}
		return nil
	}
	if w.count >= l.limit {
		return &RateLimitError{
			UserID:     userID,
			RetryAfter: l.window - now.Sub(w.start),
		}
	}
	w.count++
	return nil
}
