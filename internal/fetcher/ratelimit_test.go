package fetcher

import (
	"errors"
	"testing"
	"time"
)

// wall-clock constructor used by fetcher.New
func TestNewWindowLimiter_WallClock(t *testing.T) {
	l := NewWindowLimiter(2, time.Minute)
	for i := 0; i < 2; i++ {
		if err := l.Allow("u1"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.Allow("u1"); err == nil {
		t.Error("third request within the window allowed")
	}
}

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestWindowLimiter_EleventhRequestFails(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := NewWindowLimiterWithClock(10, time.Minute, clock)

	for i := 0; i < 10; i++ {
		if err := l.Allow("u1"); err != nil {
			t.Fatalf("request %d unexpectedly limited: %v", i+1, err)
		}
		clock.advance(time.Second)
	}

	err := l.Allow("u1")
	var limited *RateLimitError
	if !errors.As(err, &limited) {
		t.Fatalf("11th request: got %v, want RateLimitError", err)
	}
	if limited.UserID != "u1" {
		t.Errorf("RateLimitError.UserID = %q, want u1", limited.UserID)
	}
	if limited.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", limited.RetryAfter)
	}
}

func TestWindowLimiter_WindowResetsLazily(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := NewWindowLimiterWithClock(10, time.Minute, clock)

	for i := 0; i < 10; i++ {
		if err := l.Allow("u1"); err != nil {
			t.Fatalf("request %d unexpectedly limited: %v", i+1, err)
		}
	}
	if err := l.Allow("u1"); err == nil {
		t.Fatal("expected limit to trip before window expiry")
	}

	clock.advance(time.Minute)
	if err := l.Allow("u1"); err != nil {
		t.Errorf("request after window expiry limited: %v", err)
	}
}

func TestWindowLimiter_UsersAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	l := NewWindowLimiterWithClock(2, time.Minute, clock)

	if err := l.Allow("u1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("u1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("u1"); err == nil {
		t.Fatal("u1 should be limited")
	}
	if err := l.Allow("u2"); err != nil {
		t.Errorf("u2 limited by u1's quota: %v", err)
	}
}
