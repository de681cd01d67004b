package fetcher

import (
	"fmt"
	"time"
)

// BlockedURLError reports a URL rejected by the SSRF guard or the
// allow-list. It is never downgraded to empty content.
type BlockedURLError struct {
	URL    string
	Reason string
}

func (e *BlockedURLError) Error() string {
	return fmt.Sprintf("blocked url %s: %s", e.URL, e.Reason)
}

// RateLimitError reports a per-user fetch quota violation. No network
// call was made.
type RateLimitError struct {
	UserID     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for user %s, retry in %s", e.UserID, e.RetryAfter.Round(time.Second))
}

// TransientError wraps a retryable retrieval failure: network error,
// HTTP 5xx, or HTTP 429.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient fetch error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps a non-retryable retrieval failure: a 4xx other than
// 429, or exhausted retries.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fetch failed: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }
