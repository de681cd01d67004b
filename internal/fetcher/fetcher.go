// Package fetcher retrieves readable text from user-supplied URLs. Every
// URL is untrusted input: the fetcher guards against SSRF, rate limits
// per user, and retries transient failures with backoff. Ordinary content
// failures degrade to empty text; security and quota violations surface
// as typed errors.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// MaxContentLength bounds extracted text per document.
	MaxContentLength = 15000

	fetchTimeout = 10 * time.Second
	maxRedirects = 5
	maxAttempts  = 3
	maxJitter    = 250 * time.Millisecond
	maxBodyBytes = 4 << 20

	// A realistic identity; some sites serve bots an empty shell.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Strategy is a single-capability extraction unit. A strategy that is not
// applicable to the URL (unrecognized domain, missing credential) returns
// ("", nil); the next strategy in order is tried.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, u *url.URL) (string, error)
}

// Options configures a Fetcher.
type Options struct {
	AllowedHosts []string
	RateLimit    int
	RateWindow   time.Duration
	ReaderAPIURL string
	ReaderAPIKey string

	// BaseDelay overrides the retry backoff base. Zero means 500ms.
	BaseDelay time.Duration
	// Clock overrides the rate-limiter clock. Nil means wall clock.
	Clock Clock
}

// Fetcher validates, rate limits, and retrieves text content from URLs.
type Fetcher struct {
	validator  *Validator
	limiter    *WindowLimiter
	strategies []Strategy
}

// New builds a Fetcher with the reader-API strategy (when a key is
// configured) ahead of generic HTML extraction.
func New(opts Options) *Fetcher {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	limiter := NewWindowLimiter(opts.RateLimit, opts.RateWindow)
	if opts.Clock != nil {
		limiter = NewWindowLimiterWithClock(opts.RateLimit, opts.RateWindow, opts.Clock)
	}

	g := &retryingGetter{
		client:    newHTTPClient(),
		baseDelay: opts.BaseDelay,
	}

	var strategies []Strategy
	if opts.ReaderAPIKey != "" && opts.ReaderAPIURL != "" {
		strategies = append(strategies, &readerStrategy{
			endpoint: opts.ReaderAPIURL,
			apiKey:   opts.ReaderAPIKey,
			get:      g,
		})
	}
	strategies = append(strategies, &htmlStrategy{get: g})

	return &Fetcher{
		validator:  NewValidator(opts.AllowedHosts),
		limiter:    limiter,
		strategies: strategies,
	}
}

// Fetch returns extracted text for the URL, or "" when the content cannot
// be retrieved for ordinary reasons. BlockedURLError and RateLimitError
// propagate so the caller can abort instead of silently degrading. An
// empty userID skips rate limiting (trusted internal callers).
func (f *Fetcher) Fetch(ctx context.Context, rawURL, userID string) (string, error) {
	u, err := f.validator.Validate(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if userID != "" {
		if err := f.limiter.Allow(userID); err != nil {
			return "", err
		}
	}

	for _, s := range f.strategies {
		text, err := s.Attempt(ctx, u)
		if err != nil {
			log.Warn().Err(err).Str("strategy", s.Name()).Str("url", rawURL).Msg("extraction strategy failed")
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	return "", nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// retryingGetter performs a GET with up to maxAttempts tries, exponential
// backoff, and jitter. Only transient failures (network errors, 5xx, 429)
// are retried; other 4xx statuses fail immediately.
type retryingGetter struct {
	client    *http.Client
	baseDelay time.Duration
}

func (g *retryingGetter) get(ctx context.Context, target string, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.baseDelay*(1<<attempt) + rand.N(maxJitter)
			select {
			case <-ctx.Done():
				return nil, &FatalError{Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		body, err := g.once(ctx, target, header)
		if err == nil {
			return body, nil
		}
		var te *TransientError
		if !errors.As(err, &te) {
			return nil, err
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt+1).Str("url", target).Msg("retrying fetch")
	}
	return nil, &FatalError{Err: fmt.Errorf("retries exhausted: %w", lastErr)}
}

func (g *retryingGetter) once(ctx context.Context, target string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FatalError{Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &TransientError{Err: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode >= 400:
		return nil, &FatalError{Err: fmt.Errorf("status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	return body, nil
}

// readerStrategy asks a structured reader API for the page content. It is
// skipped when no credential is configured.
type readerStrategy struct {
	endpoint string
	apiKey   string
	get      *retryingGetter
}

func (s *readerStrategy) Name() string { return "reader-api" }

func (s *readerStrategy) Attempt(ctx context.Context, u *url.URL) (string, error) {
	if s.apiKey == "" {
		return "", nil
	}
	target := s.endpoint + "?url=" + url.QueryEscape(u.String())
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)
	header.Set("Accept", "text/plain")

	body, err := s.get.get(ctx, target, header)
	if err != nil {
		return "", err
	}
	return truncate(collapse(string(body)), MaxContentLength), nil
}

// htmlStrategy is the generic fallback: GET the page and extract the main
// readable region from the DOM.
type htmlStrategy struct {
	get *retryingGetter
}

func (s *htmlStrategy) Name() string { return "html" }

func (s *htmlStrategy) Attempt(ctx context.Context, u *url.URL) (string, error) {
	body, err := s.get.get(ctx, u.String(), nil)
	if err != nil {
		return "", err
	}
	return ExtractReadable(string(body), MaxContentLength), nil
}
