package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func testGetter() *retryingGetter {
	return &retryingGetter{
		client:    newHTTPClient(),
		baseDelay: time.Millisecond,
	}
}

func TestRetryingGetter_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("finally"))
	}))
	defer srv.Close()

	body, err := testGetter().get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("get() error = %v", err)
	}
	if string(body) != "finally" {
		t.Errorf("body = %q", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestRetryingGetter_Retries429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := testGetter().get(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("get() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server called %d times, want 2", got)
	}
}

func TestRetryingGetter_NoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testGetter().get(context.Background(), srv.URL, nil)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("get() error = %v, want FatalError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (no retries on 404)", got)
	}
}

func TestRetryingGetter_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testGetter().get(context.Background(), srv.URL, nil)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("get() error = %v, want FatalError after exhausted retries", err)
	}
	if got := calls.Load(); got != maxAttempts {
		t.Errorf("server called %d times, want %d", got, maxAttempts)
	}
}

func TestRetryingGetter_SetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := testGetter().get(context.Background(), srv.URL, nil); err != nil {
		t.Fatal(err)
	}
	if gotUA != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, userAgent)
	}
}

// fakeStrategy is an in-test extraction strategy.
type fakeStrategy struct {
	name    string
	text    string
	err     error
	calls   int
	lastURL string
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Attempt(ctx context.Context, u *url.URL) (string, error) {
	s.calls++
	s.lastURL = u.String()
	return s.text, s.err
}

func testFetcher(strategies []Strategy, clock Clock) *Fetcher {
	v := NewValidator(nil)
	v.Lookup = fakeLookup("93.184.216.34")
	if clock == nil {
		clock = realClock{}
	}
	return &Fetcher{
		validator:  v,
		limiter:    NewWindowLimiterWithClock(10, time.Minute, clock),
		strategies: strategies,
	}
}

func TestFetch_BlockedURLPropagates(t *testing.T) {
	s := &fakeStrategy{name: "fake", text: "content"}
	f := testFetcher([]Strategy{s}, nil)

	_, err := f.Fetch(context.Background(), "http://127.0.0.1/x", "u1")
	var blocked *BlockedURLError
	if !errors.As(err, &blocked) {
		t.Fatalf("Fetch() error = %v, want BlockedURLError", err)
	}
	if s.calls != 0 {
		t.Error("strategy ran for a blocked URL")
	}
}

func TestFetch_RateLimitPropagates(t *testing.T) {
	s := &fakeStrategy{name: "fake", text: "content"}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	f := testFetcher([]Strategy{s}, clock)

	for i := 0; i < 10; i++ {
		if _, err := f.Fetch(context.Background(), "https://example.com/a", "u1"); err != nil {
			t.Fatal(err)
		}
	}
	_, err := f.Fetch(context.Background(), "https://example.com/a", "u1")
	var limited *RateLimitError
	if !errors.As(err, &limited) {
		t.Fatalf("Fetch() error = %v, want RateLimitError", err)
	}
	if s.calls != 10 {
		t.Errorf("strategy called %d times, want 10", s.calls)
	}
}

func TestFetch_StrategyOrderAndFallback(t *testing.T) {
	first := &fakeStrategy{name: "reader", text: ""}
	second := &fakeStrategy{name: "html", text: "extracted text"}
	f := testFetcher([]Strategy{first, second}, nil)

	got, err := f.Fetch(context.Background(), "https://example.com/a", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "extracted text" {
		t.Errorf("Fetch() = %q", got)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("strategy calls = %d, %d; want 1, 1", first.calls, second.calls)
	}
}

func TestFetch_FirstStrategyWins(t *testing.T) {
	first := &fakeStrategy{name: "reader", text: "reader text"}
	second := &fakeStrategy{name: "html", text: "html text"}
	f := testFetcher([]Strategy{first, second}, nil)

	got, err := f.Fetch(context.Background(), "https://example.com/a", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "reader text" {
		t.Errorf("Fetch() = %q", got)
	}
	if second.calls != 0 {
		t.Error("second strategy ran although the first yielded content")
	}
}

func TestFetch_OrdinaryFailureDegradesToEmpty(t *testing.T) {
	s := &fakeStrategy{name: "html", err: &FatalError{Err: errors.New("status 404 Not Found")}}
	f := testFetcher([]Strategy{s}, nil)

	got, err := f.Fetch(context.Background(), "https://example.com/gone", "u1")
	if err != nil {
		t.Fatalf("ordinary failure must not surface: %v", err)
	}
	if got != "" {
		t.Errorf("Fetch() = %q, want empty", got)
	}
}

func TestFetch_EmptyUserSkipsRateLimit(t *testing.T) {
	s := &fakeStrategy{name: "html", text: "x"}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	f := testFetcher([]Strategy{s}, clock)

	for i := 0; i < 30; i++ {
		if _, err := f.Fetch(context.Background(), "https://example.com/a", ""); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
}

func TestNew_ReaderStrategyRequiresCredential(t *testing.T) {
	f := New(Options{})
	if len(f.strategies) != 1 {
		t.Fatalf("expected only the html strategy without a reader key, got %d", len(f.strategies))
	}
	if f.strategies[0].Name() != "html" {
		t.Errorf("strategy = %q, want html", f.strategies[0].Name())
	}

	f = New(Options{ReaderAPIURL: "https://reader.example.com/convert", ReaderAPIKey: "k"})
	if len(f.strategies) != 2 {
		t.Fatalf("expected reader + html strategies, got %d", len(f.strategies))
	}
	if f.strategies[0].Name() != "reader-api" {
		t.Errorf("first strategy = %q, want reader-api", f.strategies[0].Name())
	}
}
