package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testFetcher(t *testing.T, opts FetcherOptions) *Fetcher {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	f := NewFetcher(opts, log)
	// retry paths must not sleep for real
	f.sleep = func(time.Duration) {}
	return f
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := testFetcher(t, FetcherOptions{Name: "test", MaxRetries: 3})

	body, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}

	stats := f.Stats()
	if stats.Requests != 3 {
		t.Errorf("requests = %d, want 3", stats.Requests)
	}
	if stats.Errors != 0 {
		t.Errorf("errors = %d, want 0 after eventual success", stats.Errors)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := testFetcher(t, FetcherOptions{Name: "test", MaxRetries: 3})

	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", fe.Attempts)
	}
	if f.Stats().Errors != 1 {
		t.Errorf("errors = %d, want 1", f.Stats().Errors)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := testFetcher(t, FetcherOptions{Name: "test", MaxRetries: 3})

	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		t.Fatalf("404 must not be retried, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestFetchHonorsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var slept atomic.Int64
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	f := NewFetcher(FetcherOptions{Name: "test", RateLimit: 50 * time.Millisecond, MaxRetries: 1}, log)
	f.sleep = func(time.Duration) { slept.Add(1) }

	ctx := context.Background()
	if _, err := f.Fetch(ctx, srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if slept.Load() == 0 {
		t.Error("second request within the interval did not throttle")
	}
}

func TestBackoffDelayClamped(t *testing.T) {
	f := testFetcher(t, FetcherOptions{Name: "test", MaxRetries: 3})

	if d := f.backoffDelay(0); d != 2*time.Second {
		t.Errorf("retry 0 delay = %v, want 2s", d)
	}
	if d := f.backoffDelay(2); d != 4*time.Second {
		t.Errorf("retry 2 delay = %v, want 4s", d)
	}
	if d := f.backoffDelay(10); d != 10*time.Second {
		t.Errorf("retry 10 delay = %v, want 10s cap", d)
	}
}
