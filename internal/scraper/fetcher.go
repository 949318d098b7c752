/**
 * @description
 * Rate-limited HTTP fetcher shared by all listing sources.
 * One Fetcher per source: each source serializes its own requests, enforcing a
 * minimum inter-request interval with jitter, and retries transient failures with
 * capped exponential backoff.
 *
 * @dependencies
 * - net/http
 * - github.com/sirupsen/logrus
 */

package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	jitterMax  = 500 * time.Millisecond
	backoffMin = 2 * time.Second
	backoffMax = 10 * time.Second
)

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// FetchError is returned once the retry budget for a transient condition is spent
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Stats is a snapshot of a fetcher's request counters
type Stats struct {
	Requests int64 `json:"requests"`
	Errors   int64 `json:"errors"`
}

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	Name       string
	RateLimit  time.Duration
	Timeout    time.Duration
	MaxRetries int
}

// Fetcher issues throttled GET requests for one source
type Fetcher struct {
	name       string
	rateLimit  time.Duration
	maxRetries int
	client     *http.Client
	userAgent  string
	log        *logrus.Logger

	mu          sync.Mutex
	lastRequest time.Time

	requests atomic.Int64
	errors   atomic.Int64

	// overridable in tests so retry paths don't sleep for real
	backoffMin time.Duration
	backoffMax time.Duration
	sleep      func(time.Duration)
}

func NewFetcher(opts FetcherOptions, log *logrus.Logger) *Fetcher {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Fetcher{
		name:       opts.Name,
		rateLimit:  opts.RateLimit,
		maxRetries: opts.MaxRetries,
		client:     &http.Client{Timeout: opts.Timeout},
		userAgent:  userAgents[rand.Intn(len(userAgents))],
		log:        log,
		backoffMin: backoffMin,
		backoffMax: backoffMax,
		sleep:      time.Sleep,
	}
}

// Fetch GETs the URL, honoring the rate limit and retrying transient failures.
// Non-transient failures (4xx other than 429, malformed URLs) are returned
// immediately; transient ones surface as *FetchError once retries are spent.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if attempt > 1 {
			f.sleep(f.backoffDelay(attempt - 1))
		}

		f.throttle()

		body, transient, err := f.doRequest(ctx, url)
		if err == nil {
			return body, nil
		}
		if !transient {
			f.errors.Add(1)
			return nil, err
		}

		lastErr = err
		f.log.WithFields(logrus.Fields{
			"source":  f.name,
			"url":     url,
			"attempt": attempt,
		}).WithError(err).Warn("transient fetch failure")
	}

	f.errors.Add(1)
	return nil, &FetchError{URL: url, Attempts: f.maxRetries, Err: lastErr}
}

// Stats returns the request/error counters accumulated by this fetcher
func (f *Fetcher) Stats() Stats {
	return Stats{
		Requests: f.requests.Load(),
		Errors:   f.errors.Load(),
	}
}

// doRequest performs one attempt and classifies its failure
func (f *Fetcher) doRequest(ctx context.Context, url string) (body []byte, transient bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	f.requests.Add(1)

	resp, err := f.client.Do(req)
	if err != nil {
		// context cancellation is not worth retrying
		if errors.Is(err, context.Canceled) {
			return nil, false, err
		}
		// network errors and client timeouts are transient
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, true, readErr
		}
		return data, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("status %d", resp.StatusCode)
	}
}

// throttle blocks until the minimum inter-request interval has elapsed, then
// adds a small random jitter so request timing never forms a fixed pattern
func (f *Fetcher) throttle() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rateLimit > 0 {
		elapsed := time.Since(f.lastRequest)
		if elapsed < f.rateLimit {
			wait := f.rateLimit - elapsed
			wait += time.Duration(rand.Int63n(int64(jitterMax)))
			f.sleep(wait)
		}
	}
	f.lastRequest = time.Now()
}

func (f *Fetcher) backoffDelay(retry int) time.Duration {
	delay := time.Second << retry
	if delay < f.backoffMin {
		delay = f.backoffMin
	}
	if delay > f.backoffMax {
		delay = f.backoffMax
	}
	return delay
}
