package fetch

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/trail-status/internal/observability"
)

const (
	// DefaultMaxAttempts is the attempt budget used by Get.
	DefaultMaxAttempts = 3

	// BrowserUserAgent is sent to sources that reject default Go clients.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	transportBackoffUnit = 500 * time.Millisecond
	rateLimitBackoffUnit = time.Second
)

// Fetcher performs HTTP requests with retry on 429 and on transport failures.
// It holds no per-request state and is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	maxAttempts int
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

func WithClock(c clockwork.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithMaxAttempts sets the attempt budget used by Get.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// New creates a Fetcher around the shared outbound HTTP client.
func New(client *http.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      client,
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get issues a GET with the given headers using the configured attempt budget.
func (f *Fetcher) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	return f.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}, f.maxAttempts)
}

// Do executes the request built by buildRequest, making at most maxAttempts attempts.
//
// A 429 waits for Retry-After seconds (or 2^attempt seconds when absent) and retries;
// exhausting the budget on 429 yields a *RateLimitedError. A transport failure waits
// 2^attempt * 500ms and retries; exhausting the budget yields the last *TransportError.
// Any other response, 2xx or not, is returned to the caller untouched.
func (f *Fetcher) Do(ctx context.Context, buildRequest func() (*http.Request, error), maxAttempts int) (*http.Response, error) {
	if f.client == nil {
		return nil, errNoHTTPClient
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := f.clock.Now()
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)
		last := attempt == maxAttempts-1

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &TransportError{URL: req.URL.Redacted(), Err: err}
			if last {
				break
			}
			delay := backoff(attempt, transportBackoffUnit)
			f.logger.Warn("fetch transport error, retrying",
				"url", req.URL.Redacted(), "attempt", attempt+1, "delay", delay, "error", err)
			f.metrics.ObserveRetry("transport")
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfter(resp.Header.Get("Retry-After"), attempt, f.clock.Now())
			drain(resp)
			lastErr = &RateLimitedError{StatusCode: resp.StatusCode, RetryAfter: delay}
			if last {
				break
			}
			f.logger.Warn("fetch rate limited, retrying",
				"url", req.URL.Redacted(), "attempt", attempt+1, "delay", delay)
			f.metrics.ObserveRetry("rate_limited")
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		f.metrics.ObserveFetch(req.URL.Host, f.clock.Since(start).Seconds())
		return resp, nil
	}

	return nil, lastErr
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.clock.After(d):
		return nil
	}
}

// backoff returns 2^attempt * unit.
func backoff(attempt int, unit time.Duration) time.Duration {
	return unit * time.Duration(math.Pow(2, float64(attempt)))
}

// retryAfter interprets a Retry-After header given in seconds or as an HTTP date,
// falling back to exponential seconds when it is absent or unparseable.
func retryAfter(header string, attempt int, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(header); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	return backoff(attempt, rateLimitBackoffUnit)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
