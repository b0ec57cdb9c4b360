package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRateLimited matches any RateLimitedError via errors.Is.
	ErrRateLimited = errors.New("rate limited")

	errNoHTTPClient = errors.New("http client not configured")
)

// RateLimitedError is returned once the attempt budget is spent on HTTP 429 responses.
type RateLimitedError struct {
	StatusCode int
	RetryAfter time.Duration // last server-directed (or fallback) delay
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: status %d", e.StatusCode)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// TransportError wraps a network-level failure (DNS, timeout, connection reset).
// It is never produced for an HTTP response, whatever its status.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a non-2xx response that callers decided not to accept.
type UpstreamError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// CheckStatus turns a non-2xx response into an UpstreamError. The caller still owns
// the response body.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	u := ""
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL.Redacted()
	}
	return &UpstreamError{URL: u, StatusCode: resp.StatusCode}
}

// IsRateLimited reports whether err is, or wraps, a rate-limit failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
