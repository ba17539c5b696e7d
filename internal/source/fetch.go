package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tabular/internal/metrics"
)

// Fetcher retrieves the raw bytes behind a source location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Router dispatches a location to a fetcher by scheme: http and https go
// to HTTP, s3 to S3, file:// and plain paths to File.
type Router struct {
	HTTP Fetcher
	S3   Fetcher
	File Fetcher
}

// Fetch implements Fetcher.
func (r Router) Fetch(ctx context.Context, location string) ([]byte, error) {
	var f Fetcher
	switch scheme(location) {
	case "http", "https":
		f = r.HTTP
	case "s3":
		f = r.S3
	case "", "file":
		f = r.File
	default:
		return nil, fmt.Errorf("unsupported scheme in %q", location)
	}
	if f == nil {
		return nil, fmt.Errorf("no fetcher configured for %q", location)
	}
	return f.Fetch(ctx, location)
}

// scheme returns the lower-cased URL scheme of location, or "" for a
// plain path.
func scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

// FileFetcher reads local files. file:// URLs are accepted.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := location
	if scheme(location) == "file" {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", location, err)
		}
		path = u.Path
	}

	start := time.Now()
	b, err := os.ReadFile(path)
	if err != nil {
		metrics.RecordFetch("file", 0, time.Since(start), 0)
		return nil, err
	}
	metrics.RecordFetch("file", 200, time.Since(start), len(b))
	return b, nil
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// HTTPFetcher downloads sources over HTTP(S), retrying transport errors,
// 429 and 5xx responses with exponential backoff.
type HTTPFetcher struct {
	Client *http.Client

	// Retries is the number of extra attempts after the first.
	Retries int

	// BaseBackoff is the delay before the first retry; it doubles per
	// attempt up to MaxBackoff. A 429 Retry-After header takes precedence.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// sleep waits for d or until ctx is done; tests replace it.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewHTTPFetcher returns an HTTPFetcher with a pooled client.
func NewHTTPFetcher(timeout time.Duration, retries int) *HTTPFetcher {
	return &HTTPFetcher{
		Client:      newHTTPClient(timeout),
		Retries:     retries,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 16,
		},
	}
}

// attempt is the outcome of one GET.
type attempt struct {
	status     int
	retryAfter time.Duration
	body       []byte
	err        error
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	sleep := f.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	sch := scheme(location)

	for n := 1; ; n++ {
		start := time.Now()
		a := doAttempt(ctx, client, location)
		metrics.RecordFetch(sch, a.status, time.Since(start), len(a.body))

		if a.err == nil {
			return a.body, nil
		}
		if n > f.Retries || !retryable(ctx, a) {
			return nil, a.err
		}
		if !sleep(ctx, nextRetryDelay(a, n, f.BaseBackoff, f.MaxBackoff)) {
			return nil, ctx.Err()
		}
	}
}

func doAttempt(ctx context.Context, client *http.Client, rawURL string) attempt {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attempt{err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return attempt{err: err}
	}
	defer resp.Body.Close()

	a := attempt{status: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		a.err = &StatusError{URL: rawURL, Code: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			a.retryAfter = parseRetryAfter(resp.Header)
		}
		return a
	}

	a.body, a.err = io.ReadAll(resp.Body)
	if a.err != nil {
		a.err = fmt.Errorf("read %s: %w", rawURL, a.err)
	}
	return a
}

func retryable(ctx context.Context, a attempt) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(a.err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// nextRetryDelay returns the wait before retry number n (1-based).
func nextRetryDelay(a attempt, n int, base, max time.Duration) time.Duration {
	if a.status == http.StatusTooManyRequests && a.retryAfter > 0 {
		return a.retryAfter
	}
	d := base << uint(n-1)
	if d > max || d <= 0 {
		d = max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
