// Package fetcher is the process-wide HTTP fetch capability: GET-only, with
// bounded retry on transient statuses and mandatory per-host pacing.
package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nearest-stops/stopsync/internal/resilience"
)

const maxBodyBytes = 4 * 1024 * 1024

// Options configures the HTTP fetcher.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// HostInterval is the minimum spacing between requests to one host.
	// This is a politeness contract, not an optimization; Fetch blocks on it.
	HostInterval time.Duration
}

// HTTP implements the fetch capability using net/http.
type HTTP struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates an HTTP fetcher with the given options.
func New(opts Options) *HTTP {
	if opts.Timeout == 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "stopsync/1.0"
	}
	return &HTTP{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the pacing limiter for a host, creating it on first use.
func (f *HTTP) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	interval := f.opts.HostInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	f.limiters[host] = lim
	return lim
}

// FetchBytes GETs the URL and returns the response body. Non-2xx statuses
// after the internal retry budget are errors.
func (f *HTTP) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}

	var lastErr error
	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetch: limiter wait")
		}

		body, err := f.once(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || !resilience.IsTransient(err) {
			return nil, lastErr
		}
		if attempt >= f.opts.MaxRetries-1 {
			break
		}

		zap.L().Warn("fetch failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if !f.backoff(ctx, attempt) {
			return nil, lastErr
		}
	}

	return nil, eris.Wrapf(lastErr, "fetch: retries exhausted for %s", rawURL)
}

// FetchString GETs the URL and returns the body as a string.
func (f *HTTP) FetchString(ctx context.Context, rawURL string) (string, error) {
	body, err := f.FetchBytes(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *HTTP) once(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := eris.Errorf("fetch: status %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read body")
	}
	return body, nil
}

// backoff sleeps with exponential growth and jitter. Returns false when the
// context was cancelled during the sleep.
func (f *HTTP) backoff(ctx context.Context, attempt int) bool {
	base := 800 * time.Millisecond
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
