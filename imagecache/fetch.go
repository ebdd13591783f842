package imagecache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// fetcher is the L3 tier: HTTP fetches from the remote image origin.
//
// Outbound requests pass two gates: a counting semaphore bounding how
// many fetches run at once, and a rate limiter enforcing a minimum
// interval between request starts. Failures retry a bounded number of
// times with a fixed delay and then report a miss; the fetcher never
// returns an error to its caller.
type fetcher struct {
	client    *http.Client
	userAgent string
	urlFor    func(Key) string
	gate      *semaphore.Weighted
	limiter   *rate.Limiter
	retries   int
	retryWait time.Duration
	log       *slog.Logger
}

func newFetcher(urlFor func(Key) string, userAgent string, concurrency int64, minInterval time.Duration, retries int, retryWait time.Duration, log *slog.Logger) *fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
		urlFor:    urlFor,
		gate:      semaphore.NewWeighted(concurrency),
		limiter:   rate.NewLimiter(limit, 1),
		retries:   retries,
		retryWait: retryWait,
		log:       log,
	}
}

// fetch retrieves the bytes for key, honoring the admission gate, rate
// limit and retry budget. stale reports whether the work has been
// cancelled by an epoch bump; it is consulted before every blocking step
// so a cancelled fetch gives up promptly. A false return means "treat as
// not found".
func (f *fetcher) fetch(ctx context.Context, key Key, stale func() bool) ([]byte, bool) {
	if err := f.gate.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	defer f.gate.Release(1)

	for attempt := 0; attempt <= f.retries; attempt++ {
		if stale() || ctx.Err() != nil {
			return nil, false
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, false
		}
		if stale() {
			return nil, false
		}

		data, retryable, err := f.fetchOnce(ctx, key)
		if err == nil {
			return data, true
		}
		if !retryable {
			return nil, false
		}

		f.log.Warn("image fetch failed", "key", key, "attempt", attempt+1, "err", err)
		if attempt < f.retries {
			select {
			case <-time.After(f.retryWait):
			case <-ctx.Done():
				return nil, false
			}
		}
	}
	return nil, false
}

// fetchOnce performs a single GET. The retryable result distinguishes
// transient failures (network errors, 5xx) from definitive misses (404).
func (f *fetcher) fetchOnce(ctx context.Context, key Key) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.urlFor(key), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, err
		}
		return data, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("HTTP 404: %s", resp.Status)
	default:
		return nil, true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
}
