package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// Fetcher retrieves one page. A non-200 status is not an error: the status
// is returned and the caller decides. err is reserved for transport
// failures and timeouts.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (status int, body []byte, err error)
}

// HTTPFetcher fetches pages with a colly collector. Every call runs on a
// clone so callbacks never leak between requests while the limit rule on
// the parent still applies.
type HTTPFetcher struct {
	collector *colly.Collector
}

// NewHTTPFetcher builds the parent collector. parallelism bounds concurrent
// requests per domain and delay is the minimum gap between them. maxTimeout
// caps the shared HTTP client; per-call timeouts only shorten it.
func NewHTTPFetcher(userAgent string, parallelism int, delay, maxTimeout time.Duration) (*HTTPFetcher, error) {
	c := colly.NewCollector(colly.AllowURLRevisit(), colly.UserAgent(userAgent))
	// Error pages are returned to the caller instead of surfacing as OnError.
	c.ParseHTTPErrorResponse = true
	if maxTimeout > 0 {
		c.SetRequestTimeout(maxTimeout)
	}

	if parallelism < 1 {
		parallelism = 1
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		Delay:       delay,
	}); err != nil {
		return nil, fmt.Errorf("fetcher: set limit rule: %w", err)
	}

	return &HTTPFetcher{collector: c}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (int, []byte, error) {
	collector := f.collector.Clone()

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	collector.Context = reqCtx

	var (
		status     int
		body       []byte
		requestErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		requestErr = err
	})

	if err := collector.Visit(url); err != nil {
		return status, nil, fmt.Errorf("fetcher: visit %s: %w", url, err)
	}
	collector.Wait()

	if requestErr != nil {
		return status, nil, fmt.Errorf("fetcher: request %s: %w", url, requestErr)
	}
	return status, body, nil
}
