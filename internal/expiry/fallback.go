package expiry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// RawFetcher is the lower-level path used when the primary client call fails
type RawFetcher interface {
	FetchRaw(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error)
}

// CollectorFetcher fetches raw bodies with a fresh colly collector per call.
// It shares the cookie jar of the primary session so warmed NSE cookies apply.
type CollectorFetcher struct {
	timeout time.Duration
	jar     http.CookieJar
}

// NewCollectorFetcher creates a fallback fetcher
func NewCollectorFetcher(timeout time.Duration, jar http.CookieJar) *CollectorFetcher {
	return &CollectorFetcher{timeout: timeout, jar: jar}
}

// FetchRaw visits rawURL and returns the response body
func (f *CollectorFetcher) FetchRaw(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.StdlibContext(ctx),
		colly.Async(false),
	)
	c.SetRequestTimeout(f.timeout)
	if f.jar != nil {
		c.SetCookieJar(f.jar)
	}

	c.OnRequest(func(r *colly.Request) {
		for key, value := range headers {
			r.Headers.Set(key, value)
		}
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fallback fetch %s: %w", rawURL, err)
	}
	c.Wait()

	if len(body) == 0 {
		return nil, fmt.Errorf("fallback fetch %s: empty body", rawURL)
	}
	return body, nil
}
