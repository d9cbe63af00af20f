package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"indian-stock-api/internal/metrics"
)

// RetryPolicy configures transport-level retries
type RetryPolicy struct {
	MaxRetries     int
	BackoffFactor  time.Duration
	StatusForce    map[int]bool
	AllowedMethods map[string]bool
}

// DefaultRetryPolicy retries idempotent calls up to 3 times on gateway and timeout statuses
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BackoffFactor: 200 * time.Millisecond,
		StatusForce: map[int]bool{
			http.StatusRequestTimeout:      true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
		AllowedMethods: map[string]bool{
			http.MethodHead:    true,
			http.MethodGet:     true,
			http.MethodOptions: true,
		},
	}
}

// Backoff returns the wait before retry n (1-based). The first retry is immediate.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	return p.BackoffFactor * time.Duration(1<<(n-1))
}

func (p RetryPolicy) shouldRetry(method string, status int) bool {
	return p.AllowedMethods[method] && p.StatusForce[status]
}

// retryTransport re-sends idempotent requests whose response status is in the
// force list. Once retries are exhausted the last response is returned as is.
type retryTransport struct {
	base   http.RoundTripper
	policy RetryPolicy
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for n := 1; n <= t.policy.MaxRetries; n++ {
		if err != nil || !t.policy.shouldRetry(req.Method, resp.StatusCode) {
			return resp, err
		}

		wait := t.policy.Backoff(n)
		if ra := retryAfter(resp); ra > wait {
			wait = ra
		}
		metrics.FetchRetries.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := sleepContext(req.Context(), wait); err != nil {
			return nil, err
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}
		resp, err = t.base.RoundTrip(req)
	}
	return resp, err
}

// retryAfter honours a Retry-After header given in seconds on 503 responses
func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusServiceUnavailable {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
