package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/metrics"
)

// DefaultTimeout applies to every Fetch that does not set its own timeout.
const DefaultTimeout = 10 * time.Second

// maxRedirects matches the limit after which a redirect chain is a broker failure.
const maxRedirects = 30

// ErrTooManyRedirects is returned by the session when a redirect chain exceeds maxRedirects
var ErrTooManyRedirects = errors.New("exceeded 30 redirects")

// Client is a broker-scoped HTTP session. One Client is shared by every call
// made on behalf of a broker namespace so connections and cookies are pooled.
type Client struct {
	brokerID   string
	baseURL    string
	headers    map[string]string
	useLogging bool
	timeout    time.Duration
	retry      RetryPolicy
	transport  http.RoundTripper
	jar        http.CookieJar

	once    sync.Once
	session *http.Client
}

// logDebug logs debug messages using the global logger
func (c *Client) logDebug(ctx context.Context, msg string, args ...interface{}) {
	if c.useLogging {
		logger.Debug(ctx, msg, args...)
	}
}

// logWarn logs warning messages using the global logger
func (c *Client) logWarn(ctx context.Context, msg string, args ...interface{}) {
	if c.useLogging {
		logger.Warn(ctx, msg, args...)
	}
}

// ClientOption configures the API client
type ClientOption func(*Client)

// WithBrokerID tags every error and metric produced by the client
func WithBrokerID(id string) ClientOption {
	return func(c *Client) {
		c.brokerID = id
	}
}

// WithTimeout sets the default per-call timeout; non-positive values keep DefaultTimeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBaseURL sets the base URL for relative request URLs
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHeader sets a default header for all requests
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithLogging enables logging for the API client
func WithLogging(enabled bool) ClientOption {
	return func(c *Client) {
		c.useLogging = enabled
	}
}

// WithRetryPolicy replaces the transport retry policy
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithTransport sets the round tripper underneath the retry layer
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithCookieJar shares a cookie jar between clients
func WithCookieJar(jar http.CookieJar) ClientOption {
	return func(c *Client) {
		c.jar = jar
	}
}

// NewClient creates a new API client with the given options. The underlying
// session is built on first use.
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		headers:    make(map[string]string),
		useLogging: false, // Default: logging disabled for performance
		timeout:    DefaultTimeout,
		retry:      DefaultRetryPolicy(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BrokerID returns the broker namespace of the client
func (c *Client) BrokerID() string {
	return c.brokerID
}

// Jar returns the cookie jar of the session
func (c *Client) Jar() http.CookieJar {
	c.httpClient()
	return c.jar
}

// HTTPClient returns the pooled session for SDKs that bring their own request code
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient()
}

// httpClient returns the pooled session, creating it on first use
func (c *Client) httpClient() *http.Client {
	c.once.Do(func() {
		base := c.transport
		if base == nil {
			base = http.DefaultTransport.(*http.Transport).Clone()
		}
		if c.jar == nil {
			c.jar, _ = cookiejar.New(nil)
		}
		c.session = &http.Client{
			Transport: &retryTransport{base: base, policy: c.retry},
			Jar:       c.jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		}
	})
	return c.session
}

// BasicAuth holds credentials for HTTP basic authentication
type BasicAuth struct {
	Username string
	Password string
}

// FetchRequest describes one outbound call. At most one of Data and JSON is used.
type FetchRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Data    map[string]string
	JSON    interface{}
	Params  map[string]string
	Auth    *BasicAuth
	Timeout time.Duration
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Status     string
	URL        string
	Body       []byte
	Headers    http.Header
	Cookies    []*http.Cookie
}

// Reason returns the reason phrase of the status line
func (r *Response) Reason() string {
	if i := strings.IndexByte(r.Status, ' '); i >= 0 {
		return r.Status[i+1:]
	}
	return http.StatusText(r.StatusCode)
}

// String returns the response body as a string
func (r *Response) String() string {
	return string(r.Body)
}

// StatusError is the HTTP-status failure of a call that did reach upstream.
// Response is nil when no response was available.
type StatusError struct {
	Response *Response
}

func (e *StatusError) Error() string {
	if e.Response == nil {
		return "HTTP error (no response available)"
	}
	return fmt.Sprintf("HTTP %d: %s", e.Response.StatusCode, string(e.Response.Body))
}

// Fetch sends one request over the broker session. Transport-level retries
// happen inside the session; Fetch itself never retries. Every failure is
// returned as a *brokererr.Error tagged with broker id, method and URL.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (*Response, error) {
	start := time.Now()
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	rawURL := req.URL
	if c.baseURL != "" && !strings.HasPrefix(rawURL, "http") {
		rawURL = c.baseURL + rawURL
	}

	resp, err := c.fetch(ctx, method, rawURL, req)
	if err != nil {
		err = Classify(c.brokerID, method, rawURL, err)
		c.logWarn(ctx, "HTTP request failed", "broker", c.brokerID, "method", method, "url", rawURL, "error", err)
	}
	metrics.RecordFetch(c.brokerID, method, time.Since(start), err)
	return resp, err
}

func (c *Client) fetch(ctx context.Context, method, rawURL string, req FetchRequest) (*Response, error) {
	ctx, span := logger.StartSpan(ctx, "api.Fetch")
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(req.Params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	var bodyReader io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		jsonBody, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
		contentType = "application/json"
	case len(req.Data) > 0:
		form := url.Values{}
		for k, v := range req.Data {
			form.Set(k, v)
		}
		bodyReader = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Auth != nil {
		httpReq.SetBasicAuth(req.Auth.Username, req.Auth.Password)
	}

	c.logDebug(ctx, "HTTP Request", "broker", c.brokerID, "method", method, "url", rawURL)

	startTime := time.Now()
	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logDebug(ctx, "HTTP Response",
		"method", method,
		"url", rawURL,
		"status", httpResp.StatusCode,
		"duration", time.Since(startTime),
		"bodySize", len(body))

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		URL:        rawURL,
		Body:       body,
		Headers:    httpResp.Header,
		Cookies:    httpResp.Cookies(),
	}

	if httpResp.StatusCode >= 400 {
		return nil, &StatusError{Response: resp}
	}
	return resp, nil
}

// Common header presets for different APIs

// BrowserHeaders returns common browser headers to mimic a real browser request
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}
}

// NSEHeaders returns headers for NSE India API
func NSEHeaders() map[string]string {
	return map[string]string{
		"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Accept":           "application/json",
		"Accept-Language":  "en-US,en;q=0.9",
		"Referer":          "https://www.nseindia.com/option-chain",
		"X-Requested-With": "XMLHttpRequest",
	}
}

// BSEHeaders returns headers for the BSE India API
func BSEHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
		"Origin":          "https://www.bseindia.com",
		"Referer":         "https://www.bseindia.com/",
	}
}
