// Package vendors holds the HTTP plumbing shared by the vendor API adapters.
package vendors

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/ratelimit"
)

const (
	defaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond
	maxBodySize     = 4 << 20
)

// HTTPDoer is the part of *http.Client the vendor clients use.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs rate limited GET requests against one vendor API and
// retries the ones that fail transiently.
type Client struct {
	vendor     string
	baseURL    string
	httpClient HTTPDoer
	limiter    *ratelimit.Limiter
	headers    http.Header
	attempts   uint
	delay      time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithRateLimiter shares limiter with other clients of the same vendor.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(client *Client) {
		if limiter != nil {
			client.limiter = limiter
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(client *Client) {
		client.headers.Set(key, value)
	}
}

// WithRetry sets the number of attempts and the initial backoff delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(client *Client) {
		if attempts > 0 {
			client.attempts = attempts
		}
		if delay >= 0 {
			client.delay = delay
		}
	}
}

// NewClient creates a client for vendor rooted at baseURL.
func NewClient(vendor, baseURL string, opts ...Option) *Client {
	c := &Client{
		vendor:     vendor,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    ratelimit.New(vendor, 5),
		headers:    http.Header{},
		attempts:   defaultAttempts,
		delay:      defaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Vendor is the name used in errors and logs.
func (c *Client) Vendor() string { return c.vendor }

// URL joins path and query onto the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// GetRaw fetches path and returns the response whatever its status. Only
// network failures are retried.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values) (*Response, error) {
	var resp *Response
	err := c.retry(ctx, func() error {
		r, err := c.get(ctx, c.URL(path, query))
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// GetJSON fetches path and decodes a 2xx response into target. Other
// statuses become *errors.VendorError or *errors.RateLimitError; the
// transient ones are retried.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, target any) error {
	return c.retry(ctx, func() error {
		resp, err := c.get(ctx, c.URL(path, query))
		if err != nil {
			return err
		}
		if err := c.checkStatus(resp); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body, target); err != nil {
			return retry.Unrecoverable(fmt.Errorf("%s: decoding response: %w", c.vendor, err))
		}
		return nil
	})
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
				return false
			}
			return errors.IsTransient(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("Retrying vendor request", "vendor", c.vendor, "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) get(ctx context.Context, endpoint string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.vendor, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", c.vendor, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) checkStatus(resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		msg := c.vendor + " rate limit exceeded"
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return errors.NewRateLimitErrorWithRetry(msg, time.Duration(secs)*time.Second)
		}
		return errors.NewRateLimitError(msg)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return errors.NewStopProcessingError(c.vendor + " rejected the configured credentials")
	}
	msg := strings.TrimSpace(string(resp.Body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return errors.NewVendorError(c.vendor, resp.StatusCode, msg)
}
