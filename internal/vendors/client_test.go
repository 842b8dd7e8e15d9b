package vendors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithRateLimiter(ratelimit.New("test", 1000)),
		WithRetry(3, 0),
	}, opts...)
	return NewClient("Test", srv.URL+"/", opts...)
}

func TestGetJSONDecodesAndSendsHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/items/42", r.URL.Path)
		assert.Equal(t, "complete", r.URL.Query().Get("verbosity"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"title":"Middlemarch"}`))
	}, WithHeader("Authorization", "Bearer abc"))

	var got struct {
		Title string `json:"title"`
	}
	err := c.GetJSON(context.Background(), "/v1/items/42", url.Values{"verbosity": {"complete"}}, &got)
	require.NoError(t, err)
	assert.Equal(t, "Middlemarch", got.Title)
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	var got map[string]any
	require.NoError(t, c.GetJSON(context.Background(), "x", nil, &got))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such title", http.StatusNotFound)
	})

	var got map[string]any
	err := c.GetJSON(context.Background(), "x", nil, &got)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.False(t, errors.IsTransient(err))
	assert.Contains(t, err.Error(), "no such title")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSONRateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithRetry(1, 0))

	var got map[string]any
	err := c.GetJSON(context.Background(), "x", nil, &got)
	require.True(t, errors.IsRateLimitError(err))
	assert.Contains(t, err.Error(), "7s")
}

func TestGetJSONUnauthorizedStopsProcessing(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	var got map[string]any
	err := c.GetJSON(context.Background(), "x", nil, &got)
	require.True(t, errors.IsStopProcessingError(err))
	assert.Contains(t, err.Error(), "Test rejected the configured credentials")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSONBadBodyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{not json`))
	})

	var got map[string]any
	err := c.GetJSON(context.Background(), "x", nil, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRawReturnsAnyStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"bad token"}`))
	})

	resp, err := c.GetRaw(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"message":"bad token"}`, string(resp.Body))
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetry(5, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var got map[string]any
	err := c.GetJSON(ctx, "x", nil, &got)
	require.Error(t, err)
}

func TestURL(t *testing.T) {
	c := NewClient("Test", "https://api.example.com/")
	assert.Equal(t, "https://api.example.com/v1/a", c.URL("/v1/a", nil))
	assert.Equal(t, "https://api.example.com/v1/a?q=1", c.URL("v1/a", url.Values{"q": {"1"}}))
	assert.Equal(t, "Test", c.Vendor())
}
