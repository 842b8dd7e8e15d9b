package oneclick

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/cache"
	"github.com/lepinkainen/folio/internal/ratelimit"
	"github.com/lepinkainen/folio/internal/testutil"
	"github.com/lepinkainen/folio/internal/vendors"
)

func setupCache(t *testing.T) {
	t.Helper()
	testutil.ResetConfig(t)
	env := testutil.NewTestEnv(t)
	testutil.SetupTestCache(t, env)
	require.NoError(t, cache.ResetGlobalCache())
	t.Cleanup(func() { _ = cache.ResetGlobalCache() })
}

func newTestAPI(t *testing.T, calls *atomic.Int32) *API {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Basic a2V5", r.Header.Get("Authorization"))
		assert.Equal(t, "complete", r.Header.Get("Accept-Media"))
		switch r.URL.Path {
		case "/v1/libraries/1931/media/9780307378101":
			_, _ = w.Write([]byte(sampleMedia))
		case "/v1/libraries/1931/media/9780000000000":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"Invalid 'MediaType', 'TitleId' or 'ISBN' token value supplied: 9780000000000"}`))
		case "/v1/libraries/1931/media/9781111111111":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"Library card expired"}`))
		default:
			_, _ = w.Write([]byte(`<html>oops</html>`))
		}
	}))
	t.Cleanup(srv.Close)
	return NewAPI(srv.URL+"/", "a2V5", "1931",
		vendors.WithHTTPClient(srv.Client()),
		vendors.WithRateLimiter(ratelimit.New("OneClick", 1000)),
		vendors.WithRetry(1, 0),
	)
}

func TestMetadataByISBN(t *testing.T) {
	setupCache(t)
	var calls atomic.Int32
	api := newTestAPI(t, &calls)
	ctx := context.Background()

	m, err := api.MetadataByISBN(ctx, "9780307378101")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Random House", m.Publisher)

	_, err = api.MetadataByISBN(ctx, "9780307378101")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMetadataByISBNNotInCatalog(t *testing.T) {
	setupCache(t)
	var calls atomic.Int32
	api := newTestAPI(t, &calls)
	ctx := context.Background()

	m, err := api.MetadataByISBN(ctx, "9780000000000")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = api.MetadataByISBN(ctx, "9780000000000")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMetadataByISBNErrors(t *testing.T) {
	setupCache(t)
	var calls atomic.Int32
	api := newTestAPI(t, &calls)
	ctx := context.Background()

	_, err := api.MetadataByISBN(ctx, "9781111111111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Library card expired")

	_, err = api.MetadataByISBN(ctx, "9782222222222")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not parseable")

	_, err = api.MetadataByISBN(ctx, "")
	assert.Error(t, err)
}
