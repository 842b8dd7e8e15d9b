package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/coverage"
	"github.com/lepinkainen/folio/internal/model"
	"github.com/lepinkainen/folio/internal/testutil"
)

func coverPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 80, B: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func coverServer(t *testing.T) *httptest.Server {
	t.Helper()
	big := coverPNG(t, 600, 900)
	small := coverPNG(t, 100, 150)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big.png":
			_, _ = w.Write(big)
		case "/small.png":
			_, _ = w.Write(small)
		case "/broken.png":
			_, _ = w.Write([]byte("not an image"))
		case "/flaky.png":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/throttled.png":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/private.png":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// addWork creates a titled work whose presentation edition has coverURL.
func addWork(t *testing.T, s *catalog.Store, value, coverURL string) *model.Work {
	t.Helper()
	ctx := context.Background()
	id, err := s.Identifier(ctx, model.IdentifierOverdrive, value, true)
	require.NoError(t, err)
	pool, err := s.CreateLicensePool(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	ed, err := s.Edition(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	ed.Title = "Title " + value
	ed.CoverURL = coverURL
	require.NoError(t, s.SaveEdition(ctx, ed))
	w, err := s.CalculateWork(ctx, pool)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w
}

func TestThumbnailSweep(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	srv := coverServer(t)

	store, err := catalog.Open(env.Path("catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	big := addWork(t, store, "big", srv.URL+"/big.png")
	small := addWork(t, store, "small", srv.URL+"/small.png")
	none := addWork(t, store, "none", "")
	broken := addWork(t, store, "broken", srv.URL+"/broken.png")
	flaky := addWork(t, store, "flaky", srv.URL+"/flaky.png")
	require.NoError(t, store.Commit(ctx))

	dir := env.Path("thumbs")
	provider := NewCoverageProvider(store, dir, 200, coverage.Settings{BatchSize: 2}, WithHTTPClient(srv.Client()))
	assert.Equal(t, Operation, provider.Operation())
	require.NoError(t, provider.RunOnceAndUpdateTimestamp(ctx))

	want := map[int64]coverage.Status{
		big.ID:    coverage.StatusSuccess,
		small.ID:  coverage.StatusSuccess,
		none.ID:   coverage.StatusPersistentFailure,
		broken.ID: coverage.StatusPersistentFailure,
		flaky.ID:  coverage.StatusTransientFailure,
	}
	for id, status := range want {
		rec, err := store.WorkCoverageRecord(ctx, id, Operation)
		require.NoError(t, err)
		require.NotNil(t, rec, "work %d", id)
		assert.Equal(t, status, rec.Status, "work %d", id)
	}

	w, err := store.Work(ctx, big.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, strconv.FormatInt(big.ID, 10)+".jpg"), w.ThumbnailPath)
	img, err := imaging.Open(w.ThumbnailPath)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	// Smaller covers keep their size.
	w, err = store.Work(ctx, small.ID)
	require.NoError(t, err)
	img, err = imaging.Open(w.ThumbnailPath)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())

	w, err = store.Work(ctx, none.ID)
	require.NoError(t, err)
	assert.Empty(t, w.ThumbnailPath)
}

func TestCoverDownloadFailureClassification(t *testing.T) {
	srv := coverServer(t)
	g := NewGenerator(nil, t.TempDir(), 0, WithHTTPClient(srv.Client()))

	tests := []struct {
		path      string
		transient bool
	}{
		{"/missing.png", false},
		{"/private.png", false},
		{"/broken.png", false},
		{"/throttled.png", true},
		{"/flaky.png", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := &model.Work{ID: 1, CoverURL: srv.URL + tt.path}
			result, err := g.ProcessItem(context.Background(), w)
			require.NoError(t, err)
			failure, failed := result.Failure()
			require.True(t, failed)
			assert.Equal(t, tt.transient, failure.Transient)
		})
	}
}

func TestFinalizeBatchWithNothingPending(t *testing.T) {
	env := testutil.NewTestEnv(t)
	g := NewGenerator(nil, env.Path("thumbs"), 0)
	require.NoError(t, g.FinalizeBatch(context.Background()))
	assert.False(t, env.FileExists("thumbs"))
	assert.Equal(t, env.Path("thumbs", "7.jpg"), g.Path(7))
}
