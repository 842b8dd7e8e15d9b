// Package thumbnail renders cover thumbnails for works as a work coverage
// operation.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/lepinkainen/folio/internal/coverage"
	"github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/model"
	"github.com/lepinkainen/folio/internal/vendors"
)

const (
	// Operation is the work coverage operation thumbnails are recorded under.
	Operation = "generate-thumbnail"
	// ServiceName identifies the provider in logs and timestamps.
	ServiceName = "Thumbnail Generator"

	defaultWidth = 300
	writers      = 4
)

// Store is the part of the catalog the generator needs.
type Store interface {
	coverage.WorkStore
	SetWorkThumbnail(ctx context.Context, workID int64, path string) error
}

// Generator downloads covers, shrinks them, and writes them out at the end
// of every batch.
type Generator struct {
	store      Store
	httpClient vendors.HTTPDoer
	dir        string
	width      int

	mu      sync.Mutex
	pending map[int64]image.Image
}

// Option configures a Generator.
type Option func(*Generator)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c vendors.HTTPDoer) Option {
	return func(g *Generator) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// NewCoverageProvider builds the thumbnail provider. Thumbnails are written
// to dir as <work id>.jpg, no wider than width pixels.
func NewCoverageProvider(store Store, dir string, width int, settings coverage.Settings, opts ...Option) *coverage.WorkProvider {
	g := NewGenerator(store, dir, width, opts...)
	if settings.ServiceName == "" {
		settings.ServiceName = ServiceName
	}
	settings.Operation = Operation
	return coverage.NewWorkProvider(store, settings, g)
}

// NewGenerator creates the processing step of the thumbnail provider.
func NewGenerator(store Store, dir string, width int, opts ...Option) *Generator {
	if width <= 0 {
		width = defaultWidth
	}
	g := &Generator{
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dir:        dir,
		width:      width,
		pending:    map[int64]image.Image{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Path is where the thumbnail of a work is written.
func (g *Generator) Path(workID int64) string {
	return filepath.Join(g.dir, strconv.FormatInt(workID, 10)+".jpg")
}

func (g *Generator) ProcessItem(ctx context.Context, w *model.Work) (coverage.Result[*model.Work], error) {
	if w.CoverURL == "" {
		return coverage.Failed(coverage.PersistentFailure(w, "Work has no cover image", "")), nil
	}

	img, transient, err := g.download(ctx, w.CoverURL)
	if err != nil {
		return coverage.Failed(coverage.NewFailure(w, err.Error(), "", transient)), nil
	}
	if img.Bounds().Dx() > g.width {
		img = imaging.Resize(img, g.width, 0, imaging.Lanczos)
	}

	g.mu.Lock()
	g.pending[w.ID] = img
	g.mu.Unlock()
	return coverage.Succeeded(w), nil
}

// download fetches and decodes an image. transient tells whether trying
// again later could help.
func (g *Generator) download(ctx context.Context, url string) (image.Image, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("bad cover URL %q: %w", url, err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("downloading cover: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Missing or forbidden covers stay that way; server errors and 429 may not.
		err := errors.NewVendorError("cover host", resp.StatusCode, "downloading cover")
		return nil, errors.IsTransient(err), err
	}

	img, err := imaging.Decode(resp.Body, imaging.AutoOrientation(true))
	if err != nil {
		return nil, false, fmt.Errorf("decoding cover: %w", err)
	}
	return img, false, nil
}

// FinalizeBatch writes the thumbnails produced by the batch and records
// their paths.
func (g *Generator) FinalizeBatch(ctx context.Context) error {
	g.mu.Lock()
	pending := g.pending
	g.pending = map[int64]image.Image{}
	g.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("creating thumbnail directory: %w", err)
	}

	ids := slices.Sorted(maps.Keys(pending))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(writers)
	for _, id := range ids {
		img := pending[id]
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			if err := imaging.Save(img, g.Path(id), imaging.JPEGQuality(85)); err != nil {
				return fmt.Errorf("writing thumbnail of work %d: %w", id, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	// The catalog has a single connection, so paths are recorded serially.
	for _, id := range ids {
		if err := g.store.SetWorkThumbnail(ctx, id, g.Path(id)); err != nil {
			return err
		}
	}
	return nil
}
