package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/coverage"
	"github.com/lepinkainen/folio/internal/model"
	"github.com/lepinkainen/folio/internal/ratelimit"
	"github.com/lepinkainen/folio/internal/thumbnail"
	"github.com/lepinkainen/folio/internal/vendors"
	"github.com/lepinkainen/folio/internal/vendors/oneclick"
	"github.com/lepinkainen/folio/internal/vendors/overdrive"
)

// Provider names accepted on the command line.
const (
	providerOverdrive  = "overdrive"
	providerOneClick   = "oneclick"
	providerThumbnails = "thumbnails"
)

var providerNames = []string{providerOverdrive, providerOneClick, providerThumbnails}

// vendorRetryAttempts bounds retries of network errors per vendor request.
const vendorRetryAttempts = 3

// app is what every command that touches the catalog works with.
type app struct {
	settings *config.Settings
	store    *catalog.Store
	library  *model.Library
	limiters *ratelimit.Registry
}

// openApp is swapped out in tests.
var openApp = func() (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := catalog.Open(settings.Catalog.DBFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return newApp(settings, store), nil
}

func newApp(settings *config.Settings, store *catalog.Store) *app {
	return &app{
		settings: settings,
		store:    store,
		library:  settings.LibraryModel(),
		limiters: ratelimit.NewRegistry(),
	}
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) coverageSettings(cutoff string) (coverage.Settings, error) {
	s := coverage.Settings{
		BatchSize:  a.settings.Coverage.BatchSize,
		CutoffTime: a.settings.Coverage.CutoffTime,
	}
	if cutoff != "" {
		t, err := time.Parse(time.RFC3339, cutoff)
		if err != nil {
			return s, fmt.Errorf("invalid cutoff time %q: %w", cutoff, err)
		}
		s.CutoffTime = t
	}
	return s, nil
}

func (a *app) vendorOptions(name string) ([]vendors.Option, config.VendorSettings, error) {
	vs, err := a.settings.Vendor(name)
	if err != nil {
		return nil, vs, err
	}
	if vs.LibraryID == "" {
		return nil, vs, fmt.Errorf("vendors.%s.library_id is not configured", name)
	}
	return []vendors.Option{
		vendors.WithRateLimiter(a.limiters.For(name, vs.RequestsPerSecond)),
		vendors.WithRetry(vendorRetryAttempts, time.Second),
	}, vs, nil
}

// bibliographicProvider builds the coverage provider of an identifier
// vendor.
func (a *app) bibliographicProvider(name string, settings coverage.Settings) (*coverage.BibliographicProvider, error) {
	opts, vs, err := a.vendorOptions(name)
	if err != nil {
		return nil, err
	}
	switch name {
	case providerOverdrive:
		if vs.Token == "" {
			return nil, fmt.Errorf("overdrive token is required (set OVERDRIVE_TOKEN or vendors.overdrive.token)")
		}
		api := overdrive.NewAPI(vs.BaseURL, vs.Token, vs.LibraryID, opts...)
		return overdrive.NewCoverageProvider(a.store, api, settings)
	case providerOneClick:
		if vs.APIKey == "" {
			return nil, fmt.Errorf("oneclick API key is required (set ONECLICK_API_KEY or vendors.oneclick.api_key)")
		}
		api := oneclick.NewAPI(vs.BaseURL, vs.APIKey, vs.LibraryID, opts...)
		return oneclick.NewCoverageProvider(a.store, api, settings)
	}
	return nil, fmt.Errorf("%q is not an identifier provider", name)
}

func (a *app) thumbnailProvider(settings coverage.Settings) *coverage.WorkProvider {
	return thumbnail.NewCoverageProvider(a.store, a.settings.Thumbnails.Dir, a.settings.Thumbnails.Width, settings)
}

// runner builds any provider as something RoundRobin and sweeps can drive.
func (a *app) runner(name string, settings coverage.Settings) (sweeper, error) {
	switch name {
	case providerThumbnails:
		return a.thumbnailProvider(settings), nil
	case providerOverdrive, providerOneClick:
		p, err := a.bibliographicProvider(name, settings)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, unknownProvider(name)
}

// sweeper is a provider that can run a full sweep on its own.
type sweeper interface {
	coverage.Runner
	RunOnceAndUpdateTimestamp(ctx context.Context) error
}

func unknownProvider(name string) error {
	return fmt.Errorf("unknown provider %q; valid providers are: %s", name, strings.Join(providerNames, ", "))
}

// identifierType is the identifier type each identifier provider covers.
func identifierType(name string) string {
	switch name {
	case providerOverdrive:
		return model.IdentifierOverdrive
	case providerOneClick:
		return model.IdentifierOneClick
	}
	return ""
}
