package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/coverage"
	"github.com/lepinkainen/folio/internal/csvutil"
	"github.com/lepinkainen/folio/internal/model"
	"github.com/lepinkainen/folio/internal/report"
	"github.com/lepinkainen/folio/internal/thumbnail"
)

// CoverageCmd groups the coverage provider commands.
type CoverageCmd struct {
	Run    CoverageRunCmd    `cmd:"" help:"Run one coverage provider"`
	RunAll CoverageRunAllCmd `cmd:"" name:"run-all" help:"Run several coverage providers, alternating between them batch by batch"`
	Ensure CoverageEnsureCmd `cmd:"" help:"Cover a single item right now"`
	Status CoverageStatusCmd `cmd:"" help:"Show coverage record counts"`
}

// CoverageRunCmd runs a full sweep, or covers just the given items.
type CoverageRunCmd struct {
	Provider   string   `short:"p" required:"" enum:"overdrive,oneclick,thumbnails" help:"Provider to run (overdrive, oneclick, thumbnails)"`
	CutoffTime string   `help:"Treat records older than this RFC3339 time as missing"`
	Input      string   `short:"i" type:"existingfile" help:"CSV file listing more items to cover"`
	Column     string   `default:"identifier" help:"CSV column holding the items"`
	Items      []string `arg:"" optional:"" help:"Identifiers (or work ids for thumbnails) to cover instead of sweeping"`
}

// CoverageRunAllCmd interleaves several providers.
type CoverageRunAllCmd struct {
	Providers  []string `short:"p" default:"overdrive,oneclick,thumbnails" help:"Providers to run"`
	CutoffTime string   `help:"Treat records older than this RFC3339 time as missing"`
}

// CoverageEnsureCmd covers one item outside a sweep.
type CoverageEnsureCmd struct {
	Provider string `short:"p" required:"" enum:"overdrive,oneclick,thumbnails" help:"Provider to use (overdrive, oneclick, thumbnails)"`
	Force    bool   `help:"Reprocess even if the item is already covered"`
	Item     string `arg:"" help:"Identifier, or work id for thumbnails"`
}

// CoverageStatusCmd prints record counts per provider.
type CoverageStatusCmd struct {
	Provider  string `short:"p" help:"Only show this provider"`
	Operation string `help:"Coverage operation to count (identifier providers only)"`
}

// stdout receives command output. Tests swap it.
var stdout io.Writer = os.Stdout

func (c *CoverageRunCmd) Run(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.coverageSettings(c.CutoffTime)
	if err != nil {
		return err
	}

	items := c.Items
	if c.Input != "" {
		listed, err := csvutil.ProcessFile(c.Input, csvutil.Column(c.Column), csvutil.ProcessorOptions{SkipInvalid: true})
		if err != nil {
			return err
		}
		if len(listed) == 0 {
			return fmt.Errorf("no %q values in %s", c.Column, c.Input)
		}
		items = append(items, listed...)
	}

	if len(items) == 0 {
		r, err := a.runner(c.Provider, settings)
		if err != nil {
			return err
		}
		return r.RunOnceAndUpdateTimestamp(ctx)
	}

	var counts coverage.Counts
	if c.Provider == providerThumbnails {
		works, err := a.works(ctx, items)
		if err != nil {
			return err
		}
		counts, _, err = a.thumbnailProvider(settings).RunOnSpecificItems(ctx, works)
		if err != nil {
			return err
		}
	} else {
		p, err := a.bibliographicProvider(c.Provider, settings)
		if err != nil {
			return err
		}
		ids, err := a.identifiers(ctx, c.Provider, items)
		if err != nil {
			return err
		}
		counts, _, err = p.RunOnSpecificItems(ctx, ids)
		if err != nil {
			return err
		}
	}

	slog.Info("Coverage finished",
		"provider", c.Provider,
		"successes", counts.Successes,
		"transient_failures", counts.TransientFailures,
		"persistent_failures", counts.PersistentFailures)
	return nil
}

func (c *CoverageRunAllCmd) Run(ctx context.Context) error {
	for _, name := range c.Providers {
		if !slices.Contains(providerNames, name) {
			return unknownProvider(name)
		}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.coverageSettings(c.CutoffTime)
	if err != nil {
		return err
	}

	var runners []coverage.Runner
	for _, name := range c.Providers {
		r, err := a.runner(name, settings)
		if err != nil {
			// An unconfigured vendor should not stop the others.
			slog.Warn("Skipping provider", "provider", name, "error", err)
			continue
		}
		runners = append(runners, r)
	}
	if len(runners) == 0 {
		return fmt.Errorf("no provider could be started")
	}
	return coverage.RoundRobin(ctx, runners...)
}

func (c *CoverageEnsureCmd) Run(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.coverageSettings("")
	if err != nil {
		return err
	}

	var rec *coverage.Record
	if c.Provider == providerThumbnails {
		works, err := a.works(ctx, []string{c.Item})
		if err != nil {
			return err
		}
		if rec, err = a.thumbnailProvider(settings).EnsureCoverage(ctx, works[0], c.Force); err != nil {
			return err
		}
	} else {
		p, err := a.bibliographicProvider(c.Provider, settings)
		if err != nil {
			return err
		}
		ids, err := a.identifiers(ctx, c.Provider, []string{c.Item})
		if err != nil {
			return err
		}
		if rec, err = p.EnsureCoverage(ctx, ids[0], c.Force); err != nil {
			return err
		}
	}

	if rec == nil {
		slog.Info("No coverage record written", "item", c.Item)
		return nil
	}
	slog.Info("Coverage record", "item", c.Item, "status", rec.Status, "exception", rec.Exception)
	return nil
}

func (c *CoverageStatusCmd) Run(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	providers := providerNames
	if c.Provider != "" {
		if !slices.Contains(providerNames, c.Provider) {
			return unknownProvider(c.Provider)
		}
		providers = []string{c.Provider}
	}

	now := time.Now()
	for _, name := range providers {
		var (
			counts  catalog.StatusCounts
			service string
		)
		if name == providerThumbnails {
			service = thumbnail.ServiceName
			counts, err = a.store.WorkCoverageStatusCounts(ctx, thumbnail.Operation)
		} else {
			ds := dataSourceFor(name)
			service = ds + " Bibliographic Monitor"
			counts, err = a.store.CoverageStatusCounts(ctx, ds, c.Operation)
		}
		if err != nil {
			return fmt.Errorf("counting %s coverage: %w", name, err)
		}
		last, err := a.store.Timestamp(ctx, service)
		if err != nil {
			return fmt.Errorf("reading %s timestamp: %w", service, err)
		}
		if err := report.Coverage(stdout, service, counts, last, now); err != nil {
			return err
		}
	}
	return nil
}

func dataSourceFor(provider string) string {
	switch provider {
	case providerOverdrive:
		return model.DataSourceOverdrive
	case providerOneClick:
		return model.DataSourceOneClick
	}
	return ""
}

// identifiers looks up, creating as needed, the identifiers a provider
// covers.
func (a *app) identifiers(ctx context.Context, provider string, values []string) ([]*model.Identifier, error) {
	idType := identifierType(provider)
	out := make([]*model.Identifier, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		id, err := a.store.Identifier(ctx, idType, v, true)
		if err != nil {
			return nil, fmt.Errorf("looking up identifier %s: %w", v, err)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no identifiers given")
	}
	if err := a.store.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// works loads works by id.
func (a *app) works(ctx context.Context, values []string) ([]*model.Work, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid work id %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	works, err := a.store.WorksByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(works) != len(ids) {
		return nil, fmt.Errorf("found %d of %d works", len(works), len(ids))
	}
	return works, nil
}
