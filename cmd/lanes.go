package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/folio/internal/lane"
	"github.com/lepinkainen/folio/internal/report"
	"github.com/lepinkainen/folio/internal/server"
)

// LanesCmd groups the lane commands.
type LanesCmd struct {
	Load    LanesLoadCmd    `cmd:"" help:"Replace the library's lanes with the ones in a lanes file"`
	Show    LanesShowCmd    `cmd:"" help:"Print the lane tree"`
	Groups  LanesGroupsCmd  `cmd:"" help:"Print the grouped feed of a lane"`
	Explain LanesExplainCmd `cmd:"" help:"Print a lane's settings"`
}

// LanesLoadCmd loads lane definitions from YAML.
type LanesLoadCmd struct {
	File string `short:"f" required:"" type:"existingfile" help:"Path to the lanes YAML file"`
}

type LanesShowCmd struct{}

// LanesGroupsCmd prints the featured works of a lane's sublanes.
type LanesGroupsCmd struct {
	Lane       int64  `help:"Lane id; omit for the library's top level"`
	EntryPoint string `name:"entrypoint" help:"Restrict to an entry point (Book, Audio)"`
}

type LanesExplainCmd struct {
	Lane int64 `arg:"" help:"Lane id"`
}

func (c *LanesLoadCmd) Run(ctx context.Context) error {
	defs, err := lane.LoadDefinitionsFile(c.File)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	taxonomy, err := a.store.Taxonomy(ctx)
	if err != nil {
		return fmt.Errorf("failed to load taxonomy: %w", err)
	}
	lanes, err := lane.BuildLanes(defs, a.library, taxonomy)
	if err != nil {
		return err
	}

	if err := a.store.DeleteLanes(ctx, a.library.ID); err != nil {
		return err
	}
	// BuildLanes orders parents before children, so every parent has an id
	// by the time its sublanes are saved.
	for _, l := range lanes {
		if err := a.store.SaveLane(ctx, l); err != nil {
			_ = a.store.Rollback()
			return fmt.Errorf("failed to save lane %q: %w", l.DisplayName, err)
		}
	}
	for _, l := range lanes {
		if err := a.store.UpdateLaneSize(ctx, l); err != nil {
			_ = a.store.Rollback()
			return err
		}
	}
	if err := a.store.Commit(ctx); err != nil {
		return err
	}
	slog.Info("Lanes loaded", "file", c.File, "lanes", len(lanes))

	return report.LaneTree(stdout, lanes)
}

func (c *LanesShowCmd) Run(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lanes, err := a.store.Lanes(ctx, a.library)
	if err != nil {
		return err
	}
	if len(lanes) == 0 {
		slog.Info("No lanes configured; load some with 'folio lanes load'")
		return nil
	}
	return report.LaneTree(stdout, lanes)
}

func (c *LanesGroupsCmd) Run(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lanes, err := a.store.Lanes(ctx, a.library)
	if err != nil {
		return err
	}

	var list lane.List
	if c.Lane == 0 {
		list = lane.TopLevelForLibrary(a.library, lanes)
	} else {
		l, err := findLane(lanes, c.Lane)
		if err != nil {
			return err
		}
		list = l
	}

	var ep *lane.EntryPoint
	if c.EntryPoint != "" {
		if ep = lane.EntryPointByName(c.EntryPoint); ep == nil {
			return fmt.Errorf("unknown entry point %q", c.EntryPoint)
		}
	}
	entries, err := lane.Groups(ctx, a.store, list, true, lane.NewFeaturedFacets(list, ep))
	if err != nil {
		return err
	}

	current := ""
	for _, e := range entries {
		if label := e.List.Label(); label != current {
			current = label
			fmt.Fprintf(stdout, "%s\n", label)
		}
		fmt.Fprintf(stdout, "  %6d  %s / %s\n", e.Work.ID, e.Work.Title, e.Work.Author)
	}
	return nil
}

func (c *LanesExplainCmd) Run(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lanes, err := a.store.Lanes(ctx, a.library)
	if err != nil {
		return err
	}
	l, err := findLane(lanes, c.Lane)
	if err != nil {
		return err
	}
	return report.Explain(stdout, l)
}

func findLane(lanes []*lane.Lane, id int64) (*lane.Lane, error) {
	for _, l := range lanes {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("lane %d not found", id)
}

// ServeCmd serves lanes, grouped feeds and coverage state over HTTP.
type ServeCmd struct {
	Addr string `help:"Address to listen on (defaults to server.addr)"`
}

func (c *ServeCmd) Run(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := c.Addr
	if addr == "" {
		addr = a.settings.Server.Addr
	}
	h := server.New(server.Deps{
		Catalog:     a.store,
		Library:     a.library,
		FacetConfig: a.settings.FacetConfig(),
		Logger:      slog.Default(),
	})
	return server.Serve(ctx, addr, h)
}
