// Package server exposes the catalog's lanes, grouped feeds and coverage
// state over HTTP.
package server

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/lane"
	"github.com/lepinkainen/folio/internal/model"
	"github.com/lepinkainen/folio/internal/thumbnail"
)

// Catalog is what the handlers read from. *catalog.Store satisfies it.
type Catalog interface {
	lane.Searcher
	Lanes(ctx context.Context, library *model.Library) ([]*lane.Lane, error)
	WorksFromDatabase(ctx context.Context, l lane.List, facets *lane.Facets, p *lane.Pagination) ([]*model.Work, error)
	CoverageStatusCounts(ctx context.Context, dataSource, operation string) (catalog.StatusCounts, error)
	WorkCoverageStatusCounts(ctx context.Context, operation string) (catalog.StatusCounts, error)
}

// Deps are the handlers' dependencies.
type Deps struct {
	Catalog     Catalog
	Library     *model.Library
	FacetConfig lane.FacetConfig
	Logger      *slog.Logger
}

// identifierSources maps the source names used in URLs to data sources
// with identifier coverage.
var identifierSources = map[string]string{
	"overdrive": model.DataSourceOverdrive,
	"oneclick":  model.DataSourceOneClick,
}

// New builds the router.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/healthz", handleHealth())
	r.Get("/lanes", handleListLanes(deps))
	r.Get("/groups", handleTopLevelGroups(deps))
	r.Get("/lanes/{id}/groups", handleLaneGroups(deps))
	r.Get("/lanes/{id}/works", handleLaneWorks(deps))
	r.Get("/lanes/{id}/search", handleLaneSearch(deps))
	r.Get("/coverage/{source}/status", handleCoverageStatus(deps))

	return r
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LaneNode is one lane in the /lanes tree.
type LaneNode struct {
	ID             int64      `json:"id"`
	DisplayName    string     `json:"display_name"`
	FullIdentifier string     `json:"full_identifier"`
	Priority       int        `json:"priority"`
	Visible        bool       `json:"visible"`
	Size           int        `json:"size"`
	Sublanes       []LaneNode `json:"sublanes,omitempty"`
}

// laneTree renders l and its sublanes with their sizes under ep.
func laneTree(l *lane.Lane, ep *lane.EntryPoint) LaneNode {
	// A lane cut off from its parent chain still renders; the identifier
	// is just missing.
	full, _ := lane.FullIdentifier(l)
	n := LaneNode{
		ID:             l.ID,
		DisplayName:    l.DisplayName,
		FullIdentifier: full,
		Priority:       l.Priority,
		Visible:        l.IsVisible(),
		Size:           l.SizeFor(ep),
	}
	for _, c := range l.Sublanes() {
		n.Sublanes = append(n.Sublanes, laneTree(c, ep))
	}
	return n
}

func handleListLanes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ep, ok := entryPointArg(w, r)
		if !ok {
			return
		}
		lanes, err := deps.Catalog.Lanes(r.Context(), deps.Library)
		if err != nil {
			deps.Logger.Error("Failed to load lanes", "error", err)
			httpError(w, http.StatusInternalServerError, "failed to load lanes: %v", err)
			return
		}

		out := []LaneNode{}
		for _, l := range lanes {
			if l.Parent() == nil {
				out = append(out, laneTree(l, ep))
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GroupEntry is one work in a grouped feed, tagged with the lane it was
// featured in.
type GroupEntry struct {
	LaneID   int64       `json:"lane_id,omitempty"`
	LaneName string      `json:"lane"`
	Work     *model.Work `json:"work"`
}

func groupEntries(entries []lane.WorkInList) []GroupEntry {
	out := make([]GroupEntry, 0, len(entries))
	for _, e := range entries {
		g := GroupEntry{LaneName: e.List.Label(), Work: e.Work}
		if l, ok := e.List.(*lane.Lane); ok {
			g.LaneID = l.ID
		}
		out = append(out, g)
	}
	return out
}

func handleTopLevelGroups(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lanes, err := deps.Catalog.Lanes(r.Context(), deps.Library)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load lanes: %v", err)
			return
		}
		top := lane.TopLevelForLibrary(deps.Library, lanes)
		writeGroups(w, r, deps, top)
	}
}

func handleLaneGroups(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := findLane(w, r, deps)
		if !ok {
			return
		}
		writeGroups(w, r, deps, l)
	}
}

// entryPointArg resolves the entrypoint query argument, which may be
// absent. On failure the error response has already been written.
func entryPointArg(w http.ResponseWriter, r *http.Request) (*lane.EntryPoint, bool) {
	name := r.URL.Query().Get(lane.GroupEntryPoint)
	if name == "" {
		return nil, true
	}
	ep := lane.EntryPointByName(name)
	if ep == nil {
		httpError(w, http.StatusBadRequest, "unknown entry point %q", name)
		return nil, false
	}
	return ep, true
}

func writeGroups(w http.ResponseWriter, r *http.Request, deps Deps, l lane.List) {
	ep, ok := entryPointArg(w, r)
	if !ok {
		return
	}

	entries, err := lane.Groups(r.Context(), deps.Catalog, l, true, lane.NewFeaturedFacets(l, ep))
	if err != nil {
		deps.Logger.Error("Failed to build grouped feed", "list", l.Label(), "error", err)
		httpError(w, http.StatusInternalServerError, "failed to build grouped feed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, groupEntries(entries))
}

// WorksPage is a page of a lane's works plus the links to move around it.
type WorksPage struct {
	Works  []*model.Work `json:"works"`
	Facets string        `json:"facets"`
	Next   string        `json:"next,omitempty"`
	// FacetLinks are the other facet choices, as query strings.
	FacetLinks []FacetLink `json:"facet_links,omitempty"`
}

// FacetLink is one facet a client can switch to.
type FacetLink struct {
	Group    string `json:"group"`
	Value    string `json:"value"`
	Title    string `json:"title"`
	Href     string `json:"href"`
	Selected bool   `json:"selected,omitempty"`
}

// sourceDatabase selects SQL ordering instead of the search index.
const sourceDatabase = "database"

func handleLaneWorks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := findLane(w, r, deps)
		if !ok {
			return
		}

		args := r.URL.Query()
		fromDatabase := args.Get("source") == sourceDatabase
		facetsFromRequest := lane.FacetsFromRequest
		if fromDatabase {
			facetsFromRequest = lane.DatabaseBackedFacetsFromRequest
		}

		facets, err := facetsFromRequest(deps.FacetConfig, deps.Library, args, l, nil)
		if err != nil {
			var invalid *lane.InvalidInputError
			if stdErrors.As(err, &invalid) {
				httpError(w, http.StatusBadRequest, "%s", invalid.Detail)
				return
			}
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}

		p, ok := paginationArgs(w, r)
		if !ok {
			return
		}

		var works []*model.Work
		if fromDatabase {
			works, err = deps.Catalog.WorksFromDatabase(r.Context(), l, facets, p)
		} else {
			works, err = lane.Works(r.Context(), deps.Catalog, l, facets, p)
		}
		if err != nil {
			deps.Logger.Error("Failed to load works", "lane", l.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "failed to load works: %v", err)
			return
		}

		propagate := func(qs string) string {
			if fromDatabase {
				return qs + "&source=" + sourceDatabase
			}
			return qs
		}
		page := WorksPage{Works: works, Facets: propagate(facets.QueryString())}
		if page.Works == nil {
			page.Works = []*model.Work{}
		}
		if p.HasNextPage() {
			page.Next = page.Facets + "&" + p.NextPage().QueryString()
		}
		for _, g := range facets.FacetGroups() {
			page.FacetLinks = append(page.FacetLinks, FacetLink{
				Group:    g.Group,
				Value:    g.Value,
				Title:    lane.FacetTitle(g.Value),
				Href:     propagate(g.Facets.QueryString()),
				Selected: g.Selected,
			})
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// SearchPage lists the works a search started from a lane would range over.
type SearchPage struct {
	Target string        `json:"target"`
	Works  []*model.Work `json:"works"`
	Facets string        `json:"facets"`
	Next   string        `json:"next,omitempty"`
}

func handleLaneSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := findLane(w, r, deps)
		if !ok {
			return
		}
		target, err := l.SearchTarget()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to find search target: %v", err)
			return
		}
		facets := lane.SearchFacetsFromRequest(r.URL.Query(), r.Header, target, nil)

		p, ok := paginationArgs(w, r)
		if !ok {
			return
		}
		works, err := lane.Works(r.Context(), deps.Catalog, target, facets, p)
		if err != nil {
			deps.Logger.Error("Failed to search", "lane", l.ID, "target", target.Label(), "error", err)
			httpError(w, http.StatusInternalServerError, "failed to search: %v", err)
			return
		}

		page := SearchPage{Target: target.Label(), Works: works, Facets: facets.QueryString()}
		if page.Works == nil {
			page.Works = []*model.Work{}
		}
		if p.HasNextPage() {
			page.Next = page.Facets + "&" + p.NextPage().QueryString()
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// paginationArgs reads the after and size arguments. On failure the error
// response has already been written.
func paginationArgs(w http.ResponseWriter, r *http.Request) (*lane.Pagination, bool) {
	args := r.URL.Query()
	offset, err := intArg(args.Get("after"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid offset: %v", err)
		return nil, false
	}
	size, err := intArg(args.Get("size"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid size: %v", err)
		return nil, false
	}
	return lane.NewPagination(offset, size), true
}

func intArg(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}

// findLane resolves the {id} URL parameter. On failure the error response
// has already been written.
func findLane(w http.ResponseWriter, r *http.Request, deps Deps) (*lane.Lane, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid lane id %q", raw)
		return nil, false
	}

	lanes, err := deps.Catalog.Lanes(r.Context(), deps.Library)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load lanes: %v", err)
		return nil, false
	}
	for _, l := range lanes {
		if l.ID == id {
			return l, true
		}
	}
	httpError(w, http.StatusNotFound, "lane %d not found", id)
	return nil, false
}

// CoverageStatus is the body of /coverage/{source}/status.
type CoverageStatus struct {
	Source    string               `json:"source"`
	Operation string               `json:"operation,omitempty"`
	Counts    catalog.StatusCounts `json:"counts"`
}

func handleCoverageStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		operation := r.URL.Query().Get("operation")

		var (
			counts catalog.StatusCounts
			err    error
		)
		if source == "thumbnails" {
			if operation == "" {
				operation = thumbnail.Operation
			}
			counts, err = deps.Catalog.WorkCoverageStatusCounts(r.Context(), operation)
		} else {
			dataSource, ok := identifierSources[source]
			if !ok {
				httpError(w, http.StatusNotFound, "unknown coverage source %q", source)
				return
			}
			counts, err = deps.Catalog.CoverageStatusCounts(r.Context(), dataSource, operation)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to count coverage: %v", err)
			return
		}
		if counts == nil {
			counts = catalog.StatusCounts{}
		}
		writeJSON(w, http.StatusOK, CoverageStatus{Source: source, Operation: operation, Counts: counts})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}
