package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/lepinkainen/folio/internal/lane"
	"github.com/lepinkainen/folio/internal/model"
)

// Taxonomy loads the genre tree and custom lists for resolving lanes.
func (s *Store) Taxonomy(ctx context.Context) (*lane.Taxonomy, error) {
	genres, err := s.Genres(ctx)
	if err != nil {
		return nil, err
	}
	lists, err := s.CustomLists(ctx)
	if err != nil {
		return nil, err
	}
	return lane.NewTaxonomy(genres, lists), nil
}

// sortColumns maps the logical sort fields of lane.Facets onto columns.
var sortColumns = map[string]string{
	"work_id":          "w.id",
	"sort_title":       "w.sort_title",
	"sort_author":      "w.sort_author",
	"last_update_time": "w.last_update",
	"random":           "w.random",
}

// docConditions turns the restrictions of f that live on the works table
// into a WHERE clause over works w. Everything else is left to f.Match. A
// nil f selects every presentation-ready work.
func docConditions(f *lane.Filter) (string, []any) {
	conds := []string{"w.presentation_ready = 1"}
	var args []any
	in := func(column string, values []any) {
		conds = append(conds, column+" IN ("+placeholders(len(values))+")")
		args = append(args, values...)
	}
	if f != nil {
		if len(f.WorkIDs) > 0 {
			in("w.id", int64Args(f.WorkIDs))
		}
		if len(f.Languages) > 0 {
			in("w.language", stringArgs(f.Languages))
		}
		if len(f.Media) > 0 {
			in("w.medium", stringArgs(f.Media))
		}
		if len(f.Audiences) > 0 {
			in("w.audience", stringArgs(f.Audiences))
		}
		if f.Fiction != nil {
			conds = append(conds, "w.fiction = ?")
			args = append(args, *f.Fiction)
		}
	}
	return strings.Join(conds, " AND "), args
}

// docs loads presentation-ready works matching the column restrictions of
// f as search documents. orderBy is a SQL ORDER BY list.
func (s *Store) docs(ctx context.Context, f *lane.Filter, orderBy string) ([]*lane.Doc, error) {
	where, args := docConditions(f)
	if orderBy == "" {
		orderBy = "w.id"
	}
	query := "SELECT " + workColumns + " FROM works w WHERE " + where + " ORDER BY " + orderBy

	rows, err := s.reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading search documents: %w", err)
	}
	var works []*model.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		works = append(works, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadWorkGenres(ctx, works); err != nil {
		return nil, err
	}

	docs := make([]*lane.Doc, len(works))
	byID := make(map[int64]*lane.Doc, len(works))
	for i, w := range works {
		docs[i] = &lane.Doc{Work: w}
		byID[w.ID] = docs[i]
	}
	if len(docs) == 0 {
		return docs, nil
	}
	// Pools and list entries are only read for the works just loaded.
	loaded := "work_id IN (SELECT w.id FROM works w WHERE " + where + ")"
	if err := s.loadPools(ctx, byID, loaded, args); err != nil {
		return nil, err
	}
	if err := s.loadListEntries(ctx, byID, loaded, args); err != nil {
		return nil, err
	}
	return docs, nil
}

// loadPools fills in circulation from each work's first license pool.
func (s *Store) loadPools(ctx context.Context, byID map[int64]*lane.Doc, where string, args []any) error {
	rows, err := s.reader().QueryContext(ctx, "SELECT "+poolColumns+" FROM license_pools WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return fmt.Errorf("loading license pools: %w", err)
	}
	defer rows.Close()
	seen := make(map[int64]bool)
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return err
		}
		d, ok := byID[p.WorkID]
		if !ok || seen[p.WorkID] {
			continue
		}
		seen[p.WorkID] = true
		d.DataSource = p.DataSource
		d.OpenAccess = p.OpenAccess
		d.LicensesOwned = p.LicensesOwned
		d.LicensesAvailable = p.LicensesAvailable
		d.AvailabilityTime = p.AvailabilityTime
	}
	return rows.Err()
}

func (s *Store) loadListEntries(ctx context.Context, byID map[int64]*lane.Doc, where string, args []any) error {
	rows, err := s.reader().QueryContext(ctx, "SELECT customlist_id, work_id, featured FROM customlist_entries WHERE "+where+" ORDER BY customlist_id", args...)
	if err != nil {
		return fmt.Errorf("loading list entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var listID, workID int64
		var featured bool
		if err := rows.Scan(&listID, &workID, &featured); err != nil {
			return err
		}
		d, ok := byID[workID]
		if !ok {
			continue
		}
		d.CustomListIDs = append(d.CustomListIDs, listID)
		if featured {
			d.FeaturedListIDs = append(d.FeaturedListIDs, listID)
		}
	}
	return rows.Err()
}

// QueryWorks runs a search over the catalog.
func (s *Store) QueryWorks(ctx context.Context, f *lane.Filter, p *lane.Pagination) ([]lane.Hit, error) {
	docs, err := s.docs(ctx, f, "")
	if err != nil {
		return nil, err
	}
	return lane.Search(docs, f, p), nil
}

// QueryWorksMulti runs several searches over one load of the catalog.
func (s *Store) QueryWorksMulti(ctx context.Context, filters []*lane.Filter, p *lane.Pagination) ([][]lane.Hit, error) {
	docs, err := s.docs(ctx, nil, "")
	if err != nil {
		return nil, err
	}
	out := make([][]lane.Hit, len(filters))
	for i, f := range filters {
		page := lane.NewPagination(p.Offset, p.Size)
		out[i] = lane.Search(docs, f, page)
	}
	return out, nil
}

// WorksFromDatabase lists the works in l, sorted in SQL by the facets'
// order. A nil p returns every work.
func (s *Store) WorksFromDatabase(ctx context.Context, l lane.List, facets *lane.Facets, p *lane.Pagination) ([]*model.Work, error) {
	matched, err := s.matchFromDatabase(ctx, l, facets)
	if err != nil {
		return nil, err
	}
	start, end := 0, len(matched)
	if p != nil {
		p.SetTotalSize(len(matched))
		start = min(p.Offset, len(matched))
		end = min(start+p.Size, len(matched))
		p.PageLoaded(end - start)
	}
	out := make([]*model.Work, 0, end-start)
	for _, d := range matched[start:end] {
		out = append(out, d.Work)
	}
	return out, nil
}

// CountWorks counts the works in l under facets.
func (s *Store) CountWorks(ctx context.Context, l lane.List, facets *lane.Facets) (int, error) {
	matched, err := s.matchFromDatabase(ctx, l, facets)
	return len(matched), err
}

func (s *Store) matchFromDatabase(ctx context.Context, l lane.List, facets *lane.Facets) ([]*lane.Doc, error) {
	var mod lane.SearchModifier
	if facets != nil {
		mod = facets
	}
	f, err := lane.NewFilter(l, mod)
	if err != nil {
		return nil, err
	}
	var order []string
	if facets != nil {
		for i, field := range facets.OrderBy() {
			col := sortColumns[field]
			if i == 0 && !facets.OrderAscending {
				col += " DESC"
			}
			order = append(order, col)
		}
	}
	docs, err := s.docs(ctx, f, strings.Join(order, ", "))
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(docs, func(d *lane.Doc) bool { return !f.Match(d) }), nil
}
