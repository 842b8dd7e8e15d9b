package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lepinkainen/folio/internal/lane"
	"github.com/lepinkainen/folio/internal/model"
)

// SaveLane inserts or updates a lane with its genres and lists, filling in
// l.ID. A lane's parent must be saved first.
func (s *Store) SaveLane(ctx context.Context, l *lane.Lane) error {
	if p := l.Parent(); p != nil {
		if p.ID == 0 {
			return fmt.Errorf("lane %q: parent %q is not saved", l.DisplayName, p.DisplayName)
		}
		l.ParentID = p.ID
	}

	languages, err := encodeJSON(l.Languages)
	if err != nil {
		return err
	}
	media, err := encodeJSON(l.Media)
	if err != nil {
		return err
	}
	audiences, err := encodeJSON(l.Audiences)
	if err != nil {
		return err
	}
	roots, err := encodeJSON(l.RootForPatronType)
	if err != nil {
		return err
	}
	sizes, err := encodeJSON(l.SizeByEntryPoint)
	if err != nil {
		return err
	}

	var parent, ageMin, ageMax sql.NullInt64
	if l.ParentID != 0 {
		parent = sql.NullInt64{Int64: l.ParentID, Valid: true}
	}
	if l.TargetAge != nil {
		ageMin = sql.NullInt64{Int64: int64(l.TargetAge.Min), Valid: true}
		ageMax = sql.NullInt64{Int64: int64(l.TargetAge.Max), Valid: true}
	}
	args := []any{
		l.LibraryID, parent, l.Priority, l.DisplayName, l.Visible, l.InheritParentRestrictions,
		l.IncludeSelfInGroupedFeed, languages, media, audiences, nullBool(l.Fiction), ageMin, ageMax,
		l.LicenseDataSource, l.ListDataSource, roots, l.Size, sizes,
	}

	w, err := s.writer()
	if err != nil {
		return err
	}
	if l.ID == 0 {
		res, err := w.ExecContext(ctx, `INSERT INTO lanes (library_id, parent_id, priority, display_name, visible,
			inherit_parent_restrictions, include_self_in_grouped_feed, languages, media, audiences, fiction,
			target_age_min, target_age_max, license_data_source, list_data_source, root_for_patron_type, size,
			size_by_entrypoint) VALUES (`+placeholders(len(args))+`)`, args...)
		if err != nil {
			return fmt.Errorf("creating lane %q: %w", l.DisplayName, err)
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	} else {
		_, err := w.ExecContext(ctx, `UPDATE lanes SET library_id = ?, parent_id = ?, priority = ?, display_name = ?,
			visible = ?, inherit_parent_restrictions = ?, include_self_in_grouped_feed = ?, languages = ?, media = ?,
			audiences = ?, fiction = ?, target_age_min = ?, target_age_max = ?, license_data_source = ?,
			list_data_source = ?, root_for_patron_type = ?, size = ?, size_by_entrypoint = ? WHERE id = ?`,
			append(args, l.ID)...)
		if err != nil {
			return fmt.Errorf("updating lane %d: %w", l.ID, err)
		}
	}

	if _, err := w.ExecContext(ctx, "DELETE FROM lane_genres WHERE lane_id = ?", l.ID); err != nil {
		return err
	}
	for _, g := range l.LaneGenres {
		if _, err := w.ExecContext(ctx, "INSERT INTO lane_genres (lane_id, genre_id, inclusive, recursive) VALUES (?, ?, ?, ?)",
			l.ID, g.GenreID, g.Inclusive, g.Recursive); err != nil {
			return fmt.Errorf("saving genres of lane %d: %w", l.ID, err)
		}
	}
	if _, err := w.ExecContext(ctx, "DELETE FROM lane_customlists WHERE lane_id = ?", l.ID); err != nil {
		return err
	}
	for _, id := range l.CustomLists {
		if _, err := w.ExecContext(ctx, "INSERT INTO lane_customlists (lane_id, customlist_id) VALUES (?, ?)", l.ID, id); err != nil {
			return fmt.Errorf("saving lists of lane %d: %w", l.ID, err)
		}
	}
	return nil
}

// Lanes loads every lane of a library and links them into a tree. The
// result lists lanes by priority, then id; sublanes follow the same order.
func (s *Store) Lanes(ctx context.Context, library *model.Library) ([]*lane.Lane, error) {
	taxonomy, err := s.Taxonomy(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.reader().QueryContext(ctx, `SELECT id, COALESCE(parent_id, 0), priority, display_name, visible,
		inherit_parent_restrictions, include_self_in_grouped_feed, languages, media, audiences, fiction,
		target_age_min, target_age_max, license_data_source, list_data_source, root_for_patron_type, size,
		size_by_entrypoint FROM lanes WHERE library_id = ? ORDER BY priority, id`, library.ID)
	if err != nil {
		return nil, fmt.Errorf("loading lanes: %w", err)
	}
	var lanes []*lane.Lane
	for rows.Next() {
		l := lane.NewLane(library, "")
		var languages, media, audiences, roots, sizes string
		var fiction sql.NullBool
		var ageMin, ageMax sql.NullInt64
		if err := rows.Scan(&l.ID, &l.ParentID, &l.Priority, &l.DisplayName, &l.Visible,
			&l.InheritParentRestrictions, &l.IncludeSelfInGroupedFeed, &languages, &media, &audiences, &fiction,
			&ageMin, &ageMax, &l.LicenseDataSource, &l.ListDataSource, &roots, &l.Size, &sizes); err != nil {
			rows.Close()
			return nil, err
		}
		for _, field := range []struct {
			raw string
			dst any
		}{{languages, &l.Languages}, {media, &l.Media}, {audiences, &l.Audiences}, {roots, &l.RootForPatronType}, {sizes, &l.SizeByEntryPoint}} {
			if err := decodeJSON(field.raw, field.dst); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decoding lane %d: %w", l.ID, err)
			}
		}
		l.Fiction = boolPtr(fiction)
		if ageMin.Valid {
			l.TargetAge = &model.AgeRange{Min: int(ageMin.Int64), Max: int(ageMax.Int64)}
		}
		l.SetTaxonomy(taxonomy)
		lanes = append(lanes, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byID := make(map[int64]*lane.Lane, len(lanes))
	for _, l := range lanes {
		byID[l.ID] = l
	}
	if err := s.loadLaneGenres(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadLaneLists(ctx, byID); err != nil {
		return nil, err
	}
	for _, l := range lanes {
		if l.ParentID == 0 {
			continue
		}
		parent, ok := byID[l.ParentID]
		if !ok {
			return nil, fmt.Errorf("lane %d: parent %d not found", l.ID, l.ParentID)
		}
		l.SetParent(parent)
	}
	return lanes, nil
}

func (s *Store) loadLaneGenres(ctx context.Context, byID map[int64]*lane.Lane) error {
	rows, err := s.reader().QueryContext(ctx, "SELECT lane_id, genre_id, inclusive, recursive FROM lane_genres ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("loading lane genres: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var laneID int64
		var g lane.LaneGenre
		if err := rows.Scan(&laneID, &g.GenreID, &g.Inclusive, &g.Recursive); err != nil {
			return err
		}
		if l, ok := byID[laneID]; ok {
			l.LaneGenres = append(l.LaneGenres, g)
		}
	}
	return rows.Err()
}

func (s *Store) loadLaneLists(ctx context.Context, byID map[int64]*lane.Lane) error {
	rows, err := s.reader().QueryContext(ctx, "SELECT lane_id, customlist_id FROM lane_customlists ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("loading lane lists: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var laneID, listID int64
		if err := rows.Scan(&laneID, &listID); err != nil {
			return err
		}
		if l, ok := byID[laneID]; ok {
			l.CustomLists = append(l.CustomLists, listID)
		}
	}
	return rows.Err()
}

// DeleteLanes removes every lane of a library.
func (s *Store) DeleteLanes(ctx context.Context, libraryID int64) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	for _, q := range []string{
		"DELETE FROM lane_genres WHERE lane_id IN (SELECT id FROM lanes WHERE library_id = ?)",
		"DELETE FROM lane_customlists WHERE lane_id IN (SELECT id FROM lanes WHERE library_id = ?)",
		"UPDATE lanes SET parent_id = NULL WHERE library_id = ?",
		"DELETE FROM lanes WHERE library_id = ?",
	} {
		if _, err := w.ExecContext(ctx, q, libraryID); err != nil {
			return fmt.Errorf("deleting lanes: %w", err)
		}
	}
	return nil
}

// UpdateLaneSize recounts the works in l for every entry point and saves
// the result.
func (s *Store) UpdateLaneSize(ctx context.Context, l *lane.Lane) error {
	sizes := make(map[string]int, len(lane.EntryPoints))
	for _, ep := range lane.EntryPoints {
		facets := lane.NewDatabaseBackedFacets(lane.DefaultFacetConfig(), l.Library,
			lane.CollectionFull, lane.AvailableAll, lane.OrderWorkID, ep)
		n, err := s.CountWorks(ctx, l, facets)
		if err != nil {
			return fmt.Errorf("counting works in lane %d: %w", l.ID, err)
		}
		sizes[ep.URI] = n
	}
	l.SizeByEntryPoint = sizes
	l.Size = sizes[lane.EntryPointEverything.URI]
	return s.SaveLane(ctx, l)
}
