package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/model"
)

const editionColumns = `id, data_source, identifier_id, title, subtitle, sort_title, author, sort_author,
	publisher, language, medium, series, series_position, published, description, cover_url, subjects`

const workColumns = `w.id, COALESCE(w.presentation_edition_id, 0), w.title, w.sort_title, w.author, w.sort_author,
	w.language, w.medium, w.series, w.series_position, w.fiction, w.audience, w.target_age_min, w.target_age_max,
	w.quality, w.random, w.presentation_ready, w.cover_url, w.thumbnail_path, w.created_at, w.last_update`

const poolColumns = `id, data_source, identifier_id, COALESCE(work_id, 0), licenses_owned, licenses_available,
	patrons_in_hold_queue, open_access, availability_time`

type scanner interface {
	Scan(dest ...any) error
}

func scanEdition(row scanner) (*model.Edition, error) {
	e := &model.Edition{}
	var published, subjects string
	if err := row.Scan(&e.ID, &e.DataSource, &e.IdentifierID, &e.Title, &e.Subtitle, &e.SortTitle, &e.Author,
		&e.SortAuthor, &e.Publisher, &e.Language, &e.Medium, &e.Series, &e.SeriesPosition, &published,
		&e.Description, &e.CoverURL, &subjects); err != nil {
		return nil, err
	}
	var err error
	if e.Published, err = parseTime(published); err != nil {
		return nil, err
	}
	if err := decodeJSON(subjects, &e.Subjects); err != nil {
		return nil, fmt.Errorf("decoding subjects of edition %d: %w", e.ID, err)
	}
	return e, nil
}

func scanWork(row scanner) (*model.Work, error) {
	w := &model.Work{}
	var fiction sql.NullBool
	var created, updated string
	if err := row.Scan(&w.ID, &w.PresentationEditionID, &w.Title, &w.SortTitle, &w.Author, &w.SortAuthor,
		&w.Language, &w.Medium, &w.Series, &w.SeriesPosition, &fiction, &w.Audience, &w.TargetAge.Min,
		&w.TargetAge.Max, &w.Quality, &w.Random, &w.PresentationReady, &w.CoverURL, &w.ThumbnailPath,
		&created, &updated); err != nil {
		return nil, err
	}
	w.Fiction = boolPtr(fiction)
	var err error
	if w.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if w.LastUpdate, err = parseTime(updated); err != nil {
		return nil, err
	}
	return w, nil
}

func scanPool(row scanner) (*model.LicensePool, error) {
	p := &model.LicensePool{}
	var availability string
	if err := row.Scan(&p.ID, &p.DataSource, &p.IdentifierID, &p.WorkID, &p.LicensesOwned,
		&p.LicensesAvailable, &p.PatronsInHoldQueue, &p.OpenAccess, &availability); err != nil {
		return nil, err
	}
	var err error
	if p.AvailabilityTime, err = parseTime(availability); err != nil {
		return nil, err
	}
	return p, nil
}

// Edition returns the edition dataSource has for id, creating an empty one
// when there is none.
func (s *Store) Edition(ctx context.Context, dataSource string, id *model.Identifier) (*model.Edition, error) {
	e, err := scanEdition(s.reader().QueryRowContext(ctx,
		"SELECT "+editionColumns+" FROM editions WHERE data_source = ? AND identifier_id = ?",
		dataSource, id.ID))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("looking up edition of %s: %w", id, err)
	}

	w, err := s.writer()
	if err != nil {
		return nil, err
	}
	res, err := w.ExecContext(ctx, "INSERT INTO editions (data_source, identifier_id) VALUES (?, ?)", dataSource, id.ID)
	if err != nil {
		return nil, fmt.Errorf("creating edition of %s: %w", id, err)
	}
	e = &model.Edition{DataSource: dataSource, IdentifierID: id.ID}
	if e.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return e, nil
}

// SaveEdition writes every field of e.
func (s *Store) SaveEdition(ctx context.Context, e *model.Edition) error {
	subjects, err := encodeJSON(e.Subjects)
	if err != nil {
		return err
	}
	w, err := s.writer()
	if err != nil {
		return err
	}
	_, err = w.ExecContext(ctx, `UPDATE editions SET title = ?, subtitle = ?, sort_title = ?, author = ?,
		sort_author = ?, publisher = ?, language = ?, medium = ?, series = ?, series_position = ?,
		published = ?, description = ?, cover_url = ?, subjects = ? WHERE id = ?`,
		e.Title, e.Subtitle, e.SortTitle, e.Author, e.SortAuthor, e.Publisher, e.Language, e.Medium,
		e.Series, e.SeriesPosition, formatTime(e.Published), e.Description, e.CoverURL, subjects, e.ID)
	if err != nil {
		return fmt.Errorf("saving edition %d: %w", e.ID, err)
	}
	return nil
}

// editions returns every edition of an identifier, preferring the given
// data source.
func (s *Store) editions(ctx context.Context, identifierID int64, preferred string) ([]*model.Edition, error) {
	rows, err := s.reader().QueryContext(ctx,
		"SELECT "+editionColumns+" FROM editions WHERE identifier_id = ? ORDER BY data_source <> ?, id",
		identifierID, preferred)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Edition
	for rows.Next() {
		e, err := scanEdition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LicensePool returns the first license pool of an identifier, or nil.
func (s *Store) LicensePool(ctx context.Context, identifierID int64) (*model.LicensePool, error) {
	p, err := scanPool(s.reader().QueryRowContext(ctx,
		"SELECT "+poolColumns+" FROM license_pools WHERE identifier_id = ? ORDER BY id LIMIT 1", identifierID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up license pool: %w", err)
	}
	return p, nil
}

// CreateLicensePool creates an empty license pool for id at dataSource.
func (s *Store) CreateLicensePool(ctx context.Context, dataSource string, id *model.Identifier) (*model.LicensePool, error) {
	w, err := s.writer()
	if err != nil {
		return nil, err
	}
	res, err := w.ExecContext(ctx, "INSERT INTO license_pools (data_source, identifier_id) VALUES (?, ?)", dataSource, id.ID)
	if err != nil {
		return nil, fmt.Errorf("creating license pool for %s: %w", id, err)
	}
	p := &model.LicensePool{DataSource: dataSource, IdentifierID: id.ID}
	if p.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveLicensePool writes the circulation fields and work of p.
func (s *Store) SaveLicensePool(ctx context.Context, p *model.LicensePool) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	var workID sql.NullInt64
	if p.WorkID != 0 {
		workID = sql.NullInt64{Int64: p.WorkID, Valid: true}
	}
	_, err = w.ExecContext(ctx, `UPDATE license_pools SET work_id = ?, licenses_owned = ?, licenses_available = ?,
		patrons_in_hold_queue = ?, open_access = ?, availability_time = ? WHERE id = ?`,
		workID, p.LicensesOwned, p.LicensesAvailable, p.PatronsInHoldQueue, p.OpenAccess,
		formatTime(p.AvailabilityTime), p.ID)
	if err != nil {
		return fmt.Errorf("saving license pool %d: %w", p.ID, err)
	}
	return nil
}

// CalculateWork builds or refreshes the work for pool from the editions of
// its identifier. The pool's own source wins; other sources fill the gaps.
// Without an edition that has a title there is no work yet, and nil is
// returned.
func (s *Store) CalculateWork(ctx context.Context, pool *model.LicensePool) (*model.Work, error) {
	editions, err := s.editions(ctx, pool.IdentifierID, pool.DataSource)
	if err != nil {
		return nil, fmt.Errorf("loading editions: %w", err)
	}
	edition, err := metadata.Presentation(editions)
	if err != nil {
		return nil, fmt.Errorf("merging editions of identifier %d: %w", pool.IdentifierID, err)
	}
	if edition == nil {
		return nil, nil
	}

	genres, err := s.Genres(ctx)
	if err != nil {
		return nil, err
	}
	matched, fiction := classify(edition.Subjects, genres)

	w, err := s.writer()
	if err != nil {
		return nil, err
	}
	now := formatTime(s.now())
	if pool.WorkID == 0 {
		res, err := w.ExecContext(ctx,
			"INSERT INTO works (audience, random, created_at, last_update) VALUES (?, ?, ?, ?)",
			model.AudienceAdult, rand.Float64(), now, now)
		if err != nil {
			return nil, fmt.Errorf("creating work: %w", err)
		}
		if pool.WorkID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		if err := s.SaveLicensePool(ctx, pool); err != nil {
			return nil, err
		}
	}

	medium := edition.Medium
	if medium == "" {
		medium = model.MediumBook
	}
	_, err = w.ExecContext(ctx, `UPDATE works SET presentation_edition_id = ?, title = ?, sort_title = ?, author = ?,
		sort_author = ?, language = ?, medium = ?, series = ?, series_position = ?, cover_url = ?,
		fiction = COALESCE(fiction, ?), last_update = ? WHERE id = ?`,
		edition.ID, edition.Title, edition.SortTitle, edition.Author, edition.SortAuthor, edition.Language,
		medium, edition.Series, edition.SeriesPosition, edition.CoverURL, nullBool(fiction), now, pool.WorkID)
	if err != nil {
		return nil, fmt.Errorf("updating work %d: %w", pool.WorkID, err)
	}
	for _, g := range matched {
		if _, err := w.ExecContext(ctx, "INSERT OR IGNORE INTO work_genres (work_id, genre_id) VALUES (?, ?)", pool.WorkID, g); err != nil {
			return nil, fmt.Errorf("classifying work %d: %w", pool.WorkID, err)
		}
	}
	return s.Work(ctx, pool.WorkID)
}

// classify matches subjects against genre names, case-insensitively. The
// fiction status of the first matched genre that has one is returned too.
func classify(subjects []string, genres []model.Genre) ([]int64, *bool) {
	var ids []int64
	var fiction *bool
	for _, subject := range subjects {
		for _, g := range genres {
			if !strings.EqualFold(strings.TrimSpace(subject), g.Name) {
				continue
			}
			ids = append(ids, g.ID)
			if fiction == nil {
				fiction = g.Fiction
			}
		}
	}
	return ids, fiction
}

// SetPresentationReady marks a work ready to show to patrons.
func (s *Store) SetPresentationReady(ctx context.Context, workID int64) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	if _, err := w.ExecContext(ctx, "UPDATE works SET presentation_ready = 1 WHERE id = ?", workID); err != nil {
		return fmt.Errorf("marking work %d presentation ready: %w", workID, err)
	}
	return nil
}

// SaveWorkClassification writes the fiction status, audience, target age,
// quality and genres of w.
func (s *Store) SaveWorkClassification(ctx context.Context, work *model.Work) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	_, err = w.ExecContext(ctx, `UPDATE works SET fiction = ?, audience = ?, target_age_min = ?, target_age_max = ?,
		quality = ?, last_update = ? WHERE id = ?`,
		nullBool(work.Fiction), work.Audience, work.TargetAge.Min, work.TargetAge.Max, work.Quality,
		formatTime(s.now()), work.ID)
	if err != nil {
		return fmt.Errorf("saving classification of work %d: %w", work.ID, err)
	}
	if _, err := w.ExecContext(ctx, "DELETE FROM work_genres WHERE work_id = ?", work.ID); err != nil {
		return err
	}
	for _, g := range work.GenreIDs {
		if _, err := w.ExecContext(ctx, "INSERT OR IGNORE INTO work_genres (work_id, genre_id) VALUES (?, ?)", work.ID, g); err != nil {
			return fmt.Errorf("classifying work %d: %w", work.ID, err)
		}
	}
	return nil
}

// SetWorkThumbnail records where a work's thumbnail was written.
func (s *Store) SetWorkThumbnail(ctx context.Context, workID int64, path string) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	if _, err := w.ExecContext(ctx, "UPDATE works SET thumbnail_path = ? WHERE id = ?", path, workID); err != nil {
		return fmt.Errorf("saving thumbnail of work %d: %w", workID, err)
	}
	return nil
}

// Work loads a work with its genres.
func (s *Store) Work(ctx context.Context, id int64) (*model.Work, error) {
	works, err := s.WorksByID(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(works) == 0 {
		return nil, ErrNotFound
	}
	return works[0], nil
}

// WorksByID loads works with their genres, ordered by id. Unknown ids are
// skipped.
func (s *Store) WorksByID(ctx context.Context, ids []int64) ([]*model.Work, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.reader().QueryContext(ctx,
		"SELECT "+workColumns+" FROM works w WHERE w.id IN ("+placeholders(len(ids))+") ORDER BY w.id",
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("loading works: %w", err)
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
	return works, nil
}

func (s *Store) loadWorkGenres(ctx context.Context, works []*model.Work) error {
	if len(works) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Work, len(works))
	ids := make([]int64, len(works))
	for i, w := range works {
		byID[w.ID] = w
		ids[i] = w.ID
	}
	rows, err := s.reader().QueryContext(ctx,
		"SELECT work_id, genre_id FROM work_genres WHERE work_id IN ("+placeholders(len(ids))+") ORDER BY work_id, genre_id",
		int64Args(ids)...)
	if err != nil {
		return fmt.Errorf("loading work genres: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var workID, genreID int64
		if err := rows.Scan(&workID, &genreID); err != nil {
			return err
		}
		byID[workID].GenreIDs = append(byID[workID].GenreIDs, genreID)
	}
	return rows.Err()
}

// SaveGenre inserts or updates a genre, filling in g.ID.
func (s *Store) SaveGenre(ctx context.Context, g *model.Genre) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	var parent sql.NullInt64
	if g.ParentID != 0 {
		parent = sql.NullInt64{Int64: g.ParentID, Valid: true}
	}
	if g.ID != 0 {
		_, err = w.ExecContext(ctx, "UPDATE genres SET name = ?, parent_id = ?, default_fiction = ? WHERE id = ?",
			g.Name, parent, nullBool(g.Fiction), g.ID)
		return err
	}
	res, err := w.ExecContext(ctx, "INSERT INTO genres (name, parent_id, default_fiction) VALUES (?, ?, ?)",
		g.Name, parent, nullBool(g.Fiction))
	if err != nil {
		return fmt.Errorf("creating genre %q: %w", g.Name, err)
	}
	g.ID, err = res.LastInsertId()
	return err
}

// Genres returns every genre ordered by id.
func (s *Store) Genres(ctx context.Context) ([]model.Genre, error) {
	rows, err := s.reader().QueryContext(ctx, "SELECT id, name, COALESCE(parent_id, 0), default_fiction FROM genres ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("loading genres: %w", err)
	}
	defer rows.Close()

	var out []model.Genre
	for rows.Next() {
		var g model.Genre
		var fiction sql.NullBool
		if err := rows.Scan(&g.ID, &g.Name, &g.ParentID, &fiction); err != nil {
			return nil, err
		}
		g.Fiction = boolPtr(fiction)
		out = append(out, g)
	}
	return out, rows.Err()
}

// SaveCustomList creates a custom list, or finds the existing one with the
// same name and data source, filling in cl.ID.
func (s *Store) SaveCustomList(ctx context.Context, cl *model.CustomList) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	if _, err := w.ExecContext(ctx, "INSERT OR IGNORE INTO customlists (name, data_source) VALUES (?, ?)", cl.Name, cl.DataSource); err != nil {
		return fmt.Errorf("creating list %q: %w", cl.Name, err)
	}
	return w.QueryRowContext(ctx, "SELECT id FROM customlists WHERE name = ? AND data_source = ?", cl.Name, cl.DataSource).Scan(&cl.ID)
}

// AddToCustomList puts a work on a list, optionally as a featured entry.
func (s *Store) AddToCustomList(ctx context.Context, listID, workID int64, featured bool) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	_, err = w.ExecContext(ctx, `INSERT INTO customlist_entries (customlist_id, work_id, featured) VALUES (?, ?, ?)
		ON CONFLICT(customlist_id, work_id) DO UPDATE SET featured = excluded.featured`, listID, workID, featured)
	if err != nil {
		return fmt.Errorf("adding work %d to list %d: %w", workID, listID, err)
	}
	return nil
}

// CustomLists returns every custom list ordered by id.
func (s *Store) CustomLists(ctx context.Context) ([]model.CustomList, error) {
	rows, err := s.reader().QueryContext(ctx, "SELECT id, name, data_source FROM customlists ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("loading lists: %w", err)
	}
	defer rows.Close()

	var out []model.CustomList
	for rows.Next() {
		var cl model.CustomList
		if err := rows.Scan(&cl.ID, &cl.Name, &cl.DataSource); err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, rows.Err()
}
