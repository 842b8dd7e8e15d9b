package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/model"
)

// createWork builds a presentation-ready work from an Overdrive edition
// titled title, with one owned and available license.
func createWork(t *testing.T, s *Store, value, title string, subjects []string) *model.Work {
	t.Helper()
	ctx := context.Background()
	id, err := s.Identifier(ctx, model.IdentifierOverdrive, value, true)
	require.NoError(t, err)
	pool, err := s.CreateLicensePool(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	pool.LicensesOwned, pool.LicensesAvailable = 1, 1
	require.NoError(t, s.SaveLicensePool(ctx, pool))

	e, err := s.Edition(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	e.Title = title
	e.SortTitle = title
	e.Author = "Author of " + title
	e.SortAuthor = "Author of " + title
	e.Subjects = subjects
	require.NoError(t, s.SaveEdition(ctx, e))

	w, err := s.CalculateWork(ctx, pool)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NoError(t, s.SetPresentationReady(ctx, w.ID))
	w.PresentationReady = true
	return w
}

func TestEditionLookupOrCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.Identifier(ctx, model.IdentifierOverdrive, "e", true)
	require.NoError(t, err)

	e, err := s.Edition(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	assert.NotZero(t, e.ID)
	assert.Empty(t, e.Title)

	e.Title = "The Hobbit"
	e.Subjects = []string{"Fantasy", "Adventure"}
	e.Published = testNow
	require.NoError(t, s.SaveEdition(ctx, e))

	again, err := s.Edition(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID)
	assert.Equal(t, "The Hobbit", again.Title)
	assert.Equal(t, []string{"Fantasy", "Adventure"}, again.Subjects)
	assert.Equal(t, testNow, again.Published)
}

func TestCalculateWorkNeedsTitledEdition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.Identifier(ctx, model.IdentifierOverdrive, "untitled", true)
	require.NoError(t, err)
	pool, err := s.CreateLicensePool(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	_, err = s.Edition(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)

	w, err := s.CalculateWork(ctx, pool)
	require.NoError(t, err)
	assert.Nil(t, w)

	none, err := s.LicensePool(ctx, id.ID+1)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCalculateWorkClassifiesFromSubjects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fiction, nonfiction := true, false
	fantasy := &model.Genre{Name: "Fantasy", Fiction: &fiction}
	history := &model.Genre{Name: "History", Fiction: &nonfiction}
	require.NoError(t, s.SaveGenre(ctx, fantasy))
	require.NoError(t, s.SaveGenre(ctx, history))

	w := createWork(t, s, "hobbit", "The Hobbit", []string{" fantasy ", "Unknown"})
	assert.Equal(t, "The Hobbit", w.Title)
	assert.Equal(t, model.MediumBook, w.Medium)
	assert.Equal(t, model.AudienceAdult, w.Audience)
	assert.Equal(t, []int64{fantasy.ID}, w.GenreIDs)
	require.NotNil(t, w.Fiction)
	assert.True(t, *w.Fiction)

	// Recalculating keeps the work and its fiction status.
	id, err := s.Identifier(ctx, model.IdentifierOverdrive, "hobbit", false)
	require.NoError(t, err)
	pool, err := s.LicensePool(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, pool.WorkID)
	again, err := s.CalculateWork(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
	assert.Equal(t, []int64{fantasy.ID}, again.GenreIDs)
}

func TestCalculateWorkMergesEditions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	science := &model.Genre{Name: "Science"}
	require.NoError(t, s.SaveGenre(ctx, science))

	id, err := s.Identifier(ctx, model.IdentifierOverdrive, "ghost-map", true)
	require.NoError(t, err)
	pool, err := s.CreateLicensePool(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)

	// The other source covered the title first, with a cover and subjects.
	other, err := s.Edition(ctx, model.DataSourceOneClick, id)
	require.NoError(t, err)
	other.Title = "Ghost Map"
	other.CoverURL = "https://covers.example/ghost.jpg"
	other.Subjects = []string{"Science"}
	require.NoError(t, s.SaveEdition(ctx, other))

	own, err := s.Edition(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	own.Title = "The Ghost Map"
	own.Author = "Steven Johnson"
	require.NoError(t, s.SaveEdition(ctx, own))

	w, err := s.CalculateWork(ctx, pool)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, own.ID, w.PresentationEditionID)
	assert.Equal(t, "The Ghost Map", w.Title)
	assert.Equal(t, "Ghost Map, The", w.SortTitle)
	assert.Equal(t, "Johnson, Steven", w.SortAuthor)
	assert.Equal(t, "https://covers.example/ghost.jpg", w.CoverURL)
	assert.Equal(t, []int64{science.ID}, w.GenreIDs)
}

func TestSaveWorkClassification(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	romance := &model.Genre{Name: "Romance"}
	require.NoError(t, s.SaveGenre(ctx, romance))
	w := createWork(t, s, "w", "Persuasion", nil)

	fiction := true
	w.Fiction = &fiction
	w.Audience = model.AudienceYoungAdult
	w.TargetAge = model.AgeRange{Min: 14, Max: 17}
	w.Quality = 0.8
	w.GenreIDs = []int64{romance.ID}
	require.NoError(t, s.SaveWorkClassification(ctx, w))
	require.NoError(t, s.SetWorkThumbnail(ctx, w.ID, "/thumbs/w.png"))

	loaded, err := s.Work(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AudienceYoungAdult, loaded.Audience)
	assert.Equal(t, model.AgeRange{Min: 14, Max: 17}, loaded.TargetAge)
	assert.InDelta(t, 0.8, loaded.Quality, 1e-9)
	assert.Equal(t, []int64{romance.ID}, loaded.GenreIDs)
	assert.Equal(t, "/thumbs/w.png", loaded.ThumbnailPath)

	_, err = s.Work(ctx, w.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenresAndLists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fiction := &model.Genre{Name: "Fiction"}
	require.NoError(t, s.SaveGenre(ctx, fiction))
	fantasy := &model.Genre{Name: "Fantasy", ParentID: fiction.ID}
	require.NoError(t, s.SaveGenre(ctx, fantasy))

	genres, err := s.Genres(ctx)
	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, fiction.ID, genres[1].ParentID)

	list := &model.CustomList{Name: "Staff Picks", DataSource: model.DataSourceLibrary}
	require.NoError(t, s.SaveCustomList(ctx, list))
	dup := &model.CustomList{Name: "Staff Picks", DataSource: model.DataSourceLibrary}
	require.NoError(t, s.SaveCustomList(ctx, dup))
	assert.Equal(t, list.ID, dup.ID)

	lists, err := s.CustomLists(ctx)
	require.NoError(t, err)
	assert.Len(t, lists, 1)

	taxonomy, err := s.Taxonomy(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{fantasy.ID}, taxonomy.Subgenres(fiction.ID))
	found, ok := taxonomy.CustomListByName("Staff Picks")
	require.True(t, ok)
	assert.Equal(t, list.ID, found.ID)
}
