package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/lane"
	"github.com/lepinkainen/folio/internal/model"
)

var testLibrary = &model.Library{ID: 1, Name: "Springfield Public Library", ShortName: "SPL", AllowHolds: true}

func workIDs(works []*model.Work) []int64 {
	var out []int64
	for _, w := range works {
		out = append(out, w.ID)
	}
	return out
}

func TestQueryWorksSkipsUnreadyWorks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ready := createWork(t, s, "ready", "Ready", nil)

	id, err := s.Identifier(ctx, model.IdentifierOverdrive, "pending", true)
	require.NoError(t, err)
	pool, err := s.CreateLicensePool(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	e, err := s.Edition(ctx, model.DataSourceOverdrive, id)
	require.NoError(t, err)
	e.Title = "Pending"
	require.NoError(t, s.SaveEdition(ctx, e))
	_, err = s.CalculateWork(ctx, pool)
	require.NoError(t, err)

	wl := &lane.WorkList{DisplayName: "Everything", Library: testLibrary}
	works, err := lane.Works(ctx, s, wl, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{ready.ID}, workIDs(works))
}

func TestQueryWorksFiltersByList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createWork(t, s, "a", "Anthem", nil)
	b := createWork(t, s, "b", "Beloved", nil)
	createWork(t, s, "c", "Cathedral", nil)

	picks := &model.CustomList{Name: "Staff Picks", DataSource: model.DataSourceLibrary}
	require.NoError(t, s.SaveCustomList(ctx, picks))
	require.NoError(t, s.AddToCustomList(ctx, picks.ID, b.ID, true))
	require.NoError(t, s.AddToCustomList(ctx, picks.ID, a.ID, false))

	wl := &lane.WorkList{DisplayName: "Picks", Library: testLibrary, CustomLists: []int64{picks.ID}}
	f, err := lane.NewFilter(wl, nil)
	require.NoError(t, err)
	hits, err := s.QueryWorks(ctx, f, nil)
	require.NoError(t, err)
	var ids []int64
	for _, h := range hits {
		ids = append(ids, h.WorkID)
	}
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, ids)

	// Featured scoring puts the featured entry first.
	featured, err := lane.Groups(ctx, s, wl, false, nil)
	require.NoError(t, err)
	require.NotEmpty(t, featured)
	assert.Equal(t, b.ID, featured[0].Work.ID)
}

func TestQueryWorksMultiPaginatesEachFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fiction := true
	fantasy := &model.Genre{Name: "Fantasy", Fiction: &fiction}
	require.NoError(t, s.SaveGenre(ctx, fantasy))
	f1 := createWork(t, s, "f1", "Dragons", []string{"Fantasy"})
	f2 := createWork(t, s, "f2", "Elves", []string{"Fantasy"})
	other := createWork(t, s, "o", "Accounting", nil)

	withGenre, err := lane.NewFilter(&lane.WorkList{Library: testLibrary, Genres: []int64{fantasy.ID}}, nil)
	require.NoError(t, err)
	withGenre.Order, withGenre.OrderAscending = "sort_title", true
	everything, err := lane.NewFilter(&lane.WorkList{Library: testLibrary}, nil)
	require.NoError(t, err)
	everything.Order, everything.OrderAscending = "sort_title", true

	results, err := s.QueryWorksMulti(ctx, []*lane.Filter{withGenre, everything}, lane.NewPagination(0, 2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []lane.Hit{{WorkID: f1.ID}, {WorkID: f2.ID}}, results[0])
	assert.Equal(t, []lane.Hit{{WorkID: other.ID}, {WorkID: f1.ID}}, results[1])
}

func TestWorksFromDatabaseOrdersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := createWork(t, s, "c", "Cathedral", nil)
	a := createWork(t, s, "a", "Anthem", nil)
	b := createWork(t, s, "b", "Beloved", nil)

	wl := &lane.WorkList{DisplayName: "All", Library: testLibrary}
	byTitle := lane.NewDatabaseBackedFacets(lane.DefaultFacetConfig(), testLibrary,
		lane.CollectionFull, lane.AvailableAll, lane.OrderTitle, nil)

	works, err := s.WorksFromDatabase(ctx, wl, byTitle, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, workIDs(works))

	p := lane.NewPagination(1, 1)
	works, err = s.WorksFromDatabase(ctx, wl, byTitle, p)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, workIDs(works))
	total, ok := p.TotalSize()
	require.True(t, ok)
	assert.Equal(t, 3, total)
	assert.True(t, p.HasNextPage())

	byID := lane.NewDatabaseBackedFacets(lane.DefaultFacetConfig(), testLibrary,
		lane.CollectionFull, lane.AvailableAll, lane.OrderWorkID, nil)
	works, err = s.WorksFromDatabase(ctx, wl, byID, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID, a.ID, b.ID}, workIDs(works))

	n, err := s.CountWorks(ctx, wl, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDocsLoadOnlyMatchingWorks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	eng := createWork(t, s, "e", "English", nil)
	fre := createWork(t, s, "f", "French", nil)

	w, err := s.writer()
	require.NoError(t, err)
	for id, language := range map[int64]string{eng.ID: "eng", fre.ID: "fre"} {
		_, err := w.ExecContext(ctx, "UPDATE works SET language = ? WHERE id = ?", language, id)
		require.NoError(t, err)
	}
	picks := &model.CustomList{Name: "Staff Picks", DataSource: model.DataSourceLibrary}
	require.NoError(t, s.SaveCustomList(ctx, picks))
	require.NoError(t, s.AddToCustomList(ctx, picks.ID, eng.ID, false))
	require.NoError(t, s.AddToCustomList(ctx, picks.ID, fre.ID, true))

	docs, err := s.docs(ctx, &lane.Filter{Languages: []string{"fre"}}, "")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, fre.ID, docs[0].Work.ID)
	assert.Equal(t, model.DataSourceOverdrive, docs[0].DataSource)
	assert.Equal(t, 1, docs[0].LicensesAvailable)
	assert.Equal(t, []int64{picks.ID}, docs[0].CustomListIDs)
	assert.Equal(t, []int64{picks.ID}, docs[0].FeaturedListIDs)

	// Works with no fiction status never match a fiction restriction.
	fiction := true
	docs, err = s.docs(ctx, &lane.Filter{Fiction: &fiction}, "")
	require.NoError(t, err)
	assert.Empty(t, docs)

	wl := &lane.WorkList{DisplayName: "English", Library: testLibrary, Languages: []string{"eng"}}
	works, err := lane.Works(ctx, s, wl, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{eng.ID}, workIDs(works))
}
