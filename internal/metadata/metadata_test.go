package metadata

import (
	"testing"
	"time"

	"github.com/lepinkainen/folio/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortTitle(t *testing.T) {
	tests := map[string]string{
		"The Hobbit":           "Hobbit, The",
		"A Wizard of Earthsea": "Wizard of Earthsea, A",
		"An Unexpected Party":  "Unexpected Party, An",
		"Anathem":              "Anathem",
		"The":                  "The",
	}
	for in, want := range tests {
		assert.Equal(t, want, SortTitle(in), in)
	}
}

func TestSortName(t *testing.T) {
	tests := map[string]string{
		"Ursula K. Le Guin": "Le Guin, Ursula K.",
		"J. R. R. Tolkien":  "Tolkien, J. R. R.",
		"Tolkien":           "Tolkien",
		"Austen, Jane":      "Austen, Jane",
		"":                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SortName(in), in)
	}
}

func TestMetadataApplyFillsEdition(t *testing.T) {
	published := time.Date(1968, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Metadata{
		DataSource: model.DataSourceOverdrive,
		Title:      "A Wizard of Earthsea",
		Contributors: []Contributor{
			{DisplayName: "Ruth Robbins", Roles: []string{"Illustrator"}},
			{DisplayName: "Ursula K. Le Guin", Roles: []string{"Author"}},
		},
		Published: published,
		Subjects:  []string{"Fantasy"},
	}
	edition := &model.Edition{DataSource: model.DataSourceOverdrive}

	require.NoError(t, m.Apply(edition, FromMetadataSource()))

	assert.Equal(t, "A Wizard of Earthsea", edition.Title)
	assert.Equal(t, "Wizard of Earthsea, A", edition.SortTitle)
	assert.Equal(t, "Ursula K. Le Guin", edition.Author)
	assert.Equal(t, "Le Guin, Ursula K.", edition.SortAuthor)
	assert.Equal(t, model.MediumBook, edition.Medium)
	assert.Equal(t, published, edition.Published)
	assert.Equal(t, []string{"Fantasy"}, edition.Subjects)
}

func TestMetadataApplyWithoutReplacementKeepsExisting(t *testing.T) {
	m := &Metadata{Title: "New Title", Publisher: "Parnassus", Subjects: []string{"Poetry"}}
	edition := &model.Edition{Title: "Old Title", Subjects: []string{"Fiction"}}

	require.NoError(t, m.Apply(edition, ReplacementPolicy{}))

	assert.Equal(t, "Old Title", edition.Title)
	assert.Equal(t, "Parnassus", edition.Publisher)
	assert.Equal(t, []string{"Fiction", "Poetry"}, edition.Subjects)
}

func TestMetadataApplyErrors(t *testing.T) {
	err := (&Metadata{}).Apply(&model.Edition{}, FromMetadataSource())
	assert.ErrorIs(t, err, ErrNoTitle)

	err = (&Metadata{DataSource: "A", Title: "x"}).Apply(&model.Edition{DataSource: "B"}, FromMetadataSource())
	assert.ErrorIs(t, err, ErrWrongDataSource)

	assert.Error(t, (&Metadata{Title: "x"}).Apply(nil, FromMetadataSource()))
}

func TestCirculationApply(t *testing.T) {
	c := &CirculationData{LicensesOwned: 3, LicensesAvailable: 1, PatronsInHoldQueue: 4}

	t.Run("fresh pool is always populated", func(t *testing.T) {
		pool := &model.LicensePool{}
		require.NoError(t, c.Apply(pool, FromMetadataSource()))
		assert.Equal(t, 3, pool.LicensesOwned)
		assert.Equal(t, 4, pool.PatronsInHoldQueue)
	})

	t.Run("populated pool needs circulation policy", func(t *testing.T) {
		pool := &model.LicensePool{LicensesOwned: 1}
		require.NoError(t, c.Apply(pool, FromMetadataSource()))
		assert.Equal(t, 1, pool.LicensesOwned)

		require.NoError(t, c.Apply(pool, FromLicenseSource()))
		assert.Equal(t, 3, pool.LicensesOwned)
		assert.Equal(t, 1, pool.LicensesAvailable)
	})

	t.Run("inconsistent counts are rejected", func(t *testing.T) {
		bad := &CirculationData{LicensesOwned: 1, LicensesAvailable: 2}
		assert.Error(t, bad.Apply(&model.LicensePool{}, FromLicenseSource()))
	})
}

func TestMerge(t *testing.T) {
	assert.Nil(t, Merge(nil))

	low := &Metadata{Title: "Low", Publisher: "Low Press", Subjects: []string{"A", "B"}}
	high := &Metadata{Title: "High", Subjects: []string{"B", "C"}}

	merged := Merge([]Sourced{{Priority: 2, Data: low}, {Priority: 1, Data: high}, {Priority: 0}})

	assert.Equal(t, "High", merged.Title)
	assert.Equal(t, "Low Press", merged.Publisher)
	assert.Equal(t, []string{"B", "C", "A"}, merged.Subjects)
}

func TestPresentation(t *testing.T) {
	t.Run("no titled edition", func(t *testing.T) {
		e, err := Presentation([]*model.Edition{{ID: 1}, nil})
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("best edition wins, others fill gaps", func(t *testing.T) {
		overdrive := &model.Edition{ID: 7, DataSource: model.DataSourceOverdrive, IdentifierID: 3,
			Title: "The Ghost Map", Author: "Steven Johnson", Subjects: []string{"History"}}
		oneclick := &model.Edition{ID: 9, DataSource: model.DataSourceOneClick, IdentifierID: 3,
			Title: "Ghost Map", Publisher: "Riverhead", CoverURL: "https://covers.example/ghost.jpg",
			Subjects: []string{"Science", "History"}}
		untitled := &model.Edition{ID: 11, Description: "never used"}

		e, err := Presentation([]*model.Edition{untitled, overdrive, oneclick})
		require.NoError(t, err)
		require.NotNil(t, e)

		assert.Equal(t, int64(7), e.ID)
		assert.Equal(t, model.DataSourceOverdrive, e.DataSource)
		assert.Equal(t, "The Ghost Map", e.Title)
		assert.Equal(t, "Ghost Map, The", e.SortTitle)
		assert.Equal(t, "Johnson, Steven", e.SortAuthor)
		assert.Equal(t, "Riverhead", e.Publisher)
		assert.Equal(t, "https://covers.example/ghost.jpg", e.CoverURL)
		assert.Equal(t, []string{"History", "Science"}, e.Subjects)
		assert.Empty(t, e.Description)
		assert.Equal(t, model.MediumBook, e.Medium)
	})
}
