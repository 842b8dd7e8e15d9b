package oneclick

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/model"
)

const sampleMedia = `{
  "isbn": "9780307378101",
  "title": "Tea Time for the Traditionally Built",
  "seriesName": "No. 1 Ladies' Detective Agency",
  "seriesPosition": "10",
  "publisher": "Random House",
  "publicationDate": "2009-04-28",
  "language": "English",
  "authors": "McCall Smith, Alexander",
  "narrators": "Lecat, Lisette; Reader, Second",
  "genres": "FICTION / Mystery & Detective / General",
  "primaryGenre": "mystery, womens-fiction",
  "audience": "Adult",
  "mediaType": "eAudio",
  "images": [
    {"name": "small", "url": "http://images.example.com/s.jpg"},
    {"name": "large", "url": "http://images.example.com/l.jpg"}
  ],
  "description": "Precious Ramotswe is back."
}`

func TestToMetadata(t *testing.T) {
	var m Media
	require.NoError(t, json.Unmarshal([]byte(sampleMedia), &m))

	md := ToMetadata(&m)
	require.NotNil(t, md)

	assert.Equal(t, model.DataSourceOneClick, md.DataSource)
	assert.Equal(t, "Tea Time for the Traditionally Built", md.Title)
	assert.Equal(t, 10, md.SeriesPosition)
	assert.Equal(t, "eng", md.Language)
	assert.Equal(t, model.MediumAudio, md.Medium)
	assert.Equal(t, time.Date(2009, 4, 28, 0, 0, 0, 0, time.UTC), md.Published)
	assert.Equal(t, "http://images.example.com/l.jpg", md.CoverURL)
	assert.Equal(t, []string{"FICTION / Mystery & Detective / General", "mystery", "womens-fiction", "adult"}, md.Subjects)

	require.Len(t, md.Contributors, 3)
	assert.Equal(t, "McCall Smith, Alexander", md.Contributors[0].SortName)
	assert.Equal(t, []string{"Author"}, md.Contributors[0].Roles)
	assert.Equal(t, []string{"Narrator"}, md.Contributors[2].Roles)
	assert.Equal(t, "Reader, Second", md.Contributors[2].DisplayName)
}

func TestToMetadataEdgeCases(t *testing.T) {
	assert.Nil(t, ToMetadata(&Media{Title: "No ISBN"}))

	md := ToMetadata(&Media{ISBN: "1", SeriesName: "Default Blank", MediaType: "Hologram"})
	require.NotNil(t, md)
	assert.Empty(t, md.Series)
	assert.Equal(t, model.MediumBook, md.Medium)
	assert.Equal(t, "eng", md.Language)
}

func TestSeriesPositionForms(t *testing.T) {
	var m Media
	require.NoError(t, json.Unmarshal([]byte(`{"isbn":"1","seriesPosition":3}`), &m))
	assert.Equal(t, Position(3), m.SeriesPosition)
	require.NoError(t, json.Unmarshal([]byte(`{"isbn":"1","seriesPosition":"three"}`), &m))
	assert.Equal(t, Position(0), m.SeriesPosition)
}

func TestLanguageCode(t *testing.T) {
	tests := map[string]string{
		"":        "eng",
		"en":      "eng",
		"es":      "spa",
		"Spanish": "spa",
		"french":  "fra",
		"Klingon": "eng",
	}
	for in, want := range tests {
		assert.Equal(t, want, LanguageCode(in), in)
	}
}
