package overdrive

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/model"
)

const sampleProduct = `{
  "id": "3896665d-9d81-4cac-bd43-ffc5066de1f5",
  "title": "The Ghost Map",
  "sortTitle": "Ghost Map",
  "subtitle": "The Story of London's Most Terrifying Epidemic",
  "publisher": "Penguin Group (USA), Inc.",
  "publishDate": "2006-10-19T00:00:00-04:00",
  "languages": [{"code": "eng", "name": "English"}],
  "creators": [
    {"role": "Author", "name": "Steven Johnson", "fileAs": "Johnson, Steven"},
    {"role": "Editor and Narrator", "name": "Jo Reader", "fileAs": "Reader, Jo"}
  ],
  "subjects": [{"value": "History"}, {"value": "Nonfiction"}],
  "keywords": [{"value": "cholera"}, {"value": "History"}],
  "mediaType": "eBook",
  "formats": [{"id": "ebook-epub-adobe"}],
  "images": {
    "thumbnail": {"href": "https://img.example.com/thumb.jpg"},
    "cover": {"href": "https://img.example.com/cover.jpg"}
  },
  "shortDescription": "Short.",
  "fullDescription": "<p>Full.</p>"
}`

func TestToMetadata(t *testing.T) {
	var p Product
	require.NoError(t, json.Unmarshal([]byte(sampleProduct), &p))

	md := ToMetadata(&p)
	require.NotNil(t, md)

	assert.Equal(t, model.DataSourceOverdrive, md.DataSource)
	assert.Equal(t, "The Ghost Map", md.Title)
	assert.Equal(t, "Ghost Map", md.SortTitle)
	assert.Equal(t, "eng", md.Language)
	assert.Equal(t, model.MediumBook, md.Medium)
	assert.Equal(t, time.Date(2006, 10, 19, 0, 0, 0, 0, time.UTC), md.Published)
	assert.Equal(t, "<p>Full.</p>", md.Description)
	assert.Equal(t, "https://img.example.com/cover.jpg", md.CoverURL)
	assert.Equal(t, []string{"History", "Nonfiction", "cholera"}, md.Subjects)

	require.Len(t, md.Contributors, 2)
	assert.Equal(t, "Johnson, Steven", md.Contributors[0].SortName)
	assert.Equal(t, []string{"Author"}, md.Contributors[0].Roles)
	assert.Equal(t, []string{"Editor", "Narrator"}, md.Contributors[1].Roles)
}

func TestToMetadataWithoutID(t *testing.T) {
	assert.Nil(t, ToMetadata(&Product{Title: "Orphan"}))
	assert.Nil(t, ToMetadata(nil))
}

func TestMediumFromFormats(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		want    string
	}{
		{"declared audiobook", Product{MediaType: "Audiobook"}, model.MediumAudio},
		{"format overrides media type", Product{MediaType: "eBook", Formats: []Format{{ID: "audiobook-mp3"}}}, model.MediumAudio},
		{"video format", Product{Formats: []Format{{ID: "video-streaming"}}}, model.MediumVideo},
		{"unknown media type", Product{MediaType: "Hologram"}, model.MediumBook},
		{"music", Product{MediaType: "Music"}, model.MediumMusic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, medium(&tt.product))
		})
	}
}

func TestLanguage(t *testing.T) {
	assert.Equal(t, "eng", language(nil))
	assert.Equal(t, "eng", language([]Language{{Code: "spa"}, {Code: "eng"}}))
	assert.Equal(t, "fre", language([]Language{{Code: "spa"}, {Code: "fre"}}))
}

func TestParseRoles(t *testing.T) {
	assert.Equal(t, []string{"Author", "Illustrator"}, ParseRoles("x", "Author, Illustrator"))
	assert.Equal(t, []string{"Translator"}, ParseRoles("x", "Translator, Juggler"))
	assert.Empty(t, ParseRoles("x", "Juggler"))
}

func TestCoverFallsBackToThumbnailSizes(t *testing.T) {
	images := map[string]Link{
		"thumbnail":    {Href: "https://img/t.jpg"},
		"cover150Wide": {Href: "https://img/150.jpg"},
	}
	assert.Equal(t, "https://img/150.jpg", cover(images))
	assert.Empty(t, cover(nil))
}
