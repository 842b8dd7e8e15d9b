package lane

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/model"
)

const lanesYAML = `
lanes:
  - name: Fiction
    fiction: true
    media: [Book]
    genres:
      - name: Fiction
    sublanes:
      - name: Fantasy
        priority: 1
        genres:
          - name: Fantasy
          - name: Epic Fantasy
            exclude: true
            recursive: false
      - name: Best Sellers
        list_data_source: NYT
        inherit_parent_restrictions: false
  - name: Kids
    target_age: {min: 0, max: 8}
    hidden: true
    lists: [Staff Picks]
`

func TestLoadDefinitionsAndBuildLanes(t *testing.T) {
	defs, err := LoadDefinitions(strings.NewReader(lanesYAML))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Len(t, defs[0].Sublanes, 2)

	lib := &model.Library{ID: 7, ShortName: "LIB"}
	lanes, err := BuildLanes(defs, lib, testTaxonomy())
	require.NoError(t, err)
	require.Len(t, lanes, 4)

	fiction, fantasy, bestSellers, kids := lanes[0], lanes[1], lanes[2], lanes[3]
	assert.Nil(t, fiction.Parent())
	assert.Same(t, fiction, fantasy.Parent())
	assert.Same(t, fiction, bestSellers.Parent())
	assert.Equal(t, int64(7), fantasy.LibraryID)
	assert.Equal(t, 1, fantasy.Priority)

	assert.Equal(t, []LaneGenre{
		{GenreID: 2, Inclusive: true, Recursive: true},
		{GenreID: 3, Inclusive: false, Recursive: false},
	}, fantasy.LaneGenres)
	ids, err := fantasy.GenreIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	assert.False(t, bestSellers.InheritParentRestrictions)
	lists, err := bestSellers.CustomListIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, lists)

	assert.False(t, kids.Visible)
	assert.Equal(t, []int64{2}, kids.CustomLists)
	assert.Equal(t, []string{model.AudienceChildren}, kids.Audiences)

	f, err := NewFilter(fantasy, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 2, 4, 3}, {2}}, f.GenreRestrictionSets)
	require.NotNil(t, f.Fiction)
	assert.True(t, *f.Fiction)
}

func TestLoadDefinitionsErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "lanes:\n  - name: A\n    colour: red\n"},
		{"missing name", "lanes:\n  - priority: 1\n"},
		{"missing sublane name", "lanes:\n  - name: A\n    sublanes:\n      - priority: 2\n"},
		{"lists and source", "lanes:\n  - name: A\n    lists: [X]\n    list_data_source: NYT\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDefinitions(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestBuildLanesUnknownReferences(t *testing.T) {
	_, err := BuildLanes([]Definition{{Name: "A", Genres: []GenreRef{{Name: "Westerns"}}}}, nil, testTaxonomy())
	assert.ErrorContains(t, err, `unknown genre "Westerns"`)

	_, err = BuildLanes([]Definition{{Name: "A", Lists: []string{"Nope"}}}, nil, testTaxonomy())
	assert.ErrorContains(t, err, `unknown list "Nope"`)
}

func TestLoadDefinitionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lanesYAML), 0o644))

	defs, err := LoadDefinitionsFile(path)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, err = LoadDefinitionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	defs, err = LoadDefinitions(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, defs)
}
