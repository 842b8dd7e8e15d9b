package lane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/model"
)

type countingMultiSearcher struct {
	*MemoryIndex
	multiCalls int
}

func (s *countingMultiSearcher) QueryWorksMulti(ctx context.Context, filters []*Filter, p *Pagination) ([][]Hit, error) {
	s.multiCalls++
	out := make([][]Hit, len(filters))
	for i, f := range filters {
		out[i] = Search(s.Docs, f, NewPagination(p.Offset, p.Size))
	}
	return out, nil
}

func deterministic() *FeaturedFacets {
	return &FeaturedFacets{MinimumFeaturedQuality: 0.65, Deterministic: true}
}

func listLane(lib *model.Library, name string, priority int, lists ...int64) *Lane {
	l := NewLane(lib, name)
	l.Priority = priority
	l.CustomLists = lists
	return l
}

type groupEntry struct {
	list string
	work int64
}

func summarize(entries []WorkInList) []groupEntry {
	out := make([]groupEntry, len(entries))
	for i, e := range entries {
		out[i] = groupEntry{e.List.Label(), e.Work.ID}
	}
	return out
}

func TestGroupsReusesWorksOnlyToFillALane(t *testing.T) {
	lib := &model.Library{ShortName: "LIB", FeaturedLaneSize: 2}
	idx := &MemoryIndex{Docs: []*Doc{
		newDoc(1, withQuality(0.40), onLists(1, 2)),
		newDoc(2, withQuality(0.30), onLists(1, 2)),
		newDoc(3, withQuality(0.20), onLists(2)),
		newDoc(4, withQuality(0.10), onLists(1)),
	}}
	top := &WorkList{DisplayName: "Top", Library: lib}
	top.AppendChild(listLane(lib, "A", 0, 1))
	top.AppendChild(listLane(lib, "B", 1, 2))

	got, err := Groups(context.Background(), idx, top, true, deterministic())
	require.NoError(t, err)
	assert.Equal(t, []groupEntry{
		{"A", 1}, {"A", 2},
		{"B", 3}, {"B", 1},
	}, summarize(got))
}

func TestGroupsAvoidsDuplicatesWhenCandidatesSuffice(t *testing.T) {
	lib := &model.Library{FeaturedLaneSize: 2}
	idx := &MemoryIndex{Docs: []*Doc{
		newDoc(1, withQuality(0.40), onLists(1, 2)),
		newDoc(2, withQuality(0.35), onLists(1)),
		newDoc(3, withQuality(0.30), onLists(1)),
		newDoc(4, withQuality(0.25), onLists(2)),
		newDoc(5, withQuality(0.20), onLists(2)),
	}}
	top := &WorkList{DisplayName: "Top", Library: lib}
	top.AppendChild(listLane(lib, "A", 0, 1))
	top.AppendChild(listLane(lib, "B", 1, 2))

	got, err := Groups(context.Background(), idx, top, true, deterministic())
	require.NoError(t, err)
	assert.Equal(t, []groupEntry{
		{"A", 1}, {"A", 2},
		{"B", 4}, {"B", 5},
	}, summarize(got))
}

func TestGroupsUsesOneCombinedQuery(t *testing.T) {
	lib := &model.Library{FeaturedLaneSize: 1}
	s := &countingMultiSearcher{MemoryIndex: &MemoryIndex{Docs: []*Doc{
		newDoc(1, onLists(1)),
		newDoc(2, onLists(2)),
	}}}
	top := &WorkList{DisplayName: "Top", Library: lib}
	top.AppendChild(listLane(lib, "A", 0, 1))
	top.AppendChild(listLane(lib, "B", 1, 2))

	got, err := Groups(context.Background(), s, top, true, deterministic())
	require.NoError(t, err)
	assert.Equal(t, 1, s.multiCalls)
	assert.Equal(t, []groupEntry{{"A", 1}, {"B", 2}}, summarize(got))
}

func TestGroupsQueriesWorkListChildrenSeparately(t *testing.T) {
	lib := &model.Library{FeaturedLaneSize: 2}
	idx := &MemoryIndex{Docs: []*Doc{
		newDoc(1, withQuality(0.40), onLists(1, 2)),
		newDoc(2, withQuality(0.30), onLists(1, 2)),
	}}
	top := &WorkList{DisplayName: "Top", Library: lib}
	top.AppendChild(&WorkList{DisplayName: "Plain", Library: lib, CustomLists: []int64{2}})
	top.AppendChild(listLane(lib, "A", 0, 1))

	got, err := Groups(context.Background(), idx, top, true, deterministic())
	require.NoError(t, err)
	// No deduplication across the two kinds of children.
	assert.Equal(t, []groupEntry{
		{"Plain", 1}, {"Plain", 2},
		{"A", 1}, {"A", 2},
	}, summarize(got))
}

func TestGroupsForLaneParent(t *testing.T) {
	lib := &model.Library{FeaturedLaneSize: 1}
	idx := &MemoryIndex{Docs: []*Doc{
		newDoc(1, withQuality(0.40), onLists(1)),
		newDoc(2, withQuality(0.30), onLists(2)),
		newDoc(3, withQuality(0.20), onLists(3)),
	}}
	parent := listLane(lib, "Parent", 0)
	inheriting := listLane(lib, "Inheriting", 0, 1)
	inheriting.SetParent(parent)
	independent := listLane(lib, "Independent", 1, 2)
	independent.InheritParentRestrictions = false
	independent.SetParent(parent)
	hidden := listLane(lib, "Hidden", 2, 3)
	hidden.Visible = false
	hidden.SetParent(parent)

	got, err := Groups(context.Background(), idx, parent, true, deterministic())
	require.NoError(t, err)
	assert.Equal(t, []groupEntry{
		{"Inheriting", 1},
		{"Independent", 2},
		{"Parent", 2},
	}, summarize(got))

	parent.IncludeSelfInGroupedFeed = false
	got, err = Groups(context.Background(), idx, parent, true, deterministic())
	require.NoError(t, err)
	assert.Equal(t, []groupEntry{{"Inheriting", 1}, {"Independent", 2}}, summarize(got))

	got, err = Groups(context.Background(), idx, parent, false, deterministic())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGroupsWithoutSublanes(t *testing.T) {
	lib := &model.Library{FeaturedLaneSize: 2}
	idx := &MemoryIndex{Docs: []*Doc{newDoc(1), newDoc(2), newDoc(3)}}
	wl := &WorkList{DisplayName: "All", Library: lib}

	got, err := Groups(context.Background(), idx, wl, false, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, e := range got {
		assert.Same(t, wl, e.List)
	}
}
