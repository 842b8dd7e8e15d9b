package lane

import (
	"context"
	"fmt"
	"slices"

	"github.com/lepinkainen/folio/internal/model"
)

// DefaultFeaturedLaneSize applies when the library sets no featured lane
// size.
const DefaultFeaturedLaneSize = 15

// WorkInList is one entry of a grouped feed.
type WorkInList struct {
	Work *model.Work
	List List
}

func featuredLaneSize(l List) int {
	if lib := l.LibraryInfo(); lib != nil && lib.FeaturedLaneSize > 0 {
		return lib.FeaturedLaneSize
	}
	return DefaultFeaturedLaneSize
}

// Groups samples featured works from each visible child of l, for a grouped
// feed. A work shows up in only one child unless a child could not
// otherwise be filled. Without includeSublanes, only l's own works are
// sampled.
func Groups(ctx context.Context, s Searcher, l List, includeSublanes bool, facets *FeaturedFacets) ([]WorkInList, error) {
	if facets == nil {
		facets = NewFeaturedFacets(l, nil)
	}

	if ln, ok := l.(*Lane); ok {
		var relevant []List
		if includeSublanes {
			relevant = VisibleChildren(ln)
		}
		if ln.IncludeSelfInGroupedFeed {
			relevant = append(relevant, ln)
		}
		// The lane and children sharing its restrictions can go in one
		// query; the rest need their own call.
		var queryable []List
		for _, c := range relevant {
			if c == List(ln) || c.InheritsRestrictions() {
				queryable = append(queryable, c)
			}
		}
		return groupsForLists(ctx, s, l, relevant, queryable, facets)
	}

	if !includeSublanes {
		works, err := Works(ctx, s, l, facets, NewPagination(0, featuredLaneSize(l)))
		if err != nil {
			return nil, err
		}
		out := make([]WorkInList, len(works))
		for i, w := range works {
			out[i] = WorkInList{Work: w, List: l}
		}
		return out, nil
	}

	var relevant, queryable []List
	for _, c := range l.ChildLists() {
		if !c.IsVisible() {
			continue
		}
		relevant = append(relevant, c)
		if _, ok := c.(*Lane); ok {
			queryable = append(queryable, c)
		}
	}
	return groupsForLists(ctx, s, l, relevant, queryable, facets)
}

func groupsForLists(ctx context.Context, s Searcher, parent List, relevant, queryable []List, facets *FeaturedFacets) ([]WorkInList, error) {
	target := featuredLaneSize(parent)
	// Ask for a few extra works per list so duplicates can be skipped.
	ask := max(target+1, int(float64(target)*1.10))

	candidates, err := featuredWorks(ctx, s, queryable, facets, ask)
	if err != nil {
		return nil, err
	}

	used := make(map[int64]bool)
	byList := make(map[List][]*model.Work, len(queryable))
	for i, l := range queryable {
		usedHere := make(map[int64]bool)
		var reusable []*model.Work
		for _, w := range candidates[i] {
			if len(byList[l]) >= target {
				break
			}
			if used[w.ID] {
				if !usedHere[w.ID] && !slices.ContainsFunc(reusable, func(r *model.Work) bool { return r.ID == w.ID }) {
					reusable = append(reusable, w)
				}
				continue
			}
			byList[l] = append(byList[l], w)
			used[w.ID] = true
			usedHere[w.ID] = true
		}
		// Fill out a short list with works already shown elsewhere.
		if missing := target - len(byList[l]); missing > 0 {
			byList[l] = append(byList[l], reusable[:min(missing, len(reusable))]...)
		}
	}

	var out []WorkInList
	for _, l := range relevant {
		if slices.Contains(queryable, l) {
			for _, w := range byList[l] {
				out = append(out, WorkInList{Work: w, List: l})
			}
			continue
		}
		sub, err := Groups(ctx, s, l, false, facets)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// featuredWorks returns up to size featured candidates for each list, in
// list order.
func featuredWorks(ctx context.Context, s Searcher, lists []List, facets *FeaturedFacets, size int) ([][]*model.Work, error) {
	if len(lists) == 0 {
		return nil, nil
	}
	filters := make([]*Filter, len(lists))
	for i, l := range lists {
		f, err := NewFilter(l, facets)
		if err != nil {
			return nil, fmt.Errorf("filter for %q: %w", l.Label(), err)
		}
		filters[i] = f
	}

	var hits [][]Hit
	if ms, ok := s.(MultiSearcher); ok {
		var err error
		if hits, err = ms.QueryWorksMulti(ctx, filters, NewPagination(0, size)); err != nil {
			return nil, err
		}
	} else {
		hits = make([][]Hit, len(filters))
		for i, f := range filters {
			h, err := s.QueryWorks(ctx, f, NewPagination(0, size))
			if err != nil {
				return nil, err
			}
			hits[i] = h
		}
	}

	out := make([][]*model.Work, len(lists))
	for i := range lists {
		if i >= len(hits) {
			break
		}
		works, err := WorksForHits(ctx, s, hits[i])
		if err != nil {
			return nil, err
		}
		out[i] = works
	}
	return out, nil
}
