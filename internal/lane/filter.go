package lane

import (
	"slices"

	"github.com/lepinkainen/folio/internal/model"
)

// Age cutoffs used to relate target ages to audiences.
const (
	AdultAgeCutoff      = 18
	YoungAdultAgeCutoff = 12
)

// SearchModifier is any facet object that can refine a Filter.
type SearchModifier interface {
	ModifySearchFilter(f *Filter)
}

// Filter is a search request: the restrictions of a list and its
// ancestry, narrowed further by facets.
type Filter struct {
	Languages         []string
	Media             []string
	Audiences         []string
	Fiction           *bool
	TargetAge         *model.AgeRange
	LicenseDataSource string

	// Each restriction set must be matched by at least one member. An empty
	// set matches nothing.
	GenreRestrictionSets      [][]int64
	CustomListRestrictionSets [][]int64

	// WorkIDs restricts the search to specific works when non-empty.
	WorkIDs []int64

	Availability           string
	Subcollection          string
	MinimumFeaturedQuality float64

	Order          string
	OrderAscending bool
	// Featured, when set, replaces Order with featurability scoring.
	Featured *FeaturedScoring
}

// NewFilter collects the restrictions l imposes, including those it
// inherits, and applies facets.
func NewFilter(l List, facets SearchModifier) (*Filter, error) {
	f := &Filter{OrderAscending: true}
	var err error

	if f.Languages, err = InheritedValue(l, func(r Restrictions) []string { return r.Languages }); err != nil {
		return nil, err
	}
	if f.Media, err = InheritedValue(l, func(r Restrictions) []string { return r.Media }); err != nil {
		return nil, err
	}
	if f.Audiences, err = InheritedValue(l, func(r Restrictions) []string { return r.Audiences }); err != nil {
		return nil, err
	}
	if f.Fiction, err = InheritedValue(l, func(r Restrictions) *bool { return r.Fiction }); err != nil {
		return nil, err
	}
	if f.TargetAge, err = InheritedValue(l, func(r Restrictions) *model.AgeRange { return r.TargetAge }); err != nil {
		return nil, err
	}
	if f.LicenseDataSource, err = InheritedValue(l, func(r Restrictions) string { return r.LicenseDataSource }); err != nil {
		return nil, err
	}
	if f.GenreRestrictionSets, err = InheritedValues(l, func(r Restrictions) []int64 { return r.GenreIDs }); err != nil {
		return nil, err
	}
	if f.CustomListRestrictionSets, err = InheritedValues(l, func(r Restrictions) []int64 { return r.CustomListIDs }); err != nil {
		return nil, err
	}
	if lib := l.LibraryInfo(); lib != nil {
		f.MinimumFeaturedQuality = lib.MinimumFeaturedQuality
	}

	if facets != nil {
		facets.ModifySearchFilter(f)
	}
	return f, nil
}

// Match reports whether doc belongs in the result set. Works that are not
// presentation ready never match.
func (f *Filter) Match(doc *Doc) bool {
	w := doc.Work
	if w == nil || !w.PresentationReady {
		return false
	}
	if len(f.WorkIDs) > 0 && !slices.Contains(f.WorkIDs, w.ID) {
		return false
	}
	if len(f.Languages) > 0 && !slices.Contains(f.Languages, w.Language) {
		return false
	}
	if len(f.Media) > 0 && !slices.Contains(f.Media, w.Medium) {
		return false
	}
	if len(f.Audiences) > 0 && !slices.Contains(f.Audiences, w.Audience) {
		return false
	}
	if f.Fiction != nil && (w.Fiction == nil || *w.Fiction != *f.Fiction) {
		return false
	}
	if f.TargetAge != nil && !f.matchTargetAge(w) {
		return false
	}
	if f.LicenseDataSource != "" && doc.DataSource != f.LicenseDataSource {
		return false
	}
	for _, set := range f.GenreRestrictionSets {
		if !intersects(set, w.GenreIDs) {
			return false
		}
	}
	for _, set := range f.CustomListRestrictionSets {
		if !intersects(set, doc.CustomListIDs) {
			return false
		}
	}

	switch f.Availability {
	case AvailableNow:
		if !doc.Available() {
			return false
		}
	case AvailableAll:
		if !doc.OpenAccess && doc.LicensesOwned <= 0 {
			return false
		}
	case AvailableOpenAccess:
		if !doc.OpenAccess {
			return false
		}
	}

	switch f.Subcollection {
	case CollectionMain:
		if doc.OpenAccess && w.Quality < MainCollectionQualityFloor {
			return false
		}
	case CollectionFeatured:
		if w.Quality < f.MinimumFeaturedQuality {
			return false
		}
	}
	return true
}

// matchTargetAge lets works without a target age through when the filter
// reaches into adult ages or audiences, since adult books carry none.
func (f *Filter) matchTargetAge(w *model.Work) bool {
	if w.TargetAge != (model.AgeRange{}) {
		return w.TargetAge.Overlaps(*f.TargetAge)
	}
	if f.TargetAge.Max == 0 || f.TargetAge.Max >= AdultAgeCutoff {
		return true
	}
	return slices.Contains(f.Audiences, model.AudienceAdult) || slices.Contains(f.Audiences, model.AudienceAdultsOnly)
}

// relevantLists flattens the custom list restriction sets.
func (f *Filter) relevantLists() []int64 {
	var out []int64
	for _, set := range f.CustomListRestrictionSets {
		for _, id := range set {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

func intersects(a, b []int64) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
