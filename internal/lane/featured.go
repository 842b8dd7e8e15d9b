package lane

import (
	"net/http"
	"net/url"
	"slices"
	"time"

	"golang.org/x/text/language"

	"github.com/lepinkainen/folio/internal/model"
)

// DefaultMinimumFeaturedQuality applies when a list has no library.
const DefaultMinimumFeaturedQuality = 0.65

// Score weights of the featurability ranking.
const (
	featurableQualityWeight = 5.0
	availableNowWeight      = 5.0
	randomWeight            = 1.1
	featuredOnListWeight    = 11.0
)

// FeaturedFacets orders works by how featurable they are, for grouped feeds.
type FeaturedFacets struct {
	MinimumFeaturedQuality float64
	EntryPoint             *EntryPoint
	// RandomSeed varies the random part of the score. Zero seeds from the
	// clock.
	RandomSeed int64
	// Deterministic drops the random part of the score entirely.
	Deterministic bool
}

// NewFeaturedFacets uses the library's minimum featured quality when l has
// a library that sets one.
func NewFeaturedFacets(l List, entryPoint *EntryPoint) *FeaturedFacets {
	quality := DefaultMinimumFeaturedQuality
	if l != nil {
		if lib := l.LibraryInfo(); lib != nil && lib.MinimumFeaturedQuality > 0 {
			quality = lib.MinimumFeaturedQuality
		}
	}
	return &FeaturedFacets{MinimumFeaturedQuality: quality, EntryPoint: entryPoint}
}

// Navigate returns facets that differ in the given non-zero values.
func (f *FeaturedFacets) Navigate(minimumFeaturedQuality float64, entryPoint *EntryPoint) *FeaturedFacets {
	n := *f
	if minimumFeaturedQuality > 0 {
		n.MinimumFeaturedQuality = minimumFeaturedQuality
	}
	if entryPoint != nil {
		n.EntryPoint = entryPoint
	}
	return &n
}

// Items lists the active settings.
func (f *FeaturedFacets) Items() []Item {
	if f.EntryPoint == nil {
		return nil
	}
	return []Item{{GroupEntryPoint, f.EntryPoint.InternalName}}
}

// QueryString propagates the active settings in a URL.
func (f *FeaturedFacets) QueryString() string { return queryString(f.Items()) }

// ModifySearchFilter turns on featurability scoring.
func (f *FeaturedFacets) ModifySearchFilter(filter *Filter) {
	f.EntryPoint.ModifySearchFilter(filter)
	seed := f.RandomSeed
	if seed == 0 && !f.Deterministic {
		seed = time.Now().Unix()
	}
	filter.Featured = &FeaturedScoring{
		QualityCutoff: f.MinimumFeaturedQuality * f.MinimumFeaturedQuality,
		RandomSeed:    seed,
		Deterministic: f.Deterministic,
	}
}

// FeaturedScoring ranks works: quality up to a cutoff counts quadratically,
// availability and being featured on a relevant custom list add fixed
// boosts, and a seeded random term keeps the selection from going stale.
type FeaturedScoring struct {
	QualityCutoff float64
	RandomSeed    int64
	Deterministic bool
}

// Score computes the featurability of doc. relevantLists are the custom
// lists the filter restricts to.
func (s *FeaturedScoring) Score(doc *Doc, relevantLists []int64) float64 {
	q := min(s.QualityCutoff, doc.Work.Quality)
	score := q * q * featurableQualityWeight
	if doc.Available() {
		score += availableNowWeight
	}
	if !s.Deterministic {
		score += seededRandom(s.RandomSeed, doc.Work.ID) * randomWeight
	}
	for _, id := range doc.FeaturedListIDs {
		if slices.Contains(relevantLists, id) {
			score += featuredOnListWeight
			break
		}
	}
	return score
}

// SearchFacets refines a search with media and language preferences.
type SearchFacets struct {
	EntryPoint          *EntryPoint
	EntryPointIsDefault bool
	// AllMedia clears any media restriction the list or entry point set.
	AllMedia  bool
	Media     []string
	Languages []string

	mediaArgument string
}

// MediaAll is the media argument that lifts media restrictions.
const MediaAll = "all"

var knownMedia = []string{model.MediumBook, model.MediumAudio, model.MediumVideo, model.MediumPeriodical}

// NewSearchFacets builds SearchFacets from an already validated media
// argument.
func NewSearchFacets(entryPoint *EntryPoint, media string, languages []string) *SearchFacets {
	f := &SearchFacets{EntryPoint: entryPoint, Languages: languages, mediaArgument: media}
	switch {
	case media == MediaAll:
		f.AllMedia = true
	case media != "":
		f.Media = []string{media}
	}
	return f
}

// SearchFacetsFromRequest reads the media argument and, unless the client
// asked for language=all, the Accept-Language header.
func SearchFacetsFromRequest(args url.Values, header http.Header, list List, defaultEntryPoint *EntryPoint) *SearchFacets {
	media := args.Get("media")
	if media != MediaAll && !slices.Contains(knownMedia, media) {
		media = ""
	}

	var languages []string
	if args.Get("language") != "all" {
		languages = acceptLanguages(header.Get("Accept-Language"))
	}

	ep, isDefault := loadEntryPoint(args.Get(GroupEntryPoint), SearchEntryPoints(list), defaultEntryPoint)
	f := NewSearchFacets(ep, media, languages)
	f.EntryPointIsDefault = isDefault
	return f
}

// acceptLanguages turns an Accept-Language header into ISO 639-2 codes.
func acceptLanguages(header string) []string {
	if header == "" {
		return nil
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}
	var out []string
	for _, t := range tags {
		base, conf := t.Base()
		if conf == language.No {
			continue
		}
		code := base.ISO3()
		if code != "" && !slices.Contains(out, code) {
			out = append(out, code)
		}
	}
	return out
}

// SearchEntryPoints adds the everything entry point to lists that offer
// more than one.
func SearchEntryPoints(list List) []*EntryPoint {
	if list == nil {
		return nil
	}
	eps := list.EntryPoints()
	if len(eps) < 2 || slices.Contains(eps, EntryPointEverything) {
		return eps
	}
	return append([]*EntryPoint{EntryPointEverything}, eps...)
}

// Items lists the entry point and the media argument.
func (f *SearchFacets) Items() []Item {
	var items []Item
	if f.EntryPoint != nil {
		items = append(items, Item{GroupEntryPoint, f.EntryPoint.InternalName})
	}
	if f.mediaArgument != "" {
		items = append(items, Item{"media", f.mediaArgument})
	}
	return items
}

// QueryString propagates the active settings in a URL.
func (f *SearchFacets) QueryString() string { return queryString(f.Items()) }

// ModifySearchFilter applies media and language preferences. An explicit
// media choice overrides the list; the passive Accept-Language header only
// fills in when the list sets no languages.
func (f *SearchFacets) ModifySearchFilter(filter *Filter) {
	f.EntryPoint.ModifySearchFilter(filter)
	switch {
	case f.AllMedia:
		filter.Media = nil
	case len(f.Media) > 0:
		filter.Media = slices.Clone(f.Media)
	}
	if len(f.Languages) > 0 && len(filter.Languages) == 0 {
		filter.Languages = slices.Clone(f.Languages)
	}
}
