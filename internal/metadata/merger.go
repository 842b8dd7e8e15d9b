package metadata

import (
	"sort"

	"github.com/lepinkainen/folio/internal/model"
)

// Sourced is metadata tagged with the precedence of the source it came from.
type Sourced struct {
	Priority int
	Data     *Metadata
}

// Merge combines metadata from several sources. Inputs are ordered by
// priority (lower wins) and each scalar field takes the first non-empty
// value; subjects are unioned.
func Merge(results []Sourced) *Metadata {
	if len(results) == 0 {
		return nil
	}

	sorted := append([]Sourced(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	merged := &Metadata{}
	first := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}

	for _, r := range sorted {
		d := r.Data
		if d == nil {
			continue
		}
		first(&merged.DataSource, d.DataSource)
		first(&merged.Title, d.Title)
		first(&merged.Subtitle, d.Subtitle)
		first(&merged.SortTitle, d.SortTitle)
		first(&merged.Publisher, d.Publisher)
		first(&merged.Language, d.Language)
		first(&merged.Medium, d.Medium)
		first(&merged.Series, d.Series)
		first(&merged.Description, d.Description)
		first(&merged.CoverURL, d.CoverURL)

		if merged.SeriesPosition == 0 && d.SeriesPosition > 0 {
			merged.SeriesPosition = d.SeriesPosition
		}
		if merged.Published.IsZero() && !d.Published.IsZero() {
			merged.Published = d.Published
		}
		if len(merged.Contributors) == 0 && len(d.Contributors) > 0 {
			merged.Contributors = d.Contributors
		}
		if merged.Circulation == nil && d.Circulation != nil {
			merged.Circulation = d.Circulation
		}
		if len(d.Subjects) > 0 {
			merged.Subjects = mergeStringSlices(merged.Subjects, d.Subjects)
		}
	}

	return merged
}

// FromEdition turns a stored edition back into metadata, so editions from
// several sources can be merged.
func FromEdition(e *model.Edition) *Metadata {
	m := &Metadata{
		DataSource:     e.DataSource,
		Title:          e.Title,
		Subtitle:       e.Subtitle,
		SortTitle:      e.SortTitle,
		Publisher:      e.Publisher,
		Language:       e.Language,
		Medium:         e.Medium,
		Series:         e.Series,
		SeriesPosition: e.SeriesPosition,
		Published:      e.Published,
		Description:    e.Description,
		CoverURL:       e.CoverURL,
		Subjects:       e.Subjects,
	}
	if e.Author != "" {
		m.Contributors = []Contributor{{DisplayName: e.Author, SortName: e.SortAuthor}}
	}
	return m
}

// Presentation merges editions, given best first, into the edition a work
// is shown with. Only titled editions take part. The result carries the ID
// and data source of the best one; nil means no edition has a title.
func Presentation(editions []*model.Edition) (*model.Edition, error) {
	var (
		best    *model.Edition
		sources []Sourced
	)
	for i, e := range editions {
		if e == nil || e.Title == "" {
			continue
		}
		if best == nil {
			best = e
		}
		sources = append(sources, Sourced{Priority: i, Data: FromEdition(e)})
	}
	if best == nil {
		return nil, nil
	}

	merged := Merge(sources)
	merged.DataSource = best.DataSource
	out := &model.Edition{ID: best.ID, DataSource: best.DataSource, IdentifierID: best.IdentifierID}
	if err := merged.Apply(out, FromMetadataSource()); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeStringSlices merges two string slices, removing duplicates.
func mergeStringSlices(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	return result
}
