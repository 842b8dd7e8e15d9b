package lane

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/lepinkainen/folio/internal/model"
)

// ErrParentageLoop is returned when following parents leads back to a list
// already visited.
var ErrParentageLoop = errors.New("lane parentage loop detected")

// Restrictions are the filters one list imposes by itself. A nil slice
// imposes nothing; for GenreIDs and CustomListIDs an empty non-nil slice
// excludes everything.
type Restrictions struct {
	Languages         []string
	Media             []string
	Audiences         []string
	Fiction           *bool
	TargetAge         *model.AgeRange
	LicenseDataSource string
	GenreIDs          []int64
	CustomListIDs     []int64
}

// List is a named, filterable view over the catalog. *WorkList and *Lane
// implement it.
type List interface {
	Label() string
	SortPriority() int
	IsVisible() bool
	// ParentList is nil for lists without a parent.
	ParentList() List
	ChildLists() []List
	InheritsRestrictions() bool
	OwnRestrictions() (Restrictions, error)
	LibraryInfo() *model.Library
	EntryPoints() []*EntryPoint
}

// WorkList is a List assembled in memory, e.g. the top level of a library.
type WorkList struct {
	DisplayName       string
	Priority          int
	Library           *model.Library
	Languages         []string
	Media             []string
	Audiences         []string
	Fiction           *bool
	TargetAge         *model.AgeRange
	LicenseDataSource string
	Genres            []int64
	CustomLists       []int64
	Entrypoints       []*EntryPoint

	children []List
}

func (w *WorkList) Label() string               { return w.DisplayName }
func (w *WorkList) SortPriority() int           { return w.Priority }
func (w *WorkList) IsVisible() bool             { return true }
func (w *WorkList) ParentList() List            { return nil }
func (w *WorkList) ChildLists() []List          { return w.children }
func (w *WorkList) InheritsRestrictions() bool  { return false }
func (w *WorkList) LibraryInfo() *model.Library { return w.Library }
func (w *WorkList) EntryPoints() []*EntryPoint  { return w.Entrypoints }

// AppendChild adds a child list.
func (w *WorkList) AppendChild(child List) {
	w.children = append(w.children, child)
}

func (w *WorkList) OwnRestrictions() (Restrictions, error) {
	return Restrictions{
		Languages:         w.Languages,
		Media:             w.Media,
		Audiences:         w.Audiences,
		Fiction:           w.Fiction,
		TargetAge:         w.TargetAge,
		LicenseDataSource: w.LicenseDataSource,
		GenreIDs:          w.Genres,
		CustomListIDs:     w.CustomLists,
	}, nil
}

// UsesCustomLists reports whether membership depends on custom lists.
func (w *WorkList) UsesCustomLists() bool {
	return w.CustomLists != nil
}

// FulfillableMedia are the media the default client can deliver.
var FulfillableMedia = []string{model.MediumBook, model.MediumAudio}

// TopLevelForLibrary returns the list at the root of a library's feeds.
// A single visible top-level lane stands in for the library; otherwise a
// WorkList gathers the visible top-level lanes.
func TopLevelForLibrary(library *model.Library, lanes []*Lane) List {
	var top []*Lane
	for _, l := range lanes {
		if l.parent == nil && l.Visible {
			top = append(top, l)
		}
	}
	if len(top) == 1 {
		return top[0]
	}
	slices.SortStableFunc(top, func(a, b *Lane) int { return cmp.Compare(a.Priority, b.Priority) })

	name := ""
	if library != nil {
		name = library.Name
	}
	wl := &WorkList{
		DisplayName: name,
		Library:     library,
		Media:       slices.Clone(FulfillableMedia),
		Entrypoints: []*EntryPoint{EntryPointBook, EntryPointAudiobook},
	}
	for _, l := range top {
		wl.AppendChild(l)
	}
	return wl
}

// VisibleChildren returns l's visible children ordered by priority, then
// display name.
func VisibleChildren(l List) []List {
	var out []List
	for _, c := range l.ChildLists() {
		if c.IsVisible() {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b List) int {
		if c := cmp.Compare(a.SortPriority(), b.SortPriority()); c != 0 {
			return c
		}
		return strings.Compare(a.Label(), b.Label())
	})
	return out
}

// Parentage returns l's parent, grandparent and so on.
func Parentage(l List) ([]List, error) {
	seen := map[List]bool{l: true}
	var out []List
	for p := l.ParentList(); p != nil; p = p.ParentList() {
		if seen[p] {
			return nil, ErrParentageLoop
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Hierarchy returns the chain of lists from the root down to l.
func Hierarchy(l List) ([]List, error) {
	parents, err := Parentage(l)
	if err != nil {
		return nil, err
	}
	slices.Reverse(parents)
	return append(parents, l), nil
}

// InheritedValue returns l's own value for a restriction, or when l has
// none and inherits from its parent, the parent's inherited value.
func InheritedValue[T any](l List, get func(Restrictions) T) (T, error) {
	var zero T
	chain, err := Hierarchy(l)
	if err != nil {
		return zero, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		r, err := chain[i].OwnRestrictions()
		if err != nil {
			return zero, err
		}
		if v := get(r); !isEmpty(v) {
			return v, nil
		}
		if !chain[i].InheritsRestrictions() {
			break
		}
	}
	return zero, nil
}

// InheritedValues collects a restriction from l and, when l inherits, from
// every ancestor. The restrictions are additive.
func InheritedValues[T any](l List, get func(Restrictions) []T) ([][]T, error) {
	chain := []List{l}
	if l.InheritsRestrictions() {
		var err error
		if chain, err = Hierarchy(l); err != nil {
			return nil, err
		}
	}
	var out [][]T
	for _, wl := range chain {
		r, err := wl.OwnRestrictions()
		if err != nil {
			return nil, err
		}
		if v := get(r); v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case []int64:
		return len(x) == 0
	case *bool:
		return x == nil
	case *model.AgeRange:
		return x == nil
	}
	return false
}

// FullIdentifier names l by its position in the hierarchy, prefixed with
// the library's short name.
func FullIdentifier(l List) (string, error) {
	chain, err := Hierarchy(l)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(chain)+1)
	if lib := l.LibraryInfo(); lib != nil && lib.ShortName != "" {
		parts = append(parts, lib.ShortName)
	}
	for _, c := range chain {
		parts = append(parts, c.Label())
	}
	return strings.Join(parts, " / "), nil
}

// Works returns the works in l under facets, in search order.
func Works(ctx context.Context, s Searcher, l List, facets SearchModifier, p *Pagination) ([]*model.Work, error) {
	f, err := NewFilter(l, facets)
	if err != nil {
		return nil, err
	}
	hits, err := s.QueryWorks(ctx, f, p)
	if err != nil {
		return nil, err
	}
	return WorksForHits(ctx, s, hits)
}
