package lane

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/lepinkainen/folio/internal/model"
)

// ErrAudiencesLocked is returned when changing the audiences of a lane whose
// target age already determines them.
var ErrAudiencesLocked = errors.New("cannot modify lane audiences when target age is set")

// LaneGenre ties a genre to a lane.
type LaneGenre struct {
	GenreID   int64 `json:"genre_id" yaml:"genre_id"`
	Inclusive bool  `json:"inclusive" yaml:"inclusive"`
	Recursive bool  `json:"recursive" yaml:"recursive"`
}

// Taxonomy is the genre tree and the known custom lists, used to resolve a
// lane's genre and list restrictions into ids.
type Taxonomy struct {
	genres   map[int64]model.Genre
	children map[int64][]int64
	lists    []model.CustomList
}

// NewTaxonomy indexes genres by parent.
func NewTaxonomy(genres []model.Genre, lists []model.CustomList) *Taxonomy {
	t := &Taxonomy{
		genres:   make(map[int64]model.Genre, len(genres)),
		children: make(map[int64][]int64),
		lists:    lists,
	}
	for _, g := range genres {
		t.genres[g.ID] = g
		if g.ParentID != 0 {
			t.children[g.ParentID] = append(t.children[g.ParentID], g.ID)
		}
	}
	return t
}

// Genre looks up a genre by id.
func (t *Taxonomy) Genre(id int64) (model.Genre, bool) {
	g, ok := t.genres[id]
	return g, ok
}

// Subgenres returns every descendant of the genre.
func (t *Taxonomy) Subgenres(id int64) []int64 {
	var out []int64
	seen := map[int64]bool{id: true}
	queue := slices.Clone(t.children[id])
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		if seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
		queue = append(queue, t.children[g]...)
	}
	return out
}

// GenreByName looks up a genre by name.
func (t *Taxonomy) GenreByName(name string) (model.Genre, bool) {
	for _, g := range t.genres {
		if g.Name == name {
			return g, true
		}
	}
	return model.Genre{}, false
}

// CustomListByName looks up a custom list by name.
func (t *Taxonomy) CustomListByName(name string) (model.CustomList, bool) {
	for _, cl := range t.lists {
		if cl.Name == name {
			return cl, true
		}
	}
	return model.CustomList{}, false
}

func (t *Taxonomy) allGenreIDs() []int64 {
	ids := make([]int64, 0, len(t.genres))
	for id := range t.genres {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Lane is a persisted WorkList. Lanes form a tree through their parents.
// The embedded Genres field is unused; a lane's genres come from
// LaneGenres.
type Lane struct {
	WorkList

	ID        int64
	LibraryID int64
	ParentID  int64

	// Visible is the lane's own setting. IsVisible also considers ancestors.
	Visible                   bool
	InheritParentRestrictions bool
	IncludeSelfInGroupedFeed  bool
	RootForPatronType         []string

	LaneGenres []LaneGenre
	// ListDataSource, when set, restricts the lane to works on any list
	// from that source and takes precedence over CustomLists.
	ListDataSource string

	// Size is the number of works in the lane, by entry point URI in
	// SizeByEntryPoint.
	Size             int
	SizeByEntryPoint map[string]int

	parent   *Lane
	sublanes []*Lane
	taxonomy *Taxonomy
}

// NewLane returns a visible lane that inherits its parent's restrictions
// and shows itself in grouped feeds.
func NewLane(library *model.Library, displayName string) *Lane {
	l := &Lane{
		Visible:                   true,
		InheritParentRestrictions: true,
		IncludeSelfInGroupedFeed:  true,
	}
	l.DisplayName = displayName
	l.Library = library
	if library != nil {
		l.LibraryID = library.ID
	}
	return l
}

// SetTaxonomy sets the taxonomy used to resolve genre and list ids.
func (l *Lane) SetTaxonomy(t *Taxonomy) { l.taxonomy = t }

// SetParent moves l under parent. A nil parent makes l top-level.
func (l *Lane) SetParent(parent *Lane) {
	if l.parent != nil {
		l.parent.sublanes = slices.DeleteFunc(l.parent.sublanes, func(c *Lane) bool { return c == l })
	}
	l.parent = parent
	l.ParentID = 0
	if parent != nil {
		l.ParentID = parent.ID
		parent.sublanes = append(parent.sublanes, l)
	}
}

// Parent returns the parent lane, or nil.
func (l *Lane) Parent() *Lane { return l.parent }

// Sublanes returns the direct children in insertion order.
func (l *Lane) Sublanes() []*Lane { return l.sublanes }

func (l *Lane) ParentList() List {
	if l.parent == nil {
		return nil
	}
	return l.parent
}

func (l *Lane) ChildLists() []List {
	out := make([]List, len(l.sublanes))
	for i, c := range l.sublanes {
		out[i] = c
	}
	return out
}

func (l *Lane) InheritsRestrictions() bool { return l.InheritParentRestrictions }

// EntryPoints is always empty; lanes do not offer entry points.
func (l *Lane) EntryPoints() []*EntryPoint { return nil }

// IsVisible is false when the lane or any ancestor is hidden, and when the
// parentage loops.
func (l *Lane) IsVisible() bool {
	if !l.Visible {
		return false
	}
	parents, err := l.Parentage()
	if err != nil {
		return false
	}
	for _, p := range parents {
		if !p.Visible {
			return false
		}
	}
	return true
}

// Parentage returns the parent, grandparent and so on.
func (l *Lane) Parentage() ([]*Lane, error) {
	var out []*Lane
	seen := map[*Lane]bool{l: true}
	for p := l.parent; p != nil; p = p.parent {
		if seen[p] {
			return nil, ErrParentageLoop
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Depth is the number of ancestors.
func (l *Lane) Depth() (int, error) {
	parents, err := l.Parentage()
	return len(parents), err
}

func (l *Lane) OwnRestrictions() (Restrictions, error) {
	r, _ := l.WorkList.OwnRestrictions()
	genres, err := l.GenreIDs()
	if err != nil {
		return Restrictions{}, err
	}
	lists, err := l.CustomListIDs()
	if err != nil {
		return Restrictions{}, err
	}
	r.GenreIDs = genres
	r.CustomListIDs = lists
	return r, nil
}

// GenreIDs returns every genre a work may be classified under to appear in
// the lane, or nil when the lane ignores genres. With only exclusions, all
// other genres are included.
func (l *Lane) GenreIDs() ([]int64, error) {
	if len(l.LaneGenres) == 0 {
		return nil, nil
	}
	if l.taxonomy == nil {
		return nil, fmt.Errorf("lane %d: genres set without a taxonomy", l.ID)
	}

	var included, excluded []int64
	for _, lg := range l.LaneGenres {
		bucket := &excluded
		if lg.Inclusive {
			bucket = &included
		}
		if g, ok := l.taxonomy.Genre(lg.GenreID); ok && l.Fiction != nil && g.Fiction != nil && *g.Fiction != *l.Fiction {
			slog.Error("Lane has a genre that does not match its fiction restriction", "lane", l.DisplayName, "genre", g.Name)
		}
		*bucket = append(*bucket, lg.GenreID)
		if lg.Recursive {
			*bucket = append(*bucket, l.taxonomy.Subgenres(lg.GenreID)...)
		}
	}
	if len(included) == 0 {
		included = l.taxonomy.allGenreIDs()
	}

	ids := []int64{}
	for _, id := range included {
		if !slices.Contains(excluded, id) && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		slog.Error("Lane has a self-negating set of genre IDs", "lane", l.DisplayName, "id", l.ID)
	}
	return ids, nil
}

// CustomListIDs returns the lists a work must be on to appear in the lane,
// or nil when lists do not matter. A list data source without lists yields
// an empty slice, which excludes everything.
func (l *Lane) CustomListIDs() ([]int64, error) {
	if l.ListDataSource == "" {
		if len(l.CustomLists) == 0 {
			return nil, nil
		}
		return l.CustomLists, nil
	}
	if l.taxonomy == nil {
		return nil, fmt.Errorf("lane %d: list data source set without a taxonomy", l.ID)
	}
	ids := []int64{}
	for _, cl := range l.taxonomy.lists {
		if cl.DataSource == l.ListDataSource {
			ids = append(ids, cl.ID)
		}
	}
	return ids, nil
}

// UsesCustomLists reports whether membership depends on custom lists,
// directly or through an inherited restriction.
func (l *Lane) UsesCustomLists() bool {
	if len(l.CustomLists) > 0 || l.ListDataSource != "" {
		return true
	}
	return l.parent != nil && l.InheritParentRestrictions && l.parent.UsesCustomLists()
}

// SetTargetAge restricts the lane to an age range and locks its audiences
// to match. Adult ages collapse to the adult cutoff.
func (l *Lane) SetTargetAge(minAge, maxAge int) {
	minAge = min(minAge, AdultAgeCutoff)
	maxAge = min(maxAge, AdultAgeCutoff)
	l.TargetAge = &model.AgeRange{Min: minAge, Max: maxAge}

	var audiences []string
	if maxAge >= AdultAgeCutoff {
		audiences = append(audiences, model.AudienceAdult)
	}
	if minAge < YoungAdultAgeCutoff {
		audiences = append(audiences, model.AudienceChildren)
	}
	if maxAge >= YoungAdultAgeCutoff {
		audiences = append(audiences, model.AudienceYoungAdult)
	}
	l.Audiences = audiences
}

// ClearTargetAge removes the age restriction. Audiences are kept.
func (l *Lane) ClearTargetAge() { l.TargetAge = nil }

// SetAudiences changes the audiences unless a target age fixes them.
func (l *Lane) SetAudiences(audiences []string) error {
	if l.TargetAge != nil && len(l.Audiences) > 0 && !slices.Equal(audiences, l.Audiences) {
		return ErrAudiencesLocked
	}
	l.Audiences = audiences
	return nil
}

// SearchTarget is the list searched when a patron searches from this lane:
// the nearest lane that is the root for a patron type, or otherwise a
// WorkList with the lane's languages, media and juvenile audiences.
func (l *Lane) SearchTarget() (List, error) {
	if len(l.RootForPatronType) > 0 {
		return l, nil
	}
	parents, err := l.Parentage()
	if err != nil {
		return nil, err
	}
	for _, p := range parents {
		if len(p.RootForPatronType) > 0 {
			return p, nil
		}
	}

	var audiences []string
	if slices.Contains(l.Audiences, model.AudienceYoungAdult) || slices.Contains(l.Audiences, model.AudienceChildren) {
		audiences = l.Audiences
	}
	var name []string
	if len(l.Languages) > 0 && len(l.Languages) <= 2 {
		name = append(name, languageSetName(l.Languages))
	}
	if len(audiences) > 0 && len(audiences) <= 2 {
		name = append(name, strings.Join(audiences, " and "))
	}
	return &WorkList{
		DisplayName: strings.Join(name, " "),
		Library:     l.Library,
		Languages:   l.Languages,
		Media:       l.Media,
		Audiences:   audiences,
	}, nil
}

func languageSetName(codes []string) string {
	names := make([]string, 0, len(codes))
	for _, c := range codes {
		tag, err := language.Parse(c)
		if err != nil {
			names = append(names, c)
			continue
		}
		names = append(names, display.English.Languages().Name(tag))
	}
	return strings.Join(names, "/")
}

// SizeFor returns the lane size under an entry point, falling back to the
// overall size.
func (l *Lane) SizeFor(ep *EntryPoint) int {
	uri := EntryPointEverything.URI
	if ep != nil {
		uri = ep.URI
	}
	if n, ok := l.SizeByEntryPoint[uri]; ok {
		return n
	}
	return l.Size
}

// Explain describes the lane's settings, one line per setting.
func (l *Lane) Explain() []string {
	short := ""
	if l.Library != nil {
		short = l.Library.ShortName
	}
	lines := []string{
		"ID: " + strconv.FormatInt(l.ID, 10),
		"Library: " + short,
	}
	if l.parent != nil {
		lines = append(lines, fmt.Sprintf("Parent ID: %d (%s)", l.parent.ID, l.parent.DisplayName))
	}
	return append(lines,
		"Priority: "+strconv.Itoa(l.Priority),
		"Display name: "+l.DisplayName,
	)
}
