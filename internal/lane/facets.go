// Package lane builds browsable, faceted views over the catalog: WorkLists
// held in memory, Lanes persisted as a tree, the facet objects that refine
// them, and the featured-works grouping that fills a grouped feed without
// showing the same work in two sibling lanes.
package lane

import (
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/lepinkainen/folio/internal/model"
)

// Facet groups.
const (
	GroupCollection   = "collection"
	GroupAvailability = "available"
	GroupOrder        = "order"
	GroupEntryPoint   = "entrypoint"
)

// Collection facets subset the collection roughly by quality.
const (
	CollectionFull     = "full"
	CollectionMain     = "main"
	CollectionFeatured = "featured"
)

// Availability facets.
const (
	AvailableNow        = "now"
	AvailableAll        = "all"
	AvailableOpenAccess = "always"
)

// Order facets.
const (
	OrderTitle      = "title"
	OrderAuthor     = "author"
	OrderLastUpdate = "last_update"
	OrderAdded      = "added"
	OrderSeries     = "series"
	OrderWorkID     = "work_id"
	OrderRandom     = "random"
)

// Sort directions as they appear in configuration.
const (
	OrderAscending  = "asc"
	OrderDescending = "desc"
)

// MainCollectionQualityFloor is the quality below which open-access works
// are left out of the main collection.
const MainCollectionQualityFloor = 0.3

var facetsByGroup = map[string][]string{
	GroupCollection:   {CollectionFull, CollectionMain, CollectionFeatured},
	GroupAvailability: {AvailableNow, AvailableAll, AvailableOpenAccess},
	GroupOrder:        {OrderTitle, OrderAuthor, OrderLastUpdate, OrderAdded, OrderSeries, OrderWorkID, OrderRandom},
}

var groupDisplayTitles = map[string]string{
	GroupOrder:        "Sort by",
	GroupAvailability: "Availability",
	GroupCollection:   "Collection",
}

var facetDisplayTitles = map[string]string{
	OrderTitle:          "Title",
	OrderAuthor:         "Author",
	OrderLastUpdate:     "Last Update",
	OrderAdded:          "Recently Added",
	OrderSeries:         "Series Position",
	OrderWorkID:         "Work ID",
	OrderRandom:         "Random",
	AvailableNow:        "Available now",
	AvailableAll:        "All",
	AvailableOpenAccess: "Yours to keep",
	CollectionFull:      "Everything",
	CollectionMain:      "Main Collection",
	CollectionFeatured:  "Popular Books",
}

// orderDescendingByDefault lists orders whose natural direction is newest first.
var orderDescendingByDefault = []string{OrderAdded, OrderLastUpdate}

// orderSearchFields maps order facets onto search index fields.
var orderSearchFields = map[string]string{
	OrderTitle:      "sort_title",
	OrderAuthor:     "sort_author",
	OrderLastUpdate: "last_update_time",
	OrderAdded:      "availability_time",
	OrderSeries:     "series_position",
	OrderWorkID:     "work_id",
	OrderRandom:     "random",
}

// databaseOrderFields are the order facets a database query can honor,
// mapped onto the fields it sorts by.
var databaseOrderFields = map[string]string{
	OrderWorkID:     "work_id",
	OrderTitle:      "sort_title",
	OrderAuthor:     "sort_author",
	OrderLastUpdate: "last_update_time",
	OrderRandom:     "random",
}

// FacetsInGroup lists every known facet of a group.
func FacetsInGroup(group string) []string {
	return slices.Clone(facetsByGroup[group])
}

// GroupTitle is the display title of a facet group.
func GroupTitle(group string) string { return groupDisplayTitles[group] }

// FacetTitle is the display title of a facet value.
func FacetTitle(facet string) string { return facetDisplayTitles[facet] }

// FacetConfig is an immutable record of which facets are enabled per group
// and which one is selected by default.
type FacetConfig struct {
	enabled  map[string][]string
	defaults map[string]string
}

// NewFacetConfig copies enabled and defaults into a FacetConfig.
func NewFacetConfig(enabled map[string][]string, defaults map[string]string) FacetConfig {
	c := FacetConfig{enabled: make(map[string][]string, len(enabled)), defaults: maps.Clone(defaults)}
	for g, v := range enabled {
		c.enabled[g] = slices.Clone(v)
	}
	if c.defaults == nil {
		c.defaults = map[string]string{}
	}
	return c
}

// DefaultFacetConfig is what a library sees unless configured otherwise.
func DefaultFacetConfig() FacetConfig {
	return NewFacetConfig(
		map[string][]string{
			GroupOrder:        {OrderAuthor, OrderTitle, OrderAdded},
			GroupAvailability: {AvailableAll, AvailableNow, AvailableOpenAccess},
			GroupCollection:   {CollectionFull, CollectionMain, CollectionFeatured},
		},
		map[string]string{
			GroupOrder:        OrderAuthor,
			GroupAvailability: AvailableAll,
			GroupCollection:   CollectionMain,
		},
	)
}

// EnabledFacets returns the enabled facets of group, in configured order.
func (c FacetConfig) EnabledFacets(group string) []string {
	return slices.Clone(c.enabled[group])
}

// DefaultFacet returns the default facet of group.
func (c FacetConfig) DefaultFacet(group string) string {
	return c.defaults[group]
}

// WithEnabled returns a copy of c with facet enabled in group.
func (c FacetConfig) WithEnabled(group, facet string) FacetConfig {
	n := NewFacetConfig(c.enabled, c.defaults)
	if !slices.Contains(n.enabled[group], facet) {
		n.enabled[group] = append(n.enabled[group], facet)
	}
	return n
}

// WithDefault returns a copy of c with facet enabled and selected by
// default in group.
func (c FacetConfig) WithDefault(group, facet string) FacetConfig {
	n := c.WithEnabled(group, facet)
	n.defaults[group] = facet
	return n
}

// InvalidInputError reports a facet value a client asked for that is not
// enabled.
type InvalidInputError struct {
	Detail string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Detail
}

// facetPolicy decides which facets a kind of Facets can offer.
type facetPolicy interface {
	available(c FacetConfig, group string) []string
	defaultFacet(c FacetConfig, group string) string
}

type searchPolicy struct{}

func (searchPolicy) available(c FacetConfig, group string) []string { return c.EnabledFacets(group) }
func (searchPolicy) defaultFacet(c FacetConfig, group string) string { return c.DefaultFacet(group) }

// databasePolicy excludes orders a database query cannot sort by.
type databasePolicy struct{}

func (databasePolicy) available(c FacetConfig, group string) []string {
	standard := c.EnabledFacets(group)
	if group != GroupOrder {
		return standard
	}
	out := standard[:0]
	for _, o := range standard {
		if _, ok := databaseOrderFields[o]; ok {
			out = append(out, o)
		}
	}
	return out
}

func (databasePolicy) defaultFacet(c FacetConfig, group string) string {
	def := c.DefaultFacet(group)
	if group != GroupOrder {
		return def
	}
	if _, ok := databaseOrderFields[def]; ok {
		return def
	}
	for _, o := range c.EnabledFacets(group) {
		if _, ok := databaseOrderFields[o]; ok {
			return o
		}
	}
	return OrderWorkID
}

// Facets is a complete selection across the collection, availability and
// order groups, plus an optional entry point.
type Facets struct {
	Library             *model.Library
	Collection          string
	Availability        string
	Order               string
	OrderAscending      bool
	EntryPoint          *EntryPoint
	EntryPointIsDefault bool

	config FacetConfig
	policy facetPolicy
	// enabledAtInit, when set, overrides the configuration's enabled facets.
	enabledAtInit map[string][]string
}

// NewFacets selects the given facets, falling back to configured defaults
// for empty values. When the library does not allow holds and "now" is
// enabled, "all" availability becomes "now".
func NewFacets(config FacetConfig, library *model.Library, collection, availability, order string, entryPoint *EntryPoint) *Facets {
	return newFacets(searchPolicy{}, config, library, collection, availability, order, entryPoint, nil)
}

// NewDatabaseBackedFacets is NewFacets restricted to the orders a database
// query supports.
func NewDatabaseBackedFacets(config FacetConfig, library *model.Library, collection, availability, order string, entryPoint *EntryPoint) *Facets {
	return newFacets(databasePolicy{}, config, library, collection, availability, order, entryPoint, nil)
}

func newFacets(policy facetPolicy, config FacetConfig, library *model.Library, collection, availability, order string, entryPoint *EntryPoint, enabled map[string][]string) *Facets {
	if collection == "" {
		collection = policy.defaultFacet(config, GroupCollection)
	}
	if availability == "" {
		availability = policy.defaultFacet(config, GroupAvailability)
	}
	if order == "" {
		order = policy.defaultFacet(config, GroupOrder)
	}
	if availability == AvailableAll && library != nil && !library.AllowHolds &&
		slices.Contains(policy.available(config, GroupAvailability), AvailableNow) {
		availability = AvailableNow
	}
	return &Facets{
		Library:        library,
		Collection:     collection,
		Availability:   availability,
		Order:          order,
		OrderAscending: !slices.Contains(orderDescendingByDefault, order),
		EntryPoint:     entryPoint,
		config:         config,
		policy:         policy,
		enabledAtInit:  enabled,
	}
}

// FacetsFromRequest validates the facets a client asked for.
func FacetsFromRequest(config FacetConfig, library *model.Library, args url.Values, list List, defaultEntryPoint *EntryPoint) (*Facets, error) {
	return facetsFromRequest(searchPolicy{}, config, library, args, list, defaultEntryPoint)
}

// DatabaseBackedFacetsFromRequest is FacetsFromRequest for database queries.
func DatabaseBackedFacetsFromRequest(config FacetConfig, library *model.Library, args url.Values, list List, defaultEntryPoint *EntryPoint) (*Facets, error) {
	return facetsFromRequest(databasePolicy{}, config, library, args, list, defaultEntryPoint)
}

func facetsFromRequest(policy facetPolicy, config FacetConfig, library *model.Library, args url.Values, list List, defaultEntryPoint *EntryPoint) (*Facets, error) {
	pick := func(group, msg string) (string, []string, error) {
		value := policy.defaultFacet(config, group)
		if args.Has(group) {
			value = args.Get(group)
		}
		enabled := policy.available(config, group)
		if value != "" && !slices.Contains(enabled, value) {
			return "", nil, &InvalidInputError{Detail: fmt.Sprintf(msg, value)}
		}
		return value, enabled, nil
	}

	order, orders, err := pick(GroupOrder, "I don't know how to order a feed by '%s'")
	if err != nil {
		return nil, err
	}
	availability, availabilities, err := pick(GroupAvailability, "I don't understand the availability term '%s'")
	if err != nil {
		return nil, err
	}
	collection, collections, err := pick(GroupCollection, "I don't understand what '%s' refers to.")
	if err != nil {
		return nil, err
	}

	var valid []*EntryPoint
	if list != nil {
		valid = list.EntryPoints()
	}
	ep, isDefault := loadEntryPoint(args.Get(GroupEntryPoint), valid, defaultEntryPoint)

	f := newFacets(policy, config, library, collection, availability, order, ep, map[string][]string{
		GroupOrder:        orders,
		GroupAvailability: availabilities,
		GroupCollection:   collections,
	})
	f.EntryPointIsDefault = isDefault
	return f, nil
}

// Navigate returns facets that differ from f in the given non-empty values.
func (f *Facets) Navigate(collection, availability, order string, entryPoint *EntryPoint) *Facets {
	if collection == "" {
		collection = f.Collection
	}
	if availability == "" {
		availability = f.Availability
	}
	if order == "" {
		order = f.Order
	}
	if entryPoint == nil {
		entryPoint = f.EntryPoint
	}
	return newFacets(f.policy, f.config, f.Library, collection, availability, order, entryPoint, f.enabledAtInit)
}

// Item is one active facet setting.
type Item struct {
	Group string
	Value string
}

// Items lists the active settings, entry point first.
func (f *Facets) Items() []Item {
	var items []Item
	if f.EntryPoint != nil {
		items = append(items, Item{GroupEntryPoint, f.EntryPoint.InternalName})
	}
	if f.Order != "" {
		items = append(items, Item{GroupOrder, f.Order})
	}
	if f.Availability != "" {
		items = append(items, Item{GroupAvailability, f.Availability})
	}
	if f.Collection != "" {
		items = append(items, Item{GroupCollection, f.Collection})
	}
	return items
}

// QueryString propagates the active settings in a URL.
func (f *Facets) QueryString() string {
	return queryString(f.Items())
}

func queryString(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.Group+"="+it.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

func (f *Facets) enabledFacets(group string) []string {
	if f.enabledAtInit != nil {
		return f.enabledAtInit[group]
	}
	return f.policy.available(f.config, group)
}

// FacetGroup is one choice a client can make from the current facets.
type FacetGroup struct {
	Group    string
	Value    string
	Facets   *Facets
	Selected bool
}

// FacetGroups lists every alternative for the order, availability and
// collection groups. Groups with a single enabled value offer no choice and
// are left out.
func (f *Facets) FacetGroups() []FacetGroup {
	var out []FacetGroup
	if values := f.enabledFacets(GroupOrder); len(values) > 1 {
		for _, v := range values {
			out = append(out, FacetGroup{GroupOrder, v, f.Navigate("", "", v, nil), v == f.Order})
		}
	}
	if values := f.enabledFacets(GroupAvailability); len(values) > 1 {
		for _, v := range values {
			out = append(out, FacetGroup{GroupAvailability, v, f.Navigate("", v, "", nil), v == f.Availability})
		}
	}
	if values := f.enabledFacets(GroupCollection); len(values) > 1 {
		for _, v := range values {
			out = append(out, FacetGroup{GroupCollection, v, f.Navigate(v, "", "", nil), v == f.Collection})
		}
	}
	return out
}

// ModifySearchFilter applies the selection to f.
func (f *Facets) ModifySearchFilter(filter *Filter) {
	f.EntryPoint.ModifySearchFilter(filter)
	if f.Library != nil {
		filter.MinimumFeaturedQuality = f.Library.MinimumFeaturedQuality
	}
	filter.Availability = f.Availability
	filter.Subcollection = f.Collection
	if f.Order == "" {
		return
	}
	field, ok := orderSearchFields[f.Order]
	if !ok {
		slog.Error("Unrecognized sort order", "order", f.Order)
		return
	}
	filter.Order = field
	filter.OrderAscending = f.OrderAscending
}

// OrderBy returns the fields a database query sorts by: the selected order
// first, then author, title and work id. Only the first field honors
// OrderAscending; the rest always ascend.
func (f *Facets) OrderBy() []string {
	defaults := []string{"sort_author", "sort_title", "work_id"}
	primary, ok := databaseOrderFields[f.Order]
	if !ok {
		return defaults
	}
	out := []string{primary}
	for _, d := range defaults {
		if d != primary {
			out = append(out, d)
		}
	}
	return out
}
