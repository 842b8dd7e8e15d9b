// Package config turns the viper configuration into a typed settings value.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lepinkainen/folio/internal/lane"
	"github.com/lepinkainen/folio/internal/model"
)

// Vendor names used as configuration keys.
const (
	VendorOverdrive = "overdrive"
	VendorOneClick  = "oneclick"
)

// Settings is a snapshot of the configuration taken by Load. Changing viper
// afterwards does not affect it.
type Settings struct {
	Catalog    CatalogSettings
	Cache      CacheSettings
	Coverage   CoverageSettings
	Library    LibrarySettings
	Facets     FacetSettings
	Vendors    map[string]VendorSettings
	Thumbnails ThumbnailSettings
	Server     ServerSettings
}

type CatalogSettings struct {
	DBFile string
}

type CacheSettings struct {
	DBFile string
	TTL    time.Duration
}

type CoverageSettings struct {
	BatchSize int
	// CutoffTime is zero when no cutoff is configured.
	CutoffTime time.Time
}

type LibrarySettings struct {
	Name                   string
	ShortName              string
	FeaturedLaneSize       int
	MinimumFeaturedQuality float64
	AllowHolds             bool
}

// FacetSettings lists the enabled facets and the default facet per group.
type FacetSettings struct {
	Enabled map[string][]string
	Default map[string]string
}

// VendorSettings configures one vendor API client. Overdrive authenticates
// with Token, OneClick with APIKey.
type VendorSettings struct {
	BaseURL           string
	Token             string
	APIKey            string
	LibraryID         string
	RequestsPerSecond int
}

type ThumbnailSettings struct {
	Dir   string
	Width int
}

type ServerSettings struct {
	Addr string
}

// SetDefaults registers every default with viper.
func SetDefaults() {
	viper.SetDefault("catalog.dbfile", "./folio.db")
	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h")
	viper.SetDefault("coverage.batch_size", 100)
	viper.SetDefault("coverage.cutoff_time", "")

	viper.SetDefault("library.name", "Default Library")
	viper.SetDefault("library.short_name", "default")
	viper.SetDefault("library.featured_lane_size", 15)
	viper.SetDefault("library.minimum_featured_quality", 0.65)
	viper.SetDefault("library.allow_holds", true)

	def := lane.DefaultFacetConfig()
	for _, group := range []string{lane.GroupOrder, lane.GroupAvailability, lane.GroupCollection} {
		viper.SetDefault("facets.enabled."+group, def.EnabledFacets(group))
		viper.SetDefault("facets.default."+group, def.DefaultFacet(group))
	}

	viper.SetDefault("vendors.overdrive.base_url", "https://api.overdrive.com")
	viper.SetDefault("vendors.overdrive.requests_per_second", 5)
	viper.SetDefault("vendors.oneclick.base_url", "https://api.rbdigital.com")
	viper.SetDefault("vendors.oneclick.requests_per_second", 5)

	viper.SetDefault("thumbnails.dir", "./thumbnails")
	viper.SetDefault("thumbnails.width", 300)
	viper.SetDefault("server.addr", ":8080")

	// Secrets usually come from the environment.
	_ = viper.BindEnv("vendors.overdrive.token", "OVERDRIVE_TOKEN")
	_ = viper.BindEnv("vendors.oneclick.api_key", "ONECLICK_API_KEY")
}

// Load reads the current viper state.
func Load() (*Settings, error) {
	s := &Settings{
		Catalog: CatalogSettings{DBFile: viper.GetString("catalog.dbfile")},
		Cache:   CacheSettings{DBFile: viper.GetString("cache.dbfile")},
		Coverage: CoverageSettings{
			BatchSize: viper.GetInt("coverage.batch_size"),
		},
		Library: LibrarySettings{
			Name:                   viper.GetString("library.name"),
			ShortName:              viper.GetString("library.short_name"),
			FeaturedLaneSize:       viper.GetInt("library.featured_lane_size"),
			MinimumFeaturedQuality: viper.GetFloat64("library.minimum_featured_quality"),
			AllowHolds:             viper.GetBool("library.allow_holds"),
		},
		Facets: FacetSettings{
			Enabled: map[string][]string{},
			Default: map[string]string{},
		},
		Vendors: map[string]VendorSettings{},
		Thumbnails: ThumbnailSettings{
			Dir:   viper.GetString("thumbnails.dir"),
			Width: viper.GetInt("thumbnails.width"),
		},
		Server: ServerSettings{Addr: viper.GetString("server.addr")},
	}

	if ttl := viper.GetString("cache.ttl"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("cache.ttl: %w", err)
		}
		s.Cache.TTL = d
	}

	if cutoff := viper.GetString("coverage.cutoff_time"); cutoff != "" {
		t, err := time.Parse(time.RFC3339, cutoff)
		if err != nil {
			return nil, fmt.Errorf("coverage.cutoff_time: %w", err)
		}
		s.Coverage.CutoffTime = t
	}

	for _, group := range []string{lane.GroupOrder, lane.GroupAvailability, lane.GroupCollection} {
		if enabled := viper.GetStringSlice("facets.enabled." + group); len(enabled) > 0 {
			s.Facets.Enabled[group] = enabled
		}
		if def := viper.GetString("facets.default." + group); def != "" {
			s.Facets.Default[group] = def
		}
	}

	for _, name := range []string{VendorOverdrive, VendorOneClick} {
		prefix := "vendors." + name + "."
		s.Vendors[name] = VendorSettings{
			BaseURL:           viper.GetString(prefix + "base_url"),
			Token:             viper.GetString(prefix + "token"),
			APIKey:            viper.GetString(prefix + "api_key"),
			LibraryID:         viper.GetString(prefix + "library_id"),
			RequestsPerSecond: viper.GetInt(prefix + "requests_per_second"),
		}
	}

	if s.Library.FeaturedLaneSize <= 0 {
		return nil, fmt.Errorf("library.featured_lane_size must be positive, got %d", s.Library.FeaturedLaneSize)
	}
	return s, nil
}

// FacetConfig builds the facet configuration libraries are served with.
// Every call returns a fresh value.
func (s *Settings) FacetConfig() lane.FacetConfig {
	return lane.NewFacetConfig(s.Facets.Enabled, s.Facets.Default)
}

// LibraryModel is the library described by the configuration. It always has
// ID 1; folio serves a single library per catalog.
func (s *Settings) LibraryModel() *model.Library {
	return &model.Library{
		ID:                     1,
		Name:                   s.Library.Name,
		ShortName:              s.Library.ShortName,
		FeaturedLaneSize:       s.Library.FeaturedLaneSize,
		MinimumFeaturedQuality: s.Library.MinimumFeaturedQuality,
		AllowHolds:             s.Library.AllowHolds,
	}
}

// Vendor returns the settings of the named vendor.
func (s *Settings) Vendor(name string) (VendorSettings, error) {
	v, ok := s.Vendors[name]
	if !ok {
		return VendorSettings{}, fmt.Errorf("unknown vendor %q", name)
	}
	return v, nil
}
