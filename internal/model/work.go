package model

import (
	"strconv"
	"time"
)

// Media.
const (
	MediumBook       = "Book"
	MediumAudio      = "Audio"
	MediumVideo      = "Video"
	MediumPeriodical = "Periodical"
	MediumMusic      = "Music"
)

// Audiences.
const (
	AudienceAdult      = "Adult"
	AudienceAdultsOnly = "Adults Only"
	AudienceYoungAdult = "Young Adult"
	AudienceChildren   = "Children"
)

// Edition is one data source's view of a title.
type Edition struct {
	ID             int64     `json:"id"`
	DataSource     string    `json:"data_source"`
	IdentifierID   int64     `json:"identifier_id"`
	Title          string    `json:"title"`
	Subtitle       string    `json:"subtitle,omitempty"`
	SortTitle      string    `json:"sort_title"`
	Author         string    `json:"author"`
	SortAuthor     string    `json:"sort_author"`
	Publisher      string    `json:"publisher,omitempty"`
	Language       string    `json:"language,omitempty"`
	Medium         string    `json:"medium"`
	Series         string    `json:"series,omitempty"`
	SeriesPosition int       `json:"series_position,omitempty"`
	Published      time.Time `json:"published,omitzero"`
	Description    string    `json:"description,omitempty"`
	CoverURL       string    `json:"cover_url,omitempty"`
	Subjects       []string  `json:"subjects,omitempty"`
}

// LicensePool tracks how many copies of a title a library can lend.
type LicensePool struct {
	ID                 int64     `json:"id"`
	DataSource         string    `json:"data_source"`
	IdentifierID       int64     `json:"identifier_id"`
	WorkID             int64     `json:"work_id,omitempty"`
	LicensesOwned      int       `json:"licenses_owned"`
	LicensesAvailable  int       `json:"licenses_available"`
	PatronsInHoldQueue int       `json:"patrons_in_hold_queue"`
	OpenAccess         bool      `json:"open_access"`
	AvailabilityTime   time.Time `json:"availability_time,omitzero"`
}

// Available reports whether a patron could borrow the title right now.
func (p *LicensePool) Available() bool {
	return p.OpenAccess || p.LicensesAvailable > 0
}

// AgeRange is an inclusive target age range. A zero bound is open.
type AgeRange struct {
	Min int `json:"min,omitempty" yaml:"min,omitempty"`
	Max int `json:"max,omitempty" yaml:"max,omitempty"`
}

// Overlaps reports whether the two ranges share at least one age.
func (r AgeRange) Overlaps(o AgeRange) bool {
	lo, hi := r.Min, r.Max
	if hi == 0 {
		hi = 1 << 30
	}
	olo, ohi := o.Min, o.Max
	if ohi == 0 {
		ohi = 1 << 30
	}
	return lo <= ohi && olo <= hi
}

// Work is the aggregate shown to patrons: one title regardless of which
// vendor supplies it.
type Work struct {
	ID                    int64     `json:"id"`
	PresentationEditionID int64     `json:"presentation_edition_id"`
	Title                 string    `json:"title"`
	SortTitle             string    `json:"sort_title"`
	Author                string    `json:"author"`
	SortAuthor            string    `json:"sort_author"`
	Language              string    `json:"language,omitempty"`
	Medium                string    `json:"medium"`
	Series                string    `json:"series,omitempty"`
	SeriesPosition        int       `json:"series_position,omitempty"`
	Fiction               *bool     `json:"fiction,omitempty"`
	Audience              string    `json:"audience,omitempty"`
	TargetAge             AgeRange  `json:"target_age,omitzero"`
	Quality               float64   `json:"quality"`
	Random                float64   `json:"-"`
	PresentationReady     bool      `json:"presentation_ready"`
	CoverURL              string    `json:"cover_url,omitempty"`
	ThumbnailPath         string    `json:"thumbnail_path,omitempty"`
	GenreIDs              []int64   `json:"genre_ids,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	LastUpdate            time.Time `json:"last_update"`
}

// CoverageKey identifies the work inside a coverage batch.
func (w *Work) CoverageKey() string {
	return "work/" + strconv.FormatInt(w.ID, 10)
}

// PrimaryKey is the catalog row id.
func (w *Work) PrimaryKey() int64 {
	return w.ID
}

// Genre is a node in the genre tree.
type Genre struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent_id,omitempty"`
	Fiction  *bool  `json:"default_fiction,omitempty"`
}

// CustomList is a curated list of works, e.g. a staff picks list or a
// bestseller list imported from a vendor.
type CustomList struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	DataSource string `json:"data_source"`
}

// Library carries the per-library settings that shape feeds.
type Library struct {
	ID                     int64   `json:"id"`
	Name                   string  `json:"name"`
	ShortName              string  `json:"short_name"`
	FeaturedLaneSize       int     `json:"featured_lane_size"`
	MinimumFeaturedQuality float64 `json:"minimum_featured_quality"`
	AllowHolds             bool    `json:"allow_holds"`
}
