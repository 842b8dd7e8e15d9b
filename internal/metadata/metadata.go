// Package metadata holds the normalized bibliographic and circulation data
// that vendor adapters produce, and the rules for applying it to catalog
// records.
package metadata

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/model"
)

var (
	// ErrNoTitle is returned when applying metadata would leave an edition without a title.
	ErrNoTitle = errors.New("metadata has no title")

	// ErrWrongDataSource is returned when data is applied to a record owned by another source.
	ErrWrongDataSource = errors.New("data source mismatch")
)

// Contributor is a person credited on a title.
type Contributor struct {
	SortName    string   `json:"sort_name"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles,omitempty"`
}

// Metadata is one data source's normalized description of a title.
type Metadata struct {
	DataSource     string           `json:"data_source"`
	Title          string           `json:"title"`
	Subtitle       string           `json:"subtitle,omitempty"`
	SortTitle      string           `json:"sort_title,omitempty"`
	Contributors   []Contributor    `json:"contributors,omitempty"`
	Publisher      string           `json:"publisher,omitempty"`
	Language       string           `json:"language,omitempty"`
	Medium         string           `json:"medium,omitempty"`
	Series         string           `json:"series,omitempty"`
	SeriesPosition int              `json:"series_position,omitempty"`
	Published      time.Time        `json:"published,omitzero"`
	Description    string           `json:"description,omitempty"`
	CoverURL       string           `json:"cover_url,omitempty"`
	Subjects       []string         `json:"subjects,omitempty"`
	Circulation    *CirculationData `json:"circulation,omitempty"`
}

// CirculationData is a snapshot of a title's lending state at one source.
type CirculationData struct {
	DataSource         string `json:"data_source"`
	LicensesOwned      int    `json:"licenses_owned"`
	LicensesAvailable  int    `json:"licenses_available"`
	PatronsInHoldQueue int    `json:"patrons_in_hold_queue"`
	OpenAccess         bool   `json:"open_access"`
}

// ReplacementPolicy says which kinds of existing data an update may overwrite.
type ReplacementPolicy struct {
	Metadata    bool
	Subjects    bool
	Circulation bool
}

// FromMetadataSource is the policy for a source that is authoritative for
// bibliographic data but says nothing about licensing.
func FromMetadataSource() ReplacementPolicy {
	return ReplacementPolicy{Metadata: true, Subjects: true}
}

// FromLicenseSource is the policy for a source that is authoritative for
// everything it sends, licensing included.
func FromLicenseSource() ReplacementPolicy {
	return ReplacementPolicy{Metadata: true, Subjects: true, Circulation: true}
}

// Apply copies m onto edition. Without Metadata replacement only empty fields
// are filled in.
func (m *Metadata) Apply(edition *model.Edition, policy ReplacementPolicy) error {
	if edition == nil {
		return errors.New("no edition to apply metadata to")
	}
	if m.DataSource != "" && edition.DataSource != "" && m.DataSource != edition.DataSource {
		return fmt.Errorf("%w: metadata from %s, edition from %s", ErrWrongDataSource, m.DataSource, edition.DataSource)
	}

	set := func(dst *string, v string) {
		if v == "" {
			return
		}
		if policy.Metadata || *dst == "" {
			*dst = v
		}
	}

	set(&edition.Title, m.Title)
	set(&edition.Subtitle, m.Subtitle)
	set(&edition.SortTitle, m.SortTitle)
	set(&edition.Publisher, m.Publisher)
	set(&edition.Language, m.Language)
	set(&edition.Medium, m.Medium)
	set(&edition.Series, m.Series)
	set(&edition.Description, m.Description)
	set(&edition.CoverURL, m.CoverURL)

	if author := m.primaryAuthor(); author != nil {
		set(&edition.Author, author.DisplayName)
		set(&edition.SortAuthor, author.SortName)
	}
	if m.SeriesPosition > 0 && (policy.Metadata || edition.SeriesPosition == 0) {
		edition.SeriesPosition = m.SeriesPosition
	}
	if !m.Published.IsZero() && (policy.Metadata || edition.Published.IsZero()) {
		edition.Published = m.Published
	}
	if len(m.Subjects) > 0 {
		if policy.Subjects {
			edition.Subjects = append([]string(nil), m.Subjects...)
		} else {
			edition.Subjects = mergeStringSlices(edition.Subjects, m.Subjects)
		}
	}

	if edition.Title == "" {
		return ErrNoTitle
	}
	if edition.SortTitle == "" {
		edition.SortTitle = SortTitle(edition.Title)
	}
	if edition.SortAuthor == "" && edition.Author != "" {
		edition.SortAuthor = SortName(edition.Author)
	}
	if edition.Medium == "" {
		edition.Medium = model.MediumBook
	}
	return nil
}

func (m *Metadata) primaryAuthor() *Contributor {
	for i := range m.Contributors {
		c := &m.Contributors[i]
		if len(c.Roles) == 0 {
			return c
		}
		for _, r := range c.Roles {
			if r == "Author" || r == "Primary Author" {
				return c
			}
		}
	}
	if len(m.Contributors) > 0 {
		return &m.Contributors[0]
	}
	return nil
}

// Apply copies c onto pool when the policy allows circulation updates, or
// when the pool has never been populated.
func (c *CirculationData) Apply(pool *model.LicensePool, policy ReplacementPolicy) error {
	if pool == nil {
		return errors.New("no license pool to apply circulation data to")
	}
	if c.DataSource != "" && pool.DataSource != "" && c.DataSource != pool.DataSource {
		return fmt.Errorf("%w: circulation from %s, pool from %s", ErrWrongDataSource, c.DataSource, pool.DataSource)
	}
	if c.LicensesAvailable > c.LicensesOwned && !c.OpenAccess {
		return fmt.Errorf("licenses available (%d) exceeds licenses owned (%d)", c.LicensesAvailable, c.LicensesOwned)
	}
	fresh := pool.LicensesOwned == 0 && pool.LicensesAvailable == 0 && pool.PatronsInHoldQueue == 0 && !pool.OpenAccess
	if !policy.Circulation && !fresh {
		return nil
	}

	pool.LicensesOwned = c.LicensesOwned
	pool.LicensesAvailable = c.LicensesAvailable
	pool.PatronsInHoldQueue = c.PatronsInHoldQueue
	pool.OpenAccess = c.OpenAccess
	return nil
}

// SortTitle moves a leading article to the end: "The Hobbit" -> "Hobbit, The".
func SortTitle(title string) string {
	for _, article := range []string{"The ", "A ", "An "} {
		if len(title) > len(article) && strings.EqualFold(title[:len(article)], article) {
			return title[len(article):] + ", " + strings.TrimSpace(title[:len(article)])
		}
	}
	return title
}

// SortName turns "Ursula K. Le Guin" into "Le Guin, Ursula K." for the
// common two-part case. Names already containing a comma are left alone.
func SortName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ",") {
		return name
	}
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return name
	}
	last := len(parts) - 1
	// Keep particles such as "Le" or "de" with the surname.
	for last > 1 && isParticle(parts[last-1]) {
		last--
	}
	return strings.Join(parts[last:], " ") + ", " + strings.Join(parts[:last], " ")
}

func isParticle(s string) bool {
	switch strings.ToLower(s) {
	case "le", "la", "de", "van", "von", "der", "du", "di":
		return true
	}
	return false
}
