package overdrive

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/model"
)

var mediumForMediaType = map[string]string{
	"eBook":       model.MediumBook,
	"Video":       model.MediumVideo,
	"Audiobook":   model.MediumAudio,
	"Music":       model.MediumMusic,
	"Periodicals": model.MediumPeriodical,
}

var roleForOverdriveRole = map[string]string{
	"actor":                  "Actor",
	"artist":                 "Artist",
	"associated name":        "Associated name",
	"author":                 "Author",
	"author of afterword":    "Afterword Author",
	"author of foreword":     "Foreword Author",
	"author of introduction": "Introduction Author",
	"book producer":          "Producer",
	"cast member":            "Actor",
	"collaborator":           "Collaborator",
	"compiler":               "Compiler",
	"composer":               "Composer",
	"contributor":            "Contributor",
	"editor":                 "Editor",
	"etc.":                   "Unknown",
	"illustrator":            "Illustrator",
	"narrator":               "Narrator",
	"other":                  "Unknown",
	"performer":              "Performer",
	"photographer":           "Photographer",
	"producer":               "Producer",
	"translator":             "Translator",
}

// coverPreference lists image keys from most to least preferred.
var coverPreference = []string{"cover", "cover300Wide", "cover150Wide", "thumbnail"}

// ParseRoles turns "Author, Editor and Narrator" into folio roles. Unknown
// roles are logged and skipped.
func ParseRoles(overdriveID, roles string) []string {
	parts := strings.Split(strings.ToLower(roles), ",")
	if last := parts[len(parts)-1]; strings.Contains(last, " and ") {
		parts = append(parts[:len(parts)-1], strings.Split(last, " and ")...)
	}

	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		role, ok := roleForOverdriveRole[p]
		if !ok {
			slog.Error("Could not process Overdrive role", "role", p, "id", overdriveID)
			continue
		}
		out = append(out, role)
	}
	return out
}

// ToMetadata converts a product document. It returns nil when the document
// has no ID.
func ToMetadata(p *Product) *metadata.Metadata {
	if p == nil || p.ID == "" {
		return nil
	}

	md := &metadata.Metadata{
		DataSource:  model.DataSourceOverdrive,
		Title:       p.Title,
		Subtitle:    p.Subtitle,
		SortTitle:   p.SortTitle,
		Series:      p.Series,
		Publisher:   p.Publisher,
		Language:    language(p.Languages),
		Medium:      medium(p),
		Description: p.FullDescription,
		CoverURL:    cover(p.Images),
	}
	if md.Description == "" {
		md.Description = p.ShortDescription
	}

	if len(p.PublishDate) >= 10 {
		if t, err := time.Parse(time.DateOnly, p.PublishDate[:10]); err == nil {
			md.Published = t
		} else {
			slog.Warn("Could not parse Overdrive publish date", "id", p.ID, "date", p.PublishDate)
		}
	}

	for _, c := range p.Creators {
		roles := ParseRoles(p.ID, c.Role)
		if len(roles) == 0 {
			roles = []string{"Unknown"}
		}
		md.Contributors = append(md.Contributors, metadata.Contributor{
			SortName:    c.FileAs,
			DisplayName: c.Name,
			Roles:       roles,
		})
	}

	for _, s := range p.Subjects {
		md.Subjects = append(md.Subjects, s.Value)
	}
	for _, k := range p.Keywords {
		if !slices.Contains(md.Subjects, k.Value) {
			md.Subjects = append(md.Subjects, k.Value)
		}
	}
	return md
}

// language is English when English is among the title's languages or none
// are given, otherwise the alphabetically first code.
func language(langs []Language) string {
	codes := make([]string, 0, len(langs))
	for _, l := range langs {
		codes = append(codes, l.Code)
	}
	if len(codes) == 0 || slices.Contains(codes, "eng") || slices.Contains(codes, "en") {
		return "eng"
	}
	slices.Sort(codes)
	return codes[0]
}

// medium prefers what the formats say over the declared media type.
func medium(p *Product) string {
	m, ok := mediumForMediaType[p.MediaType]
	if p.MediaType != "" && !ok {
		slog.Error("Could not process Overdrive medium", "medium", p.MediaType, "id", p.ID)
	}
	if !ok {
		m = model.MediumBook
	}
	for _, f := range p.Formats {
		switch {
		case strings.HasPrefix(f.ID, "audiobook-"):
			m = model.MediumAudio
		case strings.HasPrefix(f.ID, "video-"):
			m = model.MediumVideo
		case strings.HasPrefix(f.ID, "ebook-"):
			m = model.MediumBook
		case strings.HasPrefix(f.ID, "music-"):
			m = model.MediumMusic
		default:
			slog.Warn("Unfamiliar Overdrive format", "format", f.ID, "id", p.ID)
		}
	}
	return m
}

func cover(images map[string]Link) string {
	for _, name := range coverPreference {
		if l, ok := images[name]; ok && l.Href != "" {
			return l.Href
		}
	}
	return ""
}
