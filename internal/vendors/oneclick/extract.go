package oneclick

import (
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/lepinkainen/folio/internal/metadata"
	"github.com/lepinkainen/folio/internal/model"
)

var mediumForMediaType = map[string]string{
	"eBook":  model.MediumBook,
	"eAudio": model.MediumAudio,
}

// knownLanguages are matched by English name when OneClick sends "Spanish"
// instead of a code.
var knownLanguages = []language.Tag{
	language.English, language.Spanish, language.French, language.German,
	language.Italian, language.Portuguese, language.Chinese, language.Japanese,
	language.Korean, language.Russian, language.Arabic, language.Dutch,
	language.Swedish, language.Finnish, language.Polish, language.Hindi,
}

// LanguageCode turns a language code or English language name into an ISO
// 639-2 code, defaulting to English.
func LanguageCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "eng"
	}
	if tag, err := language.Parse(s); err == nil {
		if base, _ := tag.Base(); base.ISO3() != "" {
			return base.ISO3()
		}
	}
	names := display.English.Languages()
	for _, tag := range knownLanguages {
		if strings.EqualFold(names.Name(tag), s) {
			base, _ := tag.Base()
			return base.ISO3()
		}
	}
	slog.Warn("Unknown OneClick language", "language", s)
	return "eng"
}

// ToMetadata converts a media document. It returns nil when the document
// has no ISBN.
func ToMetadata(m *Media) *metadata.Metadata {
	if m == nil || m.ISBN == "" {
		return nil
	}

	md := &metadata.Metadata{
		DataSource:     model.DataSourceOneClick,
		Title:          m.Title,
		Series:         m.SeriesName,
		SeriesPosition: int(m.SeriesPosition),
		Publisher:      m.Publisher,
		Language:       LanguageCode(m.Language),
		Description:    m.Description,
		CoverURL:       cover(m.Images),
	}
	if md.Series == "Default Blank" {
		md.Series = ""
	}

	md.Medium = model.MediumBook
	if m.MediaType != "" {
		if medium, ok := mediumForMediaType[m.MediaType]; ok {
			md.Medium = medium
		} else {
			slog.Error("Could not process OneClick medium", "medium", m.MediaType, "isbn", m.ISBN)
		}
	}

	if len(m.PublicationDate) >= 10 {
		if t, err := time.Parse(time.DateOnly, m.PublicationDate[:10]); err == nil {
			md.Published = t
		}
	}

	for _, name := range splitList(m.Authors, ";") {
		md.Contributors = append(md.Contributors, metadata.Contributor{SortName: name, Roles: []string{"Author"}})
	}
	for _, name := range splitList(m.Narrators, ";") {
		md.Contributors = append(md.Contributors, metadata.Contributor{SortName: name, Roles: []string{"Narrator"}})
	}
	// Sort names are all OneClick gives us.
	for i := range md.Contributors {
		md.Contributors[i].DisplayName = md.Contributors[i].SortName
	}

	if m.Genres != "" {
		md.Subjects = append(md.Subjects, m.Genres)
	}
	md.Subjects = append(md.Subjects, splitList(m.PrimaryGenre, ",")...)
	if a := strings.ToLower(strings.TrimSpace(m.Audience)); a != "" {
		md.Subjects = append(md.Subjects, a)
	}
	return md
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// cover prefers the large image and only accepts absolute http(s) URLs.
func cover(images []Image) string {
	for _, name := range []string{"large", "medium", "small"} {
		for _, img := range images {
			if img.Name == name && strings.HasPrefix(img.URL, "http") {
				return img.URL
			}
		}
	}
	return ""
}
