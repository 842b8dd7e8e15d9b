package lane

import "github.com/lepinkainen/folio/internal/model"

// EntryPoint is a top-level slice of a collection by content type.
type EntryPoint struct {
	InternalName string
	URI          string
	Media        []string
}

var (
	EntryPointBook = &EntryPoint{
		InternalName: "Book",
		URI:          "http://schema.org/EBook",
		Media:        []string{model.MediumBook},
	}
	EntryPointAudiobook = &EntryPoint{
		InternalName: "Audio",
		URI:          "http://bib.schema.org/Audiobook",
		Media:        []string{model.MediumAudio},
	}
	// EntryPointEverything applies no restriction. It is only offered by
	// searches across lists with several entry points.
	EntryPointEverything = &EntryPoint{
		InternalName: "All",
		URI:          "http://schema.org/CreativeWork",
	}
)

// EntryPoints are the registered entry points in display order.
var EntryPoints = []*EntryPoint{EntryPointEverything, EntryPointBook, EntryPointAudiobook}

// EntryPointByName looks up a registered entry point.
func EntryPointByName(name string) *EntryPoint {
	for _, ep := range EntryPoints {
		if ep.InternalName == name {
			return ep
		}
	}
	return nil
}

// ModifySearchFilter restricts f to the entry point's media.
func (e *EntryPoint) ModifySearchFilter(f *Filter) {
	if e == nil || len(e.Media) == 0 {
		return
	}
	f.Media = append([]string(nil), e.Media...)
}

// loadEntryPoint resolves a requested entry point against the valid ones.
// An unknown or unavailable name falls back to def, or to the first valid
// entry point. The bool reports whether the default was used.
func loadEntryPoint(name string, valid []*EntryPoint, def *EntryPoint) (*EntryPoint, bool) {
	if len(valid) == 0 {
		return nil, true
	}
	if def == nil {
		def = valid[0]
	}
	ep := EntryPointByName(name)
	if ep == nil {
		return def, true
	}
	for _, v := range valid {
		if v == ep {
			return ep, false
		}
	}
	return def, true
}
