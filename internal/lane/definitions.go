package lane

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/folio/internal/model"
)

// GenreRef names a genre in a lane definition.
type GenreRef struct {
	Name      string `yaml:"name"`
	Exclude   bool   `yaml:"exclude,omitempty"`
	Recursive *bool  `yaml:"recursive,omitempty"`
}

// Definition describes a lane and its sublanes in a lanes file.
type Definition struct {
	Name                      string          `yaml:"name"`
	Priority                  int             `yaml:"priority,omitempty"`
	Hidden                    bool            `yaml:"hidden,omitempty"`
	Languages                 []string        `yaml:"languages,omitempty"`
	Media                     []string        `yaml:"media,omitempty"`
	Audiences                 []string        `yaml:"audiences,omitempty"`
	Fiction                   *bool           `yaml:"fiction,omitempty"`
	TargetAge                 *model.AgeRange `yaml:"target_age,omitempty"`
	LicenseDataSource         string          `yaml:"license_data_source,omitempty"`
	Genres                    []GenreRef      `yaml:"genres,omitempty"`
	ListDataSource            string          `yaml:"list_data_source,omitempty"`
	Lists                     []string        `yaml:"lists,omitempty"`
	InheritParentRestrictions *bool           `yaml:"inherit_parent_restrictions,omitempty"`
	IncludeSelfInGroupedFeed  *bool           `yaml:"include_self_in_grouped_feed,omitempty"`
	RootForPatronType         []string        `yaml:"root_for_patron_type,omitempty"`
	Sublanes                  []Definition    `yaml:"sublanes,omitempty"`
}

type definitionsFile struct {
	Lanes []Definition `yaml:"lanes"`
}

// LoadDefinitionsFile reads lane definitions from a YAML file.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lanes file: %w", err)
	}
	defer f.Close()
	return LoadDefinitions(f)
}

// LoadDefinitions reads lane definitions. Unknown keys are an error.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file definitionsFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse lanes file: %w", err)
	}
	if err := validateDefinitions(file.Lanes, ""); err != nil {
		return nil, err
	}
	return file.Lanes, nil
}

func validateDefinitions(defs []Definition, parent string) error {
	for _, d := range defs {
		if d.Name == "" {
			if parent == "" {
				return errors.New("top-level lane without a name")
			}
			return fmt.Errorf("sublane of %q without a name", parent)
		}
		if d.ListDataSource != "" && len(d.Lists) > 0 {
			return fmt.Errorf("lane %q: list_data_source and lists are exclusive", d.Name)
		}
		if err := validateDefinitions(d.Sublanes, d.Name); err != nil {
			return err
		}
	}
	return nil
}

// BuildLanes turns definitions into lanes, parents before children. Genre
// and list names are resolved against the taxonomy.
func BuildLanes(defs []Definition, library *model.Library, t *Taxonomy) ([]*Lane, error) {
	var out []*Lane
	var build func(defs []Definition, parent *Lane) error
	build = func(defs []Definition, parent *Lane) error {
		for _, d := range defs {
			l, err := d.lane(library, t)
			if err != nil {
				return err
			}
			if parent != nil {
				l.SetParent(parent)
			}
			out = append(out, l)
			if err := build(d.Sublanes, l); err != nil {
				return err
			}
		}
		return nil
	}
	if err := build(defs, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (d Definition) lane(library *model.Library, t *Taxonomy) (*Lane, error) {
	l := NewLane(library, d.Name)
	l.Priority = d.Priority
	l.Visible = !d.Hidden
	l.Languages = d.Languages
	l.Media = d.Media
	l.Fiction = d.Fiction
	l.LicenseDataSource = d.LicenseDataSource
	l.ListDataSource = d.ListDataSource
	l.RootForPatronType = d.RootForPatronType
	l.SetTaxonomy(t)
	if d.InheritParentRestrictions != nil {
		l.InheritParentRestrictions = *d.InheritParentRestrictions
	}
	if d.IncludeSelfInGroupedFeed != nil {
		l.IncludeSelfInGroupedFeed = *d.IncludeSelfInGroupedFeed
	}
	if d.TargetAge != nil {
		l.SetTargetAge(d.TargetAge.Min, d.TargetAge.Max)
	}
	if d.Audiences != nil {
		if err := l.SetAudiences(d.Audiences); err != nil {
			return nil, fmt.Errorf("lane %q: %w", d.Name, err)
		}
	}

	for _, g := range d.Genres {
		genre, ok := t.GenreByName(g.Name)
		if !ok {
			return nil, fmt.Errorf("lane %q: unknown genre %q", d.Name, g.Name)
		}
		l.LaneGenres = append(l.LaneGenres, LaneGenre{
			GenreID:   genre.ID,
			Inclusive: !g.Exclude,
			Recursive: g.Recursive == nil || *g.Recursive,
		})
	}
	for _, name := range d.Lists {
		cl, ok := t.CustomListByName(name)
		if !ok {
			return nil, fmt.Errorf("lane %q: unknown list %q", d.Name, name)
		}
		l.CustomLists = append(l.CustomLists, cl.ID)
	}
	return l, nil
}
