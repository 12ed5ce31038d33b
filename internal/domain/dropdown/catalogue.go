package dropdown

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

// Ethnicity is a top-level ethnicity option with its example subgroups.
type Ethnicity struct {
	Name      string   `yaml:"name" json:"name"`
	Subgroups []string `yaml:"subgroups" json:"subgroups"`
}

// Field describes one clinical value key as shown on a form.
type Field struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
	Unit  string `yaml:"unit" json:"unit"`
}

type Religion struct {
	Default string   `yaml:"default"`
	Options []string `yaml:"options"`
}

// Catalogue is the static option set offered to patient, investigation and
// clinical entry forms.
type Catalogue struct {
	Sex               []string                       `yaml:"sex"`
	Ethnicity         []Ethnicity                    `yaml:"ethnicity"`
	Religion          Religion                       `yaml:"religion"`
	Districts         []string                       `yaml:"districts"`
	TestNames         map[string][]string            `yaml:"test_names"`
	TestMethods       []string                       `yaml:"test_methods"`
	ClinicalDropdowns map[string]map[string][]string `yaml:"clinical_dropdowns"`
	Fields            map[string][]Field             `yaml:"fields"`

	sex       map[string]struct{}
	ethnicity map[string]struct{}
	religion  map[string]struct{}
	districts map[string]struct{}
}

// Parse decodes a catalogue document and checks that the lists patient
// validation depends on are present.
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	if len(c.Sex) == 0 {
		return nil, fmt.Errorf("catalogue: sex options are required")
	}
	if len(c.Religion.Options) == 0 {
		return nil, fmt.Errorf("catalogue: religion options are required")
	}
	if c.Religion.Default == "" {
		c.Religion.Default = c.Religion.Options[0]
	}

	c.sex = index(c.Sex)
	c.religion = index(c.Religion.Options)
	if _, ok := c.religion[c.Religion.Default]; !ok {
		return nil, fmt.Errorf("catalogue: default religion %q is not an option", c.Religion.Default)
	}
	c.districts = index(c.Districts)
	c.ethnicity = make(map[string]struct{}, len(c.Ethnicity))
	for _, e := range c.Ethnicity {
		if e.Name == "" {
			return nil, fmt.Errorf("catalogue: ethnicity entry without a name")
		}
		c.ethnicity[e.Name] = struct{}{}
	}
	return &c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalogue
)

// Default returns the catalogue compiled into the binary.
func Default() *Catalogue {
	defaultOnce.Do(func() {
		c, err := Parse(catalogueYAML)
		if err != nil {
			panic(err)
		}
		defaultCat = c
	})
	return defaultCat
}

func index(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, s := range list {
		m[s] = struct{}{}
	}
	return m
}

func (c *Catalogue) IsSex(s string) bool {
	_, ok := c.sex[s]
	return ok
}

func (c *Catalogue) IsEthnicity(s string) bool {
	_, ok := c.ethnicity[s]
	return ok
}

func (c *Catalogue) IsReligion(s string) bool {
	_, ok := c.religion[s]
	return ok
}

func (c *Catalogue) IsDistrict(s string) bool {
	_, ok := c.districts[s]
	return ok
}

func (c *Catalogue) DefaultReligion() string { return c.Religion.Default }

// EthnicityNames returns the top-level ethnicity options in catalogue order.
func (c *Catalogue) EthnicityNames() []string {
	out := make([]string, len(c.Ethnicity))
	for i, e := range c.Ethnicity {
		out[i] = e.Name
	}
	return out
}

// EthnicitySubgroups maps each ethnicity to its subgroups. Empty subgroup
// lists are returned as empty slices so they encode as [].
func (c *Catalogue) EthnicitySubgroups() map[string][]string {
	out := make(map[string][]string, len(c.Ethnicity))
	for _, e := range c.Ethnicity {
		sub := e.Subgroups
		if sub == nil {
			sub = []string{}
		}
		out[e.Name] = sub
	}
	return out
}

// FieldsFor returns the field definitions of a clinical section, or nil.
func (c *Catalogue) FieldsFor(section string) []Field {
	return c.Fields[section]
}

// FieldLabel returns "Label (unit)" for a clinical value key, falling back
// to the key itself when the section does not define it.
func (c *Catalogue) FieldLabel(section, key string) string {
	for _, f := range c.Fields[section] {
		if f.Key == key {
			if f.Unit == "" {
				return f.Label
			}
			return f.Label + " (" + f.Unit + ")"
		}
	}
	return key
}
