package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/curator-cli/internal/model"
)

// AttributeDef declares an extractable attribute: what the model is asked
// for, how the stored value is typed, and whether raw values feed the
// canonical vocabulary.
type AttributeDef struct {
	Slug       string         `yaml:"slug" json:"slug"`
	Label      string         `yaml:"label" json:"label"`
	DataType   model.DataType `yaml:"data_type" json:"data_type"`
	Vocabulary bool           `yaml:"vocabulary" json:"vocabulary"`
	Prompt     string         `yaml:"prompt" json:"prompt"`
}

// AttributeRegistry holds attribute definitions with indexed lookups.
type AttributeRegistry struct {
	Defs   []AttributeDef
	bySlug map[string]*AttributeDef
}

// NewAttributeRegistry creates an AttributeRegistry with indexed lookups.
// Definitions without a slug get one derived from the label; missing data
// types default to text.
func NewAttributeRegistry(defs []AttributeDef) (*AttributeRegistry, error) {
	r := &AttributeRegistry{
		Defs:   defs,
		bySlug: make(map[string]*AttributeDef, len(defs)),
	}
	for i := range r.Defs {
		d := &r.Defs[i]
		if d.Slug == "" {
			d.Slug = model.Slugify(d.Label)
		}
		if d.Slug == "" {
			return nil, eris.Errorf("registry: attribute %d has neither slug nor label", i)
		}
		if d.DataType == "" {
			d.DataType = model.TypeText
		}
		if !d.DataType.Valid() {
			return nil, eris.Errorf("registry: attribute %s: unknown data type %q", d.Slug, d.DataType)
		}
		if _, dup := r.bySlug[d.Slug]; dup {
			return nil, eris.Errorf("registry: duplicate attribute slug %s", d.Slug)
		}
		r.bySlug[d.Slug] = d
	}
	return r, nil
}

// BySlug returns the attribute definition for the given slug, or nil if
// not found.
func (r *AttributeRegistry) BySlug(slug string) *AttributeDef {
	return r.bySlug[slug]
}

// Slugs returns all attribute slugs in definition order.
func (r *AttributeRegistry) Slugs() []string {
	out := make([]string, len(r.Defs))
	for i, d := range r.Defs {
		out[i] = d.Slug
	}
	return out
}

// VocabularySlugs returns the slugs whose raw values feed the canonical
// vocabulary.
func (r *AttributeRegistry) VocabularySlugs() []string {
	var out []string
	for _, d := range r.Defs {
		if d.Vocabulary {
			out = append(out, d.Slug)
		}
	}
	return out
}

// LoadAttributesFromFile reads attribute definitions from a YAML file with
// a top-level "attributes" key.
func LoadAttributesFromFile(path string) (*AttributeRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read attributes %s", path)
	}

	var wrapper struct {
		Attributes []AttributeDef `yaml:"attributes"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "registry: parse attributes")
	}
	if len(wrapper.Attributes) == 0 {
		return nil, eris.Errorf("registry: %s defines no attributes", path)
	}

	return NewAttributeRegistry(wrapper.Attributes)
}

// DefaultAttributes returns the built-in attribute set used when no
// attributes file is configured.
func DefaultAttributes() *AttributeRegistry {
	r, err := NewAttributeRegistry([]AttributeDef{
		{
			Slug:       "features",
			Label:      "Plan Features",
			DataType:   model.TypeText,
			Vocabulary: true,
			Prompt:     "Named benefits or features the provider includes in this plan (one candidate per feature).",
		},
		{
			Slug:       "exclusions",
			Label:      "Exclusions",
			DataType:   model.TypeText,
			Vocabulary: true,
			Prompt:     "Conditions, treatments, or situations the provider explicitly excludes from cover.",
		},
		{
			Slug:     "employee_count",
			Label:    "Employee Count",
			DataType: model.TypeNumber,
			Prompt:   "The number of employees of the company, as a plain number.",
		},
		{
			Slug:     "founded_year",
			Label:    "Founded Year",
			DataType: model.TypeNumber,
			Prompt:   "The four-digit year the company was founded.",
		},
		{
			Slug:     "headquarters",
			Label:    "Headquarters",
			DataType: model.TypeText,
			Prompt:   "The city and country of the company headquarters.",
		},
		{
			Slug:     "regulated",
			Label:    "Regulated",
			DataType: model.TypeBoolean,
			Prompt:   "Whether the document states the provider is authorised or regulated by a financial or health authority.",
		},
		{
			Slug:     "target_segments",
			Label:    "Target Segments",
			DataType: model.TypeList,
			Prompt:   "The customer segments this offering targets (e.g. SMEs, individuals, corporates).",
		},
	})
	if err != nil {
		// The built-in set is static; a failure here is a programming error.
		panic(err)
	}
	return r
}
