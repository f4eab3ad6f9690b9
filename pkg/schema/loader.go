package schema

import (
	"fmt"
	"os"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"
)

// Definition is the YAML shape of one entity schema. Relations are grouped
// by cardinality class name ("one-to-one", "one-to-zero", "one-to-many",
// "many-to-many"), then keyed by join-table name.
type Definition struct {
	Entity           string                         `yaml:"entity"`
	Table            string                         `yaml:"table"`
	Primary          string                         `yaml:"primary"`
	Created          string                         `yaml:"created"`
	Updated          string                         `yaml:"updated"`
	Active           string                         `yaml:"active"`
	UUIDFields       []string                       `yaml:"uuid_fields"`
	JSONFields       []string                       `yaml:"json_fields"`
	SearchableFields []string                       `yaml:"searchable_fields"`
	Relations        map[string]map[string]Relation `yaml:"relations"`
	ReverseRelations map[string]map[string]Relation `yaml:"reverse_relations"`
}

// File is the top-level YAML document listing entity definitions.
type File struct {
	Entities []Definition `yaml:"entities"`
}

// LoadFile reads entity schemas from a YAML file.
func LoadFile(path string) ([]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	schemas, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schemas, nil
}

// Parse decodes a YAML schema document into validated schemas.
func Parse(data []byte) ([]*Schema, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	out := make([]*Schema, 0, len(f.Entities))
	for i := range f.Entities {
		s, err := f.Entities[i].Build()
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Build converts a definition into a Schema, applying defaults: the table
// name falls back to the pluralized entity name and the primary field to
// "id".
func (d *Definition) Build() (*Schema, error) {
	if d.Entity == "" && d.Table == "" {
		return nil, fmt.Errorf("entity name is required")
	}

	s := &Schema{
		Name:             d.Table,
		PrimaryField:     d.Primary,
		CreatedField:     d.Created,
		UpdatedField:     d.Updated,
		ActiveField:      d.Active,
		UUIDFields:       d.UUIDFields,
		JSONFields:       d.JSONFields,
		SearchableFields: d.SearchableFields,
	}
	if s.Name == "" {
		s.Name = inflection.Plural(d.Entity)
	}
	if s.PrimaryField == "" {
		s.PrimaryField = "id"
	}

	var err error
	if s.Relations, err = buildRelations(d.Relations); err != nil {
		return nil, err
	}
	if s.ReverseRelations, err = buildRelations(d.ReverseRelations); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func buildRelations(in map[string]map[string]Relation) (map[Cardinality]map[string]Relation, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[Cardinality]map[string]Relation, len(in))
	for class, rels := range in {
		c := Cardinality(class)
		switch c {
		case OneToOne, OneToZero, OneToMany, ManyToMany:
		default:
			return nil, fmt.Errorf("unknown cardinality class %q", class)
		}
		out[c] = rels
	}
	return out, nil
}
