package schema

import (
	"fmt"
	"sort"
)

// Cardinality classifies how many related rows one primary row maps to.
type Cardinality string

const (
	OneToOne   Cardinality = "one-to-one"
	OneToZero  Cardinality = "one-to-zero"
	OneToMany  Cardinality = "one-to-many"
	ManyToMany Cardinality = "many-to-many"
)

// Cardinalities lists every class in a stable order.
var Cardinalities = []Cardinality{OneToOne, OneToZero, OneToMany, ManyToMany}

// Relation describes one declared relation between two entities.
// RelatedEntity may equal the declaring schema's own table name
// (self-referential relation, e.g. a hierarchical parent-child table);
// join construction must treat that case distinctly everywhere.
type Relation struct {
	RelatedEntity string `yaml:"entity" json:"entity"`
	LocalKey      string `yaml:"local_key" json:"local_key"`
	ForeignKey    string `yaml:"foreign_key" json:"foreign_key"`
}

// NamedRelation pairs a relation with the join-table (logical) name it was
// declared under.
type NamedRelation struct {
	Name string
	Relation
}

// Schema is the immutable per-entity descriptor the engine operates on.
// It is constructed once and attached to an engine before any operation;
// it must not be mutated afterwards.
type Schema struct {
	// Name is the table identifier.
	Name string

	// PrimaryField is the unique key field name.
	PrimaryField string

	// CreatedField and UpdatedField are optional timestamp field names;
	// absence disables stamping.
	CreatedField string
	UpdatedField string

	// ActiveField is an optional soft-delete/visibility flag field. When
	// present, searches default-filter on it.
	ActiveField string

	// UUIDFields are auto-populated with a random unique token on creation.
	UUIDFields []string

	// JSONFields hold serialized structures, decoded on read and defaulting
	// to an empty structure when absent.
	JSONFields []string

	// SearchableFields are eligible for free-text keyword matching.
	SearchableFields []string

	// Relations maps a cardinality class to the relations this entity
	// declares, keyed by join-table name.
	Relations map[Cardinality]map[string]Relation

	// ReverseRelations holds relations the *other* entity declares, needed
	// to detect inbound links when filtering.
	ReverseRelations map[Cardinality]map[string]Relation
}

// Validate checks the invariants every schema must satisfy before it can be
// attached to an engine.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema: table name is required")
	}
	if s.PrimaryField == "" {
		return fmt.Errorf("schema %q: primary field is required", s.Name)
	}
	for _, c := range Cardinalities {
		for name, r := range s.Relations[c] {
			if err := validateRelation(name, r); err != nil {
				return fmt.Errorf("schema %q: %s relation: %w", s.Name, c, err)
			}
		}
		for name, r := range s.ReverseRelations[c] {
			if err := validateRelation(name, r); err != nil {
				return fmt.Errorf("schema %q: reverse %s relation: %w", s.Name, c, err)
			}
		}
	}
	return nil
}

func validateRelation(name string, r Relation) error {
	switch {
	case name == "":
		return fmt.Errorf("join table name is required")
	case r.RelatedEntity == "":
		return fmt.Errorf("%s: related entity is required", name)
	case r.LocalKey == "":
		return fmt.Errorf("%s: local key is required", name)
	case r.ForeignKey == "":
		return fmt.Errorf("%s: foreign key is required", name)
	}
	return nil
}

// SelfReferential reports whether the relation points back at this schema's
// own table. Self joins take a dedicated path everywhere joins are built,
// because a shared-column join is ambiguous when both sides are the same
// table.
func (s *Schema) SelfReferential(r Relation) bool {
	return r.RelatedEntity == s.Name
}

// RelationsOf returns the declared relations for one cardinality class,
// sorted by name. Resolved join lists must be deterministic.
func (s *Schema) RelationsOf(c Cardinality) []NamedRelation {
	return sortRelations(s.Relations[c])
}

// ReverseRelationsOf returns the inbound relations for one cardinality
// class, sorted by name.
func (s *Schema) ReverseRelationsOf(c Cardinality) []NamedRelation {
	return sortRelations(s.ReverseRelations[c])
}

func sortRelations(m map[string]Relation) []NamedRelation {
	if len(m) == 0 {
		return nil
	}
	out := make([]NamedRelation, 0, len(m))
	for name, r := range m {
		out = append(out, NamedRelation{Name: name, Relation: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// JunctionTable returns the junction table name for a many-to-many
// relation: {entity}_{relation}.
func (s *Schema) JunctionTable(relation string) string {
	return s.Name + "_" + relation
}

// ManyToManyJunction looks up the many-to-many relation declared under the
// junction table for the given relation name. ok is false when the schema
// does not declare it.
func (s *Schema) ManyToManyJunction(relation string) (Relation, bool) {
	r, ok := s.Relations[ManyToMany][s.JunctionTable(relation)]
	return r, ok
}

// IsJSONField reports whether the field is declared as a JSON field.
func (s *Schema) IsJSONField(name string) bool {
	return contains(s.JSONFields, name)
}

// IsSearchableField reports whether the field participates in keyword
// matching.
func (s *Schema) IsSearchableField(name string) bool {
	return contains(s.SearchableFields, name)
}

func contains(list []string, name string) bool {
	for _, f := range list {
		if f == name {
			return true
		}
	}
	return false
}
