// Package descriptor holds the static schema description for every entity
// served by the gateway: declared fields with semantic types, declared
// relations, page-size limits, and the storage mapping (table, owner column).
// Descriptors are loaded once at boot and read-only afterward.
package descriptor

import (
	"fmt"
	"sort"
)

// FieldType is the semantic type of a declared field. The query translator
// restricts filter operators by field type.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldID      FieldType = "id"
)

// valid reports whether t is one of the closed set of field types.
func (t FieldType) valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldDate, FieldID:
		return true
	}
	return false
}

// Field is a declared entity field.
type Field struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`
}

// Relation is a declared relation to another entity.
type Relation struct {
	Name string `yaml:"name"`
	// Entity is the related entity type.
	Entity string `yaml:"entity"`
	// ForeignKey is the column joining the two tables. For a to-one relation
	// it lives on this entity's table; for a to-many relation it lives on the
	// related entity's table.
	ForeignKey string `yaml:"foreign_key"`
	// ToMany marks a collection relation (embedded as an array).
	ToMany bool `yaml:"to_many"`
}

// Entity describes one entity type.
type Entity struct {
	Name  string `yaml:"name"`
	Table string `yaml:"table"`
	// OwnerField names the declared field holding the owning principal's id.
	// Empty for entities without instance ownership.
	OwnerField   string     `yaml:"owner_field"`
	Fields       []Field    `yaml:"fields"`
	Relations    []Relation `yaml:"relations"`
	DefaultLimit int        `yaml:"default_limit"`
	MaxLimit     int        `yaml:"max_limit"`

	fieldsByName    map[string]FieldType
	relationsByName map[string]Relation
}

// FieldType returns the semantic type of a declared field.
func (e *Entity) FieldType(name string) (FieldType, bool) {
	t, ok := e.fieldsByName[name]
	return t, ok
}

// RelationByName returns a declared relation.
func (e *Entity) RelationByName(name string) (Relation, bool) {
	r, ok := e.relationsByName[name]
	return r, ok
}

// RelationNames returns the declared relation names in declaration order.
func (e *Entity) RelationNames() []string {
	names := make([]string, 0, len(e.Relations))
	for _, r := range e.Relations {
		names = append(names, r.Name)
	}
	return names
}

// index builds the lookup maps and validates the entity in isolation.
func (e *Entity) index() error {
	if e.Name == "" {
		return fmt.Errorf("entity with empty name")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %q: table is required", e.Name)
	}
	if e.DefaultLimit <= 0 || e.MaxLimit <= 0 {
		return fmt.Errorf("entity %q: page limits must be positive", e.Name)
	}
	if e.DefaultLimit > e.MaxLimit {
		return fmt.Errorf("entity %q: default limit %d exceeds max %d", e.Name, e.DefaultLimit, e.MaxLimit)
	}

	e.fieldsByName = make(map[string]FieldType, len(e.Fields))
	for _, f := range e.Fields {
		if !f.Type.valid() {
			return fmt.Errorf("entity %q: field %q has unknown type %q", e.Name, f.Name, f.Type)
		}
		if _, dup := e.fieldsByName[f.Name]; dup {
			return fmt.Errorf("entity %q: duplicate field %q", e.Name, f.Name)
		}
		e.fieldsByName[f.Name] = f.Type
	}

	if t, ok := e.fieldsByName["id"]; !ok || t != FieldID {
		return fmt.Errorf("entity %q: an id field of type id is required", e.Name)
	}

	if e.OwnerField != "" {
		if t, ok := e.fieldsByName[e.OwnerField]; !ok || t != FieldID {
			return fmt.Errorf("entity %q: owner field %q must be a declared id field", e.Name, e.OwnerField)
		}
	}

	e.relationsByName = make(map[string]Relation, len(e.Relations))
	for _, r := range e.Relations {
		if r.Name == "" || r.Entity == "" {
			return fmt.Errorf("entity %q: relation needs name and entity", e.Name)
		}
		if r.ForeignKey == "" {
			return fmt.Errorf("entity %q: relation %q needs a foreign key", e.Name, r.Name)
		}
		if _, dup := e.relationsByName[r.Name]; dup {
			return fmt.Errorf("entity %q: duplicate relation %q", e.Name, r.Name)
		}
		e.relationsByName[r.Name] = r
	}

	return nil
}

// Registry is the immutable table of entity descriptors. Concurrent reads
// require no synchronization.
type Registry struct {
	entities map[string]*Entity
}

// NewRegistry indexes and cross-validates the given descriptors. An unknown
// related entity or malformed declaration is a boot-time error, not a runtime
// response anomaly.
func NewRegistry(entities []*Entity) (*Registry, error) {
	byName := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		if err := e.index(); err != nil {
			return nil, err
		}
		if _, dup := byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %q", e.Name)
		}
		byName[e.Name] = e
	}

	// Relations must reference registered entities.
	for _, e := range byName {
		for _, r := range e.Relations {
			if _, ok := byName[r.Entity]; !ok {
				return nil, fmt.Errorf("entity %q: relation %q references unknown entity %q", e.Name, r.Name, r.Entity)
			}
		}
	}

	return &Registry{entities: byName}, nil
}

// Get returns the descriptor for an entity type.
func (r *Registry) Get(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Names returns all registered entity names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
