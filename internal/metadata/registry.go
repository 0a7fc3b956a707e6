package metadata

import (
	"fmt"

	"racecal-backend/internal/apperr"
)

// Registry is the process-wide, read-only table of entity descriptions.
// It is built once at startup and never mutated afterwards, so lookups
// need no locking.
type Registry struct {
	order    []EntityType
	entities map[EntityType]*Entity
}

// NewRegistry builds a registry from the given entities, checking that
// every relation points at a registered entity and carries its bindings.
func NewRegistry(entities []*Entity) (*Registry, error) {
	r := &Registry{entities: make(map[EntityType]*Entity, len(entities))}
	for _, e := range entities {
		if _, dup := r.entities[e.Type]; dup {
			return nil, fmt.Errorf("duplicate entity type %s", e.Type)
		}
		r.entities[e.Type] = e
		r.order = append(r.order, e.Type)
	}

	for _, e := range entities {
		if !e.HasField(PrimaryKey) {
			return nil, fmt.Errorf("entity %s: missing %s field", e.Type, PrimaryKey)
		}
		if e.NaturalKey != "" && !e.HasField(e.NaturalKey) {
			return nil, fmt.Errorf("entity %s: natural key %s is not a field", e.Type, e.NaturalKey)
		}
		for _, f := range e.Fields {
			if f.Kind != KindRelation {
				continue
			}
			if _, ok := r.entities[f.RelationTarget]; !ok {
				return nil, fmt.Errorf("entity %s: field %s targets unknown entity %s", e.Type, f.Name, f.RelationTarget)
			}
			if f.IsMany() && f.Join == nil {
				return nil, fmt.Errorf("entity %s: many relation %s has no join table", e.Type, f.Name)
			}
		}
	}
	return r, nil
}

// MustDefault returns a registry over the built-in catalog.
func MustDefault() *Registry {
	r, err := NewRegistry(Catalog())
	if err != nil {
		panic(err)
	}
	return r
}

// Describe returns the metadata of one entity type.
func (r *Registry) Describe(entityType string) (*Entity, error) {
	t, ok := ParseEntityType(entityType)
	if !ok {
		return nil, apperr.UnknownEntityType(entityType)
	}
	e, ok := r.entities[t]
	if !ok {
		return nil, apperr.UnknownEntityType(entityType)
	}
	return e, nil
}

// DescribeAll returns every registered entity in registration order.
func (r *Registry) DescribeAll() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.entities[t])
	}
	return out
}

func (r *Registry) IsFilterable(entityType, field string) (bool, error) {
	e, err := r.Describe(entityType)
	if err != nil {
		return false, err
	}
	f := e.GetField(field)
	return f != nil && f.Filterable, nil
}

func (r *Registry) IsEditable(entityType, field string) (bool, error) {
	e, err := r.Describe(entityType)
	if err != nil {
		return false, err
	}
	f := e.GetField(field)
	return f != nil && f.Editable, nil
}

// Target resolves the entity a relation field points at.
func (r *Registry) Target(f *Field) *Entity {
	return r.entities[f.RelationTarget]
}
