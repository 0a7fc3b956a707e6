package metadata

import (
	"fmt"
	"strings"
)

type EntityType string

const (
	EntityEvent       EntityType = "event"
	EntityCompetition EntityType = "competition"
	EntityEdition     EntityType = "edition"
	EntityOrganizer   EntityType = "organizer"
	EntitySeries      EntityType = "series"
	EntityService     EntityType = "service"
	EntityPost        EntityType = "post"
)

// AllEntityTypes lists every supported type in catalog order.
var AllEntityTypes = []EntityType{
	EntityEvent,
	EntityCompetition,
	EntityEdition,
	EntityOrganizer,
	EntitySeries,
	EntityService,
	EntityPost,
}

// ParseEntityType converts a caller-supplied name into an EntityType.
func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllEntityTypes {
		if known == t {
			return t, true
		}
	}
	return "", false
}

// OrderClause is one component of an entity's default ordering.
type OrderClause struct {
	Field string
	Desc  bool
}

type Entity struct {
	Type         EntityType `json:"entityType"`
	Label        string     `json:"label"`
	Fields       []Field    `json:"fields"`
	NaturalKey   string     `json:"naturalKey,omitempty"`
	DisplayField string     `json:"displayField"`

	Table        string        `json:"-"`
	DefaultOrder []OrderClause `json:"-"`
	// OwnerColumn, when set, receives the acting identity on import creates.
	OwnerColumn string `json:"-"`
}

const (
	PrimaryKey      = "id"
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
)

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// Columns returns the physical columns of the entity table, in field order,
// followed by bookkeeping columns.
func (e *Entity) Columns() []string {
	cols := make([]string, 0, len(e.Fields)+3)
	for _, f := range e.Fields {
		if f.IsMany() {
			continue
		}
		cols = append(cols, f.Name)
	}
	if e.OwnerColumn != "" {
		cols = append(cols, e.OwnerColumn)
	}
	return append(cols, CreatedAtColumn, UpdatedAtColumn)
}

// ManyRelations returns the many-valued relation fields.
func (e *Entity) ManyRelations() []*Field {
	var out []*Field
	for i := range e.Fields {
		if e.Fields[i].IsMany() {
			out = append(out, &e.Fields[i])
		}
	}
	return out
}

// References returns the relation-one fields.
func (e *Entity) References() []*Field {
	var out []*Field
	for i := range e.Fields {
		if e.Fields[i].IsReference() {
			out = append(out, &e.Fields[i])
		}
	}
	return out
}

// ImportableFields returns the fields an import item may set: everything
// except the primary key.
func (e *Entity) ImportableFields() []*Field {
	var out []*Field
	for i := range e.Fields {
		if e.Fields[i].Name == PrimaryKey {
			continue
		}
		out = append(out, &e.Fields[i])
	}
	return out
}

// OrderSQL renders the default ordering against the given table alias.
func (e *Entity) OrderSQL(alias string) string {
	parts := make([]string, 0, len(e.DefaultOrder)+1)
	for _, o := range e.DefaultOrder {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s.%s %s", alias, o.Field, dir))
	}
	// stable tiebreaker for paging and previews
	parts = append(parts, fmt.Sprintf("%s.%s ASC", alias, PrimaryKey))
	return strings.Join(parts, ", ")
}
