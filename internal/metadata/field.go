package metadata

import "strings"

type FieldKind string

const (
	KindString   FieldKind = "string"
	KindNumber   FieldKind = "number"
	KindBoolean  FieldKind = "boolean"
	KindEnum     FieldKind = "enum"
	KindDate     FieldKind = "date"
	KindRelation FieldKind = "relation"
)

// Multiplicity is only meaningful for relation fields.
type Multiplicity string

const (
	One  Multiplicity = "one"
	Many Multiplicity = "many"
)

// JoinTable binds a many-valued relation to its link table.
type JoinTable struct {
	Table     string `json:"-"`
	SourceKey string `json:"-"` // column pointing at the owning record
	TargetKey string `json:"-"` // column pointing at the related record
}

type Field struct {
	Name           string       `json:"name"`
	Label          string       `json:"label"`
	Kind           FieldKind    `json:"kind"`
	EnumValues     []string     `json:"enumValues,omitempty"`
	RelationTarget EntityType   `json:"relationTarget,omitempty"`
	Multiplicity   Multiplicity `json:"multiplicity,omitempty"`
	Filterable     bool         `json:"filterable"`
	Editable       bool         `json:"editable"`
	Required       bool         `json:"required,omitempty"`

	// DisplayAs names the denormalized column carrying the related
	// record's display value (relation-one only).
	DisplayAs string     `json:"displayAs,omitempty"`
	Join      *JoinTable `json:"-"`
}

// IsMany reports whether the field is a many-valued relation.
func (f *Field) IsMany() bool {
	return f.Kind == KindRelation && f.Multiplicity == Many
}

// IsReference reports whether the field is a foreign key to a single record.
func (f *Field) IsReference() bool {
	return f.Kind == KindRelation && f.Multiplicity != Many
}

// Ordered reports whether greater_than/less_than make sense for the field.
func (f *Field) Ordered() bool {
	return f.Kind == KindNumber || f.Kind == KindDate
}

// Textual reports whether string operators apply to the field.
func (f *Field) Textual() bool {
	return f.Kind == KindString || f.Kind == KindEnum
}

// CanonicalEnum returns the declared spelling of v, matched without regard
// to case, and whether v is one of the enum values at all.
func (f *Field) CanonicalEnum(v string) (string, bool) {
	for _, ev := range f.EnumValues {
		if strings.EqualFold(ev, v) {
			return ev, true
		}
	}
	return "", false
}

// ColumnType returns the abstract column type used by the migrator.
func (f *Field) ColumnType() string {
	switch f.Kind {
	case KindNumber:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	default:
		return "string"
	}
}
