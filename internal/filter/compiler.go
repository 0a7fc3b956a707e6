package filter

import (
	"fmt"
	"strings"
	"time"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

// Predicate is a validated filter expression bound to one entity type.
// It renders to a SQL boolean expression; the empty predicate matches all.
type Predicate struct {
	entity *metadata.Entity
	logic  Logic
	terms  []term
}

type term struct {
	field  *metadata.Field
	op     Operator
	values []any
}

// Compile validates expr against the entity's metadata. Every field must be
// filterable and every operand must fit the operator and the field kind.
func Compile(reg *metadata.Registry, entityType string, expr Expression) (*Predicate, error) {
	entity, err := reg.Describe(entityType)
	if err != nil {
		return nil, err
	}
	logic, ok := expr.normalizedLogic()
	if !ok {
		return nil, apperr.TypeMismatch("logic", fmt.Sprintf("unknown logic %q, expected AND or OR", expr.Logic))
	}

	p := &Predicate{entity: entity, logic: logic}
	for _, cond := range expr.Conditions {
		t, err := compileCondition(entity, cond)
		if err != nil {
			return nil, err
		}
		p.terms = append(p.terms, t)
	}
	return p, nil
}

func compileCondition(entity *metadata.Entity, cond Condition) (term, error) {
	field := entity.GetField(cond.Field)
	if field == nil || !field.Filterable {
		return term{}, apperr.InvalidFilterField(string(entity.Type), cond.Field)
	}

	op := cond.Operator
	if op == "" {
		op = OpEquals
	}
	if !op.valid() {
		return term{}, apperr.TypeMismatch(field.Name, fmt.Sprintf("unknown operator %q", op))
	}

	t := term{field: field, op: op}
	switch {
	case op == OpIsNull || op == OpIsNotNull:
		return t, nil

	case op == OpIn:
		values, err := CoerceAll(field, cond.Value)
		if err != nil {
			return term{}, err
		}
		t.values = values
		return t, nil

	case op.textual():
		if !field.Textual() {
			return term{}, apperr.TypeMismatch(field.Name,
				fmt.Sprintf("operator %s requires a text field, %s is %s", op, field.Name, field.Kind))
		}
		s, ok := cond.Value.Str()
		if !ok {
			return term{}, apperr.TypeMismatch(field.Name, fmt.Sprintf("operator %s requires a string value", op))
		}
		t.values = []any{s}
		return t, nil

	case op == OpGreaterThan || op == OpLessThan:
		if !field.Ordered() {
			return term{}, apperr.TypeMismatch(field.Name,
				fmt.Sprintf("operator %s requires a number or date field, %s is %s", op, field.Name, field.Kind))
		}
		if cond.Value.IsNull() {
			return term{}, apperr.TypeMismatch(field.Name, fmt.Sprintf("operator %s requires a value", op))
		}
	}

	// equals, not_equals, greater_than, less_than
	if cond.Value.IsNull() {
		// comparing with null means testing for absence
		if op == OpEquals {
			t.op = OpIsNull
		} else {
			t.op = OpIsNotNull
		}
		return t, nil
	}
	v, err := Coerce(field, cond.Value)
	if err != nil {
		return term{}, err
	}
	t.values = []any{v}
	return t, nil
}

func (p *Predicate) Entity() *metadata.Entity { return p.entity }

// Empty reports whether the predicate has no conditions.
func (p *Predicate) Empty() bool { return len(p.terms) == 0 }

// Render returns the predicate as a SQL boolean expression over the table
// aliased as alias, binding operands through pb. It returns "" when empty.
func (p *Predicate) Render(d store.Dialect, pb store.ParamBuilder, alias string) string {
	if p.Empty() {
		return ""
	}
	parts := make([]string, len(p.terms))
	for i, t := range p.terms {
		if t.field.IsMany() {
			parts[i] = renderMany(t, d, pb, alias, fmt.Sprintf("j%d", i))
		} else {
			parts[i] = renderScalar(t, d, pb, alias)
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+string(p.logic)+" ") + ")"
}

// Where is Render prefixed with " WHERE ", or "" for the empty predicate.
func (p *Predicate) Where(d store.Dialect, pb store.ParamBuilder, alias string) string {
	sql := p.Render(d, pb, alias)
	if sql == "" {
		return ""
	}
	return " WHERE " + sql
}

func renderScalar(t term, d store.Dialect, pb store.ParamBuilder, alias string) string {
	col := alias + "." + t.field.Name
	lhs := col
	// string comparisons are case-insensitive
	fold := t.field.Textual()
	if fold {
		lhs = "LOWER(" + col + ")"
	}

	switch t.op {
	case OpIsNull:
		return col + " IS NULL"
	case OpIsNotNull:
		return col + " IS NOT NULL"
	case OpEquals:
		return fmt.Sprintf("%s = %s", lhs, pb.Add(bind(d, t.values[0], fold)))
	case OpNotEquals:
		return fmt.Sprintf("%s <> %s", lhs, pb.Add(bind(d, t.values[0], fold)))
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", col, pb.Add(bind(d, t.values[0], false)))
	case OpLessThan:
		return fmt.Sprintf("%s < %s", col, pb.Add(bind(d, t.values[0], false)))
	case OpContains, OpStartsWith, OpEndsWith:
		pattern := escapeLike(strings.ToLower(t.values[0].(string)))
		switch t.op {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern = pattern + "%"
		default:
			pattern = "%" + pattern
		}
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, lhs, pb.Add(pattern))
	case OpIn:
		values := make([]any, len(t.values))
		for i, v := range t.values {
			values[i] = bind(d, v, fold)
		}
		return d.InExpr(lhs, pb, values)
	}
	return "1=0"
}

// renderMany tests the join table of a many-valued relation: equals and in
// ask for at least one matching link, not_equals for none, is_null and
// is_not_null for the absence or presence of any link.
func renderMany(t term, d store.Dialect, pb store.ParamBuilder, alias, ja string) string {
	j := t.field.Join
	links := fmt.Sprintf("SELECT 1 FROM %s %s WHERE %s.%s = %s.%s",
		j.Table, ja, ja, j.SourceKey, alias, metadata.PrimaryKey)
	target := ja + "." + j.TargetKey

	switch t.op {
	case OpIsNull:
		return "NOT EXISTS (" + links + ")"
	case OpIsNotNull:
		return "EXISTS (" + links + ")"
	case OpEquals:
		return fmt.Sprintf("EXISTS (%s AND %s = %s)", links, target, pb.Add(t.values[0]))
	case OpNotEquals:
		return fmt.Sprintf("NOT EXISTS (%s AND %s = %s)", links, target, pb.Add(t.values[0]))
	case OpIn:
		return fmt.Sprintf("EXISTS (%s AND %s)", links, d.InExpr(target, pb, t.values))
	}
	return "1=0"
}

func bind(d store.Dialect, v any, fold bool) any {
	switch x := v.(type) {
	case time.Time:
		return d.DateParam(x)
	case string:
		if fold {
			return strings.ToLower(x)
		}
	}
	return v
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
