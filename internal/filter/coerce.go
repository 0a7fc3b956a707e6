package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/metadata"
)

// Coerce converts a scalar operand into the Go type the field stores:
// string for string/enum/relation fields, float64 for numbers, bool for
// booleans and time.Time (UTC midnight) for dates. Null passes through as nil.
func Coerce(f *metadata.Field, v Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind() == ValueList {
		return nil, apperr.TypeMismatch(f.Name, "expected a single value, got a list")
	}

	switch f.Kind {
	case metadata.KindString:
		s, ok := v.Str()
		if !ok {
			return nil, mismatch(f, v)
		}
		return s, nil

	case metadata.KindEnum:
		s, ok := v.Str()
		if !ok {
			return nil, mismatch(f, v)
		}
		canonical, ok := f.CanonicalEnum(s)
		if !ok {
			return nil, apperr.TypeMismatch(f.Name,
				fmt.Sprintf("%q is not one of %s", s, strings.Join(f.EnumValues, ", ")))
		}
		return canonical, nil

	case metadata.KindNumber:
		if n, ok := v.Num(); ok {
			return n, nil
		}
		if s, ok := v.Str(); ok {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return n, nil
			}
		}
		return nil, mismatch(f, v)

	case metadata.KindBoolean:
		if b, ok := v.Boolean(); ok {
			return b, nil
		}
		if s, ok := v.Str(); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b, nil
			}
		}
		return nil, mismatch(f, v)

	case metadata.KindDate:
		if t, ok := v.DateValue(); ok {
			return t, nil
		}
		if s, ok := v.Str(); ok {
			t, err := ParseDate(strings.TrimSpace(s))
			if err != nil {
				return nil, apperr.TypeMismatch(f.Name, err.Error())
			}
			return t, nil
		}
		return nil, mismatch(f, v)

	case metadata.KindRelation:
		s, ok := v.Str()
		if !ok || strings.TrimSpace(s) == "" {
			return nil, apperr.TypeMismatch(f.Name, "expected a related record id")
		}
		return strings.TrimSpace(s), nil
	}
	return nil, mismatch(f, v)
}

// CoerceAll coerces every item of a list (or a scalar promoted to a list).
func CoerceAll(f *metadata.Field, v Value) ([]any, error) {
	items := v.Items()
	out := make([]any, 0, len(items))
	for _, item := range items {
		if item.IsNull() {
			return nil, apperr.TypeMismatch(f.Name, "null is not allowed inside a list")
		}
		c, err := Coerce(f, item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Display renders a coerced value the way records carry it: dates as
// YYYY-MM-DD, everything else unchanged.
func Display(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(DateLayout)
	}
	return v
}

func mismatch(f *metadata.Field, v Value) error {
	return apperr.TypeMismatch(f.Name, fmt.Sprintf("expected %s, got %s", f.Kind, v.Kind()))
}
