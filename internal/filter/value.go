package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueDate
	ValueList
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "boolean"
	case ValueDate:
		return "date"
	case ValueList:
		return "list"
	}
	return "unknown"
}

// DateLayout is the calendar-date format accepted and produced on the wire.
const DateLayout = "2006-01-02"

// Value is a filter or mutation operand: null, string, number, boolean,
// date, or a flat list of those. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	date time.Time
	list []Value
}

func Null() Value              { return Value{} }
func String(s string) Value    { return Value{kind: ValueString, str: s} }
func Number(n float64) Value   { return Value{kind: ValueNumber, num: n} }
func Bool(b bool) Value        { return Value{kind: ValueBool, b: b} }
func List(items ...Value) Value { return Value{kind: ValueList, list: items} }

// Date truncates t to its calendar day in UTC.
func Date(t time.Time) Value {
	y, m, d := t.UTC().Date()
	return Value{kind: ValueDate, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Strings builds a list of string values.
func Strings(ss ...string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return List(items...)
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

func (v Value) Str() (string, bool)          { return v.str, v.kind == ValueString }
func (v Value) Num() (float64, bool)         { return v.num, v.kind == ValueNumber }
func (v Value) Boolean() (bool, bool)        { return v.b, v.kind == ValueBool }
func (v Value) DateValue() (time.Time, bool) { return v.date, v.kind == ValueDate }

// Items returns the list elements, or the value itself as a one-element
// list when it is a scalar. Null yields no items.
func (v Value) Items() []Value {
	switch v.kind {
	case ValueList:
		return v.list
	case ValueNull:
		return nil
	default:
		return []Value{v}
	}
}

// Interface converts the value to plain Go data (string, float64, bool,
// "YYYY-MM-DD" string, []any or nil).
func (v Value) Interface() any {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return v.num
	case ValueBool:
		return v.b
	case ValueDate:
		return v.date.Format(DateLayout)
	case ValueList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return strconv.Quote(v.str)
	case ValueNull:
		return "null"
	default:
		return fmt.Sprint(v.Interface())
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts decoded JSON (or other plain Go data) into a Value.
// Nested lists are rejected.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", x.String())
		}
		return Number(n), nil
	case time.Time:
		return Date(x), nil
	case []string:
		return Strings(x...), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, elem := range x {
			item, err := FromAny(elem)
			if err != nil {
				return Value{}, err
			}
			if item.kind == ValueList {
				return Value{}, fmt.Errorf("nested lists are not supported")
			}
			items = append(items, item)
		}
		return List(items...), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return Date(t).date, nil
}
