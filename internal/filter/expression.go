package filter

import "strings"

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpIsNull      Operator = "is_null"
	OpIsNotNull   Operator = "is_not_null"
)

func (o Operator) valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
		OpGreaterThan, OpLessThan, OpIn, OpIsNull, OpIsNotNull:
		return true
	}
	return false
}

func (o Operator) textual() bool {
	return o == OpContains || o == OpStartsWith || o == OpEndsWith
}

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

// Expression is a flat list of conditions joined by one logic.
type Expression struct {
	Conditions []Condition `json:"conditions"`
	Logic      Logic       `json:"logic,omitempty"`
}

// Where builds a single condition.
func Where(field string, op Operator, value Value) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

// All joins conditions with AND.
func All(conds ...Condition) Expression {
	return Expression{Conditions: conds, Logic: LogicAnd}
}

// Any joins conditions with OR.
func Any(conds ...Condition) Expression {
	return Expression{Conditions: conds, Logic: LogicOr}
}

// IsEmpty reports whether the expression matches every record.
func (e Expression) IsEmpty() bool {
	return len(e.Conditions) == 0
}

// normalizedLogic defaults to AND; ok is false for anything unrecognised.
func (e Expression) normalizedLogic() (Logic, bool) {
	switch Logic(strings.ToUpper(strings.TrimSpace(string(e.Logic)))) {
	case "", LogicAnd:
		return LogicAnd, true
	case LogicOr:
		return LogicOr, true
	}
	return "", false
}
