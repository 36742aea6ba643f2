package rules

import (
	"fmt"
	"strings"
	"time"

	"casegov/internal/record"
)

// Operator is a comparison the condition interpreter understands.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpPresent  Operator = "present"
	OpAbsent   Operator = "absent"
)

var knownOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpContains: true, OpPresent: true, OpAbsent: true,
}

// Condition is one declarative predicate over a case snapshot field.
// Conditions on a rule combine with AND.
type Condition struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value,omitempty"`
}

// errFieldUnusable marks a condition whose referenced field has no usable
// value; the evaluator skips the owning rule instead of failing.
type errFieldUnusable struct {
	field string
}

func (e errFieldUnusable) Error() string {
	return fmt.Sprintf("field %q has no usable value", e.field)
}

// evalCondition interprets one condition against a snapshot. present/absent
// never error; every other operator errors when the field value is missing so
// the owning rule gets skipped, not failed.
func evalCondition(cond Condition, snapshot record.Case) (bool, error) {
	value, ok := snapshot.Field(cond.Field)

	switch cond.Op {
	case OpPresent:
		return ok, nil
	case OpAbsent:
		return !ok, nil
	}

	if !ok {
		return false, errFieldUnusable{field: cond.Field}
	}

	switch cond.Op {
	case OpEq:
		return compareEqual(value, cond.Value), nil
	case OpNe:
		return !compareEqual(value, cond.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		return compareOrdered(cond.Op, value, cond.Value)
	case OpIn:
		items, ok := cond.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator %q expects a list value", cond.Op)
		}
		for _, item := range items {
			if compareEqual(value, item) {
				return true, nil
			}
		}
		return false, nil
	case OpContains:
		str, sok := value.(string)
		sub, vok := cond.Value.(string)
		if !sok || !vok {
			return false, fmt.Errorf("operator %q expects string operands", cond.Op)
		}
		return strings.Contains(strings.ToLower(str), strings.ToLower(sub)), nil
	}
	return false, fmt.Errorf("unknown operator %q", cond.Op)
}

// compareEqual matches with numeric coercion so JSON-sourced config values
// (always float64) compare against typed snapshot fields.
func compareEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func compareOrdered(op Operator, a, b any) (bool, error) {
	if at, aok := a.(time.Time); aok {
		bt, err := asTime(b)
		if err != nil {
			return false, err
		}
		return orderedResult(op, at.Compare(bt)), nil
	}

	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("operator %q expects numeric or time operands", op)
	}
	switch {
	case af < bf:
		return orderedResult(op, -1), nil
	case af > bf:
		return orderedResult(op, 1), nil
	default:
		return orderedResult(op, 0), nil
	}
}

func orderedResult(op Operator, cmp int) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse time operand: %w", err)
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("operand %v is not a time", v)
}
