package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"flowforge/internal/errors"
	"flowforge/internal/table"
)

// Filter operators
const (
	OpEq         = "eq"
	OpNe         = "ne"
	OpLt         = "lt"
	OpLte        = "lte"
	OpGt         = "gt"
	OpGte        = "gte"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpEndsWith   = "ends_with"
	OpRegexMatch = "regex_match"
	OpIsNull     = "is_null"
)

// Condition is one column predicate.
type Condition struct {
	Column   string `json:"column" validate:"required"`
	Operator string `json:"operator" validate:"required,oneof=eq ne lt lte gt gte contains starts_with ends_with regex_match is_null"`
	Value    any    `json:"value,omitempty"`
}

// FilterParams configures row filtering. Combine defaults to "all".
type FilterParams struct {
	Conditions []Condition `json:"conditions" validate:"required,min=1,dive"`
	Combine    string      `json:"combine" validate:"omitempty,oneof=all any"`
}

// FilterOperation keeps the rows satisfying the conditions. Every
// condition is validated and compiled before any row is evaluated, so a
// type-incompatible comparison or a bad pattern never partially filters.
type FilterOperation struct{}

func (o *FilterOperation) Kind() string { return KindFilter }

// predicate evaluates one compiled condition against a cell.
type predicate func(v any) bool

func (o *FilterOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p FilterParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}
	if p.Combine == "" {
		p.Combine = "all"
	}

	preds := make([]predicate, len(p.Conditions))
	colValues := make([][]any, len(p.Conditions))
	for i, cond := range p.Conditions {
		col, err := t.Column(cond.Column)
		if err != nil {
			return nil, "", err
		}
		pred, err := compileCondition(cond, col)
		if err != nil {
			return nil, "", err
		}
		preds[i] = pred
		vals, err := t.Values(cond.Column)
		if err != nil {
			return nil, "", err
		}
		colValues[i] = vals
	}

	kept := make([]int, 0, t.RowCount())
	for r := 0; r < t.RowCount(); r++ {
		match := p.Combine == "all"
		for i, pred := range preds {
			ok := pred(colValues[i][r])
			if p.Combine == "all" {
				if !ok {
					match = false
					break
				}
			} else if ok {
				match = true
				break
			}
		}
		if match {
			kept = append(kept, r)
		}
	}

	out, err := t.SelectRows(kept)
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("kept %d of %d rows (%d conditions, combine=%s)", out.RowCount(), t.RowCount(), len(p.Conditions), p.Combine), nil
}

// compileCondition validates operator/type compatibility and coerces the
// comparison value up front. Null cells satisfy only is_null.
func compileCondition(cond Condition, col table.Column) (predicate, error) {
	switch cond.Operator {
	case OpIsNull:
		return func(v any) bool { return v == nil }, nil

	case OpEq, OpNe:
		want, err := table.Coerce(cond.Value, col.Type)
		if err != nil {
			return nil, errors.NewTypeError("condition on %q: %s", col.Name, err.Error()).WithParameter("value")
		}
		eq := cond.Operator == OpEq
		return func(v any) bool {
			if v == nil {
				return false
			}
			return table.ValueEqual(v, want) == eq
		}, nil

	case OpLt, OpLte, OpGt, OpGte:
		if !col.Type.Numeric() && col.Type != table.TypeDatetime {
			return nil, errors.NewTypeError("operator %s requires a numeric or datetime column, %q is %s", cond.Operator, col.Name, col.Type).WithParameter("operator")
		}
		want, err := table.Coerce(cond.Value, col.Type)
		if err != nil {
			return nil, errors.NewTypeError("condition on %q: %s", col.Name, err.Error()).WithParameter("value")
		}
		op := cond.Operator
		return func(v any) bool {
			if v == nil {
				return false
			}
			c := compareValues(v, want)
			switch op {
			case OpLt:
				return c < 0
			case OpLte:
				return c <= 0
			case OpGt:
				return c > 0
			default:
				return c >= 0
			}
		}, nil

	case OpContains, OpStartsWith, OpEndsWith:
		if !col.Type.Textual() {
			return nil, errors.NewTypeError("operator %s requires a text column, %q is %s", cond.Operator, col.Name, col.Type).WithParameter("operator")
		}
		want, ok := cond.Value.(string)
		if !ok {
			return nil, errors.NewTypeError("operator %s requires a string value", cond.Operator).WithParameter("value")
		}
		op := cond.Operator
		return func(v any) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			switch op {
			case OpContains:
				return strings.Contains(s, want)
			case OpStartsWith:
				return strings.HasPrefix(s, want)
			default:
				return strings.HasSuffix(s, want)
			}
		}, nil

	case OpRegexMatch:
		if !col.Type.Textual() {
			return nil, errors.NewTypeError("operator regex_match requires a text column, %q is %s", col.Name, col.Type).WithParameter("operator")
		}
		pattern, ok := cond.Value.(string)
		if !ok {
			return nil, errors.NewTypeError("operator regex_match requires a string pattern").WithParameter("value")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.NewPatternError("invalid pattern %q: %s", pattern, err.Error()).WithParameter("value")
		}
		return func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		}, nil
	}
	return nil, errors.NewSchemaError("unsupported operator %q", cond.Operator).WithParameter("operator")
}

// compareValues orders two canonical values of the same declared type.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case int64:
		y := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		}
		return 0
	}
	return 0
}
