package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"flowforge/internal/errors"
	"flowforge/internal/table"
)

// Missing-value strategies
const (
	StrategyDropRow      = "drop_row"
	StrategyFillConstant = "fill_constant"
	StrategyFillMean     = "fill_mean"
	StrategyFillMedian   = "fill_median"
	StrategyFillMode     = "fill_mode"
	StrategyFillForward  = "fill_forward"
	StrategyFillBackward = "fill_backward"
)

// MissingParams configures missing-value handling for one column.
type MissingParams struct {
	Column   string `json:"column" validate:"required"`
	Strategy string `json:"strategy" validate:"required,oneof=drop_row fill_constant fill_mean fill_median fill_mode fill_forward fill_backward"`
	Value    any    `json:"value,omitempty"` // fill_constant only
}

// MissingOperation handles nulls in a column by dropping rows or filling
// from a constant, a statistic, or neighbouring rows. Dropping every row
// yields a valid zero-row table, not an error.
type MissingOperation struct{}

func (o *MissingOperation) Kind() string { return KindMissing }

func (o *MissingOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p MissingParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}
	col, err := t.Column(p.Column)
	if err != nil {
		return nil, "", err
	}
	values, err := t.Values(p.Column)
	if err != nil {
		return nil, "", err
	}

	nulls := 0
	for _, v := range values {
		if v == nil {
			nulls++
		}
	}

	if p.Strategy == StrategyDropRow {
		kept := make([]int, 0, t.RowCount()-nulls)
		for r, v := range values {
			if v != nil {
				kept = append(kept, r)
			}
		}
		out, err := t.SelectRows(kept)
		if err != nil {
			return nil, "", err
		}
		return out, fmt.Sprintf("dropped %d rows with null %q", nulls, p.Column), nil
	}

	fill, err := fillValue(p, col, values)
	if err != nil {
		return nil, "", err
	}

	filled := make([]any, len(values))
	copy(filled, values)
	changed := 0
	switch p.Strategy {
	case StrategyFillForward:
		var last any
		for r, v := range filled {
			if v == nil {
				if last != nil {
					filled[r] = last
					changed++
				}
			} else {
				last = v
			}
		}
	case StrategyFillBackward:
		var next any
		for r := len(filled) - 1; r >= 0; r-- {
			if filled[r] == nil {
				if next != nil {
					filled[r] = next
					changed++
				}
			} else {
				next = filled[r]
			}
		}
	default:
		for r, v := range filled {
			if v == nil && fill != nil {
				filled[r] = fill
				changed++
			}
		}
	}

	out, err := t.WithColumnReplaced(p.Column, filled)
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("filled %d null values in %q using %s", changed, p.Column, p.Strategy), nil
}

// fillValue resolves the constant to fill with, when the strategy uses
// one. Mean and median require a numeric column; on an int column the
// statistic rounds to the nearest integer so the declared type holds.
func fillValue(p MissingParams, col table.Column, values []any) (any, error) {
	switch p.Strategy {
	case StrategyFillConstant:
		if p.Value == nil {
			return nil, errors.NewSchemaError("fill_constant requires a value").WithParameter("value")
		}
		coerced, err := table.Coerce(p.Value, col.Type)
		if err != nil {
			return nil, errors.NewTypeError("fill value: %s", err.Error()).WithParameter("value")
		}
		return coerced, nil

	case StrategyFillMean, StrategyFillMedian:
		if !col.Type.Numeric() {
			return nil, errors.NewTypeError("%s requires a numeric column, %q is %s", p.Strategy, col.Name, col.Type).WithParameter("strategy")
		}
		nums := make([]float64, 0, len(values))
		for _, v := range values {
			switch x := v.(type) {
			case int64:
				nums = append(nums, float64(x))
			case float64:
				nums = append(nums, x)
			}
		}
		if len(nums) == 0 {
			return nil, nil
		}
		var stat float64
		if p.Strategy == StrategyFillMean {
			sum := 0.0
			for _, n := range nums {
				sum += n
			}
			stat = sum / float64(len(nums))
		} else {
			sort.Float64s(nums)
			mid := len(nums) / 2
			if len(nums)%2 == 0 {
				stat = (nums[mid-1] + nums[mid]) / 2
			} else {
				stat = nums[mid]
			}
		}
		if col.Type == table.TypeInt {
			return int64(math.Round(stat)), nil
		}
		return stat, nil

	case StrategyFillMode:
		counts := make(map[string]int)
		first := make(map[string]int)
		var mode any
		best := 0
		for i, v := range values {
			if v == nil {
				continue
			}
			k := table.FormatValue(v)
			counts[k]++
			if _, ok := first[k]; !ok {
				first[k] = i
			}
			if counts[k] > best || (counts[k] == best && mode != nil && first[k] < first[table.FormatValue(mode)]) {
				best = counts[k]
				mode = v
			}
		}
		return mode, nil
	}
	return nil, nil
}
