package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"flowforge/internal/errors"
	"flowforge/internal/table"
)

// Conversion failure policies
const (
	OnFailureFail         = "fail"
	OnFailureNull         = "null"
	OnFailureKeepOriginal = "keep_original"
)

// ConvertParams configures a column type conversion.
type ConvertParams struct {
	Column     string `json:"column" validate:"required"`
	TargetType string `json:"target_type" validate:"required,oneof=string int float bool datetime categorical"`
	OnFailure  string `json:"on_failure" validate:"omitempty,oneof=fail null keep_original"`
}

// ConvertOperation changes a column's declared type. The declared type
// always updates atomically with the data: "fail" aborts on the first
// unconvertible value leaving the table untouched, "null" turns failures
// into nulls, and "keep_original" skips the conversion entirely when any
// value would fail, so a column is never partially typed.
type ConvertOperation struct{}

func (o *ConvertOperation) Kind() string { return KindConvert }

func (o *ConvertOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p ConvertParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}
	if p.OnFailure == "" {
		p.OnFailure = OnFailureFail
	}
	target := table.Type(p.TargetType)

	values, err := t.Values(p.Column)
	if err != nil {
		return nil, "", err
	}

	converted := make([]any, len(values))
	failures := 0
	for r, v := range values {
		if v == nil {
			continue
		}
		cv, cerr := table.Coerce(v, target)
		if cerr != nil {
			switch p.OnFailure {
			case OnFailureFail:
				return nil, "", errors.NewTypeError("row %d, column %q: %s", r, p.Column, cerr.Error()).WithParameter("column")
			case OnFailureNull:
				failures++
				continue
			case OnFailureKeepOriginal:
				// One unconvertible value keeps the whole column as-is.
				return t, fmt.Sprintf("kept %q unchanged: value at row %d does not convert to %s", p.Column, r, target), nil
			}
		}
		converted[r] = cv
	}

	out, err := t.WithColumnCast(p.Column, converted, target)
	if err != nil {
		return nil, "", err
	}
	summary := fmt.Sprintf("converted %q to %s", p.Column, target)
	if failures > 0 {
		summary += fmt.Sprintf(" (%d values set to null)", failures)
	}
	return out, summary, nil
}
