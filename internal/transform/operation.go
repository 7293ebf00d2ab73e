// Package transform implements the catalogued transformation operations
// of the pipeline. Every operation is a pure function from a table
// snapshot and parameters to a new snapshot or a typed error: parameters
// are validated in full before any row is touched, so a failed operation
// never leaves a partially-applied table.
package transform

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	"flowforge/internal/errors"
	"flowforge/internal/table"
)

// Operation kinds
const (
	KindDedupe        = "dedupe"
	KindMissing       = "missing"
	KindFilter        = "filter"
	KindSort          = "sort"
	KindRenameColumns = "rename_columns"
	KindDropColumns   = "drop_columns"
	KindReorderColumns = "reorder_columns"
	KindConvert       = "convert"
	KindDerive        = "derive"
	KindText          = "text"
	KindFixTypos      = "fix_typos"
)

// Operation is one catalogued transformation. Apply returns the new
// snapshot plus a human-readable summary for the audit trail.
type Operation interface {
	Kind() string
	Apply(ctx context.Context, t *table.Table, params json.RawMessage) (*table.Table, string, error)
}

var validate = validator.New()

// decodeParams unmarshals raw operation parameters into v and runs
// struct validation. Failures surface as schema errors naming the
// offending field.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, v); err != nil {
			return errors.NewSchemaError("malformed parameters: %s", err.Error()).WithParameter("parameters")
		}
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if ok := errorsAs(err, &verrs); ok && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].Field())
			return errors.NewSchemaError("invalid parameter %s: failed %q constraint", field, verrs[0].Tag()).WithParameter(field)
		}
		return errors.NewSchemaError("invalid parameters: %s", err.Error()).WithParameter("parameters")
	}
	return nil
}

// errorsAs is a tiny indirection so decodeParams stays readable.
func errorsAs(err error, target *validator.ValidationErrors) bool {
	e, ok := err.(validator.ValidationErrors)
	if ok {
		*target = e
	}
	return ok
}

// requireColumns verifies every named column exists.
func requireColumns(t *table.Table, names []string) error {
	for _, name := range names {
		if !t.HasColumn(name) {
			return errors.NewNotFoundError("column %q does not exist", name).WithParameter("column")
		}
	}
	return nil
}
