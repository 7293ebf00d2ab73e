package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"flowforge/internal/errors"
	"flowforge/internal/table"
)

// RenameColumnsParams maps existing column names to new names.
type RenameColumnsParams struct {
	Mappings map[string]string `json:"mappings" validate:"required,min=1"`
}

// RenameColumnsOperation renames columns. A target name colliding with
// an existing column or with another target fails with a conflict error
// before anything is renamed.
type RenameColumnsOperation struct{}

func (o *RenameColumnsOperation) Kind() string { return KindRenameColumns }

func (o *RenameColumnsOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p RenameColumnsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}

	// Validate the whole batch up front: sources exist, targets collide
	// neither with surviving names nor with each other.
	remaining := make(map[string]bool)
	for _, name := range t.ColumnNames() {
		remaining[name] = true
	}
	for src := range p.Mappings {
		if !t.HasColumn(src) {
			return nil, "", errors.NewNotFoundError("column %q does not exist", src).WithParameter("mappings")
		}
		delete(remaining, src)
	}
	targets := make(map[string]bool)
	for src, dst := range p.Mappings {
		if dst == "" {
			return nil, "", errors.NewSchemaError("column %q renamed to an empty name", src).WithParameter("mappings")
		}
		if remaining[dst] || targets[dst] {
			return nil, "", errors.NewConflictError("target column name %q already exists", dst).WithParameter("mappings")
		}
		targets[dst] = true
	}

	out := t
	var err error
	for src, dst := range p.Mappings {
		// Route through a collision-free intermediate so swaps inside one
		// batch cannot trip the per-step conflict check.
		out, err = out.WithColumnRenamed(src, "\x00"+dst)
		if err != nil {
			return nil, "", err
		}
	}
	for _, dst := range mappingTargets(p.Mappings) {
		out, err = out.WithColumnRenamed("\x00"+dst, dst)
		if err != nil {
			return nil, "", err
		}
	}
	return out, fmt.Sprintf("renamed %d columns", len(p.Mappings)), nil
}

func mappingTargets(mappings map[string]string) []string {
	out := make([]string, 0, len(mappings))
	for _, dst := range mappings {
		out = append(out, dst)
	}
	return out
}

// DropColumnsParams names the columns to remove.
type DropColumnsParams struct {
	Columns []string `json:"columns" validate:"required,min=1"`
}

// DropColumnsOperation removes columns. Dropping a non-existent column
// fails with a not-found error before anything is dropped.
type DropColumnsOperation struct{}

func (o *DropColumnsOperation) Kind() string { return KindDropColumns }

func (o *DropColumnsOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p DropColumnsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}
	if err := requireColumns(t, p.Columns); err != nil {
		return nil, "", err
	}

	out := t
	var err error
	for _, name := range p.Columns {
		out, err = out.WithoutColumn(name)
		if err != nil {
			return nil, "", err
		}
	}
	return out, "dropped columns: " + strings.Join(p.Columns, ", "), nil
}

// ReorderColumnsParams gives the complete new column order.
type ReorderColumnsParams struct {
	Order []string `json:"order" validate:"required,min=1"`
}

// ReorderColumnsOperation reorders columns. The order must be a
// permutation of the existing names, else a schema error.
type ReorderColumnsOperation struct{}

func (o *ReorderColumnsOperation) Kind() string { return KindReorderColumns }

func (o *ReorderColumnsOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p ReorderColumnsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}
	out, err := t.WithColumnOrder(p.Order)
	if err != nil {
		return nil, "", err
	}
	return out, "reordered columns", nil
}
