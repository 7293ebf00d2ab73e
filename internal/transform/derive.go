package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"flowforge/internal/table"
)

// DeriveParams configures a derived column.
type DeriveParams struct {
	NewColumnName string `json:"new_column_name" validate:"required"`
	Expression    string `json:"expression" validate:"required"`
}

// DeriveOperation appends a column computed from an expression over
// existing columns. The expression is compiled and type-checked before
// any row is evaluated.
type DeriveOperation struct{}

func (o *DeriveOperation) Kind() string { return KindDerive }

func (o *DeriveOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p DeriveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}

	node, err := compileExpression(p.Expression, t)
	if err != nil {
		return nil, "", err
	}

	values := make([]any, t.RowCount())
	for r := 0; r < t.RowCount(); r++ {
		values[r] = node.eval(t.Row(r))
	}

	out, err := t.WithColumnAppended(table.Column{Name: p.NewColumnName, Type: node.typ}, values)
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("derived column %q as %s from %q", p.NewColumnName, node.typ, p.Expression), nil
}
