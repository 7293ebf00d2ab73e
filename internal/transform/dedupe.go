package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"flowforge/internal/table"
)

// DedupeParams configures duplicate-row removal. Keys defaults to all
// columns.
type DedupeParams struct {
	Keys []string `json:"keys"`
	Keep string   `json:"keep" validate:"omitempty,oneof=first last"`
}

// DedupeOperation removes duplicate rows under a key column set, keeping
// either the first or last occurrence. Kept rows preserve their original
// relative order; a table with no duplicates passes through unchanged.
type DedupeOperation struct{}

func (o *DedupeOperation) Kind() string { return KindDedupe }

func (o *DedupeOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p DedupeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}
	if p.Keep == "" {
		p.Keep = "first"
	}
	keys := p.Keys
	if len(keys) == 0 {
		keys = t.ColumnNames()
	}
	if err := requireColumns(t, keys); err != nil {
		return nil, "", err
	}

	keyData := make([][]any, len(keys))
	for i, k := range keys {
		vals, err := t.Values(k)
		if err != nil {
			return nil, "", err
		}
		keyData[i] = vals
	}

	rowKey := func(r int) string {
		var b strings.Builder
		for _, col := range keyData {
			v := col[r]
			if v == nil {
				b.WriteString("\x00null")
			} else {
				fmt.Fprintf(&b, "\x00%T:%s", v, table.FormatValue(v))
			}
		}
		return b.String()
	}

	chosen := make(map[string]int, t.RowCount())
	order := make([]string, 0, t.RowCount())
	for r := 0; r < t.RowCount(); r++ {
		k := rowKey(r)
		if _, seen := chosen[k]; !seen {
			chosen[k] = r
			order = append(order, k)
		} else if p.Keep == "last" {
			chosen[k] = r
		}
	}

	if len(order) == t.RowCount() {
		// No duplicates: the input snapshot is the result, still recorded
		// as a real history entry by the caller.
		return t, "no duplicate rows found", nil
	}

	// Kept rows in original relative order.
	kept := make([]int, 0, len(order))
	for r := 0; r < t.RowCount(); r++ {
		k := rowKey(r)
		if chosen[k] == r {
			kept = append(kept, r)
		}
	}

	out, err := t.SelectRows(kept)
	if err != nil {
		return nil, "", err
	}
	removed := t.RowCount() - out.RowCount()
	return out, fmt.Sprintf("removed %d duplicate rows (keys: %s, keep=%s)", removed, strings.Join(keys, ", "), p.Keep), nil
}
