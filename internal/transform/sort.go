package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"flowforge/internal/table"
)

// SortKey names one sort column and its direction.
type SortKey struct {
	Column     string `json:"column" validate:"required"`
	Descending bool   `json:"descending"`
}

// SortParams configures a multi-key stable sort.
type SortParams struct {
	Keys []SortKey `json:"keys" validate:"required,min=1,dive"`
}

// SortOperation orders rows by one or more keys. The sort is stable and
// nulls order last regardless of direction.
type SortOperation struct{}

func (o *SortOperation) Kind() string { return KindSort }

func (o *SortOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p SortParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}

	keyValues := make([][]any, len(p.Keys))
	for i, k := range p.Keys {
		vals, err := t.Values(k.Column)
		if err != nil {
			return nil, "", err
		}
		keyValues[i] = vals
	}

	indices := make([]int, t.RowCount())
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		ra, rb := indices[a], indices[b]
		for i, k := range p.Keys {
			va, vb := keyValues[i][ra], keyValues[i][rb]
			if va == nil && vb == nil {
				continue
			}
			// Nulls sort after everything.
			if va == nil {
				return false
			}
			if vb == nil {
				return true
			}
			c := compareValues(va, vb)
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	out, err := t.SelectRows(indices)
	if err != nil {
		return nil, "", err
	}

	desc := make([]string, len(p.Keys))
	for i, k := range p.Keys {
		dir := "asc"
		if k.Descending {
			dir = "desc"
		}
		desc[i] = fmt.Sprintf("%s (%s)", k.Column, dir)
	}
	return out, "sorted by " + strings.Join(desc, ", "), nil
}
