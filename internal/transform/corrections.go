package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"flowforge/internal/correction"
	"flowforge/internal/table"
)

// FixTyposParams carries the accepted correction decisions to apply.
type FixTyposParams struct {
	Decisions []correction.Decision `json:"decisions" validate:"required,min=1"`
}

// FixTyposOperation turns accepted correction decisions into a table
// mutation: column decisions rename, value decisions rewrite matching
// cells. This is the apply step of the typo corrector, recorded in the
// pipeline history like any other operation.
type FixTyposOperation struct{}

func (o *FixTyposOperation) Kind() string { return KindFixTypos }

func (o *FixTyposOperation) Apply(ctx context.Context, t *table.Table, raw json.RawMessage) (*table.Table, string, error) {
	var p FixTyposParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, "", err
	}

	out, err := correction.ApplyCorrections(t, p.Decisions)
	if err != nil {
		return nil, "", err
	}

	accepted := 0
	for _, d := range p.Decisions {
		if d.Accepted {
			accepted++
		}
	}
	return out, fmt.Sprintf("applied %d accepted corrections", accepted), nil
}
