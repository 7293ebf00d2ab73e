package http

import (
	"context"
	"encoding/json"

	"flowforge/internal/correction"
	"flowforge/internal/pipeline"
	"flowforge/internal/services"
	"flowforge/internal/table"
)

// ETLServiceInterface defines the session and pipeline operations the
// handlers depend on.
type ETLServiceInterface interface {
	CreateSession(ctx context.Context, cols []table.Column, rows [][]any) (string, pipeline.Record, error)
	CloseSession(sessionID string) error

	Apply(ctx context.Context, sessionID, kind string, params json.RawMessage) (pipeline.Record, error)
	Undo(ctx context.Context, sessionID string) (pipeline.Record, error)
	Redo(ctx context.Context, sessionID string) (pipeline.Record, error)

	CurrentTable(ctx context.Context, sessionID string) (services.TableView, error)
	Snapshot(ctx context.Context, sessionID string) (*table.Table, error)
	History(ctx context.Context, sessionID string) ([]pipeline.Record, error)
	State(ctx context.Context, sessionID string) (services.PipelineState, error)

	ProposeColumnCorrections(ctx context.Context, sessionID string, lexicon []string) ([]correction.ColumnProposal, error)
	ProposeValueCorrections(ctx context.Context, sessionID, column string, minFrequencyRatio float64) ([]correction.Decision, error)
	ApplyCorrections(ctx context.Context, sessionID string, decisions []correction.Decision) (pipeline.Record, error)
}
