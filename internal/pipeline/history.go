// Package pipeline implements the ordered, undoable history of
// transformations applied to a tabular dataset. A History owns the
// sequence of table snapshots it has created: snapshots and records are
// kept in lockstep, and the snapshot at the cursor is always the table
// that replaying the applied records would produce.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flowforge/internal/errors"
	"flowforge/internal/table"
	"flowforge/internal/transform"
)

// Record statuses
const (
	StatusApplied = "applied"
	StatusFailed  = "failed"
)

// Record kinds for entries that are not catalogue operations
const (
	KindLoad = "load"
	KindUndo = "undo"
	KindRedo = "redo"
)

// Record is one immutable audit entry describing an attempted operation.
type Record struct {
	ID         string          `json:"id"`
	Kind       string          `json:"operation_kind"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     string          `json:"status"`
	Error      string          `json:"error_detail,omitempty"`
	RowsBefore int             `json:"rows_before"`
	RowsAfter  int             `json:"rows_after"`
	ColsBefore int             `json:"cols_before"`
	ColsAfter  int             `json:"cols_after"`
}

// History is the linear undo/redo log of one session. It is not safe for
// concurrent use; the owning session serializes access.
type History struct {
	registry *transform.Registry
	logger   *slog.Logger

	// applied records and their resulting snapshots, in lockstep;
	// snapshots[i] is the table after records[i]. Index 0 is the load.
	records   []Record
	snapshots []*table.Table
	cursor    int

	// audit holds every attempt, including failures and undo/redo moves.
	audit []Record
}

// NewHistory creates an empty history backed by the given operation
// catalogue.
func NewHistory(registry *transform.Registry, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		registry: registry,
		logger:   logger.With(slog.String("component", "pipeline")),
	}
}

// Empty reports whether no dataset has been loaded yet.
func (h *History) Empty() bool { return len(h.snapshots) == 0 }

// Load installs the initial snapshot, moving the history from Empty to
// Active. Loading twice fails with a conflict error.
func (h *History) Load(cols []table.Column, rows [][]any) (Record, error) {
	if !h.Empty() {
		return Record{}, errors.NewConflictError("a dataset is already loaded")
	}
	t, err := table.Load(cols, rows)
	rec := Record{
		ID:        uuid.NewString(),
		Kind:      KindLoad,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		h.audit = append(h.audit, rec)
		return rec, err
	}
	rec.Status = StatusApplied
	rec.RowsAfter = t.RowCount()
	rec.ColsAfter = t.ColumnCount()

	h.records = append(h.records, rec)
	h.snapshots = append(h.snapshots, t)
	h.cursor = 0
	h.audit = append(h.audit, rec)

	h.logger.Info("dataset loaded",
		slog.Int("rows", t.RowCount()),
		slog.Int("columns", t.ColumnCount()))
	return rec, nil
}

// Apply runs an operation against the current snapshot. On success the
// record is appended, any redo tail beyond the cursor is discarded, and
// the cursor advances. On failure the attempt is recorded for audit, the
// cursor stays put, and the current table is untouched.
func (h *History) Apply(ctx context.Context, kind string, params json.RawMessage) (Record, error) {
	rec := Record{
		ID:         uuid.NewString(),
		Kind:       kind,
		Parameters: params,
		Timestamp:  time.Now().UTC(),
	}
	if h.Empty() {
		err := errors.NewBoundaryError("no dataset loaded")
		rec.Status = StatusFailed
		rec.Error = err.Error()
		h.audit = append(h.audit, rec)
		return rec, err
	}

	current := h.snapshots[h.cursor]
	rec.RowsBefore = current.RowCount()
	rec.ColsBefore = current.ColumnCount()

	fail := func(err error) (Record, error) {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		h.audit = append(h.audit, rec)
		h.logger.Warn("operation failed",
			slog.String("operation_kind", kind),
			slog.String("error", err.Error()))
		return rec, err
	}

	op, err := h.registry.Get(kind)
	if err != nil {
		return fail(err)
	}
	next, summary, err := op.Apply(ctx, current, params)
	if err != nil {
		return fail(err)
	}

	rec.Status = StatusApplied
	rec.Summary = summary
	rec.RowsAfter = next.RowCount()
	rec.ColsAfter = next.ColumnCount()

	// Linear undo semantics: a new apply discards the redo tail.
	h.records = append(h.records[:h.cursor+1], rec)
	h.snapshots = append(h.snapshots[:h.cursor+1], next)
	h.cursor++
	h.audit = append(h.audit, rec)

	h.logger.Info("operation applied",
		slog.String("operation_kind", kind),
		slog.String("summary", summary),
		slog.Int("rows", next.RowCount()))
	return rec, nil
}

// Undo moves the cursor back one step. Prior snapshots are retained, so
// no re-execution happens. Undoing past the initial load fails with a
// boundary error.
func (h *History) Undo() (Record, error) {
	rec := Record{ID: uuid.NewString(), Kind: KindUndo, Timestamp: time.Now().UTC()}
	if h.Empty() || h.cursor == 0 {
		err := errors.NewBoundaryError("nothing to undo")
		rec.Status = StatusFailed
		rec.Error = err.Error()
		h.audit = append(h.audit, rec)
		return rec, err
	}
	undone := h.records[h.cursor]
	h.cursor--

	rec.Status = StatusApplied
	rec.Summary = "undid " + undone.Kind
	rec.RowsBefore = undone.RowsAfter
	rec.ColsBefore = undone.ColsAfter
	rec.RowsAfter = h.snapshots[h.cursor].RowCount()
	rec.ColsAfter = h.snapshots[h.cursor].ColumnCount()
	h.audit = append(h.audit, rec)
	return rec, nil
}

// Redo moves the cursor forward over a previously undone record. Redoing
// past the latest record fails with a boundary error.
func (h *History) Redo() (Record, error) {
	rec := Record{ID: uuid.NewString(), Kind: KindRedo, Timestamp: time.Now().UTC()}
	if h.Empty() || h.cursor >= len(h.records)-1 {
		err := errors.NewBoundaryError("nothing to redo")
		rec.Status = StatusFailed
		rec.Error = err.Error()
		h.audit = append(h.audit, rec)
		return rec, err
	}
	h.cursor++
	redone := h.records[h.cursor]

	rec.Status = StatusApplied
	rec.Summary = "redid " + redone.Kind
	rec.RowsAfter = h.snapshots[h.cursor].RowCount()
	rec.ColsAfter = h.snapshots[h.cursor].ColumnCount()
	h.audit = append(h.audit, rec)
	return rec, nil
}

// CurrentTable returns the snapshot at the cursor, nil while Empty.
func (h *History) CurrentTable() *table.Table {
	if h.Empty() {
		return nil
	}
	return h.snapshots[h.cursor]
}

// CanUndo reports whether the cursor can move backward.
func (h *History) CanUndo() bool { return !h.Empty() && h.cursor > 0 }

// CanRedo reports whether the cursor can move forward.
func (h *History) CanRedo() bool { return !h.Empty() && h.cursor < len(h.records)-1 }

// Cursor returns the current cursor position among applied records.
func (h *History) Cursor() int { return h.cursor }

// AppliedRecords returns a copy of the applied records up to and
// including the cursor plus the retained redo tail.
func (h *History) AppliedRecords() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Audit returns a copy of every attempted operation, failures included.
func (h *History) Audit() []Record {
	out := make([]Record, len(h.audit))
	copy(out, h.audit)
	return out
}
