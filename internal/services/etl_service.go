// Package services wires the engine components into session-scoped
// operations consumed by the HTTP transport. Each session owns one
// pipeline history; requests within a session are serialized, separate
// sessions run independently.
package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowforge/internal/correction"
	"flowforge/internal/errors"
	"flowforge/internal/fuzzy"
	"flowforge/internal/pipeline"
	"flowforge/internal/table"
	"flowforge/internal/transform"
)

// Broadcaster pushes operation records to the UI. The websocket hub
// implements it; persistence and display are the collaborator's concern.
type Broadcaster interface {
	BroadcastRecord(sessionID string, record pipeline.Record)
}

// noopBroadcaster drops events when no hub is attached (tests, CLI use).
type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastRecord(string, pipeline.Record) {}

// TableView is the read-only projection of the current snapshot handed
// to transports and export adapters.
type TableView struct {
	Columns     []table.Column `json:"columns"`
	Rows        [][]any        `json:"rows"`
	RowCount    int            `json:"row_count"`
	ColumnCount int            `json:"column_count"`
}

// session pairs a history with the mutex that serializes its requests.
type session struct {
	mu      sync.Mutex
	id      string
	history *pipeline.History
	created time.Time
}

// ETLService manages sessions and routes pipeline calls to them.
type ETLService struct {
	mu       sync.RWMutex
	sessions map[string]*session

	registry  *transform.Registry
	corrector *correction.Corrector
	matchOpts fuzzy.Options
	hub       Broadcaster
	logger    *slog.Logger
}

// NewETLService creates the service. A nil hub disables broadcasting.
func NewETLService(registry *transform.Registry, matchOpts fuzzy.Options, hub Broadcaster, logger *slog.Logger) *ETLService {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &ETLService{
		sessions:  make(map[string]*session),
		registry:  registry,
		corrector: correction.New(matchOpts, logger),
		matchOpts: matchOpts,
		hub:       hub,
		logger:    logger.With(slog.String("service", "etl")),
	}
}

// CreateSession loads a dataset into a fresh session and returns its ID.
func (s *ETLService) CreateSession(ctx context.Context, cols []table.Column, rows [][]any) (string, pipeline.Record, error) {
	sess := &session{
		id:      uuid.NewString(),
		history: pipeline.NewHistory(s.registry, s.logger),
		created: time.Now().UTC(),
	}
	rec, err := sess.history.Load(cols, rows)
	if err != nil {
		return "", rec, err
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session created",
		slog.String("session_id", sess.id),
		slog.Int("rows", rec.RowsAfter),
		slog.Int("columns", rec.ColsAfter))
	s.hub.BroadcastRecord(sess.id, rec)
	return sess.id, rec, nil
}

// CloseSession releases a session and every snapshot it retains.
func (s *ETLService) CloseSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return errors.NewNotFoundError("session %q does not exist", sessionID).WithParameter("session_id")
	}
	delete(s.sessions, sessionID)
	s.logger.Info("session closed", slog.String("session_id", sessionID))
	return nil
}

func (s *ETLService) get(sessionID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.NewNotFoundError("session %q does not exist", sessionID).WithParameter("session_id")
	}
	return sess, nil
}

// Apply runs one operation in the session and broadcasts the resulting
// record, failed attempts included.
func (s *ETLService) Apply(ctx context.Context, sessionID, kind string, params json.RawMessage) (pipeline.Record, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return pipeline.Record{}, err
	}
	sess.mu.Lock()
	rec, err := sess.history.Apply(ctx, kind, params)
	sess.mu.Unlock()

	s.hub.BroadcastRecord(sessionID, rec)
	return rec, err
}

// Undo moves the session's cursor back one step.
func (s *ETLService) Undo(ctx context.Context, sessionID string) (pipeline.Record, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return pipeline.Record{}, err
	}
	sess.mu.Lock()
	rec, err := sess.history.Undo()
	sess.mu.Unlock()

	s.hub.BroadcastRecord(sessionID, rec)
	return rec, err
}

// Redo moves the session's cursor forward one step.
func (s *ETLService) Redo(ctx context.Context, sessionID string) (pipeline.Record, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return pipeline.Record{}, err
	}
	sess.mu.Lock()
	rec, err := sess.history.Redo()
	sess.mu.Unlock()

	s.hub.BroadcastRecord(sessionID, rec)
	return rec, err
}

// CurrentTable returns the read-only view of the snapshot at the cursor.
func (s *ETLService) CurrentTable(ctx context.Context, sessionID string) (TableView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return TableView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t := sess.history.CurrentTable()
	if t == nil {
		return TableView{}, errors.NewBoundaryError("no dataset loaded")
	}
	return TableView{
		Columns:     t.Columns(),
		Rows:        t.Rows(),
		RowCount:    t.RowCount(),
		ColumnCount: t.ColumnCount(),
	}, nil
}

// Snapshot returns the current table for export adapters.
func (s *ETLService) Snapshot(ctx context.Context, sessionID string) (*table.Table, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t := sess.history.CurrentTable()
	if t == nil {
		return nil, errors.NewBoundaryError("no dataset loaded")
	}
	return t, nil
}

// PipelineState reports where the session's cursor sits and which
// moves are available.
type PipelineState struct {
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
	Cursor  int  `json:"cursor"`
}

// State returns the session's undo/redo availability.
func (s *ETLService) State(ctx context.Context, sessionID string) (PipelineState, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return PipelineState{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return PipelineState{
		CanUndo: sess.history.CanUndo(),
		CanRedo: sess.history.CanRedo(),
		Cursor:  sess.history.Cursor(),
	}, nil
}

// History returns the session's audit trail.
func (s *ETLService) History(ctx context.Context, sessionID string) ([]pipeline.Record, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.history.Audit(), nil
}

// ProposeColumnCorrections surfaces likely column-name typos for the
// session's current table.
func (s *ETLService) ProposeColumnCorrections(ctx context.Context, sessionID string, lexicon []string) ([]correction.ColumnProposal, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t := sess.history.CurrentTable()
	if t == nil {
		return nil, errors.NewBoundaryError("no dataset loaded")
	}
	return s.corrector.ProposeColumnCorrections(ctx, t, lexicon)
}

// ProposeValueCorrections surfaces likely cell-value typos in a column.
func (s *ETLService) ProposeValueCorrections(ctx context.Context, sessionID, column string, minFrequencyRatio float64) ([]correction.Decision, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t := sess.history.CurrentTable()
	if t == nil {
		return nil, errors.NewBoundaryError("no dataset loaded")
	}
	return s.corrector.ProposeValueCorrections(ctx, t, column, minFrequencyRatio)
}

// ApplyCorrections records accepted decisions as a fix_typos operation.
func (s *ETLService) ApplyCorrections(ctx context.Context, sessionID string, decisions []correction.Decision) (pipeline.Record, error) {
	params, err := json.Marshal(transform.FixTyposParams{Decisions: decisions})
	if err != nil {
		return pipeline.Record{}, errors.NewSchemaError("cannot encode decisions: %s", err.Error()).WithParameter("decisions")
	}
	return s.Apply(ctx, sessionID, transform.KindFixTypos, params)
}

// SessionCount reports the number of live sessions.
func (s *ETLService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
