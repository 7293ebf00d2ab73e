// Package http wires the session and pipeline API onto chi routers.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"flowforge/internal/correction"
	apperrors "flowforge/internal/errors"
	"flowforge/internal/ingest"
	"flowforge/internal/table"
)

// ETLHandler handles session and pipeline HTTP requests.
type ETLHandler struct {
	service        ETLServiceInterface
	maxUploadBytes int64
	// minFrequencyRatio is the default canonical-share gate for value
	// typo proposals; requests can override it per call.
	minFrequencyRatio float64
	logger            *slog.Logger
}

// NewETLHandler creates a new ETL handler.
func NewETLHandler(service ETLServiceInterface, maxUploadBytes int64, minFrequencyRatio float64, logger *slog.Logger) *ETLHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &ETLHandler{
		service:           service,
		maxUploadBytes:    maxUploadBytes,
		minFrequencyRatio: minFrequencyRatio,
		logger:            logger.With(slog.String("handler", "etl")),
	}
}

// Routes returns the router for session endpoints.
func (h *ETLHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateSession)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Delete("/", h.CloseSession)
		r.Post("/apply", h.Apply)
		r.Post("/undo", h.Undo)
		r.Post("/redo", h.Redo)
		r.Get("/table", h.GetTable)
		r.Get("/history", h.GetHistory)
		r.Get("/export", h.Export)
		r.Route("/corrections", func(r chi.Router) {
			r.Get("/columns", h.ProposeColumnCorrections)
			r.Get("/values", h.ProposeValueCorrections)
			r.Post("/apply", h.ApplyCorrections)
		})
	})
	return r
}

// CreateSessionRequest carries an inline dataset. Alternatively the
// endpoint accepts a multipart CSV upload under the "file" field.
type CreateSessionRequest struct {
	Columns []table.Column `json:"columns"`
	Rows    [][]any        `json:"rows"`
}

// Bind implements render.Binder.
func (r *CreateSessionRequest) Bind(req *http.Request) error {
	if len(r.Columns) == 0 {
		return errors.New("at least one column is required")
	}
	for i, col := range r.Columns {
		if col.Name == "" {
			return errors.New("column name cannot be empty")
		}
		if !col.Type.Valid() {
			return errors.New("unknown column type: " + string(r.Columns[i].Type))
		}
	}
	return nil
}

// SessionResponse describes a freshly created session.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Record    any    `json:"record"`
}

// CreateSession handles POST /api/sessions. The dataset arrives either
// as JSON columns and rows or as an uploaded CSV file.
func (h *ETLHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var cols []table.Column
	var rows [][]any

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		file, _, err := r.FormFile("file")
		if err != nil {
			render.Render(w, r, apperrors.NewErrorResponse(apperrors.InvalidRequestWithError(err)))
			return
		}
		defer file.Close()

		t, err := ingest.ReadCSV(file, ingest.CSVOptions{})
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		cols, rows = t.Columns(), t.Rows()
	} else {
		data := &CreateSessionRequest{}
		if err := render.Bind(r, data); err != nil {
			render.Render(w, r, apperrors.NewErrorResponse(apperrors.InvalidRequestWithError(err)))
			return
		}
		cols, rows = data.Columns, data.Rows
	}

	id, rec, err := h.service.CreateSession(r.Context(), cols, rows)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SessionResponse{SessionID: id, Record: rec})
}

// CloseSession handles DELETE /api/sessions/{sessionID}.
func (h *ETLHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CloseSession(chi.URLParam(r, "sessionID")); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// ApplyRequest names an operation and its parameters.
type ApplyRequest struct {
	Kind       string          `json:"kind"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Bind implements render.Binder.
func (a *ApplyRequest) Bind(req *http.Request) error {
	if a.Kind == "" {
		return errors.New("kind is required")
	}
	return nil
}

// Apply handles POST /api/sessions/{sessionID}/apply.
func (h *ETLHandler) Apply(w http.ResponseWriter, r *http.Request) {
	data := &ApplyRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.InvalidRequestWithError(err)))
		return
	}

	rec, err := h.service.Apply(r.Context(), chi.URLParam(r, "sessionID"), data.Kind, data.Parameters)
	if err != nil {
		// The failed attempt is itself recorded; surface both.
		api := apperrors.FromDomain(err)
		render.Status(r, api.StatusCode)
		render.JSON(w, r, map[string]any{"error": api, "record": rec})
		return
	}
	render.JSON(w, r, map[string]any{"record": rec})
}

// Undo handles POST /api/sessions/{sessionID}/undo.
func (h *ETLHandler) Undo(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Undo(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"record": rec})
}

// Redo handles POST /api/sessions/{sessionID}/redo.
func (h *ETLHandler) Redo(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Redo(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"record": rec})
}

// GetTable handles GET /api/sessions/{sessionID}/table.
func (h *ETLHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.CurrentTable(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// GetHistory handles GET /api/sessions/{sessionID}/history.
func (h *ETLHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	records, err := h.service.History(r.Context(), sessionID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	state, err := h.service.State(r.Context(), sessionID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"records": records, "state": state})
}

// ProposeColumnCorrections handles GET .../corrections/columns. An
// optional repeated "lexicon" query parameter supplies expected column
// names; without it column names are compared against each other.
func (h *ETLHandler) ProposeColumnCorrections(w http.ResponseWriter, r *http.Request) {
	lexicon := r.URL.Query()["lexicon"]
	proposals, err := h.service.ProposeColumnCorrections(r.Context(), chi.URLParam(r, "sessionID"), lexicon)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"proposals": proposals})
}

// ProposeValueCorrections handles GET .../corrections/values?column=X.
func (h *ETLHandler) ProposeValueCorrections(w http.ResponseWriter, r *http.Request) {
	column := r.URL.Query().Get("column")
	if column == "" {
		render.Render(w, r, apperrors.NewErrorResponse(
			apperrors.New(http.StatusBadRequest, "INVALID_REQUEST", "column query parameter is required")))
		return
	}
	ratio := h.minFrequencyRatio
	if raw := r.URL.Query().Get("min_frequency_ratio"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			render.Render(w, r, apperrors.NewErrorResponse(
				apperrors.New(http.StatusBadRequest, "INVALID_REQUEST", "min_frequency_ratio must be in [0, 1]")))
			return
		}
		ratio = parsed
	}
	decisions, err := h.service.ProposeValueCorrections(r.Context(), chi.URLParam(r, "sessionID"), column, ratio)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"proposals": decisions})
}

// ApplyCorrectionsRequest carries reviewed typo decisions.
type ApplyCorrectionsRequest struct {
	Decisions []correction.Decision `json:"decisions"`
}

// Bind implements render.Binder.
func (a *ApplyCorrectionsRequest) Bind(req *http.Request) error {
	if len(a.Decisions) == 0 {
		return errors.New("at least one decision is required")
	}
	return nil
}

// ApplyCorrections handles POST .../corrections/apply.
func (h *ETLHandler) ApplyCorrections(w http.ResponseWriter, r *http.Request) {
	data := &ApplyCorrectionsRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.InvalidRequestWithError(err)))
		return
	}

	rec, err := h.service.ApplyCorrections(r.Context(), chi.URLParam(r, "sessionID"), data.Decisions)
	if err != nil {
		api := apperrors.FromDomain(err)
		render.Status(r, api.StatusCode)
		render.JSON(w, r, map[string]any{"error": api, "record": rec})
		return
	}
	render.JSON(w, r, map[string]any{"record": rec})
}

func (h *ETLHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	api := apperrors.FromDomain(err)
	if api.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	render.Render(w, r, apperrors.NewErrorResponse(api))
}
