package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowforge/internal/fuzzy"
	"flowforge/internal/services"
	"flowforge/internal/transform"
)

func newTestRouter(t *testing.T) (chi.Router, *services.ETLService) {
	t.Helper()
	svc := services.NewETLService(transform.NewRegistry(), fuzzy.Options{}, nil, slog.Default())
	handler := NewETLHandler(svc, 0, 0, slog.Default())
	r := chi.NewRouter()
	r.Mount("/api/sessions", handler.Routes())
	return r, svc
}

func createSession(t *testing.T, router chi.Router) string {
	t.Helper()
	body := `{
		"columns": [
			{"name": "Name", "type": "string"},
			{"name": "Age", "type": "int"}
		],
		"rows": [["Alice", 30], ["Bob", 25], ["Alice", 30]]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestCreateSessionJSON(t *testing.T) {
	router, svc := newTestRouter(t)
	id := createSession(t, router)
	assert.Equal(t, 1, svc.SessionCount())
	assert.NotEmpty(t, id)
}

func TestCreateSessionValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"no columns", `{"columns": [], "rows": []}`},
		{"bad type", `{"columns": [{"name": "a", "type": "decimal"}], "rows": []}`},
		{"empty name", `{"columns": [{"name": "", "type": "int"}], "rows": []}`},
		{"malformed", `{`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateSessionCSVUpload(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "data.csv")
	require.NoError(t, err)
	fmt.Fprint(fw, "Name,Age\nAlice,30\nBob,25\n")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	tableRec := httptest.NewRecorder()
	router.ServeHTTP(tableRec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+resp.SessionID+"/table", nil))
	require.Equal(t, http.StatusOK, tableRec.Code)
	assert.Contains(t, tableRec.Body.String(), `"row_count":2`)
}

func TestApplyOperation(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	body := `{"kind": "dedupe", "parameters": {"keys": ["Name", "Age"]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/apply", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Record struct {
			Status    string `json:"status"`
			RowsAfter int    `json:"rows_after"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "applied", resp.Record.Status)
	assert.Equal(t, 2, resp.Record.RowsAfter)
}

func TestApplyUnknownKind(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	body := `{"kind": "transmogrify"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/apply", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "record")
}

func TestApplyMissingKind(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/apply", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUndoRedoFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	apply := func(body string) {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/apply", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	apply(`{"kind": "dedupe", "parameters": {"keys": ["Name"]}}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/undo", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Table back to 3 rows.
	tableRec := httptest.NewRecorder()
	router.ServeHTTP(tableRec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/table", nil))
	assert.Contains(t, tableRec.Body.String(), `"row_count":3`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/redo", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Undo past the load is a conflict.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/undo", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/undo", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetHistoryIncludesState(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Records []map[string]any `json:"records"`
		State   struct {
			CanUndo bool `json:"can_undo"`
			CanRedo bool `json:"can_redo"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "load", resp.Records[0]["operation_kind"])
	assert.False(t, resp.State.CanUndo)
	assert.False(t, resp.State.CanRedo)
}

func TestSessionNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{
		"/api/sessions/nope/table",
		"/api/sessions/nope/history",
		"/api/sessions/nope/export",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseSession(t *testing.T) {
	router, svc := newTestRouter(t)
	id := createSession(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, svc.SessionCount())
}

func TestCorrectionsFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{
		"columns": [{"name": "City", "type": "string"}],
		"rows": [["London"], ["London"], ["London"], ["Londn"]]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.SessionID

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/sessions/"+id+"/corrections/values?column=City", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var proposals struct {
		Proposals []map[string]any `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proposals))
	require.NotEmpty(t, proposals.Proposals)
	assert.Equal(t, "Londn", proposals.Proposals[0]["original"])
	assert.Equal(t, "London", proposals.Proposals[0]["replacement"])

	applyBody := `{"decisions": [{"column": "City", "original": "Londn", "replacement": "London", "accepted": true}]}`
	applyReq := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/corrections/apply", strings.NewReader(applyBody))
	applyReq.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, applyReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/table", nil))
	assert.NotContains(t, rec.Body.String(), "Londn")
}

func TestCorrectionsValuesRequiresColumn(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/sessions/"+id+"/corrections/values", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/export?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	assert.Contains(t, rec.Body.String(), "Name,Age")
}

func TestExportXLSX(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/export?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, rec.Body.Len())
}

func TestExportUnknownFormat(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createSession(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/export?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
