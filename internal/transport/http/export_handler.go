package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "flowforge/internal/errors"
	"flowforge/internal/exporter"
)

// Export handles GET /api/sessions/{sessionID}/export?format=csv|xlsx
// and streams the current snapshot as a download.
func (h *ETLHandler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	t, err := h.service.Snapshot(r.Context(), sessionID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="flowforge-%s.csv"`, stamp))
		if err := exporter.WriteCSV(w, t, exporter.CSVOptions{BOMPrefix: true}); err != nil {
			h.logger.Error("csv export failed", "error", err.Error())
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="flowforge-%s.xlsx"`, stamp))
		if err := exporter.WriteExcel(w, t, exporter.ExcelOptions{FreezeHeader: true}); err != nil {
			h.logger.Error("excel export failed", "error", err.Error())
		}
	default:
		render.Render(w, r, apperrors.NewErrorResponse(
			apperrors.New(http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("unsupported export format: %q", format))))
	}
}
