package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/export"
	"github.com/FACorreiaa/budget-ledger/internal/httpx"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportHandler serves ledger downloads
type ExportHandler struct {
	svc    *export.Service
	logger *slog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(svc *export.Service, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{svc: svc, logger: logger}
}

// Register mounts the export routes
func (h *ExportHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/export/csv", h.download("ledger", "csv", h.svc.WriteCSV)).Methods(http.MethodGet)
	r.HandleFunc("/api/export/xlsx", h.download("ledger", "xlsx", h.svc.WriteXLSX)).Methods(http.MethodGet)
	r.HandleFunc("/api/export/quarterly.csv", h.download("quarterly", "csv", h.svc.WriteQuarterlyCSV)).Methods(http.MethodGet)
}

type writeFunc func(ctx context.Context, w io.Writer, f budget.Filter) error

// download renders the whole file before writing so a failure still gets an
// error response instead of a truncated attachment.
func (h *ExportHandler) download(name, ext string, write writeFunc) http.HandlerFunc {
	contentType := contentTypeCSV
	if ext == "xlsx" {
		contentType = contentTypeXLSX
	}

	return func(w http.ResponseWriter, r *http.Request) {
		f, err := httpx.ParseFilter(r)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}

		var buf bytes.Buffer
		if err := write(r.Context(), &buf, f); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%d.%s"`, name, f.Year, ext))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			h.logger.Warn("export download interrupted", "file", name, "error", err)
		}
	}
}
