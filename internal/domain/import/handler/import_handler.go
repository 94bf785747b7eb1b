package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	importservice "github.com/FACorreiaa/budget-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/budget-ledger/internal/httpx"
	"github.com/FACorreiaa/budget-ledger/pkg/storage"
)

// Importer is the part of the import service the handler drives
type Importer interface {
	Import(ctx context.Context, req importservice.ImportRequest) (*importservice.ImportSummary, error)
	Replay(ctx context.Context, uploadID uuid.UUID) (*importservice.ImportSummary, error)
}

// UploadLister lists archived uploads
type UploadLister interface {
	List(ctx context.Context) ([]*storage.Upload, error)
}

// ImportHandler serves uploads and replays
type ImportHandler struct {
	importSvc Importer
	uploads   UploadLister // optional
	maxBytes  int64
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler. Uploads larger than maxBytes
// are rejected with 413.
func NewImportHandler(importSvc Importer, maxBytes int64, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// WithUploads enables the upload listing endpoint
func (h *ImportHandler) WithUploads(uploads UploadLister) *ImportHandler {
	h.uploads = uploads
	return h
}

// Register mounts the import routes
func (h *ImportHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/import", h.Import).Methods(http.MethodPost)
	r.HandleFunc("/api/uploads", h.ListUploads).Methods(http.MethodGet)
	r.HandleFunc("/api/uploads/{id}/replay", h.Replay).Methods(http.MethodPost)
}

// Import accepts a multipart upload in the "file" field. An optional
// "scenario" field names the scenario for records without one.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		httpx.WriteError(w, r, h.logger, &http.MaxBytesError{Limit: h.maxBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		httpx.WriteError(w, r, h.logger, budget.NewValidationError("file", "multipart form expected: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, r, h.logger, budget.NewValidationError("file", "is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpx.WriteError(w, r, h.logger, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	if len(data) == 0 {
		httpx.WriteError(w, r, h.logger, budget.NewValidationError("file", "is empty"))
		return
	}

	summary, err := h.importSvc.Import(r.Context(), importservice.ImportRequest{
		Filename: header.Filename,
		Data:     data,
		Scenario: r.FormValue("scenario"),
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

// Replay imports an archived upload again
func (h *ImportHandler) Replay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID("id", mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	summary, err := h.importSvc.Replay(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

// ListUploads returns the archive, oldest first
func (h *ImportHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		httpx.WriteJSON(w, http.StatusOK, []*storage.Upload{})
		return
	}
	uploads, err := h.uploads.List(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, fmt.Errorf("failed to list uploads: %w", err))
		return
	}
	if uploads == nil {
		uploads = []*storage.Upload{}
	}
	httpx.WriteJSON(w, http.StatusOK, uploads)
}
