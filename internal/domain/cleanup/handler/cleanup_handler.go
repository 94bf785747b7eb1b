package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/FACorreiaa/budget-ledger/internal/domain/cleanup"
	"github.com/FACorreiaa/budget-ledger/internal/httpx"
)

// CleanupHandler serves bulk cleanup and scenario deletion
type CleanupHandler struct {
	svc    *cleanup.Service
	logger *slog.Logger
}

// NewCleanupHandler creates a new cleanup handler
func NewCleanupHandler(svc *cleanup.Service, logger *slog.Logger) *CleanupHandler {
	return &CleanupHandler{svc: svc, logger: logger}
}

// Register mounts the cleanup routes
func (h *CleanupHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/cleanup", h.Cleanup).Methods(http.MethodPost)
	r.HandleFunc("/api/scenarios/{id}", h.DeleteScenario).Methods(http.MethodDelete)
}

// Cleanup runs one cleanup. An empty body cleans everything.
func (h *CleanupHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanup.Request
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
	}

	result, err := h.svc.Run(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

// DeleteScenario removes a scenario; ?force=true cascades to its plans and expenses
func (h *CleanupHandler) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID("id", mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	force, err := httpx.QueryBool(r, "force")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	deletion, err := h.svc.DeleteScenario(r.Context(), id, force)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, deletion)
}
