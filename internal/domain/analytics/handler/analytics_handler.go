package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/FACorreiaa/budget-ledger/internal/domain/analytics"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/httpx"
)

// AnalyticsHandler serves reports, reminders and the dashboard
type AnalyticsHandler struct {
	svc    *analytics.Service
	logger *slog.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(svc *analytics.Service, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, logger: logger}
}

// Register mounts the report routes
func (h *AnalyticsHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/reports/monthly", h.Monthly).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/quarterly", h.Quarterly).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/kpi", h.KPI).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/risk", h.Risk).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/reminders", h.Reminders).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/purchase-forms-prepared", h.PreparedForms).Methods(http.MethodGet)
	r.HandleFunc("/api/budget/purchase-reminders", h.PurchaseReminders).Methods(http.MethodGet)
	r.HandleFunc("/api/budget/purchase-reminders/mark-prepared", h.MarkPrepared).Methods(http.MethodPost)
	r.HandleFunc("/api/dashboard/today", h.Today).Methods(http.MethodGet)
}

func (h *AnalyticsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, h.logger, err)
}

// Monthly returns planned and actual totals per month
func (h *AnalyticsHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	f, err := httpx.ParseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	monthly, err := h.svc.Monthly(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, monthly)
}

// Quarterly returns the four quarter roll-ups
func (h *AnalyticsHandler) Quarterly(w http.ResponseWriter, r *http.Request) {
	f, err := httpx.ParseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quarters, err := h.svc.Quarterly(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, quarters)
}

// KPI returns the dashboard totals
func (h *AnalyticsHandler) KPI(w http.ResponseWriter, r *http.Request) {
	f, err := httpx.ParseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	kpi, err := h.svc.KPI(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, kpi)
}

// Risk returns the risky, idle and overbudget item lists
func (h *AnalyticsHandler) Risk(w http.ResponseWriter, r *http.Request) {
	f, err := httpx.ParseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if f.UntilMonth, err = httpx.QueryInt(r, "until_month"); err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.svc.Risk(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

// Reminders returns the dashboard reminder messages
func (h *AnalyticsHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	f, err := httpx.ParseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reminders, err := h.svc.DashboardReminders(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reminders)
}

// PurchaseReminders lists planned purchases awaiting an expense
func (h *AnalyticsHandler) PurchaseReminders(w http.ResponseWriter, r *http.Request) {
	f, err := httpx.ParseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reminders, err := h.svc.PurchaseReminders(r.Context(), analytics.ReminderQuery{
		Year:       f.Year,
		Month:      f.Month,
		ScenarioID: f.ScenarioID,
		Department: f.Department,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reminders == nil {
		reminders = []analytics.PurchaseReminder{}
	}
	httpx.WriteJSON(w, http.StatusOK, reminders)
}

type markPreparedRequest struct {
	Items []analytics.FormStatusUpdate `json:"items"`
}

// MarkPrepared sets or clears the prepared flag on a batch of purchases
func (h *AnalyticsHandler) MarkPrepared(w http.ResponseWriter, r *http.Request) {
	var req markPreparedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(req.Items) == 0 {
		h.fail(w, r, budget.NewValidationError("items", "at least one item is required"))
		return
	}
	if err := h.svc.MarkFormsPrepared(r.Context(), req.Items); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"updated": len(req.Items)})
}

// PreparedForms lists the purchase forms marked prepared in a year
func (h *AnalyticsHandler) PreparedForms(w http.ResponseWriter, r *http.Request) {
	year, err := httpx.QueryInt(r, "year")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	scenarioID, err := httpx.QueryUUID(r, "scenario_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	forms, err := h.svc.PreparedForms(r.Context(), year, scenarioID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if forms == nil {
		forms = []analytics.PreparedForm{}
	}
	httpx.WriteJSON(w, http.StatusOK, forms)
}

// Today returns today's expense panel
func (h *AnalyticsHandler) Today(w http.ResponseWriter, r *http.Request) {
	scenarioID, err := httpx.QueryUUID(r, "scenario_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	itemID, err := httpx.QueryUUID(r, "budget_item_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	panel, err := h.svc.TodayPanel(r.Context(), scenarioID, itemID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, panel)
}
