// Package httpx holds the JSON response helpers, the domain error to status
// mapping and the middleware shared by every HTTP handler.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps a domain error onto an HTTP status
func StatusFor(err error) int {
	var (
		validation *budget.ValidationError
		parse      *budget.ParseError
		missing    *budget.MissingReferenceError
		constraint *budget.ConstraintError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &validation), errors.As(err, &parse):
		return http.StatusBadRequest
	case errors.As(err, &constraint):
		return http.StatusConflict
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, budget.ErrNotFound), errors.Is(err, storage.ErrUploadNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError logs server-side failures and writes the mapped status. Internal
// error text is never sent to the client.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var validation *budget.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		resp = ErrorResponse{Error: http.StatusText(status)}
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return budget.NewValidationError("body", "is empty")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return budget.NewValidationError("body", "%v", err)
	}
	return nil
}

// ============================================================================
// Query parameters
// ============================================================================

// QueryInt reads an optional integer parameter
func QueryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, budget.NewValidationError(name, "must be an integer, got %q", raw)
	}
	return n, nil
}

// QueryUUID reads an optional UUID parameter
func QueryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, budget.NewValidationError(name, "must be a UUID, got %q", raw)
	}
	return &id, nil
}

// QueryString reads an optional trimmed string parameter
func QueryString(r *http.Request, name string) *string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	return &raw
}

// QueryBool reads an optional boolean parameter, false when absent
func QueryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, budget.NewValidationError(name, "must be a boolean, got %q", raw)
	}
	return b, nil
}

// ParseFilter builds a report filter from year, month, scenario_id,
// budget_item_id, department and capex_opex (cost_type is accepted too).
func ParseFilter(r *http.Request) (budget.Filter, error) {
	var f budget.Filter
	var err error

	if f.Year, err = QueryInt(r, "year"); err != nil {
		return f, err
	}
	if f.Month, err = QueryInt(r, "month"); err != nil {
		return f, err
	}
	if f.ScenarioID, err = QueryUUID(r, "scenario_id"); err != nil {
		return f, err
	}
	if f.BudgetItemID, err = QueryUUID(r, "budget_item_id"); err != nil {
		return f, err
	}
	f.Department = QueryString(r, "department")

	param := "capex_opex"
	raw := QueryString(r, param)
	if raw == nil {
		param = "cost_type"
		raw = QueryString(r, param)
	}
	if raw != nil {
		ct, ok := budget.ParseCostType(*raw)
		if !ok {
			return f, budget.NewValidationError(param, "must be CAPEX or OPEX, got %q", *raw)
		}
		f.CostType = ct
	}
	return f, nil
}

// PathUUID parses a UUID taken from a route variable
func PathUUID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, budget.NewValidationError(name, "must be a UUID, got %q", raw)
	}
	return id, nil
}

// Health answers liveness probes
func Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MethodNotAllowed and NotFound keep router fallbacks in the JSON error shape
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: fmt.Sprintf("method %s not allowed", r.Method)})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("no route for %s", r.URL.Path)})
}
