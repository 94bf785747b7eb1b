package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
)

const (
	maxMonthWarnings   = 3
	maxIdleSuggestions = 3
	maxTodayEntries    = 5
	idleMonthsNotice   = 3
	neverSpent         = 999
)

var monthNamesTR = [12]string{
	"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran",
	"Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık",
}

// Reminder severities
const (
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Reminder is a dashboard notice
type Reminder struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ============================================================================
// Purchase reminders
// ============================================================================

// ReminderQuery selects the planned purchases of one month
type ReminderQuery struct {
	Year       int
	Month      int
	ScenarioID *uuid.UUID
	Department *string
}

// PurchaseReminder is a planned purchase with no recorded expense in its month
type PurchaseReminder struct {
	BudgetItemID   uuid.UUID `json:"budget_item_id"`
	BudgetCode     string    `json:"budget_code"`
	BudgetName     string    `json:"budget_name"`
	Year           int       `json:"year"`
	Month          int       `json:"month"`
	ScenarioID     uuid.UUID `json:"scenario_id"`
	Department     string    `json:"department"`
	IsFormPrepared bool      `json:"is_form_prepared"`
}

// FormStatusUpdate sets the sticky "form prepared" flag of one planned purchase
type FormStatusUpdate struct {
	BudgetCode     string    `json:"budget_code"`
	Year           int       `json:"year"`
	Month          int       `json:"month"`
	ScenarioID     uuid.UUID `json:"scenario_id"`
	Department     *string   `json:"department,omitempty"`
	IsFormPrepared bool      `json:"is_form_prepared"`
}

// PreparedForm is a row of the prepared purchase forms report
type PreparedForm struct {
	BudgetCode string    `json:"budget_code"`
	BudgetName string    `json:"budget_name"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	ScenarioID uuid.UUID `json:"scenario_id"`
	Department string    `json:"department"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type formKey struct {
	code       string
	month      int
	scenarioID uuid.UUID
	department string
}

// PurchaseReminders lists items with a positive plan in the month and no
// recorded expense in that month, one entry per scenario and department.
func (s *Service) PurchaseReminders(ctx context.Context, rq ReminderQuery) ([]PurchaseReminder, error) {
	if err := validateFilter(budget.Filter{Year: rq.Year, Month: rq.Month}); err != nil {
		return nil, err
	}
	if rq.Month == 0 {
		return nil, budget.NewValidationError("month", "is required")
	}

	ctx, span := tracer.Start(ctx, "analytics.PurchaseReminders")
	defer span.End()

	f := budget.Filter{Year: rq.Year, Month: rq.Month, ScenarioID: rq.ScenarioID, Department: rq.Department}
	plans, err := s.store.ListPlans(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	expenses, err := s.store.ListExpenses(ctx, budget.Filter{Year: rq.Year, Month: rq.Month, ScenarioID: rq.ScenarioID}, budget.ScopeRecorded)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	items, err := s.itemsByID(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := s.store.ListFormStatuses(ctx, repository.FormStatusQuery{
		Year: rq.Year, Month: rq.Month, ScenarioID: rq.ScenarioID, Department: rq.Department,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list form statuses: %w", err)
	}

	spent := make(map[uuid.UUID]bool, len(expenses))
	for _, e := range expenses {
		spent[e.BudgetItemID] = true
	}
	prepared := make(map[formKey]bool, len(statuses))
	for _, st := range statuses {
		prepared[formKey{st.BudgetCode, st.Month, st.ScenarioID, st.Department}] = st.IsFormPrepared
	}

	seen := make(map[formKey]bool)
	var reminders []PurchaseReminder
	for _, p := range plans {
		if p.AmountMinor <= 0 || spent[p.BudgetItemID] {
			continue
		}
		item := items[p.BudgetItemID]
		key := formKey{item.Code, p.Month, p.ScenarioID, p.DepartmentKey()}
		if seen[key] {
			continue
		}
		seen[key] = true
		reminders = append(reminders, PurchaseReminder{
			BudgetItemID:   p.BudgetItemID,
			BudgetCode:     item.Code,
			BudgetName:     item.Name,
			Year:           p.Year,
			Month:          p.Month,
			ScenarioID:     p.ScenarioID,
			Department:     key.department,
			IsFormPrepared: prepared[key],
		})
	}

	sort.SliceStable(reminders, func(i, j int) bool {
		a, b := reminders[i], reminders[j]
		if a.BudgetCode != b.BudgetCode {
			return a.BudgetCode < b.BudgetCode
		}
		return a.Department < b.Department
	})
	return reminders, nil
}

// MarkFormsPrepared upserts the flags in one unit of work. Statuses are never
// reset by imports or spend.
func (s *Service) MarkFormsPrepared(ctx context.Context, updates []FormStatusUpdate) error {
	for i, u := range updates {
		if strings.TrimSpace(u.BudgetCode) == "" {
			return budget.NewValidationError("budget_code", "is required (entry %d)", i)
		}
		if err := validateFilter(budget.Filter{Year: u.Year, Month: u.Month}); err != nil {
			return err
		}
		if u.Month == 0 {
			return budget.NewValidationError("month", "is required (entry %d)", i)
		}
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		for _, u := range updates {
			status := budget.FormStatus{
				BudgetCode:     strings.TrimSpace(u.BudgetCode),
				Year:           u.Year,
				Month:          u.Month,
				ScenarioID:     u.ScenarioID,
				Department:     budget.NormalizeDepartment(u.Department),
				IsFormPrepared: u.IsFormPrepared,
			}
			if err := q.UpsertFormStatus(ctx, status); err != nil {
				return fmt.Errorf("failed to upsert form status for %s: %w", status.BudgetCode, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("purchase form statuses updated", "count", len(updates))
	return nil
}

// PreparedForms lists the forms marked prepared in a year
func (s *Service) PreparedForms(ctx context.Context, year int, scenarioID *uuid.UUID) ([]PreparedForm, error) {
	if err := validateFilter(budget.Filter{Year: year}); err != nil {
		return nil, err
	}

	statuses, err := s.store.ListFormStatuses(ctx, repository.FormStatusQuery{Year: year, ScenarioID: scenarioID, PreparedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list form statuses: %w", err)
	}
	items, err := s.store.ListBudgetItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget items: %w", err)
	}
	names := make(map[string]string, len(items))
	for _, it := range items {
		names[it.Code] = it.Name
	}

	forms := make([]PreparedForm, 0, len(statuses))
	for _, st := range statuses {
		forms = append(forms, PreparedForm{
			BudgetCode: st.BudgetCode,
			BudgetName: names[st.BudgetCode],
			Year:       st.Year,
			Month:      st.Month,
			ScenarioID: st.ScenarioID,
			Department: st.Department,
			UpdatedAt:  st.UpdatedAt,
		})
	}
	return forms, nil
}

// ============================================================================
// Dashboard reminders
// ============================================================================

// DashboardReminders warns about past months that have a plan but no actual
// spend and, for the current year, suggests reviewing idle planned items.
func (s *Service) DashboardReminders(ctx context.Context, f budget.Filter) ([]Reminder, error) {
	today := s.now()
	if f.Year > today.Year() {
		return []Reminder{}, nil
	}

	monthly, err := s.Monthly(ctx, f)
	if err != nil {
		return nil, err
	}

	cutoff := 12
	if f.Year == today.Year() {
		cutoff = int(today.Month())
	}

	reminders := []Reminder{}
	for _, m := range monthly {
		if m.Month > cutoff || m.PlannedMinor <= 0 || m.ActualMinor > 0 {
			continue
		}
		reminders = append(reminders, Reminder{
			Severity: SeverityWarning,
			Message:  monthNamesTR[m.Month-1] + " faturaları girilmedi",
		})
		if len(reminders) == maxMonthWarnings {
			break
		}
	}

	if f.Year != today.Year() {
		return reminders, nil
	}

	suggestions, err := s.idleSuggestions(ctx, f, today)
	if err != nil {
		return nil, err
	}
	return append(reminders, suggestions...), nil
}

func (s *Service) idleSuggestions(ctx context.Context, f budget.Filter, today time.Time) ([]Reminder, error) {
	scope := budget.Filter{Year: f.Year, ScenarioID: f.ScenarioID, BudgetItemID: f.BudgetItemID}
	totals, err := s.store.SumPlansByItem(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to sum plans by item: %w", err)
	}

	planned := make(map[uuid.UUID]bool, len(totals))
	for _, t := range totals {
		if t.AmountMinor > 0 {
			planned[t.BudgetItemID] = true
		}
	}
	if f.BudgetItemID != nil {
		planned[*f.BudgetItemID] = true
	}
	if len(planned) == 0 {
		return nil, nil
	}

	last, err := s.store.LastExpenseDates(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load last expense dates: %w", err)
	}
	items, err := s.store.ListBudgetItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget items: %w", err)
	}

	type candidate struct {
		item budget.BudgetItem
		idle int
	}
	var candidates []candidate
	for _, it := range items {
		if !planned[it.ID] {
			continue
		}
		date, ok := last[it.ID]
		if !ok {
			candidates = append(candidates, candidate{it, neverSpent})
			continue
		}
		if idle := monthsSince(date, today); idle >= idleMonthsNotice {
			candidates = append(candidates, candidate{it, idle})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].idle > candidates[j].idle })
	if len(candidates) > maxIdleSuggestions {
		candidates = candidates[:maxIdleSuggestions]
	}

	out := make([]Reminder, 0, len(candidates))
	for _, c := range candidates {
		msg := fmt.Sprintf("%s kalemi %d aydır kullanılmadı, silelim mi?", c.item.Label(), c.idle)
		if c.idle == neverSpent {
			msg = c.item.Label() + " kalemi için henüz harcama kaydı yok. İnceleyelim mi?"
		}
		out = append(out, Reminder{Severity: SeverityInfo, Message: msg})
	}
	return out, nil
}

func monthsSince(last, today time.Time) int {
	return (today.Year()-last.Year())*12 + int(today.Month()) - int(last.Month())
}

// ============================================================================
// Today panel
// ============================================================================

// TodayEntry is one of today's expenses
type TodayEntry struct {
	ID             uuid.UUID            `json:"id"`
	BudgetItemID   uuid.UUID            `json:"budget_item_id"`
	BudgetItemCode string               `json:"budget_item_code"`
	BudgetItemName string               `json:"budget_item_name"`
	AmountMinor    int64                `json:"amount_minor"`
	Description    *string              `json:"description,omitempty"`
	ExpenseDate    time.Time            `json:"expense_date"`
	Status         budget.ExpenseStatus `json:"status"`
}

// TodayPanel splits today's expenses by how they count
type TodayPanel struct {
	Recorded    []TodayEntry `json:"recorded"`
	Cancelled   []TodayEntry `json:"cancelled"`
	OutOfBudget []TodayEntry `json:"out_of_budget"`
}

// TodayPanel returns up to five of today's expenses per list, newest first
func (s *Service) TodayPanel(ctx context.Context, scenarioID, budgetItemID *uuid.UUID) (*TodayPanel, error) {
	today := s.now()
	f := budget.Filter{
		Year:         today.Year(),
		Month:        int(today.Month()),
		ScenarioID:   scenarioID,
		BudgetItemID: budgetItemID,
	}

	items, err := s.itemsByID(ctx)
	if err != nil {
		return nil, err
	}

	fetch := func(scope budget.ExpenseScope) ([]TodayEntry, error) {
		expenses, err := s.store.ListExpenses(ctx, f, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to list expenses: %w", err)
		}
		entries := []TodayEntry{}
		for _, e := range expenses {
			if e.ExpenseDate.Day() != today.Day() {
				continue
			}
			item := items[e.BudgetItemID]
			entries = append(entries, TodayEntry{
				ID:             e.ID,
				BudgetItemID:   e.BudgetItemID,
				BudgetItemCode: item.Code,
				BudgetItemName: item.Name,
				AmountMinor:    e.AmountMinor,
				Description:    e.Description,
				ExpenseDate:    e.ExpenseDate,
				Status:         e.Status,
			})
			if len(entries) == maxTodayEntries {
				break
			}
		}
		return entries, nil
	}

	var panel TodayPanel
	if panel.Recorded, err = fetch(budget.ScopeActual); err != nil {
		return nil, err
	}
	if panel.Cancelled, err = fetch(budget.ScopeCancelled); err != nil {
		return nil, err
	}
	if panel.OutOfBudget, err = fetch(budget.ScopeOutOfBudget); err != nil {
		return nil, err
	}
	return &panel, nil
}

func (s *Service) itemsByID(ctx context.Context) (map[uuid.UUID]budget.BudgetItem, error) {
	items, err := s.store.ListBudgetItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget items: %w", err)
	}
	byID := make(map[uuid.UUID]budget.BudgetItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return byID, nil
}
