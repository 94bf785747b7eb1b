// Package analytics derives monthly and quarterly aggregates, KPI totals, risk
// views and reminders from stored plans and expenses.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
)

var tracer = otel.Tracer("github.com/FACorreiaa/budget-ledger/internal/domain/analytics")

// MonthlyAggregate is planned versus actual spend for one month
type MonthlyAggregate struct {
	Month        int   `json:"month"`
	PlannedMinor int64 `json:"planned_minor"`
	ActualMinor  int64 `json:"actual_minor"`
}

// Saving is planned minus actual; negative means overrun
func (m MonthlyAggregate) Saving() int64 {
	return m.PlannedMinor - m.ActualMinor
}

// QuarterlyAggregate rolls three months up and adds the spend that does not
// count as actual
type QuarterlyAggregate struct {
	Quarter          int   `json:"quarter"`
	PlannedMinor     int64 `json:"planned_minor"`
	ActualMinor      int64 `json:"actual_minor"`
	OutOfBudgetMinor int64 `json:"out_of_budget_minor"`
	CancelledMinor   int64 `json:"cancelled_minor"`
}

// Saving is planned minus actual for the quarter
func (q QuarterlyAggregate) Saving() int64 {
	return q.PlannedMinor - q.ActualMinor
}

// KPI are the dashboard headline totals
type KPI struct {
	TotalPlanMinor   int64 `json:"total_plan_minor"`
	TotalActualMinor int64 `json:"total_actual_minor"`
	// RemainingMinor never goes below zero; overspend shows up in OverrunMinor
	RemainingMinor int64 `json:"remaining_minor"`
	SavingMinor    int64 `json:"saving_minor"`
	OverrunMinor   int64 `json:"overrun_minor"`
}

// Service answers read-side questions about a budget
type Service struct {
	store  repository.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates an analytics service
func NewService(store repository.Store, logger *slog.Logger) *Service {
	return &Service{store: store, now: time.Now, logger: logger}
}

// WithClock overrides "today" for reminder cutoffs and the today panel
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func validateFilter(f budget.Filter) error {
	if f.Year == 0 {
		return budget.NewValidationError("year", "is required")
	}
	if f.Year < 1900 || f.Year > 9999 {
		return budget.NewValidationError("year", "%d is out of range 1900-9999", f.Year)
	}
	if f.Month < 0 || f.Month > 12 {
		return budget.NewValidationError("month", "%d is out of range 1-12", f.Month)
	}
	if f.UntilMonth < 0 || f.UntilMonth > 12 {
		return budget.NewValidationError("until_month", "%d is out of range 1-12", f.UntilMonth)
	}
	return nil
}

func filterAttributes(f budget.Filter) trace.SpanStartOption {
	attrs := []attribute.KeyValue{attribute.Int("budget.year", f.Year)}
	if f.Month != 0 {
		attrs = append(attrs, attribute.Int("budget.month", f.Month))
	}
	if f.ScenarioID != nil {
		attrs = append(attrs, attribute.String("budget.scenario_id", f.ScenarioID.String()))
	}
	if f.CostType != budget.CostTypeUnset {
		attrs = append(attrs, attribute.String("budget.cost_type", string(f.CostType)))
	}
	return trace.WithAttributes(attrs...)
}

// ============================================================================
// Monthly and quarterly aggregates
// ============================================================================

// Monthly returns one aggregate per month of the year, or only the requested
// month when the filter names one. Actual is recorded in-budget spend.
func (s *Service) Monthly(ctx context.Context, f budget.Filter) ([]MonthlyAggregate, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "analytics.Monthly", filterAttributes(f))
	defer span.End()

	planned, err := s.store.SumPlansByMonth(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to sum plans: %w", err)
	}
	actual, err := s.store.SumExpensesByMonth(ctx, f, budget.ScopeActual)
	if err != nil {
		return nil, fmt.Errorf("failed to sum expenses: %w", err)
	}

	return buildMonthly(f.Month, planned, actual), nil
}

func buildMonthly(only int, planned, actual map[int]int64) []MonthlyAggregate {
	var months []int
	if only != 0 {
		months = []int{only}
	} else {
		seen := make(map[int]bool, 12)
		for m := 1; m <= 12; m++ {
			seen[m] = true
		}
		for m := range planned {
			seen[m] = true
		}
		for m := range actual {
			seen[m] = true
		}
		for m := range seen {
			months = append(months, m)
		}
		sort.Ints(months)
	}

	out := make([]MonthlyAggregate, 0, len(months))
	for _, m := range months {
		out = append(out, MonthlyAggregate{Month: m, PlannedMinor: planned[m], ActualMinor: actual[m]})
	}
	return out
}

// Quarterly rolls the monthly series up into Q1..Q4 and adds out-of-budget and
// cancelled spend
func (s *Service) Quarterly(ctx context.Context, f budget.Filter) ([]QuarterlyAggregate, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "analytics.Quarterly", filterAttributes(f))
	defer span.End()

	monthly, err := s.Monthly(ctx, f)
	if err != nil {
		return nil, err
	}
	outOfBudget, err := s.store.SumExpensesByMonth(ctx, f, budget.ScopeOutOfBudget)
	if err != nil {
		return nil, fmt.Errorf("failed to sum out-of-budget expenses: %w", err)
	}
	cancelled, err := s.store.SumExpensesByMonth(ctx, f, budget.ScopeCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to sum cancelled expenses: %w", err)
	}

	return RollUp(monthly, outOfBudget, cancelled), nil
}

// RollUp sums months into fixed quarters: Q1 is months 1-3 and so on
func RollUp(monthly []MonthlyAggregate, outOfBudget, cancelled map[int]int64) []QuarterlyAggregate {
	quarters := make([]QuarterlyAggregate, 4)
	for i := range quarters {
		quarters[i].Quarter = i + 1
	}
	for _, m := range monthly {
		if m.Month < 1 || m.Month > 12 {
			continue
		}
		q := &quarters[(m.Month-1)/3]
		q.PlannedMinor += m.PlannedMinor
		q.ActualMinor += m.ActualMinor
	}
	for m, amount := range outOfBudget {
		if m >= 1 && m <= 12 {
			quarters[(m-1)/3].OutOfBudgetMinor += amount
		}
	}
	for m, amount := range cancelled {
		if m >= 1 && m <= 12 {
			quarters[(m-1)/3].CancelledMinor += amount
		}
	}
	return quarters
}

// ============================================================================
// KPI
// ============================================================================

// KPI returns the dashboard totals for the filter's year
func (s *Service) KPI(ctx context.Context, f budget.Filter) (*KPI, error) {
	monthly, err := s.Monthly(ctx, f)
	if err != nil {
		return nil, err
	}
	kpi := Summarize(monthly)
	return &kpi, nil
}

// Summarize totals a monthly series. Saving adds up months under plan and
// overrun adds up the shortfall of months over plan.
func Summarize(monthly []MonthlyAggregate) KPI {
	var k KPI
	for _, m := range monthly {
		k.TotalPlanMinor += m.PlannedMinor
		k.TotalActualMinor += m.ActualMinor
		switch saving := m.Saving(); {
		case saving > 0:
			k.SavingMinor += saving
		case saving < 0:
			k.OverrunMinor -= saving
		}
	}
	if remaining := k.TotalPlanMinor - k.TotalActualMinor; remaining > 0 {
		k.RemainingMinor = remaining
	}
	return k
}
