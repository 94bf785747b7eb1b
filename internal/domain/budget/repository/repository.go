// Package repository provides data access for budget items, scenarios,
// plan entries, expenses and purchase-form statuses.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
)

// Queries is the full set of reads and writes. Implementations map storage
// failures onto the budget error taxonomy: uniqueness, foreign-key and check
// violations become *budget.ConstraintError, bad data becomes
// *budget.ValidationError, and misses return budget.ErrNotFound.
type Queries interface {
	// Budget items
	GetBudgetItemByCode(ctx context.Context, code string) (*budget.BudgetItem, error)
	CreateBudgetItem(ctx context.Context, item *budget.BudgetItem) error
	UpdateBudgetItem(ctx context.Context, item *budget.BudgetItem) error
	// ListBudgetItems returns every item ordered by creation time, then code
	ListBudgetItems(ctx context.Context) ([]budget.BudgetItem, error)
	// SetBudgetItemCode renames an item and carries its form statuses along
	SetBudgetItemCode(ctx context.Context, id uuid.UUID, oldCode, newCode string) error
	DeleteOrphanBudgetItems(ctx context.Context) (int64, error)

	// Scenarios
	GetScenario(ctx context.Context, name string, year int) (*budget.Scenario, error)
	// UpsertScenario inserts (name, year) or loads the existing row into s
	UpsertScenario(ctx context.Context, s *budget.Scenario) error
	// ListScenarios returns the scenarios of year (all years when 0) by year, then name
	ListScenarios(ctx context.Context, year int) ([]budget.Scenario, error)
	CountScenarioReferences(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteScenario(ctx context.Context, id uuid.UUID) (*ScenarioDeletion, error)

	// Plans and expenses
	CreatePlanEntry(ctx context.Context, p *budget.PlanEntry) error
	CreateExpense(ctx context.Context, e *budget.Expense) error
	DeleteExpenses(ctx context.Context, f budget.CleanupFilter) (int64, error)
	DeletePlans(ctx context.Context, f budget.CleanupFilter) (int64, error)

	// Aggregates
	SumPlansByMonth(ctx context.Context, f budget.Filter) (map[int]int64, error)
	SumExpensesByMonth(ctx context.Context, f budget.Filter, scope budget.ExpenseScope) (map[int]int64, error)
	// SumPlansByItem returns per-item plan totals ordered by code
	SumPlansByItem(ctx context.Context, f budget.Filter) ([]budget.ItemTotal, error)
	SumExpensesByItem(ctx context.Context, f budget.Filter, scope budget.ExpenseScope) (map[uuid.UUID]int64, error)
	ListPlans(ctx context.Context, f budget.Filter) ([]budget.PlanEntry, error)
	// ListExpenses returns matching expenses, newest first
	ListExpenses(ctx context.Context, f budget.Filter, scope budget.ExpenseScope) ([]budget.Expense, error)
	// LastExpenseDates returns the latest recorded expense date per item across all
	// years. Only the scenario and budget item filters apply.
	LastExpenseDates(ctx context.Context, f budget.Filter) (map[uuid.UUID]time.Time, error)

	// Purchase form statuses
	UpsertFormStatus(ctx context.Context, s budget.FormStatus) error
	ListFormStatuses(ctx context.Context, q FormStatusQuery) ([]budget.FormStatus, error)
}

// Store adds the unit of work: fn runs against a transactional view that is
// committed when fn returns nil and rolled back otherwise.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
}

// FormStatusQuery filters purchase form statuses. Zero values mean "any".
type FormStatusQuery struct {
	Year         int
	Month        int
	ScenarioID   *uuid.UUID
	Department   *string
	PreparedOnly bool
}

// ScenarioDeletion reports what a scenario delete removed
type ScenarioDeletion struct {
	DeletedPlans    int64 `json:"deleted_plans"`
	DeletedExpenses int64 `json:"deleted_expenses"`
}
