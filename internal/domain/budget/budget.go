// Package budget holds the shared entities of the budget ledger: budget items,
// scenarios, plan entries and expenses, plus the query filters used to read them.
package budget

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostType classifies a budget item as capital or operational spend
type CostType string

const (
	CostTypeUnset CostType = ""
	CostTypeCapex CostType = "CAPEX"
	CostTypeOpex  CostType = "OPEX"
)

// ParseCostType maps free-form input ("capex", "Opex ", "CAPEX") to a CostType.
// Unknown values yield CostTypeUnset and false.
func ParseCostType(raw string) (CostType, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CAPEX":
		return CostTypeCapex, true
	case "OPEX":
		return CostTypeOpex, true
	default:
		return CostTypeUnset, false
	}
}

// ExpenseStatus represents the lifecycle state of an expense
type ExpenseStatus string

const (
	ExpenseStatusRecorded  ExpenseStatus = "recorded"
	ExpenseStatusCancelled ExpenseStatus = "cancelled"
)

// BudgetItem is a line of spend identified by a stable code
type BudgetItem struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	CostType     CostType  `db:"cost_type" json:"cost_type,omitempty"`
	AssetType    *string   `db:"asset_type" json:"asset_type,omitempty"`
	MapAttribute *string   `db:"map_attribute" json:"map_attribute,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Label renders "CODE - Name" for messages, falling back to a placeholder.
func (b BudgetItem) Label() string {
	parts := make([]string, 0, 2)
	if c := strings.TrimSpace(b.Code); c != "" {
		parts = append(parts, c)
	}
	if n := strings.TrimSpace(b.Name); n != "" {
		parts = append(parts, n)
	}
	if len(parts) == 0 {
		return "Tanımsız Kalem"
	}
	return strings.Join(parts, " - ")
}

// Scenario is a named planning variant for one year
type Scenario struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Year      int       `db:"year" json:"year"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PlanEntry is the planned amount for one item, scenario and month
type PlanEntry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Year         int       `db:"year" json:"year"`
	Month        int       `db:"month" json:"month"`
	AmountMinor  int64     `db:"amount_minor" json:"amount_minor"`
	ScenarioID   uuid.UUID `db:"scenario_id" json:"scenario_id"`
	BudgetItemID uuid.UUID `db:"budget_item_id" json:"budget_item_id"`
	Department   *string   `db:"department" json:"department,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DepartmentKey returns the trimmed department or "" when unset
func (p PlanEntry) DepartmentKey() string {
	return NormalizeDepartment(p.Department)
}

// Expense is an actual expenditure against a budget item
type Expense struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	BudgetItemID   uuid.UUID       `db:"budget_item_id" json:"budget_item_id"`
	ScenarioID     *uuid.UUID      `db:"scenario_id" json:"scenario_id,omitempty"`
	ExpenseDate    time.Time       `db:"expense_date" json:"expense_date"`
	AmountMinor    int64           `db:"amount_minor" json:"amount_minor"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPriceMinor int64           `db:"unit_price_minor" json:"unit_price_minor"`
	Vendor         *string         `db:"vendor" json:"vendor,omitempty"`
	Description    *string         `db:"description" json:"description,omitempty"`
	Status         ExpenseStatus   `db:"status" json:"status"`
	IsOutOfBudget  bool            `db:"is_out_of_budget" json:"is_out_of_budget"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// CountsAsActual reports whether the expense contributes to actual spend
func (e Expense) CountsAsActual() bool {
	return e.Status == ExpenseStatusRecorded && !e.IsOutOfBudget
}

// FormStatus is the sticky "purchase form prepared" flag for one planned purchase.
// Department is always stored normalized ("" when unset).
type FormStatus struct {
	BudgetCode     string    `db:"budget_code" json:"budget_code"`
	Year           int       `db:"year" json:"year"`
	Month          int       `db:"month" json:"month"`
	ScenarioID     uuid.UUID `db:"scenario_id" json:"scenario_id"`
	Department     string    `db:"department" json:"department"`
	IsFormPrepared bool      `db:"is_form_prepared" json:"is_form_prepared"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizeDepartment trims a department, mapping nil to ""
func NormalizeDepartment(department *string) string {
	if department == nil {
		return ""
	}
	return strings.TrimSpace(*department)
}

// StrPtr returns nil for blank strings, else a pointer to the trimmed value
func StrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ============================================================================
// Query filters
// ============================================================================

// Filter scopes aggregate reads. Year is required; zero values mean "no filter".
type Filter struct {
	Year         int
	Month        int // exact month
	UntilMonth   int // inclusive upper bound for to-date views
	ScenarioID   *uuid.UUID
	BudgetItemID *uuid.UUID
	Department   *string // plans only, expenses carry no department
	CostType     CostType
}

// ExpenseScope selects which expenses a read includes
type ExpenseScope int

const (
	// ScopeActual is recorded, in-budget spend
	ScopeActual ExpenseScope = iota
	// ScopeOutOfBudget is recorded spend flagged out of budget
	ScopeOutOfBudget
	// ScopeCancelled is cancelled spend regardless of the budget flag
	ScopeCancelled
	// ScopeRecorded is every recorded expense
	ScopeRecorded
)

// Includes reports whether an expense falls into the scope
func (s ExpenseScope) Includes(e Expense) bool {
	switch s {
	case ScopeActual:
		return e.Status == ExpenseStatusRecorded && !e.IsOutOfBudget
	case ScopeOutOfBudget:
		return e.Status == ExpenseStatusRecorded && e.IsOutOfBudget
	case ScopeCancelled:
		return e.Status == ExpenseStatusCancelled
	case ScopeRecorded:
		return e.Status == ExpenseStatusRecorded
	default:
		return false
	}
}

// ItemTotal is a per-budget-item sum
type ItemTotal struct {
	BudgetItemID uuid.UUID `db:"budget_item_id"`
	Code         string    `db:"code"`
	Name         string    `db:"name"`
	AmountMinor  int64     `db:"amount_minor"`
}

// CleanupFilter scopes the bulk deletes of the cleanup run
type CleanupFilter struct {
	BudgetItemID *uuid.UUID
	ScenarioID   *uuid.UUID
	ImportedOnly bool // expenses whose description contains "import"
}
