// Package budgettest generates realistic budget data for tests using gofakeit.
package budgettest

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
)

// Writer is the subset of the repository the generator seeds through
type Writer interface {
	CreateBudgetItem(ctx context.Context, item *budget.BudgetItem) error
	UpsertScenario(ctx context.Context, s *budget.Scenario) error
	CreatePlanEntry(ctx context.Context, p *budget.PlanEntry) error
	CreateExpense(ctx context.Context, e *budget.Expense) error
}

// Generator produces budget items, plans and expenses
type Generator struct {
	faker *gofakeit.Faker
	seq   int
}

// New creates a generator with a fixed seed for reproducibility
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

var departments = []string{"IT", "Finans", "İnsan Kaynakları", "Operasyon"}

// Item returns an unsaved budget item with the next sequential code
func (g *Generator) Item() budget.BudgetItem {
	g.seq++
	costType := budget.CostTypeOpex
	if g.faker.Bool() {
		costType = budget.CostTypeCapex
	}
	return budget.BudgetItem{
		Code:     fmt.Sprintf("SK%02d", g.seq),
		Name:     g.faker.ProductName(),
		CostType: costType,
	}
}

// Amount returns a random amount in minor units between min and max
func (g *Generator) Amount(min, max int64) int64 {
	return int64(g.faker.IntRange(int(min), int(max)))
}

// Plan returns an unsaved plan entry
func (g *Generator) Plan(itemID, scenarioID uuid.UUID, year int) budget.PlanEntry {
	var dept *string
	if g.faker.Bool() {
		d := departments[g.faker.IntRange(0, len(departments)-1)]
		dept = &d
	}
	return budget.PlanEntry{
		Year:         year,
		Month:        g.faker.IntRange(1, 12),
		AmountMinor:  g.Amount(1, 5_000_000),
		ScenarioID:   scenarioID,
		BudgetItemID: itemID,
		Department:   dept,
	}
}

// Expense returns an unsaved expense. Roughly one in five is cancelled and
// one in five is flagged out of budget.
func (g *Generator) Expense(itemID uuid.UUID, scenarioID *uuid.UUID, year int) budget.Expense {
	qty := g.faker.IntRange(1, 10)
	unit := g.Amount(100, 500_000)

	status := budget.ExpenseStatusRecorded
	if g.faker.IntRange(1, 5) == 1 {
		status = budget.ExpenseStatusCancelled
	}
	desc := g.faker.Sentence(4)
	vendor := g.faker.Company()

	return budget.Expense{
		BudgetItemID:   itemID,
		ScenarioID:     scenarioID,
		ExpenseDate:    time.Date(year, time.Month(g.faker.IntRange(1, 12)), g.faker.IntRange(1, 28), 0, 0, 0, 0, time.UTC),
		AmountMinor:    int64(qty) * unit,
		Quantity:       decimal.NewFromInt(int64(qty)),
		UnitPriceMinor: unit,
		Vendor:         &vendor,
		Description:    &desc,
		Status:         status,
		IsOutOfBudget:  g.faker.IntRange(1, 5) == 1,
	}
}

// Dataset is what Seed wrote
type Dataset struct {
	Scenario budget.Scenario
	Items    []budget.BudgetItem
	Plans    []budget.PlanEntry
	Expenses []budget.Expense
}

// Seed writes items with plans and expenses for one scenario year
func (g *Generator) Seed(ctx context.Context, w Writer, year, items, plansPerItem, expensesPerItem int) (*Dataset, error) {
	ds := &Dataset{Scenario: budget.Scenario{Name: fmt.Sprintf("Default %d", year), Year: year}}
	if err := w.UpsertScenario(ctx, &ds.Scenario); err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}

	for i := 0; i < items; i++ {
		item := g.Item()
		if err := w.CreateBudgetItem(ctx, &item); err != nil {
			return nil, fmt.Errorf("failed to seed item: %w", err)
		}
		ds.Items = append(ds.Items, item)

		for j := 0; j < plansPerItem; j++ {
			p := g.Plan(item.ID, ds.Scenario.ID, year)
			if err := w.CreatePlanEntry(ctx, &p); err != nil {
				return nil, fmt.Errorf("failed to seed plan: %w", err)
			}
			ds.Plans = append(ds.Plans, p)
		}
		for j := 0; j < expensesPerItem; j++ {
			e := g.Expense(item.ID, &ds.Scenario.ID, year)
			if err := w.CreateExpense(ctx, &e); err != nil {
				return nil, fmt.Errorf("failed to seed expense: %w", err)
			}
			ds.Expenses = append(ds.Expenses, e)
		}
	}
	return ds, nil
}
