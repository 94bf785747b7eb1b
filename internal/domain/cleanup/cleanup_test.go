package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/budgettest"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	"github.com/FACorreiaa/budget-ledger/pkg/logger"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
)

func steppingClock() func() time.Time {
	t := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newStore() *repository.MemoryStore {
	return repository.NewMemoryStore().WithClock(steppingClock())
}

func itemCodes(t *testing.T, store repository.Store) []string {
	t.Helper()
	items, err := store.ListBudgetItems(context.Background())
	require.NoError(t, err)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Code
	}
	return out
}

func seedItems(t *testing.T, store *repository.MemoryStore, scenario *budget.Scenario, codes ...string) []budget.BudgetItem {
	t.Helper()
	ctx := context.Background()
	var items []budget.BudgetItem
	for _, code := range codes {
		item := budget.BudgetItem{Code: code, Name: "Item " + code}
		require.NoError(t, store.CreateBudgetItem(ctx, &item))
		p := budget.PlanEntry{Year: 2024, Month: 1, AmountMinor: 100, ScenarioID: scenario.ID, BudgetItemID: item.ID}
		require.NoError(t, store.CreatePlanEntry(ctx, &p))
		items = append(items, item)
	}
	return items
}

func newScenario(t *testing.T, store repository.Store, name string) *budget.Scenario {
	t.Helper()
	s := &budget.Scenario{Name: name, Year: 2024}
	require.NoError(t, store.UpsertScenario(context.Background(), s))
	return s
}

func TestResequence_DenseAndIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	scenario := newScenario(t, store, "Default 2024")
	// SK01 is taken by the item that should end up as SK03
	seedItems(t, store, scenario, "SK02", "LAPTOP", "SK01", "ROUTER_10_ADET")

	svc := NewService(store, "SK", nil, logger.Discard())

	result, err := svc.Run(ctx, Request{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, result.RenumberedItems)
	assert.Equal(t, []string{"SK01", "SK02", "SK03", "SK04"}, itemCodes(t, store))

	again, err := svc.Run(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, &Result{}, again)
}

func TestResequence_Property(t *testing.T) {
	ctx := context.Background()
	faker := gofakeit.New(5)

	for run := 0; run < 20; run++ {
		store := newStore()
		scenario := newScenario(t, store, "Default 2024")

		n := faker.IntRange(1, 25)
		seen := map[string]bool{}
		var raw []string
		for len(raw) < n {
			code := fmt.Sprintf("SK%02d", faker.IntRange(1, 40))
			if faker.Bool() {
				code = faker.LetterN(6)
			}
			if !seen[code] {
				seen[code] = true
				raw = append(raw, code)
			}
		}
		seedItems(t, store, scenario, raw...)

		err := store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
			_, err := Resequence(ctx, q, "SK")
			return err
		})
		require.NoError(t, err)

		got := itemCodes(t, store)
		want := make([]string, n)
		for i := range want {
			want[i] = Code("SK", i+1)
		}
		assert.Equal(t, want, got)

		sorted := append([]string(nil), got...)
		sort.Strings(sorted)
		for i := 1; i < len(sorted); i++ {
			assert.NotEqual(t, sorted[i-1], sorted[i])
		}
	}
}

func TestResequence_MovesFormStatuses(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	scenario := newScenario(t, store, "Default 2024")
	seedItems(t, store, scenario, "ZZ", "SK01")

	require.NoError(t, store.UpsertFormStatus(ctx, budget.FormStatus{
		BudgetCode: "ZZ", Year: 2024, Month: 1, ScenarioID: scenario.ID, IsFormPrepared: true,
	}))

	_, err := NewService(store, "SK", nil, logger.Discard()).Run(ctx, Request{})
	require.NoError(t, err)

	statuses, err := store.ListFormStatuses(ctx, repository.FormStatusQuery{Year: 2024})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "SK01", statuses[0].BudgetCode)
}

func TestRun_DeletedItemFormStatusIsNotInherited(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	scenario := newScenario(t, store, "Default 2024")
	items := seedItems(t, store, scenario, "SK01", "SK02", "SK03")

	require.NoError(t, store.UpsertFormStatus(ctx, budget.FormStatus{
		BudgetCode: "SK02", Year: 2024, Month: 1, ScenarioID: scenario.ID, IsFormPrepared: true,
	}))

	id := items[1].ID
	result, err := NewService(store, "SK", nil, logger.Discard()).Run(ctx, Request{BudgetItemID: &id, ResetPlans: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.DeletedBudgetItems)
	assert.EqualValues(t, 1, result.RenumberedItems)

	moved, err := store.GetBudgetItemByCode(ctx, "SK02")
	require.NoError(t, err)
	assert.Equal(t, items[2].ID, moved.ID)

	statuses, err := store.ListFormStatuses(ctx, repository.FormStatusQuery{Year: 2024})
	require.NoError(t, err)
	assert.Empty(t, statuses, "the renumbered item starts without the deleted item's flag")
}

func TestRun_Deletes(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*repository.MemoryStore, *budget.Scenario, *budget.Scenario, []budget.BudgetItem) {
		store := newStore()
		base := newScenario(t, store, "Baseline")
		alt := newScenario(t, store, "Stretch")
		items := seedItems(t, store, base, "SK01", "SK02", "SK03")

		for i, item := range items {
			for _, desc := range []string{"CSV import", "manual"} {
				sid := base.ID
				if i == 2 {
					sid = alt.ID
				}
				d := desc
				e := budget.Expense{
					BudgetItemID: item.ID, ScenarioID: &sid, ExpenseDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
					AmountMinor: 10, Description: &d, Status: budget.ExpenseStatusRecorded,
				}
				require.NoError(t, store.CreateExpense(ctx, &e))
			}
		}
		return store, base, alt, items
	}

	t.Run("imported only", func(t *testing.T) {
		store, _, _, _ := setup(t)
		result, err := NewService(store, "SK", nil, logger.Discard()).Run(ctx, Request{ImportedOnly: true})
		require.NoError(t, err)
		assert.EqualValues(t, 3, result.DeletedExpenses)
		assert.Zero(t, result.DeletedPlans)
		assert.Zero(t, result.DeletedBudgetItems)
	})

	t.Run("reset plans drops orphans and renumbers", func(t *testing.T) {
		store, base, _, items := setup(t)
		result, err := NewService(store, "SK", nil, logger.Discard()).Run(ctx, Request{
			BudgetItemID: &items[0].ID, ResetPlans: true,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, result.DeletedExpenses)
		assert.EqualValues(t, 1, result.DeletedPlans)
		assert.EqualValues(t, 1, result.DeletedBudgetItems)
		assert.EqualValues(t, 2, result.RenumberedItems)
		assert.Equal(t, []string{"SK01", "SK02"}, itemCodes(t, store))

		item, err := store.GetBudgetItemByCode(ctx, "SK01")
		require.NoError(t, err)
		assert.Equal(t, items[1].ID, item.ID)

		plans, err := store.ListPlans(ctx, budget.Filter{Year: 2024, ScenarioID: &base.ID})
		require.NoError(t, err)
		assert.Len(t, plans, 2)
	})

	t.Run("scenario scope", func(t *testing.T) {
		store, _, alt, _ := setup(t)
		result, err := NewService(store, "SK", nil, logger.Discard()).Run(ctx, Request{ScenarioID: &alt.ID})
		require.NoError(t, err)
		assert.EqualValues(t, 2, result.DeletedExpenses)
		assert.Zero(t, result.DeletedBudgetItems, "plans still reference the item")
	})
}

func TestRun_FailureRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	scenario := newScenario(t, store, "Default 2024")
	items := seedItems(t, store, scenario, "B", "A", "C")

	sid := scenario.ID
	desc := "XLSX import"
	e := budget.Expense{BudgetItemID: items[0].ID, ScenarioID: &sid, ExpenseDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), AmountMinor: 10, Description: &desc}
	require.NoError(t, store.CreateExpense(ctx, &e))

	renames := 0
	store.Fault = func(op string) error {
		if op == "set_budget_item_code" {
			renames++
			// three moves to temporary codes succeed, the second pass fails midway
			if renames == 5 {
				return errors.New("connection lost")
			}
		}
		return nil
	}

	m := metrics.New()
	_, err := NewService(store, "SK", m, logger.Discard()).Run(ctx, Request{ImportedOnly: true})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CleanupRuns.WithLabelValues("failed")))

	store.Fault = nil
	assert.Equal(t, []string{"B", "A", "C"}, itemCodes(t, store))
	expenses, err := store.ListExpenses(ctx, budget.Filter{Year: 2024}, budget.ScopeRecorded)
	require.NoError(t, err)
	assert.Len(t, expenses, 1, "expense deletion is rolled back too")
}

func TestDeleteScenario(t *testing.T) {
	ctx := context.Background()

	t.Run("referenced without force", func(t *testing.T) {
		store := newStore()
		scenario := newScenario(t, store, "Baseline")
		seedItems(t, store, scenario, "SK01")

		_, err := NewService(store, "", nil, logger.Discard()).DeleteScenario(ctx, scenario.ID, false)

		var ce *budget.ConstraintError
		require.ErrorAs(t, err, &ce)
		assert.ErrorIs(t, err, budget.ErrScenarioInUse)

		_, err = store.GetScenario(ctx, "Baseline", 2024)
		assert.NoError(t, err)
	})

	t.Run("forced cascade", func(t *testing.T) {
		store := newStore()
		scenario := newScenario(t, store, "Baseline")
		items := seedItems(t, store, scenario, "SK01")
		sid := scenario.ID
		e := budget.Expense{BudgetItemID: items[0].ID, ScenarioID: &sid, ExpenseDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), AmountMinor: 5}
		require.NoError(t, store.CreateExpense(ctx, &e))

		deletion, err := NewService(store, "", nil, logger.Discard()).DeleteScenario(ctx, scenario.ID, true)
		require.NoError(t, err)
		assert.EqualValues(t, 1, deletion.DeletedPlans)
		assert.EqualValues(t, 1, deletion.DeletedExpenses)

		_, err = store.GetScenario(ctx, "Baseline", 2024)
		assert.ErrorIs(t, err, budget.ErrNotFound)
	})

	t.Run("unreferenced", func(t *testing.T) {
		store := newStore()
		scenario := newScenario(t, store, "Empty")
		_, err := NewService(store, "", nil, logger.Discard()).DeleteScenario(ctx, scenario.ID, false)
		assert.NoError(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewService(newStore(), "", nil, logger.Discard()).DeleteScenario(ctx, uuid.New(), true)
		assert.ErrorIs(t, err, budget.ErrNotFound)
	})
}

func TestResequence_SeededDataset(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	_, err := budgettest.New(11).Seed(ctx, store, 2024, 12, 1, 1)
	require.NoError(t, err)

	svc := NewService(store, "BK", nil, logger.Discard())
	result, err := svc.Run(ctx, Request{ImportedOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 12, result.RenumberedItems)

	got := itemCodes(t, store)
	require.Len(t, got, 12)
	assert.Equal(t, "BK01", got[0])
	assert.Equal(t, "BK12", got[11])
}
