package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
)

func TestPurchaseReminders(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	laptops := fx.item(t, "SK01", "Laptops", budget.CostTypeCapex)
	cloud := fx.item(t, "SK02", "Cloud", budget.CostTypeOpex)
	desks := fx.item(t, "SK03", "Desks", budget.CostTypeCapex)

	fx.plan(t, laptops, 4, 1000, "IT")
	fx.plan(t, laptops, 4, 500, " IT ")
	fx.plan(t, laptops, 4, 700, "")
	fx.plan(t, cloud, 4, 300, "")
	fx.plan(t, desks, 4, 0, "")
	fx.plan(t, desks, 5, 100, "")
	fx.expense(t, cloud, day(2024, 4, 20), 0, budget.ExpenseStatusRecorded, true)

	reminders, err := fx.svc.PurchaseReminders(ctx, ReminderQuery{Year: 2024, Month: 4, ScenarioID: &fx.scenario.ID})
	require.NoError(t, err)
	require.Len(t, reminders, 2)

	assert.Equal(t, "SK01", reminders[0].BudgetCode)
	assert.Equal(t, "", reminders[0].Department)
	assert.Equal(t, "SK01", reminders[1].BudgetCode)
	assert.Equal(t, "IT", reminders[1].Department)
	for _, r := range reminders {
		assert.False(t, r.IsFormPrepared)
		assert.Equal(t, "Laptops", r.BudgetName)
	}

	t.Run("department filter", func(t *testing.T) {
		got, err := fx.svc.PurchaseReminders(ctx, ReminderQuery{Year: 2024, Month: 4, Department: budget.StrPtr("IT")})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "IT", got[0].Department)
	})

	t.Run("month required", func(t *testing.T) {
		_, err := fx.svc.PurchaseReminders(ctx, ReminderQuery{Year: 2024})
		var ve *budget.ValidationError
		assert.ErrorAs(t, err, &ve)
	})
}

func TestMarkFormsPrepared_Sticky(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	laptops := fx.item(t, "SK01", "Laptops", budget.CostTypeCapex)
	fx.plan(t, laptops, 4, 1000, "IT")

	require.NoError(t, fx.svc.MarkFormsPrepared(ctx, []FormStatusUpdate{{
		BudgetCode: "SK01", Year: 2024, Month: 4, ScenarioID: fx.scenario.ID,
		Department: budget.StrPtr("  IT "), IsFormPrepared: true,
	}}))

	reminders, err := fx.svc.PurchaseReminders(ctx, ReminderQuery{Year: 2024, Month: 4})
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.True(t, reminders[0].IsFormPrepared)

	// more planning does not reset the flag
	fx.plan(t, laptops, 4, 50, "IT")
	reminders, err = fx.svc.PurchaseReminders(ctx, ReminderQuery{Year: 2024, Month: 4})
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.True(t, reminders[0].IsFormPrepared)

	forms, err := fx.svc.PreparedForms(ctx, 2024, nil)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, "Laptops", forms[0].BudgetName)
	assert.Equal(t, "IT", forms[0].Department)

	require.NoError(t, fx.svc.MarkFormsPrepared(ctx, []FormStatusUpdate{{
		BudgetCode: "SK01", Year: 2024, Month: 4, ScenarioID: fx.scenario.ID, Department: budget.StrPtr("IT"),
	}}))
	forms, err = fx.svc.PreparedForms(ctx, 2024, nil)
	require.NoError(t, err)
	assert.Empty(t, forms)
}

func TestMarkFormsPrepared_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	calls := 0
	fx.store.Fault = func(op string) error {
		if op == "upsert_form_status" {
			calls++
			if calls == 2 {
				return errors.New("disk full")
			}
		}
		return nil
	}

	err := fx.svc.MarkFormsPrepared(ctx, []FormStatusUpdate{
		{BudgetCode: "SK01", Year: 2024, Month: 1, ScenarioID: fx.scenario.ID, IsFormPrepared: true},
		{BudgetCode: "SK02", Year: 2024, Month: 1, ScenarioID: fx.scenario.ID, IsFormPrepared: true},
	})
	require.Error(t, err)

	fx.store.Fault = nil
	forms, err := fx.svc.PreparedForms(ctx, 2024, nil)
	require.NoError(t, err)
	assert.Empty(t, forms)

	err = fx.svc.MarkFormsPrepared(ctx, []FormStatusUpdate{{Year: 2024, Month: 1}})
	var ve *budget.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestDashboardReminders(t *testing.T) {
	ctx := context.Background()

	t.Run("current year", func(t *testing.T) {
		fx := newFixture(t)
		laptops := fx.item(t, "SK01", "Laptops", budget.CostTypeCapex)
		cloud := fx.item(t, "SK02", "Cloud", budget.CostTypeOpex)
		desks := fx.item(t, "SK03", "Desks", budget.CostTypeCapex)
		chairs := fx.item(t, "SK04", "Chairs", budget.CostTypeCapex)

		for m := 1; m <= 12; m++ {
			fx.plan(t, laptops, m, 100, "")
		}
		fx.plan(t, cloud, 1, 100, "")
		fx.plan(t, desks, 1, 100, "")
		fx.plan(t, chairs, 1, 100, "")
		fx.expense(t, laptops, day(2024, 2, 1), 10, budget.ExpenseStatusRecorded, false)
		fx.expense(t, cloud, day(2023, 11, 3), 10, budget.ExpenseStatusRecorded, false)
		fx.expense(t, desks, day(2024, 5, 3), 10, budget.ExpenseStatusRecorded, false)

		reminders, err := fx.svc.DashboardReminders(ctx, budget.Filter{Year: 2024})
		require.NoError(t, err)

		want := []Reminder{
			{SeverityWarning, "Ocak faturaları girilmedi"},
			{SeverityWarning, "Mart faturaları girilmedi"},
			{SeverityWarning, "Nisan faturaları girilmedi"},
			{SeverityInfo, "SK04 - Chairs kalemi için henüz harcama kaydı yok. İnceleyelim mi?"},
			{SeverityInfo, "SK02 - Cloud kalemi 7 aydır kullanılmadı, silelim mi?"},
			{SeverityInfo, "SK01 - Laptops kalemi 4 aydır kullanılmadı, silelim mi?"},
		}
		assert.Equal(t, want, reminders)
	})

	t.Run("past year has warnings only", func(t *testing.T) {
		fx := newFixture(t)
		fx.svc.WithClock(fixedClock(2025, time.March, 1))
		laptops := fx.item(t, "SK01", "Laptops", budget.CostTypeCapex)
		fx.plan(t, laptops, 12, 100, "")

		reminders, err := fx.svc.DashboardReminders(ctx, budget.Filter{Year: 2024})
		require.NoError(t, err)
		assert.Equal(t, []Reminder{{SeverityWarning, "Aralık faturaları girilmedi"}}, reminders)
	})

	t.Run("future year is silent", func(t *testing.T) {
		fx := newFixture(t)
		fx.svc.WithClock(fixedClock(2023, time.March, 1))
		laptops := fx.item(t, "SK01", "Laptops", budget.CostTypeCapex)
		fx.plan(t, laptops, 1, 100, "")

		reminders, err := fx.svc.DashboardReminders(ctx, budget.Filter{Year: 2024})
		require.NoError(t, err)
		assert.Empty(t, reminders)
	})
}

func TestTodayPanel(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	laptops := fx.item(t, "SK01", "Laptops", budget.CostTypeCapex)

	today := day(2024, 6, 15)
	var recorded []budget.Expense
	for i := 0; i < 7; i++ {
		recorded = append(recorded, fx.expense(t, laptops, today, int64(100+i), budget.ExpenseStatusRecorded, false))
	}
	fx.expense(t, laptops, today, 5, budget.ExpenseStatusCancelled, true)
	fx.expense(t, laptops, today, 6, budget.ExpenseStatusRecorded, true)
	fx.expense(t, laptops, day(2024, 6, 14), 7, budget.ExpenseStatusRecorded, false)

	panel, err := fx.svc.TodayPanel(ctx, nil, nil)
	require.NoError(t, err)

	require.Len(t, panel.Recorded, 5)
	require.Len(t, panel.Cancelled, 1)
	require.Len(t, panel.OutOfBudget, 1)
	assert.EqualValues(t, 5, panel.Cancelled[0].AmountMinor)
	assert.EqualValues(t, 6, panel.OutOfBudget[0].AmountMinor)
	assert.Equal(t, "SK01", panel.Recorded[0].BudgetItemCode)
	for _, e := range panel.Recorded {
		assert.NotEqual(t, int64(7), e.AmountMinor)
	}
}
