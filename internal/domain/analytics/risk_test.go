package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
)

func spend(code string, planned, actual int64) ItemSpend {
	return ItemSpend{Code: code, Name: code, PlannedMinor: planned, ActualMinor: actual}
}

func codesOf[T interface{ code() string }](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.code()
	}
	return out
}

// code is promoted into RiskyItem and OverbudgetItem
func (s ItemSpend) code() string { return s.Code }

func TestRiskyItems(t *testing.T) {
	input := []ItemSpend{
		spend("A", 100, 79),
		spend("B", 100, 80),
		spend("C", 100, 150),
		spend("D", 0, 500),
		spend("E", 100, 95),
		spend("F", 100, 81),
		spend("G", 100, 90),
		spend("H", 100, 200),
	}

	risky := RiskyItems(input)
	assert.Equal(t, []string{"H", "C", "E", "G", "F"}, codesOf(risky))
	assert.InDelta(t, 2.0, risky[0].Ratio, 1e-9)
}

func TestNoSpendItems(t *testing.T) {
	var input []ItemSpend
	for i := 12; i >= 1; i-- {
		input = append(input, spend(fmt.Sprintf("SK%02d", i), 100, 0))
	}
	input = append(input, spend("SPENT", 100, 1), spend("UNPLANNED", 0, 0))

	idle := NoSpendItems(input)
	require.Len(t, idle, 10)
	assert.Equal(t, "SK12", idle[0].Code, "input order is kept")
	assert.Equal(t, "SK03", idle[9].Code)
}

func TestOverbudgetItems(t *testing.T) {
	over := OverbudgetItems([]ItemSpend{
		spend("A", 100, 150),
		spend("B", 0, 30),
		spend("C", 100, 100),
		spend("D", 200, 500),
	})

	assert.Equal(t, []string{"D", "A", "B"}, codesOf(over))
	assert.EqualValues(t, 300, over[0].OverMinor)
	assert.InDelta(t, 150.0, over[0].OverPct, 1e-9)
	assert.Zero(t, over[2].OverPct)
}

func TestRiskViews_Properties(t *testing.T) {
	faker := gofakeit.New(99)
	for run := 0; run < 50; run++ {
		var input []ItemSpend
		for i := 0; i < faker.IntRange(0, 30); i++ {
			input = append(input, spend(
				fmt.Sprintf("SK%02d", i),
				int64(faker.IntRange(0, 10_000)),
				int64(faker.IntRange(0, 15_000)),
			))
		}

		for _, o := range OverbudgetItems(input) {
			assert.Positive(t, o.OverMinor)
			assert.GreaterOrEqual(t, o.OverPct, 0.0)
		}
		risky := RiskyItems(input)
		assert.LessOrEqual(t, len(risky), maxRiskyItems)
		for i, r := range risky {
			assert.Positive(t, r.PlannedMinor)
			assert.GreaterOrEqual(t, r.Ratio, riskRatioThreshold)
			if i > 0 {
				assert.GreaterOrEqual(t, risky[i-1].Ratio, r.Ratio)
			}
		}
		assert.LessOrEqual(t, len(NoSpendItems(input)), maxNoSpendItems)
	}
}

func TestRisk_PlanToDate(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	laptops := fx.item(t, "SK01", "Laptops", budget.CostTypeCapex)
	cloud := fx.item(t, "SK02", "Cloud", budget.CostTypeOpex)
	unplanned := fx.item(t, "SK03", "Snacks", budget.CostTypeOpex)

	fx.plan(t, laptops, 2, 1000, "")
	fx.plan(t, laptops, 11, 9000, "")
	fx.plan(t, cloud, 5, 500, "")
	fx.expense(t, laptops, day(2024, 3, 1), 900, budget.ExpenseStatusRecorded, false)
	fx.expense(t, unplanned, day(2024, 4, 1), 70, budget.ExpenseStatusRecorded, false)

	t.Run("current year stops at today", func(t *testing.T) {
		report, err := fx.svc.Risk(ctx, budget.Filter{Year: 2024})
		require.NoError(t, err)

		assert.Equal(t, 6, report.UntilMonth)
		require.Len(t, report.Risky, 1)
		assert.Equal(t, "SK01", report.Risky[0].Code)
		assert.InDelta(t, 0.9, report.Risky[0].Ratio, 1e-9)
		assert.Equal(t, []string{"SK02"}, codesOf(report.NoSpend))
		assert.Equal(t, []string{"SK03"}, codesOf(report.Overbudget))
	})

	t.Run("past year covers all months", func(t *testing.T) {
		fx.svc.WithClock(fixedClock(2025, time.January, 2))
		defer fx.svc.WithClock(fixedClock(2024, time.June, 15))

		report, err := fx.svc.Risk(ctx, budget.Filter{Year: 2024})
		require.NoError(t, err)
		assert.Equal(t, 12, report.UntilMonth)
		assert.Empty(t, report.Risky)
	})
}
