package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/budget-ledger/internal/domain/analytics"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	"github.com/FACorreiaa/budget-ledger/pkg/logger"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
)

func june15() time.Time { return time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC) }

func seededAnalytics(t *testing.T) *analytics.Service {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	scenario := budget.Scenario{Name: "Default 2024", Year: 2024}
	require.NoError(t, store.UpsertScenario(ctx, &scenario))
	for _, code := range []string{"SK01", "SK02"} {
		item := budget.BudgetItem{Code: code, Name: "Item " + code, CostType: budget.CostTypeOpex}
		require.NoError(t, store.CreateBudgetItem(ctx, &item))
		require.NoError(t, store.CreatePlanEntry(ctx, &budget.PlanEntry{
			Year: 2024, Month: 6, AmountMinor: 2500, ScenarioID: scenario.ID, BudgetItemID: item.ID,
		}))
	}

	svc := analytics.NewService(store, logger.Discard()).WithClock(june15)
	require.NoError(t, svc.MarkFormsPrepared(ctx, []analytics.FormStatusUpdate{
		{BudgetCode: "SK01", Year: 2024, Month: 6, ScenarioID: scenario.ID, IsFormPrepared: true},
	}))
	return svc
}

type failingSource struct{}

func (failingSource) DashboardReminders(context.Context, budget.Filter) ([]analytics.Reminder, error) {
	return nil, errors.New("pool closed")
}

func (failingSource) PurchaseReminders(context.Context, analytics.ReminderQuery) ([]analytics.PurchaseReminder, error) {
	return nil, nil
}

func TestDigest(t *testing.T) {
	m := metrics.New()
	s := NewScheduler(seededAnalytics(t), m, logger.Discard()).WithClock(june15)

	result, err := s.Digest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2024, result.Year)
	assert.Equal(t, 6, result.Month)
	assert.Equal(t, 1, result.PendingPurchases)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingPurchases))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(reminderJob, "ok")))
}

func TestDigest_SourceError(t *testing.T) {
	m := metrics.New()
	s := NewScheduler(failingSource{}, m, logger.Discard())

	_, err := s.Digest(context.Background())
	require.ErrorContains(t, err, "pool closed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(reminderJob, "failed")))
}

func TestStart(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
		jobs     int
	}{
		{name: "off", schedule: "off"},
		{name: "empty", schedule: "  "},
		{name: "daily", schedule: "0 8 * * *", jobs: 1},
		{name: "descriptor", schedule: "@every 1h", jobs: 1},
		{name: "invalid", schedule: "every morning", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(failingSource{}, metrics.New(), logger.Discard())
			err := s.Start(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.cron.Entries(), tt.jobs)
			<-s.Stop().Done()
		})
	}
}
