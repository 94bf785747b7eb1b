package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
	"github.com/FACorreiaa/budget-ledger/pkg/logger"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
	"github.com/FACorreiaa/budget-ledger/pkg/storage"
)

func newTestService(store repository.Store) (*ImportService, *metrics.Metrics) {
	m := metrics.New()
	return NewImportService(store, nil, Options{Currency: "TRY", MaxReasons: 100}, m, logger.Discard()), m
}

func csvFile(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestImport_DefaultScenarioAccumulates(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, m := newTestService(store)

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "plans.csv",
		Data: csvFile(
			"type,budget_code,budget_name,year,month,amount",
			"plan,X,Switches,2024,1,100",
			"plan,X,Switches,2024,1,50",
		),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ImportedPlans)
	assert.Zero(t, summary.SkippedRows)
	assert.Equal(t, "CSV import completed", summary.Message)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ImportedRecords.WithLabelValues("plan")))

	scenario, err := store.GetScenario(ctx, "Default 2024", 2024)
	require.NoError(t, err)

	sums, err := store.SumPlansByMonth(ctx, budget.Filter{Year: 2024, ScenarioID: &scenario.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 15000, sums[1])

	items, err := store.ListBudgetItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestImport_SkipsBadRecords(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, m := newTestService(store)

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "mixed.csv",
		Data: csvFile(
			"type,budget_code,budget_name,year,month,amount",
			"plan,SK01,Laptops,2024,1,100",
			"plan,SK01,Laptops,2024,2,-5",
			"bogus,SK01,Laptops,2024,3,10",
			"plan,SK99,,2024,4,10",
			"plan,SK01,Laptops,2024,13,10",
			"plan,SK01,Laptops,2024,5,abc",
		),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ImportedPlans)
	assert.Equal(t, 5, summary.SkippedRows)
	require.Len(t, summary.Reasons, 5)
	assert.True(t, strings.HasPrefix(summary.Reasons[0], "line 3: "), summary.Reasons[0])
	assert.Contains(t, summary.Reasons[1], "unknown record type")
	assert.Contains(t, summary.Reasons[2], "missing budget item name")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedRecords.WithLabelValues("missing_reference")))

	_, err = store.GetBudgetItemByCode(ctx, "SK99")
	assert.ErrorIs(t, err, budget.ErrNotFound)
}

func TestImport_ReasonsCapped(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewImportService(store, nil, Options{MaxReasons: 1}, nil, logger.Discard())

	summary, err := svc.Import(context.Background(), ImportRequest{
		Filename: "bad.csv",
		Data: csvFile(
			"budget_code,budget_name,year,month,amount",
			"SK01,A,2024,1,-1",
			"SK01,A,2024,1,-2",
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SkippedRows)
	assert.Len(t, summary.Reasons, 1)
}

func TestImport_QuotedDelimiterInData(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "quoted.csv",
		Data: csvFile(
			"type,budget_code,budget_name,year,month,amount",
			`plan,SK01,"Barkod okuyucu, el tipi",2024,1,100`,
			"plan,SK02,Laptop,2024,1,50",
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ImportedPlans)
	assert.Zero(t, summary.SkippedRows, "reasons: %v", summary.Reasons)

	item, err := store.GetBudgetItemByCode(ctx, "SK01")
	require.NoError(t, err)
	assert.Equal(t, "Barkod okuyucu, el tipi", item.Name)
}

func TestImport_AmountBeyondMinorUnits(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "plan amount",
			data: csvFile(
				"type,budget_code,budget_name,year,month,amount",
				"plan,SK01,Laptops,2024,1,184467440737095516.17",
			),
		},
		{
			name: "expense unit price",
			data: csvFile(
				"type,budget_code,budget_name,date,quantity,unit_price,amount",
				"expense,SK01,Laptops,2024-01-05,1,184467440737095516.17,10",
			),
		},
		{
			name: "year",
			data: csvFile(
				"type,budget_code,budget_name,year,month,amount",
				"plan,SK01,Laptops,18446744073709553640,1,10",
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := repository.NewMemoryStore()
			svc, _ := newTestService(store)

			summary, err := svc.Import(ctx, ImportRequest{Filename: "big.csv", Data: tt.data})
			require.NoError(t, err)
			assert.Zero(t, summary.ImportedPlans)
			assert.Zero(t, summary.ImportedExpenses)
			assert.Equal(t, 1, summary.SkippedRows)

			plans, err := store.ListPlans(ctx, budget.Filter{Year: 2024})
			require.NoError(t, err)
			assert.Empty(t, plans)
		})
	}
}

func TestImport_ConfiguredAliases(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	aliases := alias.New(map[string][]string{
		alias.FieldBudgetCode: {"kalem numarası"},
		alias.FieldAmount:     {"bedel"},
	})
	svc := NewImportService(store, aliases, Options{Currency: "TRY"}, nil, logger.Discard())

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "aliases.csv",
		Data: csvFile(
			"Açıklama satırı",
			"kalem numarası;kalem;yıl;ay;bedel",
			"SK01;Laptops;2024;3;250",
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ImportedPlans)
	assert.Zero(t, summary.SkippedRows, "reasons: %v", summary.Reasons)

	sums, err := store.SumPlansByMonth(ctx, budget.Filter{Year: 2024})
	require.NoError(t, err)
	assert.EqualValues(t, 25000, sums[3])
}

func TestImport_RollsBackOnlyFailedRecord(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	calls := 0
	store.Fault = func(op string) error {
		if op != "create_plan_entry" {
			return nil
		}
		calls++
		if calls == 1 {
			return &budget.ConstraintError{Constraint: "plan_entries_budget_item_id_fkey", Err: budget.ErrNotFound}
		}
		return nil
	}
	svc, _ := newTestService(store)

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "plans.csv",
		Data: csvFile(
			"budget_code,budget_name,year,month,amount",
			"SKA,Alpha,2024,1,10",
			"SKB,Beta,2024,1,20",
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ImportedPlans)
	assert.Equal(t, 1, summary.SkippedRows)

	items, err := store.ListBudgetItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "SKB", items[0].Code)
}

func TestImport_TransientFailureAborts(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	store.Fault = func(op string) error {
		if op == "create_expense" {
			return errors.New("connection reset by peer")
		}
		return nil
	}
	svc, m := newTestService(store)

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "mixed.csv",
		Data: csvFile(
			"type,budget_code,budget_name,year,month,amount,date",
			"plan,SK01,Laptops,2024,1,100,",
			"expense,SK01,Laptops,2024,,40,2024-01-10",
			"plan,SK01,Laptops,2024,2,100,",
		),
	})
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.False(t, budget.IsRecordError(err))
	assert.Contains(t, err.Error(), "line 3")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportsTotal.WithLabelValues("csv", "failed")))

	plans, err := store.ListPlans(ctx, budget.Filter{Year: 2024})
	require.NoError(t, err)
	assert.Len(t, plans, 1, "records before the failure stay committed")
}

func TestImport_ExpenseDefaults(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "harcamalar.csv",
		Data: csvFile(
			"Tür;Kalem Kodu;Kalem;Tarih;Adet;Birim Fiyat;Tutar;Tedarikçi;Bütçe Dışı;Durum",
			"harcama;SK01;Laptops;15.03.2024;2;10,50;;ACME;true;",
			"harcama;SK01;Laptops;2024-03-16;;;99;;false;iptal",
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ImportedExpenses, summary.Reasons)

	expenses, err := store.ListExpenses(ctx, budget.Filter{Year: 2024}, budget.ScopeRecorded)
	require.NoError(t, err)
	require.Len(t, expenses, 1)

	e := expenses[0]
	assert.EqualValues(t, 2100, e.AmountMinor)
	assert.EqualValues(t, 1050, e.UnitPriceMinor)
	assert.True(t, e.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, e.IsOutOfBudget)
	require.NotNil(t, e.Vendor)
	assert.Equal(t, "ACME", *e.Vendor)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), e.ExpenseDate)

	scenario, err := store.GetScenario(ctx, "Default 2024", 2024)
	require.NoError(t, err)
	require.NotNil(t, e.ScenarioID)
	assert.Equal(t, scenario.ID, *e.ScenarioID)

	cancelled, err := store.ListExpenses(ctx, budget.Filter{Year: 2024}, budget.ScopeCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.EqualValues(t, 9900, cancelled[0].AmountMinor)
	assert.True(t, cancelled[0].Quantity.Equal(decimal.NewFromInt(1)))
}

func TestImport_RequestScenario(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)

	_, err := svc.Import(ctx, ImportRequest{
		Filename: "plans.csv",
		Scenario: "Baseline",
		Data: csvFile(
			"budget_code,budget_name,scenario,year,month,amount",
			"SK01,Laptops,,2024,1,10",
			"SK01,Laptops,Stretch,2024,1,20",
		),
	})
	require.NoError(t, err)

	baseline, err := store.GetScenario(ctx, "Baseline", 2024)
	require.NoError(t, err)
	stretch, err := store.GetScenario(ctx, "Stretch", 2024)
	require.NoError(t, err)

	for _, tc := range []struct {
		id   uuid.UUID
		want int64
	}{{baseline.ID, 1000}, {stretch.ID, 2000}} {
		id := tc.id
		sums, err := store.SumPlansByMonth(ctx, budget.Filter{Year: 2024, ScenarioID: &id})
		require.NoError(t, err)
		assert.Equal(t, tc.want, sums[1])
	}
}

func TestImport_JSONTree(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "plan.json",
		Data: []byte(`{
			"year": 2025,
			"scenario": "Baseline",
			"items": {
				"SK01": {"name": "Laptops", "capex_opex": "capex", "plan": {"1": 100, "2": "250,5"}},
				"SK02": {"name": "Licenses", "plan": {"12": -1}}
			}
		}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "JSON import completed", summary.Message)
	assert.Equal(t, 2, summary.ImportedPlans)
	assert.Equal(t, 1, summary.SkippedRows)

	item, err := store.GetBudgetItemByCode(ctx, "SK01")
	require.NoError(t, err)
	assert.Equal(t, budget.CostTypeCapex, item.CostType)

	sums, err := store.SumPlansByMonth(ctx, budget.Filter{Year: 2025})
	require.NoError(t, err)
	assert.EqualValues(t, 10000, sums[1])
	assert.EqualValues(t, 25050, sums[2])
}

func TestImport_PivotWorkbook(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Row Labels", "Ocak 26", "Mart 26", "Genel Toplam"},
		{"Router (10 Adet)", 0, 12000, 12000},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &rows[i]))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	summary, err := svc.Import(ctx, ImportRequest{Filename: "pivot.xlsx", Data: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ImportedPlans)
	assert.Equal(t, "XLSX import completed", summary.Message)

	item, err := store.GetBudgetItemByCode(ctx, "ROUTER_10_ADET")
	require.NoError(t, err)
	assert.Equal(t, "Router (10 Adet)", item.Name)

	plans, err := store.ListPlans(ctx, budget.Filter{Year: 2026})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 3, plans[0].Month)
	assert.EqualValues(t, 1200000, plans[0].AmountMinor)
}

func TestImport_ParseErrorAborts(t *testing.T) {
	svc, m := newTestService(repository.NewMemoryStore())

	_, err := svc.Import(context.Background(), ImportRequest{Filename: "report.pdf", Data: []byte("%PDF")})

	var pe *budget.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportsTotal.WithLabelValues("unsupported", "failed")))
}

func TestImport_ArchiveAndReplay(t *testing.T) {
	ctx := context.Background()
	archive, err := storage.NewLocalArchive(t.TempDir())
	require.NoError(t, err)

	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)
	svc.WithArchive(archive)

	summary, err := svc.Import(ctx, ImportRequest{
		Filename: "plans.csv",
		Scenario: "Baseline",
		Data: csvFile(
			"budget_code,budget_name,year,month,amount",
			"SK01,Laptops,2024,1,10",
		),
	})
	require.NoError(t, err)
	require.NotEmpty(t, summary.UploadID)

	id, err := uuid.Parse(summary.UploadID)
	require.NoError(t, err)

	upload, err := archive.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, upload.Outcome)
	assert.Equal(t, 1, upload.Outcome.ImportedPlans)

	replayed, err := svc.Replay(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed.ImportedPlans)
	assert.Equal(t, summary.UploadID, replayed.UploadID)

	plans, err := store.ListPlans(ctx, budget.Filter{Year: 2024})
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	uploads, err := archive.List(ctx)
	require.NoError(t, err)
	assert.Len(t, uploads, 1, "replay does not archive a second copy")
}

func TestReplay_WithoutArchive(t *testing.T) {
	svc, _ := newTestService(repository.NewMemoryStore())
	_, err := svc.Replay(context.Background(), uuid.New())
	assert.Error(t, err)
}
