package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
)

const ledgerCSV = "type,budget_code,budget_name,year,month,amount,date,scenario\n" +
	"plan,SK01,Laptops,2024,1,100,,Baseline\n" +
	"plan,SK02,Routers,2024,2,50,,Baseline\n" +
	"expense,SK01,Laptops,2024,,40,2024-01-10,Baseline\n" +
	"plan,SK01,Laptops,2024,13,100,,Baseline\n"

type testCLI struct {
	store *repository.MemoryStore
	out   *bytes.Buffer
	dir   string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("IMPORT_ALIASES_FILE", "")
	return &testCLI{store: repository.NewMemoryStore(), out: &bytes.Buffer{}, dir: t.TempDir()}
}

func (tc *testCLI) run(args ...string) (string, error) {
	tc.out.Reset()
	c := &cli{out: tc.out, store: tc.store}
	cmd := newRootCmd(c)
	cmd.SetArgs(append(args, "--archive-dir", filepath.Join(tc.dir, "archive"), "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return tc.out.String(), err
}

func (tc *testCLI) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(tc.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestImportCommand(t *testing.T) {
	tc := newTestCLI(t)
	path := tc.writeFile(t, "ledger.csv", ledgerCSV)

	out, err := tc.run("import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "CSV import completed")
	assert.Contains(t, out, "plans:      2")
	assert.Contains(t, out, "expenses:   1")
	assert.Contains(t, out, "skipped:    1")

	t.Run("json and replay", func(t *testing.T) {
		out, err := tc.run("import", path, "--json")
		require.NoError(t, err)

		var summary struct {
			UploadID      string `json:"upload_id"`
			ImportedPlans int    `json:"imported_plans"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		require.NotEmpty(t, summary.UploadID)

		out, err = tc.run("import", "--replay", summary.UploadID, "--json")
		require.NoError(t, err)
		assert.Contains(t, out, summary.UploadID)
	})

	t.Run("argument errors", func(t *testing.T) {
		_, err := tc.run("import")
		assert.Error(t, err)

		_, err = tc.run("import", "--replay", "not-a-uuid")
		assert.ErrorContains(t, err, "invalid --replay")

		_, err = tc.run("import", tc.writeFile(t, "empty.csv", ""))
		assert.ErrorContains(t, err, "file is empty")

		_, err = tc.run("import", filepath.Join(tc.dir, "missing.csv"))
		assert.ErrorContains(t, err, "failed to read")
	})
}

func TestReportCommands(t *testing.T) {
	tc := newTestCLI(t)
	_, err := tc.run("import", tc.writeFile(t, "ledger.csv", ledgerCSV), "--archive=false")
	require.NoError(t, err)

	t.Run("kpi json", func(t *testing.T) {
		out, err := tc.run("report", "kpi", "--year", "2024", "--json")
		require.NoError(t, err)

		var kpi struct {
			TotalPlanMinor   int64 `json:"total_plan_minor"`
			TotalActualMinor int64 `json:"total_actual_minor"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &kpi))
		assert.Equal(t, int64(15000), kpi.TotalPlanMinor)
		assert.Equal(t, int64(4000), kpi.TotalActualMinor)
	})

	t.Run("tables", func(t *testing.T) {
		for _, name := range []string{"monthly", "quarterly", "kpi", "risk", "reminders"} {
			out, err := tc.run("report", name, "--year", "2024")
			require.NoError(t, err, name)
			assert.NotEmpty(t, out, name)
		}

		out, err := tc.run("report", "quarterly", "--year", "2024")
		require.NoError(t, err)
		assert.Contains(t, out, "Q1")
		assert.Contains(t, out, "Q4")
	})

	t.Run("bad filters", func(t *testing.T) {
		_, err := tc.run("report", "kpi", "--cost-type", "OTHER")
		assert.ErrorContains(t, err, "invalid --cost-type")

		_, err = tc.run("report", "monthly", "--scenario-id", "nope")
		assert.ErrorContains(t, err, "invalid --scenario-id")

		_, err = tc.run("report", "monthly", "--month", "13")
		assert.Error(t, err)
	})
}

func TestCleanupAndScenarioCommands(t *testing.T) {
	tc := newTestCLI(t)
	_, err := tc.run("import", tc.writeFile(t, "ledger.csv", ledgerCSV), "--archive=false")
	require.NoError(t, err)

	scenario, err := tc.store.GetScenario(context.Background(), "Baseline", 2024)
	require.NoError(t, err)

	_, err = tc.run("scenario", "delete", scenario.ID.String())
	var constraint *budget.ConstraintError
	require.ErrorAs(t, err, &constraint)

	out, err := tc.run("scenario", "delete", scenario.ID.String(), "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "2 plans, 1 expenses")

	_, err = tc.run("scenario", "delete", uuid.NewString())
	assert.ErrorIs(t, err, budget.ErrNotFound)

	out, err = tc.run("cleanup", "--json")
	require.NoError(t, err)
	var result struct {
		DeletedBudgetItems int64 `json:"deleted_budget_items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, int64(2), result.DeletedBudgetItems)

	items, err := tc.store.ListBudgetItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = tc.run("cleanup", "--item-id", "x")
	assert.ErrorContains(t, err, "invalid --item-id")
}

func TestMigrateRequiresDSN(t *testing.T) {
	tc := newTestCLI(t)
	_, err := tc.run("migrate")
	assert.ErrorContains(t, err, "needs --dsn")
}

func TestExportCommand(t *testing.T) {
	tc := newTestCLI(t)
	_, err := tc.run("import", tc.writeFile(t, "ledger.csv", ledgerCSV), "--archive=false")
	require.NoError(t, err)

	t.Run("csv to stdout", func(t *testing.T) {
		out, err := tc.run("export", "--year", "2024")
		require.NoError(t, err)
		assert.Contains(t, out, "type,budget_code,budget_name")
		assert.Contains(t, out, "plan,SK01,Laptops,,,,Baseline,2024,1,,100.00")
		assert.Contains(t, out, "expense,SK01,Laptops,,,,Baseline,2024,1,,40.00,2024-01-10")
	})

	t.Run("xlsx file imports back", func(t *testing.T) {
		path := filepath.Join(tc.dir, "ledger.xlsx")
		_, err := tc.run("export", "--year", "2024", "-o", path)
		require.NoError(t, err)

		fresh := newTestCLI(t)
		out, err := fresh.run("import", path, "--archive=false", "--json")
		require.NoError(t, err)
		var summary struct {
			ImportedPlans    int `json:"imported_plans"`
			ImportedExpenses int `json:"imported_expenses"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		assert.Equal(t, 2, summary.ImportedPlans)
		assert.Equal(t, 1, summary.ImportedExpenses)
	})

	t.Run("quarterly", func(t *testing.T) {
		out, err := tc.run("export", "--year", "2024", "--quarterly")
		require.NoError(t, err)
		assert.Contains(t, out, "Q1,150.00,40.00,110.00,0.00,0.00")
	})

	t.Run("argument errors", func(t *testing.T) {
		_, err := tc.run("export", "--year", "2024", "--format", "pdf")
		assert.ErrorContains(t, err, "invalid --format")

		_, err = tc.run("export", "--year", "2024", "--format", "xlsx")
		assert.ErrorContains(t, err, "needs --output")
	})
}
