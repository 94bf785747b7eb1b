// Package export writes the ledger out in the same column layout the importer
// reads, so an export of one ledger can be imported into another.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"

	"github.com/FACorreiaa/budget-ledger/internal/domain/analytics"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
	"github.com/FACorreiaa/budget-ledger/pkg/money"
)

var tracer = otel.Tracer("github.com/FACorreiaa/budget-ledger/internal/domain/export")

// Sheet names of the XLSX export. The ledger sheet name is one the importer
// prefers, so re-importing a workbook picks it over the summary.
const (
	LedgerSheet    = "Data"
	QuarterlySheet = "Quarterly"
)

// Columns is the header of the ledger export, in canonical field names
var Columns = []string{
	alias.FieldType,
	alias.FieldBudgetCode,
	alias.FieldBudgetName,
	alias.FieldMapAttribute,
	alias.FieldCostType,
	alias.FieldAssetType,
	alias.FieldScenario,
	alias.FieldYear,
	alias.FieldMonth,
	alias.FieldDepartment,
	alias.FieldAmount,
	alias.FieldDate,
	alias.FieldQuantity,
	alias.FieldUnitPrice,
	alias.FieldVendor,
	alias.FieldDescription,
	alias.FieldStatus,
	alias.FieldOutOfBudget,
}

var quarterlyColumns = []string{"quarter", "planned", "actual", "saving", "out_of_budget", "cancelled"}

// QuarterlySource provides the quarter roll-ups of the summary export
type QuarterlySource interface {
	Quarterly(ctx context.Context, f budget.Filter) ([]analytics.QuarterlyAggregate, error)
}

// Service renders ledger exports
type Service struct {
	store     repository.Store
	quarterly QuarterlySource
	currency  string
	logger    *slog.Logger
}

// NewService creates an export service. Amounts are written in major units of currency.
func NewService(store repository.Store, quarterly QuarterlySource, currency string, logger *slog.Logger) *Service {
	return &Service{store: store, quarterly: quarterly, currency: currency, logger: logger}
}

// Rows returns the plans of the filter followed by its expenses, each row
// holding one value per entry of Columns. Plans are ordered by code, month and
// department; expenses by date, then code. Department only narrows plans.
func (s *Service) Rows(ctx context.Context, f budget.Filter) ([][]string, error) {
	if f.Year == 0 {
		return nil, budget.NewValidationError("year", "is required")
	}

	ctx, span := tracer.Start(ctx, "export.Rows")
	defer span.End()

	items, err := s.store.ListBudgetItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget items: %w", err)
	}
	byID := make(map[uuid.UUID]budget.BudgetItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	scenarios, err := s.store.ListScenarios(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	scenarioNames := make(map[uuid.UUID]string, len(scenarios))
	for _, sc := range scenarios {
		scenarioNames[sc.ID] = sc.Name
	}

	plans, err := s.store.ListPlans(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	sort.SliceStable(plans, func(i, j int) bool {
		a, b := plans[i], plans[j]
		if ca, cb := byID[a.BudgetItemID].Code, byID[b.BudgetItemID].Code; ca != cb {
			return ca < cb
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.DepartmentKey() < b.DepartmentKey()
	})

	ef := f
	ef.Department = nil
	recorded, err := s.store.ListExpenses(ctx, ef, budget.ScopeRecorded)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	cancelled, err := s.store.ListExpenses(ctx, ef, budget.ScopeCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list cancelled expenses: %w", err)
	}
	expenses := append(recorded, cancelled...)
	sort.SliceStable(expenses, func(i, j int) bool {
		a, b := expenses[i], expenses[j]
		if !a.ExpenseDate.Equal(b.ExpenseDate) {
			return a.ExpenseDate.Before(b.ExpenseDate)
		}
		return byID[a.BudgetItemID].Code < byID[b.BudgetItemID].Code
	})

	rows := make([][]string, 0, len(plans)+len(expenses))
	for _, p := range plans {
		item := byID[p.BudgetItemID]
		row := s.itemColumns("plan", item)
		row[6] = scenarioNames[p.ScenarioID]
		row[7] = strconv.Itoa(p.Year)
		row[8] = strconv.Itoa(p.Month)
		row[9] = p.DepartmentKey()
		row[10] = s.major(p.AmountMinor)
		rows = append(rows, row)
	}
	for _, e := range expenses {
		item := byID[e.BudgetItemID]
		row := s.itemColumns("expense", item)
		if e.ScenarioID != nil {
			row[6] = scenarioNames[*e.ScenarioID]
		}
		row[7] = strconv.Itoa(e.ExpenseDate.Year())
		row[8] = strconv.Itoa(int(e.ExpenseDate.Month()))
		row[10] = s.major(e.AmountMinor)
		row[11] = e.ExpenseDate.Format("2006-01-02")
		row[12] = e.Quantity.String()
		row[13] = s.major(e.UnitPriceMinor)
		row[14] = deref(e.Vendor)
		row[15] = deref(e.Description)
		row[16] = string(e.Status)
		row[17] = strconv.FormatBool(e.IsOutOfBudget)
		rows = append(rows, row)
	}

	s.logger.Debug("ledger export built", "year", f.Year, "plans", len(plans), "expenses", len(expenses))
	return rows, nil
}

func (s *Service) itemColumns(kind string, item budget.BudgetItem) []string {
	row := make([]string, len(Columns))
	row[0] = kind
	row[1] = item.Code
	row[2] = item.Name
	row[3] = deref(item.MapAttribute)
	row[4] = string(item.CostType)
	row[5] = deref(item.AssetType)
	return row
}

// major renders major units with two decimals
func (s *Service) major(minor int64) string {
	return money.FromMinor(minor, s.currency).StringFixed(2)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// ============================================================================
// Writers
// ============================================================================

// WriteCSV writes the ledger rows with a header line
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, f budget.Filter) error {
	rows, err := s.Rows(ctx, f)
	if err != nil {
		return err
	}
	return writeCSV(w, Columns, rows)
}

// WriteQuarterlyCSV writes the quarter roll-ups of the filter
func (s *Service) WriteQuarterlyCSV(ctx context.Context, w io.Writer, f budget.Filter) error {
	rows, err := s.quarterlyRows(ctx, f)
	if err != nil {
		return err
	}
	return writeCSV(w, quarterlyColumns, rows)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

func (s *Service) quarterlyRows(ctx context.Context, f budget.Filter) ([][]string, error) {
	quarters, err := s.quarterly.Quarterly(ctx, f)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(quarters))
	for _, q := range quarters {
		rows = append(rows, []string{
			fmt.Sprintf("Q%d", q.Quarter),
			s.major(q.PlannedMinor),
			s.major(q.ActualMinor),
			s.major(q.Saving()),
			s.major(q.OutOfBudgetMinor),
			s.major(q.CancelledMinor),
		})
	}
	return rows, nil
}

// WriteXLSX writes a workbook with the ledger sheet and the quarterly summary
func (s *Service) WriteXLSX(ctx context.Context, w io.Writer, f budget.Filter) error {
	rows, err := s.Rows(ctx, f)
	if err != nil {
		return err
	}
	quarters, err := s.quarterlyRows(ctx, f)
	if err != nil {
		return err
	}

	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName(wb.GetSheetName(0), LedgerSheet); err != nil {
		return fmt.Errorf("failed to name ledger sheet: %w", err)
	}
	if err := fillSheet(wb, LedgerSheet, Columns, rows); err != nil {
		return err
	}
	if _, err := wb.NewSheet(QuarterlySheet); err != nil {
		return fmt.Errorf("failed to add quarterly sheet: %w", err)
	}
	if err := fillSheet(wb, QuarterlySheet, quarterlyColumns, quarters); err != nil {
		return err
	}

	if _, err := wb.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func fillSheet(wb *excelize.File, sheet string, header []string, rows [][]string) error {
	sw, err := wb.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open %s sheet: %w", sheet, err)
	}

	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := sw.SetRow("A1", values); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for i, row := range rows {
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return sw.Flush()
}
