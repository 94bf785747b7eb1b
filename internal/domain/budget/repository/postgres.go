package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
)

// DBTX is the query surface shared by pools, connections and transactions
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a DBTX that can open transactions. *pgxpool.Pool and pgxmock satisfy it.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on pgx
type PostgresStore struct {
	*postgresQueries
	pool Pool
}

// NewPostgresStore creates a new Postgres-backed store
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{
		postgresQueries: &postgresQueries{db: pool},
		pool:            pool,
	}
}

// WithinTx runs fn inside a database transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, &postgresQueries{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("failed to rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError("commit transaction", err)
	}
	return nil
}

type postgresQueries struct {
	db DBTX
}

// mapError translates pgx errors onto the budget error taxonomy. SQLSTATE
// class 23 is an integrity violation, class 22 is a data exception.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return budget.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return &budget.ConstraintError{Constraint: pgErr.ConstraintName, Err: err}
		case strings.HasPrefix(pgErr.Code, "22"):
			return &budget.ValidationError{Field: pgErr.ColumnName, Reason: pgErr.Message}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// whereBuilder accumulates AND-ed clauses with positional arguments.
// Each clause carries one %d verb for its placeholder index.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func planWhere(f budget.Filter) *whereBuilder {
	w := &whereBuilder{}
	if f.Year != 0 {
		w.add("p.year = $%d", f.Year)
	}
	if f.Month != 0 {
		w.add("p.month = $%d", f.Month)
	}
	if f.UntilMonth != 0 {
		w.add("p.month <= $%d", f.UntilMonth)
	}
	if f.ScenarioID != nil {
		w.add("p.scenario_id = $%d", *f.ScenarioID)
	}
	if f.BudgetItemID != nil {
		w.add("p.budget_item_id = $%d", *f.BudgetItemID)
	}
	if f.Department != nil {
		w.add("COALESCE(TRIM(p.department), '') = $%d", budget.NormalizeDepartment(f.Department))
	}
	if f.CostType != budget.CostTypeUnset {
		w.add("bi.cost_type = $%d", string(f.CostType))
	}
	return w
}

func expenseWhere(f budget.Filter, scope budget.ExpenseScope) *whereBuilder {
	w := &whereBuilder{}
	switch scope {
	case budget.ScopeActual:
		w.raw("e.status = 'recorded' AND e.is_out_of_budget = false")
	case budget.ScopeOutOfBudget:
		w.raw("e.status = 'recorded' AND e.is_out_of_budget = true")
	case budget.ScopeCancelled:
		w.raw("e.status = 'cancelled'")
	case budget.ScopeRecorded:
		w.raw("e.status = 'recorded'")
	}
	if f.Year != 0 {
		w.add("EXTRACT(YEAR FROM e.expense_date)::int = $%d", f.Year)
	}
	if f.Month != 0 {
		w.add("EXTRACT(MONTH FROM e.expense_date)::int = $%d", f.Month)
	}
	if f.UntilMonth != 0 {
		w.add("EXTRACT(MONTH FROM e.expense_date)::int <= $%d", f.UntilMonth)
	}
	if f.ScenarioID != nil {
		w.add("e.scenario_id = $%d", *f.ScenarioID)
	}
	if f.BudgetItemID != nil {
		w.add("e.budget_item_id = $%d", *f.BudgetItemID)
	}
	if f.CostType != budget.CostTypeUnset {
		w.add("bi.cost_type = $%d", string(f.CostType))
	}
	return w
}

// ============================================================================
// Budget items
// ============================================================================

const budgetItemColumns = `id, code, name, cost_type, asset_type, map_attribute, created_at, updated_at`

func scanBudgetItem(row pgx.Row) (*budget.BudgetItem, error) {
	var item budget.BudgetItem
	var costType string
	err := row.Scan(
		&item.ID, &item.Code, &item.Name, &costType,
		&item.AssetType, &item.MapAttribute, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.CostType = budget.CostType(costType)
	return &item, nil
}

func (q *postgresQueries) GetBudgetItemByCode(ctx context.Context, code string) (*budget.BudgetItem, error) {
	query := `SELECT ` + budgetItemColumns + ` FROM budget_items WHERE code = $1`
	item, err := scanBudgetItem(q.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, mapError("get budget item", err)
	}
	return item, nil
}

func (q *postgresQueries) CreateBudgetItem(ctx context.Context, item *budget.BudgetItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	query := `
		INSERT INTO budget_items (id, code, name, cost_type, asset_type, map_attribute)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := q.db.QueryRow(ctx, query,
		item.ID, item.Code, item.Name, string(item.CostType), item.AssetType, item.MapAttribute,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	return mapError("create budget item", err)
}

func (q *postgresQueries) UpdateBudgetItem(ctx context.Context, item *budget.BudgetItem) error {
	query := `
		UPDATE budget_items
		SET name = $2, cost_type = $3, asset_type = $4, map_attribute = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := q.db.QueryRow(ctx, query,
		item.ID, item.Name, string(item.CostType), item.AssetType, item.MapAttribute,
	).Scan(&item.UpdatedAt)
	return mapError("update budget item", err)
}

func (q *postgresQueries) ListBudgetItems(ctx context.Context) ([]budget.BudgetItem, error) {
	query := `SELECT ` + budgetItemColumns + ` FROM budget_items ORDER BY created_at, code`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, mapError("list budget items", err)
	}
	defer rows.Close()

	var items []budget.BudgetItem
	for rows.Next() {
		item, err := scanBudgetItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (q *postgresQueries) SetBudgetItemCode(ctx context.Context, id uuid.UUID, oldCode, newCode string) error {
	tag, err := q.db.Exec(ctx, `UPDATE budget_items SET code = $2, updated_at = now() WHERE id = $1`, id, newCode)
	if err != nil {
		return mapError("rename budget item", err)
	}
	if tag.RowsAffected() == 0 {
		return budget.ErrNotFound
	}

	_, err = q.db.Exec(ctx, `UPDATE purchase_form_status SET budget_code = $2 WHERE budget_code = $1`, oldCode, newCode)
	return mapError("move form statuses", err)
}

// DeleteOrphanBudgetItems removes items without plans or expenses together
// with the form statuses filed under their codes, so a code freed here and
// reused by resequencing starts without flags.
func (q *postgresQueries) DeleteOrphanBudgetItems(ctx context.Context) (int64, error) {
	query := `
		WITH orphans AS (
			DELETE FROM budget_items bi
			WHERE NOT EXISTS (SELECT 1 FROM plan_entries p WHERE p.budget_item_id = bi.id)
			  AND NOT EXISTS (SELECT 1 FROM expenses e WHERE e.budget_item_id = bi.id)
			RETURNING bi.code
		), forms AS (
			DELETE FROM purchase_form_status f
			USING orphans o
			WHERE f.budget_code = o.code
		)
		SELECT count(*) FROM orphans
	`
	var deleted int64
	if err := q.db.QueryRow(ctx, query).Scan(&deleted); err != nil {
		return 0, mapError("delete orphan budget items", err)
	}
	return deleted, nil
}

// ============================================================================
// Scenarios
// ============================================================================

func (q *postgresQueries) GetScenario(ctx context.Context, name string, year int) (*budget.Scenario, error) {
	var s budget.Scenario
	err := q.db.QueryRow(ctx,
		`SELECT id, name, year, created_at FROM scenarios WHERE name = $1 AND year = $2`,
		name, year,
	).Scan(&s.ID, &s.Name, &s.Year, &s.CreatedAt)
	if err != nil {
		return nil, mapError("get scenario", err)
	}
	return &s, nil
}

func (q *postgresQueries) UpsertScenario(ctx context.Context, s *budget.Scenario) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	// The no-op update makes RETURNING yield the winning row on conflict.
	query := `
		INSERT INTO scenarios (id, name, year)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, year) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, created_at
	`
	err := q.db.QueryRow(ctx, query, s.ID, s.Name, s.Year).Scan(&s.ID, &s.CreatedAt)
	return mapError("upsert scenario", err)
}

func (q *postgresQueries) ListScenarios(ctx context.Context, year int) ([]budget.Scenario, error) {
	query := `SELECT id, name, year, created_at FROM scenarios`
	var args []any
	if year != 0 {
		query += ` WHERE year = $1`
		args = append(args, year)
	}
	query += ` ORDER BY year, name`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list scenarios", err)
	}
	defer rows.Close()

	var scenarios []budget.Scenario
	for rows.Next() {
		var s budget.Scenario
		if err := rows.Scan(&s.ID, &s.Name, &s.Year, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

func (q *postgresQueries) CountScenarioReferences(ctx context.Context, id uuid.UUID) (int64, error) {
	query := `
		SELECT (SELECT COUNT(*) FROM plan_entries WHERE scenario_id = $1)
		     + (SELECT COUNT(*) FROM expenses WHERE scenario_id = $1)
	`
	var n int64
	if err := q.db.QueryRow(ctx, query, id).Scan(&n); err != nil {
		return 0, mapError("count scenario references", err)
	}
	return n, nil
}

func (q *postgresQueries) DeleteScenario(ctx context.Context, id uuid.UUID) (*ScenarioDeletion, error) {
	result := &ScenarioDeletion{}

	tag, err := q.db.Exec(ctx, `DELETE FROM plan_entries WHERE scenario_id = $1`, id)
	if err != nil {
		return nil, mapError("delete scenario plans", err)
	}
	result.DeletedPlans = tag.RowsAffected()

	tag, err = q.db.Exec(ctx, `DELETE FROM expenses WHERE scenario_id = $1`, id)
	if err != nil {
		return nil, mapError("delete scenario expenses", err)
	}
	result.DeletedExpenses = tag.RowsAffected()

	if _, err := q.db.Exec(ctx, `DELETE FROM purchase_form_status WHERE scenario_id = $1`, id); err != nil {
		return nil, mapError("delete scenario form statuses", err)
	}

	tag, err = q.db.Exec(ctx, `DELETE FROM scenarios WHERE id = $1`, id)
	if err != nil {
		return nil, mapError("delete scenario", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, budget.ErrNotFound
	}
	return result, nil
}

// ============================================================================
// Plans and expenses
// ============================================================================

func (q *postgresQueries) CreatePlanEntry(ctx context.Context, p *budget.PlanEntry) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO plan_entries (id, year, month, amount_minor, scenario_id, budget_item_id, department)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := q.db.QueryRow(ctx, query,
		p.ID, p.Year, p.Month, p.AmountMinor, p.ScenarioID, p.BudgetItemID, p.Department,
	).Scan(&p.CreatedAt)
	return mapError("create plan entry", err)
}

func (q *postgresQueries) CreateExpense(ctx context.Context, e *budget.Expense) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = budget.ExpenseStatusRecorded
	}

	query := `
		INSERT INTO expenses (
			id, budget_item_id, scenario_id, expense_date, amount_minor, quantity,
			unit_price_minor, vendor, description, status, is_out_of_budget
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	err := q.db.QueryRow(ctx, query,
		e.ID, e.BudgetItemID, e.ScenarioID, e.ExpenseDate, e.AmountMinor, e.Quantity,
		e.UnitPriceMinor, e.Vendor, e.Description, string(e.Status), e.IsOutOfBudget,
	).Scan(&e.CreatedAt)
	return mapError("create expense", err)
}

func (q *postgresQueries) DeleteExpenses(ctx context.Context, f budget.CleanupFilter) (int64, error) {
	w := &whereBuilder{}
	if f.BudgetItemID != nil {
		w.add("budget_item_id = $%d", *f.BudgetItemID)
	}
	if f.ScenarioID != nil {
		w.add("scenario_id = $%d", *f.ScenarioID)
	}
	if f.ImportedOnly {
		w.raw("description ILIKE '%import%'")
	}

	tag, err := q.db.Exec(ctx, `DELETE FROM expenses`+w.String(), w.args...)
	if err != nil {
		return 0, mapError("delete expenses", err)
	}
	return tag.RowsAffected(), nil
}

func (q *postgresQueries) DeletePlans(ctx context.Context, f budget.CleanupFilter) (int64, error) {
	w := &whereBuilder{}
	if f.BudgetItemID != nil {
		w.add("budget_item_id = $%d", *f.BudgetItemID)
	}
	if f.ScenarioID != nil {
		w.add("scenario_id = $%d", *f.ScenarioID)
	}

	tag, err := q.db.Exec(ctx, `DELETE FROM plan_entries`+w.String(), w.args...)
	if err != nil {
		return 0, mapError("delete plans", err)
	}
	return tag.RowsAffected(), nil
}

// ============================================================================
// Aggregates
// ============================================================================

func (q *postgresQueries) sumByMonth(ctx context.Context, op, query string, args []any) (map[int]int64, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	sums := make(map[int]int64)
	for rows.Next() {
		var month int
		var amount int64
		if err := rows.Scan(&month, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", op, err)
		}
		sums[month] = amount
	}
	return sums, rows.Err()
}

func (q *postgresQueries) SumPlansByMonth(ctx context.Context, f budget.Filter) (map[int]int64, error) {
	w := planWhere(f)
	query := `
		SELECT p.month, COALESCE(SUM(p.amount_minor), 0)::bigint
		FROM plan_entries p
		JOIN budget_items bi ON bi.id = p.budget_item_id` + w.String() + `
		GROUP BY p.month`
	return q.sumByMonth(ctx, "sum plans by month", query, w.args)
}

func (q *postgresQueries) SumExpensesByMonth(ctx context.Context, f budget.Filter, scope budget.ExpenseScope) (map[int]int64, error) {
	w := expenseWhere(f, scope)
	query := `
		SELECT EXTRACT(MONTH FROM e.expense_date)::int, COALESCE(SUM(e.amount_minor), 0)::bigint
		FROM expenses e
		JOIN budget_items bi ON bi.id = e.budget_item_id` + w.String() + `
		GROUP BY 1`
	return q.sumByMonth(ctx, "sum expenses by month", query, w.args)
}

func (q *postgresQueries) SumPlansByItem(ctx context.Context, f budget.Filter) ([]budget.ItemTotal, error) {
	w := planWhere(f)
	query := `
		SELECT bi.id, bi.code, bi.name, COALESCE(SUM(p.amount_minor), 0)::bigint
		FROM plan_entries p
		JOIN budget_items bi ON bi.id = p.budget_item_id` + w.String() + `
		GROUP BY bi.id, bi.code, bi.name
		ORDER BY bi.code`

	rows, err := q.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, mapError("sum plans by item", err)
	}
	defer rows.Close()

	var totals []budget.ItemTotal
	for rows.Next() {
		var t budget.ItemTotal
		if err := rows.Scan(&t.BudgetItemID, &t.Code, &t.Name, &t.AmountMinor); err != nil {
			return nil, fmt.Errorf("failed to scan item total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (q *postgresQueries) SumExpensesByItem(ctx context.Context, f budget.Filter, scope budget.ExpenseScope) (map[uuid.UUID]int64, error) {
	w := expenseWhere(f, scope)
	query := `
		SELECT e.budget_item_id, COALESCE(SUM(e.amount_minor), 0)::bigint
		FROM expenses e
		JOIN budget_items bi ON bi.id = e.budget_item_id` + w.String() + `
		GROUP BY e.budget_item_id`

	rows, err := q.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, mapError("sum expenses by item", err)
	}
	defer rows.Close()

	sums := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var amount int64
		if err := rows.Scan(&id, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan expense total: %w", err)
		}
		sums[id] = amount
	}
	return sums, rows.Err()
}

func (q *postgresQueries) ListPlans(ctx context.Context, f budget.Filter) ([]budget.PlanEntry, error) {
	w := planWhere(f)
	query := `
		SELECT p.id, p.year, p.month, p.amount_minor, p.scenario_id, p.budget_item_id, p.department, p.created_at
		FROM plan_entries p
		JOIN budget_items bi ON bi.id = p.budget_item_id` + w.String() + `
		ORDER BY bi.code, p.month, p.created_at`

	rows, err := q.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, mapError("list plans", err)
	}
	defer rows.Close()

	var plans []budget.PlanEntry
	for rows.Next() {
		var p budget.PlanEntry
		if err := rows.Scan(&p.ID, &p.Year, &p.Month, &p.AmountMinor, &p.ScenarioID, &p.BudgetItemID, &p.Department, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan entry: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (q *postgresQueries) ListExpenses(ctx context.Context, f budget.Filter, scope budget.ExpenseScope) ([]budget.Expense, error) {
	w := expenseWhere(f, scope)
	query := `
		SELECT e.id, e.budget_item_id, e.scenario_id, e.expense_date, e.amount_minor, e.quantity,
		       e.unit_price_minor, e.vendor, e.description, e.status, e.is_out_of_budget, e.created_at
		FROM expenses e
		JOIN budget_items bi ON bi.id = e.budget_item_id` + w.String() + `
		ORDER BY e.created_at DESC`

	rows, err := q.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, mapError("list expenses", err)
	}
	defer rows.Close()

	var expenses []budget.Expense
	for rows.Next() {
		var e budget.Expense
		var status string
		if err := rows.Scan(
			&e.ID, &e.BudgetItemID, &e.ScenarioID, &e.ExpenseDate, &e.AmountMinor, &e.Quantity,
			&e.UnitPriceMinor, &e.Vendor, &e.Description, &status, &e.IsOutOfBudget, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Status = budget.ExpenseStatus(status)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (q *postgresQueries) LastExpenseDates(ctx context.Context, f budget.Filter) (map[uuid.UUID]time.Time, error) {
	w := expenseWhere(budget.Filter{ScenarioID: f.ScenarioID, BudgetItemID: f.BudgetItemID}, budget.ScopeRecorded)
	query := `
		SELECT e.budget_item_id, MAX(e.expense_date)
		FROM expenses e
		JOIN budget_items bi ON bi.id = e.budget_item_id` + w.String() + `
		GROUP BY e.budget_item_id`

	rows, err := q.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, mapError("last expense dates", err)
	}
	defer rows.Close()

	last := make(map[uuid.UUID]time.Time)
	for rows.Next() {
		var id uuid.UUID
		var date time.Time
		if err := rows.Scan(&id, &date); err != nil {
			return nil, fmt.Errorf("failed to scan last expense date: %w", err)
		}
		last[id] = date
	}
	return last, rows.Err()
}

// ============================================================================
// Purchase form statuses
// ============================================================================

func (q *postgresQueries) UpsertFormStatus(ctx context.Context, s budget.FormStatus) error {
	query := `
		INSERT INTO purchase_form_status (budget_code, year, month, scenario_id, department, is_form_prepared, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (budget_code, year, month, scenario_id, department)
		DO UPDATE SET is_form_prepared = EXCLUDED.is_form_prepared, updated_at = now()
	`
	_, err := q.db.Exec(ctx, query,
		s.BudgetCode, s.Year, s.Month, s.ScenarioID, strings.TrimSpace(s.Department), s.IsFormPrepared,
	)
	return mapError("upsert form status", err)
}

func (q *postgresQueries) ListFormStatuses(ctx context.Context, fq FormStatusQuery) ([]budget.FormStatus, error) {
	w := &whereBuilder{}
	if fq.Year != 0 {
		w.add("year = $%d", fq.Year)
	}
	if fq.Month != 0 {
		w.add("month = $%d", fq.Month)
	}
	if fq.ScenarioID != nil {
		w.add("scenario_id = $%d", *fq.ScenarioID)
	}
	if fq.Department != nil {
		w.add("department = $%d", budget.NormalizeDepartment(fq.Department))
	}
	if fq.PreparedOnly {
		w.raw("is_form_prepared = true")
	}

	query := `
		SELECT budget_code, year, month, scenario_id, department, is_form_prepared, updated_at
		FROM purchase_form_status` + w.String() + `
		ORDER BY month, budget_code, department`

	rows, err := q.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, mapError("list form statuses", err)
	}
	defer rows.Close()

	var out []budget.FormStatus
	for rows.Next() {
		var s budget.FormStatus
		if err := rows.Scan(&s.BudgetCode, &s.Year, &s.Month, &s.ScenarioID, &s.Department, &s.IsFormPrepared, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan form status: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
