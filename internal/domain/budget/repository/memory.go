package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store with the same constraint semantics as the
// Postgres schema. WithinTx works on a copy of the state and swaps it in on
// commit, so a failed unit of work leaves nothing behind.
type MemoryStore struct {
	memQueries

	mu    sync.Mutex
	state *memState
	now   func() time.Time

	// Fault, when set, is consulted before every write. A non-nil return is
	// surfaced as-is, which lets tests simulate transient storage failures.
	Fault func(op string) error
}

type formKey struct {
	code       string
	year       int
	month      int
	scenarioID uuid.UUID
	department string
}

type memState struct {
	items     map[uuid.UUID]budget.BudgetItem
	scenarios map[uuid.UUID]budget.Scenario
	plans     []budget.PlanEntry
	expenses  []budget.Expense
	forms     map[formKey]budget.FormStatus
}

func newMemState() *memState {
	return &memState{
		items:     make(map[uuid.UUID]budget.BudgetItem),
		scenarios: make(map[uuid.UUID]budget.Scenario),
		forms:     make(map[formKey]budget.FormStatus),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		items:     make(map[uuid.UUID]budget.BudgetItem, len(s.items)),
		scenarios: make(map[uuid.UUID]budget.Scenario, len(s.scenarios)),
		plans:     append([]budget.PlanEntry(nil), s.plans...),
		expenses:  append([]budget.Expense(nil), s.expenses...),
		forms:     make(map[formKey]budget.FormStatus, len(s.forms)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.scenarios {
		c.scenarios[k] = v
	}
	for k, v := range s.forms {
		c.forms[k] = v
	}
	return c
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{state: newMemState(), now: time.Now}
	m.memQueries = memQueries{store: m}
	return m
}

// WithClock overrides the timestamp source
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

// WithinTx runs fn on a snapshot and commits it when fn succeeds
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(ctx, &memQueries{store: m, tx: snapshot}); err != nil {
		return err
	}
	m.state = snapshot
	return nil
}

// memQueries reads and writes either the live state (under the store lock) or
// a transaction snapshot (lock already held by WithinTx).
type memQueries struct {
	store *MemoryStore
	tx    *memState
}

func (q *memQueries) begin() (*memState, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.store.mu.Lock()
	return q.store.state, q.store.mu.Unlock
}

func (q *memQueries) fault(op string) error {
	if q.store.Fault == nil {
		return nil
	}
	return q.store.Fault(op)
}

// ============================================================================
// Budget items
// ============================================================================

func (q *memQueries) GetBudgetItemByCode(_ context.Context, code string) (*budget.BudgetItem, error) {
	st, done := q.begin()
	defer done()

	for _, item := range st.items {
		if item.Code == code {
			found := item
			return &found, nil
		}
	}
	return nil, budget.ErrNotFound
}

func (q *memQueries) CreateBudgetItem(_ context.Context, item *budget.BudgetItem) error {
	st, done := q.begin()
	defer done()

	if err := q.fault("create_budget_item"); err != nil {
		return err
	}
	if strings.TrimSpace(item.Code) == "" {
		return &budget.ConstraintError{Constraint: "budget_items_code_not_null", Err: errors.New("empty code")}
	}
	for _, existing := range st.items {
		if existing.Code == item.Code {
			return &budget.ConstraintError{Constraint: "budget_items_code_key", Err: fmt.Errorf("duplicate code %q", item.Code)}
		}
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := q.store.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	st.items[item.ID] = *item
	return nil
}

func (q *memQueries) UpdateBudgetItem(_ context.Context, item *budget.BudgetItem) error {
	st, done := q.begin()
	defer done()

	if err := q.fault("update_budget_item"); err != nil {
		return err
	}
	existing, ok := st.items[item.ID]
	if !ok {
		return budget.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = q.store.now()
	st.items[item.ID] = *item
	return nil
}

func (q *memQueries) ListBudgetItems(_ context.Context) ([]budget.BudgetItem, error) {
	st, done := q.begin()
	defer done()

	items := make([]budget.BudgetItem, 0, len(st.items))
	for _, item := range st.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Code < items[j].Code
	})
	return items, nil
}

func (q *memQueries) SetBudgetItemCode(_ context.Context, id uuid.UUID, oldCode, newCode string) error {
	st, done := q.begin()
	defer done()

	if err := q.fault("set_budget_item_code"); err != nil {
		return err
	}
	item, ok := st.items[id]
	if !ok {
		return budget.ErrNotFound
	}
	for otherID, other := range st.items {
		if otherID != id && other.Code == newCode {
			return &budget.ConstraintError{Constraint: "budget_items_code_key", Err: fmt.Errorf("duplicate code %q", newCode)}
		}
	}

	item.Code = newCode
	item.UpdatedAt = q.store.now()
	st.items[id] = item

	for key, status := range st.forms {
		if key.code != oldCode {
			continue
		}
		delete(st.forms, key)
		key.code = newCode
		status.BudgetCode = newCode
		st.forms[key] = status
	}
	return nil
}

func (q *memQueries) DeleteOrphanBudgetItems(_ context.Context) (int64, error) {
	st, done := q.begin()
	defer done()

	if err := q.fault("delete_orphans"); err != nil {
		return 0, err
	}
	referenced := make(map[uuid.UUID]bool)
	for _, p := range st.plans {
		referenced[p.BudgetItemID] = true
	}
	for _, e := range st.expenses {
		referenced[e.BudgetItemID] = true
	}

	var deleted int64
	for id, item := range st.items {
		if referenced[id] {
			continue
		}
		for key := range st.forms {
			if key.code == item.Code {
				delete(st.forms, key)
			}
		}
		delete(st.items, id)
		deleted++
	}
	return deleted, nil
}

// ============================================================================
// Scenarios
// ============================================================================

func (q *memQueries) GetScenario(_ context.Context, name string, year int) (*budget.Scenario, error) {
	st, done := q.begin()
	defer done()

	for _, s := range st.scenarios {
		if s.Name == name && s.Year == year {
			found := s
			return &found, nil
		}
	}
	return nil, budget.ErrNotFound
}

func (q *memQueries) ListScenarios(_ context.Context, year int) ([]budget.Scenario, error) {
	st, done := q.begin()
	defer done()

	scenarios := make([]budget.Scenario, 0, len(st.scenarios))
	for _, s := range st.scenarios {
		if year == 0 || s.Year == year {
			scenarios = append(scenarios, s)
		}
	}
	sort.Slice(scenarios, func(i, j int) bool {
		if scenarios[i].Year != scenarios[j].Year {
			return scenarios[i].Year < scenarios[j].Year
		}
		return scenarios[i].Name < scenarios[j].Name
	})
	return scenarios, nil
}

func (q *memQueries) UpsertScenario(_ context.Context, s *budget.Scenario) error {
	st, done := q.begin()
	defer done()

	if err := q.fault("upsert_scenario"); err != nil {
		return err
	}
	for _, existing := range st.scenarios {
		if existing.Name == s.Name && existing.Year == s.Year {
			*s = existing
			return nil
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = q.store.now()
	st.scenarios[s.ID] = *s
	return nil
}

func (q *memQueries) CountScenarioReferences(_ context.Context, id uuid.UUID) (int64, error) {
	st, done := q.begin()
	defer done()

	var n int64
	for _, p := range st.plans {
		if p.ScenarioID == id {
			n++
		}
	}
	for _, e := range st.expenses {
		if e.ScenarioID != nil && *e.ScenarioID == id {
			n++
		}
	}
	return n, nil
}

func (q *memQueries) DeleteScenario(_ context.Context, id uuid.UUID) (*ScenarioDeletion, error) {
	st, done := q.begin()
	defer done()

	if err := q.fault("delete_scenario"); err != nil {
		return nil, err
	}
	if _, ok := st.scenarios[id]; !ok {
		return nil, budget.ErrNotFound
	}

	result := &ScenarioDeletion{}
	plans := st.plans[:0]
	for _, p := range st.plans {
		if p.ScenarioID == id {
			result.DeletedPlans++
			continue
		}
		plans = append(plans, p)
	}
	st.plans = plans

	expenses := st.expenses[:0]
	for _, e := range st.expenses {
		if e.ScenarioID != nil && *e.ScenarioID == id {
			result.DeletedExpenses++
			continue
		}
		expenses = append(expenses, e)
	}
	st.expenses = expenses

	for key := range st.forms {
		if key.scenarioID == id {
			delete(st.forms, key)
		}
	}
	delete(st.scenarios, id)
	return result, nil
}

// ============================================================================
// Plans and expenses
// ============================================================================

func (q *memQueries) CreatePlanEntry(_ context.Context, p *budget.PlanEntry) error {
	st, done := q.begin()
	defer done()

	if err := q.fault("create_plan_entry"); err != nil {
		return err
	}
	if p.Month < 1 || p.Month > 12 {
		return &budget.ConstraintError{Constraint: "plan_entries_month_check", Err: fmt.Errorf("month %d", p.Month)}
	}
	if p.AmountMinor < 0 {
		return &budget.ConstraintError{Constraint: "plan_entries_amount_minor_check", Err: fmt.Errorf("amount %d", p.AmountMinor)}
	}
	if _, ok := st.items[p.BudgetItemID]; !ok {
		return &budget.ConstraintError{Constraint: "plan_entries_budget_item_id_fkey", Err: budget.ErrNotFound}
	}
	if _, ok := st.scenarios[p.ScenarioID]; !ok {
		return &budget.ConstraintError{Constraint: "plan_entries_scenario_id_fkey", Err: budget.ErrNotFound}
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = q.store.now()
	st.plans = append(st.plans, *p)
	return nil
}

func (q *memQueries) CreateExpense(_ context.Context, e *budget.Expense) error {
	st, done := q.begin()
	defer done()

	if err := q.fault("create_expense"); err != nil {
		return err
	}
	if e.AmountMinor < 0 || e.UnitPriceMinor < 0 || e.Quantity.IsNegative() {
		return &budget.ConstraintError{Constraint: "expenses_non_negative_check", Err: errors.New("negative value")}
	}
	if _, ok := st.items[e.BudgetItemID]; !ok {
		return &budget.ConstraintError{Constraint: "expenses_budget_item_id_fkey", Err: budget.ErrNotFound}
	}
	if e.ScenarioID != nil {
		if _, ok := st.scenarios[*e.ScenarioID]; !ok {
			return &budget.ConstraintError{Constraint: "expenses_scenario_id_fkey", Err: budget.ErrNotFound}
		}
	}
	if e.Status == "" {
		e.Status = budget.ExpenseStatusRecorded
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = q.store.now()
	st.expenses = append(st.expenses, *e)
	return nil
}

func (q *memQueries) DeleteExpenses(_ context.Context, f budget.CleanupFilter) (int64, error) {
	st, done := q.begin()
	defer done()

	if err := q.fault("delete_expenses"); err != nil {
		return 0, err
	}
	var deleted int64
	kept := st.expenses[:0]
	for _, e := range st.expenses {
		if cleanupMatchesExpense(f, e) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	st.expenses = kept
	return deleted, nil
}

func (q *memQueries) DeletePlans(_ context.Context, f budget.CleanupFilter) (int64, error) {
	st, done := q.begin()
	defer done()

	if err := q.fault("delete_plans"); err != nil {
		return 0, err
	}
	var deleted int64
	kept := st.plans[:0]
	for _, p := range st.plans {
		if (f.BudgetItemID == nil || p.BudgetItemID == *f.BudgetItemID) &&
			(f.ScenarioID == nil || p.ScenarioID == *f.ScenarioID) {
			deleted++
			continue
		}
		kept = append(kept, p)
	}
	st.plans = kept
	return deleted, nil
}

func cleanupMatchesExpense(f budget.CleanupFilter, e budget.Expense) bool {
	if f.BudgetItemID != nil && e.BudgetItemID != *f.BudgetItemID {
		return false
	}
	if f.ScenarioID != nil && (e.ScenarioID == nil || *e.ScenarioID != *f.ScenarioID) {
		return false
	}
	if f.ImportedOnly {
		if e.Description == nil || !strings.Contains(strings.ToLower(*e.Description), "import") {
			return false
		}
	}
	return true
}

// ============================================================================
// Aggregates
// ============================================================================

func (st *memState) planMatches(f budget.Filter, p budget.PlanEntry) bool {
	if f.Year != 0 && p.Year != f.Year {
		return false
	}
	if f.Month != 0 && p.Month != f.Month {
		return false
	}
	if f.UntilMonth != 0 && p.Month > f.UntilMonth {
		return false
	}
	if f.ScenarioID != nil && p.ScenarioID != *f.ScenarioID {
		return false
	}
	if f.BudgetItemID != nil && p.BudgetItemID != *f.BudgetItemID {
		return false
	}
	if f.Department != nil && p.DepartmentKey() != budget.NormalizeDepartment(f.Department) {
		return false
	}
	if f.CostType != budget.CostTypeUnset && st.items[p.BudgetItemID].CostType != f.CostType {
		return false
	}
	return true
}

func (st *memState) expenseMatches(f budget.Filter, scope budget.ExpenseScope, e budget.Expense) bool {
	if !scope.Includes(e) {
		return false
	}
	if f.Year != 0 && e.ExpenseDate.Year() != f.Year {
		return false
	}
	month := int(e.ExpenseDate.Month())
	if f.Month != 0 && month != f.Month {
		return false
	}
	if f.UntilMonth != 0 && month > f.UntilMonth {
		return false
	}
	if f.ScenarioID != nil && (e.ScenarioID == nil || *e.ScenarioID != *f.ScenarioID) {
		return false
	}
	if f.BudgetItemID != nil && e.BudgetItemID != *f.BudgetItemID {
		return false
	}
	if f.CostType != budget.CostTypeUnset && st.items[e.BudgetItemID].CostType != f.CostType {
		return false
	}
	return true
}

func (q *memQueries) SumPlansByMonth(_ context.Context, f budget.Filter) (map[int]int64, error) {
	st, done := q.begin()
	defer done()

	sums := make(map[int]int64)
	for _, p := range st.plans {
		if st.planMatches(f, p) {
			sums[p.Month] += p.AmountMinor
		}
	}
	return sums, nil
}

func (q *memQueries) SumExpensesByMonth(_ context.Context, f budget.Filter, scope budget.ExpenseScope) (map[int]int64, error) {
	st, done := q.begin()
	defer done()

	sums := make(map[int]int64)
	for _, e := range st.expenses {
		if st.expenseMatches(f, scope, e) {
			sums[int(e.ExpenseDate.Month())] += e.AmountMinor
		}
	}
	return sums, nil
}

func (q *memQueries) SumPlansByItem(_ context.Context, f budget.Filter) ([]budget.ItemTotal, error) {
	st, done := q.begin()
	defer done()

	byItem := make(map[uuid.UUID]int64)
	for _, p := range st.plans {
		if st.planMatches(f, p) {
			byItem[p.BudgetItemID] += p.AmountMinor
		}
	}

	totals := make([]budget.ItemTotal, 0, len(byItem))
	for id, amount := range byItem {
		item := st.items[id]
		totals = append(totals, budget.ItemTotal{BudgetItemID: id, Code: item.Code, Name: item.Name, AmountMinor: amount})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Code < totals[j].Code })
	return totals, nil
}

func (q *memQueries) SumExpensesByItem(_ context.Context, f budget.Filter, scope budget.ExpenseScope) (map[uuid.UUID]int64, error) {
	st, done := q.begin()
	defer done()

	sums := make(map[uuid.UUID]int64)
	for _, e := range st.expenses {
		if st.expenseMatches(f, scope, e) {
			sums[e.BudgetItemID] += e.AmountMinor
		}
	}
	return sums, nil
}

func (q *memQueries) ListPlans(_ context.Context, f budget.Filter) ([]budget.PlanEntry, error) {
	st, done := q.begin()
	defer done()

	var plans []budget.PlanEntry
	for _, p := range st.plans {
		if st.planMatches(f, p) {
			plans = append(plans, p)
		}
	}
	return plans, nil
}

func (q *memQueries) ListExpenses(_ context.Context, f budget.Filter, scope budget.ExpenseScope) ([]budget.Expense, error) {
	st, done := q.begin()
	defer done()

	var expenses []budget.Expense
	for _, e := range st.expenses {
		if st.expenseMatches(f, scope, e) {
			expenses = append(expenses, e)
		}
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
	return expenses, nil
}

func (q *memQueries) LastExpenseDates(_ context.Context, f budget.Filter) (map[uuid.UUID]time.Time, error) {
	st, done := q.begin()
	defer done()

	scoped := budget.Filter{ScenarioID: f.ScenarioID, BudgetItemID: f.BudgetItemID}
	last := make(map[uuid.UUID]time.Time)
	for _, e := range st.expenses {
		if !st.expenseMatches(scoped, budget.ScopeRecorded, e) {
			continue
		}
		if current, ok := last[e.BudgetItemID]; !ok || e.ExpenseDate.After(current) {
			last[e.BudgetItemID] = e.ExpenseDate
		}
	}
	return last, nil
}

// ============================================================================
// Purchase form statuses
// ============================================================================

func (q *memQueries) UpsertFormStatus(_ context.Context, s budget.FormStatus) error {
	st, done := q.begin()
	defer done()

	if err := q.fault("upsert_form_status"); err != nil {
		return err
	}
	s.Department = strings.TrimSpace(s.Department)
	s.UpdatedAt = q.store.now()
	key := formKey{code: s.BudgetCode, year: s.Year, month: s.Month, scenarioID: s.ScenarioID, department: s.Department}
	st.forms[key] = s
	return nil
}

func (q *memQueries) ListFormStatuses(_ context.Context, fq FormStatusQuery) ([]budget.FormStatus, error) {
	st, done := q.begin()
	defer done()

	var out []budget.FormStatus
	for _, s := range st.forms {
		if fq.Year != 0 && s.Year != fq.Year {
			continue
		}
		if fq.Month != 0 && s.Month != fq.Month {
			continue
		}
		if fq.ScenarioID != nil && s.ScenarioID != *fq.ScenarioID {
			continue
		}
		if fq.Department != nil && s.Department != budget.NormalizeDepartment(fq.Department) {
			continue
		}
		if fq.PreparedOnly && !s.IsFormPrepared {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		if out[i].BudgetCode != out[j].BudgetCode {
			return out[i].BudgetCode < out[j].BudgetCode
		}
		return out[i].Department < out[j].Department
	})
	return out, nil
}
