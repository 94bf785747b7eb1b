package budget

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRecordError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", NewValidationError("amount", "must not be negative"), true},
		{"wrapped validation", fmt.Errorf("line 3: %w", NewValidationError("month", "out of range")), true},
		{"missing reference", &MissingReferenceError{Entity: "budget_item", Key: "X", Err: ErrMissingBudgetItemName}, true},
		{"constraint", &ConstraintError{Constraint: "budget_items_code_key", Err: errors.New("duplicate")}, true},
		{"parse error aborts", &ParseError{Format: "json", Message: "bad"}, false},
		{"transient", errors.New("connection reset"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecordError(tt.err))
		})
	}
}

func TestMissingReferenceError_Is(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &MissingReferenceError{Entity: "budget_item", Key: "SK01", Err: ErrMissingBudgetItemName})
	assert.ErrorIs(t, err, ErrMissingBudgetItemName)
	assert.Contains(t, err.Error(), `budget_item "SK01"`)
}

func TestParseError_Error(t *testing.T) {
	err := &ParseError{Format: "csv", Message: "no header row", Err: errors.New("EOF")}
	assert.Equal(t, "csv parse error: no header row: EOF", err.Error())

	bare := &ParseError{Message: "unsupported file type"}
	assert.Equal(t, "parse error: unsupported file type", bare.Error())
}

func TestParseCostType(t *testing.T) {
	ct, ok := ParseCostType(" capex ")
	assert.True(t, ok)
	assert.Equal(t, CostTypeCapex, ct)

	ct, ok = ParseCostType("Opex")
	assert.True(t, ok)
	assert.Equal(t, CostTypeOpex, ct)

	ct, ok = ParseCostType("other")
	assert.False(t, ok)
	assert.Equal(t, CostTypeUnset, ct)
}

func TestExpenseScope_Includes(t *testing.T) {
	recorded := Expense{Status: ExpenseStatusRecorded}
	oob := Expense{Status: ExpenseStatusRecorded, IsOutOfBudget: true}
	cancelled := Expense{Status: ExpenseStatusCancelled, IsOutOfBudget: true}

	assert.True(t, ScopeActual.Includes(recorded))
	assert.False(t, ScopeActual.Includes(oob))
	assert.False(t, ScopeActual.Includes(cancelled))

	assert.True(t, ScopeOutOfBudget.Includes(oob))
	assert.False(t, ScopeOutOfBudget.Includes(cancelled))

	assert.True(t, ScopeCancelled.Includes(cancelled))
	assert.False(t, ScopeCancelled.Includes(recorded))

	assert.True(t, ScopeRecorded.Includes(recorded))
	assert.True(t, ScopeRecorded.Includes(oob))
}

func TestBudgetItem_Label(t *testing.T) {
	assert.Equal(t, "SK01 - Elektrik", BudgetItem{Code: "SK01", Name: "Elektrik"}.Label())
	assert.Equal(t, "SK01", BudgetItem{Code: " SK01 "}.Label())
	assert.Equal(t, "Tanımsız Kalem", BudgetItem{}.Label())
}
