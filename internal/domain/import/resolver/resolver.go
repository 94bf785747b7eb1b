// Package resolver finds or creates the reference data an import record points
// at. Both resolvers are idempotent: resolving the same input twice writes at
// most once.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
)

// BudgetItemInput is what a record knows about its budget item. Nil and unset
// fields leave the stored value alone.
type BudgetItemInput struct {
	Code         string
	Name         string
	CostType     budget.CostType
	AssetType    *string
	MapAttribute *string
}

// ResolveBudgetItem returns the item with in.Code, patching classification
// fields that differ, or creates it. Creating requires a name.
func ResolveBudgetItem(ctx context.Context, q repository.Queries, in BudgetItemInput) (*budget.BudgetItem, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, budget.NewValidationError("budget_code", "is required")
	}

	item, err := q.GetBudgetItemByCode(ctx, code)
	switch {
	case err == nil:
		if patch(item, in) {
			if err := q.UpdateBudgetItem(ctx, item); err != nil {
				return nil, fmt.Errorf("failed to update budget item %s: %w", code, err)
			}
		}
		return item, nil
	case !errors.Is(err, budget.ErrNotFound):
		return nil, fmt.Errorf("failed to get budget item %s: %w", code, err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &budget.MissingReferenceError{
			Entity:     "budget item",
			Key:        code,
			Err:        budget.ErrMissingBudgetItemName,
			Suggestion: suggestCode(ctx, q, code),
		}
	}

	item = &budget.BudgetItem{
		Code:         code,
		Name:         name,
		CostType:     in.CostType,
		AssetType:    trimmed(in.AssetType),
		MapAttribute: trimmed(in.MapAttribute),
	}
	if err := q.CreateBudgetItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create budget item %s: %w", code, err)
	}
	return item, nil
}

// suggestCode returns the existing code closest to code by edit distance, or
// "" when nothing is close. Lookup failures only cost the hint.
func suggestCode(ctx context.Context, q repository.Queries, code string) string {
	items, err := q.ListBudgetItems(ctx)
	if err != nil || len(items) == 0 {
		return ""
	}

	want := strings.ToUpper(code)
	limit := max(2, len(want)/3)
	best, bestDistance := "", limit+1
	for _, it := range items {
		candidate := strings.ToUpper(it.Code)
		d := fuzzy.LevenshteinDistance(want, candidate)
		if fuzzy.Match(want, candidate) {
			// SK1 in SK01 ranks one edit closer
			d--
		}
		if d < bestDistance || (d == bestDistance && it.Code < best) {
			best, bestDistance = it.Code, d
		}
	}
	if bestDistance > limit {
		return ""
	}
	return best
}

// patch applies non-empty differing fields and reports whether anything changed
func patch(item *budget.BudgetItem, in BudgetItemInput) bool {
	changed := false
	if in.CostType != budget.CostTypeUnset && in.CostType != item.CostType {
		item.CostType = in.CostType
		changed = true
	}
	if v := trimmed(in.AssetType); v != nil && (item.AssetType == nil || *item.AssetType != *v) {
		item.AssetType = v
		changed = true
	}
	if v := trimmed(in.MapAttribute); v != nil && (item.MapAttribute == nil || *item.MapAttribute != *v) {
		item.MapAttribute = v
		changed = true
	}
	return changed
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return budget.StrPtr(*s)
}

// DefaultScenarioName is the scenario unnamed records land in
func DefaultScenarioName(year int) string {
	return fmt.Sprintf("Default %d", year)
}

// ResolveScenario returns the (name, year) scenario, creating it when absent.
// A blank name resolves the year's default scenario.
func ResolveScenario(ctx context.Context, q repository.Queries, name string, year int) (*budget.Scenario, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultScenarioName(year)
	}

	s, err := q.GetScenario(ctx, name, year)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, budget.ErrNotFound) {
		return nil, fmt.Errorf("failed to get scenario %q: %w", name, err)
	}

	s = &budget.Scenario{Name: name, Year: year}
	if err := q.UpsertScenario(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create scenario %q: %w", name, err)
	}
	return s, nil
}
