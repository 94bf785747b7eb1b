package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
)

const (
	riskRatioThreshold = 0.8
	maxRiskyItems      = 5
	maxNoSpendItems    = 10
)

// ItemSpend is one budget item's planned and actual spend over a period
type ItemSpend struct {
	BudgetItemID uuid.UUID `json:"budget_item_id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	PlannedMinor int64     `json:"planned_minor"`
	ActualMinor  int64     `json:"actual_minor"`
}

// RiskyItem is an item that has used most of its plan-to-date
type RiskyItem struct {
	ItemSpend
	Ratio float64 `json:"ratio"`
}

// OverbudgetItem is an item whose actual spend exceeds its plan
type OverbudgetItem struct {
	ItemSpend
	OverMinor int64   `json:"over_minor"`
	OverPct   float64 `json:"over_pct"`
}

// RiskReport groups the three item-level risk views
type RiskReport struct {
	UntilMonth int              `json:"until_month"`
	Risky      []RiskyItem      `json:"risky"`
	NoSpend    []ItemSpend      `json:"no_spend"`
	Overbudget []OverbudgetItem `json:"overbudget"`
}

// Risk computes the risk views over plan-to-date. Without an explicit month
// bound the current year runs up to today's month and other years cover
// all twelve.
func (s *Service) Risk(ctx context.Context, f budget.Filter) (*RiskReport, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	if f.Month == 0 && f.UntilMonth == 0 {
		f.UntilMonth = 12
		if today := s.now(); today.Year() == f.Year {
			f.UntilMonth = int(today.Month())
		}
	}

	ctx, span := tracer.Start(ctx, "analytics.Risk", filterAttributes(f))
	defer span.End()

	spend, err := s.itemSpend(ctx, f)
	if err != nil {
		return nil, err
	}

	return &RiskReport{
		UntilMonth: f.UntilMonth,
		Risky:      RiskyItems(spend),
		NoSpend:    NoSpendItems(spend),
		Overbudget: OverbudgetItems(spend),
	}, nil
}

// itemSpend joins per-item plan totals (ordered by code) with actual spend.
// Items that spent without a plan are appended after the planned ones.
func (s *Service) itemSpend(ctx context.Context, f budget.Filter) ([]ItemSpend, error) {
	plans, err := s.store.SumPlansByItem(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to sum plans by item: %w", err)
	}
	actual, err := s.store.SumExpensesByItem(ctx, f, budget.ScopeActual)
	if err != nil {
		return nil, fmt.Errorf("failed to sum expenses by item: %w", err)
	}

	spend := make([]ItemSpend, 0, len(plans))
	seen := make(map[uuid.UUID]bool, len(plans))
	for _, p := range plans {
		seen[p.BudgetItemID] = true
		spend = append(spend, ItemSpend{
			BudgetItemID: p.BudgetItemID,
			Code:         p.Code,
			Name:         p.Name,
			PlannedMinor: p.AmountMinor,
			ActualMinor:  actual[p.BudgetItemID],
		})
	}

	var unplanned []uuid.UUID
	for id, amount := range actual {
		if !seen[id] && amount > 0 {
			unplanned = append(unplanned, id)
		}
	}
	if len(unplanned) == 0 {
		return spend, nil
	}

	byID, err := s.itemsByID(ctx)
	if err != nil {
		return nil, err
	}
	extra := make([]ItemSpend, 0, len(unplanned))
	for _, id := range unplanned {
		it := byID[id]
		extra = append(extra, ItemSpend{BudgetItemID: id, Code: it.Code, Name: it.Name, ActualMinor: actual[id]})
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Code < extra[j].Code })
	return append(spend, extra...), nil
}

// RiskyItems keeps items with a positive plan whose actual/plan ratio is at
// least 0.8, highest ratio first, at most five
func RiskyItems(spend []ItemSpend) []RiskyItem {
	var risky []RiskyItem
	for _, it := range spend {
		if it.PlannedMinor <= 0 {
			continue
		}
		ratio := float64(it.ActualMinor) / float64(it.PlannedMinor)
		if ratio >= riskRatioThreshold {
			risky = append(risky, RiskyItem{ItemSpend: it, Ratio: ratio})
		}
	}
	sort.SliceStable(risky, func(i, j int) bool { return risky[i].Ratio > risky[j].Ratio })
	if len(risky) > maxRiskyItems {
		risky = risky[:maxRiskyItems]
	}
	return risky
}

// NoSpendItems keeps planned items with no actual spend in input order, at most ten
func NoSpendItems(spend []ItemSpend) []ItemSpend {
	var idle []ItemSpend
	for _, it := range spend {
		if it.PlannedMinor > 0 && it.ActualMinor == 0 {
			idle = append(idle, it)
			if len(idle) == maxNoSpendItems {
				break
			}
		}
	}
	return idle
}

// OverbudgetItems keeps items whose actual exceeds plan, largest overrun first.
// OverPct is relative to plan and 0 for unplanned spend.
func OverbudgetItems(spend []ItemSpend) []OverbudgetItem {
	var over []OverbudgetItem
	for _, it := range spend {
		excess := it.ActualMinor - it.PlannedMinor
		if excess <= 0 {
			continue
		}
		item := OverbudgetItem{ItemSpend: it, OverMinor: excess}
		if it.PlannedMinor > 0 {
			item.OverPct = float64(excess) / float64(it.PlannedMinor) * 100
		}
		over = append(over, item)
	}
	sort.SliceStable(over, func(i, j int) bool { return over[i].OverMinor > over[j].OverMinor })
	return over
}
