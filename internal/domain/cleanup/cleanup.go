// Package cleanup removes expenses and plans in bulk, drops budget items left
// without references, and renumbers the remaining codes densely.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
)

var tracer = otel.Tracer("github.com/FACorreiaa/budget-ledger/internal/domain/cleanup")

// DefaultPrefix is the code prefix used when none is configured
const DefaultPrefix = "SK"

// Request scopes a cleanup run. Nil filters match everything.
type Request struct {
	BudgetItemID *uuid.UUID `json:"budget_item_id,omitempty"`
	ScenarioID   *uuid.UUID `json:"scenario_id,omitempty"`
	// ImportedOnly limits expense deletion to descriptions containing "import"
	ImportedOnly bool `json:"clear_imported_only"`
	ResetPlans   bool `json:"reset_plans"`
}

// Result counts what a run changed
type Result struct {
	DeletedExpenses    int64 `json:"deleted_expenses"`
	DeletedPlans       int64 `json:"deleted_plans"`
	DeletedBudgetItems int64 `json:"deleted_budget_items"`
	RenumberedItems    int64 `json:"renumbered_items"`
}

// Service runs cleanups and scenario deletions
type Service struct {
	store   repository.Store
	prefix  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a cleanup service. An empty prefix uses DefaultPrefix.
func NewService(store repository.Store, prefix string, m *metrics.Metrics, logger *slog.Logger) *Service {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{store: store, prefix: prefix, metrics: m, logger: logger}
}

// Run deletes matching expenses, optionally matching plans, then orphaned
// budget items, and finally resequences every remaining code. The whole run
// is one unit of work: on any failure nothing changes.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "cleanup.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("cleanup.imported_only", req.ImportedOnly),
		attribute.Bool("cleanup.reset_plans", req.ResetPlans),
	)

	filter := budget.CleanupFilter{
		BudgetItemID: req.BudgetItemID,
		ScenarioID:   req.ScenarioID,
		ImportedOnly: req.ImportedOnly,
	}

	var result Result
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		result = Result{}

		n, err := q.DeleteExpenses(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to delete expenses: %w", err)
		}
		result.DeletedExpenses = n

		if req.ResetPlans {
			n, err := q.DeletePlans(ctx, budget.CleanupFilter{BudgetItemID: req.BudgetItemID, ScenarioID: req.ScenarioID})
			if err != nil {
				return fmt.Errorf("failed to delete plans: %w", err)
			}
			result.DeletedPlans = n
		}

		if n, err = q.DeleteOrphanBudgetItems(ctx); err != nil {
			return fmt.Errorf("failed to delete orphan budget items: %w", err)
		}
		result.DeletedBudgetItems = n

		if n, err = Resequence(ctx, q, s.prefix); err != nil {
			return err
		}
		result.RenumberedItems = n
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.CleanupRuns.WithLabelValues("failed").Inc()
		s.logger.Error("cleanup failed", "error", err)
		return nil, err
	}

	s.metrics.CleanupRuns.WithLabelValues("ok").Inc()
	s.metrics.RenumberedItems.Add(float64(result.RenumberedItems))
	s.logger.Info("cleanup completed",
		"deleted_expenses", result.DeletedExpenses,
		"deleted_plans", result.DeletedPlans,
		"deleted_budget_items", result.DeletedBudgetItems,
		"renumbered", result.RenumberedItems,
		"duration", time.Since(start),
	)
	return &result, nil
}

// Resequence renames items to prefix+01, prefix+02, ... in creation order and
// returns how many codes changed. Items that change are first moved to unique
// temporary codes so no rename collides with a code still in use. Call it
// inside a transaction.
func Resequence(ctx context.Context, q repository.Queries, prefix string) (int64, error) {
	items, err := q.ListBudgetItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list budget items: %w", err)
	}

	type rename struct {
		id        uuid.UUID
		from, tmp string
		to        string
	}
	var renames []rename
	for i, item := range items {
		target := Code(prefix, i+1)
		if item.Code == target {
			continue
		}
		renames = append(renames, rename{
			id:   item.ID,
			from: item.Code,
			tmp:  "__tmp_" + item.ID.String(),
			to:   target,
		})
	}

	for _, r := range renames {
		if err := q.SetBudgetItemCode(ctx, r.id, r.from, r.tmp); err != nil {
			return 0, fmt.Errorf("failed to move %s to a temporary code: %w", r.from, err)
		}
	}
	for _, r := range renames {
		if err := q.SetBudgetItemCode(ctx, r.id, r.tmp, r.to); err != nil {
			return 0, fmt.Errorf("failed to rename %s to %s: %w", r.from, r.to, err)
		}
	}
	return int64(len(renames)), nil
}

// Code formats the n-th sequential code, zero-padded to two digits
func Code(prefix string, n int) string {
	return fmt.Sprintf("%s%02d", prefix, n)
}

// DeleteScenario removes a scenario. A referenced scenario is only removed,
// together with its plans and expenses, when force is set.
func (s *Service) DeleteScenario(ctx context.Context, id uuid.UUID, force bool) (*repository.ScenarioDeletion, error) {
	ctx, span := tracer.Start(ctx, "cleanup.DeleteScenario")
	defer span.End()
	span.SetAttributes(attribute.String("budget.scenario_id", id.String()), attribute.Bool("cleanup.force", force))

	var deletion *repository.ScenarioDeletion
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		refs, err := q.CountScenarioReferences(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count scenario references: %w", err)
		}
		if refs > 0 && !force {
			return &budget.ConstraintError{Constraint: "scenario_in_use", Err: budget.ErrScenarioInUse}
		}

		deletion, err = q.DeleteScenario(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to delete scenario %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, budget.ErrScenarioInUse) && !errors.Is(err, budget.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	s.logger.Info("scenario deleted",
		"scenario_id", id,
		"plans", deletion.DeletedPlans,
		"expenses", deletion.DeletedExpenses,
	)
	return deletion, nil
}
