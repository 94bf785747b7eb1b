// Package service provides the import orchestration logic: it parses an upload,
// then resolves and persists each record in its own unit of work.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/coerce"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/resolver"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
	"github.com/FACorreiaa/budget-ledger/pkg/money"
	"github.com/FACorreiaa/budget-ledger/pkg/storage"
)

var tracer = otel.Tracer("github.com/FACorreiaa/budget-ledger/internal/domain/import/service")

// ImportRequest is one upload to ingest
type ImportRequest struct {
	Filename string
	Data     []byte
	// Scenario applies to records that name no scenario of their own
	Scenario string
}

// ImportSummary is the outcome of one import run
type ImportSummary struct {
	UploadID         string   `json:"upload_id,omitempty"`
	Format           string   `json:"format"`
	ImportedPlans    int      `json:"imported_plans"`
	ImportedExpenses int      `json:"imported_expenses"`
	SkippedRows      int      `json:"skipped_rows"`
	Message          string   `json:"message"`
	Reasons          []string `json:"reasons,omitempty"`
}

// Options tune the engine
type Options struct {
	Currency   string
	MaxReasons int
}

// Archiver keeps a copy of each upload. Satisfied by storage.Archive.
type Archiver interface {
	Save(ctx context.Context, filename, scenario string, r io.Reader) (*storage.Upload, error)
	Record(ctx context.Context, id uuid.UUID, outcome storage.Outcome) error
	Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.Upload, error)
}

// ImportService orchestrates parsing and persistence of uploads
type ImportService struct {
	store      repository.Store
	parser     *parser.Parser
	aliases    *alias.Resolver
	currency   string
	maxReasons int
	archive    Archiver // optional
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewImportService creates a new import service. A nil alias resolver uses the
// built-in table.
func NewImportService(store repository.Store, aliases *alias.Resolver, opts Options, m *metrics.Metrics, logger *slog.Logger) *ImportService {
	if aliases == nil {
		aliases = alias.Default()
	}
	if opts.Currency == "" {
		opts.Currency = money.DefaultCurrency
	}
	if m == nil {
		m = metrics.New()
	}
	return &ImportService{
		store:      store,
		parser:     parser.New(aliases),
		aliases:    aliases,
		currency:   opts.Currency,
		maxReasons: opts.MaxReasons,
		metrics:    m,
		logger:     logger,
	}
}

// WithArchive stores every upload before it is imported
func (s *ImportService) WithArchive(a Archiver) *ImportService {
	s.archive = a
	return s
}

// Import parses the upload and persists its records one by one. Record-level
// failures are skipped and counted; a parse failure or a storage failure that
// is not confined to one record aborts the run.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	start := time.Now()
	uploadID := s.archiveUpload(ctx, req)
	return s.importUpload(ctx, req, uploadID, start)
}

// Replay imports an archived upload again and records the new outcome on it
func (s *ImportService) Replay(ctx context.Context, uploadID uuid.UUID) (*ImportSummary, error) {
	if s.archive == nil {
		return nil, errors.New("no upload archive configured")
	}
	rc, upload, err := s.archive.Open(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", uploadID, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", uploadID, err)
	}

	s.logger.Info("replaying upload", "upload_id", uploadID, "file", upload.Name)
	req := ImportRequest{Filename: upload.Name, Data: data, Scenario: upload.Scenario}
	return s.importUpload(ctx, req, uploadID, time.Now())
}

func (s *ImportService) importUpload(ctx context.Context, req ImportRequest, uploadID uuid.UUID, start time.Time) (*ImportSummary, error) {
	format := parser.Format(req.Filename)
	ctx, span := tracer.Start(ctx, "import.Import", trace.WithAttributes(
		attribute.String("import.file", req.Filename),
		attribute.String("import.format", format),
		attribute.Int("import.bytes", len(req.Data)),
	))
	defer span.End()

	summary := &ImportSummary{Format: format}
	if uploadID != uuid.Nil {
		summary.UploadID = uploadID.String()
	}

	err := s.run(ctx, req, summary)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.ImportsTotal.WithLabelValues(metricFormat(format), outcome).Inc()
	s.metrics.ImportDuration.WithLabelValues(metricFormat(format)).Observe(time.Since(start).Seconds())
	s.recordOutcome(ctx, uploadID, summary, err)

	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("import.plans", summary.ImportedPlans),
		attribute.Int("import.expenses", summary.ImportedExpenses),
		attribute.Int("import.skipped", summary.SkippedRows),
	)
	s.logger.Info("import completed",
		"file", req.Filename,
		"format", format,
		"plans", summary.ImportedPlans,
		"expenses", summary.ImportedExpenses,
		"skipped", summary.SkippedRows,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (s *ImportService) run(ctx context.Context, req ImportRequest, summary *ImportSummary) error {
	result, err := s.parser.Parse(req.Filename, req.Data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", req.Filename, err)
	}
	summary.Format = result.Format
	summary.Message = strings.ToUpper(result.Format) + " import completed"

	s.logger.Debug("parsed upload",
		"file", req.Filename,
		"layout", result.Layout,
		"records", len(result.Records),
		"fingerprint", result.Fingerprint,
	)

	for _, rec := range result.Records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import cancelled at line %d: %w", rec.Line, err)
		}

		kind, err := s.importRecord(ctx, rec, req.Scenario)
		switch {
		case err == nil:
			s.count(summary, kind)
		case budget.IsRecordError(err):
			s.skip(summary, rec.Line, err)
		default:
			return fmt.Errorf("failed to import line %d: %w", rec.Line, err)
		}
	}
	return nil
}

// importRecord persists one record inside its own transaction
func (s *ImportService) importRecord(ctx context.Context, rec parser.Record, defaultScenario string) (parser.Kind, error) {
	ctx, span := tracer.Start(ctx, "import.record", trace.WithAttributes(
		attribute.Int("import.line", rec.Line),
		attribute.String("import.kind", string(rec.Kind)),
	))
	defer span.End()

	if rec.Problem != "" {
		return rec.Kind, budget.NewValidationError("", "%s", rec.Problem)
	}

	var persist func(ctx context.Context, q repository.Queries) error
	switch rec.Kind {
	case parser.KindPlan:
		persist = func(ctx context.Context, q repository.Queries) error {
			return s.importPlan(ctx, q, rec.Fields, defaultScenario)
		}
	case parser.KindExpense:
		persist = func(ctx context.Context, q repository.Queries) error {
			return s.importExpense(ctx, q, rec.Fields, defaultScenario)
		}
	default:
		return rec.Kind, budget.NewValidationError(alias.FieldType, "unknown record type %q", rec.RawType)
	}

	if err := s.store.WithinTx(ctx, persist); err != nil {
		span.RecordError(err)
		if !budget.IsRecordError(err) {
			span.SetStatus(codes.Error, err.Error())
		}
		return rec.Kind, err
	}
	return rec.Kind, nil
}

// ============================================================================
// Plans
// ============================================================================

func (s *ImportService) importPlan(ctx context.Context, q repository.Queries, fields map[string]any, defaultScenario string) error {
	year, err := coerce.Year(s.value(fields, alias.FieldYear))
	if err != nil {
		return err
	}
	month, err := coerce.Month(s.value(fields, alias.FieldMonth))
	if err != nil {
		return err
	}
	amount, err := coerce.NonNegative(alias.FieldAmount, s.value(fields, alias.FieldAmount))
	if err != nil {
		return err
	}
	amountMinor, err := s.minor(alias.FieldAmount, amount)
	if err != nil {
		return err
	}

	item, scenario, err := s.resolveRefs(ctx, q, fields, defaultScenario, year)
	if err != nil {
		return err
	}

	entry := &budget.PlanEntry{
		Year:         year,
		Month:        month,
		AmountMinor:  amountMinor,
		ScenarioID:   scenario.ID,
		BudgetItemID: item.ID,
		Department:   budget.StrPtr(s.aliases.String(fields, alias.FieldDepartment)),
	}
	if err := q.CreatePlanEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to create plan entry for %s: %w", item.Code, err)
	}
	return nil
}

// minor converts a coerced amount to minor units, rejecting what cannot be stored
func (s *ImportService) minor(field string, amount decimal.Decimal) (int64, error) {
	n, err := money.ToMinorChecked(amount, s.currency)
	if err != nil {
		return 0, budget.NewValidationError(field, "%s is too large", amount.String())
	}
	return n, nil
}

// ============================================================================
// Expenses
// ============================================================================

func (s *ImportService) importExpense(ctx context.Context, q repository.Queries, fields map[string]any, defaultScenario string) error {
	date, err := coerce.Date(alias.FieldDate, s.value(fields, alias.FieldDate))
	if err != nil {
		return err
	}

	year := date.Year()
	if raw := s.value(fields, alias.FieldYear); !alias.IsEmpty(raw) {
		if year, err = coerce.Year(raw); err != nil {
			return err
		}
	}

	quantity, err := coerce.OptionalNonNegative(alias.FieldQuantity, s.value(fields, alias.FieldQuantity), decimal.NewFromInt(1))
	if err != nil {
		return err
	}
	unitPrice, err := coerce.OptionalNonNegative(alias.FieldUnitPrice, s.value(fields, alias.FieldUnitPrice), decimal.Zero)
	if err != nil {
		return err
	}
	amount, err := coerce.OptionalNonNegative(alias.FieldAmount, s.value(fields, alias.FieldAmount), quantity.Mul(unitPrice))
	if err != nil {
		return err
	}
	amountMinor, err := s.minor(alias.FieldAmount, amount)
	if err != nil {
		return err
	}
	unitPriceMinor, err := s.minor(alias.FieldUnitPrice, unitPrice)
	if err != nil {
		return err
	}

	item, scenario, err := s.resolveRefs(ctx, q, fields, defaultScenario, year)
	if err != nil {
		return err
	}

	scenarioID := scenario.ID
	expense := &budget.Expense{
		BudgetItemID:   item.ID,
		ScenarioID:     &scenarioID,
		ExpenseDate:    date,
		AmountMinor:    amountMinor,
		Quantity:       quantity,
		UnitPriceMinor: unitPriceMinor,
		Vendor:         budget.StrPtr(s.aliases.String(fields, alias.FieldVendor)),
		Description:    budget.StrPtr(s.aliases.String(fields, alias.FieldDescription)),
		Status:         parseStatus(s.aliases.String(fields, alias.FieldStatus)),
		IsOutOfBudget:  coerce.Bool(s.value(fields, alias.FieldOutOfBudget)),
	}
	if err := q.CreateExpense(ctx, expense); err != nil {
		return fmt.Errorf("failed to create expense for %s: %w", item.Code, err)
	}
	return nil
}

func parseStatus(raw string) budget.ExpenseStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cancelled", "canceled", "iptal":
		return budget.ExpenseStatusCancelled
	default:
		return budget.ExpenseStatusRecorded
	}
}

// ============================================================================
// Shared helpers
// ============================================================================

func (s *ImportService) resolveRefs(ctx context.Context, q repository.Queries, fields map[string]any, defaultScenario string, year int) (*budget.BudgetItem, *budget.Scenario, error) {
	in := resolver.BudgetItemInput{
		Code:         s.aliases.String(fields, alias.FieldBudgetCode),
		Name:         s.aliases.String(fields, alias.FieldBudgetName),
		AssetType:    budget.StrPtr(s.aliases.String(fields, alias.FieldAssetType)),
		MapAttribute: budget.StrPtr(s.aliases.String(fields, alias.FieldMapAttribute)),
	}
	if raw := s.aliases.String(fields, alias.FieldCostType); raw != "" {
		costType, ok := budget.ParseCostType(raw)
		if !ok {
			return nil, nil, budget.NewValidationError(alias.FieldCostType, "%q is neither CAPEX nor OPEX", raw)
		}
		in.CostType = costType
	}

	item, err := resolver.ResolveBudgetItem(ctx, q, in)
	if err != nil {
		return nil, nil, err
	}

	name := s.aliases.String(fields, alias.FieldScenario)
	if name == "" {
		name = defaultScenario
	}
	scenario, err := resolver.ResolveScenario(ctx, q, name, year)
	if err != nil {
		return nil, nil, err
	}
	return item, scenario, nil
}

func (s *ImportService) value(fields map[string]any, field string) any {
	v, _ := s.aliases.Lookup(fields, field)
	return v
}

func (s *ImportService) count(summary *ImportSummary, kind parser.Kind) {
	switch kind {
	case parser.KindPlan:
		summary.ImportedPlans++
	case parser.KindExpense:
		summary.ImportedExpenses++
	}
	s.metrics.ImportedRecords.WithLabelValues(string(kind)).Inc()
}

func (s *ImportService) skip(summary *ImportSummary, line int, err error) {
	summary.SkippedRows++
	if s.maxReasons <= 0 || len(summary.Reasons) < s.maxReasons {
		summary.Reasons = append(summary.Reasons, fmt.Sprintf("line %d: %v", line, err))
	}
	s.metrics.SkippedRecords.WithLabelValues(skipReason(err)).Inc()
	s.logger.Warn("skipping record", "line", line, "error", err)
}

func skipReason(err error) string {
	var (
		missing    *budget.MissingReferenceError
		constraint *budget.ConstraintError
	)
	switch {
	case errors.As(err, &missing):
		return "missing_reference"
	case errors.As(err, &constraint):
		return "constraint"
	default:
		return "validation"
	}
}

func metricFormat(format string) string {
	if format == "" {
		return "unsupported"
	}
	return format
}

// ============================================================================
// Upload archive
// ============================================================================

func (s *ImportService) archiveUpload(ctx context.Context, req ImportRequest) uuid.UUID {
	if s.archive == nil {
		return uuid.Nil
	}
	upload, err := s.archive.Save(ctx, req.Filename, req.Scenario, bytes.NewReader(req.Data))
	if err != nil {
		s.logger.Warn("failed to archive upload", "file", req.Filename, "error", err)
		return uuid.Nil
	}
	return upload.ID
}

func (s *ImportService) recordOutcome(ctx context.Context, id uuid.UUID, summary *ImportSummary, runErr error) {
	if s.archive == nil || id == uuid.Nil {
		return
	}
	outcome := storage.Outcome{
		ImportedPlans:    summary.ImportedPlans,
		ImportedExpenses: summary.ImportedExpenses,
		SkippedRows:      summary.SkippedRows,
	}
	if runErr != nil {
		outcome.Error = runErr.Error()
	}
	if err := s.archive.Record(ctx, id, outcome); err != nil {
		s.logger.Warn("failed to record import outcome", "upload_id", id, "error", err)
	}
}
