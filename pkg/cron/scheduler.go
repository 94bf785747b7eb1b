// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/budget-ledger/internal/domain/analytics"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
)

// Off disables a job
const Off = "off"

const reminderJob = "reminder_digest"

// ReminderSource is the part of the analytics service the digest reads
type ReminderSource interface {
	DashboardReminders(ctx context.Context, f budget.Filter) ([]analytics.Reminder, error)
	PurchaseReminders(ctx context.Context, rq analytics.ReminderQuery) ([]analytics.PurchaseReminder, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	reminders ReminderSource
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a new job scheduler.
func NewScheduler(reminders ReminderSource, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:      c,
		reminders: reminders,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the clock used to pick the digest month
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start registers the reminder digest on schedule and begins running jobs.
// An empty or "off" schedule starts nothing.
func (s *Scheduler) Start(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" || strings.EqualFold(schedule, Off) {
		s.logger.Info("reminder digest disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, s.runDigest); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("schedule", schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.Digest(ctx); err != nil {
		s.logger.Error("reminder digest failed", slog.Any("error", err))
	}
}

// DigestResult summarizes one digest run
type DigestResult struct {
	Year             int
	Month            int
	Reminders        []analytics.Reminder
	PendingPurchases int
}

// Digest logs the dashboard reminders of the current year and counts the
// planned purchases of the current month whose form is not prepared yet.
func (s *Scheduler) Digest(ctx context.Context) (*DigestResult, error) {
	today := s.now()
	result := &DigestResult{Year: today.Year(), Month: int(today.Month())}

	reminders, err := s.reminders.DashboardReminders(ctx, budget.Filter{Year: result.Year})
	if err != nil {
		s.metrics.JobRuns.WithLabelValues(reminderJob, "failed").Inc()
		return nil, fmt.Errorf("failed to build reminders: %w", err)
	}
	result.Reminders = reminders

	purchases, err := s.reminders.PurchaseReminders(ctx, analytics.ReminderQuery{Year: result.Year, Month: result.Month})
	if err != nil {
		s.metrics.JobRuns.WithLabelValues(reminderJob, "failed").Inc()
		return nil, fmt.Errorf("failed to list purchase reminders: %w", err)
	}
	for _, p := range purchases {
		if !p.IsFormPrepared {
			result.PendingPurchases++
		}
	}

	for _, r := range reminders {
		s.logger.Info("budget reminder",
			slog.String("severity", r.Severity),
			slog.String("message", r.Message),
		)
	}

	s.metrics.PendingPurchases.Set(float64(result.PendingPurchases))
	s.metrics.JobRuns.WithLabelValues(reminderJob, "ok").Inc()
	s.logger.Info("reminder digest completed",
		slog.Int("year", result.Year),
		slog.Int("month", result.Month),
		slog.Int("reminders", len(reminders)),
		slog.Int("pending_purchases", result.PendingPurchases),
	)
	return result, nil
}
