package main

import (
	"fmt"
	"log/slog"
	"time"

	analyticshandler "github.com/FACorreiaa/budget-ledger/internal/domain/analytics/handler"
	cleanuphandler "github.com/FACorreiaa/budget-ledger/internal/domain/cleanup/handler"
	exporthandler "github.com/FACorreiaa/budget-ledger/internal/domain/export/handler"
	importhandler "github.com/FACorreiaa/budget-ledger/internal/domain/import/handler"

	"github.com/FACorreiaa/budget-ledger/internal/domain/analytics"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	"github.com/FACorreiaa/budget-ledger/internal/domain/cleanup"
	"github.com/FACorreiaa/budget-ledger/internal/domain/export"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
	importservice "github.com/FACorreiaa/budget-ledger/internal/domain/import/service"

	"github.com/FACorreiaa/budget-ledger/pkg/config"
	"github.com/FACorreiaa/budget-ledger/pkg/cron"
	"github.com/FACorreiaa/budget-ledger/pkg/db"
	"github.com/FACorreiaa/budget-ledger/pkg/logger"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
	"github.com/FACorreiaa/budget-ledger/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	Store   repository.Store
	Archive storage.Archive

	// Services
	ImportService    *importservice.ImportService
	AnalyticsService *analytics.Service
	CleanupService   *cleanup.Service
	ExportService    *export.Service
	Scheduler        *cron.Scheduler

	// Handlers
	ImportHandler    *importhandler.ImportHandler
	AnalyticsHandler *analyticshandler.AnalyticsHandler
	CleanupHandler   *cleanuphandler.CleanupHandler
	ExportHandler    *exporthandler.ExportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        int32(d.Config.Database.MinConns),
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes the store and the upload archive
func (d *Dependencies) initRepositories() error {
	d.Store = repository.NewPostgresStore(d.DB.Pool)
	return d.initArchive()
}

func (d *Dependencies) initArchive() error {
	archive, err := storage.New(d.Config.Import.ArchiveDir)
	if err != nil {
		return fmt.Errorf("failed to init upload archive: %w", err)
	}
	d.Archive = archive

	d.Logger.Info("repositories initialized", "archive_dir", d.Config.Import.ArchiveDir)
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	extra, err := config.LoadAliases(d.Config.Import.AliasesFile)
	if err != nil {
		return err
	}
	aliases := alias.New(extra)

	d.ImportService = importservice.NewImportService(d.Store, aliases, importservice.Options{
		Currency:   d.Config.Import.Currency,
		MaxReasons: d.Config.Import.MaxReasons,
	}, d.Metrics, d.Logger.With(logger.FieldComponent, logger.ComponentImport)).
		WithArchive(d.Archive)

	d.AnalyticsService = analytics.NewService(d.Store, d.Logger.With(logger.FieldComponent, logger.ComponentAnalytics))

	d.CleanupService = cleanup.NewService(d.Store, d.Config.Import.CodePrefix, d.Metrics, d.Logger.With(logger.FieldComponent, logger.ComponentCleanup))

	d.ExportService = export.NewService(d.Store, d.AnalyticsService, d.Config.Import.Currency, d.Logger.With(logger.FieldComponent, logger.ComponentExport))

	d.Scheduler = cron.NewScheduler(d.AnalyticsService, d.Metrics, d.Logger.With(logger.FieldComponent, logger.ComponentScheduler))

	d.Logger.Info("services initialized", "extra_alias_fields", len(extra))
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Config.Import.MaxUploadBytes, d.Logger).
		WithUploads(d.Archive)
	d.AnalyticsHandler = analyticshandler.NewAnalyticsHandler(d.AnalyticsService, d.Logger)
	d.CleanupHandler = cleanuphandler.NewCleanupHandler(d.CleanupService, d.Logger)
	d.ExportHandler = exporthandler.NewExportHandler(d.ExportService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		select {
		case <-d.Scheduler.Stop().Done():
		case <-time.After(10 * time.Second):
			d.Logger.Warn("scheduled jobs still running at shutdown")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
