package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	"github.com/FACorreiaa/budget-ledger/pkg/config"
	"github.com/FACorreiaa/budget-ledger/pkg/db"
	"github.com/FACorreiaa/budget-ledger/pkg/logger"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
)

type rootOptions struct {
	dsn        string
	logLevel   string
	jsonOutput bool
	archiveDir string
	currency   string
	prefix     string
	aliases    string
}

// cli carries what every command needs. store may be preset, otherwise it is
// opened from the flags before each command runs.
type cli struct {
	opts    rootOptions
	out     io.Writer
	errOut  io.Writer
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   repository.Store
	db      *db.DB
}

func newRootCmd(c *cli) *cobra.Command {
	if c.errOut == nil {
		c.errOut = io.Discard
	}

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Budget ledger command line",
		Long:          "Import budget plans and expenses, print reports and clean up the ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			c.close()
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.opts.dsn, "dsn", "", "Postgres DSN (default: DATABASE_URL; without one an in-memory store is used)")
	flags.StringVar(&c.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&c.opts.jsonOutput, "json", false, "Print results as JSON")
	flags.StringVar(&c.opts.archiveDir, "archive-dir", "", "Upload archive directory (default: IMPORT_ARCHIVE_DIR)")
	flags.StringVar(&c.opts.currency, "currency", "", "Currency of imported amounts (default: BUDGET_CURRENCY)")
	flags.StringVar(&c.opts.prefix, "prefix", "", "Code prefix used when resequencing (default: BUDGET_CODE_PREFIX)")
	flags.StringVar(&c.opts.aliases, "aliases", "", "YAML file with extra column aliases (default: IMPORT_ALIASES_FILE)")

	root.AddCommand(
		newImportCmd(c),
		newReportCmd(c),
		newCleanupCmd(c),
		newScenarioCmd(c),
		newExportCmd(c),
		newMigrateCmd(c),
	)

	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.opts.archiveDir != "" {
		cfg.Import.ArchiveDir = c.opts.archiveDir
	}
	if c.opts.currency != "" {
		cfg.Import.Currency = strings.ToUpper(c.opts.currency)
	}
	if c.opts.prefix != "" {
		cfg.Import.CodePrefix = c.opts.prefix
	}
	if c.opts.aliases != "" {
		cfg.Import.AliasesFile = c.opts.aliases
	}
	if c.opts.logLevel != "" {
		cfg.Log.Level = c.opts.logLevel
	}
	c.cfg = cfg
	c.logger = logger.New(c.errOut, cfg.Log.Level, cfg.Log.Format)
	c.metrics = metrics.New()

	if c.store != nil || cmd.Name() == "migrate" {
		return nil
	}

	dsn := c.dsn()
	if dsn == "" {
		c.logger.Warn("no database configured, using an in-memory store; nothing is persisted")
		c.store = repository.NewMemoryStore()
		return nil
	}

	database, err := c.openDB(dsn)
	if err != nil {
		return err
	}
	c.store = repository.NewPostgresStore(database.Pool)
	return nil
}

func (c *cli) dsn() string {
	if c.opts.dsn != "" {
		return c.opts.dsn
	}
	return os.Getenv("DATABASE_URL")
}

func (c *cli) openDB(dsn string) (*db.DB, error) {
	database, err := db.New(db.Config{
		DSN:             dsn,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c.db = database
	return database, nil
}

func (c *cli) close() {
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
