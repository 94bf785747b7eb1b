package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
	importservice "github.com/FACorreiaa/budget-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/budget-ledger/pkg/config"
	"github.com/FACorreiaa/budget-ledger/pkg/storage"
)

type importOptions struct {
	scenario string
	replay   string
	archive  bool
}

func newImportCmd(c *cli) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a CSV, JSON or XLSX budget file",
		Long: "Import plans and expenses from a file. Bad rows are skipped and listed;\n" +
			"a file that cannot be parsed or a storage failure aborts the run.\n" +
			"With --replay the archived upload with that ID is imported again.",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.replay != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, c, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "Scenario for rows that name none (default: \"Default <year>\")")
	cmd.Flags().StringVar(&opts.replay, "replay", "", "Replay an archived upload by ID")
	cmd.Flags().BoolVar(&opts.archive, "archive", true, "Keep a copy of the file in the upload archive")

	return cmd
}

func (c *cli) importService(withArchive bool) (*importservice.ImportService, error) {
	extra, err := config.LoadAliases(c.cfg.Import.AliasesFile)
	if err != nil {
		return nil, err
	}
	svc := importservice.NewImportService(c.store, alias.New(extra), importservice.Options{
		Currency:   c.cfg.Import.Currency,
		MaxReasons: c.cfg.Import.MaxReasons,
	}, c.metrics, c.logger)

	if withArchive {
		archive, err := storage.New(c.cfg.Import.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open upload archive: %w", err)
		}
		svc.WithArchive(archive)
	}
	return svc, nil
}

func runImport(cmd *cobra.Command, c *cli, opts importOptions, args []string) error {
	ctx := cmd.Context()

	svc, err := c.importService(opts.archive || opts.replay != "")
	if err != nil {
		return err
	}

	var summary *importservice.ImportSummary
	if opts.replay != "" {
		id, err := uuid.Parse(strings.TrimSpace(opts.replay))
		if err != nil {
			return fmt.Errorf("invalid --replay: %w", err)
		}
		summary, err = svc.Replay(ctx, id)
		if err != nil {
			return err
		}
	} else {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(data) == 0 {
			return errors.New("file is empty")
		}
		summary, err = svc.Import(ctx, importservice.ImportRequest{
			Filename: filepath.Base(path),
			Data:     data,
			Scenario: opts.scenario,
		})
		if err != nil {
			return err
		}
	}

	if c.opts.jsonOutput {
		return c.printJSON(summary)
	}

	fmt.Fprintln(c.out, summary.Message)
	if summary.UploadID != "" {
		fmt.Fprintf(c.out, "  upload:     %s\n", summary.UploadID)
	}
	fmt.Fprintf(c.out, "  plans:      %d\n", summary.ImportedPlans)
	fmt.Fprintf(c.out, "  expenses:   %d\n", summary.ImportedExpenses)
	fmt.Fprintf(c.out, "  skipped:    %d\n", summary.SkippedRows)
	for _, reason := range summary.Reasons {
		fmt.Fprintf(c.out, "    - %s\n", reason)
	}
	return nil
}
