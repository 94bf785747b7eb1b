package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/budget-ledger/internal/domain/analytics"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/export"
)

func newExportCmd(c *cli) *cobra.Command {
	var (
		flags     filterFlags
		output    string
		format    string
		quarterly bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the ledger as CSV or XLSX in the import layout",
		Long: "Export plans and expenses using the same columns the importer reads.\n" +
			"The format follows the --output extension unless --format is given;\n" +
			"without --output CSV is written to stdout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := flags.filter()
			if err != nil {
				return err
			}
			kind, err := exportFormat(format, output)
			if err != nil {
				return err
			}

			svc := export.NewService(c.store, analytics.NewService(c.store, c.logger), c.cfg.Import.Currency, c.logger)
			write := pickWriter(svc, kind, quarterly)

			if output == "" {
				if kind == "xlsx" {
					return errors.New("xlsx export needs --output")
				}
				return write(cmd.Context(), c.out, f)
			}
			return writeFile(cmd.Context(), output, write, f)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&format, "format", "", "csv or xlsx")
	cmd.Flags().BoolVar(&quarterly, "quarterly", false, "Export the quarter roll-ups instead of the ledger (CSV only)")
	return cmd
}

func exportFormat(format, output string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
	}
	switch format {
	case "", "csv":
		return "csv", nil
	case "xlsx":
		return "xlsx", nil
	default:
		return "", fmt.Errorf("invalid --format %q", format)
	}
}

type exportWriter func(ctx context.Context, w io.Writer, f budget.Filter) error

func pickWriter(svc *export.Service, format string, quarterly bool) exportWriter {
	switch {
	case format == "xlsx":
		return svc.WriteXLSX
	case quarterly:
		return svc.WriteQuarterlyCSV
	default:
		return svc.WriteCSV
	}
}

func writeFile(ctx context.Context, path string, write exportWriter, f budget.Filter) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(ctx, out, f); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
