package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/budget-ledger/internal/domain/analytics"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/pkg/money"
)

type filterFlags struct {
	year       int
	month      int
	scenarioID string
	itemID     string
	department string
	costType   string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.year, "year", time.Now().Year(), "Budget year")
	cmd.Flags().IntVar(&f.month, "month", 0, "Single month (1-12)")
	cmd.Flags().StringVar(&f.scenarioID, "scenario-id", "", "Scenario UUID")
	cmd.Flags().StringVar(&f.itemID, "item-id", "", "Budget item UUID")
	cmd.Flags().StringVar(&f.department, "department", "", "Department (plans only)")
	cmd.Flags().StringVar(&f.costType, "cost-type", "", "CAPEX or OPEX")
}

func (f *filterFlags) filter() (budget.Filter, error) {
	out := budget.Filter{Year: f.year, Month: f.month}

	var err error
	if out.ScenarioID, err = optionalUUID("scenario-id", f.scenarioID); err != nil {
		return out, err
	}
	if out.BudgetItemID, err = optionalUUID("item-id", f.itemID); err != nil {
		return out, err
	}
	if d := strings.TrimSpace(f.department); d != "" {
		out.Department = &d
	}
	if f.costType != "" {
		ct, ok := budget.ParseCostType(f.costType)
		if !ok {
			return out, fmt.Errorf("invalid --cost-type %q", f.costType)
		}
		out.CostType = ct
	}
	return out, nil
}

func optionalUUID(flag, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return &id, nil
}

func newReportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print budget reports",
	}

	cmd.AddCommand(
		reportCmd(c, "monthly", "Planned versus actual per month", printMonthly),
		reportCmd(c, "quarterly", "Quarter roll-ups with out-of-budget and cancelled spend", printQuarterly),
		reportCmd(c, "kpi", "Headline totals", printKPI),
		reportCmd(c, "risk", "Risky, idle and overbudget items", printRisk),
		reportCmd(c, "reminders", "Missing invoices and idle item suggestions", printReminders),
	)
	return cmd
}

type reportFunc func(c *cli, cmd *cobra.Command, svc *analytics.Service, f budget.Filter) error

func reportCmd(c *cli, name, short string, run reportFunc) *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := flags.filter()
			if err != nil {
				return err
			}
			return run(c, cmd, analytics.NewService(c.store, c.logger), f)
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) amount(minor int64) string {
	return money.Format(minor, c.cfg.Import.Currency)
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', tabwriter.AlignRight)
}

func printMonthly(c *cli, cmd *cobra.Command, svc *analytics.Service, f budget.Filter) error {
	monthly, err := svc.Monthly(cmd.Context(), f)
	if err != nil {
		return err
	}
	if c.opts.jsonOutput {
		return c.printJSON(monthly)
	}

	tw := c.table()
	fmt.Fprintln(tw, "Month\tPlanned\tActual\tSaving\t")
	for _, m := range monthly {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", m.Month, c.amount(m.PlannedMinor), c.amount(m.ActualMinor), c.amount(m.Saving()))
	}
	return tw.Flush()
}

func printQuarterly(c *cli, cmd *cobra.Command, svc *analytics.Service, f budget.Filter) error {
	quarters, err := svc.Quarterly(cmd.Context(), f)
	if err != nil {
		return err
	}
	if c.opts.jsonOutput {
		return c.printJSON(quarters)
	}

	tw := c.table()
	fmt.Fprintln(tw, "Quarter\tPlanned\tActual\tSaving\tOut of budget\tCancelled\t")
	for _, q := range quarters {
		fmt.Fprintf(tw, "Q%d\t%s\t%s\t%s\t%s\t%s\t\n", q.Quarter,
			c.amount(q.PlannedMinor), c.amount(q.ActualMinor), c.amount(q.Saving()),
			c.amount(q.OutOfBudgetMinor), c.amount(q.CancelledMinor))
	}
	return tw.Flush()
}

func printKPI(c *cli, cmd *cobra.Command, svc *analytics.Service, f budget.Filter) error {
	kpi, err := svc.KPI(cmd.Context(), f)
	if err != nil {
		return err
	}
	if c.opts.jsonOutput {
		return c.printJSON(kpi)
	}

	tw := c.table()
	fmt.Fprintf(tw, "Total plan\t%s\t\n", c.amount(kpi.TotalPlanMinor))
	fmt.Fprintf(tw, "Total actual\t%s\t\n", c.amount(kpi.TotalActualMinor))
	fmt.Fprintf(tw, "Remaining\t%s\t\n", c.amount(kpi.RemainingMinor))
	fmt.Fprintf(tw, "Saving\t%s\t\n", c.amount(kpi.SavingMinor))
	fmt.Fprintf(tw, "Overrun\t%s\t\n", c.amount(kpi.OverrunMinor))
	return tw.Flush()
}

func printRisk(c *cli, cmd *cobra.Command, svc *analytics.Service, f budget.Filter) error {
	report, err := svc.Risk(cmd.Context(), f)
	if err != nil {
		return err
	}
	if c.opts.jsonOutput {
		return c.printJSON(report)
	}

	fmt.Fprintf(c.out, "Plan to date through month %d\n\n", report.UntilMonth)

	tw := c.table()
	fmt.Fprintln(tw, "Risky\tPlanned\tActual\tUsed\t")
	for _, it := range report.Risky {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t\n", it.Code, c.amount(it.PlannedMinor), c.amount(it.ActualMinor), it.Ratio*100)
	}
	fmt.Fprintln(tw, "\t\t\t\t")
	fmt.Fprintln(tw, "Overbudget\tPlanned\tActual\tOver\t")
	for _, it := range report.Overbudget {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", it.Code, c.amount(it.PlannedMinor), c.amount(it.ActualMinor), c.amount(it.OverMinor))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.NoSpend) > 0 {
		codes := make([]string, 0, len(report.NoSpend))
		for _, it := range report.NoSpend {
			codes = append(codes, it.Code)
		}
		fmt.Fprintf(c.out, "\nNo spend yet: %s\n", strings.Join(codes, ", "))
	}
	return nil
}

func printReminders(c *cli, cmd *cobra.Command, svc *analytics.Service, f budget.Filter) error {
	reminders, err := svc.DashboardReminders(cmd.Context(), f)
	if err != nil {
		return err
	}
	if c.opts.jsonOutput {
		return c.printJSON(reminders)
	}
	if len(reminders) == 0 {
		fmt.Fprintln(c.out, "No reminders.")
		return nil
	}
	for _, r := range reminders {
		fmt.Fprintf(c.out, "[%s] %s\n", r.Severity, r.Message)
	}
	return nil
}
