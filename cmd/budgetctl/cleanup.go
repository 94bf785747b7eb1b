package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/budget-ledger/internal/domain/cleanup"
)

type cleanupOptions struct {
	itemID       string
	scenarioID   string
	importedOnly bool
	resetPlans   bool
}

func newCleanupCmd(c *cli) *cobra.Command {
	var opts cleanupOptions

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expenses and plans, drop orphaned items and renumber codes",
		Long: "Delete expenses (and with --reset-plans, plans) matching the filters,\n" +
			"remove budget items nothing references any more and renumber the\n" +
			"remaining codes densely. The run is all or nothing.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := cleanup.Request{ImportedOnly: opts.importedOnly, ResetPlans: opts.resetPlans}

			var err error
			if req.BudgetItemID, err = optionalUUID("item-id", opts.itemID); err != nil {
				return err
			}
			if req.ScenarioID, err = optionalUUID("scenario-id", opts.scenarioID); err != nil {
				return err
			}

			result, err := c.cleanupService().Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if c.opts.jsonOutput {
				return c.printJSON(result)
			}
			fmt.Fprintf(c.out, "deleted %d expenses, %d plans, %d budget items; renumbered %d items\n",
				result.DeletedExpenses, result.DeletedPlans, result.DeletedBudgetItems, result.RenumberedItems)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.itemID, "item-id", "", "Limit to one budget item")
	cmd.Flags().StringVar(&opts.scenarioID, "scenario-id", "", "Limit to one scenario")
	cmd.Flags().BoolVar(&opts.importedOnly, "imported-only", false, "Only delete expenses created by an import")
	cmd.Flags().BoolVar(&opts.resetPlans, "reset-plans", false, "Also delete matching plans")

	return cmd
}

func (c *cli) cleanupService() *cleanup.Service {
	return cleanup.NewService(c.store, c.cfg.Import.CodePrefix, c.metrics, c.logger)
}

func newScenarioCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Manage scenarios",
	}

	var force bool
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a scenario",
		Long:  "Delete a scenario. A scenario still referenced by plans or expenses\nis only deleted with --force, which removes those rows too.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid scenario id: %w", err)
			}
			deleted, err := c.cleanupService().DeleteScenario(cmd.Context(), id, force)
			if err != nil {
				return err
			}
			if c.opts.jsonOutput {
				return c.printJSON(deleted)
			}
			fmt.Fprintf(c.out, "deleted scenario %s (%d plans, %d expenses)\n", id, deleted.DeletedPlans, deleted.DeletedExpenses)
			return nil
		},
	}
	del.Flags().BoolVar(&force, "force", false, "Delete plans and expenses that reference the scenario")

	cmd.AddCommand(del)
	return cmd
}
