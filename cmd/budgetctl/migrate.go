package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			dsn := c.dsn()
			if dsn == "" {
				return errors.New("migrate needs --dsn or DATABASE_URL")
			}
			database, err := c.openDB(dsn)
			if err != nil {
				return err
			}
			if err := database.RunMigrations(); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(c.out, "migrations applied")
			return nil
		},
	}
}
