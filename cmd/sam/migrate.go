package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txn2/sam/pkg/database/migrate"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withDB := func(run func(cmd *cobra.Command, db *sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg, "migrate"); err != nil {
				return err
			}
			return withDatabase(cfg, func(db *sql.DB) error {
				return run(cmd, db)
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withDB(func(cmd *cobra.Command, db *sql.DB) error {
				if err := migrate.Run(db); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations, destroying stored data",
			RunE: withDB(func(cmd *cobra.Command, db *sql.DB) error {
				if err := migrate.Down(db); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return err
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: withDB(func(cmd *cobra.Command, db *sql.DB) error {
				version, dirty, err := migrate.Version(db)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
				return err
			}),
		},
	)
	return cmd
}
