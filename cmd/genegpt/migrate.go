package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genegpt-server/internal/database"
)

func newMigrateCommand(env *cliEnv) *cobra.Command {
	var embedded bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	run := func(apply func(*database.MigrationRunner, context.Context) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			path := env.config.Database.MigrationsPath
			if embedded {
				path = ""
			}
			runner, err := database.NewMigrationRunner(database.ConfigFrom(env.config.Database).URL(), path, env.logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			if err := apply(runner, cmd.Context()); err != nil {
				return err
			}
			version, dirty, err := runner.Version()
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "schema version: none")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d (dirty: %t)\n", version, dirty)
			return nil
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run((*database.MigrationRunner).Up),
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE:  run((*database.MigrationRunner).Down),
	}

	cmd.PersistentFlags().BoolVar(&embedded, "embedded", false, "use the migrations compiled into the binary")
	cmd.AddCommand(up, down)
	return cmd
}
