package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rtodocs/internal/config"
	"rtodocs/internal/database"
	"rtodocs/internal/database/migration"
	"rtodocs/internal/logging"
)

func migrateCmd(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the documents schema",
		Long: `Apply the documents schema to the database configured by DB_*.

Every step is idempotent, so running it against an up-to-date database is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			log := logging.New(cmd.ErrOrStderr(), cfg.Location())
			if err := migration.Apply(ctx, db, log, cfg.Database.Host); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
