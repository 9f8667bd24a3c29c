package main

// Run database migrations:
//   go run ./cmd/migrate up
//   go run ./cmd/migrate down
//   go run ./cmd/migrate status

import (
	"context"
	"database/sql"
	"os"

	"github.com/spf13/cobra"

	"transcript-backend/internal/shared/config"
	"transcript-backend/internal/shared/storage/db"
	"transcript-backend/internal/shared/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the database schema",
		SilenceUsage: true,
	}
	root.AddCommand(
		migrateCommand("up", "Apply all pending migrations", db.RunMigrations),
		migrateCommand("down", "Roll back the most recent migration", db.RollbackMigration),
		migrateCommand("status", "Show applied migrations", db.MigrationStatus),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		telemetry.Error("migrate.failed", map[string]any{telemetry.FieldError: err})
		os.Exit(1)
	}
}

func migrateCommand(use, short string, fn func(context.Context, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
			sqlDB, err := db.Connect(cmd.Context(), cfg.DatabaseURL, opts)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			return fn(cmd.Context(), sqlDB)
		},
	}
}
