package db

import (
	"context"
	"database/sql"
	"embed"

	"github.com/cockroachdb/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func prepareGoose() error {
	goose.SetBaseFS(migrationFiles)
	return goose.SetDialect("postgres")
}

// RunMigrations applies embedded SQL migrations via goose. If database is nil, it's a no-op.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	if err := prepareGoose(); err != nil {
		return err
	}
	return errors.Wrap(goose.UpContext(ctx, database, "migrations"), "migrate up")
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return errors.New("database is nil")
	}
	if err := prepareGoose(); err != nil {
		return err
	}
	return errors.Wrap(goose.DownContext(ctx, database, "migrations"), "migrate down")
}

// MigrationStatus logs the applied state of every embedded migration.
func MigrationStatus(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return errors.New("database is nil")
	}
	if err := prepareGoose(); err != nil {
		return err
	}
	return errors.Wrap(goose.StatusContext(ctx, database, "migrations"), "migrate status")
}
