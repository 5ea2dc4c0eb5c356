package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-sync/internal/config"
	"github.com/phrazzld/scry-sync/internal/platform/postgres"
)

// migrationCommands are the goose commands -migrate accepts.
var migrationCommands = map[string]bool{
	"up":      true,
	"down":    true,
	"reset":   true,
	"status":  true,
	"version": true,
}

// runMigrations applies a migration command to the remote store schema.
func runMigrations(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	if !migrationCommands[command] {
		return fmt.Errorf("unknown migration command %q", command)
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required to run migrations")
	}

	logger.Info("Executing migrations",
		slog.String("command", command),
		slog.String("migrations_dir", cfg.Database.MigrationsDir))

	db, err := postgres.OpenDB(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("Error closing database connection", slog.String("error", cerr.Error()))
		}
	}()

	return postgres.Migrate(ctx, db, command, cfg.Database.MigrationsDir, logger)
}
