package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/pressly/goose/v3"
)

// migrationTableName keeps goose's bookkeeping apart from other schemas.
const migrationTableName = "scry_sync_migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// slogGooseLogger adapts the goose logger interface to slog.
type slogGooseLogger struct {
	logger *slog.Logger
}

// Printf implements goose.Logger.
func (l slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf implements goose.Logger. It does not exit; the error is returned by
// the goose call instead.
func (l slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Migrate runs a goose command (up, down, reset, status or version) against
// db. Migrations come from dir when it is set, otherwise from the files
// compiled into the binary.
func Migrate(ctx context.Context, db *sql.DB, command, dir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "migrations"), slog.String("command", command))

	var fsys fs.FS
	root := "migrations"
	if dir != "" {
		fsys = os.DirFS(dir)
		root = "."
	} else {
		fsys = embeddedMigrations
	}

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(slogGooseLogger{logger: logger})
	goose.SetTableName(migrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	var err error
	switch command {
	case "up":
		err = goose.UpContext(ctx, db, root)
	case "down":
		err = goose.DownContext(ctx, db, root)
	case "reset":
		err = goose.ResetContext(ctx, db, root)
	case "status":
		err = goose.StatusContext(ctx, db, root)
	case "version":
		err = goose.VersionContext(ctx, db, root)
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	logger.Info("migration finished")
	return nil
}
