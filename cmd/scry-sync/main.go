// Package main implements the scry-sync server, which serves a user's
// flashcards from a durable local cache and keeps that cache synchronized
// with a remote Postgres store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/scry-sync/internal/config"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
)

// options are the command-line flags.
type options struct {
	configFile string
	envFile    string
	migrate    string
	status     bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("scry-sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "path to a config file (default ./config.yaml if present)")
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading SCRY_ variables")
	fs.StringVar(&opts.migrate, "migrate", "", "run a migration command (up, down, reset, status, version) and exit")
	fs.BoolVar(&opts.status, "status", false, "print the persisted sync status as YAML and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.migrate != "" && opts.status {
		return opts, errors.New("-migrate and -status cannot be combined")
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command selected by args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, err := config.LoadWithOptions(config.Options{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to set up logger: %v\n", err)
		return 1
	}

	switch {
	case opts.migrate != "":
		err = runMigrations(ctx, cfg, opts.migrate, log)
	case opts.status:
		err = printStatus(ctx, cfg, stdout, log)
	default:
		err = serve(ctx, cfg, log)
	}
	if err != nil {
		log.Error("scry-sync failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("Server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("cache_path", cfg.Cache.Path),
		slog.Bool("remote_configured", cfg.Database.URL != ""))

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
