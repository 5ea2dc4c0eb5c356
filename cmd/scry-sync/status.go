package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/phrazzld/scry-sync/internal/config"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/syncer"
	"gopkg.in/yaml.v3"
)

// statusReport is what -status prints.
type statusReport struct {
	CachePath string        `yaml:"cache_path"`
	Sync      syncer.Status `yaml:"sync"`
	Users     []userPending `yaml:"users,omitempty"`
}

type userPending struct {
	UserID         string `yaml:"user_id"`
	PendingChanges int    `yaml:"pending_changes"`
}

// printStatus reports the persisted sync status and the pending changes per
// user without contacting the remote store or starting the engine.
func printStatus(ctx context.Context, cfg *config.Config, w io.Writer, logger *slog.Logger) error {
	kv, c, err := openCache(ctx, cfg.Cache, clock.System{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := kv.Close(); cerr != nil {
			logger.Warn("failed to close local cache", slog.String("error", cerr.Error()))
		}
	}()

	// An engine that is never started only reads the cache.
	engine, err := newEngine(ctx, cfg.Sync, syncer.Deps{
		Cache:        c,
		Remote:       unavailableRemote{},
		Connectivity: clock.NewSwitch(false),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	report := statusReport{
		CachePath: cfg.Cache.Path,
		Sync:      engine.Status(),
	}
	for _, owner := range c.Owners() {
		if n := c.PendingCount(owner); n > 0 {
			report.Users = append(report.Users, userPending{UserID: owner, PendingChanges: n})
		}
	}
	return writeStatus(w, report)
}

func writeStatus(w io.Writer, report statusReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return enc.Close()
}
