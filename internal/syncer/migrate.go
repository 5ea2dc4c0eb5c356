package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/store"
)

// MigrateLocalToRemote creates every live local document of userID in the
// remote store, for a first upload to an empty or subordinate remote. It
// does no conflict detection: a document that already exists remotely is
// counted as skipped and left for the next pass. Migrated documents are
// marked clean.
func (e *Engine) MigrateLocalToRemote(ctx context.Context, userID string) (MigrationResult, error) {
	result := MigrationResult{Errors: []string{}}
	if userID == "" {
		return result, fmt.Errorf("migration requires a user id")
	}
	if !e.conn.Online() {
		return result, ErrOffline
	}
	if !e.acquire(ctx, userID) {
		return result, ErrSyncInProgress
	}
	defer e.release(ctx, userID)

	log := logger.FromContextOrDefault(ctx, e.logger).With(slog.String("user_id", userID))
	log.Info("migrating local data to remote store")

	for _, collection := range store.Collections() {
		entry, ok := e.cache.Get(collection, userID)
		if !ok {
			continue
		}
		for _, id := range entry.LiveIDs() {
			if err := ctx.Err(); err != nil {
				result.Errors = append(result.Errors, err.Error())
				return result, err
			}
			ref := cache.Ref{Collection: collection, Owner: userID, ID: id}
			doc := *entry.Docs[id]

			_, version, err := e.remote.CreateEntity(ctx, collection, toDocument(ref, doc))
			switch {
			case store.IsDuplicateError(err):
				result.SkippedItems++
				continue
			case err != nil:
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ref, err))
				continue
			}

			result.MigratedItems++
			e.retries.Succeed(ref)
			if _, err := e.cache.ConfirmDoc(ctx, ref, doc.Revision, version); err != nil {
				e.localErr(ctx, ref, err)
			}
		}
	}

	e.updateStatus(ctx, nil)
	log.Info("migration finished",
		slog.Int("migrated", result.MigratedItems),
		slog.Int("skipped", result.SkippedItems),
		slog.Int("errors", len(result.Errors)))
	return result, nil
}
