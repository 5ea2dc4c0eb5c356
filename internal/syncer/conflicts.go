package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/events"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/store"
)

// resolve handles a conflict found while pushing d. remote is nil when the
// remote document no longer exists. Under the manual strategy the conflict
// is recorded and the document stays dirty.
func (e *Engine) resolve(ctx context.Context, d cache.DirtyDoc, remote *store.Document, typ ConflictType) (*Conflict, error) {
	conflict := Conflict{
		UserID:       d.Owner,
		Collection:   d.Collection,
		DocumentID:   d.ID,
		LocalVersion: d.Doc.RemoteVersion,
		Type:         typ,
		Timestamp:    e.clock.Now(),
	}
	if remote != nil {
		conflict.RemoteVersion = remote.Version
	}

	log := logger.FromContextOrDefault(ctx, e.logger).With(
		slog.String("ref", d.Ref.String()),
		slog.String("conflict_type", string(typ)),
		slog.String("strategy", string(e.cfg.Strategy)))

	if e.cfg.Strategy == StrategyManual {
		e.recordPending(conflict)
		log.Info("conflict left for manual resolution")
		e.emit(ctx, events.TypeConflictDetected, conflict)
		return &conflict, fmt.Errorf("%w: %s", ErrConflictUnresolved, d.Ref)
	}

	resolution := Resolution(e.cfg.Strategy)
	if err := e.apply(ctx, d, remote, e.winner(resolution, d.Doc, remote)); err != nil {
		log.Warn("failed to apply conflict resolution", slog.String("error", err.Error()))
		return &conflict, err
	}
	conflict.Resolved = true
	conflict.Resolution = resolution
	log.Info("conflict resolved", slog.String("resolution", string(resolution)))
	e.emit(ctx, events.TypeConflictDetected, conflict)
	return &conflict, nil
}

// winner maps a resolution to the side that is kept. Merge keeps the newer
// UpdatedAt and the local side on a tie or when the remote copy is gone.
func (e *Engine) winner(resolution Resolution, local cache.Doc, remote *store.Document) Resolution {
	if resolution != ResolutionMerge {
		return resolution
	}
	if remote != nil && remote.UpdatedAt.After(local.UpdatedAt) {
		return ResolutionRemote
	}
	return ResolutionLocal
}

func (e *Engine) apply(ctx context.Context, d cache.DirtyDoc, remote *store.Document, side Resolution) error {
	if side == ResolutionRemote {
		return e.takeRemote(ctx, d, remote)
	}
	return e.forceLocal(ctx, d, remote)
}

// forceLocal makes the remote store match the local copy, tombstones
// included.
func (e *Engine) forceLocal(ctx context.Context, d cache.DirtyDoc, remote *store.Document) error {
	ref, doc := d.Ref, d.Doc

	switch {
	case doc.Deleted:
		if remote != nil {
			if err := e.remote.DeleteEntity(ctx, ref.Collection, ref.ID); err != nil && !store.IsNotFoundError(err) {
				return err
			}
		}
		_, err := e.cache.ConfirmDoc(ctx, ref, doc.Revision, 0)
		return e.localErr(ctx, ref, err)
	case remote == nil:
		_, version, err := e.remote.CreateEntity(ctx, ref.Collection, toDocument(ref, doc))
		if err != nil {
			return err
		}
		_, err = e.cache.ConfirmDoc(ctx, ref, doc.Revision, version)
		return e.localErr(ctx, ref, err)
	default:
		updated, err := e.remote.UpdateEntity(ctx, ref.Collection, ref.ID, toDocument(ref, doc))
		if err != nil {
			return err
		}
		_, err = e.cache.ConfirmDoc(ctx, ref, doc.Revision, updated.Version)
		return e.localErr(ctx, ref, err)
	}
}

// takeRemote discards the local change. A local write made after d was read
// survives and is pushed by a later pass.
func (e *Engine) takeRemote(ctx context.Context, d cache.DirtyDoc, remote *store.Document) error {
	var err error
	if remote == nil {
		_, err = e.cache.ForgetDoc(ctx, d.Ref, d.Doc.Revision)
	} else {
		_, err = e.cache.AcceptRemote(ctx, d.Ref, *remote, d.Doc.Revision)
	}
	return e.localErr(ctx, d.Ref, err)
}

// ResolveConflict applies a caller's decision to a conflict left by the
// manual strategy. The remote side is read again, so a resolution always
// acts on the current remote document.
func (e *Engine) ResolveConflict(ctx context.Context, userID string, collection store.Collection, id string, resolution Resolution) (Conflict, error) {
	if _, err := ParseResolution(string(resolution)); err != nil {
		return Conflict{}, err
	}
	ref := cache.Ref{Collection: collection, Owner: userID, ID: id}

	e.mu.Lock()
	conflict, ok := e.conflicts[ref]
	e.mu.Unlock()
	if !ok {
		return Conflict{}, fmt.Errorf("%w: %s", ErrConflictNotFound, ref)
	}
	if !e.conn.Online() {
		return Conflict{}, ErrOffline
	}
	if !e.acquire(ctx, userID) {
		return Conflict{}, ErrSyncInProgress
	}
	defer e.release(ctx, userID)

	doc, ok := e.cache.Doc(ref)
	if !ok || !doc.Dirty {
		e.forgetConflict(ref)
		return Conflict{}, fmt.Errorf("%w: %s is no longer modified locally", ErrConflictNotFound, ref)
	}

	var remote *store.Document
	found, err := e.remote.FindEntity(ctx, collection, id)
	switch {
	case err == nil:
		remote = &found
	case !store.IsNotFoundError(err):
		return Conflict{}, fmt.Errorf("failed to read remote document: %w", err)
	}

	d := cache.DirtyDoc{Ref: ref, Doc: doc}
	if err := e.apply(ctx, d, remote, e.winner(resolution, doc, remote)); err != nil {
		return Conflict{}, fmt.Errorf("failed to apply resolution: %w", err)
	}

	e.forgetConflict(ref)
	e.retries.Succeed(ref)
	conflict.Resolved = true
	conflict.Resolution = resolution
	if remote != nil {
		conflict.RemoteVersion = remote.Version
	} else {
		conflict.RemoteVersion = 0
	}

	logger.FromContextOrDefault(ctx, e.logger).Info("conflict resolved by caller",
		slog.String("ref", ref.String()),
		slog.String("resolution", string(resolution)))
	e.updateStatus(ctx, nil)
	e.emit(ctx, events.TypeConflictDetected, conflict)
	return conflict, nil
}

// PendingConflicts returns the unresolved conflicts of userID, or of every
// user when userID is empty.
func (e *Engine) PendingConflicts(userID string) []Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Conflict, 0, len(e.conflicts))
	for ref, c := range e.conflicts {
		if userID == "" || ref.Owner == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

func (e *Engine) recordPending(c Conflict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conflicts[cache.Ref{Collection: c.Collection, Owner: c.UserID, ID: c.DocumentID}] = c
}

func (e *Engine) forgetConflict(ref cache.Ref) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conflicts, ref)
}

// dropStaleConflicts forgets pending conflicts whose document is no longer
// modified locally, for example after the user reverted or a pull arrived.
func (e *Engine) dropStaleConflicts(userID string) {
	e.mu.Lock()
	refs := make([]cache.Ref, 0)
	for ref := range e.conflicts {
		if ref.Owner == userID {
			refs = append(refs, ref)
		}
	}
	e.mu.Unlock()

	for _, ref := range refs {
		if doc, ok := e.cache.Doc(ref); !ok || !doc.Dirty {
			e.forgetConflict(ref)
		}
	}
}
