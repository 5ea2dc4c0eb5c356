package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/events"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/store"
	"golang.org/x/sync/errgroup"
)

// PerformSync runs a reconciliation pass for userID, or for every user the
// cache knows about when userID is empty, and returns the sessions that ran.
// A user whose pass is already running is skipped, so a concurrent call for
// the same user returns no sessions and no error.
func (e *Engine) PerformSync(ctx context.Context, userID string) ([]Session, error) {
	if !e.conn.Online() {
		e.updateStatus(ctx, nil)
		return nil, ErrOffline
	}

	if userID != "" {
		s, ran := e.syncUser(ctx, userID)
		if !ran {
			return nil, ctx.Err()
		}
		return []Session{s}, ctx.Err()
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		sessions []Session
	)
	g.SetLimit(e.cfg.Concurrency)
	for _, owner := range e.cache.Owners() {
		g.Go(func() error {
			if s, ran := e.syncUser(ctx, owner); ran {
				mu.Lock()
				sessions = append(sessions, s)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UserID < sessions[j].UserID
	})
	return sessions, ctx.Err()
}

func (e *Engine) syncUser(ctx context.Context, userID string) (Session, bool) {
	log := logger.FromContextOrDefault(ctx, e.logger).With(slog.String("user_id", userID))
	if !e.acquire(ctx, userID) {
		log.Debug("sync already in progress, skipping")
		return Session{}, false
	}
	defer e.release(ctx, userID)

	now := e.clock.Now()
	session := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartTime: now,
		Status:    SessionInProgress,
		Conflicts: []Conflict{},
		Errors:    []string{},
	}
	log = log.With(slog.String("session_id", session.ID))
	log.Debug("sync pass started")

	e.dropStaleConflicts(userID)

	for _, d := range e.cache.DirtyDocs(userID) {
		if err := ctx.Err(); err != nil {
			session.Errors = append(session.Errors, err.Error())
			break
		}
		if e.retries.Waiting(d.Ref, now) || e.retries.Parked(d.Ref, d.Doc.Revision) {
			continue
		}
		session.TotalItems++

		conflict, err := e.push(ctx, d)
		if conflict != nil {
			session.Conflicts = append(session.Conflicts, *conflict)
		}
		e.handleOutcome(ctx, &session, d.Ref, d.Doc.Revision, err)
	}

	if ctx.Err() == nil {
		e.pull(ctx, &session)
	}

	e.finishSession(ctx, &session)
	log.Info("sync pass finished",
		slog.String("status", string(session.Status)),
		slog.Int("total_items", session.TotalItems),
		slog.Int("synced_items", session.SyncedItems),
		slog.Int("conflicts", len(session.Conflicts)),
		slog.Int("errors", len(session.Errors)))
	return session, true
}

func (e *Engine) finishSession(ctx context.Context, session *Session) {
	end := e.clock.Now()
	session.EndTime = &end
	if len(session.Errors) == 0 {
		session.Status = SessionCompleted
	} else {
		session.Status = SessionFailed
	}
	e.recordSession(*session)

	e.updateStatus(ctx, func(s *Status) {
		if session.Status == SessionCompleted {
			s.LastSyncTimestamp = &end
			s.LastSyncError = ""
		} else {
			s.LastSyncError = session.Errors[0]
		}
	})
	e.emit(ctx, events.TypeSyncCompleted, *session)
}

// push reconciles one dirty document with the remote store. It returns the
// conflict it found, if any, and the error that kept the document dirty.
func (e *Engine) push(ctx context.Context, d cache.DirtyDoc) (*Conflict, error) {
	ref, doc := d.Ref, d.Doc

	remote, err := e.remote.FindEntity(ctx, ref.Collection, ref.ID)
	found := err == nil
	if err != nil && !store.IsNotFoundError(err) {
		return nil, err
	}
	if found && remote.OwnerID != ref.Owner {
		return nil, fmt.Errorf("%w: %s: %w", ErrForeignDocument, ref, store.ErrDuplicate)
	}

	if doc.Deleted {
		switch {
		case !found:
			_, err := e.cache.ConfirmDoc(ctx, ref, doc.Revision, 0)
			return nil, e.localErr(ctx, ref, err)
		case doc.RemoteVersion != 0 && remote.Version == doc.RemoteVersion:
			if err := e.remote.DeleteEntity(ctx, ref.Collection, ref.ID); err != nil && !store.IsNotFoundError(err) {
				return nil, err
			}
			_, err := e.cache.ConfirmDoc(ctx, ref, doc.Revision, 0)
			return nil, e.localErr(ctx, ref, err)
		default:
			return e.resolve(ctx, d, &remote, ConflictDelete)
		}
	}

	switch {
	case !found && doc.RemoteVersion == 0:
		_, version, err := e.remote.CreateEntity(ctx, ref.Collection, toDocument(ref, doc))
		if err != nil {
			return nil, err
		}
		_, err = e.cache.ConfirmDoc(ctx, ref, doc.Revision, version)
		return nil, e.localErr(ctx, ref, err)
	case !found:
		return e.resolve(ctx, d, nil, ConflictDelete)
	case remote.Version == doc.RemoteVersion:
		updated, err := e.remote.UpdateEntity(ctx, ref.Collection, ref.ID, toDocument(ref, doc))
		if err != nil {
			return nil, err
		}
		_, err = e.cache.ConfirmDoc(ctx, ref, doc.Revision, updated.Version)
		return nil, e.localErr(ctx, ref, err)
	case doc.RemoteVersion == 0:
		return e.resolve(ctx, d, &remote, ConflictCreate)
	default:
		return e.resolve(ctx, d, &remote, ConflictUpdate)
	}
}

// localErr logs a failed cache write after a successful remote call. The
// in-memory cache already holds the change, so the pass goes on.
func (e *Engine) localErr(ctx context.Context, ref cache.Ref, err error) error {
	if err != nil {
		logger.FromContextOrDefault(ctx, e.logger).Warn("failed to persist sync result locally",
			slog.String("ref", ref.String()),
			slog.String("error", err.Error()))
	}
	return nil
}

// handleOutcome files the result of pushing one document: success clears
// any retry state, transient failures are scheduled for retry, permanent
// failures are parked. session may be nil for retries run outside a pass.
func (e *Engine) handleOutcome(ctx context.Context, session *Session, ref cache.Ref, revision int64, err error) {
	log := logger.FromContextOrDefault(ctx, e.logger).With(slog.String("ref", ref.String()))
	record := func(err error) {
		if session != nil {
			session.Errors = append(session.Errors, fmt.Sprintf("%s: %v", ref, err))
		}
	}

	switch {
	case err == nil:
		e.retries.Succeed(ref)
		if session != nil {
			session.SyncedItems++
		}
	case errors.Is(err, ErrConflictUnresolved):
		record(err)
	case ctx.Err() != nil:
		record(err)
	case store.IsRetryable(err):
		entry, exhausted := e.retries.Fail(ref, revision, err, e.clock.Now())
		if !exhausted {
			log.Warn("push failed, will retry",
				slog.Int("attempt", entry.Attempt),
				slog.Time("next_retry_at", entry.NextRetryAt),
				slog.String("error", err.Error()))
			record(err)
			return
		}
		exhaustedErr := fmt.Errorf("%w: %s after %d attempts: %w", ErrRetryExhausted, ref, entry.Attempt, err)
		log.Error("giving up on document, it stays dirty",
			slog.Int("attempts", entry.Attempt),
			slog.String("error", err.Error()))
		record(exhaustedErr)
		e.updateStatus(ctx, func(s *Status) { s.LastSyncError = exhaustedErr.Error() })
		e.emit(ctx, events.TypeRetryExhausted, entry)
	default:
		log.Error("push rejected by remote store, not retrying",
			slog.String("error", err.Error()))
		entry := e.retries.Park(ref, revision, err)
		record(err)
		e.updateStatus(ctx, func(s *Status) { s.LastSyncError = err.Error() })
		e.emit(ctx, events.TypeRetryExhausted, entry)
	}
}

// pull merges every remote collection of the session's user into the cache.
// Dirty local documents are left alone.
func (e *Engine) pull(ctx context.Context, session *Session) {
	for _, collection := range store.Collections() {
		docs, err := e.remote.QueryEntities(ctx, collection,
			store.Filter{OwnerID: session.UserID},
			store.QueryOptions{Sort: store.SortUpdatedAsc})
		if err != nil {
			session.Errors = append(session.Errors, fmt.Sprintf("pull %s: %v", collection, err))
			continue
		}
		changed, err := e.cache.ApplyRemote(ctx, collection, session.UserID, docs, true)
		if err != nil {
			e.logger.Warn("failed to persist pulled documents",
				slog.String("collection", string(collection)),
				slog.String("error", err.Error()))
		}
		if changed > 0 {
			e.logger.Debug("pulled remote changes",
				slog.String("collection", string(collection)),
				slog.String("user_id", session.UserID),
				slog.Int("changed", changed))
		}
	}
}

// drainRetries pushes every document whose retry time has come. Users with
// a pass in flight are skipped until the next tick.
func (e *Engine) drainRetries(ctx context.Context, now time.Time) {
	due := e.retries.Due(now)
	if len(due) == 0 {
		return
	}

	byUser := make(map[string][]RetryEntry)
	var users []string
	for _, entry := range due {
		if _, ok := byUser[entry.Ref.Owner]; !ok {
			users = append(users, entry.Ref.Owner)
		}
		byUser[entry.Ref.Owner] = append(byUser[entry.Ref.Owner], entry)
	}

	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		if !e.acquire(ctx, userID) {
			continue
		}
		for _, entry := range byUser[userID] {
			doc, ok := e.cache.Doc(entry.Ref)
			if !ok || !doc.Dirty {
				e.retries.Succeed(entry.Ref)
				continue
			}
			_, err := e.push(ctx, cache.DirtyDoc{Ref: entry.Ref, Doc: doc})
			e.handleOutcome(ctx, nil, entry.Ref, doc.Revision, err)
		}
		e.release(ctx, userID)
	}
}

func toDocument(ref cache.Ref, doc cache.Doc) store.Document {
	return store.Document{
		ID:        ref.ID,
		OwnerID:   ref.Owner,
		UpdatedAt: doc.UpdatedAt,
		Data:      doc.Data,
	}
}
