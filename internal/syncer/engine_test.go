package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/events"
	"github.com/phrazzld/scry-sync/internal/mocks"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/store"
	"github.com/phrazzld/scry-sync/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "user-1"

var (
	testNow    = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type harness struct {
	engine  *Engine
	cache   *cache.Cache
	backend *cache.MemoryBackend
	remote  *mocks.RemoteStore
	clock   *clock.Fake
	net     *clock.Switch
}

func newHarness(t *testing.T, configure func(*Config)) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		backend: cache.NewMemoryBackend(),
		clock:   clock.NewFake(testNow),
		net:     clock.NewSwitch(true),
	}
	h.remote = mocks.NewRemoteStore(h.clock)

	var err error
	h.cache, err = cache.Open(ctx, h.backend, h.clock, testLogger)
	require.NoError(t, err)

	cfg := DefaultConfig()
	if configure != nil {
		configure(&cfg)
	}
	h.engine, err = New(ctx, cfg, Deps{
		Cache:        h.cache,
		Remote:       h.remote,
		Clock:        h.clock,
		Connectivity: h.net,
		Logger:       testLogger,
	})
	require.NoError(t, err)
	t.Cleanup(h.engine.Stop)
	return h
}

func cardRef(id string) cache.Ref {
	return cache.Ref{Collection: store.CollectionFlashcards, Owner: testUser, ID: id}
}

func cardJSON(t *testing.T, id, front string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]string{"id": id, "front": front})
	require.NoError(t, err)
	return data
}

func (h *harness) save(t *testing.T, id, front string) {
	t.Helper()
	require.NoError(t, h.cache.UpsertDoc(context.Background(), cardRef(id), cardJSON(t, id, front), h.clock.Now()))
	h.engine.NotifyLocalChange(context.Background(), testUser)
}

func (h *harness) sync(t *testing.T) Session {
	t.Helper()
	sessions, err := h.engine.PerformSync(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	return sessions[0]
}

func frontOf(t *testing.T, data json.RawMessage) string {
	t.Helper()
	var v map[string]string
	require.NoError(t, json.Unmarshal(data, &v))
	return v["front"]
}

func TestNewRejectsMissingDeps(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), DefaultConfig(), Deps{Remote: mocks.NewRemoteStore(nil)})
	assert.Error(t, err)

	c, err := cache.Open(context.Background(), cache.NewMemoryBackend(), nil, testLogger)
	require.NoError(t, err)
	_, err = New(context.Background(), Config{Strategy: "newest"}, Deps{Cache: c, Remote: mocks.NewRemoteStore(nil)})
	assert.ErrorIs(t, err, ErrInvalidStrategy)
}

func TestPerformSyncPushesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.save(t, "c1", "one")
	h.save(t, "c2", "two")

	first := h.sync(t)
	assert.Equal(t, SessionCompleted, first.Status)
	assert.Equal(t, 2, first.TotalItems)
	assert.Equal(t, 2, first.SyncedItems)
	assert.Empty(t, first.Conflicts)
	require.NotNil(t, first.EndTime)
	assert.Equal(t, 2, h.remote.Len(store.CollectionFlashcards))
	assert.Zero(t, h.cache.PendingCount(""))

	doc, ok := h.cache.Doc(cardRef("c1"))
	require.True(t, ok)
	assert.False(t, doc.Dirty)
	assert.Equal(t, 1, doc.RemoteVersion)

	creates := h.remote.Calls(mocks.OpCreate)
	second := h.sync(t)
	assert.Equal(t, SessionCompleted, second.Status)
	assert.Zero(t, second.TotalItems)
	assert.Empty(t, second.Conflicts)
	assert.Zero(t, h.cache.PendingCount(""))
	assert.Equal(t, creates, h.remote.Calls(mocks.OpCreate))

	status := h.engine.Status()
	require.NotNil(t, status.LastSyncTimestamp)
	assert.True(t, status.LastSyncTimestamp.Equal(testNow))
	assert.Zero(t, status.PendingChanges)
	assert.False(t, status.SyncInProgress)
	assert.Len(t, h.engine.History(), 2)
}

func TestPerformSyncUpdatesConfirmedDocs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.save(t, "c1", "one")
	h.sync(t)

	h.clock.Advance(time.Minute)
	h.save(t, "c1", "edited")
	s := h.sync(t)
	assert.Equal(t, 1, s.SyncedItems)

	remote, ok := h.remote.Get(store.CollectionFlashcards, "c1")
	require.True(t, ok)
	assert.Equal(t, 2, remote.Version)
	assert.Equal(t, "edited", frontOf(t, remote.Data))
	assert.Equal(t, testUser, remote.OwnerID)
}

func TestOfflineWritesStayLocal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.net.Set(false)

	before := h.engine.Status().PendingChanges
	h.save(t, "c1", "offline")

	assert.Equal(t, before+1, h.engine.Status().PendingChanges)
	assert.False(t, h.engine.Status().IsOnline)

	_, err := h.engine.PerformSync(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrOffline)
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Zero(t, h.remote.TotalCalls())

	h.net.Set(true)
	h.sync(t)
	assert.Zero(t, h.engine.Status().PendingChanges)
	assert.Equal(t, 1, h.remote.Len(store.CollectionFlashcards))
}

// diverge syncs c1, lets another device edit it at remoteAt, then edits it
// locally at localAt.
func diverge(t *testing.T, h *harness, localAt, remoteAt time.Time) {
	t.Helper()
	h.save(t, "c1", "original")
	h.sync(t)

	_, err := h.remote.Edit(store.CollectionFlashcards, "c1", cardJSON(t, "c1", "remote"), remoteAt)
	require.NoError(t, err)
	require.NoError(t, h.cache.UpsertDoc(context.Background(), cardRef("c1"), cardJSON(t, "c1", "local"), localAt))
}

func TestLocalStrategyOverwritesRemote(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Strategy = StrategyLocal })
	diverge(t, h, testNow.Add(time.Minute), testNow.Add(time.Hour))

	s := h.sync(t)
	require.Len(t, s.Conflicts, 1)
	c := s.Conflicts[0]
	assert.Equal(t, ConflictUpdate, c.Type)
	assert.True(t, c.Resolved)
	assert.Equal(t, ResolutionLocal, c.Resolution)
	assert.Equal(t, 1, c.LocalVersion)
	assert.Equal(t, 2, c.RemoteVersion)

	remote, ok := h.remote.Get(store.CollectionFlashcards, "c1")
	require.True(t, ok)
	assert.Equal(t, "local", frontOf(t, remote.Data))
	assert.Zero(t, h.cache.PendingCount(testUser))

	again := h.sync(t)
	assert.Empty(t, again.Conflicts)
}

func TestRemoteStrategyKeepsRemote(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Strategy = StrategyRemote })
	diverge(t, h, testNow.Add(time.Hour), testNow.Add(time.Minute))

	s := h.sync(t)
	require.Len(t, s.Conflicts, 1)
	assert.Equal(t, ResolutionRemote, s.Conflicts[0].Resolution)

	doc, ok := h.cache.Doc(cardRef("c1"))
	require.True(t, ok)
	assert.False(t, doc.Dirty)
	assert.Equal(t, "remote", frontOf(t, doc.Data))
	assert.Equal(t, 2, doc.RemoteVersion)
	assert.Zero(t, h.remote.Calls(mocks.OpUpdate))
}

func TestMergeStrategyKeepsNewerSide(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		localAt  time.Time
		remoteAt time.Time
		want     string
	}{
		{name: "remote newer", localAt: testNow.Add(time.Minute), remoteAt: testNow.Add(time.Hour), want: "remote"},
		{name: "local newer", localAt: testNow.Add(time.Hour), remoteAt: testNow.Add(time.Minute), want: "local"},
		{name: "tie keeps local", localAt: testNow.Add(time.Hour), remoteAt: testNow.Add(time.Hour), want: "local"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			diverge(t, h, tc.localAt, tc.remoteAt)

			s := h.sync(t)
			require.Len(t, s.Conflicts, 1)
			assert.Equal(t, ResolutionMerge, s.Conflicts[0].Resolution)

			remote, ok := h.remote.Get(store.CollectionFlashcards, "c1")
			require.True(t, ok)
			assert.Equal(t, tc.want, frontOf(t, remote.Data))

			doc, ok := h.cache.Doc(cardRef("c1"))
			require.True(t, ok)
			assert.False(t, doc.Dirty)
			assert.Equal(t, tc.want, frontOf(t, doc.Data))
		})
	}
}

func TestCreateConflict(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Strategy = StrategyLocal })
	h.remote.Seed(store.CollectionFlashcards, store.Document{
		ID: "c1", OwnerID: testUser, Data: cardJSON(t, "c1", "elsewhere"),
	})
	h.save(t, "c1", "here")

	s := h.sync(t)
	require.Len(t, s.Conflicts, 1)
	assert.Equal(t, ConflictCreate, s.Conflicts[0].Type)
	assert.Zero(t, s.Conflicts[0].LocalVersion)

	remote, _ := h.remote.Get(store.CollectionFlashcards, "c1")
	assert.Equal(t, "here", frontOf(t, remote.Data))
}

func TestManualConflictWaitsForResolution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.Strategy = StrategyManual })
	diverge(t, h, testNow.Add(time.Hour), testNow.Add(time.Minute))

	s := h.sync(t)
	assert.Equal(t, SessionFailed, s.Status)
	require.Len(t, s.Conflicts, 1)
	assert.False(t, s.Conflicts[0].Resolved)
	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0], ErrConflictUnresolved.Error())

	pending := h.engine.PendingConflicts(testUser)
	require.Len(t, pending, 1)
	assert.Equal(t, "c1", pending[0].DocumentID)
	assert.Equal(t, 1, h.cache.PendingCount(testUser))

	// The conflict is reported again, not resolved, on the next pass.
	again := h.sync(t)
	assert.Len(t, again.Conflicts, 1)
	assert.Len(t, h.engine.PendingConflicts(""), 1)

	_, err := h.engine.ResolveConflict(ctx, testUser, store.CollectionFlashcards, "c1", "newest")
	assert.ErrorIs(t, err, ErrInvalidStrategy)

	resolved, err := h.engine.ResolveConflict(ctx, testUser, store.CollectionFlashcards, "c1", ResolutionRemote)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, ResolutionRemote, resolved.Resolution)

	doc, ok := h.cache.Doc(cardRef("c1"))
	require.True(t, ok)
	assert.False(t, doc.Dirty)
	assert.Equal(t, "remote", frontOf(t, doc.Data))
	assert.Empty(t, h.engine.PendingConflicts(testUser))

	_, err = h.engine.ResolveConflict(ctx, testUser, store.CollectionFlashcards, "c1", ResolutionLocal)
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestManualConflictDroppedWhenLocalChangeGoes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Strategy = StrategyManual })
	diverge(t, h, testNow.Add(time.Hour), testNow.Add(time.Minute))
	h.sync(t)
	require.Len(t, h.engine.PendingConflicts(testUser), 1)

	remote, _ := h.remote.Get(store.CollectionFlashcards, "c1")
	_, err := h.cache.AcceptRemote(context.Background(), cardRef("c1"), remote, mustDoc(t, h, "c1").Revision)
	require.NoError(t, err)

	s := h.sync(t)
	assert.Equal(t, SessionCompleted, s.Status)
	assert.Empty(t, h.engine.PendingConflicts(testUser))
}

func mustDoc(t *testing.T, h *harness, id string) cache.Doc {
	t.Helper()
	doc, ok := h.cache.Doc(cardRef(id))
	require.True(t, ok)
	return doc
}

func TestRetryBackoffAndExhaustion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, func(c *Config) {
		c.RetryBaseDelay = time.Second
		c.MaxRetryAttempts = 2
	})
	exhausted, stop := h.engine.Events(events.TypeRetryExhausted)
	defer stop()

	h.remote.FailNext(mocks.OpCreate, "", store.ErrTransient, 0)
	h.save(t, "c1", "one")

	s := h.sync(t)
	assert.Equal(t, SessionFailed, s.Status)
	assert.Zero(t, s.SyncedItems)
	entries := h.engine.RetryEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Attempt)
	assert.Equal(t, testNow.Add(time.Second), entries[0].NextRetryAt)
	assert.Equal(t, 1, h.engine.Status().RetryCount)

	h.clock.Advance(500 * time.Millisecond)
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, 1, h.remote.Calls(mocks.OpCreate), "no retry before the delay")

	// A pass in between leaves the waiting document alone.
	assert.Zero(t, h.sync(t).TotalItems)

	h.clock.Advance(500 * time.Millisecond)
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, 2, h.remote.Calls(mocks.OpCreate))
	entries = h.engine.RetryEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Attempt)
	assert.Equal(t, h.clock.Now().Add(2*time.Second), entries[0].NextRetryAt)

	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, 3, h.remote.Calls(mocks.OpCreate))
	assert.Empty(t, h.engine.RetryEntries())
	require.Len(t, h.engine.Exhausted(), 1)

	select {
	case ev := <-exhausted.Events():
		var entry RetryEntry
		require.NoError(t, ev.UnmarshalPayload(&entry))
		assert.Equal(t, "c1", entry.Ref.ID)
	default:
		t.Fatal("expected a retry exhausted event")
	}

	doc := mustDoc(t, h, "c1")
	assert.True(t, doc.Dirty, "local data is never discarded")
	status := h.engine.Status()
	assert.Equal(t, 1, status.PendingChanges)
	assert.Zero(t, status.RetryCount)
	assert.Contains(t, status.LastSyncError, ErrRetryExhausted.Error())

	// Parked until the document changes again.
	assert.Zero(t, h.sync(t).TotalItems)
	assert.Equal(t, 3, h.remote.Calls(mocks.OpCreate))

	h.remote.ClearFailures()
	h.save(t, "c1", "two")
	s = h.sync(t)
	assert.Equal(t, SessionCompleted, s.Status)
	assert.Equal(t, 1, s.SyncedItems)
	assert.Empty(t, h.engine.Exhausted())
	assert.Zero(t, h.cache.PendingCount(""))
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.remote.FailNext(mocks.OpCreate, "bad", store.ErrInvalidEntity, 0)
	h.save(t, "bad", "x")
	h.save(t, "good", "y")

	s := h.sync(t)
	assert.Equal(t, 2, s.TotalItems)
	assert.Equal(t, 1, s.SyncedItems, "one bad item does not block the others")
	assert.Empty(t, h.engine.RetryEntries())
	require.Len(t, h.engine.Exhausted(), 1)
	assert.Equal(t, "bad", h.engine.Exhausted()[0].Ref.ID)

	assert.Zero(t, h.sync(t).TotalItems)
	assert.Equal(t, 1, h.cache.PendingCount(testUser))
}

func TestDeletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)

	h.save(t, "c1", "synced")
	h.sync(t)
	require.NoError(t, h.cache.DeleteDoc(ctx, cardRef("c1")))

	h.save(t, "c2", "never synced")
	require.NoError(t, h.cache.DeleteDoc(ctx, cardRef("c2")))

	s := h.sync(t)
	assert.Equal(t, SessionCompleted, s.Status)
	assert.Equal(t, 2, s.SyncedItems)
	assert.Equal(t, 1, h.remote.Calls(mocks.OpDelete))
	assert.Zero(t, h.remote.Len(store.CollectionFlashcards))

	_, ok := h.cache.Doc(cardRef("c1"))
	assert.False(t, ok)
	_, ok = h.cache.Doc(cardRef("c2"))
	assert.False(t, ok)
}

func TestDeleteConflictWithRemoteEdit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.Strategy = StrategyRemote })
	h.save(t, "c1", "original")
	h.sync(t)

	_, err := h.remote.Edit(store.CollectionFlashcards, "c1", cardJSON(t, "c1", "kept"), testNow.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.cache.DeleteDoc(ctx, cardRef("c1")))

	s := h.sync(t)
	require.Len(t, s.Conflicts, 1)
	assert.Equal(t, ConflictDelete, s.Conflicts[0].Type)

	doc := mustDoc(t, h, "c1")
	assert.False(t, doc.Deleted)
	assert.Equal(t, "kept", frontOf(t, doc.Data))
}

func TestPullMergesRemoteChanges(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.remote.Seed(store.CollectionFlashcards, store.Document{ID: "r1", OwnerID: testUser, Data: cardJSON(t, "r1", "from afar")})
	h.remote.Seed(store.CollectionFlashcards, store.Document{ID: "other", OwnerID: "user-2", Data: cardJSON(t, "other", "not mine")})

	h.sync(t)
	doc := mustDoc(t, h, "r1")
	assert.Equal(t, "from afar", frontOf(t, doc.Data))
	_, ok := h.cache.Doc(cache.Ref{Collection: store.CollectionFlashcards, Owner: testUser, ID: "other"})
	assert.False(t, ok)

	h.remote.Remove(store.CollectionFlashcards, "r1")
	h.sync(t)
	_, ok = h.cache.Doc(cardRef("r1"))
	assert.False(t, ok, "remote deletion is pulled")
}

func TestPullFailureIsIsolated(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.remote.FailNext(mocks.OpQuery, "", store.ErrTransient, 1)
	h.save(t, "c1", "one")

	s := h.sync(t)
	assert.Equal(t, 1, s.SyncedItems)
	assert.Equal(t, SessionFailed, s.Status)
	require.Len(t, s.Errors, 1)
	assert.True(t, strings.HasPrefix(s.Errors[0], "pull "))
	assert.Nil(t, h.engine.Status().LastSyncTimestamp)
}

func TestLocalWriteDuringPushStaysDirty(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.save(t, "c1", "first")

	var once sync.Once
	h.remote.Hook = func(op mocks.Op, _ store.Collection, _ string) error {
		if op == mocks.OpCreate {
			once.Do(func() {
				_ = h.cache.UpsertDoc(context.Background(), cardRef("c1"), cardJSON(t, "c1", "second"), testNow)
			})
		}
		return nil
	}

	h.sync(t)
	assert.True(t, mustDoc(t, h, "c1").Dirty, "the write made during the push is still pending")

	h.sync(t)
	remote, _ := h.remote.Get(store.CollectionFlashcards, "c1")
	assert.Equal(t, "second", frontOf(t, remote.Data))
	assert.False(t, mustDoc(t, h, "c1").Dirty)
}

func TestPerformSyncIsSingleFlightPerUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	h.save(t, "c1", "one")

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.Hook = func(op mocks.Op, _ store.Collection, _ string) error {
		if op == mocks.OpFind {
			once.Do(func() {
				close(started)
				<-release
			})
		}
		return nil
	}

	done := make(chan []Session)
	go func() {
		sessions, _ := h.engine.PerformSync(ctx, testUser)
		done <- sessions
	}()
	<-started

	sessions, err := h.engine.PerformSync(ctx, testUser)
	assert.NoError(t, err)
	assert.Empty(t, sessions)
	assert.True(t, h.engine.Status().SyncInProgress)

	close(release)
	first := <-done
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].SyncedItems)
	assert.Equal(t, 1, h.remote.Calls(mocks.OpCreate))
	assert.False(t, h.engine.Status().SyncInProgress)
}

func TestPerformSyncAllUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	for _, user := range []string{"b", "a", "c"} {
		ref := cache.Ref{Collection: store.CollectionFlashcards, Owner: user, ID: "card-" + user}
		require.NoError(t, h.cache.UpsertDoc(ctx, ref, cardJSON(t, ref.ID, user), testNow))
	}

	sessions, err := h.engine.PerformSync(ctx, "")
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "a", sessions[0].UserID)
	assert.Equal(t, "c", sessions[2].UserID)
	assert.Equal(t, 3, h.remote.Len(store.CollectionFlashcards))
}

func TestPushNeverTouchesAnotherUsersDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	h.save(t, "shared-id", "alice front")
	h.sync(t)

	mallory := cache.Ref{Collection: store.CollectionFlashcards, Owner: "user-2", ID: "shared-id"}
	require.NoError(t, h.cache.UpsertDoc(ctx, mallory, cardJSON(t, "shared-id", "other front"), h.clock.Now()))

	sessions, err := h.engine.PerformSync(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, SessionFailed, sessions[0].Status)
	assert.Empty(t, sessions[0].Conflicts)
	require.NotEmpty(t, sessions[0].Errors)
	assert.Contains(t, sessions[0].Errors[0], ErrForeignDocument.Error())

	remote, ok := h.remote.Get(store.CollectionFlashcards, "shared-id")
	require.True(t, ok)
	assert.Equal(t, testUser, remote.OwnerID)
	assert.Equal(t, "alice front", frontOf(t, remote.Data))
	assert.Equal(t, 1, remote.Version)

	require.Len(t, h.engine.Exhausted(), 1, "the push is parked, not retried")
	assert.Equal(t, mallory, h.engine.Exhausted()[0].Ref)
	assert.Equal(t, 1, h.cache.PendingCount("user-2"))
}

func TestMigrateLocalToRemote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	h.net.Set(false)
	h.save(t, "c1", "one")
	h.save(t, "c2", "two")
	h.save(t, "c3", "three")
	require.NoError(t, h.cache.DeleteDoc(ctx, cardRef("c3")))
	h.remote.Seed(store.CollectionFlashcards, store.Document{ID: "c2", OwnerID: testUser, Data: cardJSON(t, "c2", "already there")})

	_, err := h.engine.MigrateLocalToRemote(ctx, testUser)
	assert.ErrorIs(t, err, ErrOffline)

	h.net.Set(true)
	result, err := h.engine.MigrateLocalToRemote(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MigratedItems)
	assert.Equal(t, 1, result.SkippedItems)
	assert.Empty(t, result.Errors)
	assert.Zero(t, h.remote.Calls(mocks.OpFind), "migration does not look for conflicts")

	assert.False(t, mustDoc(t, h, "c1").Dirty)
	assert.True(t, mustDoc(t, h, "c2").Dirty)
	remote, _ := h.remote.Get(store.CollectionFlashcards, "c2")
	assert.Equal(t, "already there", frontOf(t, remote.Data))
}

func TestMigrateRecordsErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.save(t, "c1", "one")
	h.remote.FailNext(mocks.OpCreate, "c1", errors.New("boom"), 1)

	result, err := h.engine.MigrateLocalToRemote(context.Background(), testUser)
	require.NoError(t, err)
	assert.Zero(t, result.MigratedItems)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "boom")
}

func TestStatusIsPublishedAndPersisted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.net.Set(false)

	updates, cancel := h.engine.Subscribe()
	initial := <-updates
	assert.Zero(t, initial.PendingChanges)

	h.save(t, "c1", "one")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.PendingChanges != 1 {
				continue
			}
			assert.False(t, s.IsOnline)
		case <-deadline:
			t.Fatal("no status update with the pending change")
		}
		break
	}

	raw, ok := h.backend.Raw(cache.StatusKey)
	require.True(t, ok)
	var persisted Status
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, 1, persisted.PendingChanges)

	cancel()
	for range updates {
	}
}

func TestStatusSurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, nil)
	h.save(t, "c1", "one")
	h.sync(t)

	c, err := cache.Open(ctx, h.backend, h.clock, testLogger)
	require.NoError(t, err)
	restarted, err := New(ctx, DefaultConfig(), Deps{Cache: c, Remote: h.remote, Clock: h.clock, Logger: testLogger})
	require.NoError(t, err)
	defer restarted.Stop()

	status := restarted.Status()
	require.NotNil(t, status.LastSyncTimestamp)
	assert.True(t, status.LastSyncTimestamp.Equal(testNow))
}

func TestTickRunsPeriodicPass(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.Interval = time.Minute })
	require.NoError(t, h.cache.UpsertDoc(ctx, cardRef("c1"), cardJSON(t, "c1", "one"), testNow))

	require.NoError(t, h.engine.Tick(ctx))
	assert.Zero(t, h.remote.Calls(mocks.OpCreate))

	h.clock.Advance(time.Minute)
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, 1, h.remote.Calls(mocks.OpCreate))
	assert.Len(t, h.engine.History(), 1)
}

func TestStartSyncsInBackground(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.TickInterval = 10 * time.Millisecond })
	require.NoError(t, h.cache.UpsertDoc(ctx, cardRef("c1"), cardJSON(t, "c1", "one"), testNow))

	require.NoError(t, h.engine.Start(ctx))
	require.Eventually(t, func() bool {
		return h.remote.Len(store.CollectionFlashcards) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.net.Set(false)
	require.Eventually(t, func() bool { return !h.engine.Status().IsOnline }, 2*time.Second, 10*time.Millisecond)
	h.save(t, "c2", "two")
	assert.Equal(t, 1, h.remote.Len(store.CollectionFlashcards))

	h.net.Set(true)
	require.Eventually(t, func() bool {
		return h.remote.Len(store.CollectionFlashcards) == 2
	}, 2*time.Second, 10*time.Millisecond)

	h.engine.Stop()
	assert.ErrorIs(t, h.engine.ForceSync(testUser), task.ErrQueueClosed)
}
