package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/domain/deck"
	"github.com/phrazzld/scry-sync/internal/mocks"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/session"
	"github.com/phrazzld/scry-sync/internal/store"
	"github.com/phrazzld/scry-sync/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow    = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type fixture struct {
	svc    StudyService
	engine *syncer.Engine
	cache  *cache.Cache
	remote *mocks.RemoteStore
	clock  *clock.Fake
	net    *clock.Switch
	user   uuid.UUID
}

func newFixture(t *testing.T, online bool, configure func(*syncer.Config)) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		clock: clock.NewFake(testNow),
		net:   clock.NewSwitch(online),
		user:  uuid.New(),
	}
	f.remote = mocks.NewRemoteStore(f.clock)

	var err error
	f.cache, err = cache.Open(ctx, cache.NewMemoryBackend(), f.clock, testLogger)
	require.NoError(t, err)

	cfg := syncer.DefaultConfig()
	if configure != nil {
		configure(&cfg)
	}
	f.engine, err = syncer.New(ctx, cfg, syncer.Deps{
		Cache:        f.cache,
		Remote:       f.remote,
		Clock:        f.clock,
		Connectivity: f.net,
		Logger:       testLogger,
	})
	require.NoError(t, err)
	t.Cleanup(f.engine.Stop)

	f.svc, err = NewStudyService(Deps{
		Cache:   f.cache,
		Engine:  f.engine,
		Builder: deck.NewBuilder(rand.New(rand.NewPCG(7, 7))),
		Clock:   f.clock,
		Logger:  testLogger,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) newCard(t *testing.T, front string) *domain.Card {
	t.Helper()
	card, err := domain.NewCard(f.user, front, "back", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.svc.SaveFlashcard(context.Background(), f.user, card))
	return card
}

func (f *fixture) seedRemoteCard(t *testing.T, front string) domain.Card {
	t.Helper()
	card, err := domain.NewCard(f.user, front, "back", f.clock.Now())
	require.NoError(t, err)
	data, err := json.Marshal(card)
	require.NoError(t, err)
	f.remote.Seed(store.CollectionFlashcards, store.Document{ID: card.ID.String(), OwnerID: f.user.String(), Data: data})
	return *card
}

func TestNewStudyServiceRequiresDeps(t *testing.T) {
	t.Parallel()
	_, err := NewStudyService(Deps{})
	assert.True(t, domain.IsValidationError(err))
}

func TestSaveFlashcardOfflineIsLocalOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)

	before := f.svc.GetSyncStatus().PendingChanges
	card := f.newCard(t, "offline card")

	assert.Equal(t, before+1, f.svc.GetSyncStatus().PendingChanges)
	assert.Zero(t, f.remote.TotalCalls())

	cards, err := f.svc.GetFlashcards(ctx, f.user, true)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, card.ID, cards[0].ID)
	assert.Zero(t, f.remote.TotalCalls(), "offline reads never reach the remote store")
}

func TestGetFlashcardsReadsThroughOnColdCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true, nil)
	seeded := f.seedRemoteCard(t, "from the server")

	cards, err := f.svc.GetFlashcards(ctx, f.user, false)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, seeded.ID, cards[0].ID)
	assert.Positive(t, f.remote.Calls(mocks.OpQuery))

	f.remote.ResetCalls()
	_, err = f.svc.GetFlashcards(ctx, f.user, false)
	require.NoError(t, err)
	assert.Zero(t, f.remote.TotalCalls(), "a fresh cache is served without remote calls")
}

func TestGetFlashcardsForceRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true, nil)
	seeded := f.seedRemoteCard(t, "v1")
	_, err := f.svc.GetFlashcards(ctx, f.user, false)
	require.NoError(t, err)

	edited := seeded
	edited.Front = "v2"
	data, err := json.Marshal(edited)
	require.NoError(t, err)
	_, err = f.remote.Edit(store.CollectionFlashcards, seeded.ID.String(), data, testNow.Add(time.Minute))
	require.NoError(t, err)

	cards, err := f.svc.GetFlashcards(ctx, f.user, false)
	require.NoError(t, err)
	assert.Equal(t, "v1", cards[0].Front)

	cards, err = f.svc.GetFlashcards(ctx, f.user, true)
	require.NoError(t, err)
	assert.Equal(t, "v2", cards[0].Front)
}

func TestStaleCacheRefreshesInBackground(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true, func(c *syncer.Config) {
		c.Interval = 24 * time.Hour
		c.TickInterval = time.Hour
	})
	f.seedRemoteCard(t, "first")
	_, err := f.svc.GetFlashcards(ctx, f.user, false)
	require.NoError(t, err)

	require.NoError(t, f.engine.Start(ctx))
	require.Eventually(t, func() bool { return len(f.engine.History()) >= 2 }, 2*time.Second, 10*time.Millisecond)
	f.remote.ResetCalls()

	f.clock.Advance(cache.DefaultTTL + time.Minute)
	cards, err := f.svc.GetFlashcards(ctx, f.user, false)
	require.NoError(t, err)
	assert.Len(t, cards, 1, "the stale copy is returned at once")

	require.Eventually(t, func() bool {
		return f.remote.Calls(mocks.OpQuery) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSaveFlashcardValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)

	err := f.svc.SaveFlashcard(ctx, f.user, &domain.Card{Front: "", Back: "b"})
	assert.True(t, domain.IsValidationError(err))

	err = f.svc.SaveFlashcard(ctx, f.user, &domain.Card{UserID: uuid.New(), Front: "f", Back: "b"})
	assert.ErrorIs(t, err, ErrNotOwned)

	err = f.svc.SaveFlashcard(ctx, f.user, nil)
	assert.True(t, domain.IsValidationError(err))
	assert.Zero(t, f.svc.GetSyncStatus().PendingChanges)
}

func TestSaveFlashcardFillsDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)

	card := &domain.Card{Front: "f", Back: "b"}
	require.NoError(t, f.svc.SaveFlashcard(ctx, f.user, card))
	assert.NotEqual(t, uuid.Nil, card.ID)
	assert.Equal(t, f.user, card.UserID)
	assert.Equal(t, domain.DefaultEaseFactor, card.EaseFactor)
	assert.True(t, card.DueDate.Equal(domain.StartOfDay(testNow)))

	stored, err := f.svc.GetFlashcard(ctx, f.user, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "f", stored.Front)
}

func TestDeleteFlashcard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)
	keep := f.newCard(t, "keep")
	drop := f.newCard(t, "drop")

	require.NoError(t, f.svc.DeleteFlashcard(ctx, f.user, drop.ID))

	cards, err := f.svc.GetFlashcards(ctx, f.user, false)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, keep.ID, cards[0].ID)

	err = f.svc.DeleteFlashcard(ctx, f.user, drop.ID)
	assert.ErrorIs(t, err, ErrCardNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func TestReviewCard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)
	card := f.newCard(t, "q")

	updated, err := f.svc.ReviewCard(ctx, f.user, card.ID, domain.ReviewOutcomeGood)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Repetitions)
	assert.Equal(t, 1, updated.Interval)
	require.NotNil(t, updated.LastReviewed)

	stored, err := f.svc.GetFlashcard(ctx, f.user, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Repetitions)

	state := f.svc.StudyState(f.user)
	assert.True(t, state.IsActive, "first review starts the session")
	assert.Equal(t, 1, state.CardsStudied)
	assert.Equal(t, 1, state.CorrectAnswers)

	_, err = f.svc.PauseStudy(f.user)
	require.NoError(t, err)
	_, err = f.svc.ReviewCard(ctx, f.user, card.ID, domain.ReviewOutcomeAgain)
	require.NoError(t, err)
	state = f.svc.StudyState(f.user)
	assert.False(t, state.IsPaused, "a review resumes a paused session")
	assert.Equal(t, 2, state.CardsStudied)
	assert.Equal(t, 1, state.CorrectAnswers)

	progress, err := f.svc.GetProgress(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.TotalReviews)
	assert.Equal(t, 1, progress.CorrectReviews)
	assert.Equal(t, 1, progress.StreakDays)
	assert.Zero(t, f.remote.TotalCalls())
}

func TestReviewCardErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)
	card := f.newCard(t, "q")

	_, err := f.svc.ReviewCard(ctx, f.user, uuid.New(), domain.ReviewOutcomeGood)
	assert.ErrorIs(t, err, ErrCardNotFound)

	_, err = f.svc.ReviewCard(ctx, f.user, card.ID, "perfect")
	assert.ErrorIs(t, err, domain.ErrInvalidReviewOutcome)
	assert.True(t, domain.IsValidationError(err))

	_, err = f.svc.ReviewCard(ctx, uuid.New(), card.ID, domain.ReviewOutcomeGood)
	assert.ErrorIs(t, err, ErrCardNotFound, "cards of other users are invisible")
}

func TestRateDoesNotStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false, nil)
	card := f.newCard(t, "q")
	pending := f.svc.GetSyncStatus().PendingChanges

	rated, err := f.svc.Rate(card, domain.ReviewOutcomeHard)
	require.NoError(t, err)
	assert.Equal(t, 1, rated.Repetitions)
	assert.InDelta(t, 2.36, rated.EaseFactor, 0.001)
	assert.Zero(t, card.Repetitions, "input card is not mutated")
	assert.Equal(t, pending, f.svc.GetSyncStatus().PendingChanges)
}

func TestPostponeCard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)
	card := f.newCard(t, "q")

	updated, err := f.svc.PostponeCard(ctx, f.user, card.ID, 3)
	require.NoError(t, err)
	assert.True(t, updated.DueDate.Equal(domain.StartOfDay(testNow).AddDate(0, 0, 3)))

	_, err = f.svc.PostponeCard(ctx, f.user, card.ID, 0)
	assert.True(t, domain.IsValidationError(err))
}

func TestGetNextCard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)

	_, err := f.svc.GetNextCard(ctx, f.user)
	assert.ErrorIs(t, err, ErrNoCardsDue)

	recent := f.newCard(t, "recent")
	overdue := &domain.Card{Front: "overdue", Back: "b", DueDate: domain.StartOfDay(testNow).AddDate(0, 0, -3)}
	require.NoError(t, f.svc.SaveFlashcard(ctx, f.user, overdue))
	future := &domain.Card{Front: "future", Back: "b", Repetitions: 2, Interval: 6, DueDate: testNow.AddDate(0, 0, 6)}
	require.NoError(t, f.svc.SaveFlashcard(ctx, f.user, future))

	next, err := f.svc.GetNextCard(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, overdue.ID, next.ID)
	assert.NotEqual(t, recent.ID, next.ID)
}

func TestStudySessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)

	record, err := f.svc.EndStudy(ctx, f.user)
	require.NoError(t, err)
	assert.Nil(t, record, "ending a session that never started returns no record")

	_, err = f.svc.ResumeStudy(f.user)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	state, err := f.svc.StartStudy(f.user)
	require.NoError(t, err)
	assert.True(t, state.IsActive)

	f.clock.Advance(10 * time.Second)
	_, err = f.svc.PauseStudy(f.user)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Second)
	_, err = f.svc.ResumeStudy(f.user)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	_, err = f.svc.PauseStudy(f.user)
	require.NoError(t, err)
	f.clock.Advance(3 * time.Second)
	_, err = f.svc.ResumeStudy(f.user)
	require.NoError(t, err)

	record, err = f.svc.EndStudy(ctx, f.user)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 8, record.TotalPausedTime)
	assert.Equal(t, 20, record.TotalTime)

	records, err := f.svc.GetStudySessions(ctx, f.user, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.False(t, f.svc.StudyState(f.user).IsActive)
}

func TestSaveStudySession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)

	bad := &domain.StudySession{StartTime: testNow, EndTime: testNow.Add(-time.Minute)}
	assert.True(t, domain.IsValidationError(f.svc.SaveStudySession(ctx, f.user, bad)))

	other := &domain.StudySession{UserID: uuid.New(), StartTime: testNow, EndTime: testNow}
	assert.ErrorIs(t, f.svc.SaveStudySession(ctx, f.user, other), ErrNotOwned)
}

func TestStudyProfileAndUserDeck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)

	profile, err := f.svc.GetStudyProfile(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, "mixed", profile.DeckMode)
	assert.Equal(t, domain.DefaultDeckSize, profile.DeckSize)

	profile.DeckMode = "custom"
	err = f.svc.SaveStudyProfile(ctx, f.user, profile)
	assert.ErrorIs(t, err, deck.ErrInvalidRatios)

	profile.DeckMode = "new-only"
	profile.DeckSize = 2
	require.NoError(t, f.svc.SaveStudyProfile(ctx, f.user, profile))

	stored, err := f.svc.GetStudyProfile(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, "new-only", stored.DeckMode)

	for _, front := range []string{"a", "b", "c"} {
		f.newCard(t, front)
	}
	built, err := f.svc.BuildUserDeck(ctx, f.user, DeckOptions{})
	require.NoError(t, err)
	assert.Len(t, built, 2)

	built, err = f.svc.BuildUserDeck(ctx, f.user, DeckOptions{Mode: "review-only", MaxSize: 10})
	require.NoError(t, err)
	assert.Len(t, built, 3, "cards are due the day they are created")

	_, err = f.svc.BuildUserDeck(ctx, f.user, DeckOptions{Mode: "shuffle-all"})
	assert.ErrorIs(t, err, deck.ErrUnknownMode)
}

func TestSyncPassthrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false, nil)
	f.newCard(t, "a")
	f.newCard(t, "b")

	_, err := f.svc.MigrateLocalToRemote(ctx, f.user)
	assert.ErrorIs(t, err, syncer.ErrOffline)

	f.net.Set(true)
	result, err := f.svc.MigrateLocalToRemote(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MigratedItems)
	assert.Zero(t, f.svc.GetSyncStatus().PendingChanges)
	assert.Equal(t, 2, f.remote.Len(store.CollectionFlashcards))

	_, err = f.svc.MigrateLocalToRemote(ctx, uuid.Nil)
	assert.True(t, domain.IsValidationError(err))

	_, err = f.svc.ResolveConflict(ctx, f.user, "decks", "x", syncer.ResolutionLocal)
	assert.True(t, domain.IsValidationError(err))
	_, err = f.svc.ResolveConflict(ctx, f.user, store.CollectionFlashcards, "x", syncer.ResolutionLocal)
	assert.True(t, errors.Is(err, syncer.ErrConflictNotFound))
	assert.Empty(t, f.svc.PendingConflicts(f.user))

	updates, cancel := f.svc.SubscribeSyncStatus()
	first := <-updates
	assert.True(t, first.IsOnline)
	cancel()
}
