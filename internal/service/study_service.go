package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/domain/deck"
	"github.com/phrazzld/scry-sync/internal/domain/srs"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/session"
	"github.com/phrazzld/scry-sync/internal/store"
	"github.com/phrazzld/scry-sync/internal/syncer"
)

// DeckOptions overrides the user's study profile when building a deck.
// Zero fields fall back to the profile.
type DeckOptions struct {
	Mode    string
	Ratios  *domain.DeckRatios
	Filter  *domain.DifficultyFilter
	MaxSize int
}

// StudyService provides every operation of the study core for one or more
// users. Users are identified by the upstream authentication collaborator.
type StudyService interface {
	// GetFlashcards returns the user's cards, oldest first.
	//
	// The cached copy is returned without touching the network while it is
	// fresh. A stale copy is returned as well and refreshed in the background.
	// The remote store is read synchronously only when nothing was ever cached
	// for the user or forceRefresh is set, and only while online; offline, the
	// cached copy is returned.
	GetFlashcards(ctx context.Context, userID uuid.UUID, forceRefresh bool) ([]domain.Card, error)

	// GetFlashcard returns one card from the cache.
	// Returns ErrCardNotFound when the user has no such card.
	GetFlashcard(ctx context.Context, userID, cardID uuid.UUID) (*domain.Card, error)

	// SaveFlashcard creates or updates a card. A card without an ID gets one.
	// The write succeeds offline; the card is pushed by the next sync.
	//
	// Error Handling:
	//   - Returns a *domain.ValidationError for an invalid card
	//   - Returns ErrNotOwned when the card belongs to another user
	SaveFlashcard(ctx context.Context, userID uuid.UUID, card *domain.Card) error

	// DeleteFlashcard deletes a card locally and schedules the remote delete.
	// Returns ErrCardNotFound when the user has no such card.
	DeleteFlashcard(ctx context.Context, userID, cardID uuid.UUID) error

	// GetNextCard returns the unsuspended card that has been due the longest.
	// Returns ErrNoCardsDue when nothing is due.
	GetNextCard(ctx context.Context, userID uuid.UUID) (*domain.Card, error)

	// GetStudySessions returns the user's finished study sessions, oldest
	// first, with the same caching rules as GetFlashcards.
	GetStudySessions(ctx context.Context, userID uuid.UUID, forceRefresh bool) ([]domain.StudySession, error)

	// SaveStudySession stores a finished study session record.
	SaveStudySession(ctx context.Context, userID uuid.UUID, record *domain.StudySession) error

	// GetStudyProfile returns the user's study preferences, or the defaults
	// when none were saved.
	GetStudyProfile(ctx context.Context, userID uuid.UUID) (*domain.StudyProfile, error)

	// SaveStudyProfile stores the user's study preferences. The deck mode is
	// validated along with the rest of the profile.
	SaveStudyProfile(ctx context.Context, userID uuid.UUID, profile *domain.StudyProfile) error

	// GetProgress returns the user's running review totals.
	GetProgress(ctx context.Context, userID uuid.UUID) (*domain.ProgressStats, error)

	// BuildReviewDeck selects and shuffles up to maxSize of the given cards.
	BuildReviewDeck(cards []domain.Card, mode deck.Mode, filter domain.DifficultyFilter, maxSize int) ([]domain.Card, error)

	// BuildUserDeck builds a deck from the user's cards using the study
	// profile, overridden by opts.
	BuildUserDeck(ctx context.Context, userID uuid.UUID, opts DeckOptions) ([]domain.Card, error)

	// Rate applies the scheduler to a card and returns the rescheduled copy.
	// Nothing is stored.
	Rate(card *domain.Card, outcome domain.ReviewOutcome) (*domain.Card, error)

	// ReviewCard rates a stored card, saves the result, counts it in the
	// user's study session and progress. The session is started on the first
	// review and resumed if it was paused.
	ReviewCard(ctx context.Context, userID, cardID uuid.UUID, outcome domain.ReviewOutcome) (*domain.Card, error)

	// PostponeCard pushes a stored card's due date back by days (at least 1).
	PostponeCard(ctx context.Context, userID, cardID uuid.UUID, days int) (*domain.Card, error)

	// StartStudy, PauseStudy and ResumeStudy drive the user's session state
	// machine. Invalid transitions return session.ErrInvalidTransition.
	StartStudy(userID uuid.UUID) (session.State, error)
	PauseStudy(userID uuid.UUID) (session.State, error)
	ResumeStudy(userID uuid.UUID) (session.State, error)

	// EndStudy ends the user's session and stores its record. It returns nil
	// and no error when no session was running.
	EndStudy(ctx context.Context, userID uuid.UUID) (*domain.StudySession, error)

	// StudyState returns the user's current session state.
	StudyState(userID uuid.UUID) session.State

	// BeginRun builds the user's deck as BuildUserDeck does and walks it
	// card by card, replacing any previous run. Reviewing the run's current
	// card through ReviewCard advances it; "again" sends the card to the back.
	BeginRun(ctx context.Context, userID uuid.UUID, opts DeckOptions) (RunState, error)

	// CurrentRun returns the state of the user's run, including the card to
	// show next. A finished run is kept until the next BeginRun or EndStudy.
	// Returns ErrNoActiveRun when no run was begun.
	CurrentRun(userID uuid.UUID) (RunState, error)

	// GetSyncStatus returns the aggregate sync status.
	GetSyncStatus() syncer.Status

	// SubscribeSyncStatus streams the sync status; call the returned function
	// to stop.
	SubscribeSyncStatus() (<-chan syncer.Status, func())

	// ForceSync schedules a background sync for the user, or for every user
	// when userID is uuid.Nil, and returns at once.
	ForceSync(userID uuid.UUID) error

	// MigrateLocalToRemote uploads every locally held document of the user.
	MigrateLocalToRemote(ctx context.Context, userID uuid.UUID) (syncer.MigrationResult, error)

	// PendingConflicts lists conflicts waiting for ResolveConflict.
	PendingConflicts(userID uuid.UUID) []syncer.Conflict

	// ResolveConflict applies a decision to a pending conflict.
	ResolveConflict(
		ctx context.Context,
		userID uuid.UUID,
		collection store.Collection,
		documentID string,
		resolution syncer.Resolution,
	) (syncer.Conflict, error)
}

// Deps are the collaborators of the study service. Cache and Engine are
// required; the rest have defaults.
type Deps struct {
	Cache     *cache.Cache
	Engine    *syncer.Engine
	Scheduler srs.Service
	Builder   *deck.Builder
	Clock     clock.Clock
	// TTL is how long cached reads count as fresh; zero means cache.DefaultTTL.
	TTL    time.Duration
	Logger *slog.Logger
}

// studyServiceImpl implements the StudyService interface
type studyServiceImpl struct {
	cache     *cache.Cache
	engine    *syncer.Engine
	scheduler srs.Service
	builder   *deck.Builder
	clock     clock.Clock
	ttl       time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	trackers map[uuid.UUID]*session.Tracker
	runs     map[uuid.UUID]*deck.Run
}

var _ StudyService = (*studyServiceImpl)(nil)

// NewStudyService creates a new StudyService.
// It returns an error if any of the required dependencies are nil.
func NewStudyService(deps Deps) (StudyService, error) {
	if deps.Cache == nil {
		return nil, domain.NewValidationError("cache", "cannot be nil", domain.ErrValidation)
	}
	if deps.Engine == nil {
		return nil, domain.NewValidationError("engine", "cannot be nil", domain.ErrValidation)
	}

	if deps.Scheduler == nil {
		deps.Scheduler = srs.NewDefaultService()
	}
	if deps.Builder == nil {
		deps.Builder = deck.NewBuilder(nil)
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.TTL <= 0 {
		deps.TTL = cache.DefaultTTL
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &studyServiceImpl{
		cache:     deps.Cache,
		engine:    deps.Engine,
		scheduler: deps.Scheduler,
		builder:   deps.Builder,
		clock:     deps.Clock,
		ttl:       deps.TTL,
		logger:    deps.Logger.With(slog.String("component", "study_service")),
		trackers:  make(map[uuid.UUID]*session.Tracker),
		runs:      make(map[uuid.UUID]*deck.Run),
	}, nil
}

// load returns the cached entry of collection for userID, reading through to
// the remote store on a cold cache or a forced refresh.
func (s *studyServiceImpl) load(
	ctx context.Context,
	collection store.Collection,
	userID uuid.UUID,
	forceRefresh bool,
) cache.Entry {
	log := logger.FromContextOrDefault(ctx, s.logger)
	owner := userID.String()

	entry, ok := s.cache.Get(collection, owner)
	switch {
	case !ok || forceRefresh:
		s.pull(ctx, owner)
		if refreshed, found := s.cache.Get(collection, owner); found {
			return refreshed
		}
	case s.cache.IsExpired(entry, s.ttl):
		log.Debug("cached entry is stale, refreshing in background",
			slog.String("collection", string(collection)),
			slog.String("user_id", owner))
		if err := s.engine.ForceSync(owner); err != nil {
			log.Warn("failed to schedule refresh", slog.String("error", err.Error()))
		}
	}
	if !ok {
		return cache.Entry{Docs: map[string]*cache.Doc{}}
	}
	return entry
}

// pull runs a sync pass for owner when online. Failures leave the cache as
// it was; a read never fails because the remote store did.
func (s *studyServiceImpl) pull(ctx context.Context, owner string) {
	if !s.engine.Status().IsOnline {
		return
	}
	if _, err := s.engine.PerformSync(ctx, owner); err != nil && !errors.Is(err, syncer.ErrOffline) {
		logger.FromContextOrDefault(ctx, s.logger).Warn("read-through sync failed",
			slog.String("user_id", owner),
			slog.String("error", err.Error()))
	}
}

// put writes v as a dirty document and tells the sync engine.
func (s *studyServiceImpl) put(ctx context.Context, op string, ref cache.Ref, v any, updatedAt time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return NewServiceError(op, "failed to encode document", err)
	}
	if err := s.cache.UpsertDoc(ctx, ref, data, updatedAt); err != nil {
		return NewServiceError(op, "failed to write local cache", err)
	}
	s.engine.NotifyLocalChange(ctx, ref.Owner)
	return nil
}

// lookup decodes a single live document of entry. It reports false when the
// document does not exist or is deleted.
func lookup[T any](entry cache.Entry, id string) (*T, bool, error) {
	doc, ok := entry.Docs[id]
	if !ok || doc.Deleted {
		return nil, false, nil
	}
	v, err := decode[T](doc.Data)
	return v, err == nil, err
}

func decode[T any](data json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func ref(collection store.Collection, userID uuid.UUID, id string) cache.Ref {
	return cache.Ref{Collection: collection, Owner: userID.String(), ID: id}
}

func (s *studyServiceImpl) tracker(userID uuid.UUID) *session.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[userID]
	if !ok {
		t = session.NewTracker(s.clock)
		s.trackers[userID] = t
	}
	return t
}
