package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/domain/deck"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/store"
)

// GetFlashcards implements StudyService.GetFlashcards
func (s *studyServiceImpl) GetFlashcards(ctx context.Context, userID uuid.UUID, forceRefresh bool) ([]domain.Card, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "cannot be empty", domain.ErrInvalidID)
	}

	entry := s.load(ctx, store.CollectionFlashcards, userID, forceRefresh)
	cards, err := cache.Decode[domain.Card](entry)
	if err != nil {
		return nil, NewServiceError("get_flashcards", "failed to decode cached cards", err)
	}
	sort.SliceStable(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		}
		return cards[i].ID.String() < cards[j].ID.String()
	})
	return cards, nil
}

// GetFlashcard implements StudyService.GetFlashcard
func (s *studyServiceImpl) GetFlashcard(ctx context.Context, userID, cardID uuid.UUID) (*domain.Card, error) {
	doc, ok := s.cache.Doc(ref(store.CollectionFlashcards, userID, cardID.String()))
	if !ok || doc.Deleted {
		return nil, ErrCardNotFound
	}
	card, err := decode[domain.Card](doc.Data)
	if err != nil {
		return nil, NewServiceError("get_flashcard", "failed to decode cached card", err)
	}
	if card.UserID != userID {
		return nil, ErrNotOwned
	}
	return card, nil
}

// SaveFlashcard implements StudyService.SaveFlashcard
func (s *studyServiceImpl) SaveFlashcard(ctx context.Context, userID uuid.UUID, card *domain.Card) error {
	if card == nil {
		return domain.NewValidationError("card", "cannot be nil", nil)
	}
	if card.UserID == uuid.Nil {
		card.UserID = userID
	}
	if card.UserID != userID {
		return ErrNotOwned
	}

	now := s.clock.Now()
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	if card.DueDate.IsZero() {
		card.DueDate = domain.StartOfDay(now)
	}
	if card.EaseFactor == 0 {
		card.EaseFactor = domain.DefaultEaseFactor
	}
	card.UpdatedAt = now

	if err := card.Validate(); err != nil {
		return err
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("saving flashcard",
		slog.String("user_id", userID.String()),
		slog.String("card_id", card.ID.String()))
	return s.put(ctx, "save_flashcard", ref(store.CollectionFlashcards, userID, card.ID.String()), card, now)
}

// DeleteFlashcard implements StudyService.DeleteFlashcard
func (s *studyServiceImpl) DeleteFlashcard(ctx context.Context, userID, cardID uuid.UUID) error {
	if _, err := s.GetFlashcard(ctx, userID, cardID); err != nil {
		return err
	}
	r := ref(store.CollectionFlashcards, userID, cardID.String())
	if err := s.cache.DeleteDoc(ctx, r); err != nil {
		return NewServiceError("delete_flashcard", "failed to write local cache", err)
	}
	s.engine.NotifyLocalChange(ctx, r.Owner)
	return nil
}

// GetNextCard implements StudyService.GetNextCard
func (s *studyServiceImpl) GetNextCard(ctx context.Context, userID uuid.UUID) (*domain.Card, error) {
	cards, err := s.GetFlashcards(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var next *domain.Card
	for i := range cards {
		c := &cards[i]
		if c.Suspended || !c.IsDue(now) {
			continue
		}
		if next == nil || c.DueDate.Before(next.DueDate) {
			next = c
		}
	}
	if next == nil {
		return nil, ErrNoCardsDue
	}
	return next, nil
}

// BuildReviewDeck implements StudyService.BuildReviewDeck
func (s *studyServiceImpl) BuildReviewDeck(
	cards []domain.Card,
	mode deck.Mode,
	filter domain.DifficultyFilter,
	maxSize int,
) ([]domain.Card, error) {
	return s.builder.Build(cards, mode, filter, maxSize, s.clock.Now())
}

// BuildUserDeck implements StudyService.BuildUserDeck
func (s *studyServiceImpl) BuildUserDeck(ctx context.Context, userID uuid.UUID, opts DeckOptions) ([]domain.Card, error) {
	profile, err := s.GetStudyProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	modeName, ratios, filter, size := profile.DeckMode, profile.Ratios, profile.Filter, profile.DeckSize
	if opts.Mode != "" {
		modeName = opts.Mode
		ratios = opts.Ratios
	}
	if opts.Filter != nil {
		filter = *opts.Filter
	}
	if opts.MaxSize > 0 {
		size = opts.MaxSize
	}
	if size <= 0 {
		size = domain.DefaultDeckSize
	}

	mode, err := deck.ParseMode(modeName, ratios)
	if err != nil {
		return nil, err
	}
	cards, err := s.GetFlashcards(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return s.BuildReviewDeck(cards, mode, filter, size)
}

// Rate implements StudyService.Rate
func (s *studyServiceImpl) Rate(card *domain.Card, outcome domain.ReviewOutcome) (*domain.Card, error) {
	return s.scheduler.Schedule(card, outcome, s.clock.Now())
}

// ReviewCard implements StudyService.ReviewCard
func (s *studyServiceImpl) ReviewCard(
	ctx context.Context,
	userID, cardID uuid.UUID,
	outcome domain.ReviewOutcome,
) (*domain.Card, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("user_id", userID.String()),
		slog.String("card_id", cardID.String()))

	if !outcome.IsValid() {
		return nil, domain.NewValidationError("outcome", "must be again, hard, good or easy", domain.ErrInvalidReviewOutcome)
	}
	card, err := s.GetFlashcard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	updated, err := s.Rate(card, outcome)
	if err != nil {
		return nil, NewServiceError("review_card", "failed to schedule card", err)
	}
	now := s.clock.Now()
	if err := s.put(ctx, "review_card", ref(store.CollectionFlashcards, userID, cardID.String()), updated, now); err != nil {
		return nil, err
	}

	if err := s.recordResult(userID, outcome.IsCorrect()); err != nil {
		log.Warn("review not counted in study session", slog.String("error", err.Error()))
	}
	s.advanceRun(log, userID, updated, outcome)

	// Progress is read from the cache only; a review never waits on the network.
	entry, _ := s.cache.Get(store.CollectionProgressStats, userID.String())
	progress, ok, err := lookup[domain.ProgressStats](entry, userID.String())
	if err != nil {
		log.Warn("failed to load progress", slog.String("error", err.Error()))
		return updated, nil
	}
	if !ok {
		progress = domain.NewProgressStats(userID)
	}
	progress.RecordReview(outcome.IsCorrect(), now)
	if err := s.put(ctx, "review_card", ref(store.CollectionProgressStats, userID, userID.String()), progress, now); err != nil {
		log.Warn("failed to save progress", slog.String("error", err.Error()))
	}

	log.Debug("card reviewed",
		slog.String("outcome", string(outcome)),
		slog.Int("interval", updated.Interval))
	return updated, nil
}

// PostponeCard implements StudyService.PostponeCard
func (s *studyServiceImpl) PostponeCard(ctx context.Context, userID, cardID uuid.UUID, days int) (*domain.Card, error) {
	if days < 1 {
		return nil, domain.NewValidationError("days", "must be at least 1", nil)
	}
	card, err := s.GetFlashcard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	updated, err := s.scheduler.Postpone(card, days, now)
	if err != nil {
		return nil, NewServiceError("postpone_card", "failed to postpone card", err)
	}
	if err := s.put(ctx, "postpone_card", ref(store.CollectionFlashcards, userID, cardID.String()), updated, now); err != nil {
		return nil, err
	}
	return updated, nil
}
