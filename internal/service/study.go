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
	"github.com/phrazzld/scry-sync/internal/session"
	"github.com/phrazzld/scry-sync/internal/store"
)

// GetStudySessions implements StudyService.GetStudySessions
func (s *studyServiceImpl) GetStudySessions(
	ctx context.Context,
	userID uuid.UUID,
	forceRefresh bool,
) ([]domain.StudySession, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "cannot be empty", domain.ErrInvalidID)
	}

	entry := s.load(ctx, store.CollectionStudySessions, userID, forceRefresh)
	records, err := cache.Decode[domain.StudySession](entry)
	if err != nil {
		return nil, NewServiceError("get_study_sessions", "failed to decode cached sessions", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})
	return records, nil
}

// SaveStudySession implements StudyService.SaveStudySession
func (s *studyServiceImpl) SaveStudySession(ctx context.Context, userID uuid.UUID, record *domain.StudySession) error {
	if record == nil {
		return domain.NewValidationError("record", "cannot be nil", nil)
	}
	if record.UserID == uuid.Nil {
		record.UserID = userID
	}
	if record.UserID != userID {
		return ErrNotOwned
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := s.clock.Now()
	record.UpdatedAt = now

	if err := record.Validate(); err != nil {
		return err
	}
	return s.put(ctx, "save_study_session", ref(store.CollectionStudySessions, userID, record.ID.String()), record, now)
}

// GetStudyProfile implements StudyService.GetStudyProfile
func (s *studyServiceImpl) GetStudyProfile(ctx context.Context, userID uuid.UUID) (*domain.StudyProfile, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "cannot be empty", domain.ErrInvalidID)
	}

	entry := s.load(ctx, store.CollectionStudyProfiles, userID, false)
	profile, ok, err := lookup[domain.StudyProfile](entry, userID.String())
	if err != nil {
		return nil, NewServiceError("get_study_profile", "failed to decode cached profile", err)
	}
	if !ok {
		return domain.NewStudyProfile(userID, s.clock.Now()), nil
	}
	return profile, nil
}

// SaveStudyProfile implements StudyService.SaveStudyProfile
func (s *studyServiceImpl) SaveStudyProfile(ctx context.Context, userID uuid.UUID, profile *domain.StudyProfile) error {
	if profile == nil {
		return domain.NewValidationError("profile", "cannot be nil", nil)
	}
	if profile.UserID == uuid.Nil {
		profile.UserID = userID
	}
	if profile.UserID != userID {
		return ErrNotOwned
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	if profile.DeckMode != "" {
		if _, err := deck.ParseMode(profile.DeckMode, profile.Ratios); err != nil {
			return err
		}
	}

	now := s.clock.Now()
	profile.UpdatedAt = now
	return s.put(ctx, "save_study_profile", ref(store.CollectionStudyProfiles, userID, userID.String()), profile, now)
}

// GetProgress implements StudyService.GetProgress
func (s *studyServiceImpl) GetProgress(ctx context.Context, userID uuid.UUID) (*domain.ProgressStats, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "cannot be empty", domain.ErrInvalidID)
	}

	entry := s.load(ctx, store.CollectionProgressStats, userID, false)
	progress, ok, err := lookup[domain.ProgressStats](entry, userID.String())
	if err != nil {
		return nil, NewServiceError("get_progress", "failed to decode cached progress", err)
	}
	if !ok {
		return domain.NewProgressStats(userID), nil
	}
	return progress, nil
}

// StartStudy implements StudyService.StartStudy
func (s *studyServiceImpl) StartStudy(userID uuid.UUID) (session.State, error) {
	t := s.tracker(userID)
	err := t.Start()
	return t.State(), err
}

// PauseStudy implements StudyService.PauseStudy
func (s *studyServiceImpl) PauseStudy(userID uuid.UUID) (session.State, error) {
	t := s.tracker(userID)
	err := t.Pause()
	return t.State(), err
}

// ResumeStudy implements StudyService.ResumeStudy
func (s *studyServiceImpl) ResumeStudy(userID uuid.UUID) (session.State, error) {
	t := s.tracker(userID)
	err := t.Resume()
	return t.State(), err
}

// StudyState implements StudyService.StudyState
func (s *studyServiceImpl) StudyState(userID uuid.UUID) session.State {
	return s.tracker(userID).State()
}

// EndStudy implements StudyService.EndStudy
func (s *studyServiceImpl) EndStudy(ctx context.Context, userID uuid.UUID) (*domain.StudySession, error) {
	s.mu.Lock()
	delete(s.runs, userID)
	s.mu.Unlock()

	summary, ok := s.tracker(userID).End()
	if !ok {
		return nil, nil
	}

	record := summary.Record(userID)
	if err := s.SaveStudySession(ctx, userID, record); err != nil {
		return nil, err
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("study session ended",
		slog.String("user_id", userID.String()),
		slog.Int("cards_studied", record.CardsStudied),
		slog.Int("total_time", record.TotalTime))
	return record, nil
}

// recordResult counts a review in the user's session, starting or resuming
// it as needed.
func (s *studyServiceImpl) recordResult(userID uuid.UUID, correct bool) error {
	t := s.tracker(userID)
	switch t.State().Status() {
	case session.StatusInactive:
		if err := t.Start(); err != nil {
			return err
		}
	case session.StatusPaused:
		if err := t.Resume(); err != nil {
			return err
		}
	}
	return t.RecordResult(correct)
}
