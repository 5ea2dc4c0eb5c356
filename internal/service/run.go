package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/domain/deck"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
)

// RunState is a snapshot of a study run.
type RunState struct {
	// Current is the card to show next; nil once the run is done.
	Current   *domain.Card `json:"current,omitempty"`
	Remaining int          `json:"remaining"`
	Answered  int          `json:"answered"`
	Done      bool         `json:"done"`
}

func snapshotRun(run *deck.Run) RunState {
	state := RunState{
		Remaining: run.Remaining(),
		Answered:  run.Answered(),
		Done:      run.Done(),
	}
	if card, ok := run.Current(); ok {
		state.Current = card.Clone()
	}
	return state
}

// BeginRun implements StudyService.BeginRun
func (s *studyServiceImpl) BeginRun(ctx context.Context, userID uuid.UUID, opts DeckOptions) (RunState, error) {
	cards, err := s.BuildUserDeck(ctx, userID, opts)
	if err != nil {
		return RunState{}, err
	}

	run := deck.NewRun(cards)
	s.mu.Lock()
	s.runs[userID] = run
	state := snapshotRun(run)
	s.mu.Unlock()

	logger.FromContextOrDefault(ctx, s.logger).Info("study run started",
		slog.String("user_id", userID.String()),
		slog.Int("deck_size", len(cards)))
	return state, nil
}

// CurrentRun implements StudyService.CurrentRun
func (s *studyServiceImpl) CurrentRun(userID uuid.UUID) (RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[userID]
	if !ok {
		return RunState{}, ErrNoActiveRun
	}
	return snapshotRun(run), nil
}

// advanceRun feeds a review into the user's run when the reviewed card is
// the one the run is waiting for. Reviews of other cards leave it alone.
func (s *studyServiceImpl) advanceRun(log *slog.Logger, userID uuid.UUID, updated *domain.Card, outcome domain.ReviewOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[userID]
	if !ok {
		return
	}
	done, err := run.Answer(*updated, outcome)
	if err != nil {
		log.Debug("review not applied to study run", slog.String("error", err.Error()))
		return
	}
	if done {
		log.Debug("study run finished", slog.Int("answered", run.Answered()))
	}
}
