package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/phrazzld/scry-sync/internal/api/shared"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/service"
	"github.com/phrazzld/scry-sync/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudySessionRoutes(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodPost, a.userPath("/study/pause"), nil)
	assert.Equal(t, http.StatusConflict, w.Code, "cannot pause before starting")

	w = a.do(t, http.MethodPost, a.userPath("/study/end"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodPost, a.userPath("/study/start"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.StatusActive, decodeBody[session.State](t, w).Status())

	a.clock.Advance(30 * time.Second)
	w = a.do(t, http.MethodPost, a.userPath("/study/pause"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.StatusPaused, decodeBody[session.State](t, w).Status())

	a.clock.Advance(15 * time.Second)
	w = a.do(t, http.MethodPost, a.userPath("/study/resume"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 15, decodeBody[session.State](t, w).TotalPausedTime)

	a.clock.Advance(15 * time.Second)
	w = a.do(t, http.MethodPost, a.userPath("/study/end"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	record := decodeBody[domain.StudySession](t, w)
	assert.Equal(t, 45, record.TotalTime)
	assert.Equal(t, 15, record.TotalPausedTime)

	w = a.do(t, http.MethodGet, a.userPath("/sessions"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := decodeBody[[]domain.StudySession](t, w)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
}

func TestSaveSessionRoute(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodPost, a.userPath("/sessions"), StudySessionRequest{
		StartTime:      testNow.Add(-10 * time.Minute),
		EndTime:        testNow,
		CardsStudied:   4,
		CorrectAnswers: 3,
		TotalTime:      600,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decodeBody[domain.StudySession](t, w)
	assert.Equal(t, a.user, saved.UserID)

	w = a.do(t, http.MethodPost, a.userPath("/sessions"), StudySessionRequest{
		StartTime:      testNow,
		EndTime:        testNow,
		CardsStudied:   1,
		CorrectAnswers: 2,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfileRoutes(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodGet, a.userPath("/profile"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mixed", decodeBody[domain.StudyProfile](t, w).DeckMode)

	w = a.do(t, http.MethodPut, a.userPath("/profile"), ProfileRequest{DeckMode: "custom", DeckSize: 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid deck ratios", decodeBody[shared.ErrorResponse](t, w).Error)

	ratios := &domain.DeckRatios{ReviewCards: 50, NewCards: 50}
	w = a.do(t, http.MethodPut, a.userPath("/profile"), ProfileRequest{DeckMode: "custom", DeckSize: 10, Ratios: ratios})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, a.userPath("/profile"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decodeBody[domain.StudyProfile](t, w)
	assert.Equal(t, "custom", profile.DeckMode)
	require.NotNil(t, profile.Ratios)
	assert.Equal(t, 50, profile.Ratios.NewCards)
}

func TestProgressRoute(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodGet, a.userPath("/progress"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decodeBody[ProgressResponse](t, w).TotalReviews)

	card := a.createCard(t, "q")
	path := a.userPath("/flashcards/" + card.ID.String() + "/review")
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, path, ReviewRequest{Outcome: "good"}).Code)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, path, ReviewRequest{Outcome: "again"}).Code)

	w = a.do(t, http.MethodGet, a.userPath("/progress"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	progress := decodeBody[ProgressResponse](t, w)
	assert.Equal(t, 2, progress.TotalReviews)
	assert.InDelta(t, 0.5, progress.Accuracy, 0.0001)
}

func TestStudyRunRoutes(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodGet, a.userPath("/study/run"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	card := a.createCard(t, "What does defer do?")

	w = a.do(t, http.MethodPost, a.userPath("/study/run"), DeckRequest{Mode: "new-only", MaxSize: 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	state := decodeBody[service.RunState](t, w)
	assert.Equal(t, 1, state.Remaining)
	require.NotNil(t, state.Current)
	assert.Equal(t, card.ID, state.Current.ID)

	w = a.do(t, http.MethodPost, a.userPath("/flashcards/"+card.ID.String()+"/review"), ReviewRequest{Outcome: "good"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, a.userPath("/study/run"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	state = decodeBody[service.RunState](t, w)
	assert.True(t, state.Done)
	assert.Equal(t, 1, state.Answered)
	assert.Nil(t, state.Current)

	w = a.do(t, http.MethodPost, a.userPath("/study/run"), DeckRequest{Mode: "shuffle-all"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Without a body the run is built from the stored profile.
	w = a.do(t, http.MethodPost, a.userPath("/study/run"), nil)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
