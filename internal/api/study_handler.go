package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/api/shared"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/service"
	"github.com/phrazzld/scry-sync/internal/session"
)

// StudyHandler serves study sessions, the session lifecycle, the study
// profile and progress.
type StudyHandler struct {
	svc    service.StudyService
	clock  clock.Clock
	logger *slog.Logger
}

// NewStudyHandler creates a StudyHandler. A nil clock uses the system clock.
func NewStudyHandler(svc service.StudyService, clk clock.Clock, logger *slog.Logger) *StudyHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for StudyHandler")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &StudyHandler{
		svc:    svc,
		clock:  clk,
		logger: logger.With(slog.String("component", "study_handler")),
	}
}

// Register mounts the study routes on a router scoped to one user.
func (h *StudyHandler) Register(r chi.Router) {
	r.Get("/sessions", h.ListSessions)
	r.Post("/sessions", h.SaveSession)

	r.Get("/study", h.State)
	r.Post("/study/start", h.transition(h.svc.StartStudy, "start"))
	r.Post("/study/pause", h.transition(h.svc.PauseStudy, "pause"))
	r.Post("/study/resume", h.transition(h.svc.ResumeStudy, "resume"))
	r.Post("/study/end", h.End)
	r.Get("/study/run", h.CurrentRun)
	r.Post("/study/run", h.BeginRun)

	r.Get("/profile", h.GetProfile)
	r.Put("/profile", h.SaveProfile)
	r.Get("/progress", h.GetProgress)
}

// ListSessions handles GET /sessions.
func (h *StudyHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	records, err := h.svc.GetStudySessions(r.Context(), userID, queryBool(r, "refresh"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load study sessions")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, records)
}

// SaveSession handles POST /sessions.
func (h *StudyHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req StudySessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	record := &domain.StudySession{
		UserID:              userID,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		CardsStudied:        req.CardsStudied,
		CorrectAnswers:      req.CorrectAnswers,
		TotalTime:           req.TotalTime,
		TotalPausedTime:     req.TotalPausedTime,
		AverageResponseTime: req.AverageResponseTime,
	}
	if err := h.svc.SaveStudySession(r.Context(), userID, record); err != nil {
		HandleAPIError(w, r, err, "Failed to save study session")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, record)
}

// State handles GET /study.
func (h *StudyHandler) State(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.svc.StudyState(userID))
}

func (h *StudyHandler) transition(op func(uuid.UUID) (session.State, error), name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		state, err := op(userID)
		if err != nil {
			HandleAPIError(w, r, err, "Failed to "+name+" study session")
			return
		}
		logger.FromContextOrDefault(r.Context(), h.logger).Debug("study session "+name,
			slog.String("status", string(state.Status())))
		shared.RespondWithJSON(w, r, http.StatusOK, state)
	}
}

// End handles POST /study/end. It answers 204 when no session was running.
func (h *StudyHandler) End(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	record, err := h.svc.EndStudy(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to end study session")
		return
	}
	if record == nil {
		shared.RespondWithNoContent(w, r)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, record)
}

// BeginRun handles POST /study/run. Like POST /deck the body is optional;
// the built deck replaces any run already in progress.
func (h *StudyHandler) BeginRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req DeckRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}

	state, err := h.svc.BeginRun(r.Context(), userID, service.DeckOptions{
		Mode:    req.Mode,
		Ratios:  req.Ratios,
		Filter:  req.Filter,
		MaxSize: req.MaxSize,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start study run")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, state)
}

// CurrentRun handles GET /study/run.
func (h *StudyHandler) CurrentRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	state, err := h.svc.CurrentRun(userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, state)
}

// GetProfile handles GET /profile.
func (h *StudyHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	profile, err := h.svc.GetStudyProfile(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load study profile")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, profile)
}

// SaveProfile handles PUT /profile.
func (h *StudyHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	profile := &domain.StudyProfile{
		UserID:      userID,
		DeckMode:    req.DeckMode,
		DeckSize:    req.DeckSize,
		Ratios:      req.Ratios,
		Filter:      req.Filter,
		DailyTarget: req.DailyTarget,
	}
	if err := h.svc.SaveStudyProfile(r.Context(), userID, profile); err != nil {
		HandleAPIError(w, r, err, "Failed to save study profile")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, profile)
}

// GetProgress handles GET /progress.
func (h *StudyHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	progress, err := h.svc.GetProgress(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load progress")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ProgressResponse{
		ProgressStats: *progress,
		Accuracy:      progress.Accuracy(),
	})
}
