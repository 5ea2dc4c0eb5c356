package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-sync/internal/api/shared"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/platform/logger"
	"github.com/phrazzld/scry-sync/internal/service"
)

// CardHandler serves a user's flashcards, reviews and decks.
type CardHandler struct {
	svc    service.StudyService
	clock  clock.Clock
	logger *slog.Logger
}

// NewCardHandler creates a CardHandler. A nil clock uses the system clock.
func NewCardHandler(svc service.StudyService, clk clock.Clock, logger *slog.Logger) *CardHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CardHandler")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &CardHandler{
		svc:    svc,
		clock:  clk,
		logger: logger.With(slog.String("component", "card_handler")),
	}
}

// Register mounts the card routes on a router scoped to one user.
func (h *CardHandler) Register(r chi.Router) {
	r.Get("/flashcards", h.ListCards)
	r.Post("/flashcards", h.CreateCard)
	r.Get("/flashcards/next", h.NextCard)
	r.Get("/flashcards/{cardID}", h.GetCard)
	r.Put("/flashcards/{cardID}", h.UpdateCard)
	r.Delete("/flashcards/{cardID}", h.DeleteCard)
	r.Post("/flashcards/{cardID}/review", h.ReviewCard)
	r.Post("/flashcards/{cardID}/postpone", h.PostponeCard)
	r.Post("/deck", h.BuildDeck)
}

// ListCards handles GET /flashcards. ?refresh=true reads through to the
// remote store first.
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cards, err := h.svc.GetFlashcards(r.Context(), userID, queryBool(r, "refresh"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load flashcards")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, cardsToResponse(cards, h.clock.Now()))
}

// CreateCard handles POST /flashcards.
func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	card, err := domain.NewCard(userID, req.Front, req.Back, h.clock.Now())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	card.Example = req.Example
	card.Suspended = req.Suspended
	if err := h.svc.SaveFlashcard(r.Context(), userID, card); err != nil {
		HandleAPIError(w, r, err, "Failed to save flashcard")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Debug("flashcard created",
		slog.String("card_id", card.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, cardToResponse(*card, h.clock.Now()))
}

// GetCard handles GET /flashcards/{cardID}.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "cardID")
	if !ok {
		return
	}
	card, err := h.svc.GetFlashcard(r.Context(), userID, cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load flashcard")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(*card, h.clock.Now()))
}

// UpdateCard handles PUT /flashcards/{cardID}. Only content and the
// suspended flag change; the schedule is kept.
func (h *CardHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "cardID")
	if !ok {
		return
	}
	var req CardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	card, err := h.svc.GetFlashcard(r.Context(), userID, cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load flashcard")
		return
	}
	card.Front, card.Back, card.Example, card.Suspended = req.Front, req.Back, req.Example, req.Suspended
	if err := h.svc.SaveFlashcard(r.Context(), userID, card); err != nil {
		HandleAPIError(w, r, err, "Failed to save flashcard")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(*card, h.clock.Now()))
}

// DeleteCard handles DELETE /flashcards/{cardID}.
func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "cardID")
	if !ok {
		return
	}
	if err := h.svc.DeleteFlashcard(r.Context(), userID, cardID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete flashcard")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NextCard handles GET /flashcards/next. It answers 204 when nothing is due.
func (h *CardHandler) NextCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	card, err := h.svc.GetNextCard(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get next review card")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(*card, h.clock.Now()))
}

// ReviewCard handles POST /flashcards/{cardID}/review.
func (h *CardHandler) ReviewCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "cardID")
	if !ok {
		return
	}
	var req ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := domain.ParseReviewOutcome(req.Outcome)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	card, err := h.svc.ReviewCard(r.Context(), userID, cardID, outcome)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit review")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Debug("review submitted",
		slog.String("card_id", cardID.String()),
		slog.String("outcome", string(outcome)))
	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(*card, h.clock.Now()))
}

// PostponeCard handles POST /flashcards/{cardID}/postpone.
func (h *CardHandler) PostponeCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "cardID")
	if !ok {
		return
	}
	var req PostponeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	card, err := h.svc.PostponeCard(r.Context(), userID, cardID, req.Days)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to postpone flashcard")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(*card, h.clock.Now()))
}

// BuildDeck handles POST /deck. The body is optional; an empty one builds
// a deck from the stored profile.
func (h *CardHandler) BuildDeck(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req DeckRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}

	cards, err := h.svc.BuildUserDeck(r.Context(), userID, service.DeckOptions{
		Mode:    req.Mode,
		Ratios:  req.Ratios,
		Filter:  req.Filter,
		MaxSize: req.MaxSize,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to build deck")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, cardsToResponse(cards, h.clock.Now()))
}
