package api

import (
	"time"

	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/syncer"
)

// CardRequest is the payload for creating or editing a flashcard.
type CardRequest struct {
	Front     string `json:"front"   validate:"required,max=4000"`
	Back      string `json:"back"    validate:"required,max=4000"`
	Example   string `json:"example" validate:"max=4000"`
	Suspended bool   `json:"suspended"`
}

// ReviewRequest is the payload for rating a card.
type ReviewRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=again hard good easy"`
}

// PostponeRequest is the payload for moving a card's due date.
type PostponeRequest struct {
	Days int `json:"days" validate:"required,gte=1,lte=365"`
}

// DeckRequest overrides the stored study profile for one deck build. Every
// field is optional.
type DeckRequest struct {
	Mode    string                   `json:"mode"`
	Ratios  *domain.DeckRatios       `json:"ratios,omitempty"`
	Filter  *domain.DifficultyFilter `json:"filter,omitempty"`
	MaxSize int                      `json:"max_size" validate:"gte=0,lte=500"`
}

// StudySessionRequest is the payload for storing a finished study session
// recorded elsewhere.
type StudySessionRequest struct {
	StartTime           time.Time `json:"start_time"            validate:"required"`
	EndTime             time.Time `json:"end_time"              validate:"required"`
	CardsStudied        int       `json:"cards_studied"         validate:"gte=0"`
	CorrectAnswers      int       `json:"correct_answers"       validate:"gte=0"`
	TotalTime           int       `json:"total_time"            validate:"gte=0"`
	TotalPausedTime     int       `json:"total_paused_time"     validate:"gte=0"`
	AverageResponseTime float64   `json:"average_response_time" validate:"gte=0"`
}

// ProfileRequest is the payload for replacing a user's study profile.
type ProfileRequest struct {
	DeckMode    string                  `json:"deck_mode" validate:"required"`
	DeckSize    int                     `json:"deck_size" validate:"gte=0,lte=500"`
	Ratios      *domain.DeckRatios      `json:"ratios,omitempty"`
	Filter      domain.DifficultyFilter `json:"filter"`
	DailyTarget int                     `json:"daily_target" validate:"gte=0"`
}

// ResolveConflictRequest names a pending conflict and how to settle it.
type ResolveConflictRequest struct {
	Collection string `json:"collection"  validate:"required"`
	DocumentID string `json:"document_id" validate:"required"`
	Resolution string `json:"resolution"  validate:"required,oneof=local remote merge"`
}

// CardResponse is a card plus the values derived from its schedule.
type CardResponse struct {
	domain.Card
	Difficulty domain.Difficulty `json:"difficulty"`
	IsDue      bool              `json:"is_due"`
}

// ProgressResponse adds the derived accuracy to a user's progress.
type ProgressResponse struct {
	domain.ProgressStats
	Accuracy float64 `json:"accuracy"`
}

// SyncAcceptedResponse acknowledges a scheduled background sync.
type SyncAcceptedResponse struct {
	Scheduled bool          `json:"scheduled"`
	Status    syncer.Status `json:"status"`
}

func cardToResponse(card domain.Card, now time.Time) CardResponse {
	return CardResponse{
		Card:       card,
		Difficulty: card.Difficulty(),
		IsDue:      card.IsDue(now),
	}
}

func cardsToResponse(cards []domain.Card, now time.Time) []CardResponse {
	out := make([]CardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardToResponse(c, now))
	}
	return out
}
