package domain

import (
	"time"

	"github.com/google/uuid"
)

// StudySession is the finalized record of one study run. It is produced by the
// session state machine when a run ends and then persisted like any other
// document through the cache and sync path.
type StudySession struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	CardsStudied        int       `json:"cards_studied"`
	CorrectAnswers      int       `json:"correct_answers"`
	TotalTime           int       `json:"total_time"`        // seconds, pauses excluded
	TotalPausedTime     int       `json:"total_paused_time"` // seconds
	AverageResponseTime float64   `json:"average_response_time"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks if the StudySession has valid data.
func (s *StudySession) Validate() error {
	if s.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}

	if s.UserID == uuid.Nil {
		return NewValidationError("user_id", "cannot be empty", ErrInvalidID)
	}

	if s.StartTime.IsZero() {
		return NewValidationError("start_time", "cannot be empty", nil)
	}

	if s.EndTime.Before(s.StartTime) {
		return NewValidationError("end_time", "cannot be before start_time", nil)
	}

	if s.CardsStudied < 0 || s.CorrectAnswers < 0 || s.CorrectAnswers > s.CardsStudied {
		return NewValidationError("correct_answers", "must be between 0 and cards_studied", nil)
	}

	if s.TotalTime < 0 || s.TotalPausedTime < 0 {
		return NewValidationError("total_time", "cannot be negative", nil)
	}

	return nil
}

// Accuracy returns the share of correct answers in the session, 0 when empty.
func (s *StudySession) Accuracy() float64 {
	if s.CardsStudied == 0 {
		return 0
	}
	return float64(s.CorrectAnswers) / float64(s.CardsStudied)
}
