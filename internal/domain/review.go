package domain

import (
	"strings"
	"time"
)

// ReviewOutcome represents the user's recall quality for a card review.
type ReviewOutcome string

// Possible review outcome values
const (
	ReviewOutcomeAgain ReviewOutcome = "again"
	ReviewOutcomeHard  ReviewOutcome = "hard"
	ReviewOutcomeGood  ReviewOutcome = "good"
	ReviewOutcomeEasy  ReviewOutcome = "easy"
)

// IsValid reports whether the outcome is one of the four known values.
func (o ReviewOutcome) IsValid() bool {
	switch o {
	case ReviewOutcomeAgain, ReviewOutcomeHard, ReviewOutcomeGood, ReviewOutcomeEasy:
		return true
	default:
		return false
	}
}

// IsCorrect reports whether the outcome counts as a successful recall.
func (o ReviewOutcome) IsCorrect() bool {
	return o.IsValid() && o != ReviewOutcomeAgain
}

// ParseReviewOutcome converts a string (case-insensitive) into a ReviewOutcome.
func ParseReviewOutcome(s string) (ReviewOutcome, error) {
	outcome := ReviewOutcome(strings.ToLower(strings.TrimSpace(s)))
	if !outcome.IsValid() {
		return "", NewValidationError("outcome", "must be one of again, hard, good, easy", ErrInvalidReviewOutcome)
	}
	return outcome, nil
}

// StartOfDay truncates t to midnight in its own location.
// Due dates are calendar days, so every comparison goes through this.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
