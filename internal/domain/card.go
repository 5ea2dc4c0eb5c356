package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SRS limits shared by the scheduler and card validation.
const (
	// MinEaseFactor is the floor for a card's ease factor.
	MinEaseFactor = 1.3

	// DefaultEaseFactor is the ease factor of a newly created card.
	DefaultEaseFactor = 2.5

	// MaxInterval is the longest review interval in days.
	MaxInterval = 365

	// MasteredRepetitions is the repetition count at which a card with at least
	// DefaultEaseFactor is considered mastered.
	MasteredRepetitions = 5
)

// Difficulty is a coarse bucket derived from a card's ease factor.
type Difficulty string

// Difficulty levels, from the ease factor thresholds 2.5 and 1.8.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Card represents a user's flashcard together with its spaced-repetition state.
// Front, Back and Example are opaque to the scheduling and sync core.
type Card struct {
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"user_id"`
	Front   string    `json:"front"`
	Back    string    `json:"back"`
	Example string    `json:"example,omitempty"`

	Repetitions  int        `json:"repetitions"`
	EaseFactor   float64    `json:"ease_factor"`
	Interval     int        `json:"interval"` // days
	DueDate      time.Time  `json:"due_date"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
	Suspended    bool       `json:"suspended"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCard creates a new Card for the given user, due today.
// It generates a new UUID for the card and validates the result.
func NewCard(userID uuid.UUID, front, back string, now time.Time) (*Card, error) {
	card := &Card{
		ID:         uuid.New(),
		UserID:     userID,
		Front:      front,
		Back:       back,
		EaseFactor: DefaultEaseFactor,
		DueDate:    StartOfDay(now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}

	return card, nil
}

// Validate checks the card's identity, content and SRS invariants.
// Returns a *ValidationError wrapping ErrValidation on the first failure.
func (c *Card) Validate() error {
	if c.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}

	if c.UserID == uuid.Nil {
		return NewValidationError("user_id", "cannot be empty", ErrInvalidID)
	}

	if strings.TrimSpace(c.Front) == "" {
		return NewValidationError("front", "cannot be empty", ErrEmptyContent)
	}

	if strings.TrimSpace(c.Back) == "" {
		return NewValidationError("back", "cannot be empty", ErrEmptyContent)
	}

	if c.Repetitions < 0 {
		return NewValidationError("repetitions", "must be greater than or equal to 0", nil)
	}

	if c.EaseFactor < MinEaseFactor {
		return NewValidationError("ease_factor", "must be at least 1.3", nil)
	}

	if c.Interval < 0 || c.Interval > MaxInterval {
		return NewValidationError("interval", "must be between 0 and 365 days", nil)
	}

	return nil
}

// Difficulty derives the card's difficulty bucket from its ease factor.
func (c *Card) Difficulty() Difficulty {
	switch {
	case c.EaseFactor >= 2.5:
		return DifficultyEasy
	case c.EaseFactor >= 1.8:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}

// IsNew reports whether the card has never been successfully reviewed.
func (c *Card) IsNew() bool {
	return c.Repetitions == 0
}

// IsDue reports whether the card's due date is today or earlier.
func (c *Card) IsDue(now time.Time) bool {
	return !StartOfDay(c.DueDate).After(StartOfDay(now))
}

// IsMastered reports whether the card has been learned well enough to be
// excluded from decks that skip mastered cards.
func (c *Card) IsMastered() bool {
	return c.Repetitions >= MasteredRepetitions && c.EaseFactor >= DefaultEaseFactor
}

// LastActivity returns the last time the card was reviewed, falling back to its
// creation time for cards that were never reviewed.
func (c *Card) LastActivity() time.Time {
	if c.LastReviewed != nil {
		return *c.LastReviewed
	}
	return c.CreatedAt
}

// Clone returns a deep copy of the card.
func (c *Card) Clone() *Card {
	clone := *c
	if c.LastReviewed != nil {
		reviewed := *c.LastReviewed
		clone.LastReviewed = &reviewed
	}
	return &clone
}
