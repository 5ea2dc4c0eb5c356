package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDeckSize is the review deck size used when a profile does not set one.
const DefaultDeckSize = 20

// DifficultyFilter narrows the cards a review deck is built from.
// A zero value (Enabled=false) applies no restriction.
type DifficultyFilter struct {
	Enabled              bool         `json:"enabled"`
	Levels               []Difficulty `json:"levels,omitempty"`
	FocusRecentCards     bool         `json:"focus_recent_cards"`
	RecentDaysThreshold  int          `json:"recent_days_threshold"`
	PrioritizeDueCards   bool         `json:"prioritize_due_cards"`
	ExcludeMasteredCards bool         `json:"exclude_mastered_cards"`
}

// AllowsLevel reports whether the filter admits the given difficulty.
// An empty level list admits everything.
func (f DifficultyFilter) AllowsLevel(d Difficulty) bool {
	if len(f.Levels) == 0 {
		return true
	}
	for _, level := range f.Levels {
		if level == d {
			return true
		}
	}
	return false
}

// MaxDeckRatio bounds each custom deck weight.
const MaxDeckRatio = 100

// DeckRatios are the percentage weights for a custom review deck.
type DeckRatios struct {
	ReviewCards    int `json:"review_cards" validate:"gte=0,lte=100"`
	NewCards       int `json:"new_cards" validate:"gte=0,lte=100"`
	DifficultCards int `json:"difficult_cards" validate:"gte=0,lte=100"`
}

// Sum returns the total weight across the three buckets.
func (r DeckRatios) Sum() int {
	return r.ReviewCards + r.NewCards + r.DifficultCards
}

// InRange reports whether every weight lies in [0, MaxDeckRatio].
func (r DeckRatios) InRange() bool {
	for _, v := range []int{r.ReviewCards, r.NewCards, r.DifficultCards} {
		if v < 0 || v > MaxDeckRatio {
			return false
		}
	}
	return true
}

// StudyProfile holds a user's study preferences. It lives in the
// study_profiles collection and is synchronized like any other document.
type StudyProfile struct {
	UserID      uuid.UUID        `json:"user_id"`
	DeckMode    string           `json:"deck_mode"`
	DeckSize    int              `json:"deck_size"`
	Ratios      *DeckRatios      `json:"ratios,omitempty"`
	Filter      DifficultyFilter `json:"filter"`
	DailyTarget int              `json:"daily_target"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewStudyProfile returns the default profile for a user.
func NewStudyProfile(userID uuid.UUID, now time.Time) *StudyProfile {
	return &StudyProfile{
		UserID:    userID,
		DeckMode:  "mixed",
		DeckSize:  DefaultDeckSize,
		UpdatedAt: now,
	}
}

// Validate checks the profile's identity and numeric settings. The deck mode
// string itself is validated by the deck package when the profile is used.
func (p *StudyProfile) Validate() error {
	if p.UserID == uuid.Nil {
		return NewValidationError("user_id", "cannot be empty", ErrInvalidID)
	}

	if p.DeckSize < 0 {
		return NewValidationError("deck_size", "cannot be negative", nil)
	}

	if p.DailyTarget < 0 {
		return NewValidationError("daily_target", "cannot be negative", nil)
	}

	if p.Filter.RecentDaysThreshold < 0 {
		return NewValidationError("filter.recent_days_threshold", "cannot be negative", nil)
	}

	for _, level := range p.Filter.Levels {
		switch level {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
		default:
			return NewValidationError("filter.levels", "must contain only easy, medium or hard", nil)
		}
	}

	return nil
}
