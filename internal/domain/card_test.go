package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewCard(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

	card, err := NewCard(userID, "What is Go?", "A programming language", now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if card.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}

	if card.UserID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, card.UserID)
	}

	if card.EaseFactor != DefaultEaseFactor {
		t.Errorf("Expected ease factor %v, got %v", DefaultEaseFactor, card.EaseFactor)
	}

	if card.Repetitions != 0 || card.Interval != 0 {
		t.Errorf("Expected zero repetitions and interval, got %d and %d", card.Repetitions, card.Interval)
	}

	if !card.DueDate.Equal(StartOfDay(now)) {
		t.Errorf("Expected due date %v, got %v", StartOfDay(now), card.DueDate)
	}

	if card.LastReviewed != nil {
		t.Error("Expected nil LastReviewed for a new card")
	}

	// Test invalid userID
	_, err = NewCard(uuid.Nil, "front", "back", now)
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidID) {
		t.Errorf("Expected validation error wrapping ErrInvalidID, got %v", err)
	}

	// Test empty content
	_, err = NewCard(userID, "  ", "back", now)
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("Expected ErrEmptyContent, got %v", err)
	}
}

func TestCardValidate(t *testing.T) {
	t.Parallel()
	base := func() *Card {
		c, err := NewCard(uuid.New(), "front", "back", time.Now())
		if err != nil {
			t.Fatalf("NewCard: %v", err)
		}
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Card)
		wantErr bool
		field   string
	}{
		{name: "valid card", mutate: func(c *Card) {}},
		{name: "negative repetitions", mutate: func(c *Card) { c.Repetitions = -1 }, wantErr: true, field: "repetitions"},
		{name: "ease below floor", mutate: func(c *Card) { c.EaseFactor = 1.29 }, wantErr: true, field: "ease_factor"},
		{name: "ease at floor", mutate: func(c *Card) { c.EaseFactor = MinEaseFactor }},
		{name: "interval above max", mutate: func(c *Card) { c.Interval = 366 }, wantErr: true, field: "interval"},
		{name: "missing back", mutate: func(c *Card) { c.Back = "" }, wantErr: true, field: "back"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := c.Validate()
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Expected *ValidationError, got %T (%v)", err, err)
			}
			if vErr.Field != tc.field {
				t.Errorf("Expected field %q, got %q", tc.field, vErr.Field)
			}
			if !IsValidationError(err) {
				t.Error("Expected IsValidationError to be true")
			}
		})
	}
}

func TestCardDifficulty(t *testing.T) {
	t.Parallel()
	cases := map[float64]Difficulty{
		2.7: DifficultyEasy,
		2.5: DifficultyEasy,
		2.2: DifficultyMedium,
		1.8: DifficultyMedium,
		1.5: DifficultyHard,
	}
	for ef, want := range cases {
		c := Card{EaseFactor: ef}
		if got := c.Difficulty(); got != want {
			t.Errorf("EaseFactor %v: expected %s, got %s", ef, want, got)
		}
	}
}

func TestCardIsDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)

	due := Card{DueDate: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)}
	if !due.IsDue(now) {
		t.Error("card due today should be due")
	}

	overdue := Card{DueDate: now.AddDate(0, 0, -3)}
	if !overdue.IsDue(now) {
		t.Error("overdue card should be due")
	}

	future := Card{DueDate: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)}
	if future.IsDue(now) {
		t.Error("card due tomorrow should not be due")
	}
}

func TestCardIsMastered(t *testing.T) {
	t.Parallel()
	if !(&Card{Repetitions: 5, EaseFactor: 2.5}).IsMastered() {
		t.Error("5 repetitions at ease 2.5 should be mastered")
	}
	if (&Card{Repetitions: 4, EaseFactor: 2.8}).IsMastered() {
		t.Error("4 repetitions should not be mastered")
	}
	if (&Card{Repetitions: 9, EaseFactor: 2.1}).IsMastered() {
		t.Error("low ease should not be mastered")
	}
}

func TestCardClone(t *testing.T) {
	t.Parallel()
	reviewed := time.Now()
	c := &Card{ID: uuid.New(), LastReviewed: &reviewed}
	clone := c.Clone()
	*clone.LastReviewed = reviewed.Add(time.Hour)
	if !c.LastReviewed.Equal(reviewed) {
		t.Error("mutating the clone must not change the original")
	}
}

func TestParseReviewOutcome(t *testing.T) {
	t.Parallel()
	outcome, err := ParseReviewOutcome(" Good ")
	if err != nil || outcome != ReviewOutcomeGood {
		t.Fatalf("Expected good, got %q (%v)", outcome, err)
	}

	_, err = ParseReviewOutcome("perfect")
	if !errors.Is(err, ErrInvalidReviewOutcome) || !errors.Is(err, ErrValidation) {
		t.Errorf("Expected invalid outcome validation error, got %v", err)
	}

	if ReviewOutcomeAgain.IsCorrect() {
		t.Error("again must not count as correct")
	}
	if !ReviewOutcomeHard.IsCorrect() {
		t.Error("hard must count as correct")
	}
}
