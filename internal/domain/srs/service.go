package srs

import (
	"errors"
	"time"

	"github.com/phrazzld/scry-sync/internal/domain"
)

// Common errors
var (
	ErrNilCard        = errors.New("card cannot be nil")
	ErrInvalidOutcome = errors.New("invalid review outcome")
	ErrInvalidDays    = errors.New("postpone days must be at least 1")
)

// Service defines the interface for scheduling operations.
// Implementations are pure: they return new cards and never perform I/O.
type Service interface {
	// Schedule computes the card's next SRS state for a review outcome.
	Schedule(card *domain.Card, outcome domain.ReviewOutcome, now time.Time) (*domain.Card, error)

	// Postpone pushes the card's due date forward by the given number of days.
	Postpone(card *domain.Card, days int, now time.Time) (*domain.Card, error)
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	params *Params
}

// NewDefaultService creates a new scheduler with default parameters
func NewDefaultService() Service {
	return &defaultService{
		params: NewDefaultParams(),
	}
}

// NewServiceWithParams creates a new scheduler with custom parameters
func NewServiceWithParams(params *Params) Service {
	if params == nil {
		params = NewDefaultParams()
	}
	return &defaultService{
		params: params,
	}
}

// Schedule implements Service.Schedule
func (s *defaultService) Schedule(
	card *domain.Card,
	outcome domain.ReviewOutcome,
	now time.Time,
) (*domain.Card, error) {
	if card == nil {
		return nil, ErrNilCard
	}

	if !outcome.IsValid() {
		return nil, ErrInvalidOutcome
	}

	return calculateNextCard(card, outcome, now, s.params), nil
}

// Postpone implements Service.Postpone
func (s *defaultService) Postpone(card *domain.Card, days int, now time.Time) (*domain.Card, error) {
	if card == nil {
		return nil, ErrNilCard
	}

	if days < 1 {
		return nil, ErrInvalidDays
	}

	next := card.Clone()
	next.DueDate = domain.StartOfDay(card.DueDate).AddDate(0, 0, days)
	next.UpdatedAt = now

	return next, nil
}
