package deck

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phrazzld/scry-sync/internal/domain"
)

// Errors returned when a deck configuration is invalid.
var (
	ErrUnknownMode   = errors.New("unknown deck mode")
	ErrInvalidRatios = errors.New("custom deck ratios must each be between 0 and 100 and sum to more than 0")
)

// Mode selects how a review deck is assembled. The set of modes is closed:
// only the types in this package implement it, and only Custom carries a
// payload, so a ratio set without the custom mode cannot be expressed.
type Mode interface {
	// Name returns the mode's wire name.
	Name() string
	isMode()
}

// ReviewOnly selects due cards only.
type ReviewOnly struct{}

// NewOnly selects never-reviewed cards only.
type NewOnly struct{}

// Mixed fills 70% of the deck with due cards and the rest with new cards.
type Mixed struct{}

// Difficult selects hard or barely-learned cards, hardest first.
type Difficult struct{}

// Custom splits the deck between review, new and difficult cards by weight.
type Custom struct {
	Ratios domain.DeckRatios
}

func (ReviewOnly) Name() string { return "review-only" }
func (NewOnly) Name() string    { return "new-only" }
func (Mixed) Name() string      { return "mixed" }
func (Difficult) Name() string  { return "difficult" }
func (Custom) Name() string     { return "custom" }

func (ReviewOnly) isMode() {}
func (NewOnly) isMode()    {}
func (Mixed) isMode()      {}
func (Difficult) isMode()  {}
func (Custom) isMode()     {}

// Validate checks that the ratios are usable. A zero sum has no meaningful
// split, so it is rejected rather than guessed.
func (c Custom) Validate() error {
	r := c.Ratios
	if !r.InRange() || r.Sum() == 0 {
		return domain.NewValidationError("ratios", ErrInvalidRatios.Error(), ErrInvalidRatios)
	}
	return nil
}

// ParseMode builds a Mode from its wire name. Ratios are required for
// "custom" and must be absent for every other mode.
func ParseMode(name string, ratios *domain.DeckRatios) (Mode, error) {
	var mode Mode
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "review-only", "review":
		mode = ReviewOnly{}
	case "new-only", "new-cards-only", "new":
		mode = NewOnly{}
	case "mixed", "":
		mode = Mixed{}
	case "difficult", "difficult-cards":
		mode = Difficult{}
	case "custom":
		if ratios == nil {
			return nil, domain.NewValidationError("ratios", "required for custom mode", ErrInvalidRatios)
		}
		custom := Custom{Ratios: *ratios}
		if err := custom.Validate(); err != nil {
			return nil, err
		}
		return custom, nil
	default:
		return nil, domain.NewValidationError("mode", fmt.Sprintf("unknown mode %q", name), ErrUnknownMode)
	}

	if ratios != nil {
		return nil, domain.NewValidationError("ratios", "only valid with custom mode", ErrInvalidRatios)
	}
	return mode, nil
}
