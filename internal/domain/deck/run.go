package deck

import (
	"errors"

	"github.com/phrazzld/scry-sync/internal/domain"
)

// Errors returned by Run.
var (
	ErrRunFinished = errors.New("study run has no cards left")
	ErrNotCurrent  = errors.New("card is not the current card of the run")
)

// Run walks a built deck during one study session. Cards answered "Again"
// go to the back of the queue so they come up again before the run ends,
// except when the card is the last one left: repeating a lone card
// indefinitely is treated as completing the run instead.
type Run struct {
	queue    []domain.Card
	answered int
	requeued int
}

// NewRun starts a run over the given deck.
func NewRun(cards []domain.Card) *Run {
	queue := make([]domain.Card, len(cards))
	copy(queue, cards)
	return &Run{queue: queue}
}

// Current returns the card to show next.
func (r *Run) Current() (domain.Card, bool) {
	if len(r.queue) == 0 {
		return domain.Card{}, false
	}
	return r.queue[0], true
}

// Answer records the outcome for the current card. updated is the card as
// rescheduled by the scheduler; it replaces the queued copy when requeued.
// It reports whether the run is finished afterwards.
func (r *Run) Answer(updated domain.Card, outcome domain.ReviewOutcome) (bool, error) {
	current, ok := r.Current()
	if !ok {
		return true, ErrRunFinished
	}
	if current.ID != updated.ID {
		return false, ErrNotCurrent
	}

	r.queue = r.queue[1:]
	r.answered++
	if outcome == domain.ReviewOutcomeAgain && len(r.queue) > 0 {
		r.queue = append(r.queue, updated)
		r.requeued++
	}
	return r.Done(), nil
}

// Done reports whether every card has been answered.
func (r *Run) Done() bool {
	return len(r.queue) == 0
}

// Remaining returns the number of queued cards, requeued ones included.
func (r *Run) Remaining() int {
	return len(r.queue)
}

// Answered returns how many answers have been recorded.
func (r *Run) Answered() int {
	return r.answered
}
