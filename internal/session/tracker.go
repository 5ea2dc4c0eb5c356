package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// tracker's current state.
var ErrInvalidTransition = errors.New("invalid session transition")

// Status names the tracker's lifecycle state.
type Status string

// Tracker states. Ended is never observed: End resets to Inactive.
const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
)

// State is a snapshot of the tracker.
type State struct {
	IsActive        bool       `json:"is_active"`
	IsPaused        bool       `json:"is_paused"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	PauseTime       *time.Time `json:"pause_time,omitempty"`
	TotalPausedTime int        `json:"total_paused_time"` // seconds
	CardsStudied    int        `json:"cards_studied"`
	CorrectAnswers  int        `json:"correct_answers"`
}

// Status derives the lifecycle state from the snapshot flags.
func (s State) Status() Status {
	switch {
	case s.IsPaused:
		return StatusPaused
	case s.IsActive:
		return StatusActive
	default:
		return StatusInactive
	}
}

// Summary is the finalized statistics of an ended run.
type Summary struct {
	StartTime           time.Time
	EndTime             time.Time
	CardsStudied        int
	CorrectAnswers      int
	TotalTime           int // seconds, pauses excluded
	TotalPausedTime     int // seconds
	AverageResponseTime float64
}

// Record converts the summary into a persistable study session for userID.
func (s Summary) Record(userID uuid.UUID) *domain.StudySession {
	return &domain.StudySession{
		ID:                  uuid.New(),
		UserID:              userID,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		CardsStudied:        s.CardsStudied,
		CorrectAnswers:      s.CorrectAnswers,
		TotalTime:           s.TotalTime,
		TotalPausedTime:     s.TotalPausedTime,
		AverageResponseTime: s.AverageResponseTime,
		UpdatedAt:           s.EndTime,
	}
}

// Tracker is the study session state machine:
// Inactive -> Active -> (Paused <-> Active) -> Ended, which resets to Inactive.
// It is safe for concurrent use.
type Tracker struct {
	clock clock.Clock

	mu     sync.Mutex
	state  State
	paused time.Duration
}

// NewTracker creates an inactive tracker that reads time from c.
func NewTracker(c clock.Clock) *Tracker {
	if c == nil {
		c = clock.System{}
	}
	return &Tracker{clock: c}
}

// Start begins a run. Valid only from Inactive.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.IsActive {
		return t.transitionError("start")
	}
	now := t.clock.Now()
	t.state = State{IsActive: true, StartTime: &now}
	t.paused = 0
	return nil
}

// Pause suspends the run. Valid only from Active.
func (t *Tracker) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status() != StatusActive {
		return t.transitionError("pause")
	}
	now := t.clock.Now()
	t.state.IsPaused = true
	t.state.PauseTime = &now
	return nil
}

// Resume continues a paused run and adds the pause to the paused total.
func (t *Tracker) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status() != StatusPaused {
		return t.transitionError("resume")
	}
	t.paused += t.clock.Now().Sub(*t.state.PauseTime)
	t.state.IsPaused = false
	t.state.PauseTime = nil
	t.state.TotalPausedTime = int(t.paused / time.Second)
	return nil
}

// RecordResult counts one answered card. Valid only while Active.
func (t *Tracker) RecordResult(correct bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status() != StatusActive {
		return t.transitionError("record result")
	}
	t.state.CardsStudied++
	if correct {
		t.state.CorrectAnswers++
	}
	return nil
}

// End finalizes the run and resets the tracker. It reports false, with no
// summary, when no run is in progress. A pause still open at End counts as
// paused time.
func (t *Tracker) End() (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.IsActive {
		return Summary{}, false
	}

	now := t.clock.Now()
	paused := t.paused
	if t.state.IsPaused {
		paused += now.Sub(*t.state.PauseTime)
	}
	elapsed := max(now.Sub(*t.state.StartTime)-paused, 0)

	summary := Summary{
		StartTime:       *t.state.StartTime,
		EndTime:         now,
		CardsStudied:    t.state.CardsStudied,
		CorrectAnswers:  t.state.CorrectAnswers,
		TotalTime:       int(elapsed / time.Second),
		TotalPausedTime: int(paused / time.Second),
	}
	if summary.CardsStudied > 0 {
		summary.AverageResponseTime = elapsed.Seconds() / float64(summary.CardsStudied)
	}

	t.state = State{}
	t.paused = 0
	return summary, true
}

// State returns a snapshot of the tracker.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state
	if s.StartTime != nil {
		start := *s.StartTime
		s.StartTime = &start
	}
	if s.PauseTime != nil {
		pause := *s.PauseTime
		s.PauseTime = &pause
	}
	return s
}

func (t *Tracker) transitionError(op string) error {
	return fmt.Errorf("cannot %s while %s: %w", op, t.state.Status(), ErrInvalidTransition)
}
