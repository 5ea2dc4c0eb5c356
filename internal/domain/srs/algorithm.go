package srs

import (
	"math"
	"time"

	"github.com/phrazzld/scry-sync/internal/domain"
)

// calculateNewEaseFactor applies the SM-2 ease adjustment for a successful review.
//
// The 1-3 outcome score is shifted onto the SM-2 quality scale (q = score+2, so
// Hard=3, Good=4, Easy=5) and fed into
//
//	EF' = EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02))
//
// which leaves Good unchanged, lowers Hard by 0.14 and raises Easy by 0.1.
// The result never drops below params.MinEaseFactor.
func calculateNewEaseFactor(currentEF float64, score int, params *Params) float64 {
	q := float64(score + 2)
	newEF := currentEF + (0.1 - (5-q)*(0.08+(5-q)*0.02))

	if newEF < params.MinEaseFactor {
		newEF = params.MinEaseFactor
	}

	return newEF
}

// calculateNewInterval determines the next interval in days for a successful
// review. The first two repetitions use the fixed learning steps; later ones
// grow the previous interval by the (already updated) ease factor.
func calculateNewInterval(currentInterval, repetitions int, easeFactor float64, params *Params) int {
	var interval int
	switch repetitions {
	case 1:
		interval = params.LearningSteps[0]
	case 2:
		interval = params.LearningSteps[1]
	default:
		base := math.Max(1, float64(currentInterval))
		interval = int(math.Round(base * easeFactor))
	}

	return clampInterval(interval, 1, params.MaxInterval)
}

func clampInterval(interval, lower, upper int) int {
	if interval < lower {
		return lower
	}
	if interval > upper {
		return upper
	}
	return interval
}

// calculateNextCard returns a new card with its SRS fields updated for outcome.
// The input card is never modified.
func calculateNextCard(card *domain.Card, outcome domain.ReviewOutcome, now time.Time, params *Params) *domain.Card {
	next := card.Clone()

	if outcome == domain.ReviewOutcomeAgain {
		next.Repetitions = 0
		next.Interval = clampInterval(params.FirstLearningStep, 0, params.MaxInterval)
	} else {
		next.Repetitions = card.Repetitions + 1
		next.EaseFactor = calculateNewEaseFactor(card.EaseFactor, params.OutcomeScores[outcome], params)
		next.Interval = calculateNewInterval(card.Interval, next.Repetitions, next.EaseFactor, params)
	}

	reviewed := now
	next.LastReviewed = &reviewed
	next.DueDate = domain.StartOfDay(now).AddDate(0, 0, next.Interval)
	next.UpdatedAt = now

	return next
}
