package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProgressStats are a user's running review totals. There is one document per
// user in the progress_stats collection, keyed by the user ID.
type ProgressStats struct {
	UserID         uuid.UUID `json:"user_id"`
	TotalReviews   int       `json:"total_reviews"`
	CorrectReviews int       `json:"correct_reviews"`
	// Day is the start of the day ReviewsToday counts.
	Day          time.Time `json:"day"`
	ReviewsToday int       `json:"reviews_today"`
	// StreakDays counts consecutive days with at least one review, ending at
	// LastStudyDate.
	StreakDays    int       `json:"streak_days"`
	LastStudyDate time.Time `json:"last_study_date"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewProgressStats returns empty stats for a user.
func NewProgressStats(userID uuid.UUID) *ProgressStats {
	return &ProgressStats{UserID: userID}
}

// RecordReview counts one review made at now.
func (p *ProgressStats) RecordReview(correct bool, now time.Time) {
	today := StartOfDay(now)

	p.TotalReviews++
	if correct {
		p.CorrectReviews++
	}

	if !p.Day.Equal(today) {
		p.Day = today
		p.ReviewsToday = 0
	}
	p.ReviewsToday++

	switch {
	case p.LastStudyDate.Equal(today):
	case p.LastStudyDate.Equal(today.AddDate(0, 0, -1)):
		p.StreakDays++
	default:
		p.StreakDays = 1
	}
	p.LastStudyDate = today
	p.UpdatedAt = now
}

// Accuracy returns the share of correct reviews, 0 before the first review.
func (p *ProgressStats) Accuracy() float64 {
	if p.TotalReviews == 0 {
		return 0
	}
	return float64(p.CorrectReviews) / float64(p.TotalReviews)
}
