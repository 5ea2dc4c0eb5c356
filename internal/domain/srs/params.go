package srs

import (
	"github.com/phrazzld/scry-sync/internal/domain"
)

// Params defines all configurable parameters for the SM-2 scheduler.
type Params struct {
	// Core limits
	MinEaseFactor float64
	MaxInterval   int

	// FirstLearningStep is the interval in days after an "Again" outcome.
	FirstLearningStep int

	// LearningSteps are the fixed intervals for the first and second
	// successful repetitions.
	LearningSteps [2]int

	// OutcomeScores maps non-Again outcomes to the 1-3 score fed into SM-2.
	OutcomeScores map[domain.ReviewOutcome]int
}

// ParamsConfig allows overriding the default parameters when creating a new Params instance.
// Zero values keep the defaults.
type ParamsConfig struct {
	MinEaseFactor     float64
	MaxInterval       int
	FirstLearningStep int
	FirstStep         int
	SecondStep        int
}

// NewDefaultParams creates a new Params instance with default values
func NewDefaultParams() *Params {
	return &Params{
		MinEaseFactor:     domain.MinEaseFactor,
		MaxInterval:       domain.MaxInterval,
		FirstLearningStep: 1,
		LearningSteps:     [2]int{1, 6},
		OutcomeScores: map[domain.ReviewOutcome]int{
			domain.ReviewOutcomeHard: 1,
			domain.ReviewOutcomeGood: 2,
			domain.ReviewOutcomeEasy: 3,
		},
	}
}

// NewParams creates a new Params instance with custom configuration
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	if config.MinEaseFactor >= domain.MinEaseFactor {
		params.MinEaseFactor = config.MinEaseFactor
	}
	if config.MaxInterval > 0 && config.MaxInterval <= domain.MaxInterval {
		params.MaxInterval = config.MaxInterval
	}
	if config.FirstLearningStep > 0 {
		params.FirstLearningStep = config.FirstLearningStep
	}
	if config.FirstStep > 0 {
		params.LearningSteps[0] = config.FirstStep
	}
	if config.SecondStep > 0 {
		params.LearningSteps[1] = config.SecondStep
	}

	return params
}
