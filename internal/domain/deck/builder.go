package deck

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/domain"
)

// mixedDuePercent is the share of a mixed deck reserved for due cards.
const mixedDuePercent = 70

// Builder selects and orders a bounded set of cards for a study session.
type Builder struct {
	rng *rand.Rand
}

// NewBuilder creates a Builder. A nil rng uses the auto-seeded global source;
// tests pass a seeded one for reproducible decks.
func NewBuilder(rng *rand.Rand) *Builder {
	return &Builder{rng: rng}
}

// pools holds the eligible cards split the way every mode consumes them.
type pools struct {
	due       []domain.Card // due today or earlier, oldest due date first
	fresh     []domain.Card // zero repetitions; overlaps due
	difficult []domain.Card // hard or fewer than 3 repetitions, lowest ease first
}

// Build returns at most maxSize cards chosen according to mode and filter,
// shuffled so position carries no information about why a card was picked.
func (b *Builder) Build(
	cards []domain.Card,
	mode Mode,
	filter domain.DifficultyFilter,
	maxSize int,
	now time.Time,
) ([]domain.Card, error) {
	if mode == nil {
		return nil, domain.NewValidationError("mode", "cannot be nil", ErrUnknownMode)
	}
	if maxSize <= 0 {
		return []domain.Card{}, nil
	}

	p := partition(applyFilter(cards, filter, now), now)

	var selected []domain.Card
	switch m := mode.(type) {
	case ReviewOnly:
		selected = take(p.due, maxSize, nil)
	case NewOnly:
		selected = take(p.fresh, maxSize, nil)
	case Difficult:
		selected = take(p.difficult, maxSize, nil)
	case Mixed:
		dueTarget := maxSize * mixedDuePercent / 100
		selected = take(p.due, dueTarget, nil)
		selected = append(selected, take(p.fresh, maxSize-dueTarget, idSet(selected))...)
		selected = topUp(selected, maxSize, p.topUpOrder(filter)...)
	case Custom:
		if err := m.Validate(); err != nil {
			return nil, err
		}
		selected = b.buildCustom(p, m.Ratios, maxSize)
		selected = topUp(selected, maxSize, append(p.topUpOrder(filter), p.difficult)...)
	default:
		return nil, domain.NewValidationError("mode", fmt.Sprintf("unsupported mode %T", mode), ErrUnknownMode)
	}

	b.shuffle(selected)
	return selected, nil
}

// buildCustom fills each bucket independently with floor(ratio/sum * maxSize)
// cards and combines them, dropping cards already taken by an earlier bucket.
func (b *Builder) buildCustom(p pools, r domain.DeckRatios, maxSize int) []domain.Card {
	sum := r.Sum()
	reviewN := r.ReviewCards * maxSize / sum
	newN := r.NewCards * maxSize / sum
	difficultN := r.DifficultCards * maxSize / sum

	seen := make(map[uuid.UUID]struct{}, maxSize)
	selected := make([]domain.Card, 0, maxSize)
	for _, bucket := range [][]domain.Card{
		take(p.due, reviewN, nil),
		take(p.fresh, newN, nil),
		take(p.difficult, difficultN, nil),
	} {
		for _, c := range bucket {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			selected = append(selected, c)
		}
	}
	return selected
}

// topUpOrder returns the pools used to fill slots left empty by rounding or
// by an under-filled bucket.
func (p pools) topUpOrder(filter domain.DifficultyFilter) [][]domain.Card {
	if !filter.Enabled || filter.PrioritizeDueCards {
		return [][]domain.Card{p.due, p.fresh}
	}
	return [][]domain.Card{p.fresh, p.due}
}

// shuffle is an in-place Fisher-Yates shuffle.
func (b *Builder) shuffle(cards []domain.Card) {
	for i := len(cards) - 1; i > 0; i-- {
		var j int
		if b.rng != nil {
			j = b.rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// applyFilter drops suspended cards and, when the filter is enabled, cards
// outside the requested difficulty levels, recency window or mastery state.
func applyFilter(cards []domain.Card, filter domain.DifficultyFilter, now time.Time) []domain.Card {
	out := make([]domain.Card, 0, len(cards))
	cutoff := now.AddDate(0, 0, -filter.RecentDaysThreshold)

	for _, c := range cards {
		if c.Suspended {
			continue
		}
		if filter.Enabled {
			if !filter.AllowsLevel(c.Difficulty()) {
				continue
			}
			if filter.FocusRecentCards && filter.RecentDaysThreshold > 0 && c.LastActivity().Before(cutoff) {
				continue
			}
			if filter.ExcludeMasteredCards && c.IsMastered() {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// partition splits eligible cards into the pools the modes draw from. The
// pools overlap: a card created today, or one that lapsed with Again, is both
// due and new, so modes combining pools must drop repeats.
func partition(cards []domain.Card, now time.Time) pools {
	var p pools
	for _, c := range cards {
		if c.IsDue(now) {
			p.due = append(p.due, c)
		}
		if c.IsNew() {
			p.fresh = append(p.fresh, c)
		}
		if c.Difficulty() == domain.DifficultyHard || c.Repetitions < 3 {
			p.difficult = append(p.difficult, c)
		}
	}

	sort.SliceStable(p.due, func(i, j int) bool {
		return p.due[i].DueDate.Before(p.due[j].DueDate)
	})
	sort.SliceStable(p.difficult, func(i, j int) bool {
		return p.difficult[i].EaseFactor < p.difficult[j].EaseFactor
	})
	return p
}

// take returns up to n cards from pool that are not in skip.
func take(pool []domain.Card, n int, skip map[uuid.UUID]struct{}) []domain.Card {
	if n <= 0 {
		return nil
	}
	out := make([]domain.Card, 0, min(n, len(pool)))
	for _, c := range pool {
		if len(out) == n {
			break
		}
		if _, skipped := skip[c.ID]; skipped {
			continue
		}
		out = append(out, c)
	}
	return out
}

func idSet(cards []domain.Card) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(cards))
	for _, c := range cards {
		set[c.ID] = struct{}{}
	}
	return set
}

// topUp appends cards from the given pools, in order, until selected holds
// maxSize cards or the pools run out.
func topUp(selected []domain.Card, maxSize int, from ...[]domain.Card) []domain.Card {
	seen := idSet(selected)
	for _, pool := range from {
		missing := maxSize - len(selected)
		if missing <= 0 {
			break
		}
		extra := take(pool, missing, seen)
		for _, c := range extra {
			seen[c.ID] = struct{}{}
		}
		selected = append(selected, extra...)
	}
	return selected
}
