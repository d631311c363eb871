package scheduler

import (
	"math"
	"sort"
	"time"

	"github.com/lsat-prep/adaptive/internal/models"
)

const (
	MinEaseFactor     = 1.3
	DefaultEaseFactor = 2.5
	PassingQuality    = 3
	MaxQuality        = 5

	// Cards due within these windows count as active.
	scheduleActiveWindow = 30 * 24 * time.Hour
	progressActiveWindow = 7 * 24 * time.Hour

	// A card is completed once it is easy and reviewed monthly at most.
	completedEaseFactor = 2.5
	completedInterval   = 30

	initialTaskCards = 10
	minutesPerCard   = 2
)

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// InitialCard returns a fresh card for the hint: easy starts at 2.8/2 days,
// hard at 2.2/1, anything else at 2.5/1.
func InitialCard(scheduleID string, questionID int64, hint models.DifficultyHint, now time.Time) models.Card {
	ef, interval := DefaultEaseFactor, 1
	switch hint {
	case models.HintEasy:
		ef, interval = 2.8, 2
	case models.HintHard:
		ef, interval = 2.2, 1
	}
	return models.Card{
		ScheduleID:     scheduleID,
		QuestionID:     questionID,
		EaseFactor:     ef,
		Interval:       interval,
		Repetitions:    0,
		NextReviewDate: addDays(now, interval),
	}
}

// NextEaseFactor applies the SM-2 ease update. There is no upper bound.
func NextEaseFactor(ef float64, quality int) float64 {
	miss := float64(MaxQuality - quality)
	next := ef + (0.1 - miss*(0.08+miss*0.02))
	return math.Max(MinEaseFactor, next)
}

// ApplyReview runs one SM-2 step. The interval grows with the ease factor
// the card had before this review.
func ApplyReview(card models.Card, quality int, now time.Time) models.Card {
	if quality >= PassingQuality {
		switch card.Repetitions {
		case 0:
			card.Interval = 1
		case 1:
			card.Interval = 6
		default:
			card.Interval = int(math.Round(float64(card.Interval) * card.EaseFactor))
		}
		card.Repetitions++
	} else {
		card.Repetitions = 0
		card.Interval = 1
	}
	if card.Interval < 1 {
		card.Interval = 1
	}

	card.EaseFactor = NextEaseFactor(card.EaseFactor, quality)
	card.NextReviewDate = addDays(now, card.Interval)
	reviewed := now
	card.LastReviewDate = &reviewed
	q := quality
	card.Quality = &q
	return card
}

func isCompleted(c models.Card) bool {
	return c.EaseFactor >= completedEaseFactor && c.Interval >= completedInterval
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Aggregate recomputes a schedule's summary fields from its cards.
func Aggregate(s *models.Schedule, now time.Time) {
	s.TotalCards = len(s.Cards)
	s.ActiveCards, s.CompletedCards = 0, 0
	var sum float64
	for _, c := range s.Cards {
		if !c.NextReviewDate.After(now.Add(scheduleActiveWindow)) {
			s.ActiveCards++
		}
		if isCompleted(c) {
			s.CompletedCards++
		}
		sum += c.EaseFactor
	}
	s.AverageEaseFactor = 0
	if len(s.Cards) > 0 {
		s.AverageEaseFactor = round2(sum / float64(len(s.Cards)))
	}
}

// Progress summarizes every card a user owns. StreakDays is filled by the
// caller.
func Progress(cards []models.Card, now time.Time) models.ProgressStats {
	stats := models.ProgressStats{TotalCards: len(cards)}
	var sum float64
	for _, c := range cards {
		if !c.NextReviewDate.After(now.Add(progressActiveWindow)) {
			stats.ActiveCards++
		}
		if isCompleted(c) {
			stats.CompletedCards++
		}
		sum += c.EaseFactor
		if c.NextReviewDate.After(now) {
			if stats.NextReviewDate == nil || c.NextReviewDate.Before(*stats.NextReviewDate) {
				next := c.NextReviewDate
				stats.NextReviewDate = &next
			}
		}
	}
	if len(cards) > 0 {
		stats.AverageEaseFactor = round2(sum / float64(len(cards)))
	}
	return stats
}

// OrderDue keeps cards due at or before now, most overdue first and then
// lowest ease factor, truncated to maxCards.
func OrderDue(cards []models.DueCard, now time.Time, maxCards int) []models.DueCard {
	due := make([]models.DueCard, 0, len(cards))
	for _, c := range cards {
		if !c.NextReviewDate.After(now) {
			c.DaysOverdue = round2(now.Sub(c.NextReviewDate).Hours() / 24)
			due = append(due, c)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if !a.NextReviewDate.Equal(b.NextReviewDate) {
			return a.NextReviewDate.Before(b.NextReviewDate)
		}
		return a.EaseFactor < b.EaseFactor
	})
	if maxCards > 0 && len(due) > maxCards {
		due = due[:maxCards]
	}
	return due
}

// EstimatedMinutes allows two minutes per card, capped at the session length.
func EstimatedMinutes(cardCount, durationMinutes int) int {
	return min(durationMinutes, cardCount*minutesPerCard)
}
