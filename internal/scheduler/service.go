package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/models"
	"github.com/lsat-prep/adaptive/internal/streak"
)

const (
	DefaultMaxCards        = 20
	DefaultDurationMinutes = 30
	streakLookbackDays     = 366
	maxSaveAttempts        = 3
)

// ErrConcurrentUpdate is returned by SaveReviews when the schedule version
// moved since it was read.
var ErrConcurrentUpdate = fmt.Errorf("%w: schedule was updated concurrently", apperr.ErrState)

// ReviewEvent is one graded review, kept for streaks.
type ReviewEvent struct {
	ScheduleID string
	QuestionID int64
	UserID     int64
	Quality    int
	ReviewedAt time.Time
}

type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s *models.Schedule, task *models.ReviewTask) error
	// GetSchedule returns apperr.ErrNotFound for unknown ids.
	GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error)
	// SaveReviews fails with ErrConcurrentUpdate unless s.Version still
	// matches the stored schedule; on success it bumps s.Version.
	SaveReviews(ctx context.Context, s *models.Schedule, reviewed []models.Card, events []ReviewEvent) error
	ListUserCards(ctx context.Context, userID int64) ([]models.DueCard, error)
	ReviewTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error)
}

type Service struct {
	store ScheduleStore
	now   func() time.Time
}

func NewService(store ScheduleStore) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	return s.store.GetSchedule(ctx, scheduleID)
}

// CreateSchedule builds a deck of fresh cards and queues a first review
// task for up to ten of them.
func (s *Service) CreateSchedule(ctx context.Context, userID int64, deckName string, questionIDs []int64, hint models.DifficultyHint) (*models.Schedule, error) {
	deckName = strings.TrimSpace(deckName)
	if deckName == "" {
		return nil, apperr.Validation("deck_name is required")
	}
	switch hint {
	case models.HintNone, models.HintEasy, models.HintMedium, models.HintHard:
	default:
		return nil, apperr.Validation("invalid difficulty hint %q", hint)
	}

	ids := uniqueIDs(questionIDs)
	if len(ids) == 0 {
		return nil, apperr.Validation("at least one question id is required")
	}

	now := s.now()
	sched := &models.Schedule{
		ID:        uuid.New().String(),
		UserID:    userID,
		DeckName:  deckName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, qid := range ids {
		sched.Cards = append(sched.Cards, InitialCard(sched.ID, qid, hint, now))
	}
	Aggregate(sched, now)

	taskCards := sched.Cards[:min(initialTaskCards, len(sched.Cards))]
	task := &models.ReviewTask{
		ID:         uuid.New().String(),
		ScheduleID: sched.ID,
		UserID:     userID,
		DueAt:      taskCards[0].NextReviewDate,
		Status:     "pending",
		CreatedAt:  now,
	}
	for _, c := range taskCards {
		task.QuestionIDs = append(task.QuestionIDs, c.QuestionID)
		if c.NextReviewDate.Before(task.DueAt) {
			task.DueAt = c.NextReviewDate
		}
	}

	if err := s.store.CreateSchedule(ctx, sched, task); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	log.Printf("[scheduler] created schedule %s for user %d with %d cards", sched.ID, userID, len(sched.Cards))
	return sched, nil
}

// UpdateAfterReview applies a batch of graded reviews, then recomputes the
// schedule aggregates once. The whole batch is rejected if any result is
// invalid. A batch that loses a race with another one is replayed on the
// fresh schedule.
func (s *Service) UpdateAfterReview(ctx context.Context, scheduleID string, results []models.ReviewResult) (*models.Schedule, error) {
	if len(results) == 0 {
		return nil, apperr.Validation("no review results")
	}
	for _, r := range results {
		if r.Quality < 0 || r.Quality > MaxQuality {
			return nil, apperr.Validation("quality %d for question %d outside [0,5]", r.Quality, r.QuestionID)
		}
	}

	for attempt := 1; ; attempt++ {
		sched, err := s.applyReviews(ctx, scheduleID, results)
		if err == nil || !errors.Is(err, ErrConcurrentUpdate) || attempt == maxSaveAttempts {
			return sched, err
		}
		log.Printf("[scheduler] schedule %s changed during review, retrying (%d/%d)", scheduleID, attempt, maxSaveAttempts)
	}
}

// applyReviews runs one read-modify-write of the schedule. The store
// rejects the write with ErrConcurrentUpdate when another batch saved
// first.
func (s *Service) applyReviews(ctx context.Context, scheduleID string, results []models.ReviewResult) (*models.Schedule, error) {
	sched, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	index := make(map[int64]int, len(sched.Cards))
	for i, c := range sched.Cards {
		index[c.QuestionID] = i
	}
	for _, r := range results {
		if _, ok := index[r.QuestionID]; !ok {
			return nil, apperr.Validation("question %d is not in schedule %s", r.QuestionID, scheduleID)
		}
	}

	now := s.now()
	touched := make(map[int64]bool)
	events := make([]ReviewEvent, 0, len(results))
	for _, r := range results {
		i := index[r.QuestionID]
		sched.Cards[i] = ApplyReview(sched.Cards[i], r.Quality, now)
		touched[r.QuestionID] = true
		events = append(events, ReviewEvent{
			ScheduleID: sched.ID,
			QuestionID: r.QuestionID,
			UserID:     sched.UserID,
			Quality:    r.Quality,
			ReviewedAt: now,
		})
	}

	reviewed := make([]models.Card, 0, len(touched))
	for _, c := range sched.Cards {
		if touched[c.QuestionID] {
			reviewed = append(reviewed, c)
		}
	}

	Aggregate(sched, now)
	sched.UpdatedAt = now

	if err := s.store.SaveReviews(ctx, sched, reviewed, events); err != nil {
		return nil, fmt.Errorf("save reviews: %w", err)
	}
	return sched, nil
}

// GenerateReviewSession gathers due cards across every schedule of the
// user. Returns nil, nil when nothing is due.
func (s *Service) GenerateReviewSession(ctx context.Context, userID int64, maxCards, durationMinutes int) (*models.ReviewSession, error) {
	if maxCards <= 0 {
		maxCards = DefaultMaxCards
	}
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}

	cards, err := s.store.ListUserCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	now := s.now()
	due := OrderDue(cards, now, maxCards)
	if len(due) == 0 {
		return nil, nil
	}

	return &models.ReviewSession{
		ID:                uuid.New().String(),
		UserID:            userID,
		Cards:             due,
		CardCount:         len(due),
		EstimatedDuration: EstimatedMinutes(len(due), durationMinutes),
		CreatedAt:         now,
	}, nil
}

// GetUserProgressStats summarizes all of the user's cards. A failed
// streak lookup degrades to 0.
func (s *Service) GetUserProgressStats(ctx context.Context, userID int64) (*models.ProgressStats, error) {
	due, err := s.store.ListUserCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	cards := make([]models.Card, len(due))
	for i, d := range due {
		cards[i] = d.Card
	}

	now := s.now()
	stats := Progress(cards, now)

	times, err := s.store.ReviewTimes(ctx, userID, streak.Since(now, streakLookbackDays))
	if err != nil {
		log.Printf("[scheduler] WARN: review streak for user %d: %v", userID, err)
	} else {
		stats.StreakDays = streak.Days(times, now)
	}
	return &stats, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
