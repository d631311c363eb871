package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/models"
)

type memStore struct {
	mu         sync.Mutex
	schedules  map[string]*models.Schedule
	tasks      []models.ReviewTask
	events     []ReviewEvent
	saves      int
	timesErr   error
	beforeSave func() // runs ahead of every SaveReviews, outside the lock
}

func newMemStore() *memStore {
	return &memStore{schedules: map[string]*models.Schedule{}}
}

func cloneSchedule(s *models.Schedule) *models.Schedule {
	c := *s
	c.Cards = append([]models.Card(nil), s.Cards...)
	return &c
}

func (m *memStore) CreateSchedule(ctx context.Context, s *models.Schedule, task *models.ReviewTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = cloneSchedule(s)
	if task != nil {
		m.tasks = append(m.tasks, *task)
	}
	return nil
}

func (m *memStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, apperr.NotFound("schedule", id)
	}
	return cloneSchedule(s), nil
}

func (m *memStore) SaveReviews(ctx context.Context, s *models.Schedule, reviewed []models.Card, events []ReviewEvent) error {
	if m.beforeSave != nil {
		m.beforeSave()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.schedules[s.ID]
	if stored.Version != s.Version {
		return ErrConcurrentUpdate
	}
	stored.Version++
	s.Version++
	for _, r := range reviewed {
		for i := range stored.Cards {
			if stored.Cards[i].QuestionID == r.QuestionID {
				stored.Cards[i] = r
			}
		}
	}
	stored.TotalCards, stored.ActiveCards, stored.CompletedCards = s.TotalCards, s.ActiveCards, s.CompletedCards
	stored.AverageEaseFactor, stored.UpdatedAt = s.AverageEaseFactor, s.UpdatedAt
	m.events = append(m.events, events...)
	m.saves++
	return nil
}

func (m *memStore) ListUserCards(ctx context.Context, userID int64) ([]models.DueCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DueCard
	for _, s := range m.schedules {
		if s.UserID != userID {
			continue
		}
		for _, c := range s.Cards {
			out = append(out, models.DueCard{Card: c, DeckName: s.DeckName})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextReviewDate.Before(out[j].NextReviewDate) })
	return out, nil
}

func (m *memStore) ReviewTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	if m.timesErr != nil {
		return nil, m.timesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, e := range m.events {
		if e.UserID == userID && !e.ReviewedAt.Before(since) {
			out = append(out, e.ReviewedAt)
		}
	}
	return out, nil
}

func newTestService() (*Service, *memStore, *time.Time) {
	store := newMemStore()
	svc := NewService(store)
	now := t0
	svc.now = func() time.Time { return now }
	return svc, store, &now
}

func TestCreateSchedule_ThenProgress(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	sched, err := svc.CreateSchedule(ctx, 1, "Deck", []int64{11, 12, 13}, models.HintNone)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if sched.TotalCards != 3 || sched.CompletedCards != 0 || sched.ActiveCards != 3 {
		t.Errorf("aggregates = %+v", sched)
	}
	if len(store.tasks) != 1 || len(store.tasks[0].QuestionIDs) != 3 {
		t.Errorf("review tasks = %+v", store.tasks)
	}

	stats, err := svc.GetUserProgressStats(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserProgressStats: %v", err)
	}
	if stats.TotalCards != 3 || stats.CompletedCards != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.StreakDays != 0 {
		t.Errorf("StreakDays = %d, want 0 before any review", stats.StreakDays)
	}
}

func TestCreateSchedule_TaskCoversFirstTenCards(t *testing.T) {
	svc, store, _ := newTestService()
	ids := make([]int64, 25)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if _, err := svc.CreateSchedule(context.Background(), 1, "Big", ids, models.HintEasy); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	task := store.tasks[0]
	if len(task.QuestionIDs) != 10 || task.QuestionIDs[0] != 1 || task.QuestionIDs[9] != 10 {
		t.Errorf("task question ids = %v", task.QuestionIDs)
	}
	if !task.DueAt.Equal(t0.AddDate(0, 0, 2)) {
		t.Errorf("task due = %s", task.DueAt)
	}
}

func TestCreateSchedule_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		deck string
		ids  []int64
		hint models.DifficultyHint
	}{
		{"empty deck", " ", []int64{1}, ""},
		{"no questions", "Deck", nil, ""},
		{"bad hint", "Deck", []int64{1}, "brutal"},
	}
	for _, c := range cases {
		if _, err := svc.CreateSchedule(ctx, 1, c.deck, c.ids, c.hint); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", c.name, err)
		}
	}
}

func TestUpdateAfterReview(t *testing.T) {
	svc, store, now := newTestService()
	ctx := context.Background()

	sched, _ := svc.CreateSchedule(ctx, 1, "Deck", []int64{1, 2}, models.HintNone)

	*now = t0.Add(25 * time.Hour)
	updated, err := svc.UpdateAfterReview(ctx, sched.ID, []models.ReviewResult{
		{QuestionID: 1, Quality: 5},
		{QuestionID: 2, Quality: 1},
	})
	if err != nil {
		t.Fatalf("UpdateAfterReview: %v", err)
	}

	c1, c2 := updated.Cards[0], updated.Cards[1]
	if c1.Repetitions != 1 || c1.Interval != 1 || !almostEqual(c1.EaseFactor, 2.6) {
		t.Errorf("card 1 = %+v", c1)
	}
	if c2.Repetitions != 0 || c2.Interval != 1 || !almostEqual(c2.EaseFactor, 1.96) {
		t.Errorf("card 2 = %+v", c2)
	}
	if !almostEqual(updated.AverageEaseFactor, 2.28) {
		t.Errorf("AverageEaseFactor = %v, want 2.28", updated.AverageEaseFactor)
	}
	if store.saves != 1 || len(store.events) != 2 {
		t.Errorf("saves = %d, events = %d", store.saves, len(store.events))
	}

	stats, _ := svc.GetUserProgressStats(ctx, 1)
	if stats.StreakDays != 1 {
		t.Errorf("StreakDays = %d, want 1 after reviewing today", stats.StreakDays)
	}
}

func TestUpdateAfterReview_Errors(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	sched, _ := svc.CreateSchedule(ctx, 1, "Deck", []int64{1}, models.HintNone)

	if _, err := svc.UpdateAfterReview(ctx, "missing", []models.ReviewResult{{QuestionID: 1, Quality: 3}}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing schedule: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.UpdateAfterReview(ctx, sched.ID, []models.ReviewResult{{QuestionID: 1, Quality: 6}}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("quality 6: expected ErrValidation, got %v", err)
	}
	if _, err := svc.UpdateAfterReview(ctx, sched.ID, []models.ReviewResult{{QuestionID: 1, Quality: -1}}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("quality -1: expected ErrValidation, got %v", err)
	}
	if _, err := svc.UpdateAfterReview(ctx, sched.ID, []models.ReviewResult{{QuestionID: 1, Quality: 4}, {QuestionID: 99, Quality: 4}}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown card: expected ErrValidation, got %v", err)
	}
	if store.saves != 0 {
		t.Errorf("invalid batches were persisted: %d saves", store.saves)
	}
}

func TestUpdateAfterReview_ConcurrentBatchesBothApply(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	sched, _ := svc.CreateSchedule(ctx, 1, "Deck", []int64{1}, models.HintNone)

	// Another batch lands between this batch's read and its write.
	raced := false
	store.beforeSave = func() {
		if raced {
			return
		}
		raced = true
		if _, err := svc.UpdateAfterReview(ctx, sched.ID, []models.ReviewResult{{QuestionID: 1, Quality: 5}}); err != nil {
			t.Errorf("competing batch: %v", err)
		}
	}

	updated, err := svc.UpdateAfterReview(ctx, sched.ID, []models.ReviewResult{{QuestionID: 1, Quality: 5}})
	if err != nil {
		t.Fatalf("UpdateAfterReview: %v", err)
	}
	card := updated.Cards[0]
	if card.Repetitions != 2 || card.Interval != 6 || !almostEqual(card.EaseFactor, 2.7) {
		t.Errorf("card = %+v, want both reviews applied", card)
	}
	if store.saves != 2 || len(store.events) != 2 {
		t.Errorf("saves = %d, events = %d", store.saves, len(store.events))
	}
	if stored := store.schedules[sched.ID]; stored.Version != 2 || stored.Cards[0].Repetitions != 2 {
		t.Errorf("stored schedule version %d, repetitions %d", stored.Version, stored.Cards[0].Repetitions)
	}
}

func TestUpdateAfterReview_GivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	sched, _ := svc.CreateSchedule(ctx, 1, "Deck", []int64{1}, models.HintNone)

	store.beforeSave = func() {
		store.mu.Lock()
		store.schedules[sched.ID].Version++
		store.mu.Unlock()
	}

	_, err := svc.UpdateAfterReview(ctx, sched.ID, []models.ReviewResult{{QuestionID: 1, Quality: 4}})
	if !errors.Is(err, ErrConcurrentUpdate) || !errors.Is(err, apperr.ErrState) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if store.saves != 0 || len(store.events) != 0 {
		t.Errorf("conflicting batch was persisted: saves = %d, events = %d", store.saves, len(store.events))
	}
}

func TestGenerateReviewSession(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateSchedule(ctx, 1, "Easy deck", []int64{1, 2}, models.HintEasy); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSchedule(ctx, 1, "Hard deck", []int64{3, 4, 5}, models.HintHard); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSchedule(ctx, 2, "Other user", []int64{6}, models.HintHard); err != nil {
		t.Fatal(err)
	}

	session, err := svc.GenerateReviewSession(ctx, 1, 0, 0)
	if err != nil {
		t.Fatalf("GenerateReviewSession: %v", err)
	}
	if session != nil {
		t.Fatalf("expected no session before anything is due, got %+v", session)
	}

	// One day later only the hard deck (interval 1) is due.
	*now = t0.AddDate(0, 0, 1)
	session, err = svc.GenerateReviewSession(ctx, 1, 2, 30)
	if err != nil {
		t.Fatalf("GenerateReviewSession: %v", err)
	}
	if session == nil || session.CardCount != 2 {
		t.Fatalf("session = %+v, want 2 cards", session)
	}
	if session.EstimatedDuration != 4 {
		t.Errorf("EstimatedDuration = %d, want 4", session.EstimatedDuration)
	}
	for _, c := range session.Cards {
		if c.DeckName != "Hard deck" {
			t.Errorf("card %d from %q is not due", c.QuestionID, c.DeckName)
		}
	}

	// Three days later every card is due; the hard deck is most overdue.
	*now = t0.AddDate(0, 0, 3)
	session, _ = svc.GenerateReviewSession(ctx, 1, 0, 0)
	if session == nil || session.CardCount != 5 {
		t.Fatalf("session = %+v, want 5 cards", session)
	}
	if session.Cards[0].DeckName != "Hard deck" || session.Cards[4].DeckName != "Easy deck" {
		t.Errorf("ordering wrong: first %q last %q", session.Cards[0].DeckName, session.Cards[4].DeckName)
	}
	if session.EstimatedDuration != 10 {
		t.Errorf("EstimatedDuration = %d, want 10", session.EstimatedDuration)
	}
}

func TestGetUserProgressStats_StreakFailureDegrades(t *testing.T) {
	svc, store, _ := newTestService()
	store.timesErr = errors.New("events table locked")
	svc.CreateSchedule(context.Background(), 1, "Deck", []int64{1}, models.HintNone)

	stats, err := svc.GetUserProgressStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected degraded stats, got error %v", err)
	}
	if stats.StreakDays != 0 || stats.TotalCards != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
