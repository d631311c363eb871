package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/cache"
	"github.com/lsat-prep/adaptive/internal/models"
)

type fakeStore struct {
	mu         sync.Mutex
	attempts   []models.Attempt
	categories map[int64]models.Category
	listCalls  int32
	created    []models.Attempt
	listDelay  time.Duration
	// onCategories runs before categories are resolved.
	onCategories func()
}

func (f *fakeStore) CountValidAttempts(ctx context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.UserID == userID && a.HasValidScore() {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListValidAttempts(ctx context.Context, userID int64, limit int) ([]models.Attempt, error) {
	atomic.AddInt32(&f.listCalls, 1)
	if f.listDelay > 0 {
		time.Sleep(f.listDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Attempt
	for _, a := range f.attempts {
		if a.UserID == userID && a.HasValidScore() {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) QuestionCategories(ctx context.Context, ids []int64) (map[int64]models.Category, error) {
	if f.onCategories != nil {
		f.onCategories()
	}
	out := map[int64]models.Category{}
	for _, id := range ids {
		if c, ok := f.categories[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeStore) CreateAttempt(ctx context.Context, a *models.Attempt) (*models.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := *a
	saved.ID = int64(len(f.attempts) + 1)
	f.attempts = append(f.attempts, saved)
	f.created = append(f.created, saved)
	return &saved, nil
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, userID int64) (*models.PerformanceSnapshot, error) {
	return nil, errors.New("cache down")
}
func (failingCache) Set(ctx context.Context, s *models.PerformanceSnapshot) error {
	return errors.New("cache down")
}
func (failingCache) Invalidate(ctx context.Context, userID int64) error {
	return errors.New("cache down")
}

func seededStore() *fakeStore {
	now := time.Now()
	cats := map[int64]models.Category{}
	categoriesFor(100, 5, catA, cats)
	categoriesFor(200, 5, catB, cats)
	neg := -1.0
	return &fakeStore{
		categories: cats,
		attempts: []models.Attempt{
			attemptWith(100, 5, 4, now),
			attemptWith(200, 5, 1, now),
			{UserID: 1, FinalScore: &neg, CompletedAt: now},
			{UserID: 1, CompletedAt: now},
		},
	}
}

func TestAnalyze_InsufficientData(t *testing.T) {
	store := seededStore()
	e := NewEngine(store, cache.NewMemoryCache(30*time.Minute))

	_, err := e.Analyze(context.Background(), 1)
	if !errors.Is(err, apperr.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	ok, err := e.HasMinimumData(context.Background(), 1)
	if err != nil || ok {
		t.Errorf("HasMinimumData = %v, %v; want false, nil", ok, err)
	}
}

func TestAnalyze_UsesCacheUntilInvalidated(t *testing.T) {
	store := seededStore()
	score := 50.0
	store.attempts = append(store.attempts, models.Attempt{UserID: 1, FinalScore: &score, CompletedAt: time.Now()})
	e := NewEngine(store, cache.NewMemoryCache(30*time.Minute))
	ctx := context.Background()

	first, err := e.Analyze(ctx, 1)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !almostEqual(first.OverallSuccessRate, 0.5) {
		t.Errorf("OverallSuccessRate = %f, want 0.5", first.OverallSuccessRate)
	}
	if first.OverallSuccessRate < 0 || first.OverallSuccessRate > 1 {
		t.Errorf("rate out of range: %f", first.OverallSuccessRate)
	}

	if _, err := e.Analyze(ctx, 1); err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if got := atomic.LoadInt32(&store.listCalls); got != 1 {
		t.Errorf("store hit %d times, want 1 (second call cached)", got)
	}

	if _, err := e.RecordAttempt(ctx, attemptWith(100, 5, 5, time.Now())); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	second, err := e.Analyze(ctx, 1)
	if err != nil {
		t.Fatalf("Analyze after record: %v", err)
	}
	if atomic.LoadInt32(&store.listCalls) != 2 {
		t.Error("expected recompute after RecordAttempt invalidated the cache")
	}
	if second.OverallSuccessRate <= first.OverallSuccessRate {
		t.Errorf("rate did not rise: %f -> %f", first.OverallSuccessRate, second.OverallSuccessRate)
	}
}

func TestAnalyze_InvalidationDuringComputeIsNotCached(t *testing.T) {
	store := seededStore()
	score := 50.0
	store.attempts = append(store.attempts, models.Attempt{UserID: 1, FinalScore: &score, CompletedAt: time.Now()})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.onCategories = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	e := NewEngine(store, cache.NewMemoryCache(30*time.Minute))
	ctx := context.Background()

	type outcome struct {
		snap *models.PerformanceSnapshot
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		snap, err := e.Analyze(ctx, 1)
		done <- outcome{snap, err}
	}()

	<-entered
	if _, err := e.RecordAttempt(ctx, attemptWith(100, 5, 5, time.Now())); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	close(release)

	inFlight := <-done
	if inFlight.err != nil {
		t.Fatalf("in-flight Analyze: %v", inFlight.err)
	}
	if inFlight.snap.TotalQuizzesTaken != 3 {
		t.Fatalf("in-flight snapshot saw %d quizzes, want 3", inFlight.snap.TotalQuizzesTaken)
	}

	fresh, err := e.Analyze(ctx, 1)
	if err != nil {
		t.Fatalf("Analyze after record: %v", err)
	}
	if fresh.TotalQuizzesTaken != 4 {
		t.Errorf("TotalQuizzesTaken = %d, want 4 (snapshot from before the new attempt was cached)", fresh.TotalQuizzesTaken)
	}
}

func TestInvalidate_AfterSetDropsRacingSnapshot(t *testing.T) {
	store := seededStore()
	score := 50.0
	store.attempts = append(store.attempts, models.Attempt{UserID: 1, FinalScore: &score, CompletedAt: time.Now()})
	snaps := cache.NewMemoryCache(30 * time.Minute)
	e := NewEngine(store, snaps)
	ctx := context.Background()

	// A computation that read generation 0 finishes after an invalidation.
	stale := &models.PerformanceSnapshot{UserID: 1, TotalQuizzesTaken: 1}
	e.Invalidate(ctx, 1)
	e.cacheSnapshot(ctx, stale, 0)

	if got, _ := snaps.Get(ctx, 1); got != nil {
		t.Errorf("stale snapshot cached: %+v", got)
	}
}

func TestAnalyze_CacheFailuresAreSwallowed(t *testing.T) {
	store := seededStore()
	score := 10.0
	store.attempts = append(store.attempts, models.Attempt{UserID: 1, FinalScore: &score})
	e := NewEngine(store, failingCache{})

	if _, err := e.Analyze(context.Background(), 1); err != nil {
		t.Fatalf("Analyze should succeed with a broken cache: %v", err)
	}
	if _, err := e.RecordAttempt(context.Background(), attemptWith(100, 1, 1, time.Now())); err != nil {
		t.Fatalf("RecordAttempt should succeed with a broken cache: %v", err)
	}
}

func TestAnalyze_ConcurrentCallsShareComputation(t *testing.T) {
	store := seededStore()
	score := 10.0
	store.attempts = append(store.attempts, models.Attempt{UserID: 1, FinalScore: &score})
	store.listDelay = 50 * time.Millisecond
	e := NewEngine(store, cache.NewMemoryCache(time.Minute))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Analyze(context.Background(), 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Analyze: %v", err)
	}
	if got := atomic.LoadInt32(&store.listCalls); got > 3 {
		t.Errorf("store hit %d times for 10 concurrent calls", got)
	}
}

func TestGetCategoryPerformance(t *testing.T) {
	e := NewEngine(seededStore(), cache.NewMemoryCache(time.Minute))

	got, err := e.GetCategoryPerformance(context.Background(), 1, catB.ID)
	if err != nil {
		t.Fatalf("GetCategoryPerformance: %v", err)
	}
	if got == nil || got.CorrectAttempts != 1 || got.TotalAttempts != 5 {
		t.Errorf("category B = %+v", got)
	}

	none, err := e.GetCategoryPerformance(context.Background(), 1, 99)
	if err != nil || none != nil {
		t.Errorf("unknown category = %+v, %v; want nil, nil", none, err)
	}
}

func TestRecordAttempt_Validation(t *testing.T) {
	e := NewEngine(&fakeStore{}, cache.NewMemoryCache(time.Minute))

	tests := []struct {
		name    string
		attempt models.Attempt
	}{
		{"missing user", models.Attempt{Answers: []models.AttemptAnswer{{QuestionID: 1}}}},
		{"no answers", models.Attempt{UserID: 1}},
		{"bad question", models.Attempt{UserID: 1, Answers: []models.AttemptAnswer{{QuestionID: 0}}}},
	}
	for _, tt := range tests {
		if _, err := e.RecordAttempt(context.Background(), tt.attempt); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tt.name, err)
		}
	}
}

func TestRecordAttempt_DerivesScore(t *testing.T) {
	store := &fakeStore{}
	e := NewEngine(store, cache.NewMemoryCache(time.Minute))

	a := models.Attempt{UserID: 3, Answers: []models.AttemptAnswer{
		{QuestionID: 1, IsCorrect: true}, {QuestionID: 2},
	}}
	saved, err := e.RecordAttempt(context.Background(), a)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if saved.FinalScore == nil || *saved.FinalScore != 50 {
		t.Errorf("FinalScore = %v, want 50", saved.FinalScore)
	}
	if saved.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}
}
