package analytics

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/models"
)

// AttemptStore is the slice of persistence the engine needs.
type AttemptStore interface {
	CountValidAttempts(ctx context.Context, userID int64) (int, error)
	// ListValidAttempts returns the most recent scored attempts first.
	// limit <= 0 means no limit.
	ListValidAttempts(ctx context.Context, userID int64, limit int) ([]models.Attempt, error)
	QuestionCategories(ctx context.Context, questionIDs []int64) (map[int64]models.Category, error)
	CreateAttempt(ctx context.Context, attempt *models.Attempt) (*models.Attempt, error)
}

// SnapshotCache stores computed snapshots. Get returns nil, nil on a miss.
type SnapshotCache interface {
	Get(ctx context.Context, userID int64) (*models.PerformanceSnapshot, error)
	Set(ctx context.Context, snapshot *models.PerformanceSnapshot) error
	Invalidate(ctx context.Context, userID int64) error
}

type Engine struct {
	store AttemptStore
	cache SnapshotCache
	group singleflight.Group
	now   func() time.Time

	// gens counts invalidations per user so a computation that started
	// before an invalidation never lands in the cache.
	mu   sync.Mutex
	gens map[int64]uint64
}

func NewEngine(store AttemptStore, cache SnapshotCache) *Engine {
	return &Engine{store: store, cache: cache, now: time.Now, gens: make(map[int64]uint64)}
}

// Analyze returns the user's performance snapshot, from cache when fresh.
// Concurrent calls for the same user share one computation.
func (e *Engine) Analyze(ctx context.Context, userID int64) (*models.PerformanceSnapshot, error) {
	if cached, err := e.cache.Get(ctx, userID); err != nil {
		log.Printf("[analytics] WARN: cache get for user %d: %v", userID, err)
	} else if cached != nil {
		return cached, nil
	}

	v, err, _ := e.group.Do(flightKey(userID), func() (interface{}, error) {
		return e.compute(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.PerformanceSnapshot), nil
}

func (e *Engine) compute(ctx context.Context, userID int64) (*models.PerformanceSnapshot, error) {
	gen := e.generation(userID)

	attempts, err := e.store.ListValidAttempts(ctx, userID, AttemptFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if len(attempts) < MinimumAttempts {
		return nil, fmt.Errorf("%w: user %d has %d scored attempts, need %d",
			apperr.ErrInsufficientData, userID, len(attempts), MinimumAttempts)
	}

	categories, err := e.store.QuestionCategories(ctx, QuestionIDs(attempts))
	if err != nil {
		return nil, fmt.Errorf("resolve categories: %w", err)
	}

	snap := ComputeSnapshot(userID, attempts, categories, e.now())
	e.cacheSnapshot(ctx, snap, gen)
	return snap, nil
}

// cacheSnapshot caches snap unless the user was invalidated since gen was
// read. An invalidation racing the Set is caught by the second check.
func (e *Engine) cacheSnapshot(ctx context.Context, snap *models.PerformanceSnapshot, gen uint64) {
	if e.generation(snap.UserID) != gen {
		log.Printf("[analytics] snapshot for user %d invalidated while computing, not cached", snap.UserID)
		return
	}
	if err := e.cache.Set(ctx, snap); err != nil {
		log.Printf("[analytics] WARN: cache set for user %d: %v", snap.UserID, err)
		return
	}
	if e.generation(snap.UserID) != gen {
		e.dropCached(ctx, snap.UserID)
	}
}

func (e *Engine) HasMinimumData(ctx context.Context, userID int64) (bool, error) {
	n, err := e.store.CountValidAttempts(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("count attempts: %w", err)
	}
	return n >= MinimumAttempts, nil
}

// GetCategoryPerformance bypasses the cache and scans every scored attempt.
// Returns nil, nil when the user never answered a question in the category.
func (e *Engine) GetCategoryPerformance(ctx context.Context, userID, categoryID int64) (*models.CategoryPerformance, error) {
	attempts, err := e.store.ListValidAttempts(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	categories, err := e.store.QuestionCategories(ctx, QuestionIDs(attempts))
	if err != nil {
		return nil, fmt.Errorf("resolve categories: %w", err)
	}
	return CategoryPerformanceFor(categoryID, attempts, categories), nil
}

// Invalidate drops the cached snapshot and detaches any computation in
// flight for the user. Failures are logged only.
func (e *Engine) Invalidate(ctx context.Context, userID int64) {
	e.mu.Lock()
	e.gens[userID]++
	e.mu.Unlock()

	e.group.Forget(flightKey(userID))
	e.dropCached(ctx, userID)
}

func (e *Engine) dropCached(ctx context.Context, userID int64) {
	if err := e.cache.Invalidate(ctx, userID); err != nil {
		log.Printf("[analytics] WARN: cache invalidate for user %d: %v", userID, err)
	}
}

func (e *Engine) generation(userID int64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gens[userID]
}

func flightKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// RecordAttempt persists a finished attempt and invalidates the user's
// snapshot. A missing final score is derived from the answers.
func (e *Engine) RecordAttempt(ctx context.Context, attempt models.Attempt) (*models.Attempt, error) {
	if attempt.UserID <= 0 {
		return nil, apperr.Validation("user_id is required")
	}
	if len(attempt.Answers) == 0 {
		return nil, apperr.Validation("attempt has no answers")
	}
	for _, a := range attempt.Answers {
		if a.QuestionID <= 0 {
			return nil, apperr.Validation("answer has invalid question_id %d", a.QuestionID)
		}
	}
	if attempt.FinalScore == nil {
		score := ScoreAnswers(attempt.Answers)
		attempt.FinalScore = &score
	}
	if attempt.CompletedAt.IsZero() {
		attempt.CompletedAt = e.now()
	}

	saved, err := e.store.CreateAttempt(ctx, &attempt)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	e.Invalidate(ctx, attempt.UserID)
	return saved, nil
}
