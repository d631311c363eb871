package selection

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lsat-prep/adaptive/internal/models"
)

// QuestionSource is the question bank as seen by selection.
type QuestionSource interface {
	CountAvailable(ctx context.Context, categoryID int64, level models.StudyLevel, excludeIDs []int64) (int, error)
	ListCandidates(ctx context.Context, categoryIDs []int64, level models.StudyLevel, excludeIDs []int64, limit int) ([]models.Question, error)
}

// SessionHistory reports which questions a user was recently served.
type SessionHistory interface {
	RecentSessionQuestionIDs(ctx context.Context, userID int64, since time.Time) ([]int64, error)
}

type Criteria struct {
	UserID            int64
	Level             models.StudyLevel
	WeakCategoryIDs   []int64
	StrongCategoryIDs []int64
	Total             int
	WeakRatio         float64
	ExcludeIDs        []int64
	BalanceDifficulty bool
}

type Selection struct {
	Questions    []models.Question `json:"questions"`
	TargetWeak   int               `json:"target_weak"`
	TargetStrong int               `json:"target_strong"`
	ActualWeak   int               `json:"actual_weak"`
	ActualStrong int               `json:"actual_strong"`
	// Available is the per-category availability after exclusions.
	Available map[int64]int `json:"available"`
}

type Engine struct {
	questions QuestionSource
	history   SessionHistory
	now       func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewEngine(questions QuestionSource, history SessionHistory) *Engine {
	return &Engine{
		questions: questions,
		history:   history,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectAdaptiveQuestions picks a shuffled, duplicate-free question set
// biased toward the weak categories and bounded by availability.
func (e *Engine) SelectAdaptiveQuestions(ctx context.Context, c Criteria) (*Selection, error) {
	if c.Total <= 0 {
		c.Total = DefaultTotal
	}
	if c.WeakRatio <= 0 || c.WeakRatio > 1 {
		c.WeakRatio = DefaultWeakRatio
	}

	weakIDs := dedupe(c.WeakCategoryIDs, nil)
	strongIDs := dedupe(c.StrongCategoryIDs, weakIDs)

	available, err := e.countAvailability(ctx, append(append([]int64{}, weakIDs...), strongIDs...), c.Level, c.ExcludeIDs)
	if err != nil {
		return nil, err
	}

	weakIDs, availWeak := keepAvailable(weakIDs, available)
	strongIDs, availStrong := keepAvailable(strongIDs, available)

	targetWeak, targetStrong := Targets(c.Total, c.WeakRatio)
	countWeak, countStrong := AdjustTargets(targetWeak, targetStrong, availWeak, availStrong)

	weakQs, err := e.pick(ctx, weakIDs, c, countWeak)
	if err != nil {
		return nil, fmt.Errorf("select weak questions: %w", err)
	}
	strongQs, err := e.pick(ctx, strongIDs, c, countStrong)
	if err != nil {
		return nil, fmt.Errorf("select strong questions: %w", err)
	}

	seen := make(map[int64]bool)
	var picked []models.Question
	actualWeak, actualStrong := 0, 0
	for _, q := range weakQs {
		if !seen[q.ID] {
			seen[q.ID] = true
			picked = append(picked, q)
			actualWeak++
		}
	}
	for _, q := range strongQs {
		if !seen[q.ID] {
			seen[q.ID] = true
			picked = append(picked, q)
			actualStrong++
		}
	}

	if countWeak != targetWeak || countStrong != targetStrong {
		log.Printf("[selection] user %d: targets %d/%d adjusted to %d/%d (available %d/%d)",
			c.UserID, targetWeak, targetStrong, countWeak, countStrong, availWeak, availStrong)
	}

	return &Selection{
		Questions:    picked,
		TargetWeak:   targetWeak,
		TargetStrong: targetStrong,
		ActualWeak:   actualWeak,
		ActualStrong: actualStrong,
		Available:    available,
	}, nil
}

// ExcludeRecentQuestions returns question ids from sessions created in the
// last days days (7 when days <= 0).
func (e *Engine) ExcludeRecentQuestions(ctx context.Context, userID int64, days int) ([]int64, error) {
	if days <= 0 {
		days = 7
	}
	since := e.now().Add(-time.Duration(days) * 24 * time.Hour)
	ids, err := e.history.RecentSessionQuestionIDs(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("recent session questions: %w", err)
	}
	return dedupe(ids, nil), nil
}

func (e *Engine) countAvailability(ctx context.Context, categoryIDs []int64, level models.StudyLevel, exclude []int64) (map[int64]int, error) {
	counts := make([]int, len(categoryIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range categoryIDs {
		g.Go(func() error {
			n, err := e.questions.CountAvailable(gctx, id, level, exclude)
			if err != nil {
				return fmt.Errorf("category %d: %w", id, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("count availability: %w", err)
	}

	available := make(map[int64]int, len(categoryIDs))
	for i, id := range categoryIDs {
		available[id] = counts[i]
	}
	return available, nil
}

func (e *Engine) pick(ctx context.Context, categoryIDs []int64, c Criteria, count int) ([]models.Question, error) {
	if count <= 0 || len(categoryIDs) == 0 {
		return nil, nil
	}
	pool, err := e.questions.ListCandidates(ctx, categoryIDs, c.Level, c.ExcludeIDs, CandidatePoolSize(count))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	Shuffle(e.rng, pool)
	e.mu.Unlock()

	if c.BalanceDifficulty {
		return BalanceDifficulty(pool, count), nil
	}
	return take(pool, count), nil
}

func keepAvailable(ids []int64, available map[int64]int) ([]int64, int) {
	var kept []int64
	total := 0
	for _, id := range ids {
		if n := available[id]; n > 0 {
			kept = append(kept, id)
			total += n
		}
	}
	return kept, total
}

// dedupe drops repeated ids and any id present in skip, keeping order.
func dedupe(ids []int64, skip []int64) []int64 {
	seen := make(map[int64]bool, len(ids)+len(skip))
	for _, id := range skip {
		seen[id] = true
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
