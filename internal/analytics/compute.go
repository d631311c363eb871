package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/lsat-prep/adaptive/internal/models"
)

const (
	// MinimumAttempts is how many scored attempts a user needs before
	// analytics are computed.
	MinimumAttempts = 3

	// MinCategoryAnswers is how many answers a category needs to be ranked
	// weak or strong.
	MinCategoryAnswers = 3

	MaxRankedCategories = 3
	AttemptFetchLimit   = 1000
)

type tally struct {
	total   int
	correct int
	last    time.Time
}

// ComputeSnapshot aggregates attempts into a performance snapshot.
// categories maps question id to its category; answers to unknown
// questions count toward the overall rate only.
func ComputeSnapshot(userID int64, attempts []models.Attempt, categories map[int64]models.Category, now time.Time) *models.PerformanceSnapshot {
	tallies := make(map[int64]*tally)
	names := make(map[int64]string)

	var answered, correct int
	for _, a := range attempts {
		for _, ans := range a.Answers {
			answered++
			if ans.IsCorrect {
				correct++
			}

			cat, ok := categories[ans.QuestionID]
			if !ok {
				continue
			}
			t := tallies[cat.ID]
			if t == nil {
				t = &tally{}
				tallies[cat.ID] = t
				names[cat.ID] = cat.Name
			}
			t.total++
			if ans.IsCorrect {
				t.correct++
			}
			if a.CompletedAt.After(t.last) {
				t.last = a.CompletedAt
			}
		}
	}

	perfs := make([]models.CategoryPerformance, 0, len(tallies))
	for id, t := range tallies {
		perfs = append(perfs, models.CategoryPerformance{
			CategoryID:      id,
			CategoryName:    names[id],
			TotalAttempts:   t.total,
			CorrectAttempts: t.correct,
			SuccessRate:     rate(t.correct, t.total),
			LastAttemptDate: t.last,
		})
	}
	sort.Slice(perfs, func(i, j int) bool { return perfs[i].CategoryID < perfs[j].CategoryID })

	weakest, strongest := RankCategories(perfs)

	return &models.PerformanceSnapshot{
		UserID:                 userID,
		OverallSuccessRate:     rate(correct, answered),
		TotalQuizzesTaken:      len(attempts),
		TotalQuestionsAnswered: answered,
		CategoryPerformances:   perfs,
		WeakestCategories:      weakest,
		StrongestCategories:    strongest,
		ComputedAt:             now,
	}
}

// RankCategories picks the weakest and strongest categories among those
// with at least MinCategoryAnswers answers. The two lists never share a
// category: with n eligible categories the weak side gets ceil(n/2) (max 3)
// and the strong side what remains (max 3).
func RankCategories(perfs []models.CategoryPerformance) (weakest, strongest []models.CategoryPerformance) {
	var eligible []models.CategoryPerformance
	for _, p := range perfs {
		if p.TotalAttempts >= MinCategoryAnswers {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return []models.CategoryPerformance{}, []models.CategoryPerformance{}
	}

	// Ascending by rate; ties favor the better-sampled category.
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate < b.SuccessRate
		}
		if a.TotalAttempts != b.TotalAttempts {
			return a.TotalAttempts > b.TotalAttempts
		}
		return a.CategoryID < b.CategoryID
	})

	n := len(eligible)
	weakCount := min(MaxRankedCategories, (n+1)/2)
	strongCount := min(MaxRankedCategories, n-weakCount)

	weakest = append([]models.CategoryPerformance{}, eligible[:weakCount]...)
	strongest = make([]models.CategoryPerformance, 0, strongCount)
	for i := n - 1; i >= n-strongCount; i-- {
		strongest = append(strongest, eligible[i])
	}
	return weakest, strongest
}

// CategoryPerformanceFor recomputes one category from raw attempts.
// Returns nil when the category has no answers.
func CategoryPerformanceFor(categoryID int64, attempts []models.Attempt, categories map[int64]models.Category) *models.CategoryPerformance {
	var p models.CategoryPerformance
	for _, a := range attempts {
		for _, ans := range a.Answers {
			cat, ok := categories[ans.QuestionID]
			if !ok || cat.ID != categoryID {
				continue
			}
			p.CategoryID = cat.ID
			p.CategoryName = cat.Name
			p.TotalAttempts++
			if ans.IsCorrect {
				p.CorrectAttempts++
			}
			if a.CompletedAt.After(p.LastAttemptDate) {
				p.LastAttemptDate = a.CompletedAt
			}
		}
	}
	if p.TotalAttempts == 0 {
		return nil
	}
	p.SuccessRate = rate(p.CorrectAttempts, p.TotalAttempts)
	return &p
}

// QuestionIDs lists the distinct question ids referenced by attempts.
func QuestionIDs(attempts []models.Attempt) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, a := range attempts {
		for _, ans := range a.Answers {
			if !seen[ans.QuestionID] {
				seen[ans.QuestionID] = true
				ids = append(ids, ans.QuestionID)
			}
		}
	}
	return ids
}

func rate(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// ScoreAnswers returns the percentage of correct answers, rounded to two
// decimals.
func ScoreAnswers(answers []models.AttemptAnswer) float64 {
	var correct int
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		}
	}
	return math.Round(rate(correct, len(answers))*10000) / 100
}
