package adaptive

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lsat-prep/adaptive/internal/models"
)

const (
	MaxRecommendations = 5
	ProgressWindow     = 5
	TrendThreshold     = 0.05

	lowRate      = 0.5
	moderateRate = 0.7
	masteredRate = 0.8
	declineLimit = -0.10
)

// IsCorrect grades a submission. Single-answer questions compare the first
// selected key; multi-select questions need the exact set of correct keys.
// Keys compare case- and whitespace-insensitively.
func IsCorrect(q models.Question, selected []string) bool {
	want := q.CorrectKeys()
	got := normalizeKeys(selected)
	if len(got) == 0 || len(want) == 0 {
		return false
	}

	if q.QuestionType != models.QuestionMultiple {
		return len(want) == 1 && got[0] == normalizeKey(want[0])
	}

	set := make(map[string]bool, len(got))
	for _, k := range got {
		set[k] = true
	}
	if len(set) != len(want) {
		return false
	}
	for _, k := range want {
		if !set[normalizeKey(k)] {
			return false
		}
	}
	return true
}

func normalizeKey(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if n := normalizeKey(k); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// CategoryResults groups graded questions by category, ordered by category
// id. When the snapshot has a rate for the category, the previous rate and
// the improvement over it are filled in.
func CategoryResults(qs []models.Question, correct map[int64]bool, snapshot *models.PerformanceSnapshot) []models.CategoryResult {
	byCat := make(map[int64]*models.CategoryResult)
	for _, q := range qs {
		r, ok := byCat[q.CategoryID]
		if !ok {
			r = &models.CategoryResult{CategoryID: q.CategoryID, CategoryName: q.CategoryName}
			byCat[q.CategoryID] = r
		}
		r.Total++
		if correct[q.ID] {
			r.Correct++
		} else {
			r.Incorrect++
		}
	}

	out := make([]models.CategoryResult, 0, len(byCat))
	for _, r := range byCat {
		r.SuccessRate = round2(float64(r.Correct) / float64(r.Total))
		if snapshot != nil {
			if prev := snapshot.Category(r.CategoryID); prev != nil {
				previous := prev.SuccessRate
				improvement := round2(r.SuccessRate - previous)
				r.PreviousRate = &previous
				r.ScoreImprovement = &improvement
			}
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}

// AverageCategoryRate is the unweighted mean of the category success rates.
func AverageCategoryRate(results []models.CategoryResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.SuccessRate
	}
	return round2(sum / float64(len(results)))
}

// Recommendations derives study advice from category results, high priority
// first, at most MaxRecommendations.
func Recommendations(results []models.CategoryResult) []models.Recommendation {
	recs := []models.Recommendation{}
	for _, r := range results {
		add := func(p models.Priority, action, msg string) {
			recs = append(recs, models.Recommendation{
				CategoryID:   r.CategoryID,
				CategoryName: r.CategoryName,
				Priority:     p,
				Action:       action,
				Message:      msg,
			})
		}
		pct := int(math.Round(r.SuccessRate * 100))

		switch {
		case r.SuccessRate < lowRate:
			add(models.PriorityHigh, "study_more",
				fmt.Sprintf("You answered %d%% of %s correctly. Revisit the core concepts before your next quiz.", pct, r.CategoryName))
			add(models.PriorityHigh, "practice",
				fmt.Sprintf("Work through additional %s practice questions.", r.CategoryName))
		case r.SuccessRate < moderateRate:
			add(models.PriorityMedium, "review",
				fmt.Sprintf("%s is improving at %d%%. Review the questions you missed.", r.CategoryName, pct))
		case r.SuccessRate >= masteredRate:
			add(models.PriorityLow, "maintain",
				fmt.Sprintf("Strong result in %s (%d%%). Keep it fresh with occasional review.", r.CategoryName, pct))
		}

		if r.ScoreImprovement != nil && *r.ScoreImprovement < declineLimit {
			add(models.PriorityHigh, "focus",
				fmt.Sprintf("Your %s score dropped %d points from your average. Focus here next.",
					r.CategoryName, int(math.Round(-*r.ScoreImprovement*100))))
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority.Rank() < recs[j].Priority.Rank() })
	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}

// CompareProgress compares the current average category rate with the mean
// of up to ProgressWindow earlier results, most recent first.
func CompareProgress(current float64, previous []models.AdaptiveResult) models.ProgressComparison {
	pc := models.ProgressComparison{CurrentScore: current, Trend: models.TrendStable}
	if len(previous) > ProgressWindow {
		previous = previous[:ProgressWindow]
	}
	if len(previous) == 0 {
		return pc
	}

	var sum float64
	for _, r := range previous {
		sum += r.AverageCategoryRate
	}
	avg := sum / float64(len(previous))
	delta := current - avg

	pc.PreviousAverage = round2(avg)
	pc.Delta = round2(delta)
	pc.ResultsCompared = len(previous)
	switch {
	case delta > TrendThreshold:
		pc.Trend = models.TrendImproving
	case delta < -TrendThreshold:
		pc.Trend = models.TrendDeclining
	}
	return pc
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
