package selection

import (
	"math"
	"math/rand"

	"github.com/lsat-prep/adaptive/internal/models"
)

const (
	DefaultTotal     = 7
	DefaultWeakRatio = 0.7
	MinCandidatePool = 50
)

// Targets splits total into weak and strong counts.
func Targets(total int, weakRatio float64) (weak, strong int) {
	weak = int(math.Round(float64(total) * weakRatio))
	if weak > total {
		weak = total
	}
	return weak, total - weak
}

// AdjustTargets shrinks each target to its availability and moves the
// deficit to the other side as far as that side's headroom allows. The
// result never exceeds availWeak+availStrong.
func AdjustTargets(targetWeak, targetStrong, availWeak, availStrong int) (weak, strong int) {
	weak = min(targetWeak, availWeak)
	strong = min(targetStrong, availStrong)

	weakDeficit := targetWeak - weak
	strongDeficit := targetStrong - strong

	if weakDeficit > 0 {
		strong += min(weakDeficit, availStrong-strong)
	}
	if strongDeficit > 0 {
		weak += min(strongDeficit, availWeak-weak)
	}
	return weak, strong
}

// CandidatePoolSize is how many candidates to fetch to pick count items.
func CandidatePoolSize(count int) int {
	return max(3*count, MinCandidatePool)
}

// Shuffle permutes qs in place (Fisher–Yates).
func Shuffle(rng *rand.Rand, qs []models.Question) {
	for i := len(qs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}

// DifficultyTargets returns the easy/medium/hard split for count items:
// easy and hard each get 30% rounded half up, medium takes the remainder.
func DifficultyTargets(count int) map[models.Difficulty]int {
	if count <= 0 {
		return map[models.Difficulty]int{}
	}
	easy := (count*3 + 5) / 10
	hard := easy
	return map[models.Difficulty]int{
		models.DifficultyEasy:   easy,
		models.DifficultyMedium: count - easy - hard,
		models.DifficultyHard:   hard,
	}
}

// BalanceDifficulty picks count questions from pool, filling each
// difficulty bucket up to its target in pool order and then backfilling
// any shortfall from the unused candidates.
func BalanceDifficulty(pool []models.Question, count int) []models.Question {
	if count >= len(pool) {
		return append([]models.Question(nil), pool...)
	}

	targets := DifficultyTargets(count)
	used := make([]bool, len(pool))
	picked := make([]models.Question, 0, count)

	for i, q := range pool {
		if len(picked) == count {
			break
		}
		if targets[q.Difficulty] > 0 {
			targets[q.Difficulty]--
			used[i] = true
			picked = append(picked, q)
		}
	}

	for i, q := range pool {
		if len(picked) == count {
			break
		}
		if !used[i] {
			used[i] = true
			picked = append(picked, q)
		}
	}
	return picked
}

// take returns the first count items of pool, or all of it.
func take(pool []models.Question, count int) []models.Question {
	if count > len(pool) {
		count = len(pool)
	}
	return append([]models.Question(nil), pool[:count]...)
}
