package generator

import (
	"fmt"
	"strings"

	"github.com/lsat-prep/adaptive/internal/models"
	"github.com/lsat-prep/adaptive/internal/selection"
)

var levelGuidance = map[models.StudyLevel]string{
	models.LevelA: `
LEARNER LEVEL A (foundational):
- Test one idea per question; avoid chained reasoning steps
- Use plain vocabulary and short stems (1-3 sentences)
- Distractors should reflect the most common beginner misconceptions`,

	models.LevelB: `
LEARNER LEVEL B (advanced):
- Questions may combine two or more ideas from the category
- Stems may include a short scenario or data the learner must reason about
- Distractors should be plausible to someone who only half understands the topic`,
}

var difficultyGuidance = map[models.Difficulty]string{
	models.DifficultyEasy:   "Easy: the correct answer is clearly stronger than every distractor. One tempting distractor.",
	models.DifficultyMedium: "Medium: requires careful reading. Two tempting distractors.",
	models.DifficultyHard:   "Hard: the correct answer and a close second differ in a subtle way. Three tempting distractors.",
}

// SystemPrompt is shared by every acquisition request.
func SystemPrompt() string {
	return `You are an experienced assessment writer producing practice questions for an adaptive learning platform. Each question you write is served to a single learner who is weak in the requested category, so questions must teach as well as test.

QUESTION RULES:
- One self-contained stem per question; no references to other questions
- Between 4 and 5 answer options labeled with single uppercase letters starting at A
- "single" questions have exactly ONE correct option
- "multiple" questions have between 2 and 3 correct options and the stem must say "Select all that apply"
- Every wrong option must be wrong for a specific, identifiable reason
- Options vary in structure and length; the correct option is not systematically the longest

EXPLANATIONS:
- 2-4 sentences explaining why the correct option(s) are correct
- Name the misconception behind the most tempting wrong option

DIFFICULTY CALIBRATION:
- ` + difficultyGuidance[models.DifficultyEasy] + `
- ` + difficultyGuidance[models.DifficultyMedium] + `
- ` + difficultyGuidance[models.DifficultyHard] + `

You must respond with valid JSON only. No markdown, no explanation outside the JSON.`
}

// DifficultyPlan spreads count questions over easy, medium and hard using
// the same split quiz selection balances toward.
func DifficultyPlan(count int) []models.Difficulty {
	targets := selection.DifficultyTargets(count)
	plan := make([]models.Difficulty, 0, max(count, 0))
	for _, d := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
		for i := 0; i < targets[d]; i++ {
			plan = append(plan, d)
		}
	}
	return plan
}

func BuildUserPrompt(category models.Category, level models.StudyLevel, count int) string {
	var mix []string
	counts := map[models.Difficulty]int{}
	for _, d := range DifficultyPlan(count) {
		counts[d]++
	}
	for _, d := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
		if counts[d] > 0 {
			mix = append(mix, fmt.Sprintf("%d %s", counts[d], d))
		}
	}

	return fmt.Sprintf(`Generate exactly %d practice questions.

Category: %s
Difficulty mix: %s
%s

Respond with this exact JSON structure:
{
  "questions": [
    {
      "difficulty": "medium",
      "question_type": "single",
      "stem": "...",
      "options": [
        {"key": "A", "text": "..."},
        {"key": "B", "text": "..."},
        {"key": "C", "text": "..."},
        {"key": "D", "text": "..."}
      ],
      "correct_keys": ["B"],
      "explanation": "..."
    }
  ]
}

Requirements:
- Every question must stay inside the category "%s"
- Each question must cover a DIFFERENT aspect of the category
- At most one "multiple" question per 4 questions
- Vary the position of the correct answer; do not cluster correct answers on one letter`,
		count, category.Name, strings.Join(mix, ", "), levelGuidance[level], category.Name)
}
