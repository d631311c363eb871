package questions

import (
	"fmt"
	"strings"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/models"
)

var validStudentLevels = map[models.StudyLevel]bool{
	models.LevelA:    true,
	models.LevelB:    true,
	models.LevelBoth: true,
}

// ValidateQuestion checks a question before it is stored. Single-answer
// questions need exactly one correct option, multi-select at least one.
func ValidateQuestion(q models.Question) error {
	var errs []string

	if q.CategoryID <= 0 {
		errs = append(errs, "category_id is required")
	}
	if !models.ValidDifficulties[q.Difficulty] {
		errs = append(errs, fmt.Sprintf("invalid difficulty %q", q.Difficulty))
	}
	if !validStudentLevels[q.StudentLevel] {
		errs = append(errs, fmt.Sprintf("invalid student_level %q", q.StudentLevel))
	}
	if strings.TrimSpace(q.Stem) == "" {
		errs = append(errs, "stem is required")
	}
	if len(q.Options) < 2 {
		errs = append(errs, fmt.Sprintf("expected at least 2 options, got %d", len(q.Options)))
	}

	keys := make(map[string]bool)
	correct := 0
	for i, o := range q.Options {
		key := strings.TrimSpace(o.Key)
		if key == "" {
			errs = append(errs, fmt.Sprintf("option %d has empty key", i+1))
		} else if keys[key] {
			errs = append(errs, fmt.Sprintf("duplicate option key %q", key))
		}
		keys[key] = true
		if strings.TrimSpace(o.Text) == "" {
			errs = append(errs, fmt.Sprintf("option %q has empty text", key))
		}
		if o.IsCorrect {
			correct++
		}
	}

	switch q.QuestionType {
	case models.QuestionSingle:
		if correct != 1 {
			errs = append(errs, fmt.Sprintf("single-answer question needs exactly 1 correct option, got %d", correct))
		}
	case models.QuestionMultiple:
		if correct < 1 {
			errs = append(errs, "multi-select question needs at least 1 correct option")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid question_type %q", q.QuestionType))
	}

	if len(errs) > 0 {
		return apperr.Validation("%s", strings.Join(errs, "; "))
	}
	return nil
}
