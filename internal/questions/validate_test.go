package questions

import (
	"errors"
	"strings"
	"testing"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/models"
)

func validQuestion() models.Question {
	return models.Question{
		CategoryID:   1,
		Difficulty:   models.DifficultyMedium,
		StudentLevel: models.LevelBoth,
		QuestionType: models.QuestionSingle,
		Stem:         "Which of the following most strengthens the argument?",
		Options: []models.QuestionOption{
			{Key: "A", Text: "First"},
			{Key: "B", Text: "Second", IsCorrect: true},
			{Key: "C", Text: "Third"},
		},
	}
}

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(q *models.Question)
		wantErr string
	}{
		{"valid single", func(q *models.Question) {}, ""},
		{"valid multiple", func(q *models.Question) {
			q.QuestionType = models.QuestionMultiple
			q.Options[0].IsCorrect = true
		}, ""},
		{"missing category", func(q *models.Question) { q.CategoryID = 0 }, "category_id"},
		{"bad difficulty", func(q *models.Question) { q.Difficulty = "extreme" }, "difficulty"},
		{"bad level", func(q *models.Question) { q.StudentLevel = "C" }, "student_level"},
		{"empty stem", func(q *models.Question) { q.Stem = "  " }, "stem"},
		{"two correct on single", func(q *models.Question) { q.Options[0].IsCorrect = true }, "exactly 1 correct"},
		{"none correct on multiple", func(q *models.Question) {
			q.QuestionType = models.QuestionMultiple
			q.Options[1].IsCorrect = false
		}, "at least 1 correct"},
		{"duplicate keys", func(q *models.Question) { q.Options[2].Key = "A" }, "duplicate option key"},
		{"too few options", func(q *models.Question) { q.Options = q.Options[1:2] }, "at least 2 options"},
		{"bad type", func(q *models.Question) { q.QuestionType = "essay" }, "question_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion()
			q.Options = append([]models.QuestionOption(nil), q.Options...)
			tt.mutate(&q)

			err := ValidateQuestion(q)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}
