package generator

import (
	"context"
	"fmt"
	"log"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/models"
)

// MaxBatch caps the questions requested from the model in one call.
const MaxBatch = 10

// QuestionSaver is the slice of the question bank the acquirer writes to;
// *questions.Store implements it.
type QuestionSaver interface {
	GetCategory(ctx context.Context, categoryID int64) (*models.Category, error)
	SaveQuestions(ctx context.Context, qs []models.Question) ([]models.Question, error)
}

// Acquirer tops up the question bank with generated questions.
type Acquirer struct {
	gen  *Generator
	bank QuestionSaver
}

func NewAcquirer(gen *Generator, bank QuestionSaver) *Acquirer {
	return &Acquirer{gen: gen, bank: bank}
}

// Acquire generates up to count questions for the category at the learner's
// level, stores the usable ones and returns them with ids assigned. It may
// return fewer than count.
func (a *Acquirer) Acquire(ctx context.Context, categoryID int64, level models.StudyLevel, count int) ([]models.Question, error) {
	if count <= 0 {
		return nil, nil
	}
	if count > MaxBatch {
		count = MaxBatch
	}

	category, err := a.bank.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}

	batch, resp, err := a.gen.GenerateBatch(ctx, *category, level, count)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire for category %d: %v", apperr.ErrTechnical, categoryID, err)
	}

	plan := DifficultyPlan(count)
	var usable []models.Question
	for i, g := range batch.Questions {
		if len(usable) == count {
			break
		}
		fallback := models.DifficultyMedium
		if i < len(plan) {
			fallback = plan[i]
		}
		q, err := g.ToQuestion(categoryID, level, fallback)
		if err != nil {
			log.Printf("[generator] WARN: dropping generated question %d for category %d: %v", i+1, categoryID, err)
			continue
		}
		if verdict := ClassifyQuality(ComputeQualityScore(ComputeStructuralScore(q))); verdict == "reject" {
			log.Printf("[generator] WARN: dropping generated question %d for category %d: quality %s", i+1, categoryID, verdict)
			continue
		}
		usable = append(usable, q)
	}

	log.Printf("[generator] category %d: %d/%d generated questions usable (model=%s, tokens in=%d out=%d)",
		categoryID, len(usable), len(batch.Questions), a.gen.ModelName(), resp.PromptTokens, resp.OutputTokens)

	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: no usable generated questions for category %d", apperr.ErrTechnical, categoryID)
	}

	saved, err := a.bank.SaveQuestions(ctx, usable)
	if err != nil {
		return nil, fmt.Errorf("save generated questions: %w", err)
	}
	return saved, nil
}
