package questions

import (
	"context"
	"fmt"

	"github.com/lsat-prep/adaptive/internal/models"
)

// Bank is the persistence the service needs; *Store implements it.
type Bank interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetQuestion(ctx context.Context, id int64) (*models.Question, error)
	SaveQuestions(ctx context.Context, qs []models.Question) ([]models.Question, error)
}

type Service struct {
	bank Bank
}

func NewService(bank Bank) *Service {
	return &Service{bank: bank}
}

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.bank.ListCategories(ctx)
}

// GetQuestion returns the learner-facing view of a question.
func (s *Service) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	q, err := s.bank.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	out := q.Sanitized()
	return &out, nil
}

// AddQuestions validates every question before storing any of them.
func (s *Service) AddQuestions(ctx context.Context, qs []models.Question) ([]models.Question, error) {
	for i, q := range qs {
		if err := ValidateQuestion(q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return s.bank.SaveQuestions(ctx, qs)
}
