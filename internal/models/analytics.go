package models

import "time"

type AttemptAnswer struct {
	QuestionID      int64  `json:"question_id"`
	SubmittedAnswer string `json:"submitted_answer"`
	IsCorrect       bool   `json:"is_correct"`
}

// Attempt is one completed quiz-taking record. Attempts are never updated.
type Attempt struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	QuizID      *int64          `json:"quiz_id,omitempty"`
	SessionID   *string         `json:"session_id,omitempty"`
	Answers     []AttemptAnswer `json:"answers"`
	FinalScore  *float64        `json:"final_score,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// HasValidScore reports whether the attempt counts toward analytics.
func (a Attempt) HasValidScore() bool {
	return a.FinalScore != nil && *a.FinalScore >= 0
}

type CategoryPerformance struct {
	CategoryID      int64     `json:"category_id"`
	CategoryName    string    `json:"category_name"`
	TotalAttempts   int       `json:"total_attempts"`
	CorrectAttempts int       `json:"correct_attempts"`
	SuccessRate     float64   `json:"success_rate"`
	LastAttemptDate time.Time `json:"last_attempt_date"`
}

type PerformanceSnapshot struct {
	UserID                 int64                 `json:"user_id"`
	OverallSuccessRate     float64               `json:"overall_success_rate"`
	TotalQuizzesTaken      int                   `json:"total_quizzes_taken"`
	TotalQuestionsAnswered int                   `json:"total_questions_answered"`
	CategoryPerformances   []CategoryPerformance `json:"category_performances"`
	WeakestCategories      []CategoryPerformance `json:"weakest_categories"`
	StrongestCategories    []CategoryPerformance `json:"strongest_categories"`
	ComputedAt             time.Time             `json:"computed_at"`
}

// Category returns the snapshot's entry for categoryID, or nil.
func (s *PerformanceSnapshot) Category(categoryID int64) *CategoryPerformance {
	if s == nil {
		return nil
	}
	for i := range s.CategoryPerformances {
		if s.CategoryPerformances[i].CategoryID == categoryID {
			return &s.CategoryPerformances[i]
		}
	}
	return nil
}

func CategoryIDs(perfs []CategoryPerformance) []int64 {
	ids := make([]int64, len(perfs))
	for i, p := range perfs {
		ids[i] = p.CategoryID
	}
	return ids
}
