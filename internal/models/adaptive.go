package models

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
	SessionAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionExpired || s == SessionAbandoned
}

type Distribution struct {
	WeakCategories   []int64 `json:"weak_categories"`
	StrongCategories []int64 `json:"strong_categories"`
	TargetWeak       int     `json:"target_weak"`
	TargetStrong     int     `json:"target_strong"`
	ActualWeak       int     `json:"actual_weak"`
	ActualStrong     int     `json:"actual_strong"`
	Acquired         int     `json:"acquired"`
}

type AdaptiveSession struct {
	ID           string               `json:"id"`
	UserID       int64                `json:"user_id"`
	QuestionIDs  []int64              `json:"question_ids"`
	Distribution Distribution         `json:"distribution"`
	Snapshot     *PerformanceSnapshot `json:"snapshot,omitempty"`
	Status       SessionStatus        `json:"status"`
	CreatedAt    time.Time            `json:"created_at"`
	ExpiresAt    time.Time            `json:"expires_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// Expired reports whether an active session has outlived its expiry.
func (s AdaptiveSession) Expired(now time.Time) bool {
	return s.Status == SessionActive && !now.Before(s.ExpiresAt)
}

type QuizMetadata struct {
	Distribution        Distribution `json:"distribution"`
	WeakCategoryNames   []string     `json:"weak_category_names"`
	StrongCategoryNames []string     `json:"strong_category_names"`
	OverallSuccessRate  float64      `json:"overall_success_rate"`
	ExpiresAt           time.Time    `json:"expires_at"`
}

type GeneratedQuiz struct {
	SessionID string       `json:"session_id"`
	Questions []Question   `json:"questions"`
	Metadata  QuizMetadata `json:"metadata"`
}

// SubmittedAnswer carries the option keys the learner chose. Single-answer
// questions use the first key only.
type SubmittedAnswer struct {
	QuestionID int64    `json:"question_id"`
	Selected   []string `json:"selected"`
}

type SubmitRequest struct {
	Answers []SubmittedAnswer `json:"answers"`
}

type CategoryResult struct {
	CategoryID       int64    `json:"category_id"`
	CategoryName     string   `json:"category_name"`
	Correct          int      `json:"correct"`
	Incorrect        int      `json:"incorrect"`
	Total            int      `json:"total"`
	SuccessRate      float64  `json:"success_rate"`
	PreviousRate     *float64 `json:"previous_rate,omitempty"`
	ScoreImprovement *float64 `json:"score_improvement,omitempty"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Recommendation struct {
	CategoryID   int64    `json:"category_id"`
	CategoryName string   `json:"category_name"`
	Priority     Priority `json:"priority"`
	Action       string   `json:"action"`
	Message      string   `json:"message"`
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

type ProgressComparison struct {
	CurrentScore    float64 `json:"current_score"`
	PreviousAverage float64 `json:"previous_average"`
	Delta           float64 `json:"delta"`
	Trend           Trend   `json:"trend"`
	StreakDays      int     `json:"streak_days"`
	ResultsCompared int     `json:"results_compared"`
}

type AdaptiveResult struct {
	ID                  int64              `json:"id"`
	SessionID           string             `json:"session_id"`
	UserID              int64              `json:"user_id"`
	OverallScore        int                `json:"overall_score"`
	MaxScore            int                `json:"max_score"`
	SuccessRate         float64            `json:"success_rate"`
	AverageCategoryRate float64            `json:"average_category_rate"`
	CategoryResults     []CategoryResult   `json:"category_results"`
	Recommendations     []Recommendation   `json:"recommendations"`
	Progress            ProgressComparison `json:"progress"`
	StartedAt           time.Time          `json:"started_at"`
	CompletedAt         time.Time          `json:"completed_at"`
}
