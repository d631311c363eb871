package models

import "time"

type DifficultyHint string

const (
	HintNone   DifficultyHint = ""
	HintEasy   DifficultyHint = "easy"
	HintMedium DifficultyHint = "medium"
	HintHard   DifficultyHint = "hard"
)

// Card is the SM-2 state of one question inside a schedule.
type Card struct {
	ScheduleID     string     `json:"schedule_id"`
	QuestionID     int64      `json:"question_id"`
	EaseFactor     float64    `json:"ease_factor"`
	Interval       int        `json:"interval"`
	Repetitions    int        `json:"repetitions"`
	NextReviewDate time.Time  `json:"next_review_date"`
	LastReviewDate *time.Time `json:"last_review_date,omitempty"`
	Quality        *int       `json:"quality,omitempty"`
}

type Schedule struct {
	ID                string    `json:"id"`
	UserID            int64     `json:"user_id"`
	DeckName          string    `json:"deck_name"`
	Cards             []Card    `json:"cards"`
	TotalCards        int       `json:"total_cards"`
	ActiveCards       int       `json:"active_cards"`
	CompletedCards    int       `json:"completed_cards"`
	AverageEaseFactor float64   `json:"average_ease_factor"`
	Version           int       `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ReviewTask struct {
	ID          string    `json:"id"`
	ScheduleID  string    `json:"schedule_id"`
	UserID      int64     `json:"user_id"`
	QuestionIDs []int64   `json:"question_ids"`
	DueAt       time.Time `json:"due_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateScheduleRequest struct {
	DeckName       string         `json:"deck_name"`
	QuestionIDs    []int64        `json:"question_ids"`
	DifficultyHint DifficultyHint `json:"difficulty_hint,omitempty"`
}

type ReviewResult struct {
	QuestionID int64 `json:"question_id"`
	Quality    int   `json:"quality"`
}

type ReviewRequest struct {
	Results []ReviewResult `json:"results"`
}

// DueCard is a card selected into a review session.
type DueCard struct {
	Card
	DeckName    string  `json:"deck_name"`
	DaysOverdue float64 `json:"days_overdue"`
}

type ReviewSession struct {
	ID                string    `json:"id"`
	UserID            int64     `json:"user_id"`
	Cards             []DueCard `json:"cards"`
	CardCount         int       `json:"card_count"`
	EstimatedDuration int       `json:"estimated_duration_minutes"`
	CreatedAt         time.Time `json:"created_at"`
}

type ProgressStats struct {
	TotalCards        int        `json:"total_cards"`
	ActiveCards       int        `json:"active_cards"`
	CompletedCards    int        `json:"completed_cards"`
	AverageEaseFactor float64    `json:"average_ease_factor"`
	NextReviewDate    *time.Time `json:"next_review_date,omitempty"`
	StreakDays        int        `json:"streak_days"`
}
