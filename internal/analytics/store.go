package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/lsat-prep/adaptive/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CountValidAttempts(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts
		 WHERE user_id = $1 AND final_score IS NOT NULL AND final_score >= 0`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count valid attempts: %w", err)
	}
	return n, nil
}

func (s *Store) ListValidAttempts(ctx context.Context, userID int64, limit int) ([]models.Attempt, error) {
	query := `SELECT id, user_id, quiz_id, session_id, answers, final_score, completed_at
		 FROM attempts
		 WHERE user_id = $1 AND final_score IS NOT NULL AND final_score >= 0
		 ORDER BY completed_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var answersJSON []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuizID, &a.SessionID, &answersJSON, &a.FinalScore, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal(answersJSON, &a.Answers); err != nil {
			return nil, fmt.Errorf("decode answers for attempt %d: %w", a.ID, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *Store) QuestionCategories(ctx context.Context, questionIDs []int64) (map[int64]models.Category, error) {
	out := make(map[int64]models.Category, len(questionIDs))
	if len(questionIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, c.id, c.name
		 FROM questions q
		 JOIN categories c ON c.id = q.category_id
		 WHERE q.id = ANY($1)`,
		pq.Array(questionIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("question categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var qid int64
		var c models.Category
		if err := rows.Scan(&qid, &c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan question category: %w", err)
		}
		out[qid] = c
	}
	return out, rows.Err()
}

func (s *Store) CreateAttempt(ctx context.Context, attempt *models.Attempt) (*models.Attempt, error) {
	answersJSON, err := json.Marshal(attempt.Answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}

	saved := *attempt
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO attempts (user_id, quiz_id, session_id, answers, final_score, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		attempt.UserID, attempt.QuizID, attempt.SessionID, answersJSON, attempt.FinalScore, attempt.CompletedAt,
	).Scan(&saved.ID)
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return &saved, nil
}
