package adaptive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Users ───────────────────────────────────────────────

func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	var level sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, study_level, created_at FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Email, &u.Name, &level, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if level.Valid {
		l := models.StudyLevel(level.String)
		u.StudyLevel = &l
	}
	return &u, nil
}

// ── Sessions ────────────────────────────────────────────

func (s *Store) CountSessionsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM adaptive_sessions WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *Store) LastSessionAt(ctx context.Context, userID int64) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM adaptive_sessions WHERE user_id = $1`, userID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last session: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.AdaptiveSession) error {
	distJSON, err := json.Marshal(sess.Distribution)
	if err != nil {
		return fmt.Errorf("encode distribution: %w", err)
	}
	snapJSON, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO adaptive_sessions
		 (id, user_id, question_ids, distribution, snapshot, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.UserID, pq.Array(sess.QuestionIDs), distJSON, snapJSON,
		sess.Status, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.AdaptiveSession, error) {
	var sess models.AdaptiveSession
	var ids pq.Int64Array
	var distJSON, snapJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, question_ids, distribution, snapshot, status, created_at, expires_at, completed_at
		 FROM adaptive_sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.ID, &sess.UserID, &ids, &distJSON, &snapJSON, &sess.Status,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.QuestionIDs = []int64(ids)
	if err := json.Unmarshal(distJSON, &sess.Distribution); err != nil {
		return nil, fmt.Errorf("decode distribution for session %s: %w", sessionID, err)
	}
	if len(snapJSON) > 0 {
		if err := json.Unmarshal(snapJSON, &sess.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot for session %s: %w", sessionID, err)
		}
	}
	return &sess, nil
}

func (s *Store) TransitionSession(ctx context.Context, sessionID string, from, to models.SessionStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE adaptive_sessions SET status = $3, completed_at = $4
		 WHERE id = $1 AND status = $2`,
		sessionID, from, to, at,
	)
	if err != nil {
		return false, fmt.Errorf("update session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update session status: %w", err)
	}
	return n == 1, nil
}

// RecentSessionQuestionIDs lists every question served to the user in
// sessions created since the given time.
func (s *Store) RecentSessionQuestionIDs(ctx context.Context, userID int64, since time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT unnest(question_ids) FROM adaptive_sessions
		 WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("recent session questions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ── Results ─────────────────────────────────────────────

func (s *Store) SaveResult(ctx context.Context, r *models.AdaptiveResult) error {
	catJSON, err := json.Marshal(r.CategoryResults)
	if err != nil {
		return fmt.Errorf("encode category results: %w", err)
	}
	recJSON, err := json.Marshal(r.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	progJSON, err := json.Marshal(r.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO adaptive_results
		 (session_id, user_id, overall_score, max_score, success_rate, average_category_rate,
		  category_results, recommendations, progress, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (session_id) DO NOTHING
		 RETURNING id`,
		r.SessionID, r.UserID, r.OverallScore, r.MaxScore, r.SuccessRate, r.AverageCategoryRate,
		catJSON, recJSON, progJSON, r.StartedAt, r.CompletedAt,
	).Scan(&r.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.State("session %s already submitted", r.SessionID)
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE adaptive_sessions SET status = 'completed', completed_at = $2
		 WHERE id = $1 AND status = 'active'`,
		r.SessionID, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("complete session: %w", err)
	} else if n != 1 {
		return apperr.State("session %s is no longer active", r.SessionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

func (s *Store) RecentResults(ctx context.Context, userID int64, limit int) ([]models.AdaptiveResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, overall_score, max_score, success_rate, average_category_rate,
		        category_results, recommendations, progress, started_at, completed_at
		 FROM adaptive_results
		 WHERE user_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	var out []models.AdaptiveResult
	for rows.Next() {
		var r models.AdaptiveResult
		var catJSON, recJSON, progJSON []byte
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.OverallScore, &r.MaxScore,
			&r.SuccessRate, &r.AverageCategoryRate, &catJSON, &recJSON, &progJSON,
			&r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(catJSON, &r.CategoryResults); err != nil {
			return nil, fmt.Errorf("decode category results for result %d: %w", r.ID, err)
		}
		if err := json.Unmarshal(recJSON, &r.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations for result %d: %w", r.ID, err)
		}
		if err := json.Unmarshal(progJSON, &r.Progress); err != nil {
			return nil, fmt.Errorf("decode progress for result %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ResultTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT completed_at FROM adaptive_results WHERE user_id = $1 AND completed_at >= $2`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("result times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan result time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
