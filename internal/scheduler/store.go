package scheduler

import (
	"context"
	"database/sql"
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

// ── Schedules ───────────────────────────────────────────

func (s *Store) CreateSchedule(ctx context.Context, sched *models.Schedule, task *models.ReviewTask) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sr_schedules
		 (id, user_id, deck_name, total_cards, active_cards, completed_cards, average_ease_factor, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sched.ID, sched.UserID, sched.DeckName, sched.TotalCards, sched.ActiveCards,
		sched.CompletedCards, sched.AverageEaseFactor, sched.CreatedAt, sched.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sr_cards
		 (schedule_id, question_id, ease_factor, interval_days, repetitions, next_review_date)
		 VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("prepare card insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range sched.Cards {
		if _, err := stmt.ExecContext(ctx, sched.ID, c.QuestionID, c.EaseFactor, c.Interval, c.Repetitions, c.NextReviewDate); err != nil {
			return fmt.Errorf("insert card %d: %w", c.QuestionID, err)
		}
	}

	if task != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sr_review_tasks (id, schedule_id, user_id, question_ids, due_at, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			task.ID, task.ScheduleID, task.UserID, pq.Array(task.QuestionIDs), task.DueAt, task.Status, task.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert review task: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	var sched models.Schedule
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, deck_name, total_cards, active_cards, completed_cards,
		        average_ease_factor, version, created_at, updated_at
		 FROM sr_schedules WHERE id = $1`,
		scheduleID,
	).Scan(&sched.ID, &sched.UserID, &sched.DeckName, &sched.TotalCards, &sched.ActiveCards,
		&sched.CompletedCards, &sched.AverageEaseFactor, &sched.Version, &sched.CreatedAt, &sched.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("schedule", scheduleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT schedule_id, question_id, ease_factor, interval_days, repetitions,
		        next_review_date, last_review_date, quality
		 FROM sr_cards WHERE schedule_id = $1 ORDER BY question_id`,
		scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		sched.Cards = append(sched.Cards, c)
	}
	return &sched, rows.Err()
}

// SaveReviews rewrites only the reviewed card rows plus the schedule
// aggregates, and appends the review events. The schedule row is claimed
// first with a version check, which also locks it until commit.
func (s *Store) SaveReviews(ctx context.Context, sched *models.Schedule, reviewed []models.Card, events []ReviewEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sr_schedules
		 SET total_cards = $1, active_cards = $2, completed_cards = $3,
		     average_ease_factor = $4, updated_at = $5, version = version + 1
		 WHERE id = $6 AND version = $7`,
		sched.TotalCards, sched.ActiveCards, sched.CompletedCards, sched.AverageEaseFactor, sched.UpdatedAt,
		sched.ID, sched.Version,
	)
	if err != nil {
		return fmt.Errorf("update schedule aggregates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update schedule aggregates: %w", err)
	}
	if n != 1 {
		return ErrConcurrentUpdate
	}

	for _, c := range reviewed {
		_, err := tx.ExecContext(ctx,
			`UPDATE sr_cards
			 SET ease_factor = $1, interval_days = $2, repetitions = $3,
			     next_review_date = $4, last_review_date = $5, quality = $6
			 WHERE schedule_id = $7 AND question_id = $8`,
			c.EaseFactor, c.Interval, c.Repetitions, c.NextReviewDate, c.LastReviewDate, c.Quality,
			sched.ID, c.QuestionID,
		)
		if err != nil {
			return fmt.Errorf("update card %d: %w", c.QuestionID, err)
		}
	}

	for _, e := range events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sr_review_events (schedule_id, question_id, user_id, quality, reviewed_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			e.ScheduleID, e.QuestionID, e.UserID, e.Quality, e.ReviewedAt,
		)
		if err != nil {
			return fmt.Errorf("insert review event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reviews: %w", err)
	}
	sched.Version++
	return nil
}

// ── Cross-schedule Queries ──────────────────────────────

func (s *Store) ListUserCards(ctx context.Context, userID int64) ([]models.DueCard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.schedule_id, c.question_id, c.ease_factor, c.interval_days, c.repetitions,
		        c.next_review_date, c.last_review_date, c.quality, s.deck_name
		 FROM sr_cards c
		 JOIN sr_schedules s ON s.id = c.schedule_id
		 WHERE s.user_id = $1
		 ORDER BY c.next_review_date ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user cards: %w", err)
	}
	defer rows.Close()

	var cards []models.DueCard
	for rows.Next() {
		var d models.DueCard
		var quality sql.NullInt16
		if err := rows.Scan(&d.ScheduleID, &d.QuestionID, &d.EaseFactor, &d.Interval, &d.Repetitions,
			&d.NextReviewDate, &d.LastReviewDate, &quality, &d.DeckName); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		if quality.Valid {
			q := int(quality.Int16)
			d.Quality = &q
		}
		cards = append(cards, d)
	}
	return cards, rows.Err()
}

func (s *Store) ReviewTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reviewed_at FROM sr_review_events
		 WHERE user_id = $1 AND reviewed_at >= $2
		 ORDER BY reviewed_at DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("review times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan review time: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func scanCard(rows *sql.Rows) (models.Card, error) {
	var c models.Card
	var quality sql.NullInt16
	if err := rows.Scan(&c.ScheduleID, &c.QuestionID, &c.EaseFactor, &c.Interval, &c.Repetitions,
		&c.NextReviewDate, &c.LastReviewDate, &quality); err != nil {
		return c, fmt.Errorf("scan card: %w", err)
	}
	if quality.Valid {
		q := int(quality.Int16)
		c.Quality = &q
	}
	return c, nil
}
