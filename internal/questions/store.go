package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

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

const questionCols = `q.id, q.category_id, c.name, q.difficulty, q.student_level, q.question_type,
		        q.stem, q.explanation, q.options, q.times_served, q.times_correct, q.source, q.created_at`

// ── Categories ──────────────────────────────────────────

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *Store) GetCategory(ctx context.Context, categoryID int64) (*models.Category, error) {
	var c models.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = $1`, categoryID).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("category", categoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// ── Selection Queries ───────────────────────────────────

// CountAvailable counts questions in the category that a learner at level
// may see, ignoring excluded ids.
func (s *Store) CountAvailable(ctx context.Context, categoryID int64, level models.StudyLevel, excludeIDs []int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions
		 WHERE category_id = $1
		   AND student_level IN ($2, 'both')
		   AND NOT (id = ANY($3))`,
		categoryID, level, pq.Array(nonNil(excludeIDs)),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count available: %w", err)
	}
	return n, nil
}

// ListCandidates returns up to limit questions from the categories, least
// served first with random tie order.
func (s *Store) ListCandidates(ctx context.Context, categoryIDs []int64, level models.StudyLevel, excludeIDs []int64, limit int) ([]models.Question, error) {
	if len(categoryIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s
		 FROM questions q
		 JOIN categories c ON c.id = q.category_id
		 WHERE q.category_id = ANY($1)
		   AND q.student_level IN ($2, 'both')
		   AND NOT (q.id = ANY($3))
		 ORDER BY q.times_served ASC, random()
		 LIMIT $4`, questionCols),
		pq.Array(categoryIDs), level, pq.Array(nonNil(excludeIDs)), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()
	return scanQuestions(rows)
}

// GetByIDs loads questions keyed by id. Missing ids are absent from the map.
func (s *Store) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Question, error) {
	out := make(map[int64]models.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s
		 FROM questions q
		 JOIN categories c ON c.id = q.category_id
		 WHERE q.id = ANY($1)`, questionCols),
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	defer rows.Close()

	qs, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	for _, q := range qs {
		out[q.ID] = q
	}
	return out, nil
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	qs, err := s.GetByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	q, ok := qs[id]
	if !ok {
		return nil, apperr.NotFound("question", id)
	}
	return &q, nil
}

// ── Storage ─────────────────────────────────────────────

// SaveQuestions inserts questions in one transaction and returns them with
// ids and category names filled in.
func (s *Store) SaveQuestions(ctx context.Context, qs []models.Question) ([]models.Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	saved := make([]models.Question, 0, len(qs))
	for _, q := range qs {
		optionsJSON, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("encode options: %w", err)
		}
		if q.Source == "" {
			q.Source = models.SourcePool
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO questions
			 (category_id, difficulty, student_level, question_type, stem, explanation, options, source)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, created_at, (SELECT name FROM categories WHERE id = $1)`,
			q.CategoryID, q.Difficulty, q.StudentLevel, q.QuestionType,
			q.Stem, q.Explanation, optionsJSON, q.Source,
		).Scan(&q.ID, &q.CreatedAt, &q.CategoryName)
		if err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
		saved = append(saved, q)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit questions: %w", err)
	}
	return saved, nil
}

// ── Usage Counters ──────────────────────────────────────

// RecordUsage bumps times_served for every id and times_correct for the
// correctly answered subset.
func (s *Store) RecordUsage(ctx context.Context, served []int64, correct []int64) error {
	if len(served) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE questions
		 SET times_served = times_served + 1,
		     times_correct = times_correct + CASE WHEN id = ANY($2) THEN 1 ELSE 0 END
		 WHERE id = ANY($1)`,
		pq.Array(served), pq.Array(nonNil(correct)),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func scanQuestions(rows *sql.Rows) ([]models.Question, error) {
	var qs []models.Question
	for rows.Next() {
		var q models.Question
		var optionsJSON []byte
		if err := rows.Scan(&q.ID, &q.CategoryID, &q.CategoryName, &q.Difficulty, &q.StudentLevel,
			&q.QuestionType, &q.Stem, &q.Explanation, &optionsJSON,
			&q.TimesServed, &q.TimesCorrect, &q.Source, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", q.ID, err)
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

// pq encodes a nil slice as NULL, which ANY() treats as unknown.
func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
