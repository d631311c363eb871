package models

import (
	"sort"
	"time"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
}

type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
)

type QuestionSource string

const (
	SourcePool      QuestionSource = "pool"
	SourceGenerated QuestionSource = "generated"
)

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type QuestionOption struct {
	Key       string `json:"key"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Question struct {
	ID           int64            `json:"id"`
	CategoryID   int64            `json:"category_id"`
	CategoryName string           `json:"category_name,omitempty"`
	Difficulty   Difficulty       `json:"difficulty"`
	StudentLevel StudyLevel       `json:"student_level"`
	QuestionType QuestionType     `json:"question_type"`
	Stem         string           `json:"stem"`
	Explanation  string           `json:"explanation,omitempty"`
	Options      []QuestionOption `json:"options"`
	TimesServed  int              `json:"times_served"`
	TimesCorrect int              `json:"times_correct"`
	Source       QuestionSource   `json:"source"`
	CreatedAt    time.Time        `json:"created_at"`
}

// CorrectKeys returns the keys of all options marked correct, sorted.
func (q Question) CorrectKeys() []string {
	var keys []string
	for _, o := range q.Options {
		if o.IsCorrect {
			keys = append(keys, o.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Sanitized returns a copy safe to send to a learner: correctness markers
// and the explanation are removed.
func (q Question) Sanitized() Question {
	out := q
	out.Explanation = ""
	out.Options = make([]QuestionOption, len(q.Options))
	for i, o := range q.Options {
		out.Options[i] = QuestionOption{Key: o.Key, Text: o.Text}
	}
	return out
}
