package models

import "time"

type StudyLevel string

const (
	LevelA    StudyLevel = "A"
	LevelB    StudyLevel = "B"
	LevelBoth StudyLevel = "both"
)

// ValidStudyLevels are the levels a user may declare. "both" is only valid
// on questions.
var ValidStudyLevels = map[StudyLevel]bool{
	LevelA: true,
	LevelB: true,
}

type User struct {
	ID         int64       `json:"id"`
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	StudyLevel *StudyLevel `json:"study_level,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// HasStudyLevel reports whether the user declared a usable study level.
func (u User) HasStudyLevel() bool {
	return u.StudyLevel != nil && ValidStudyLevels[*u.StudyLevel]
}

type ErrorResponse struct {
	Error string `json:"error"`
}
