package generator

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lsat-prep/adaptive/internal/models"
	"github.com/lsat-prep/adaptive/internal/questions"
)

type GeneratedBatch struct {
	Questions []GeneratedQuestion `json:"questions"`
}

type GeneratedQuestion struct {
	Difficulty   models.Difficulty   `json:"difficulty"`
	QuestionType models.QuestionType `json:"question_type"`
	Stem         string              `json:"stem"`
	Options      []GeneratedOption   `json:"options"`
	CorrectKeys  []string            `json:"correct_keys"`
	Explanation  string              `json:"explanation"`
}

type GeneratedOption struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

func ParseResponse(responseBody string) (*GeneratedBatch, error) {
	cleaned := stripCodeFences(responseBody)

	var batch GeneratedBatch
	if err := json.Unmarshal([]byte(cleaned), &batch); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if len(batch.Questions) == 0 {
		return nil, &ValidationError{Errors: []string{"no questions in batch"}}
	}

	checkAnswerClustering(batch.Questions)
	checkTopicDiversity(batch.Questions)

	return &batch, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// ToQuestion converts a generated item into a bank question for the category
// and level. The result is checked with the same rules as hand-authored
// questions; a missing or unknown difficulty falls back to fallback.
func (g GeneratedQuestion) ToQuestion(categoryID int64, level models.StudyLevel, fallback models.Difficulty) (models.Question, error) {
	correct := make(map[string]bool, len(g.CorrectKeys))
	for _, k := range g.CorrectKeys {
		correct[strings.ToUpper(strings.TrimSpace(k))] = true
	}

	q := models.Question{
		CategoryID:   categoryID,
		Difficulty:   g.Difficulty,
		StudentLevel: level,
		QuestionType: g.QuestionType,
		Stem:         strings.TrimSpace(g.Stem),
		Explanation:  strings.TrimSpace(g.Explanation),
		Source:       models.SourceGenerated,
	}
	if !models.ValidDifficulties[q.Difficulty] {
		q.Difficulty = fallback
	}
	if q.QuestionType == "" {
		q.QuestionType = models.QuestionSingle
	}

	found := make(map[string]bool, len(correct))
	for _, o := range g.Options {
		key := strings.ToUpper(strings.TrimSpace(o.Key))
		if correct[key] {
			found[key] = true
		}
		q.Options = append(q.Options, models.QuestionOption{
			Key:       key,
			Text:      strings.TrimSpace(o.Text),
			IsCorrect: correct[key],
		})
	}
	if len(found) != len(correct) {
		return models.Question{}, &ValidationError{Errors: []string{
			fmt.Sprintf("correct_keys %v reference options that do not exist", g.CorrectKeys),
		}}
	}
	if q.Explanation == "" {
		return models.Question{}, &ValidationError{Errors: []string{"empty explanation"}}
	}

	if err := questions.ValidateQuestion(q); err != nil {
		return models.Question{}, err
	}
	return q, nil
}

// checkAnswerClustering warns (but does not reject) when one key is the
// answer to most single-answer questions in a batch.
func checkAnswerClustering(qs []GeneratedQuestion) {
	counts := make(map[string]int)
	singles := 0
	for _, q := range qs {
		if q.QuestionType == models.QuestionMultiple || len(q.CorrectKeys) != 1 {
			continue
		}
		singles++
		counts[strings.ToUpper(q.CorrectKeys[0])]++
	}
	for key, n := range counts {
		if n > 2 && singles >= 4 && n*2 > singles {
			log.Printf("[generator] WARN: correct answer %q appears %d times in %d single-answer questions", key, n, singles)
		}
	}
}

// checkTopicDiversity warns if any two stems share >60% keyword overlap.
func checkTopicDiversity(qs []GeneratedQuestion) {
	if len(qs) < 2 {
		return
	}

	tokenSets := make([]map[string]bool, len(qs))
	for i, q := range qs {
		tokenSets[i] = tokenize(q.Stem)
	}

	for i := 0; i < len(qs); i++ {
		for j := i + 1; j < len(qs); j++ {
			overlap := jaccardSimilarity(tokenSets[i], tokenSets[j])
			if overlap > 0.60 {
				log.Printf("[generator] WARN: questions %d and %d have %.0f%% keyword overlap", i+1, j+1, overlap*100)
			}
		}
	}
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(s)) {
		// skip articles and prepositions
		if len(word) > 3 {
			tokens[word] = true
		}
	}
	return tokens
}

func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
