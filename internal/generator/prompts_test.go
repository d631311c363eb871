package generator

import (
	"strings"
	"testing"

	"github.com/lsat-prep/adaptive/internal/models"
)

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt()

	required := []string{"JSON", "QUESTION RULES", "EXPLANATIONS", "DIFFICULTY", "exactly ONE correct"}
	for _, keyword := range required {
		if !strings.Contains(prompt, keyword) {
			t.Errorf("system prompt missing keyword %q", keyword)
		}
	}
}

func TestBuildUserPrompt(t *testing.T) {
	cat := models.Category{ID: 4, Name: "Conditional Logic"}
	prompt := BuildUserPrompt(cat, models.LevelB, 6)

	required := []string{"exactly 6", "Conditional Logic", "correct_keys", "question_type", "LEVEL B", "2 easy, 2 medium, 2 hard"}
	for _, keyword := range required {
		if !strings.Contains(prompt, keyword) {
			t.Errorf("user prompt missing %q", keyword)
		}
	}
	if strings.Contains(prompt, "LEVEL A") {
		t.Error("level B prompt should not carry level A guidance")
	}
}

func TestDifficultyPlan(t *testing.T) {
	tests := []struct {
		count, easy, medium, hard int
	}{
		{1, 0, 1, 0},
		{3, 1, 1, 1},
		{4, 1, 2, 1},
		{6, 2, 2, 2},
		{10, 3, 4, 3},
	}
	for _, tt := range tests {
		got := map[models.Difficulty]int{}
		plan := DifficultyPlan(tt.count)
		for _, d := range plan {
			got[d]++
		}
		if len(plan) != tt.count {
			t.Errorf("count %d: plan has %d entries", tt.count, len(plan))
		}
		if got[models.DifficultyEasy] != tt.easy || got[models.DifficultyMedium] != tt.medium || got[models.DifficultyHard] != tt.hard {
			t.Errorf("count %d: got %v", tt.count, got)
		}
	}
}
