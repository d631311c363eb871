package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ADAPTIVE_COOLDOWN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("ADAPTIVE_QUIZ_SIZE", "")

	cfg := Load()
	if cfg.QuizSize != 7 {
		t.Errorf("QuizSize = %d, want 7", cfg.QuizSize)
	}
	if cfg.Cooldown != 5*time.Minute {
		t.Errorf("Cooldown = %s, want 5m", cfg.Cooldown)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty", cfg.RedisAddr)
	}
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"0", 0},
		{"90", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"bogus", time.Hour},
	}

	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.value)
		if got := getDuration("TEST_DURATION", time.Hour); got != tt.want {
			t.Errorf("getDuration(%q) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.test, ,http://b.test ")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("splitList = %v", got)
	}
}
