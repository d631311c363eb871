package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	DB DBConfig

	// Empty RedisAddr selects the in-process analytics cache.
	RedisAddr         string
	AnalyticsCacheTTL time.Duration

	DailyLimit  int
	Cooldown    time.Duration
	QuizSize    int
	WeakRatio   float64
	SessionTTL  time.Duration
	RecentDays  int
	ReviewLimit int

	JWTSecret      string
	AllowedOrigins []string

	// ItemAcquisition is "pool" or "llm".
	ItemAcquisition string
	MockGenerator   bool
	GeneratorCLI    string
	AnthropicModel  string
	AnthropicAPIKey string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return "host=" + c.Host + " port=" + c.Port + " user=" + c.User +
		" password=" + c.Password + " dbname=" + c.Name + " sslmode=" + c.SSLMode
}

func Load() *Config {
	// .env is optional
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "lsat_user"),
			Password: getEnv("DB_PASSWORD", "lsat_password"),
			Name:     getEnv("DB_NAME", "lsat_prep"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		AnalyticsCacheTTL: getDuration("ANALYTICS_CACHE_TTL", 30*time.Minute),
		DailyLimit:        getInt("ADAPTIVE_DAILY_LIMIT", 10),
		Cooldown:          getDuration("ADAPTIVE_COOLDOWN", 5*time.Minute),
		QuizSize:          getInt("ADAPTIVE_QUIZ_SIZE", 7),
		WeakRatio:         getFloat("ADAPTIVE_WEAK_RATIO", 0.7),
		SessionTTL:        getDuration("ADAPTIVE_SESSION_TTL", 24*time.Hour),
		RecentDays:        getInt("ADAPTIVE_RECENT_DAYS", 7),
		ReviewLimit:       getInt("REVIEW_MAX_CARDS", 20),
		JWTSecret:         getEnv("JWT_SECRET", "lsat-prep-dev-signing-key"),
		AllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ItemAcquisition:   getEnv("ITEM_ACQUISITION", "pool"),
		MockGenerator:     getEnv("MOCK_GENERATOR", "false") == "true",
		GeneratorCLI:      getEnv("GENERATOR_CLI_PATH", ""),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: %s=%q is not a number, using %v", key, v, fallback)
		return fallback
	}
	return f
}

// getDuration accepts Go durations ("90s") or bare seconds ("0" disables).
func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: %s=%q is not a valid duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
