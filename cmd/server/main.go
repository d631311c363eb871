package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/lsat-prep/adaptive/internal/adaptive"
	"github.com/lsat-prep/adaptive/internal/analytics"
	"github.com/lsat-prep/adaptive/internal/auth"
	"github.com/lsat-prep/adaptive/internal/cache"
	"github.com/lsat-prep/adaptive/internal/config"
	"github.com/lsat-prep/adaptive/internal/database"
	"github.com/lsat-prep/adaptive/internal/generator"
	"github.com/lsat-prep/adaptive/internal/questions"
	"github.com/lsat-prep/adaptive/internal/scheduler"
	"github.com/lsat-prep/adaptive/internal/selection"
)

func main() {
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Analytics cache: Redis when configured, otherwise in-process
	var snapshots analytics.SnapshotCache
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.AnalyticsCacheTTL)
		if err := rc.Ping(context.Background()); err != nil {
			log.Fatalf("Failed to connect to redis at %s: %v", cfg.RedisAddr, err)
		}
		defer rc.Close()
		snapshots = rc
		log.Printf("Analytics cache: redis %s (ttl %s)", cfg.RedisAddr, cfg.AnalyticsCacheTTL)
	} else {
		snapshots = cache.NewMemoryCache(cfg.AnalyticsCacheTTL)
		log.Printf("Analytics cache: in-process (ttl %s)", cfg.AnalyticsCacheTTL)
	}

	// Stores and services
	questionStore := questions.NewStore(db)
	adaptiveStore := adaptive.NewStore(db)

	analyticsEngine := analytics.NewEngine(analytics.NewStore(db), snapshots)
	selector := selection.NewEngine(questionStore, adaptiveStore)
	questionService := questions.NewService(questionStore)
	scheduleService := scheduler.NewService(scheduler.NewStore(db))

	var acquirer adaptive.ItemAcquirer
	if cfg.ItemAcquisition == "llm" {
		gen := generator.NewGenerator(generator.Options{
			Mock:    cfg.MockGenerator,
			CLIPath: cfg.GeneratorCLI,
			Model:   cfg.AnthropicModel,
			APIKey:  cfg.AnthropicAPIKey,
		})
		acquirer = generator.NewAcquirer(gen, questionStore)
	}

	adaptiveService := adaptive.NewService(adaptiveStore, analyticsEngine, selector, questionStore, acquirer, adaptive.Options{
		DailyLimit:        cfg.DailyLimit,
		Cooldown:          cfg.Cooldown,
		QuizSize:          cfg.QuizSize,
		WeakRatio:         cfg.WeakRatio,
		SessionTTL:        cfg.SessionTTL,
		RecentDays:        cfg.RecentDays,
		BalanceDifficulty: true,
	})

	// Initialize handlers
	authenticator := auth.NewAuthenticator(cfg.JWTSecret)
	adaptiveHandler := adaptive.NewHandler(adaptiveService)
	analyticsHandler := analytics.NewHandler(analyticsEngine)
	questionHandler := questions.NewHandler(questionService)
	scheduleHandler := scheduler.NewHandler(scheduleService, cfg.ReviewLimit)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/categories", questionHandler.ListCategories).Methods("GET")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(authenticator.Middleware)

	protected.HandleFunc("/questions", questionHandler.AddQuestions).Methods("POST")
	protected.HandleFunc("/questions/{id}", questionHandler.GetQuestion).Methods("GET")

	protected.HandleFunc("/adaptive/quizzes", adaptiveHandler.GenerateQuiz).Methods("POST")
	protected.HandleFunc("/adaptive/sessions/{id}", adaptiveHandler.GetSession).Methods("GET")
	protected.HandleFunc("/adaptive/sessions/{id}/submit", adaptiveHandler.SubmitResults).Methods("POST")
	protected.HandleFunc("/adaptive/sessions/{id}/abandon", adaptiveHandler.AbandonSession).Methods("POST")

	protected.HandleFunc("/analytics/performance", analyticsHandler.GetPerformance).Methods("GET")
	protected.HandleFunc("/analytics/categories/{id}", analyticsHandler.GetCategoryPerformance).Methods("GET")
	protected.HandleFunc("/attempts", analyticsHandler.RecordAttempt).Methods("POST")

	protected.HandleFunc("/schedules", scheduleHandler.CreateSchedule).Methods("POST")
	protected.HandleFunc("/schedules/{id}/reviews", scheduleHandler.SubmitReviews).Methods("POST")
	protected.HandleFunc("/reviews/session", scheduleHandler.GetReviewSession).Methods("GET")
	protected.HandleFunc("/reviews/progress", scheduleHandler.GetProgress).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: c.Handler(r),
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
