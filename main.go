package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/avolkov/macrocoach/internal/config"
	"github.com/avolkov/macrocoach/internal/database"
	"github.com/avolkov/macrocoach/internal/logger"
	"github.com/avolkov/macrocoach/internal/notify"
	"github.com/avolkov/macrocoach/internal/scheduler"
	"github.com/avolkov/macrocoach/internal/server"
	"github.com/avolkov/macrocoach/internal/services"
	"github.com/avolkov/macrocoach/internal/state"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.InitWithConfig(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	logger.Info("Starting MacroCoach...")

	db, err := database.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	logger.Info("Database connection established and migrations completed")

	var stateManager *state.Manager
	if cfg.Redis.Host != "" {
		stateManager, err = state.NewManager(cfg.Redis.Host, cfg.Redis.Port)
		if err != nil {
			logger.Warn("Redis unavailable, falling back to database guards", "error", err)
			stateManager = nil
		}
	}

	var notifier services.Notifier
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token)
		if err != nil {
			logger.Warn("Telegram notifier disabled", "error", err)
		} else {
			notifier = tg
		}
	}

	aiService := services.NewAIService(cfg.AI.GeminiAPIKey, cfg.AI.OpenAIAPIKey, cfg.AI.Timeout)
	if !aiService.Enabled() {
		logger.Warn("No AI reasoning provider configured, review generation runs in manual-only mode")
	}

	userService := services.NewUserService(db)
	programService := services.NewProgramService(db)
	streakService := services.NewStreakService(db, stateManager)
	nutritionService := services.NewNutritionService(db, streakService)
	weightService := services.NewWeightService(db)
	reviewService := services.NewReviewService(db, aiService, programService, nutritionService, weightService)
	sweepService := services.NewSweepService(db, reviewService, nutritionService, programService, stateManager, notifier)
	logger.Info("Services initialized successfully")

	sched, err := scheduler.New(sweepService, cfg.Sweep.Schedule)
	if err != nil {
		logger.Fatal("Failed to create scheduler", "error", err)
	}
	sched.Start()
	defer sched.Stop()
	logger.Info("Daily review sweep scheduled", "schedule", cfg.Sweep.Schedule)

	r := gin.Default()
	srv := server.New(userService, programService, reviewService, nutritionService, weightService, streakService, sweepService)
	srv.RegisterRoutes(r)

	logger.Info("HTTP server listening", "port", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("HTTP server stopped", "error", err)
	}
}
