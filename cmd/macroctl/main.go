package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/avolkov/macrocoach/internal/config"
	"github.com/avolkov/macrocoach/internal/database"
	"github.com/avolkov/macrocoach/internal/logger"
	"github.com/avolkov/macrocoach/internal/services"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "macroctl",
	Short: "macroctl runs MacroCoach maintenance jobs from the terminal",
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}
	if err := logger.InitWithConfig(logger.Config{OutputPath: "stdout", Format: "text"}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	rootCmd.AddCommand(sweepCmd, expireCmd, reviewCmd, statsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withDB(fn func(db *gorm.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.NewPostgresDB(cfg.DB)
	if err != nil {
		return err
	}
	return fn(db)
}

func buildServices(db *gorm.DB) (*services.ReviewService, *services.SweepService) {
	cfg, _ := config.Load()
	ai := services.NewAIService(cfg.AI.GeminiAPIKey, cfg.AI.OpenAIAPIKey, cfg.AI.Timeout)
	programs := services.NewProgramService(db)
	streaks := services.NewStreakService(db, nil)
	nutrition := services.NewNutritionService(db, streaks)
	weights := services.NewWeightService(db)
	reviews := services.NewReviewService(db, ai, programs, nutrition, weights)
	sweep := services.NewSweepService(db, reviews, nutrition, programs, nil, nil)
	return reviews, sweep
}
