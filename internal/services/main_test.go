package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/avolkov/macrocoach/internal/database"
	"github.com/avolkov/macrocoach/internal/logger"
	"github.com/avolkov/macrocoach/internal/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithConfig(logger.Config{
		Level:      logger.LevelError,
		OutputPath: "stdout",
		Format:     "text",
	}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// newTestDB opens a per-test in-memory database to avoid cross-test
// interference.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB) *database.User {
	t.Helper()
	user := &database.User{Email: "test@example.com", Name: "Test"}
	require.NoError(t, db.Create(user).Error)
	return user
}

// seedFoodDay writes one food entry carrying the full day's macros.
func seedFoodDay(t *testing.T, db *gorm.DB, userID uint, day time.Time, calories, protein float64) {
	t.Helper()
	require.NoError(t, db.Create(&database.FoodEntry{
		UserID:    userID,
		EntryDate: utils.DateOnly(day),
		Name:      "meal",
		Servings:  1,
		Calories:  calories,
		Protein:   protein,
		Carbs:     150,
		Fat:       60,
	}).Error)
}

// stubAdvisor returns a canned recommendation and records the prompts it saw.
type stubAdvisor struct {
	rec     ReviewRecommendation
	err     error
	prompts []string
}

func (s *stubAdvisor) GenerateRecommendation(_ context.Context, prompt string) (*ReviewRecommendation, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return nil, s.err
	}
	rec := s.rec
	return &rec, nil
}

func goodRecommendation() ReviewRecommendation {
	return ReviewRecommendation{
		Analysis:            "Solid adherence this week.",
		RecommendedCalories: 1900,
		RecommendedProtein:  150,
		RecommendedCarbs:    190,
		RecommendedFat:      60,
		ConfidenceLevel:     "high",
		Reasoning:           "Weight trend matches the expected rate.",
	}
}

func newReviewStack(t *testing.T, db *gorm.DB, advisor ReviewAdvisor) (*ProgramService, *NutritionService, *ReviewService) {
	t.Helper()
	programs := NewProgramService(db)
	streaks := NewStreakService(db, nil)
	nutrition := NewNutritionService(db, streaks)
	weights := NewWeightService(db)
	reviews := NewReviewService(db, advisor, programs, nutrition, weights)
	return programs, nutrition, reviews
}
