package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/avolkov/macrocoach/internal/database"
	"github.com/avolkov/macrocoach/internal/logger"
	"github.com/avolkov/macrocoach/internal/services"
	"github.com/avolkov/macrocoach/internal/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := logger.InitWithConfig(logger.Config{Level: logger.LevelError, OutputPath: "stdout", Format: "text"}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type failingAdvisor struct{}

func (failingAdvisor) GenerateRecommendation(context.Context, string) (*services.ReviewRecommendation, error) {
	return nil, fmt.Errorf("advisor should not be called")
}

func newTestRouter(t *testing.T, advisor services.ReviewAdvisor) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	if advisor == nil {
		advisor = failingAdvisor{}
	}
	users := services.NewUserService(db)
	programs := services.NewProgramService(db)
	streaks := services.NewStreakService(db, nil)
	nutrition := services.NewNutritionService(db, streaks)
	weights := services.NewWeightService(db)
	reviews := services.NewReviewService(db, advisor, programs, nutrition, weights)
	sweep := services.NewSweepService(db, reviews, nutrition, programs, nil, nil)

	r := gin.New()
	New(users, programs, reviews, nutrition, weights, streaks, sweep).RegisterRoutes(r)
	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateUserEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/users", gin.H{"email": "api@example.com", "name": "Api"})
	require.Equal(t, http.StatusCreated, w.Code)

	var user database.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	require.Equal(t, "api@example.com", user.Email)
	require.NotZero(t, user.ID)

	// Registration is idempotent per email.
	w = doJSON(t, r, http.MethodPost, "/users", gin.H{"email": "api@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	var again database.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	require.Equal(t, user.ID, again.ID)

	w = doJSON(t, r, http.MethodPost, "/users", gin.H{"name": "no email"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProgramLifecycleEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/users", gin.H{"email": "p@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	var user database.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/programs/active", user.ID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/users/%d/programs", user.ID), gin.H{
		"template":      "lean_bulk",
		"durationWeeks": 12,
		"calories":      2800,
		"protein":       170,
		"carbs":         320,
		"fat":           80,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var program database.Program
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &program))
	require.Equal(t, database.ProgramStatusActive, program.Status)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/programs/active", user.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Missing targets fail validation.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/users/%d/programs", user.ID), gin.H{
		"template":      "cut",
		"durationWeeks": 8,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMacroHistoryRequiresOwnership(t *testing.T) {
	r, db := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/users", gin.H{"email": "owner@example.com"})
	var owner database.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &owner))
	w = doJSON(t, r, http.MethodPost, "/users", gin.H{"email": "other@example.com"})
	var other database.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &other))

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/users/%d/programs", owner.ID), gin.H{
		"template":      "cut",
		"durationWeeks": 8,
		"calories":      2000,
		"protein":       150,
		"carbs":         200,
		"fat":           65,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var program database.Program
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &program))
	require.NoError(t, db.Create(&database.MacroHistoryEntry{
		ProgramID: program.ID, Calories: 2000, Protein: 150, Carbs: 200, Fat: 65,
		EffectiveDate: utils.DateOnly(time.Now()), ChangeReason: "manual_edit",
	}).Error)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/programs/%d/history", other.ID, program.ID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/programs/%d/history", owner.ID, program.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []database.MacroHistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
}

func TestReviewDecisionEndpoints(t *testing.T) {
	advisor := &apiStubAdvisor{}
	r, db := newTestRouter(t, advisor)

	w := doJSON(t, r, http.MethodPost, "/users", gin.H{"email": "r@example.com"})
	var user database.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))

	start := time.Now().AddDate(0, 0, -6).Format("2006-01-02")
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/users/%d/programs", user.ID), gin.H{
		"template":      "cut",
		"startDate":     start,
		"durationWeeks": 8,
		"calories":      2000,
		"protein":       150,
		"carbs":         200,
		"fat":           65,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var program database.Program
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &program))

	today := utils.DateOnly(time.Now())
	for i := 0; i < 4; i++ {
		require.NoError(t, db.Create(&database.FoodEntry{
			UserID:    user.ID,
			EntryDate: today.AddDate(0, 0, -i),
			Name:      "meal",
			Servings:  1,
			Calories:  1950,
			Protein:   140,
		}).Error)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/users/%d/programs/%d/reviews", user.ID, program.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var review database.ProgramReview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &review))
	require.Equal(t, database.ReviewStatusPending, review.Status)

	// Same week again conflicts.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/users/%d/programs/%d/reviews", user.ID, program.ID), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/reviews/%d/accept", review.ID), gin.H{"notes": "ok"})
	require.Equal(t, http.StatusOK, w.Code)

	// Deciding twice conflicts.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/reviews/%d/reject", review.ID), gin.H{"notes": "no"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/reviews", user.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reviews []database.ProgramReview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reviews))
	require.Len(t, reviews, 1)
	require.Equal(t, database.ReviewStatusAccepted, reviews[0].Status)
}

func TestFoodAndTotalsEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/users", gin.H{"email": "f@example.com"})
	var user database.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))

	day := utils.DateOnly(time.Now()).Format("2006-01-02")
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/users/%d/food-entries", user.ID), gin.H{
		"name":     "chicken",
		"date":     day,
		"servings": 2,
		"calories": 165,
		"protein":  31,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/daily-totals?start=%s&end=%s", user.ID, day, day), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var totals []services.DailyTotal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &totals))
	require.Len(t, totals, 1)
	require.InDelta(t, 330, totals[0].Calories, 0.001)
	require.InDelta(t, 62, totals[0].Protein, 0.001)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/daily-totals?start=%s", user.ID, day), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Logging a day also advances the streak ledger.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/users/%d/stats", user.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats database.UserStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.CurrentStreak)
}

type apiStubAdvisor struct{}

func (apiStubAdvisor) GenerateRecommendation(context.Context, string) (*services.ReviewRecommendation, error) {
	return &services.ReviewRecommendation{
		Analysis:            "On track.",
		RecommendedCalories: 1900,
		RecommendedProtein:  150,
		RecommendedCarbs:    190,
		RecommendedFat:      60,
		ConfidenceLevel:     "high",
		Reasoning:           "Compliance is high.",
	}, nil
}
