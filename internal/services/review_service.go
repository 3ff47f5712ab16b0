package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avolkov/macrocoach/internal/database"
	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/utils"
	"gorm.io/gorm"
)

const (
	// minAnalysisDays is the hard data-sufficiency floor: below this,
	// weekly statistics and AI context quality both degrade too far.
	minAnalysisDays = 4

	// maxAnalysisWindowDays caps how far back the analysis window may
	// reach when reviews have been missed for a long stretch.
	maxAnalysisWindowDays = 30

	// Absolute safety bands for recommended macros.
	minRecommendedCalories = 1200
	maxRecommendedCalories = 5000
	minRecommendedProtein  = 50
	maxRecommendedProtein  = 400
	minRecommendedCarbs    = 50
	maxRecommendedCarbs    = 600
	minRecommendedFat      = 30
	maxRecommendedFat      = 200

	// calorieStepLimit bounds a single recommendation to ±20% of the
	// program's current calorie target.
	calorieStepLimit = 0.20

	maxAnalysisLen  = 4000
	maxReasoningLen = 2000

	// pendingReviewTTL is how long an undecided review stays pending
	// before the sweep expires it.
	pendingReviewTTL = 7 * 24 * time.Hour
)

// ReviewAdvisor is the slice of AIService the review generator needs.
type ReviewAdvisor interface {
	GenerateRecommendation(ctx context.Context, prompt string) (*ReviewRecommendation, error)
}

type ReviewService struct {
	db        *gorm.DB
	advisor   ReviewAdvisor
	programs  *ProgramService
	nutrition *NutritionService
	weights   *WeightService
}

func NewReviewService(db *gorm.DB, advisor ReviewAdvisor, programs *ProgramService, nutrition *NutritionService, weights *WeightService) *ReviewService {
	return &ReviewService{
		db:        db,
		advisor:   advisor,
		programs:  programs,
		nutrition: nutrition,
		weights:   weights,
	}
}

// ReviewWeek is the 1-based week index since the program start.
func ReviewWeek(startDate, now time.Time) int {
	days := utils.DaysBetween(startDate, now)
	if days < 0 {
		days = 0
	}
	return days/7 + 1
}

// GenerateReview builds a weekly review for the program: aggregates the
// analysis window, asks the AI reasoning service for recommendations,
// validates and clamps them, and persists the result as pending. Targets
// are not touched until the review is decided.
func (s *ReviewService) GenerateReview(ctx context.Context, userID, programID uint, force bool) (*database.ProgramReview, error) {
	program, err := s.programs.GetProgram(ctx, userID, programID)
	if err != nil {
		return nil, err
	}
	if program.Status != database.ProgramStatusActive {
		return nil, apperrors.NewInvalidStateError("program is not active")
	}

	now := time.Now()
	today := utils.DateOnly(now)
	currentWeek := ReviewWeek(program.StartDate, now)

	if !force {
		var count int64
		if err := s.db.WithContext(ctx).Model(&database.ProgramReview{}).
			Where("program_id = ? AND review_week = ?", programID, currentWeek).
			Count(&count).Error; err != nil {
			return nil, apperrors.NewDatabaseError(err)
		}
		if count > 0 {
			return nil, apperrors.NewAlreadyReviewedError(programID, currentWeek)
		}
	}

	windowStart := utils.DateOnly(program.StartDate)
	if program.LastReviewDate != nil {
		windowStart = utils.DateOnly(*program.LastReviewDate).AddDate(0, 0, 1)
	} else if weekAgo := today.AddDate(0, 0, -7); weekAgo.After(windowStart) {
		windowStart = weekAgo
	}
	// All historical aggregation is bounded to 30 days, even when reviews
	// have been missed for longer.
	if floor := today.AddDate(0, 0, -maxAnalysisWindowDays); floor.After(windowStart) {
		windowStart = floor
	}

	totals, err := s.nutrition.DailyTotals(ctx, userID, windowStart, today)
	if err != nil {
		return nil, err
	}
	if len(totals) < minAnalysisDays {
		return nil, apperrors.NewInsufficientDataError(len(totals), minAnalysisDays)
	}

	var sumCal, sumProt, sumCarb, sumFat float64
	for _, t := range totals {
		sumCal += t.Calories
		sumProt += t.Protein
		sumCarb += t.Carbs
		sumFat += t.Fat
	}
	n := float64(len(totals))
	avgCalories := int(math.Round(sumCal / n))
	avgProtein := int(math.Round(sumProt / n))
	avgCarbs := int(math.Round(sumCarb / n))
	avgFat := int(math.Round(sumFat / n))
	compliance := ComplianceRate(totals, program.ProteinTarget, program.CalorieTarget)

	latest, err := s.weights.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	var currentWeight, trendWeight, weightChange *float64
	if latest != nil {
		w := latest.Weight
		tw := latest.TrendWeight
		currentWeight = &w
		trendWeight = &tw
		if program.StartingWeight != nil {
			change := w - *program.StartingWeight
			weightChange = &change
		}
	}

	prompt := buildReviewPrompt(program, currentWeek, promptStats{
		DaysAnalyzed:   len(totals),
		AvgCalories:    avgCalories,
		AvgProtein:     avgProtein,
		AvgCarbs:       avgCarbs,
		AvgFat:         avgFat,
		ComplianceRate: compliance,
		CurrentWeight:  currentWeight,
		TrendWeight:    trendWeight,
		WeightChange:   weightChange,
	})

	rec, err := s.advisor.GenerateRecommendation(ctx, prompt)
	if err != nil {
		return nil, err
	}
	validated := validateRecommendation(rec, program.CalorieTarget)

	review := &database.ProgramReview{
		UserID:              userID,
		ProgramID:           programID,
		ReviewWeek:          currentWeek,
		ReviewDate:          today,
		DaysAnalyzed:        len(totals),
		AvgCalories:         avgCalories,
		AvgProtein:          avgProtein,
		AvgCarbs:            avgCarbs,
		AvgFat:              avgFat,
		ComplianceRate:      compliance,
		StartingWeight:      program.StartingWeight,
		CurrentWeight:       currentWeight,
		TrendWeight:         trendWeight,
		WeightChange:        weightChange,
		Analysis:            validated.Analysis,
		Reasoning:           validated.Reasoning,
		RecommendedCalories: validated.Calories,
		RecommendedProtein:  validated.Protein,
		RecommendedCarbs:    validated.Carbs,
		RecommendedFat:      validated.Fat,
		Confidence:          validated.Confidence,
		Status:              database.ReviewStatusPending,
	}

	if err := s.db.WithContext(ctx).Create(review).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race against a concurrent generation for the same week.
			return nil, apperrors.NewAlreadyReviewedError(programID, currentWeek)
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	return review, nil
}

// AcceptReview applies a pending review: the review flips to accepted, the
// program takes the recommended targets (with audit row), and the user's
// standing goals follow. All of it happens in one transaction; a review
// that is no longer pending fails the conditional update.
func (s *ReviewService) AcceptReview(ctx context.Context, reviewID uint, userNotes string) (*database.ProgramReview, error) {
	review, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&database.ProgramReview{}).
			Where("id = ? AND status = ?", reviewID, database.ReviewStatusPending).
			Updates(map[string]interface{}{
				"status":             database.ReviewStatusAccepted,
				"user_response_date": now,
				"user_notes":         userNotes,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.NewInvalidStateError(fmt.Sprintf("review is %s, only pending reviews can be decided", review.Status))
		}

		targets := MacroTargets{
			Calories: review.RecommendedCalories,
			Protein:  review.RecommendedProtein,
			Carbs:    review.RecommendedCarbs,
			Fat:      review.RecommendedFat,
		}
		reviewRef := review.ID
		if err := s.programs.applyNewTargets(tx, review.ProgramID, targets, &reviewRef, now); err != nil {
			return err
		}

		// Standing goals must never drift from the committed targets.
		return tx.Model(&database.User{}).Where("id = ?", review.UserID).Updates(map[string]interface{}{
			"calorie_goal": targets.Calories,
			"protein_goal": targets.Protein,
			"carb_goal":    targets.Carbs,
			"fat_goal":     targets.Fat,
		}).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	return s.GetReview(ctx, reviewID)
}

// RejectReview declines a pending review. The program's macro targets stay
// untouched but the review cadence advances so the next sweep lands a week
// later.
func (s *ReviewService) RejectReview(ctx context.Context, reviewID uint, reason string) (*database.ProgramReview, error) {
	review, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&database.ProgramReview{}).
			Where("id = ? AND status = ?", reviewID, database.ReviewStatusPending).
			Updates(map[string]interface{}{
				"status":             database.ReviewStatusRejected,
				"user_response_date": now,
				"user_notes":         reason,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.NewInvalidStateError(fmt.Sprintf("review is %s, only pending reviews can be decided", review.Status))
		}
		return s.programs.advanceReviewCadence(tx, review.ProgramID, now)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	return s.GetReview(ctx, reviewID)
}

// GetReview returns a review by id.
func (s *ReviewService) GetReview(ctx context.Context, reviewID uint) (*database.ProgramReview, error) {
	var review database.ProgramReview
	if err := s.db.WithContext(ctx).First(&review, reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("review")
		}
		return nil, apperrors.NewDatabaseError(err)
	}
	return &review, nil
}

// ListReviews returns the user's reviews, newest first.
func (s *ReviewService) ListReviews(ctx context.Context, userID uint) ([]database.ProgramReview, error) {
	var reviews []database.ProgramReview
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("review_date DESC, id DESC").
		Find(&reviews).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return reviews, nil
}

// ExpireStaleReviews flips pending reviews older than the pending TTL to
// expired. Returns the number of reviews flipped.
func (s *ReviewService) ExpireStaleReviews(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-pendingReviewTTL)
	result := s.db.WithContext(ctx).Model(&database.ProgramReview{}).
		Where("status = ? AND review_date < ?", database.ReviewStatusPending, cutoff).
		Update("status", database.ReviewStatusExpired)
	if result.Error != nil {
		return 0, apperrors.NewDatabaseError(result.Error)
	}
	return result.RowsAffected, nil
}

type validatedRecommendation struct {
	Calories   int
	Protein    int
	Carbs      int
	Fat        int
	Confidence string
	Analysis   string
	Reasoning  string
}

// validateRecommendation bounds the AI output: absolute safety bands per
// macro, calories additionally limited to ±20% of the program's current
// target, confidence coerced into the enum, texts truncated. Upstream
// output is never trusted blindly.
func validateRecommendation(rec *ReviewRecommendation, currentCalories int) validatedRecommendation {
	calories := int(math.Round(rec.RecommendedCalories))
	if currentCalories > 0 {
		lo := int(math.Round(float64(currentCalories) * (1 - calorieStepLimit)))
		hi := int(math.Round(float64(currentCalories) * (1 + calorieStepLimit)))
		calories = clampInt(calories, lo, hi)
	}
	calories = clampInt(calories, minRecommendedCalories, maxRecommendedCalories)

	confidence := strings.ToLower(strings.TrimSpace(rec.ConfidenceLevel))
	switch confidence {
	case database.ConfidenceLow, database.ConfidenceMedium, database.ConfidenceHigh:
	default:
		confidence = database.ConfidenceMedium
	}

	return validatedRecommendation{
		Calories:   calories,
		Protein:    clampInt(int(math.Round(rec.RecommendedProtein)), minRecommendedProtein, maxRecommendedProtein),
		Carbs:      clampInt(int(math.Round(rec.RecommendedCarbs)), minRecommendedCarbs, maxRecommendedCarbs),
		Fat:        clampInt(int(math.Round(rec.RecommendedFat)), minRecommendedFat, maxRecommendedFat),
		Confidence: confidence,
		Analysis:   truncate(rec.Analysis, maxAnalysisLen),
		Reasoning:  truncate(rec.Reasoning, maxReasoningLen),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
