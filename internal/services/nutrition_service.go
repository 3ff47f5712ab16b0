package services

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/avolkov/macrocoach/internal/database"
	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/logger"
	"github.com/avolkov/macrocoach/internal/utils"
	"gorm.io/gorm"
)

// proteinComplianceFactor is the share of the protein target a day must
// reach to count as compliant.
const proteinComplianceFactor = 0.8

// DailyTotal is the macro sum for one calendar day with logged data.
type DailyTotal struct {
	Date     time.Time
	Calories float64
	Protein  float64
	Carbs    float64
	Fat      float64
}

type LogEntryInput struct {
	Name     string
	Date     time.Time
	Servings float64
	// Per-serving nutrient figures.
	Calories float64
	Protein  float64
	Carbs    float64
	Fat      float64
}

type NutritionService struct {
	db      *gorm.DB
	streaks *StreakService
}

func NewNutritionService(db *gorm.DB, streaks *StreakService) *NutritionService {
	return &NutritionService{db: db, streaks: streaks}
}

// LogEntry persists a food entry with nutrients multiplied by the serving
// count and fires the streak tracker for the entry's day.
func (s *NutritionService) LogEntry(ctx context.Context, userID uint, in LogEntryInput) (*database.FoodEntry, error) {
	if in.Name == "" {
		return nil, apperrors.NewValidationError("food name is required")
	}
	if in.Servings <= 0 {
		return nil, apperrors.NewValidationError("servings must be positive")
	}
	if in.Calories < 0 || in.Protein < 0 || in.Carbs < 0 || in.Fat < 0 {
		return nil, apperrors.NewValidationError("nutrient values must not be negative")
	}

	day := in.Date
	if day.IsZero() {
		day = time.Now()
	}

	entry := &database.FoodEntry{
		UserID:    userID,
		EntryDate: utils.DateOnly(day),
		Name:      in.Name,
		Servings:  in.Servings,
		Calories:  in.Calories * in.Servings,
		Protein:   in.Protein * in.Servings,
		Carbs:     in.Carbs * in.Servings,
		Fat:       in.Fat * in.Servings,
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	if s.streaks != nil {
		if _, err := s.streaks.RecordLoggingDay(ctx, userID, entry.EntryDate); err != nil {
			// The food entry is already saved; a streak failure must not
			// undo the log write.
			logger.Warn("streak update failed", "user_id", userID, "error", err)
		}
	}

	return entry, nil
}

// DailyTotals sums the user's food entries per calendar day over
// [startDate, endDate] inclusive. Days without entries are absent from the
// result, never zero-filled.
func (s *NutritionService) DailyTotals(ctx context.Context, userID uint, startDate, endDate time.Time) ([]DailyTotal, error) {
	return loadDailyTotals(s.db.WithContext(ctx), userID, startDate, endDate)
}

func loadDailyTotals(db *gorm.DB, userID uint, startDate, endDate time.Time) ([]DailyTotal, error) {
	start := utils.DateOnly(startDate)
	end := utils.DateOnly(endDate).AddDate(0, 0, 1)

	var entries []database.FoodEntry
	if err := db.
		Where("user_id = ? AND entry_date >= ? AND entry_date < ?", userID, start, end).
		Find(&entries).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	byDay := make(map[time.Time]*DailyTotal)
	for _, e := range entries {
		day := utils.DateOnly(e.EntryDate)
		total, ok := byDay[day]
		if !ok {
			total = &DailyTotal{Date: day}
			byDay[day] = total
		}
		total.Calories += e.Calories
		total.Protein += e.Protein
		total.Carbs += e.Carbs
		total.Fat += e.Fat
	}

	totals := make([]DailyTotal, 0, len(byDay))
	for _, t := range byDay {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Date.Before(totals[j].Date) })
	return totals, nil
}

// ComplianceRate returns the percentage of days (0-100) meeting both
// thresholds: protein at or above 80% of target and calories at or below
// target. Days without data are excluded from numerator and denominator.
func ComplianceRate(totals []DailyTotal, proteinTarget, calorieTarget int) int {
	if len(totals) == 0 {
		return 0
	}
	compliant := 0
	for _, t := range totals {
		if t.Protein >= proteinComplianceFactor*float64(proteinTarget) && t.Calories <= float64(calorieTarget) {
			compliant++
		}
	}
	return int(math.Round(100 * float64(compliant) / float64(len(totals))))
}
