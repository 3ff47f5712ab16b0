package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avolkov/macrocoach/internal/database"
	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/state"
	"github.com/avolkov/macrocoach/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Achievement identifiers. Each unlocks at most once, ever.
const (
	AchievementFirstEntry     = "first_entry"
	AchievementWeekWarrior    = "week_warrior"
	AchievementTwoWeekStreak  = "two_week_streak"
	AchievementMonthMaster    = "month_master"
	AchievementFiftyDayStreak = "fifty_day_streak"
	AchievementCenturyStreak  = "century_streak"
	AchievementHundredDays    = "hundred_days"
	AchievementProteinPro7    = "protein_pro_7"
)

// streakThresholds maps consecutive-day streak lengths to badges.
var streakThresholds = []struct {
	Days  int
	Badge string
}{
	{7, AchievementWeekWarrior},
	{14, AchievementTwoWeekStreak},
	{30, AchievementMonthMaster},
	{50, AchievementFiftyDayStreak},
	{100, AchievementCenturyStreak},
}

const hundredDaysThreshold = 100

type StreakService struct {
	db    *gorm.DB
	state *state.Manager
}

func NewStreakService(db *gorm.DB, stateManager *state.Manager) *StreakService {
	return &StreakService{db: db, state: stateManager}
}

// GetStats returns the user's streak ledger, creating it lazily.
func (s *StreakService) GetStats(ctx context.Context, userID uint) (*database.UserStats, error) {
	stats := &database.UserStats{UserID: userID}
	if err := s.db.WithContext(ctx).FirstOrCreate(stats, database.UserStats{UserID: userID}).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return stats, nil
}

// RecordLoggingDay advances the streak ledger for one logging event. The
// update is debounced to one effective change per calendar day: the write
// is a conditional UPDATE keyed on last_logged_date, so concurrent log
// events for the same day collapse into one.
func (s *StreakService) RecordLoggingDay(ctx context.Context, userID uint, day time.Time) (*database.UserStats, error) {
	today := utils.DateOnly(day)

	if s.state.LoggedToday(ctx, userID, today) {
		return s.GetStats(ctx, userID)
	}

	stats, err := s.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats.LastLoggedDate != nil && !stats.LastLoggedDate.Before(today) {
		// Already counted today.
		return stats, nil
	}

	unlocked := decodeAchievements(stats.Achievements)
	newStreak := 1
	switch {
	case stats.LastLoggedDate == nil:
		unlocked = addAchievement(unlocked, AchievementFirstEntry)
	case utils.SameDay(stats.LastLoggedDate.AddDate(0, 0, 1), today):
		newStreak = stats.CurrentStreak + 1
	default:
		// Gap of two or more days: the streak restarts at 1, not 0.
		newStreak = 1
	}

	newTotal := stats.TotalDaysLogged + 1
	newLongest := stats.LongestStreak
	if newStreak > newLongest {
		newLongest = newStreak
	}

	for _, t := range streakThresholds {
		if newStreak >= t.Days {
			unlocked = addAchievement(unlocked, t.Badge)
		}
	}
	if newTotal >= hundredDaysThreshold {
		unlocked = addAchievement(unlocked, AchievementHundredDays)
	}
	if s.proteinWeekComplete(ctx, userID, today) {
		unlocked = addAchievement(unlocked, AchievementProteinPro7)
	}

	result := s.db.WithContext(ctx).Model(&database.UserStats{}).
		Where("user_id = ? AND (last_logged_date IS NULL OR last_logged_date < ?)", userID, today).
		Updates(map[string]interface{}{
			"current_streak":    newStreak,
			"longest_streak":    newLongest,
			"total_days_logged": newTotal,
			"last_logged_date":  today,
			"achievements":      encodeAchievements(unlocked),
		})
	if result.Error != nil {
		return nil, apperrors.NewDatabaseError(result.Error)
	}
	if result.RowsAffected == 0 {
		// A concurrent event won the day; its update stands.
		return s.GetStats(ctx, userID)
	}

	s.state.MarkLogged(ctx, userID, today)
	return s.GetStats(ctx, userID)
}

// proteinWeekComplete checks the trailing 7 calendar days (today back 6):
// every day must have logged data and protein at or above 80% of the
// user's standing protein goal.
func (s *StreakService) proteinWeekComplete(ctx context.Context, userID uint, today time.Time) bool {
	var user database.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return false
	}
	if user.ProteinGoal <= 0 {
		return false
	}

	totals, err := loadDailyTotals(s.db.WithContext(ctx), userID, today.AddDate(0, 0, -6), today)
	if err != nil || len(totals) < 7 {
		return false
	}
	threshold := proteinComplianceFactor * float64(user.ProteinGoal)
	for _, t := range totals {
		if t.Protein < threshold {
			return false
		}
	}
	return true
}

func decodeAchievements(j datatypes.JSON) []string {
	if len(j) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(j, &ids); err != nil {
		return nil
	}
	return ids
}

func encodeAchievements(ids []string) datatypes.JSON {
	if ids == nil {
		ids = []string{}
	}
	raw, _ := json.Marshal(ids)
	return datatypes.JSON(raw)
}

func addAchievement(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// HasAchievement reports whether the stats row carries the given badge.
func HasAchievement(stats *database.UserStats, id string) bool {
	for _, existing := range decodeAchievements(stats.Achievements) {
		if existing == id {
			return true
		}
	}
	return false
}
