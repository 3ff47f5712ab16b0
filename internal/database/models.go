package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Program status values
const (
	ProgramStatusActive    = "active"
	ProgramStatusCompleted = "completed"
	ProgramStatusCancelled = "cancelled"
)

// Review status values
const (
	ReviewStatusPending  = "pending"
	ReviewStatusAccepted = "accepted"
	ReviewStatusRejected = "rejected"
	ReviewStatusExpired  = "expired"
)

// Confidence levels reported by the AI reasoning service
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

type User struct {
	gorm.Model
	Email      string `gorm:"uniqueIndex"`
	Name       string
	TelegramID int64 `gorm:"index"`

	// Standing daily goals, kept in sync with the active program's targets.
	CalorieGoal int
	ProteinGoal int
	CarbGoal    int
	FatGoal     int
}

// Program is a time-bound macro plan.
type Program struct {
	gorm.Model
	UserID        uint `gorm:"index"`
	User          User
	Template      string // e.g. "aggressive_cut", "lean_bulk", "maintain"
	StartDate     time.Time
	EndDate       time.Time
	DurationWeeks int
	Status        string `gorm:"index;default:active"`

	StartingWeight *float64
	TargetWeight   *float64
	EndingWeight   *float64

	CalorieTarget int
	ProteinTarget int
	CarbTarget    int
	FatTarget     int

	LastReviewDate *time.Time
	NextReviewDate *time.Time
	ReviewCount    int
	MacrosLocked   bool
	Notes          string
}

// ProgramReview is one weekly performance snapshot plus an AI recommendation.
// The (program, week) pair is unique so a week is never reviewed twice.
type ProgramReview struct {
	gorm.Model
	UserID     uint `gorm:"index"`
	ProgramID  uint `gorm:"uniqueIndex:idx_program_review_week"`
	ReviewWeek int  `gorm:"uniqueIndex:idx_program_review_week"`
	ReviewDate time.Time

	DaysAnalyzed   int
	AvgCalories    int
	AvgProtein     int
	AvgCarbs       int
	AvgFat         int
	ComplianceRate int

	StartingWeight *float64
	CurrentWeight  *float64
	TrendWeight    *float64
	WeightChange   *float64

	Analysis  string
	Reasoning string

	RecommendedCalories int
	RecommendedProtein  int
	RecommendedCarbs    int
	RecommendedFat      int
	Confidence          string

	Status           string `gorm:"index;default:pending"`
	UserResponseDate *time.Time
	UserNotes        string
}

// MacroHistoryEntry is an immutable audit record of a macro change.
type MacroHistoryEntry struct {
	gorm.Model
	ProgramID uint  `gorm:"index"`
	ReviewID  *uint // nil for manual edits
	Calories  int
	Protein   int
	Carbs     int
	Fat       int

	EffectiveDate time.Time
	ChangeReason  string // e.g. "ai_review"
}

// FoodEntry is one logged food item. Nutrient figures are already
// multiplied by the serving count.
type FoodEntry struct {
	gorm.Model
	UserID    uint      `gorm:"index:idx_food_user_date"`
	EntryDate time.Time `gorm:"index:idx_food_user_date"`
	Name      string
	Servings  float64
	Calories  float64
	Protein   float64
	Carbs     float64
	Fat       float64
}

// WeightEntry is one body-weight observation with its smoothed trend value.
type WeightEntry struct {
	gorm.Model
	UserID      uint `gorm:"index"`
	EntryDate   time.Time
	Weight      float64
	TrendWeight float64
}

// UserStats is the per-user streak and achievement ledger.
type UserStats struct {
	gorm.Model
	UserID          uint `gorm:"uniqueIndex"`
	CurrentStreak   int
	LongestStreak   int
	TotalDaysLogged int
	LastLoggedDate  *time.Time
	Achievements    datatypes.JSON
}
