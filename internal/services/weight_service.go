package services

import (
	"context"
	"errors"
	"time"

	"github.com/avolkov/macrocoach/internal/database"
	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/utils"
	"gorm.io/gorm"
)

// trendSmoothing is the exponential smoothing factor for the trend weight.
const trendSmoothing = 0.1

type WeightService struct {
	db *gorm.DB
}

func NewWeightService(db *gorm.DB) *WeightService {
	return &WeightService{db: db}
}

// LogWeight records a body-weight observation and updates the smoothed
// trend. The first observation seeds the trend with the raw weight.
func (s *WeightService) LogWeight(ctx context.Context, userID uint, weight float64, day time.Time) (*database.WeightEntry, error) {
	if weight <= 0 {
		return nil, apperrors.NewValidationError("weight must be positive")
	}
	if day.IsZero() {
		day = time.Now()
	}

	trend := weight
	latest, err := s.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		trend = latest.TrendWeight + trendSmoothing*(weight-latest.TrendWeight)
	}

	entry := &database.WeightEntry{
		UserID:      userID,
		EntryDate:   utils.DateOnly(day),
		Weight:      weight,
		TrendWeight: trend,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return entry, nil
}

// Latest returns the most recent weight observation, or nil when the user
// has never logged a weight.
func (s *WeightService) Latest(ctx context.Context, userID uint) (*database.WeightEntry, error) {
	var entry database.WeightEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("entry_date DESC, id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError(err)
	}
	return &entry, nil
}

// Recent returns the user's most recent weight observations, newest first.
func (s *WeightService) Recent(ctx context.Context, userID uint, limit int) ([]database.WeightEntry, error) {
	if limit <= 0 {
		limit = 30
	}
	var entries []database.WeightEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("entry_date DESC, id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return entries, nil
}
