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

// MacroTargets is one set of daily calorie/protein/carb/fat goals.
type MacroTargets struct {
	Calories int
	Protein  int
	Carbs    int
	Fat      int
}

func (t MacroTargets) valid() bool {
	return t.Calories > 0 && t.Protein > 0 && t.Carbs > 0 && t.Fat > 0
}

type CreateProgramInput struct {
	Template       string
	StartDate      time.Time
	DurationWeeks  int
	StartingWeight *float64
	TargetWeight   *float64
	Targets        MacroTargets
}

type UpdateProgramInput struct {
	Status       *string
	EndingWeight *float64
	Notes        *string
}

type ProgramService struct {
	db *gorm.DB
}

func NewProgramService(db *gorm.DB) *ProgramService {
	return &ProgramService{db: db}
}

// CreateProgram starts a new macro program for the user. Any previously
// active program is cancelled in the same transaction, and the user's
// standing goals are overwritten with the new targets.
func (s *ProgramService) CreateProgram(ctx context.Context, userID uint, in CreateProgramInput) (*database.Program, error) {
	if in.Template == "" {
		return nil, apperrors.NewValidationError("template is required")
	}
	if in.StartDate.IsZero() {
		return nil, apperrors.NewValidationError("start date is required")
	}
	if in.DurationWeeks <= 0 {
		return nil, apperrors.NewValidationError("duration weeks must be positive")
	}
	if !in.Targets.valid() {
		return nil, apperrors.NewValidationError("all four macro targets are required and must be positive")
	}

	startDate := utils.DateOnly(in.StartDate)
	program := &database.Program{
		UserID:         userID,
		Template:       in.Template,
		StartDate:      startDate,
		EndDate:        startDate.AddDate(0, 0, in.DurationWeeks*7),
		DurationWeeks:  in.DurationWeeks,
		Status:         database.ProgramStatusActive,
		StartingWeight: in.StartingWeight,
		TargetWeight:   in.TargetWeight,
		CalorieTarget:  in.Targets.Calories,
		ProteinTarget:  in.Targets.Protein,
		CarbTarget:     in.Targets.Carbs,
		FatTarget:      in.Targets.Fat,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&database.Program{}).
			Where("user_id = ? AND status = ?", userID, database.ProgramStatusActive).
			Update("status", database.ProgramStatusCancelled).Error; err != nil {
			return err
		}
		if err := tx.Create(program).Error; err != nil {
			return err
		}
		return tx.Model(&database.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"calorie_goal": in.Targets.Calories,
			"protein_goal": in.Targets.Protein,
			"carb_goal":    in.Targets.Carbs,
			"fat_goal":     in.Targets.Fat,
		}).Error
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	return program, nil
}

// GetActiveProgram returns the user's active program, or nil when there is
// none. A program whose end date has passed is flipped to completed with a
// compare-and-set update, so concurrent readers on the boundary day cannot
// double-complete it.
func (s *ProgramService) GetActiveProgram(ctx context.Context, userID uint) (*database.Program, error) {
	var program database.Program
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, database.ProgramStatusActive).
		First(&program).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	if program.EndDate.Before(utils.DateOnly(time.Now())) {
		if err := s.db.WithContext(ctx).Model(&database.Program{}).
			Where("id = ? AND status = ?", program.ID, database.ProgramStatusActive).
			Update("status", database.ProgramStatusCompleted).Error; err != nil {
			return nil, apperrors.NewDatabaseError(err)
		}
		return nil, nil
	}

	return &program, nil
}

// GetProgram returns a program owned by the user.
func (s *ProgramService) GetProgram(ctx context.Context, userID, programID uint) (*database.Program, error) {
	var program database.Program
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", programID, userID).
		First(&program).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("program")
		}
		return nil, apperrors.NewDatabaseError(err)
	}
	return &program, nil
}

// UpdateProgram applies a partial update to a program owned by the user.
func (s *ProgramService) UpdateProgram(ctx context.Context, userID, programID uint, in UpdateProgramInput) (*database.Program, error) {
	program, err := s.GetProgram(ctx, userID, programID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Status != nil {
		switch *in.Status {
		case database.ProgramStatusActive, database.ProgramStatusCompleted, database.ProgramStatusCancelled:
			updates["status"] = *in.Status
		default:
			return nil, apperrors.NewValidationError("invalid program status")
		}
	}
	if in.EndingWeight != nil {
		updates["ending_weight"] = *in.EndingWeight
	}
	if in.Notes != nil {
		updates["notes"] = *in.Notes
	}
	if len(updates) == 0 {
		return program, nil
	}

	if err := s.db.WithContext(ctx).Model(program).Updates(updates).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return program, nil
}

// ApplyNewTargets commits new macro targets to a program as one atomic
// unit: targets, review bookkeeping and the macro history audit row.
func (s *ProgramService) ApplyNewTargets(ctx context.Context, programID uint, targets MacroTargets, reviewID *uint, effectiveDate time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.applyNewTargets(tx, programID, targets, reviewID, effectiveDate)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.NewDatabaseError(err)
	}
	return nil
}

func (s *ProgramService) applyNewTargets(tx *gorm.DB, programID uint, targets MacroTargets, reviewID *uint, effectiveDate time.Time) error {
	if !targets.valid() {
		return apperrors.NewValidationError("all four macro targets must be positive")
	}

	effective := utils.DateOnly(effectiveDate)
	result := tx.Model(&database.Program{}).Where("id = ?", programID).Updates(map[string]interface{}{
		"calorie_target":   targets.Calories,
		"protein_target":   targets.Protein,
		"carb_target":      targets.Carbs,
		"fat_target":       targets.Fat,
		"last_review_date": effective,
		"next_review_date": effective.AddDate(0, 0, 7),
		"review_count":     gorm.Expr("review_count + 1"),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("program")
	}

	reason := "manual_edit"
	if reviewID != nil {
		reason = "ai_review"
	}
	return tx.Create(&database.MacroHistoryEntry{
		ProgramID:     programID,
		ReviewID:      reviewID,
		Calories:      targets.Calories,
		Protein:       targets.Protein,
		Carbs:         targets.Carbs,
		Fat:           targets.Fat,
		EffectiveDate: effective,
		ChangeReason:  reason,
	}).Error
}

// advanceReviewCadence moves the review bookkeeping forward without
// touching the macro targets. Used when a review is rejected.
func (s *ProgramService) advanceReviewCadence(tx *gorm.DB, programID uint, effectiveDate time.Time) error {
	effective := utils.DateOnly(effectiveDate)
	result := tx.Model(&database.Program{}).Where("id = ?", programID).Updates(map[string]interface{}{
		"last_review_date": effective,
		"next_review_date": effective.AddDate(0, 0, 7),
		"review_count":     gorm.Expr("review_count + 1"),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("program")
	}
	return nil
}

// ExpireEndedPrograms completes every active program whose end date has
// passed. Returns the number of programs flipped.
func (s *ProgramService) ExpireEndedPrograms(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&database.Program{}).
		Where("status = ? AND end_date < ?", database.ProgramStatusActive, utils.DateOnly(time.Now())).
		Update("status", database.ProgramStatusCompleted)
	if result.Error != nil {
		return 0, apperrors.NewDatabaseError(result.Error)
	}
	return result.RowsAffected, nil
}

// MacroHistory returns the audit trail of macro changes for a program.
func (s *ProgramService) MacroHistory(ctx context.Context, programID uint) ([]database.MacroHistoryEntry, error) {
	var entries []database.MacroHistoryEntry
	if err := s.db.WithContext(ctx).
		Where("program_id = ?", programID).
		Order("effective_date DESC").
		Find(&entries).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return entries, nil
}
