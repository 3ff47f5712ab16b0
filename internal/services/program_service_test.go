package services

import (
	"context"
	"testing"
	"time"

	"github.com/avolkov/macrocoach/internal/database"
	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/utils"
	"github.com/stretchr/testify/require"
)

func validProgramInput() CreateProgramInput {
	return CreateProgramInput{
		Template:      "aggressive_cut",
		StartDate:     time.Now(),
		DurationWeeks: 8,
		Targets:       MacroTargets{Calories: 2000, Protein: 150, Carbs: 200, Fat: 65},
	}
}

func TestCreateProgramValidation(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewProgramService(db)
	ctx := context.Background()

	in := validProgramInput()
	in.Template = ""
	_, err := svc.CreateProgram(ctx, user.ID, in)
	require.True(t, apperrors.IsValidation(err))

	in = validProgramInput()
	in.DurationWeeks = 0
	_, err = svc.CreateProgram(ctx, user.ID, in)
	require.True(t, apperrors.IsValidation(err))

	in = validProgramInput()
	in.Targets.Fat = 0
	_, err = svc.CreateProgram(ctx, user.ID, in)
	require.True(t, apperrors.IsValidation(err))
}

func TestCreateProgramCancelsPreviousActive(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewProgramService(db)
	ctx := context.Background()

	first, err := svc.CreateProgram(ctx, user.ID, validProgramInput())
	require.NoError(t, err)

	second, err := svc.CreateProgram(ctx, user.ID, validProgramInput())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&database.Program{}).
		Where("user_id = ? AND status = ?", user.ID, database.ProgramStatusActive).
		Count(&count).Error)
	require.EqualValues(t, 1, count)

	var reloaded database.Program
	require.NoError(t, db.First(&reloaded, first.ID).Error)
	require.Equal(t, database.ProgramStatusCancelled, reloaded.Status)

	active, err := svc.GetActiveProgram(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)
}

func TestCreateProgramSeedsStandingGoals(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewProgramService(db)

	_, err := svc.CreateProgram(context.Background(), user.ID, validProgramInput())
	require.NoError(t, err)

	var reloaded database.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	require.Equal(t, 2000, reloaded.CalorieGoal)
	require.Equal(t, 150, reloaded.ProteinGoal)
	require.Equal(t, 200, reloaded.CarbGoal)
	require.Equal(t, 65, reloaded.FatGoal)
}

func TestCreateProgramEndDate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewProgramService(db)

	in := validProgramInput()
	in.DurationWeeks = 6
	program, err := svc.CreateProgram(context.Background(), user.ID, in)
	require.NoError(t, err)
	require.Equal(t, program.StartDate.AddDate(0, 0, 42), program.EndDate)
}

func TestGetActiveProgramLazyExpiry(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewProgramService(db)
	ctx := context.Background()

	in := validProgramInput()
	in.StartDate = time.Now().AddDate(0, 0, -30)
	in.DurationWeeks = 2
	program, err := svc.CreateProgram(ctx, user.ID, in)
	require.NoError(t, err)

	active, err := svc.GetActiveProgram(ctx, user.ID)
	require.NoError(t, err)
	require.Nil(t, active)

	var reloaded database.Program
	require.NoError(t, db.First(&reloaded, program.ID).Error)
	require.Equal(t, database.ProgramStatusCompleted, reloaded.Status)
}

func TestUpdateProgramOwnership(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewProgramService(db)
	ctx := context.Background()

	program, err := svc.CreateProgram(ctx, user.ID, validProgramInput())
	require.NoError(t, err)

	notes := "feeling good"
	_, err = svc.UpdateProgram(ctx, user.ID+999, program.ID, UpdateProgramInput{Notes: &notes})
	require.True(t, apperrors.IsNotFound(err))

	updated, err := svc.UpdateProgram(ctx, user.ID, program.ID, UpdateProgramInput{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, "feeling good", updated.Notes)
}

func TestApplyNewTargetsWritesHistory(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewProgramService(db)
	ctx := context.Background()

	program, err := svc.CreateProgram(ctx, user.ID, validProgramInput())
	require.NoError(t, err)

	targets := MacroTargets{Calories: 1900, Protein: 160, Carbs: 180, Fat: 60}
	effective := time.Now()
	require.NoError(t, svc.ApplyNewTargets(ctx, program.ID, targets, nil, effective))

	var reloaded database.Program
	require.NoError(t, db.First(&reloaded, program.ID).Error)
	require.Equal(t, 1900, reloaded.CalorieTarget)
	require.Equal(t, 160, reloaded.ProteinTarget)
	require.Equal(t, 1, reloaded.ReviewCount)
	require.NotNil(t, reloaded.LastReviewDate)
	require.NotNil(t, reloaded.NextReviewDate)
	require.Equal(t, utils.DateOnly(effective).AddDate(0, 0, 7), utils.DateOnly(*reloaded.NextReviewDate))

	var entry database.MacroHistoryEntry
	require.NoError(t, db.Where("program_id = ?", program.ID).First(&entry).Error)
	require.Equal(t, 1900, entry.Calories)
	require.Nil(t, entry.ReviewID)
	require.Equal(t, "manual_edit", entry.ChangeReason)
}

func TestExpireEndedPrograms(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewProgramService(db)
	ctx := context.Background()

	in := validProgramInput()
	in.StartDate = time.Now().AddDate(0, 0, -60)
	in.DurationWeeks = 4
	program, err := svc.CreateProgram(ctx, user.ID, in)
	require.NoError(t, err)

	n, err := svc.ExpireEndedPrograms(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var reloaded database.Program
	require.NoError(t, db.First(&reloaded, program.ID).Error)
	require.Equal(t, database.ProgramStatusCompleted, reloaded.Status)
}
