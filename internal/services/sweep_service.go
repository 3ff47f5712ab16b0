package services

import (
	"context"
	"time"

	"github.com/avolkov/macrocoach/internal/database"
	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/logger"
	"github.com/avolkov/macrocoach/internal/state"
	"github.com/avolkov/macrocoach/internal/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sweep outcome classifications for one program.
const (
	SweepResultGenerated = "generated"
	SweepResultSkipped   = "skipped"
	SweepResultErrored   = "errored"
)

// Notifier delivers a heads-up to the user when a review lands in pending.
type Notifier interface {
	ReviewReady(user *database.User, review *database.ProgramReview) error
}

// SweepOutcome records what happened to one program during a sweep run.
type SweepOutcome struct {
	ProgramID uint
	UserID    uint
	Result    string
	Detail    string
}

// SweepSummary is the per-run report of a daily sweep.
type SweepSummary struct {
	RunID     uuid.UUID
	RunDate   time.Time
	Generated int
	Skipped   int
	Errored   int
	Outcomes  []SweepOutcome
}

type SweepService struct {
	db        *gorm.DB
	reviews   *ReviewService
	nutrition *NutritionService
	programs  *ProgramService
	state     *state.Manager
	notifier  Notifier
	errs      *apperrors.Handler
}

func NewSweepService(db *gorm.DB, reviews *ReviewService, nutrition *NutritionService, programs *ProgramService, stateManager *state.Manager, notifier Notifier) *SweepService {
	return &SweepService{
		db:        db,
		reviews:   reviews,
		nutrition: nutrition,
		programs:  programs,
		state:     stateManager,
		notifier:  notifier,
		errs:      apperrors.NewHandler(logger.GetLogger()),
	}
}

// Run executes one daily sweep: expire ended programs and stale reviews,
// then walk every active program that is due and try to generate its
// weekly review. Each program is processed independently; a failure is
// recorded in the summary and retried on the next day's run.
func (s *SweepService) Run(ctx context.Context) (*SweepSummary, error) {
	today := utils.DateOnly(time.Now())

	if !s.state.AcquireDailyLock(ctx, "review_sweep", today) {
		logger.Info("review sweep already ran today, skipping")
		return nil, nil
	}

	summary := &SweepSummary{
		RunID:   uuid.New(),
		RunDate: today,
	}

	if n, err := s.programs.ExpireEndedPrograms(ctx); err != nil {
		s.errs.Handle(ctx, err)
	} else if n > 0 {
		logger.Info("completed ended programs", "count", n)
	}
	if n, err := s.reviews.ExpireStaleReviews(ctx); err != nil {
		s.errs.Handle(ctx, err)
	} else if n > 0 {
		logger.Info("expired stale pending reviews", "count", n)
	}

	var due []database.Program
	if err := s.db.WithContext(ctx).
		Where("status = ? AND (next_review_date IS NULL OR next_review_date <= ?)", database.ProgramStatusActive, today).
		Find(&due).Error; err != nil {
		return nil, s.errs.LogAndReturn(ctx, apperrors.NewDatabaseError(err))
	}

	for i := range due {
		outcome := s.processProgram(ctx, &due[i], today)
		summary.Outcomes = append(summary.Outcomes, outcome)
		switch outcome.Result {
		case SweepResultGenerated:
			summary.Generated++
		case SweepResultSkipped:
			summary.Skipped++
		default:
			summary.Errored++
		}
	}

	logger.Info("review sweep finished",
		"run_id", summary.RunID,
		"due", len(due),
		"generated", summary.Generated,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
	)
	return summary, nil
}

func (s *SweepService) processProgram(ctx context.Context, program *database.Program, today time.Time) SweepOutcome {
	outcome := SweepOutcome{ProgramID: program.ID, UserID: program.UserID}

	// Data-sufficiency gate over the trailing 7 days, today included.
	totals, err := s.nutrition.DailyTotals(ctx, program.UserID, today.AddDate(0, 0, -6), today)
	if err != nil {
		s.errs.Handle(ctx, err)
		outcome.Result = SweepResultErrored
		outcome.Detail = err.Error()
		return outcome
	}
	if len(totals) < minAnalysisDays {
		outcome.Result = SweepResultSkipped
		outcome.Detail = "insufficient data"
		return outcome
	}

	currentWeek := ReviewWeek(program.StartDate, today)
	var count int64
	if err := s.db.WithContext(ctx).Model(&database.ProgramReview{}).
		Where("program_id = ? AND review_week = ?", program.ID, currentWeek).
		Count(&count).Error; err != nil {
		s.errs.Handle(ctx, err)
		outcome.Result = SweepResultErrored
		outcome.Detail = err.Error()
		return outcome
	}
	if count > 0 {
		outcome.Result = SweepResultSkipped
		outcome.Detail = "already reviewed"
		return outcome
	}

	review, err := s.reviews.GenerateReview(ctx, program.UserID, program.ID, false)
	if err != nil {
		if apperrors.IsAlreadyReviewed(err) || apperrors.IsInsufficientData(err) {
			outcome.Result = SweepResultSkipped
			outcome.Detail = err.Error()
			return outcome
		}
		s.errs.Handle(ctx, err)
		outcome.Result = SweepResultErrored
		outcome.Detail = err.Error()
		return outcome
	}

	outcome.Result = SweepResultGenerated
	s.notifyReviewReady(ctx, program.UserID, review)
	return outcome
}

func (s *SweepService) notifyReviewReady(ctx context.Context, userID uint, review *database.ProgramReview) {
	if s.notifier == nil {
		return
	}
	var user database.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return
	}
	if err := s.notifier.ReviewReady(&user, review); err != nil {
		logger.Warn("review notification failed", "user_id", userID, "error", err)
	}
}
