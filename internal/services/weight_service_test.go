package services

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestLogWeightSeedsTrend(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	weights := NewWeightService(db)
	ctx := context.Background()

	entry, err := weights.LogWeight(ctx, user.ID, 90, time.Now())
	require.NoError(t, err)
	require.InDelta(t, 90, entry.TrendWeight, 0.001)
}

func TestLogWeightSmoothsTrend(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	weights := NewWeightService(db)
	ctx := context.Background()
	base := utils.DateOnly(time.Now()).AddDate(0, 0, -2)

	_, err := weights.LogWeight(ctx, user.ID, 90, base)
	require.NoError(t, err)

	// Trend moves a tenth of the way toward each new reading.
	entry, err := weights.LogWeight(ctx, user.ID, 88, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.InDelta(t, 89.8, entry.TrendWeight, 0.001)

	entry, err = weights.LogWeight(ctx, user.ID, 91, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.InDelta(t, 89.92, entry.TrendWeight, 0.001)

	latest, err := weights.Latest(ctx, user.ID)
	require.NoError(t, err)
	require.InDelta(t, 91, latest.Weight, 0.001)
}

func TestLogWeightRejectsNonPositive(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	weights := NewWeightService(db)

	_, err := weights.LogWeight(context.Background(), user.ID, 0, time.Now())
	require.True(t, apperrors.IsValidation(err))
}

func TestLatestWithoutEntries(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	weights := NewWeightService(db)

	latest, err := weights.Latest(context.Background(), user.ID)
	require.NoError(t, err)
	require.Nil(t, latest)
}
