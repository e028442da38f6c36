package analytics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerr "github.com/habittks/habit-tks/internal/errors"
	"github.com/habittks/habit-tks/internal/models"
	"github.com/habittks/habit-tks/internal/store"
)

var now = time.Date(2026, 4, 20, 15, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "analytics.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := NewService(s, time.UTC, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc, s
}

func seed(t *testing.T, s *store.Store) (*models.Habit, *models.Habit) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Email: "u1@example.com", Name: "U"}))
	fit := &models.Habit{UserID: "u1", Name: "push-ups", Category: models.CategoryFitness, Tier: models.TierBaseline,
		Frequency: models.FrequencyDaily, Priority: models.LevelHigh, IsActive: true}
	read := &models.Habit{UserID: "u1", Name: "read", Category: models.CategoryLearning, Tier: models.TierBaseline,
		Frequency: models.FrequencyDaily, Priority: models.LevelHigh, IsActive: true, SkipAllowed: true}
	require.NoError(t, s.CreateHabit(ctx, fit))
	require.NoError(t, s.CreateHabit(ctx, read))

	// push-ups: today and the 3 days before; read: 10 and 11 days ago.
	for i := 0; i < 4; i++ {
		require.NoError(t, s.AppendCompletion(ctx, &models.Completion{HabitID: fit.ID, UserID: "u1", Tier: models.TierBaseline, CompletedAt: now.AddDate(0, 0, -i)}))
	}
	for _, d := range []int{10, 11} {
		require.NoError(t, s.AppendCompletion(ctx, &models.Completion{HabitID: read.ID, UserID: "u1", Tier: models.TierBaseline, CompletedAt: now.AddDate(0, 0, -d)}))
	}
	require.NoError(t, s.AppendSkip(ctx, &models.Skip{HabitID: read.ID, UserID: "u1", Tier: models.TierBaseline, Reason: "late", SkippedAt: now.Add(-time.Hour)}))
	// Outside a 30-day window.
	require.NoError(t, s.AppendCompletion(ctx, &models.Completion{HabitID: fit.ID, UserID: "u1", Tier: models.TierBaseline, CompletedAt: now.AddDate(0, 0, -40)}))

	require.NoError(t, s.AppendEvent(ctx, &models.ProgressionEvent{UserID: "u1", FromTier: models.TierTwo, ToTier: models.TierBaseline,
		WasPenalty: true, TriggeredAt: now.AddDate(0, 0, -2)}))
	return fit, read
}

func TestSummary(t *testing.T) {
	svc, s := newTestService(t)
	seed(t, s)

	sum, err := svc.Summary(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 30, sum.Days)
	assert.Equal(t, 6, sum.TotalCompletions)
	assert.Equal(t, 1, sum.TotalSkips)
	assert.InDelta(t, 85.71, sum.CompletionRate, 0.001)
	assert.Equal(t, 4, sum.ByCategory["fitness"])
	assert.Equal(t, 2, sum.ByCategory["learning"])
	assert.Equal(t, 6, sum.ByTier["baseline"])
	assert.Equal(t, 4, sum.CurrentStreak)
	assert.Equal(t, 4, sum.LongestStreak)
	assert.Equal(t, 1, sum.Penalties)

	require.Len(t, sum.ByDay, 30)
	last := sum.ByDay[29]
	assert.Equal(t, "2026-04-20", last.Date)
	assert.Equal(t, 1, last.Completions)
	assert.Equal(t, 1, last.Skips)
}

func TestSummary_DaysValidation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Summary(context.Background(), "u1", 400)
	assert.True(t, errors.Is(err, domainerr.ErrValidation))
	_, err = svc.Summary(context.Background(), "u1", -1)
	assert.True(t, errors.Is(err, domainerr.ErrValidation))

	sum, err := svc.Summary(context.Background(), "nobody", 7)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.TotalCompletions)
	assert.Equal(t, 0.0, sum.CompletionRate)
	assert.Len(t, sum.ByDay, 7)
}

func TestHabitStats(t *testing.T) {
	svc, s := newTestService(t)
	fit, read := seed(t, s)
	ctx := context.Background()

	st, err := svc.HabitStats(ctx, fit.ID, "u1", 60)
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalCompletions)
	assert.Equal(t, 0, st.TotalSkips)
	assert.Equal(t, 100.0, st.CompletionRate)
	assert.Equal(t, 4, st.CurrentStreak)

	st, err = svc.HabitStats(ctx, read.ID, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalCompletions)
	assert.Equal(t, 1, st.TotalSkips)
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 2, st.LongestStreak)

	_, err = svc.HabitStats(ctx, "missing", "u1", 30)
	assert.True(t, errors.Is(err, domainerr.ErrNotFound))
	_, err = svc.HabitStats(ctx, fit.ID, "u2", 30)
	assert.True(t, errors.Is(err, domainerr.ErrAccessDenied))
}

func TestLongestStreak(t *testing.T) {
	day := func(d int) time.Time { return now.AddDate(0, 0, d) }
	assert.Equal(t, 0, LongestStreak(nil, time.UTC))
	assert.Equal(t, 1, LongestStreak([]time.Time{day(0), day(0)}, time.UTC))
	assert.Equal(t, 3, LongestStreak([]time.Time{day(-10), day(-1), day(-9), day(-8), day(0)}, time.UTC))
}
