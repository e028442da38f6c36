package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habittks/habit-tks/internal/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := zerolog.New(os.Stderr)
	store, err := New(dbPath, logger)
	require.NoError(t, err)
	return store, dbPath
}

func cleanupStore(t *testing.T, store *Store, dbPath string) {
	if store != nil {
		store.Close()
	}
	os.Remove(dbPath)
}

func seedUser(t *testing.T, s *Store, id string) *models.User {
	u := &models.User{
		ID:       id,
		Email:    id + "@example.com",
		Name:     "Test " + id,
		Settings: models.DefaultUserSettings(),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedHabit(t *testing.T, s *Store, userID string, tier models.Tier, active bool) *models.Habit {
	h := &models.Habit{
		UserID:         userID,
		Name:           "habit " + string(tier),
		Category:       models.CategoryFitness,
		Tier:           tier,
		Frequency:      models.FrequencyDaily,
		Priority:       models.LevelHigh,
		StreakTracking: true,
		IsActive:       active,
	}
	require.NoError(t, s.CreateHabit(context.Background(), h))
	return h
}

func TestNew_CreatesDB(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)

	tables := []string{
		"users", "habits", "habit_completions", "habit_skips",
		"progression_rules", "progression_events", "meta",
	}

	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	var version string
	require.NoError(t, store.db.QueryRow("SELECT value FROM meta WHERE key='schema_version'").Scan(&version))
	assert.Equal(t, "3", version)
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	store, dbPath := newTestStore(t)
	seedUser(t, store, "u1")
	require.NoError(t, store.Close())

	reopened, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer cleanupStore(t, reopened, dbPath)

	u, err := reopened.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
}

func TestUser_CRUD(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()

	u := seedUser(t, store, "u1")
	assert.Equal(t, models.TierBaseline, u.CurrentTier)

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1@example.com", got.Email)
	assert.True(t, got.Settings.AutoProgression)

	byEmail, err := store.GetUserByEmail(ctx, "u1@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "u1", byEmail.ID)

	got.Streak = 4
	got.Settings.Theme = models.ThemeDark
	require.NoError(t, store.UpdateUser(ctx, got))

	got, err = store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Streak)
	assert.Equal(t, models.ThemeDark, got.Settings.Theme)

	require.NoError(t, store.SetUserStreak(ctx, "u1", 9))
	got, err = store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Streak)
	assert.Equal(t, models.ThemeDark, got.Settings.Theme)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, store.DeleteUser(ctx, "u1"))
	got, err = store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, store.UpdateUser(ctx, &models.User{ID: "missing"}))
}

func TestUser_DuplicateEmail(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)

	seedUser(t, store, "u1")
	dup := &models.User{ID: "u2", Email: "u1@example.com", Name: "dup"}
	assert.Error(t, store.CreateUser(context.Background(), dup))
}

func TestHabit_CRUD(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()

	seedUser(t, store, "u1")
	h := seedHabit(t, store, "u1", models.TierBaseline, true)
	assert.NotEmpty(t, h.ID)

	got, err := store.GetHabit(ctx, h.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, h.Name, got.Name)
	assert.Equal(t, models.TierBaseline, got.Tier)
	assert.True(t, got.IsActive)
	assert.Equal(t, h.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

	got.Notes = "evening"
	got.SkipAllowed = true
	require.NoError(t, store.UpdateHabit(ctx, got))

	got, err = store.GetHabit(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "evening", got.Notes)
	assert.True(t, got.SkipAllowed)

	require.NoError(t, store.DeleteHabit(ctx, h.ID))
	got, err = store.GetHabit(ctx, h.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListHabits_Filters(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()

	seedUser(t, store, "u1")
	seedUser(t, store, "u2")
	seedHabit(t, store, "u1", models.TierBaseline, true)
	seedHabit(t, store, "u1", models.TierTwo, false)
	seedHabit(t, store, "u2", models.TierBaseline, true)

	all, err := store.ListHabits(ctx, HabitFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := store.ListHabits(ctx, HabitFilter{UserID: "u1", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.TierBaseline, active[0].Tier)

	tier2, err := store.ListHabits(ctx, HabitFilter{UserID: "u1", Tier: models.TierTwo})
	require.NoError(t, err)
	assert.Len(t, tier2, 1)
}

func TestChangeTier(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()

	seedUser(t, store, "u1")
	base := seedHabit(t, store, "u1", models.TierBaseline, true)
	next := &models.Habit{
		UserID: "u1", Name: "future", Category: models.CategoryWork, Tier: models.TierTwo,
		Frequency: models.FrequencyDaily, Priority: models.LevelMedium,
		StartDate: time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, store.CreateHabit(ctx, next))

	require.NoError(t, store.ChangeTier(ctx, "u1", models.TierBaseline, models.TierTwo))

	got, err := store.GetHabit(ctx, base.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.Archived)

	got, err = store.GetHabit(ctx, next.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.False(t, got.Archived)
	assert.False(t, got.StartDate.After(time.Now()), "activated habit starts now")

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierTwo, u.CurrentTier)
}

func TestChangeTier_UnknownUserRollsBack(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()

	assert.Error(t, store.ChangeTier(ctx, "ghost", models.TierBaseline, models.TierTwo))
}

func TestSetTierState(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()

	seedUser(t, store, "u1")
	seedHabit(t, store, "u1", models.TierBaseline, true)
	seedHabit(t, store, "u1", models.TierBaseline, true)

	n, err := store.SetTierState(ctx, "u1", models.TierBaseline, false, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	active, err := store.ListHabits(ctx, HabitFilter{UserID: "u1", ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestActivity_CompletionsAndSkips(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()

	now := time.Now().UTC()
	dur := 20
	for i := 0; i < 3; i++ {
		c := &models.Completion{
			HabitID:     "h1",
			UserID:      "u1",
			Tier:        models.TierBaseline,
			CompletedAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		}
		if i == 0 {
			c.Notes = "felt good"
			c.Metrics = &models.CompletionMetrics{
				Duration:       &dur,
				Intensity:      models.LevelHigh,
				AdditionalData: map[string]any{"reps": float64(12)},
			}
		}
		require.NoError(t, store.AppendCompletion(ctx, c))
	}
	require.NoError(t, store.AppendCompletion(ctx, &models.Completion{
		HabitID: "h2", UserID: "u1", Tier: models.TierTwo, CompletedAt: now,
	}))

	times, err := store.CompletionTimes(ctx, "u1", models.TierBaseline, now.Add(-36*time.Hour))
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.True(t, times[0].Before(times[1]), "oldest first")

	all, err := store.CompletionTimes(ctx, "u1", "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	list, err := store.ListCompletions(ctx, ActivityFilter{UserID: "u1", HabitID: "h1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "felt good", list[0].Notes)
	require.NotNil(t, list[0].Metrics)
	assert.Equal(t, 20, *list[0].Metrics.Duration)
	assert.Equal(t, float64(12), list[0].Metrics.AdditionalData["reps"])
	assert.Nil(t, list[1].Metrics)

	require.NoError(t, store.AppendSkip(ctx, &models.Skip{
		HabitID: "h1", UserID: "u1", Tier: models.TierBaseline, Reason: "sick", SkippedAt: now.Add(-10 * 24 * time.Hour),
	}))
	require.NoError(t, store.AppendSkip(ctx, &models.Skip{
		HabitID: "h1", UserID: "u1", Tier: models.TierBaseline, Reason: "travel",
	}))

	n, err := store.CountSkips(ctx, "u1", now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	skips, err := store.ListSkips(ctx, ActivityFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, skips, 2)
	assert.Equal(t, "travel", skips[0].Reason)
}

func TestProgression_RulesAndEvents(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()

	rules := []models.ProgressionRule{
		{UserID: "u1", FromTier: models.TierBaseline, ToTier: models.TierTwo,
			Condition: models.ProgressionCondition{Kind: models.ConditionConsecutiveDays, Value: 7, Timeframe: 7}},
		{UserID: "u1", FromTier: models.TierTwo, ToTier: models.TierThree,
			Condition: models.ProgressionCondition{Kind: models.ConditionWeeklyFrequency, Value: 5, Timeframe: 7}},
	}
	require.NoError(t, store.ReplaceRules(ctx, "u1", rules))
	require.NoError(t, store.ReplaceRules(ctx, "u1", rules[:1]))

	got, err := store.ListRules(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.ConditionConsecutiveDays, got[0].Condition.Kind)

	extra := &models.ProgressionRule{UserID: "u1", FromTier: models.TierTwo, ToTier: models.TierThree,
		Condition: models.ProgressionCondition{Kind: models.ConditionManual, Value: 1}}
	require.NoError(t, store.AddRule(ctx, extra))
	got, err = store.ListRules(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	none, err := store.ListRules(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	penalty, err := store.LatestPenalty(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, penalty)

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.AppendEvent(ctx, &models.ProgressionEvent{
		UserID: "u1", RuleID: got[0].ID, FromTier: models.TierBaseline, ToTier: models.TierTwo,
		Condition: got[0].Condition, TriggeredAt: base,
	}))
	require.NoError(t, store.AppendEvent(ctx, &models.ProgressionEvent{
		UserID: "u1", FromTier: models.TierTwo, ToTier: models.TierBaseline, WasPenalty: true,
		Condition:   models.ProgressionCondition{Kind: models.ConditionSkipThreshold, Value: 3, Timeframe: 7},
		TriggeredAt: base.Add(time.Minute),
	}))

	events, err := store.ListEvents(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.False(t, events[0].WasPenalty)
	assert.Equal(t, got[0].ID, events[0].RuleID)
	assert.Empty(t, events[1].RuleID)

	penalty, err = store.LatestPenalty(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, penalty)
	assert.Equal(t, models.TierBaseline, penalty.ToTier)
}

func TestMarkReset_KeepsActivity(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)
	ctx := context.Background()
	seedUser(t, store, "u1")

	point, err := store.ResetPoint(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, point.IsZero())

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.AppendCompletion(ctx, &models.Completion{HabitID: "h", UserID: "u1", Tier: models.TierBaseline, CompletedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.AppendSkip(ctx, &models.Skip{HabitID: "h", UserID: "u1", Tier: models.TierBaseline, Reason: "x", SkippedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.AppendEvent(ctx, &models.ProgressionEvent{UserID: "u1", FromTier: models.TierBaseline, ToTier: models.TierTwo}))
	require.NoError(t, store.SetUserStreak(ctx, "u1", 5))

	require.NoError(t, store.MarkReset(ctx, "u1", now))

	point, err = store.ResetPoint(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, now.Equal(point))

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.ResetAt)
	assert.True(t, now.Equal(*u.ResetAt))
	assert.Equal(t, 0, u.Streak)

	times, err := store.CompletionTimes(ctx, "u1", "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, times, 1)
	skips, err := store.CountSkips(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, skips)
	events, err := store.ListEvents(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	assert.Error(t, store.MarkReset(ctx, "ghost", now))
	point, err = store.ResetPoint(ctx, "ghost")
	require.NoError(t, err)
	assert.True(t, point.IsZero())
}

func TestDBSizeBytes(t *testing.T) {
	store, dbPath := newTestStore(t)
	defer cleanupStore(t, store, dbPath)

	size, err := store.DBSizeBytes()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}
