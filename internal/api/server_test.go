package api

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habittks/habit-tks/internal/analytics"
	"github.com/habittks/habit-tks/internal/habit"
	"github.com/habittks/habit-tks/internal/health"
	"github.com/habittks/habit-tks/internal/metrics"
	"github.com/habittks/habit-tks/internal/models"
	"github.com/habittks/habit-tks/internal/notify"
	"github.com/habittks/habit-tks/internal/progression"
	"github.com/habittks/habit-tks/internal/requestid"
	"github.com/habittks/habit-tks/internal/setup"
	"github.com/habittks/habit-tks/internal/store"
	"github.com/habittks/habit-tks/internal/user"
)

const testUser = "demo_user_123"

// testApp creates a Fiber app backed by a temp SQLite store.
func testApp(t *testing.T, rl RateLimitConfig) (*fiber.App, *store.Store) {
	t.Helper()
	logger := zerolog.Nop()

	st, err := store.New(filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	hub := notify.NewHub(notify.Config{Metrics: m}, logger)
	engine := progression.NewEngine(st, progression.Options{}, logger)
	habits := habit.NewService(st, engine, hub, habit.Options{Metrics: m}, logger)
	users := user.NewService(st, logger)
	setupSvc, err := setup.NewService(st, habits, users, engine, hub, m, logger)
	require.NoError(t, err)

	checker := health.NewChecker(logger)
	checker.Register("database", health.DatabaseCheck(st, logger))

	srv := NewServer(ServerConfig{
		MockUserID: testUser,
		RateLimit:  rl,
	}, Services{
		Habits:      habits,
		Users:       users,
		Setup:       setupSvc,
		Progression: engine,
		Analytics:   analytics.NewService(st, time.UTC, logger),
	}, checker, m, logger)
	t.Cleanup(func() { srv.Shutdown() })

	return srv.App(), st
}

func do(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func seedDemo(t *testing.T, app *fiber.App) DemoUserResponse {
	t.Helper()
	resp := do(t, app, "POST", "/api/setup/demo-user", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out DemoUserResponse
	decode(t, resp, &out)
	return out
}

func TestServer_Probes(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})

	resp := do(t, app, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])

	resp = do(t, app, "GET", "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, "GET", "/api/health", "")
	var detail HealthDetailResponse
	decode(t, resp, &detail)
	assert.Equal(t, "ok", detail.Status)
	assert.Equal(t, "ok", detail.Checks["database"])
}

func TestServer_ReadyzDatabaseDown(t *testing.T) {
	app, st := testApp(t, RateLimitConfig{})
	require.NoError(t, st.Close())

	resp := do(t, app, "GET", "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_RequestIDHeader(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})
	resp := do(t, app, "GET", "/healthz", "")
	assert.NotEmpty(t, resp.Header.Get(requestid.Header))
}

func TestServer_UnknownRoute(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})
	resp := do(t, app, "GET", "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "not_found", problem.Type)
	assert.Equal(t, "/api/nope", problem.Instance)
}

func TestServer_DemoUserSeeding(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})

	out := seedDemo(t, app)
	assert.True(t, out.Created)
	assert.Equal(t, testUser, out.User.ID)
	require.NotNil(t, out.Setup)
	assert.Len(t, out.Setup.BaselineHabits, 4)

	// Second call finds the account already seeded.
	resp := do(t, app, "POST", "/api/setup/demo-user", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var again DemoUserResponse
	decode(t, resp, &again)
	assert.False(t, again.Created)
	assert.Nil(t, again.Setup)

	resp = do(t, app, "GET", "/api/habits", "")
	var all HabitListResponse
	decode(t, resp, &all)
	assert.Equal(t, 12, all.Total)

	resp = do(t, app, "GET", "/api/habits?tier=baseline&active=true", "")
	var baseline HabitListResponse
	decode(t, resp, &baseline)
	assert.Equal(t, 4, baseline.Total)

	resp = do(t, app, "GET", "/api/habits?tier=tier9", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, "POST", "/api/setup/account", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_HabitCRUD(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})
	seedDemo(t, app)

	resp := do(t, app, "POST", "/api/habits",
		`{"name":"Stretch","category":"fitness","tier":"baseline","frequency":"daily","reminderTime":"06:30","skipAllowed":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Habit
	decode(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)
	assert.True(t, created.StreakTracking)
	assert.Equal(t, models.LevelMedium, created.Priority)

	resp = do(t, app, "GET", "/api/habits/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Habit
	decode(t, resp, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Stretch", got.Name)

	resp = do(t, app, "PUT", "/api/habits/"+created.ID, `{"name":"Stretch 5 min","priority":"high"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &got)
	assert.Equal(t, "Stretch 5 min", got.Name)
	assert.Equal(t, models.LevelHigh, got.Priority)

	resp = do(t, app, "DELETE", "/api/habits/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, app, "GET", "/api/habits/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CreateHabitValidation(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})
	seedDemo(t, app)

	resp := do(t, app, "POST", "/api/habits", `{"name":"x","category":"cooking","tier":"baseline","frequency":"daily"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "validation_failed", problem.Type)
	assert.Contains(t, problem.Detail, "category")

	resp = do(t, app, "POST", "/api/habits", `{"name":`)
	decode(t, resp, &problem)
	assert.Equal(t, "invalid_body", problem.Type)

	// Field-level checks the DTO cannot express come back from the service.
	resp = do(t, app, "POST", "/api/habits",
		`{"name":"x","category":"work","tier":"baseline","frequency":"daily","reminderTime":"25:99"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CompleteAndSkip(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})
	out := seedDemo(t, app)
	habitID := out.Setup.BaselineHabits[0]

	resp := do(t, app, "POST", "/api/habits/"+habitID+"/complete", `{"notes":"done","metrics":{"duration":5,"intensity":"low"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var done CompleteHabitResponse
	decode(t, resp, &done)
	require.NotNil(t, done.Completion)
	assert.Equal(t, habitID, done.Completion.HabitID)
	assert.Equal(t, 1, done.Streak)
	assert.False(t, done.TierUnlocked)

	// Empty body is a plain completion.
	resp = do(t, app, "POST", "/api/habits/"+habitID+"/complete", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, "POST", "/api/habits/"+habitID+"/complete", `{"metrics":{"intensity":"extreme"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, "GET", "/api/habits/"+habitID+"/completions", "")
	var list CompletionListResponse
	decode(t, resp, &list)
	assert.Equal(t, 2, list.Total)

	// Baseline habits cannot be skipped.
	resp = do(t, app, "POST", "/api/habits/"+habitID+"/skip", `{"reason":"tired"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "invalid_operation", problem.Type)

	resp = do(t, app, "POST", "/api/habits/"+habitID+"/skip", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, "POST", "/api/habits/missing/complete", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ForeignHabit(t *testing.T) {
	app, st := testApp(t, RateLimitConfig{})
	seedDemo(t, app)

	ctx := t.Context()
	require.NoError(t, st.CreateUser(ctx, &models.User{ID: "other", Email: "other@example.com", Name: "Other"}))
	h := &models.Habit{UserID: "other", Name: "theirs", Category: models.CategoryWork, Tier: models.TierBaseline,
		Frequency: models.FrequencyDaily, Priority: models.LevelLow, IsActive: true}
	require.NoError(t, st.CreateHabit(ctx, h))

	resp := do(t, app, "POST", "/api/habits/"+h.ID+"/complete", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "access_denied", problem.Type)
}

func TestServer_UsersAndSettings(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})

	resp := do(t, app, "GET", "/api/users/me", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	seedDemo(t, app)

	resp = do(t, app, "GET", "/api/users/me", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.User
	decode(t, resp, &me)
	assert.Equal(t, models.TierBaseline, me.CurrentTier)
	assert.Equal(t, models.ThemeLight, me.Settings.Theme)

	resp = do(t, app, "PUT", "/api/users/me/settings", `{"theme":"dark","autoProgression":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &me)
	assert.Equal(t, models.ThemeDark, me.Settings.Theme)
	assert.False(t, me.Settings.AutoProgression)
	assert.True(t, me.Settings.Notifications)

	resp = do(t, app, "PUT", "/api/users/me/settings", `{"theme":"neon"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, "GET", "/api/users/me/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats user.Stats
	decode(t, resp, &stats)
	assert.Equal(t, 4, stats.TotalHabits)

	resp = do(t, app, "POST", "/api/users", `{"email":"new@example.com","name":"New"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, app, "POST", "/api/users", `{"email":"new@example.com","name":"Again"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = do(t, app, "POST", "/api/users", `{"email":"not-an-email","name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_UnlockAndReset(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})
	seedDemo(t, app)

	resp := do(t, app, "POST", "/api/setup/unlock/tier3", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, app, "POST", "/api/setup/unlock/tier2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg MessageResponse
	decode(t, resp, &msg)
	assert.Equal(t, models.TierTwo, msg.Tier)
	assert.Equal(t, models.TierTwo.UnlockMessage(), msg.Message)

	resp = do(t, app, "GET", "/api/habits?tier=tier2&active=true", "")
	var tier2 HabitListResponse
	decode(t, resp, &tier2)
	assert.Equal(t, 4, tier2.Total)

	resp = do(t, app, "GET", "/api/progression/history", "")
	var hist struct {
		Events []models.ProgressionEvent `json:"events"`
	}
	decode(t, resp, &hist)
	require.Len(t, hist.Events, 1)
	assert.Equal(t, models.ConditionManual, hist.Events[0].Condition.Kind)

	resp = do(t, app, "POST", "/api/setup/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, "GET", "/api/users/me", "")
	var me models.User
	decode(t, resp, &me)
	assert.Equal(t, models.TierBaseline, me.CurrentTier)

	resp = do(t, app, "GET", "/api/habits?active=true", "")
	var active HabitListResponse
	decode(t, resp, &active)
	assert.Equal(t, 4, active.Total)

	resp = do(t, app, "GET", "/api/progression/history", "")
	decode(t, resp, &hist)
	assert.Len(t, hist.Events, 1, "reset keeps the progression history")
}

func TestServer_DeleteMe(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})

	resp := do(t, app, "DELETE", "/api/users/me", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	out := seedDemo(t, app)
	resp = do(t, app, "POST", "/api/habits/"+out.Setup.BaselineHabits[0]+"/complete", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, "DELETE", "/api/users/me", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, app, "GET", "/api/users/me", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ProgressionRules(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})
	seedDemo(t, app)

	resp := do(t, app, "GET", "/api/progression/rules", "")
	var rules struct {
		Rules []models.ProgressionRule `json:"rules"`
	}
	decode(t, resp, &rules)
	assert.Len(t, rules.Rules, 2)

	resp = do(t, app, "POST", "/api/progression/rules", `{"fromTier":"tier2","toTier":"tier3","condition":{"type":"manual"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, app, "POST", "/api/progression/rules", `{"fromTier":"baseline","toTier":"tier3","condition":{"type":"consecutiveDays","value":3}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, "POST", "/api/progression/rules", `{"fromTier":"baseline","toTier":"tier2","condition":{"type":"skipThreshold","value":3}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Contains(t, problem.Detail, "condition.type")
}

func TestServer_Analytics(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{})
	out := seedDemo(t, app)
	habitID := out.Setup.BaselineHabits[0]
	do(t, app, "POST", "/api/habits/"+habitID+"/complete", "")

	resp := do(t, app, "GET", "/api/analytics/summary?days=7", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum analytics.Summary
	decode(t, resp, &sum)
	assert.Equal(t, 7, sum.Days)
	assert.Equal(t, 1, sum.TotalCompletions)
	assert.Len(t, sum.ByDay, 7)

	resp = do(t, app, "GET", "/api/analytics/summary?days=400", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, "GET", "/api/analytics/habits/"+habitID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hs analytics.HabitStats
	decode(t, resp, &hs)
	assert.Equal(t, 1, hs.TotalCompletions)
	assert.Equal(t, 1, hs.CurrentStreak)
}

func TestServer_RateLimit(t *testing.T) {
	app, _ := testApp(t, RateLimitConfig{RPS: 1, Burst: 1})

	resp := do(t, app, "GET", "/api/habits", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, "GET", "/api/habits", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))

	// Probes are never limited.
	resp = do(t, app, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := newRateLimiter(RateLimitConfig{RPS: 2, Burst: 2})
	defer rl.stop()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))

	now = now.Add(time.Hour)
	assert.Equal(t, 0, rl.sweep(now.Add(-2*time.Hour)))
	assert.Equal(t, 2, rl.sweep(now))
}
