// Package habit orchestrates habit CRUD, completions and skips, driving the
// progression engine and publishing push events.
package habit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	domainerr "github.com/habittks/habit-tks/internal/errors"
	"github.com/habittks/habit-tks/internal/metrics"
	"github.com/habittks/habit-tks/internal/models"
	"github.com/habittks/habit-tks/internal/notify"
	"github.com/habittks/habit-tks/internal/progression"
	"github.com/habittks/habit-tks/internal/store"
)

// Repository is the persistence the service needs. *store.Store satisfies it.
type Repository interface {
	CreateHabit(ctx context.Context, h *models.Habit) error
	GetHabit(ctx context.Context, id string) (*models.Habit, error)
	ListHabits(ctx context.Context, f store.HabitFilter) ([]*models.Habit, error)
	UpdateHabit(ctx context.Context, h *models.Habit) error
	DeleteHabit(ctx context.Context, id string) error
	SetTierState(ctx context.Context, userID string, tier models.Tier, active, archived bool) (int64, error)
	ChangeTier(ctx context.Context, userID string, from, to models.Tier) error

	GetUser(ctx context.Context, id string) (*models.User, error)
	SetUserStreak(ctx context.Context, userID string, streak int) error

	AppendCompletion(ctx context.Context, c *models.Completion) error
	AppendSkip(ctx context.Context, s *models.Skip) error
	CompletionTimes(ctx context.Context, userID string, tier models.Tier, since time.Time) ([]time.Time, error)
	ListCompletions(ctx context.Context, f store.ActivityFilter) ([]*models.Completion, error)
}

// Options configure a Service.
type Options struct {
	Location *time.Location
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// streakLookback bounds how far back the overall streak is recomputed.
const streakLookback = 366

// Service implements the habit use cases.
type Service struct {
	repo    Repository
	engine  *progression.Engine
	sink    notify.Sink
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time
	logger  zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService wires a Service.
func NewService(repo Repository, engine *progression.Engine, sink notify.Sink, opts Options, logger zerolog.Logger) *Service {
	s := &Service{
		repo:    repo,
		engine:  engine,
		sink:    sink,
		metrics: opts.Metrics,
		loc:     opts.Location,
		now:     opts.Now,
		logger:  logger.With().Str("component", "habit").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// lockUser serializes the complete/skip decision path per user.
func (s *Service) lockUser(userID string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// ForgetUser drops the user's lock entry so the map stays bounded by the
// number of live users. Call it once the user is deleted.
func (s *Service) ForgetUser(userID string) {
	s.locksMu.Lock()
	delete(s.locks, userID)
	s.locksMu.Unlock()
}

// PruneLocks drops idle lock entries of users that no longer exist and
// returns how many were dropped. Held locks are left for a later pass.
func (s *Service) PruneLocks(ctx context.Context) (int, error) {
	s.locksMu.Lock()
	ids := make([]string, 0, len(s.locks))
	for id := range s.locks {
		ids = append(ids, id)
	}
	s.locksMu.Unlock()

	pruned := 0
	for _, id := range ids {
		u, err := s.repo.GetUser(ctx, id)
		if err != nil {
			return pruned, fmt.Errorf("prune locks: %w", err)
		}
		if u != nil {
			continue
		}
		s.locksMu.Lock()
		if m, ok := s.locks[id]; ok && m.TryLock() {
			delete(s.locks, id)
			m.Unlock()
			pruned++
		}
		s.locksMu.Unlock()
	}
	return pruned, nil
}

// ownedHabit loads a habit and checks it belongs to userID.
func (s *Service) ownedHabit(ctx context.Context, op, habitID, userID string) (*models.Habit, error) {
	h, err := s.repo.GetHabit(ctx, habitID)
	if err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if h == nil {
		return nil, domainerr.NotFound(op, "habit %s not found", habitID)
	}
	if h.UserID != userID {
		return nil, domainerr.AccessDenied(op, "habit %s does not belong to user %s", habitID, userID)
	}
	return h, nil
}

func (s *Service) loadUser(ctx context.Context, op, userID string) (*models.User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u == nil {
		return nil, domainerr.NotFound(op, "user %s not found", userID)
	}
	return u, nil
}

// CompleteRequest is the body of a completion.
type CompleteRequest struct {
	Notes   string
	Metrics *models.CompletionMetrics
}

// CompleteResult reports what a completion caused.
type CompleteResult struct {
	Completion *models.Completion
	NewTier    models.Tier // set when the completion unlocked a tier
	Streak     int
}

// CompleteHabit records a completion, evaluates progression and publishes the
// resulting events.
func (s *Service) CompleteHabit(ctx context.Context, habitID, userID string, req CompleteRequest) (*CompleteResult, error) {
	const op = "habit.complete"
	if req.Metrics != nil && req.Metrics.Intensity != "" && !req.Metrics.Intensity.Valid() {
		return nil, domainerr.Validation(op, "invalid intensity %q", req.Metrics.Intensity)
	}

	unlock := s.lockUser(userID)
	defer unlock()

	h, err := s.ownedHabit(ctx, op, habitID, userID)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &models.Completion{
		HabitID:     h.ID,
		UserID:      userID,
		Tier:        h.Tier,
		CompletedAt: now,
		Notes:       req.Notes,
		Metrics:     req.Metrics,
	}
	if err := s.repo.AppendCompletion(ctx, c); err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.RecordHabitAction("completed", string(h.Tier))

	result := &CompleteResult{Completion: c, Streak: user.Streak}

	// Completions of habits outside the current tier never move the user.
	if h.Tier == user.CurrentTier {
		decision, err := s.engine.EvaluateOnCompletion(ctx, userID, h.Tier)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if decision.Changed() {
			if user.Settings.AutoProgression {
				if err := s.repo.ChangeTier(ctx, userID, user.CurrentTier, decision.NewTier); err != nil {
					s.metrics.RecordError("habit", "store")
					return nil, fmt.Errorf("%s: apply upgrade: %w", op, err)
				}
				if err := s.engine.Record(ctx, &decision); err != nil {
					s.metrics.RecordError("habit", "store")
					return nil, fmt.Errorf("%s: %w", op, err)
				}
				result.NewTier = decision.NewTier
				s.metrics.RecordTierChange("upgrade", string(decision.NewTier))
				s.logger.Info().
					Str("user_id", userID).
					Str("from", string(user.CurrentTier)).
					Str("to", string(decision.NewTier)).
					Msg("tier upgraded")
			} else {
				s.logger.Info().Str("user_id", userID).Str("eligible", string(decision.NewTier)).Msg("upgrade earned, auto progression off")
			}
		}
	}

	s.sink.BroadcastToUser(userID, notify.EventHabitCompleted, notify.HabitCompletedPayload{
		HabitID:      h.ID,
		HabitName:    h.Name,
		Tier:         h.Tier,
		CompletionID: c.ID,
		CompletedAt:  c.CompletedAt,
	})
	if result.NewTier != "" {
		s.sink.BroadcastToUser(userID, notify.EventTierUnlocked, notify.TierUnlockedPayload{
			Tier:       result.NewTier,
			UnlockedAt: now,
			Message:    result.NewTier.UnlockMessage(),
		})
	}

	streak, err := s.refreshStreak(ctx, user, now)
	if err != nil {
		// The completion is already recorded; a stale streak is not fatal.
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("streak refresh failed")
	} else {
		result.Streak = streak
	}
	return result, nil
}

// refreshStreak recomputes the user's overall streak and publishes a change.
func (s *Service) refreshStreak(ctx context.Context, user *models.User, now time.Time) (int, error) {
	since := now.In(s.loc).AddDate(0, 0, -streakLookback)
	if user.ResetAt != nil && user.ResetAt.After(since) {
		since = *user.ResetAt
	}
	times, err := s.repo.CompletionTimes(ctx, user.ID, "", since)
	if err != nil {
		return 0, err
	}
	streak := progression.Streak(times, now, s.loc, 0)
	if streak == user.Streak {
		return streak, nil
	}
	if err := s.repo.SetUserStreak(ctx, user.ID, streak); err != nil {
		return 0, err
	}
	s.sink.BroadcastToUser(user.ID, notify.EventStreakUpdated, notify.StreakUpdatedPayload{
		Streak:         streak,
		PreviousStreak: user.Streak,
		UpdatedAt:      now,
	})
	return streak, nil
}

// SkipRequest is the body of a skip.
type SkipRequest struct {
	Reason string
}

// SkipResult reports what a skip caused.
type SkipResult struct {
	Skip    *models.Skip
	NewTier models.Tier // set when the skip triggered a downgrade
}

// SkipHabit records a skip, publishes it and applies any skip penalty.
func (s *Service) SkipHabit(ctx context.Context, habitID, userID string, req SkipRequest) (*SkipResult, error) {
	const op = "habit.skip"

	unlock := s.lockUser(userID)
	defer unlock()

	h, err := s.ownedHabit(ctx, op, habitID, userID)
	if err != nil {
		return nil, err
	}
	if !h.SkipAllowed {
		return nil, domainerr.InvalidOperation(op, "cannot skip habit: %s (skip not allowed)", h.Name)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, domainerr.Validation(op, "reason is required")
	}
	user, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sk := &models.Skip{
		HabitID:   h.ID,
		UserID:    userID,
		Tier:      h.Tier,
		SkippedAt: now,
		Reason:    reason,
	}
	if err := s.repo.AppendSkip(ctx, sk); err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.RecordHabitAction("skipped", string(h.Tier))

	s.sink.BroadcastToUser(userID, notify.EventHabitSkipped, notify.HabitSkippedPayload{
		HabitID:   h.ID,
		HabitName: h.Name,
		Tier:      h.Tier,
		SkipID:    sk.ID,
		Reason:    sk.Reason,
		SkippedAt: sk.SkippedAt,
	})

	result := &SkipResult{Skip: sk}
	decision, err := s.engine.EvaluateOnSkip(ctx, userID, user.CurrentTier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !decision.Changed() {
		return result, nil
	}

	if err := s.repo.ChangeTier(ctx, userID, user.CurrentTier, decision.NewTier); err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: apply penalty: %w", op, err)
	}
	if err := s.engine.Record(ctx, &decision); err != nil {
		s.metrics.RecordError("habit", "store")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.NewTier = decision.NewTier
	s.metrics.RecordTierChange("downgrade", string(decision.NewTier))
	s.logger.Warn().
		Str("user_id", userID).
		Str("from", string(user.CurrentTier)).
		Str("to", string(decision.NewTier)).
		Msg("tier downgraded")

	s.sink.BroadcastToUser(userID, notify.EventTierUnlocked, notify.TierUnlockedPayload{
		Tier:       decision.NewTier,
		UnlockedAt: now,
		Message:    decision.NewTier.DowngradeMessage(),
		Downgrade:  true,
	})
	return result, nil
}
