// Package setup seeds new accounts with the default habit ladder, resets
// accounts and performs manual tier unlocks.
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	domainerr "github.com/habittks/habit-tks/internal/errors"
	"github.com/habittks/habit-tks/internal/habit"
	"github.com/habittks/habit-tks/internal/metrics"
	"github.com/habittks/habit-tks/internal/models"
	"github.com/habittks/habit-tks/internal/notify"
	"github.com/habittks/habit-tks/internal/progression"
	"github.com/habittks/habit-tks/internal/user"
)

// Repository is the persistence setup touches directly.
type Repository interface {
	ChangeTier(ctx context.Context, userID string, from, to models.Tier) error
	MarkReset(ctx context.Context, userID string, at time.Time) error
}

const (
	setupMessage = "Account setup complete! You now have 4 baseline habits to start with."
	resetMessage = "Account reset complete! You have a fresh start with baseline habits."
)

// Service implements account setup.
type Service struct {
	repo      Repository
	habits    *habit.Service
	users     *user.Service
	engine    *progression.Engine
	sink      notify.Sink
	metrics   *metrics.Metrics
	templates []TierTemplate
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService loads the embedded templates and wires the service.
func NewService(repo Repository, habits *habit.Service, users *user.Service, engine *progression.Engine,
	sink notify.Sink, m *metrics.Metrics, logger zerolog.Logger) (*Service, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	return &Service{
		repo:      repo,
		habits:    habits,
		users:     users,
		engine:    engine,
		sink:      sink,
		metrics:   m,
		templates: templates,
		now:       time.Now,
		logger:    logger.With().Str("component", "setup").Logger(),
	}, nil
}

// Result is returned by SetupAccount.
type Result struct {
	BaselineHabits  []string  `json:"baselineHabits"`
	Tier2UnlockDate time.Time `json:"tier2UnlockDate"`
	Message         string    `json:"message"`
}

// SetupAccount seeds the default habits, installs the default progression
// rules and puts the user at baseline.
func (s *Service) SetupAccount(ctx context.Context, userID string) (*Result, error) {
	const op = "setup.account"

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	current, err := s.habits.ListHabits(ctx, userID, "", true)
	if err != nil {
		return nil, err
	}
	if len(current) > 0 {
		return nil, domainerr.InvalidOperation(op, "account %s already has active habits; reset it instead", userID)
	}

	now := s.now().UTC()
	result := &Result{Message: setupMessage}
	for _, tt := range s.templates {
		start := now.AddDate(0, 0, tt.StartOffsetDays)
		if tt.Tier == models.TierTwo {
			result.Tier2UnlockDate = start
		}
		for _, ht := range tt.Habits {
			h, err := s.habits.CreateHabit(ctx, userID, habit.CreateRequest{
				Name:           ht.Name,
				Description:    ht.Description,
				Category:       ht.Category,
				Tier:           tt.Tier,
				Frequency:      ht.Frequency,
				ReminderTime:   ht.ReminderTime,
				Notes:          ht.Notes,
				Priority:       ht.Priority,
				StreakTracking: ht.StreakTracking,
				SkipAllowed:    ht.SkipAllowed,
				StartDate:      start,
			})
			if err != nil {
				return nil, fmt.Errorf("%s: seeding %s: %w", op, ht.Name, err)
			}
			if tt.Tier == models.TierBaseline {
				result.BaselineHabits = append(result.BaselineHabits, h.ID)
			}
		}
	}

	if _, err := s.engine.InitializeRules(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u.CurrentTier != models.TierBaseline {
		if _, err := s.users.UpdateTier(ctx, userID, models.TierBaseline); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("user_id", userID).Int("baseline_habits", len(result.BaselineHabits)).Msg("account set up")
	return result, nil
}

// ResetAccount archives every habit, marks a reset point and sets the account
// up again from scratch. The activity log and progression history are kept;
// only activity after the reset point counts toward streaks and progression.
func (s *Service) ResetAccount(ctx context.Context, userID string) (string, error) {
	const op = "setup.reset"

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return "", err
	}
	for _, tier := range models.Tiers {
		if _, err := s.habits.ArchiveTier(ctx, userID, tier); err != nil {
			return "", err
		}
	}
	if err := s.repo.MarkReset(ctx, userID, s.now().UTC()); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.SetupAccount(ctx, userID); err != nil {
		return "", err
	}

	s.logger.Info().Str("user_id", userID).Msg("account reset")
	return resetMessage, nil
}

// UnlockTier moves the user one tier up by hand, records the unlock and
// publishes tier_unlocked.
func (s *Service) UnlockTier(ctx context.Context, userID string, tier models.Tier) (string, error) {
	const op = "setup.unlock"

	if tier != models.TierTwo && tier != models.TierThree {
		return "", domainerr.Validation(op, "tier %q cannot be unlocked", tier)
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if next, ok := u.CurrentTier.Next(); !ok || next != tier {
		return "", domainerr.InvalidOperation(op, "cannot unlock %s from %s", tier, u.CurrentTier)
	}

	if err := s.repo.ChangeTier(ctx, userID, u.CurrentTier, tier); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.engine.RecordManual(ctx, userID, u.CurrentTier, tier); err != nil {
		return "", err
	}
	s.metrics.RecordTierChange("manual", string(tier))

	msg := tier.UnlockMessage()
	s.sink.BroadcastToUser(userID, notify.EventTierUnlocked, notify.TierUnlockedPayload{
		Tier:       tier,
		UnlockedAt: s.now().UTC(),
		Message:    msg,
	})
	s.logger.Info().Str("user_id", userID).Str("tier", string(tier)).Msg("tier unlocked manually")
	return msg, nil
}
